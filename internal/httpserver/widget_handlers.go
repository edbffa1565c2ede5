package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"supportchat/internal/config"
	"supportchat/internal/domain"
	"supportchat/internal/metrics"
	"supportchat/internal/presence"
	"supportchat/internal/security"
	"supportchat/internal/service"
)

type widgetInitResponse struct {
	Token          string                 `json:"token"`
	Conversation   *domain.Conversation   `json:"conversation"`
	Messages       []*service.MessageView `json:"messages"`
	WelcomeMessage string                 `json:"welcome_message"`
	FAQSuggestions []string               `json:"faq_suggestions"`
	AgentOnline    bool                   `json:"agent_online"`
}

// handleWidgetInit bootstraps a widget session. A valid identity token in
// the request reuses the caller's conversation; otherwise a fresh anonymous
// identity is minted. Either way the call is idempotent per identity.
func handleWidgetInit(
	cfg *config.Config,
	convSvc *service.ConversationService,
	msgSvc *service.MessageService,
	signals *presence.Store,
	tokens *security.TokenService,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := ""
		if tok := bearerToken(r); tok != "" {
			if parsed, err := tokens.Parse(tok); err == nil {
				key = parsed
			}
		}
		if key == "" {
			key = uuid.NewString()
		}

		conv, _, err := convSvc.Init(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}

		token, err := tokens.CreateForCustomer(key)
		if err != nil {
			writeError(w, err)
			return
		}

		messages, err := msgSvc.FetchAfter(r.Context(), conv.ID, 0)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, widgetInitResponse{
			Token:          token,
			Conversation:   conv,
			Messages:       messages,
			WelcomeMessage: cfg.WelcomeMessage,
			FAQSuggestions: cfg.FAQSuggestions,
			AgentOnline:    signals.IsOnline(conv.ID, domain.RoleAgent),
		})
	}
}

// widgetConversation resolves the caller's conversation from the identity
// middleware. Widget routes never address conversations by id.
func widgetConversation(r *http.Request, convSvc *service.ConversationService) (*domain.Conversation, error) {
	key := CustomerKey(r)
	if key == "" {
		return nil, domain.ErrUnauthorized
	}
	return convSvc.ByCustomerKey(r.Context(), key)
}

func handleWidgetFetchMessages(
	convSvc *service.ConversationService,
	msgSvc *service.MessageService,
	statusSvc *service.StatusService,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := widgetConversation(r, convSvc)
		if err != nil {
			writeError(w, err)
			return
		}
		afterID, _ := strconv.ParseInt(r.URL.Query().Get("after_id"), 10, 64)
		views, err := msgSvc.FetchAfter(r.Context(), conv.ID, afterID)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(views) > 0 {
			if err := statusSvc.MarkDeliveredUpTo(r.Context(), conv.ID, domain.RoleCustomer, time.Now()); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, views)
	}
}

type sendRequest struct {
	Content     string `json:"content"`
	ClientToken string `json:"client_token"`
}

func handleWidgetSend(
	convSvc *service.ConversationService,
	msgSvc *service.MessageService,
	signals *presence.Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := widgetConversation(r, convSvc)
		if err != nil {
			writeError(w, err)
			return
		}
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid JSON body"}})
			return
		}
		res, err := msgSvc.Submit(r.Context(), service.SubmitInput{
			ConversationID: conv.ID,
			Content:        req.Content,
			Role:           domain.RoleCustomer,
			Source:         domain.SourceWidget,
			ClientToken:    req.ClientToken,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		signals.ClearTyping(conv.ID, domain.RoleCustomer)
		status := http.StatusCreated
		if res.Duplicate {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

func handleWidgetMarkRead(
	convSvc *service.ConversationService,
	statusSvc *service.StatusService,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := widgetConversation(r, convSvc)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := statusSvc.MarkReadUpTo(r.Context(), conv.ID, domain.RoleCustomer, time.Now()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

func handleWidgetTyping(
	convSvc *service.ConversationService,
	signals *presence.Store,
	limiters *limiterPool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := widgetConversation(r, convSvc)
		if err != nil {
			writeError(w, err)
			return
		}
		if !limiters.Allow(signalKey(conv.ID, domain.RoleCustomer)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "too many signal updates"}})
			return
		}
		var req typingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid JSON body"}})
			return
		}
		signals.SetTyping(conv.ID, domain.RoleCustomer, req.IsTyping)
		metrics.SignalUpserts.Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleWidgetHeartbeat(
	convSvc *service.ConversationService,
	signals *presence.Store,
	limiters *limiterPool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := widgetConversation(r, convSvc)
		if err != nil {
			writeError(w, err)
			return
		}
		if !limiters.Allow(signalKey(conv.ID, domain.RoleCustomer)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "too many signal updates"}})
			return
		}
		signals.Heartbeat(conv.ID, domain.RoleCustomer)
		metrics.SignalUpserts.Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

type signalsResponse struct {
	Typing bool `json:"typing"`
	Online bool `json:"online"`
}

// handleWidgetSignals reports the agent side's typing and presence state.
// Read-only; no ordering dependency on the message endpoints.
func handleWidgetSignals(
	convSvc *service.ConversationService,
	signals *presence.Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conv, err := widgetConversation(r, convSvc)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, signalsResponse{
			Typing: signals.IsTyping(conv.ID, domain.RoleAgent),
			Online: signals.IsOnline(conv.ID, domain.RoleAgent),
		})
	}
}

func signalKey(conversationID int64, role domain.Role) string {
	return strconv.FormatInt(conversationID, 10) + ":" + string(role)
}
