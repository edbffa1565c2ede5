package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"supportchat/internal/domain"
	"supportchat/internal/metrics"
	"supportchat/internal/presence"
	"supportchat/internal/service"
)

func conversationID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "conversationID"), 10, 64)
	return id, err == nil && id > 0
}

func handleListConversations(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := convSvc.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleGetConversation(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		conv, err := convSvc.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conv)
	}
}

func handleDashboardFetchMessages(
	msgSvc *service.MessageService,
	statusSvc *service.StatusService,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		afterID, _ := strconv.ParseInt(r.URL.Query().Get("after_id"), 10, 64)
		views, err := msgSvc.FetchAfter(r.Context(), id, afterID)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(views) > 0 {
			if err := statusSvc.MarkDeliveredUpTo(r.Context(), id, domain.RoleAgent, time.Now()); err != nil {
				writeError(w, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, views)
	}
}

type dashboardSendRequest struct {
	Content     string      `json:"content"`
	ClientToken string      `json:"client_token"`
	Role        domain.Role `json:"role,omitempty"` // agent by default; system/bot for automations
}

func handleDashboardSend(
	msgSvc *service.MessageService,
	signals *presence.Store,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		var req dashboardSendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid JSON body"}})
			return
		}
		role := req.Role
		if role == "" {
			role = domain.RoleAgent
		}
		if role == domain.RoleCustomer {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "dashboard cannot send as customer"}})
			return
		}
		res, err := msgSvc.Submit(r.Context(), service.SubmitInput{
			ConversationID: id,
			Content:        req.Content,
			Role:           role,
			Source:         domain.SourceDashboard,
			ClientToken:    req.ClientToken,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		signals.ClearTyping(id, domain.RoleAgent)
		status := http.StatusCreated
		if res.Duplicate {
			status = http.StatusOK
		}
		writeJSON(w, status, res)
	}
}

func handleDashboardMarkRead(statusSvc *service.StatusService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		if err := statusSvc.MarkReadUpTo(r.Context(), id, domain.RoleAgent, time.Now()); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

type changeStatusRequest struct {
	Status domain.ConversationStatus `json:"status"`
}

func handleChangeStatus(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		var req changeStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid JSON body"}})
			return
		}
		if err := convSvc.ChangeStatus(r.Context(), id, req.Status); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

// handleArchive is destructive: attachment blobs are purged and the action
// cannot be undone. The dashboard UI is expected to confirm with the agent
// before calling.
func handleArchive(convSvc *service.ConversationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		if err := convSvc.Archive(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "archived"})
	}
}

func handleDashboardTyping(
	signals *presence.Store,
	limiters *limiterPool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		if !limiters.Allow(signalKey(id, domain.RoleAgent)) {
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
		signals.SetTyping(id, domain.RoleAgent, req.IsTyping)
		metrics.SignalUpserts.Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleDashboardHeartbeat(
	signals *presence.Store,
	limiters *limiterPool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		if !limiters.Allow(signalKey(id, domain.RoleAgent)) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "too many signal updates"}})
			return
		}
		signals.Heartbeat(id, domain.RoleAgent)
		metrics.SignalUpserts.Inc()
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

// handleDashboardSignals reports the customer side's typing and presence.
func handleDashboardSignals(signals *presence.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := conversationID(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{
				Code: domain.CodePayloadInvalid, Message: "invalid conversation id"}})
			return
		}
		writeJSON(w, http.StatusOK, signalsResponse{
			Typing: signals.IsTyping(id, domain.RoleCustomer),
			Online: signals.IsOnline(id, domain.RoleCustomer),
		})
	}
}
