package httpserver

import (
	"context"
	"net/http"
	"strings"

	"supportchat/internal/security"
)

type contextKey string

const (
	customerKeyCtx contextKey = "customerKey"
	agentIDCtx     contextKey = "agentID"
)

// CustomerKey returns the widget identity bound to the request, or "".
func CustomerKey(r *http.Request) string {
	key, _ := r.Context().Value(customerKeyCtx).(string)
	return key
}

// AgentID returns the agent identity bound to the request, or "".
func AgentID(r *http.Request) string {
	id, _ := r.Context().Value(agentIDCtx).(string)
	return id
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("Bearer "):])
	}
	return ""
}

// WidgetIdentity requires a valid widget identity token and binds the
// customer key it carries to the request context. Identity is modeled as an
// explicit per-session value rather than ambient state, so several widget
// sessions can coexist without cross-talk.
func WidgetIdentity(tokens *security.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
					Code: "UNAUTHORIZED", Message: "missing identity token"}})
				return
			}
			key, err := tokens.Parse(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
					Code: "UNAUTHORIZED", Message: "invalid identity token"}})
				return
			}
			ctx := context.WithValue(r.Context(), customerKeyCtx, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentIdentity requires the agent identity header set by the auth gateway
// in front of this service. Authentication itself is owned by that
// collaborator; the header is trusted here.
func AgentIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID := strings.TrimSpace(r.Header.Get("X-Agent-ID"))
			if agentID == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
					Code: "UNAUTHORIZED", Message: "missing agent identity"}})
				return
			}
			ctx := context.WithValue(r.Context(), agentIDCtx, agentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
