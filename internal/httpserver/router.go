package httpserver

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"supportchat/internal/config"
	"supportchat/internal/presence"
	"supportchat/internal/security"
	"supportchat/internal/service"
	"supportchat/internal/store/blob"
	"supportchat/internal/store/sqlite"
	"supportchat/internal/ws"
)

// NewRouter constructs the main HTTP router and wires routes, services, and middleware.
func NewRouter(
	cfg *config.Config,
	db *sql.DB,
	hub *ws.Hub,
	signals *presence.Store,
	tokens *security.TokenService,
	encryptor *security.Encryptor,
	blobs *blob.LocalStore,
	log zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Agent-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Repositories
	convRepo := sqlite.NewConversationRepo(db)
	msgRepo := sqlite.NewMessageRepo(db)

	// Services
	msgSvc := service.NewMessageService(convRepo, msgRepo, encryptor, hub, cfg.MaxContentRunes)
	statusSvc := service.NewStatusService(convRepo, msgRepo, hub)
	convSvc := service.NewConversationService(convRepo, msgRepo, blobs)

	limiters := newLimiterPool(cfg.SignalRPS, cfg.SignalBurst)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": cfg.AppName,
			"version": "1.0.0",
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Widget surface
		r.Route("/widget", func(r chi.Router) {
			r.Post("/init", handleWidgetInit(cfg, convSvc, msgSvc, signals, tokens))

			r.Group(func(r chi.Router) {
				r.Use(WidgetIdentity(tokens))

				r.Get("/messages", handleWidgetFetchMessages(convSvc, msgSvc, statusSvc))
				r.Post("/messages", handleWidgetSend(convSvc, msgSvc, signals))
				r.Post("/upload", handleWidgetUpload(cfg, convSvc, msgSvc, blobs))
				r.Post("/read", handleWidgetMarkRead(convSvc, statusSvc))
				r.Post("/typing", handleWidgetTyping(convSvc, signals, limiters))
				r.Post("/heartbeat", handleWidgetHeartbeat(convSvc, signals, limiters))
				r.Get("/signals", handleWidgetSignals(convSvc, signals))
			})
		})

		// Dashboard surface
		r.Route("/dashboard", func(r chi.Router) {
			r.Use(AgentIdentity())

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(convSvc))
				r.Get("/{conversationID}", handleGetConversation(convSvc))
				r.Get("/{conversationID}/messages", handleDashboardFetchMessages(msgSvc, statusSvc))
				r.Post("/{conversationID}/messages", handleDashboardSend(msgSvc, signals))
				r.Post("/{conversationID}/upload", handleDashboardUpload(cfg, msgSvc, blobs))
				r.Post("/{conversationID}/read", handleDashboardMarkRead(statusSvc))
				r.Post("/{conversationID}/status", handleChangeStatus(convSvc))
				r.Post("/{conversationID}/archive", handleArchive(convSvc))
				r.Post("/{conversationID}/typing", handleDashboardTyping(signals, limiters))
				r.Post("/{conversationID}/heartbeat", handleDashboardHeartbeat(signals, limiters))
				r.Get("/{conversationID}/signals", handleDashboardSignals(signals))
			})
		})

		// Attachment downloads
		r.Mount("/uploads", UploadRoutes(blobs))
	})

	// Dashboard nudge socket
	r.Get("/ws", ws.MakeHandler(hub, cfg.CORSOrigins, log))

	return r
}

// requestLogger logs each request with zerolog.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
