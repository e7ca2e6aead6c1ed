package router

import (
	"encoding/json"
	"net/http"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/database"
	"github.com/buymart/dealflow-api/internal/http/handler"
	"github.com/buymart/dealflow-api/internal/http/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "github.com/buymart/dealflow-api/docs" // Register swagger docs
)

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Deal         *handler.DealHandler
	Timeline     *handler.TimelineHandler
	Document     *handler.DocumentHandler
	Escrow       *handler.EscrowHandler
	Notification *handler.NotificationHandler
}

type Router struct {
	cfg            *config.Config
	logger         *zap.Logger
	db             *gorm.DB
	authMiddleware *auth.Middleware
	rateLimiter    *middleware.RateLimiter
	handlers       Handlers
}

func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	db *gorm.DB,
	authMiddleware *auth.Middleware,
	rateLimiter *middleware.RateLimiter,
	handlers Handlers,
) *Router {
	return &Router{
		cfg:            cfg,
		logger:         logger,
		db:             db,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
		handlers:       handlers,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (rt *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(rt.logger))
	r.Use(middleware.Logging(rt.logger))
	r.Use(middleware.SecurityHeaders(&rt.cfg.Security))
	r.Use(middleware.CORS(&rt.cfg.CORS, rt.cfg.App.Environment, rt.logger))
	r.Use(rt.rateLimiter.LimitByIP)

	// Health check (liveness)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Database health check (readiness, with pool stats)
	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		stats, err := database.HealthCheckWithStats(r.Context(), rt.db)
		if err != nil {
			rt.logger.Error("Database health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unhealthy",
				"error":   err.Error(),
				"service": "database",
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"service": "database",
			"stats": map[string]interface{}{
				"max_open_connections": stats.MaxOpenConnections,
				"open_connections":     stats.OpenConnections,
				"in_use":               stats.InUse,
				"idle":                 stats.Idle,
				"wait_count":           stats.WaitCount,
				"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
			},
		})
	})

	// Swagger documentation
	if rt.cfg.Server.EnableSwagger {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	h := rt.handlers

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rt.authMiddleware.Authenticate)
		r.Use(rt.rateLimiter.LimitByUser)

		r.Group(func(r chi.Router) {
			if timeout := rt.cfg.Server.RequestTimeoutDuration(); timeout > 0 {
				r.Use(chimw.Timeout(timeout))
			}

			// Deals
			r.Route("/deals", func(r chi.Router) {
				r.Get("/", h.Deal.List)
				r.Post("/", h.Deal.Create)
				r.Get("/active", h.Deal.Active)
				r.Get("/{id}", h.Deal.GetByID)
				r.Patch("/{id}", h.Deal.Update)
				r.Post("/{id}/transition", h.Deal.Transition)
				r.Get("/{id}/history", h.Deal.History)
				r.Get("/{id}/activities", h.Deal.Activities)

				// Timeline
				r.Get("/{id}/milestones", h.Timeline.ListMilestones)
				r.Get("/{id}/timeline", h.Timeline.GetTimeline)
				r.Post("/{id}/alerts/check", h.Timeline.CheckAlerts)

				// Documents
				r.Post("/{id}/documents", h.Document.Upload)
				r.Get("/{id}/documents", h.Document.List)
				r.Get("/{id}/documents/grouped", h.Document.Grouped)
				r.Get("/{id}/documents/completeness", h.Document.Completeness)

				// Escrow
				r.Post("/{id}/escrow", h.Escrow.Create)
				r.Get("/{id}/escrow", h.Escrow.GetByDeal)
			})

			r.Post("/milestones/{id}/complete", h.Timeline.CompleteMilestone)
			r.Get("/timeline/summary", h.Timeline.Summary)

			r.Patch("/documents/{id}", h.Document.Update)
			r.Delete("/documents/{id}", h.Document.Delete)

			r.Route("/escrow", func(r chi.Router) {
				r.Get("/payment-methods", h.Escrow.PaymentMethods)
				r.Post("/{id}/fund", h.Escrow.Fund)
				r.Post("/{id}/release", h.Escrow.Release)
				r.Post("/{id}/cancel", h.Escrow.Cancel)
				r.Post("/{id}/reconcile", h.Escrow.Reconcile)
				r.Get("/{id}/transactions", h.Escrow.Transactions)
			})

			// Notifications
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.Notification.List)
				r.Get("/unread-count", h.Notification.GetUnreadCount)
				r.Put("/read-all", h.Notification.MarkAllAsRead)
				r.Put("/{id}/read", h.Notification.MarkAsRead)
			})
		})

		// Streamed; only the server write timeout applies
		r.Get("/documents/{id}/download", h.Document.Download)
	})

	return r
}
