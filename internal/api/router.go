package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notify-svc/scheduler/internal/api/handler"
	apimw "github.com/notify-svc/scheduler/internal/api/middleware"
	"github.com/notify-svc/scheduler/internal/session"
	"github.com/notify-svc/scheduler/internal/store"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	s store.Store,
	sessions *session.Manager,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	ah := handler.NewAccountHandler(s, sessions, logger)
	nh := handler.NewNotificationHandler(s, logger)
	hh := handler.NewHealthHandler()

	requireSession := apimw.RequireSession(sessions)

	// --- routes ---
	r.Get("/health", hh.Health)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Post("/register", ah.Register)
	r.Post("/login", ah.Login)
	r.Get("/notification/{id}", nh.GetByID)

	r.Group(func(r chi.Router) {
		r.Use(requireSession)
		r.Post("/logout", ah.Logout)
		r.Get("/user", ah.User)
		r.Post("/notifications", nh.Create)
	})

	return r
}
