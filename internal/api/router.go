package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
)

type RouterConfig struct {
	Service  *appointment.Service
	Tokens   *auth.TokenService
	Logger   *zap.Logger
	Postgres Pinger
	Redis    Pinger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/appointments", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Post("/", createAppointmentHandler(cfg.Service))
		r.Get("/", listAppointmentsHandler(cfg.Service))

		r.Get("/available-slots/{clinicId}", availableSlotsHandler(cfg.Service))
		r.Get("/stats", statsHandler(cfg.Service))
		r.Get("/calendar", calendarHandler(cfg.Service))

		r.Get("/{id}", getAppointmentHandler(cfg.Service))
		r.Patch("/{id}", updateAppointmentHandler(cfg.Service))
		r.Delete("/{id}", cancelAppointmentHandler(cfg.Service))
		r.Patch("/{id}/status", updateStatusHandler(cfg.Service))
		r.Patch("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Service))
	})

	return r
}
