package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hackgods/physio-scheduling/pkg/logging"
)

type RouterConfig struct {
	Service   Scheduler
	Health    *HealthHandler
	Metrics   http.Handler
	JWTSecret string
	Logger    *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Get("/availability", availabilityHandler(cfg.Service))

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", listBookingsHandler(cfg.Service))
			r.Post("/", createBookingHandler(cfg.Service))
			r.Get("/{id}", getBookingHandler(cfg.Service))
			r.Put("/{id}", updateBookingHandler(cfg.Service))
			r.Delete("/{id}", deleteBookingHandler(cfg.Service))
		})

		r.Route("/waiting-list", func(r chi.Router) {
			r.Get("/", listWaitingListHandler(cfg.Service))
			r.Post("/", addWaitingEntryHandler(cfg.Service))
			r.Delete("/{id}", removeWaitingEntryHandler(cfg.Service))
			r.Post("/{id}/promote", promoteWaitingEntryHandler(cfg.Service))
		})

		r.Get("/rooms", listRoomsHandler(cfg.Service))
		r.Post("/rooms", createRoomHandler(cfg.Service))

		r.Put("/admin/therapists/{id}/status", therapistStatusHandler(cfg.Service))
	})

	return r
}
