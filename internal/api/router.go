package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointments/internal/appointment"
	"github.com/hackgods/clinic-appointments/internal/auth"
	"github.com/hackgods/clinic-appointments/internal/metrics"
)

// AppointmentService is the part of *appointment.Service the handlers use.
type AppointmentService interface {
	Transition(ctx context.Context, id, doctorID uuid.UUID, target appointment.AppointmentStatus) (*appointment.Appointment, error)
	AdminCancel(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, f appointment.Filters) (appointment.QueryResult, error)
	ListDoctorAppointments(ctx context.Context, doctorID uuid.UUID, f appointment.Filters) (appointment.QueryResult, error)
	AdminDashboard(ctx context.Context, f appointment.Filters) (appointment.AdminDashboard, error)
	DoctorDashboard(ctx context.Context, doctorID uuid.UUID) (appointment.DoctorDashboard, error)
}

type RouterConfig struct {
	Service  AppointmentService
	Verifier TokenVerifier
	Logger   *zap.Logger
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
	Postgres Pinger
	Redis    Pinger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	log := cfg.Logger

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireRole(cfg.Verifier, auth.RoleAdmin))

		r.Get("/appointments", listAppointmentsHandler(cfg.Service, log))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service, log))
		r.Post("/appointments/{id}/cancel", adminCancelHandler(cfg.Service, log))
		r.Get("/dashboard", adminDashboardHandler(cfg.Service, log))
	})

	r.Route("/doctor", func(r chi.Router) {
		r.Use(RequireRole(cfg.Verifier, auth.RoleDoctor))

		r.Get("/appointments", doctorAppointmentsHandler(cfg.Service, log))
		r.Post("/appointments/{id}/complete", doctorTransitionHandler(cfg.Service, log, appointment.StatusCompleted))
		r.Post("/appointments/{id}/cancel", doctorTransitionHandler(cfg.Service, log, appointment.StatusCancelled))
		r.Get("/dashboard", doctorDashboardHandler(cfg.Service, log))
	})

	return r
}
