package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/therapy-session-scheduling/internal/appointment"
	"github.com/hackgods/therapy-session-scheduling/internal/consultation"
	"github.com/hackgods/therapy-session-scheduling/internal/scheduling"
	"github.com/hackgods/therapy-session-scheduling/internal/slot"
)

type RouterConfig struct {
	Engine        *scheduling.Engine
	Slots         *slot.Store
	Appointments  *appointment.Store
	Consultations *consultation.Recorder
	Postgres      Pinger
	Redis         Pinger
	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Slot endpoints
	r.Route("/therapists/{therapistID}/slots", func(r chi.Router) {
		r.Post("/", publishSlotsHandler(cfg.Slots))
		r.Get("/", listSlotsHandler(cfg.Slots))
		r.Get("/stream", slotStreamHandler(cfg.Slots))
		r.Delete("/{slotID}", deleteSlotHandler(cfg.Slots))
	})

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Engine))
	r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
	r.Patch("/appointments/{id}", updateAppointmentHandler(cfg.Engine))
	r.Post("/appointments/{id}/approve", transitionHandler(cfg.Engine, approveAction))
	r.Post("/appointments/{id}/decline", transitionHandler(cfg.Engine, declineAction))
	r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Engine, cancelAction))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Engine))
	r.Post("/appointments/{id}/meeting", regenerateMeetingHandler(cfg.Engine))

	// Consultation endpoints
	r.Get("/consultations", listConsultationsHandler(cfg.Consultations))
	r.Get("/consultations/{id}", getConsultationHandler(cfg.Consultations))

	// Per user streams
	r.Get("/users/{userID}/appointments/stream", appointmentStreamHandler(cfg.Appointments))
	r.Get("/users/{userID}/consultations/stream", consultationStreamHandler(cfg.Consultations))

	return r
}
