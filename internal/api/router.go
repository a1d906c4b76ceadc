package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(requestLogger(s.logger))
	r.Use(recoverer(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/alert", func(r chi.Router) {
			r.Post("/", s.receiveAlert)
			r.Get("/{id}", s.getAlert)
			r.Delete("/{id}", s.deleteAlert)
			r.Put("/{id}/status", s.setAlertStatus)
			r.Put("/{id}/action", s.actionAlert)
			r.Put("/{id}/tag", s.tagAlert)
			r.Put("/{id}/untag", s.untagAlert)
			r.Put("/{id}/attributes", s.updateAlertAttributes)
		})
		r.Get("/alerts", s.listAlerts)

		r.Route("/notificationrules", func(r chi.Router) {
			r.Post("/", s.createNotificationRule)
			r.Get("/", s.listNotificationRules)
			r.Get("/{id}", s.getNotificationRule)
			r.Put("/{id}", s.updateNotificationRule)
			r.Delete("/{id}", s.deleteNotificationRule)
		})

		r.Route("/escalationrules", func(r chi.Router) {
			r.Post("/", s.createEscalationRule)
			r.Get("/", s.listEscalationRules)
			r.Get("/{id}", s.getEscalationRule)
			r.Put("/{id}", s.updateEscalationRule)
			r.Delete("/{id}", s.deleteEscalationRule)
		})

		r.Route("/oncalls", func(r chi.Router) {
			r.Post("/", s.createOnCall)
			r.Get("/", s.listOnCalls)
			r.Get("/active", s.listActiveOnCallUsers)
			r.Get("/{id}", s.getOnCall)
			r.Put("/{id}", s.updateOnCall)
			r.Delete("/{id}", s.deleteOnCall)
		})

		r.Route("/blackouts", func(r chi.Router) {
			r.Post("/", s.createBlackout)
			r.Get("/", s.listBlackouts)
			r.Delete("/{id}", s.deleteBlackout)
		})

		r.Route("/groups", func(r chi.Router) {
			r.Get("/{id}/users", s.listGroupMembers)
			r.Put("/{id}/users", s.addGroupMember)
			r.Delete("/{id}/users/{userId}", s.removeGroupMember)
		})

		r.Get("/heartbeats", s.listHeartbeats)
	})

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
