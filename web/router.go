package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(h *Handlers, ws *WSHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(WithIdentity(h.auth))

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", h.Register)
		api.Post("/auth/login", h.Login)

		api.Route("/incidents", func(inc chi.Router) {
			inc.Get("/", h.ListIncidents)
			inc.Get("/nearby", h.NearbyIncidents)
			inc.Get("/search", h.SearchIncidents)
			inc.Get("/{id}", h.GetIncident)
			inc.Get("/{id}/messages", h.IncidentMessages)

			inc.Group(func(authed chi.Router) {
				authed.Use(RequireAuth)
				authed.Post("/", h.ReportIncident)
				authed.Post("/{id}/resolve", h.ResolveIncident)
			})
		})

		api.Group(func(authed chi.Router) {
			authed.Use(RequireAuth)
			authed.Get("/user/stats", h.UserStats)
		})

		api.Get("/health", h.Health)
	})

	r.Get("/ws", ws.HandleWebSocket)

	return r
}
