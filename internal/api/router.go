package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)

		// Adapter lifecycle
		r.Route("/adapter", func(r chi.Router) {
			r.Get("/", s.handleGetAdapter)
			r.Post("/power", s.handleAdapterPower)
		})

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{address}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/connect", s.handleConnectDevice)
				r.Post("/disconnect", s.handleDisconnectDevice)
				r.Get("/policies", s.handleGetPolicies)
				r.Put("/policies", s.handleSetPolicy)
				r.Get("/preferences", s.handleGetPreferences)
				r.Put("/preferences", s.handleSetPreferences)
			})
		})

		// Coordinated-set endpoints
		r.Route("/groups", func(r chi.Router) {
			r.Get("/", s.handleListGroups)
			r.Get("/{id}", s.handleGetGroup)
		})

		// Active-device routing
		r.Route("/active", func(r chi.Router) {
			r.Get("/", s.handleGetActive)
			r.Put("/", s.handleSetActive)
			r.Delete("/", s.handleClearActive)
			r.Post("/applied", s.handleActiveApplied)
		})

		// WebSocket event feed
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
