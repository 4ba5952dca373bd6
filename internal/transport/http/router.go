package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"naturewatch/internal/platform/middleware"
)

// HealthChecker reports backend liveness for the health endpoint.
type HealthChecker func() error

// NewRouter assembles the full route tree: public health and metrics, plus the
// authenticated trust-engine API.
func NewRouter(
	h *Handler,
	validator middleware.TokenValidator,
	logger *slog.Logger,
	health HealthChecker,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	r.Get("/healthz", handleHealth(health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))

		r.Post("/observations", h.HandleSubmitObservation)
		r.Post("/observations/sync", h.HandleSyncObservations)
		r.Get("/observations/{id}", h.HandleGetObservation)
		r.Post("/observations/{id}/resolve", h.HandleResolveConflict)
		r.Post("/observations/{id}/verifications", h.HandleSubmitVerification)
		r.Post("/observations/{id}/disputes", h.HandleRaiseDispute)
		r.Post("/observations/{id}/refresh", h.HandleRefreshObservation)

		r.Get("/disputes/{id}", h.HandleGetDispute)
		r.Post("/disputes/{id}/votes", h.HandleCastVote)

		r.Get("/users/{id}/credibility", h.HandleGetCredibility)
		r.Get("/users/{id}/credibility/suggestions", h.HandleGetSuggestions)
	})

	return r
}

func handleHealth(check HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"degraded"}`))
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}
