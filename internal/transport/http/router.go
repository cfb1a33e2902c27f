// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services; the interesting behavior on the chat path is the rate limit
// middleware in front of it.
package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ratelimitmw "quotagate/internal/ratelimit/middleware"
)

// NewRouter wires the public endpoints. The chat completion path is guarded
// by the rate limiter; health and metrics are not.
func NewRouter(h *Handler, limiter *ratelimitmw.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(limiter.RateLimit)
		r.Post("/v1/chat/completions", h.handleChatCompletion)
	})

	return r
}
