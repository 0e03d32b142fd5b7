package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-pipeline/idempotency"
	"github.com/marcelsud/webhook-pipeline/retry"
	"github.com/marcelsud/webhook-pipeline/webhook"
)

// WebhookHandlers sets up the pipeline API routes. The metricsHandler is
// optional; pass nil to skip exposing /metrics.
func WebhookHandlers(ctx context.Context, pipeline *webhook.Handler, manager *retry.Manager,
	idem *idempotency.Middleware, metricsHandler http.Handler) *chi.Mux {

	logger := httplog.NewLogger("webhook-pipeline", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	// Pipeline API routes
	r.Route("/v1", func(r chi.Router) {
		// List registered sources
		r.Get("/sources", getSources(pipeline).ServeHTTP)

		// Ingest an event for a source
		r.Post("/sources/{source}/events", postEvent(pipeline, idem).ServeHTTP)

		// Operator tooling over the retry pipeline
		r.Get("/retries/stats", getRetryStats(manager).ServeHTTP)
		r.Get("/dead-letters", getDeadLetters(manager).ServeHTTP)
		r.Post("/dead-letters/{id}/reprocess", postReprocess(manager).ServeHTTP)
	})

	return r
}
