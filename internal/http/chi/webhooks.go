package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/marcelsud/webhook-pipeline/idempotency"
	"github.com/marcelsud/webhook-pipeline/retry"
	"github.com/marcelsud/webhook-pipeline/webhook"
)

/* HTTP layer DTOs for the pipeline API
 * Separate from domain entities to avoid leaking internal structure
 */

// eventResponse represents the outcome of one webhook delivery
type eventResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Duplicate bool   `json:"duplicate,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	FromCache bool   `json:"from_cache,omitempty"`
}

// retryEntryResponse represents a retry entry in the API
type retryEntryResponse struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"max_attempts"`
	LastError     string    `json:"last_error,omitempty"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	CreatedAt     time.Time `json:"created_at"`
	Status        string    `json:"status"`
}

func toRetryEntryResponse(entry retry.Entry) retryEntryResponse {
	return retryEntryResponse{
		ID:            entry.ID,
		Source:        entry.Source,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		Attempts:      entry.Attempts,
		MaxAttempts:   entry.MaxAttempts,
		LastError:     entry.LastError,
		NextAttemptAt: entry.NextAttemptAt,
		CreatedAt:     entry.CreatedAt,
		Status:        entry.Status.String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// postEvent handles POST /v1/sources/:source/events
func postEvent(pipeline *webhook.Handler, idem *idempotency.Middleware) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		if source == "" {
			http.Error(w, "source is required", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		headers := make(map[string]string)
		for key, values := range r.Header {
			if len(values) > 0 {
				headers[key] = values[0]
			}
		}

		// An explicit idempotency key routes the call through the generic
		// dedup wrap; webhook deliveries without one rely on the handler's
		// own source:event_id log.
		callerKey := r.Header.Get("idempotency-key")
		if callerKey == "" {
			callerKey = r.Header.Get("x-idempotency-key")
		}
		if callerKey != "" && idem != nil {
			handleWrapped(w, r, pipeline, idem, callerKey, source, body, headers)
			return
		}

		result := pipeline.HandleRequest(r.Context(), source, body, headers)
		writeJSON(w, result.StatusCode, toEventResponse(result, false))
	})
}

func handleWrapped(w http.ResponseWriter, r *http.Request, pipeline *webhook.Handler,
	idem *idempotency.Middleware, callerKey, source string, body []byte, headers map[string]string) {

	key := idem.GenerateKey(source, callerKey)

	var result webhook.Result
	wrapped, err := idem.Wrap(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		result = pipeline.HandleRequest(ctx, source, body, headers)
		return json.Marshal(result)
	})
	if err != nil {
		if errors.Is(err, idempotency.ErrLockContention) {
			writeJSON(w, http.StatusConflict, eventResponse{
				Message:   "Operation already in progress",
				Retryable: true,
			})
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if wrapped.FromCache {
		if err := json.Unmarshal(wrapped.Result, &result); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, result.StatusCode, toEventResponse(result, wrapped.FromCache))
}

func toEventResponse(result webhook.Result, fromCache bool) eventResponse {
	return eventResponse{
		Success:   result.Success,
		Message:   result.Message,
		Retryable: result.Retryable,
		Duplicate: result.Duplicate,
		EventID:   result.EventID,
		FromCache: fromCache,
	}
}

// getSources handles GET /v1/sources
func getSources(pipeline *webhook.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{"sources": pipeline.Sources()})
	})
}

// getRetryStats handles GET /v1/retries/stats
func getRetryStats(manager *retry.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := manager.Stats(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})
}

// getDeadLetters handles GET /v1/dead-letters
func getDeadLetters(manager *retry.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries, err := manager.DeadLetters(r.Context(), 100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		responses := make([]retryEntryResponse, 0, len(entries))
		for _, entry := range entries {
			responses = append(responses, toRetryEntryResponse(entry))
		}
		writeJSON(w, http.StatusOK, responses)
	})
}

// postReprocess handles POST /v1/dead-letters/:id/reprocess
func postReprocess(manager *retry.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "id is required", http.StatusBadRequest)
			return
		}

		entry, err := manager.ReprocessDeadLetter(r.Context(), id)
		if err != nil {
			if errors.Is(err, retry.ErrNotFound) {
				http.Error(w, "dead-letter entry not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toRetryEntryResponse(entry))
	})
}
