package webhook

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/marcelsud/webhook-pipeline/retry"
	"github.com/marcelsud/webhook-pipeline/webhook/signature"
	"github.com/rs/zerolog"
)

// defaultDedupCap bounds the per-source:event dedup log
const defaultDedupCap = 10_000

/* SourceConfig describes one registered webhook source
 * Uses value semantics as it represents data, not behavior
 */
type SourceConfig struct {
	Source        string
	Secret        string
	Verifier      signature.Verifier
	Enabled       bool
	AllowedEvents []string
	Metadata      map[string]string
}

// AllowsEvent reports whether the source routes the given event type.
// An empty allow-list permits everything; entries ending in ".*" match
// any type sharing the prefix.
func (c SourceConfig) AllowsEvent(eventType string) bool {
	if len(c.AllowedEvents) == 0 {
		return true
	}
	for _, allowed := range c.AllowedEvents {
		if allowed == eventType || allowed == Wildcard {
			return true
		}
		if prefix, ok := strings.CutSuffix(allowed, ".*"); ok &&
			strings.HasPrefix(eventType, prefix+".") {
			return true
		}
	}
	return false
}

/* Handler orchestrates the receive, verify, parse, dedup, route, record
 * protocol for every registered source.
 * Uses pointer semantics as it's an API, not data.
 */
type Handler struct {
	router *Router
	logger zerolog.Logger

	mu      sync.RWMutex
	sources map[string]SourceConfig

	dedupMu    sync.Mutex
	dedupCap   int
	dedupOrder *list.List
	dedup      map[string]*list.Element

	retries *retry.Manager
}

type dedupRecord struct {
	key    string
	result Result
}

// NewHandler creates a handler dispatching through the given router
func NewHandler(router *Router, logger zerolog.Logger) *Handler {
	return &Handler{
		router:     router,
		logger:     logger.With().Str("component", "webhook-handler").Logger(),
		sources:    make(map[string]SourceConfig),
		dedupCap:   defaultDedupCap,
		dedupOrder: list.New(),
		dedup:      make(map[string]*list.Element),
	}
}

// Router exposes the underlying event router for handler registration
func (h *Handler) Router() *Router {
	return h.router
}

// AttachRetryManager enables out-of-band reprocessing of routing failures
func (h *Handler) AttachRetryManager(manager *retry.Manager) {
	h.retries = manager
}

// RegisterSource adds or replaces a source configuration
func (h *Handler) RegisterSource(config SourceConfig) error {
	if config.Source == "" {
		return fmt.Errorf("validating source config: source name is required")
	}
	if config.Secret != "" && config.Verifier == nil {
		config.Verifier = signature.New("")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sources[config.Source] = config
	return nil
}

// RemoveSource deletes a source configuration
func (h *Handler) RemoveSource(source string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sources, source)
}

// Sources lists the registered source names
func (h *Handler) Sources() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.sources))
	for name := range h.sources {
		names = append(names, name)
	}
	return names
}

/* HandleRequest runs the end-to-end protocol for one delivery. Every
 * outcome is a structured Result; config, signature, and parse problems
 * never propagate as errors past this boundary, and a routing failure is
 * recorded so provider redeliveries of the same event get the cached
 * outcome instead of a second handler invocation.
 */
func (h *Handler) HandleRequest(ctx context.Context, source string, rawBody []byte, headers map[string]string) (result Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().
				Str("source", source).
				Interface("panic", r).
				Msg("Recovered panic while handling webhook")
			result = h.finish(start, Result{
				StatusCode: 500,
				Message:    "Internal error",
				Retryable:  true,
			})
		}
	}()

	headers = lowercaseHeaders(headers)

	h.mu.RLock()
	config, known := h.sources[source]
	h.mu.RUnlock()

	if !known {
		return h.finish(start, Result{
			StatusCode: 404,
			Message:    fmt.Sprintf("Unknown webhook source: %s", source),
		})
	}
	if !config.Enabled {
		return h.finish(start, Result{
			StatusCode: 503,
			Message:    fmt.Sprintf("Webhook source is disabled: %s", source),
			Retryable:  true,
		})
	}

	if config.Secret != "" {
		sig := headers[config.Verifier.HeaderName()]
		if sig == "" {
			return h.finish(start, Result{
				StatusCode: 401,
				Message:    "Missing signature",
			})
		}
		if !config.Verifier.Verify(rawBody, sig, config.Secret) {
			h.logger.Warn().
				Str("source", source).
				Msg("Webhook signature verification failed")
			return h.finish(start, Result{
				StatusCode: 401,
				Message:    "Invalid signature",
			})
		}
	}

	event, err := ParseEvent(source, rawBody)
	if err != nil {
		return h.finish(start, Result{
			StatusCode: 400,
			Message:    "Malformed webhook payload",
		})
	}

	if !config.AllowsEvent(event.Type) {
		h.logger.Debug().
			Str("source", source).
			Str("event_type", event.Type).
			Msg("Event type not in allow-list, acknowledging without routing")
		return h.finish(start, Result{
			Success:    true,
			StatusCode: 200,
			Message:    fmt.Sprintf("Event type not handled: %s", event.Type),
			EventID:    event.ID,
		})
	}

	dedupKey := source + ":" + event.ID
	if cached, seen := h.lookupDedup(dedupKey); seen {
		cached.Duplicate = true
		cached.Message = "Duplicate event: " + event.ID
		return h.finish(start, cached)
	}

	if err := h.router.Route(ctx, event); err != nil {
		h.logger.Error().
			Err(err).
			Str("source", source).
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Dur("duration", time.Since(start)).
			Msg("Webhook routing failed")
		h.scheduleRetry(ctx, event, rawBody, err)
		failed := Result{
			StatusCode: 500,
			Message:    "Handler execution failed",
			Retryable:  true,
			EventID:    event.ID,
		}
		h.recordDedup(dedupKey, failed)
		return h.finish(start, failed)
	}

	succeeded := Result{
		Success:    true,
		StatusCode: 200,
		Message:    "Webhook processed",
		EventID:    event.ID,
	}
	h.recordDedup(dedupKey, succeeded)
	h.logger.Info().
		Str("source", source).
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Dur("duration", time.Since(start)).
		Msg("Webhook processed")
	return h.finish(start, succeeded)
}

func (h *Handler) finish(start time.Time, result Result) Result {
	result.ProcessingTime = time.Since(start)
	return result
}

func (h *Handler) scheduleRetry(ctx context.Context, event Event, rawBody []byte, cause error) {
	if h.retries == nil {
		return
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		payload = rawBody
	}
	if _, err := h.retries.ScheduleRetry(ctx, event.Source, event.ID, event.Type, payload, cause, 0); err != nil {
		h.logger.Error().
			Err(err).
			Str("event_id", event.ID).
			Msg("Failed to schedule webhook retry")
	}
}

func (h *Handler) lookupDedup(key string) (Result, bool) {
	h.dedupMu.Lock()
	defer h.dedupMu.Unlock()
	element, ok := h.dedup[key]
	if !ok {
		return Result{}, false
	}
	h.dedupOrder.MoveToFront(element)
	return element.Value.(dedupRecord).result, true
}

func (h *Handler) recordDedup(key string, result Result) {
	h.dedupMu.Lock()
	defer h.dedupMu.Unlock()
	if element, ok := h.dedup[key]; ok {
		element.Value = dedupRecord{key: key, result: result}
		h.dedupOrder.MoveToFront(element)
		return
	}
	h.dedup[key] = h.dedupOrder.PushFront(dedupRecord{key: key, result: result})
	for h.dedupOrder.Len() > h.dedupCap {
		oldest := h.dedupOrder.Back()
		h.dedupOrder.Remove(oldest)
		delete(h.dedup, oldest.Value.(dedupRecord).key)
	}
}

func lowercaseHeaders(headers map[string]string) map[string]string {
	lowered := make(map[string]string, len(headers))
	for name, value := range headers {
		lowered[strings.ToLower(name)] = value
	}
	return lowered
}
