package webhook

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// EventHandler is a business callback invoked for a routed event
type EventHandler func(ctx context.Context, event Event) error

// Wildcard subscribes a handler to every event type
const Wildcard = "*"

/* Router dispatches parsed events to registered business handlers.
 * Uses pointer semantics as it's an API, not data.
 *
 * Handlers for one event run concurrently with no ordering guarantee;
 * Route waits for all of them and aggregates their failures, so a handler
 * that succeeded is never rolled back because a sibling failed.
 */
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	global   []EventHandler
	logger   zerolog.Logger
}

// NewRouter creates an empty router
func NewRouter(logger zerolog.Logger) *Router {
	return &Router{
		handlers: make(map[string][]EventHandler),
		logger:   logger.With().Str("component", "event-router").Logger(),
	}
}

// On registers a handler for an exact event type, or for every type when
// eventType is the wildcard "*"
func (r *Router) On(eventType string, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], handler)
}

// OnAll registers a global handler invoked before type-matched handlers
func (r *Router) OnAll(handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(r.global, handler)
}

// Off removes a previously registered handler for an event type
func (r *Router) Off(eventType string, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target := reflect.ValueOf(handler).Pointer()
	registered := r.handlers[eventType]
	for i, h := range registered {
		if reflect.ValueOf(h).Pointer() == target {
			r.handlers[eventType] = append(registered[:i], registered[i+1:]...)
			break
		}
	}
	if len(r.handlers[eventType]) == 0 {
		delete(r.handlers, eventType)
	}
}

// HandlerCount returns how many handlers would receive the given event type
func (r *Router) HandlerCount(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.global) + len(r.handlers[eventType]) + len(r.handlers[Wildcard])
}

/* Route fans the event out to the ordered union of global, exact-type, and
 * wildcard handlers, waits for all of them, and joins any failures into a
 * single error. An event with no matching handlers is a logged no-op, not
 * an error.
 */
func (r *Router) Route(ctx context.Context, event Event) error {
	r.mu.RLock()
	matched := make([]EventHandler, 0, len(r.global)+len(r.handlers[event.Type])+len(r.handlers[Wildcard]))
	matched = append(matched, r.global...)
	matched = append(matched, r.handlers[event.Type]...)
	if event.Type != Wildcard {
		matched = append(matched, r.handlers[Wildcard]...)
	}
	r.mu.RUnlock()

	if len(matched) == 0 {
		r.logger.Warn().
			Str("event_id", event.ID).
			Str("event_type", event.Type).
			Str("source", event.Source).
			Msg("No handlers registered for event")
		return nil
	}

	var wg sync.WaitGroup
	failures := make([]error, len(matched))
	for i, handler := range matched {
		wg.Add(1)
		go func(i int, handler EventHandler) {
			defer wg.Done()
			// a panicking handler must not take down its siblings
			defer func() {
				if rec := recover(); rec != nil {
					failures[i] = fmt.Errorf("handler %d panicked: %v", i, rec)
				}
			}()
			if err := handler(ctx, event); err != nil {
				failures[i] = fmt.Errorf("handler %d: %w", i, err)
			}
		}(i, handler)
	}
	wg.Wait()

	return errors.Join(failures...)
}
