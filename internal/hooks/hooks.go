// Package hooks fans workflow lifecycle events out to observers such as
// metrics, the gateway event stream and IRC notices.
package hooks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/leadreach/internal/logging"
)

// Event names for the hook system.
const (
	EventRunStarted      = "run_started"
	EventStepCommitted   = "step_committed"
	EventToolExecuted    = "tool_executed"
	EventReviewRequested = "review_requested"
	EventEmailSent       = "email_sent"
	EventRunCompleted    = "run_completed"
	EventRunFailed       = "run_failed"
	EventGatewayStart    = "gateway_start"
	EventGatewayStop     = "gateway_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventRunStarted,
	EventStepCommitted,
	EventToolExecuted,
	EventReviewRequested,
	EventEmailSent,
	EventRunCompleted,
	EventRunFailed,
	EventGatewayStart,
	EventGatewayStop,
}

// Payload carries event data to hook handlers.
type Payload struct {
	Event string         `json:"event"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// ThreadID returns the conversation the event belongs to, if any.
func (p Payload) ThreadID() string {
	id, _ := p.Data["threadId"].(string)
	return id
}

// Handler is a function that handles a hook event.
// Returning an error logs the failure but does not stop processing.
type Handler func(ctx context.Context, p Payload) error

// Manager dispatches lifecycle events to named handlers. A failing or
// panicking handler never affects the workflow step that emitted the event.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	inflight sync.WaitGroup
	log      *logging.Logger
}

type namedHandler struct {
	name    string
	handler Handler
	async   bool
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
	}
}

// On registers a handler for the given event.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// OnAsync registers a handler that Emit runs on its own goroutine, for
// observers that talk to the network. Wait blocks until they finish.
func (m *Manager) OnAsync(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler, async: true})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("async hook registered")
}

// OnAll registers handler for every event in AllEvents.
func (m *Manager) OnAll(name string, handler Handler) {
	for _, event := range AllEvents {
		m.On(event, name, handler)
	}
}

// Off removes all handlers with the given name from the event.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.handlers[event]
	filtered := make([]namedHandler, 0, len(handlers))
	for _, h := range handlers {
		if h.name != name {
			filtered = append(filtered, h)
		}
	}
	m.handlers[event] = filtered
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]namedHandler(nil), m.handlers[event]...)
}

// call runs one handler, converting a panic into a logged error.
func (m *Manager) call(ctx context.Context, h namedHandler, p Payload) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().
				Str("event", p.Event).
				Str("handler", h.name).
				Interface("panic", r).
				Msg("hook handler panicked")
		}
	}()
	if err := h.handler(ctx, p); err != nil {
		m.log.Warn().
			Err(err).
			Str("event", p.Event).
			Str("handler", h.name).
			Str("thread", p.ThreadID()).
			Msg("hook handler error")
	}
}

// Emit dispatches an event to all registered handlers. Synchronous handlers
// run in registration order before Emit returns; async handlers are started
// detached from ctx cancellation.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, At: time.Now().UTC(), Data: data}
	for _, h := range handlers {
		if !h.async {
			m.call(ctx, h, p)
			continue
		}
		m.inflight.Add(1)
		go func(h namedHandler) {
			defer m.inflight.Done()
			m.call(context.WithoutCancel(ctx), h, p)
		}(h)
	}
}

// Wait blocks until every async handler started so far has returned.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Count returns the number of handlers registered for an event.
func (m *Manager) Count(event string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events that have at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}
