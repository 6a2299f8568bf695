// Package events routes inbound push messages to registered handlers by
// their type tag.
package events

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"dashboard_sync/internal/core"
	"dashboard_sync/pkg/telemetry"
)

// Handler consumes one inbound message. Handlers receive their own copy of
// the payload bytes and run sequentially in registration order.
type Handler func(msg core.InboundMessage)

type registration struct {
	name string
	fn   Handler
}

// Router is a tagged-dispatch table: event type → ordered handler list.
type Router struct {
	logger  core.ILogger
	metrics *telemetry.MetricsHolder

	mu       sync.RWMutex
	handlers map[string][]registration
}

// NewRouter creates an empty router
func NewRouter(logger core.ILogger) *Router {
	return &Router{
		logger:   logger.WithField("component", "event_router"),
		metrics:  telemetry.GetGlobalMetrics(),
		handlers: make(map[string][]registration),
	}
}

// Register adds a named handler for an event type. Registration is additive
// and idempotent per (type, name): re-registering an existing name keeps its
// original position in the invocation order.
func (r *Router) Register(eventType, name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, reg := range r.handlers[eventType] {
		if reg.name == name {
			r.logger.Debug("handler already registered", "type", eventType, "handler", name)
			return
		}
	}
	r.handlers[eventType] = append(r.handlers[eventType], registration{name: name, fn: fn})
}

// Unregister removes the named handler for an event type. Unknown names are
// a no-op.
func (r *Router) Unregister(eventType, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.handlers[eventType]
	for i, reg := range regs {
		if reg.name == name {
			r.handlers[eventType] = append(regs[:i:i], regs[i+1:]...)
			return
		}
	}
}

// HandlerCount returns the number of handlers registered for an event type
func (r *Router) HandlerCount(eventType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[eventType])
}

// Dispatch invokes every handler registered for msg.Type in registration
// order. A panicking handler is recovered and logged; the remaining handlers
// for the same message still run. Messages with no registered handler hit a
// log path instead of vanishing.
func (r *Router) Dispatch(msg core.InboundMessage) {
	start := time.Now()

	r.mu.RLock()
	regs := make([]registration, len(r.handlers[msg.Type]))
	copy(regs, r.handlers[msg.Type])
	r.mu.RUnlock()

	if len(regs) == 0 {
		r.logger.Warn("unhandled message type", "type", msg.Type)
		return
	}

	for _, reg := range regs {
		r.invoke(reg, msg.Clone())
	}

	if r.metrics.DispatchLatency != nil {
		r.metrics.DispatchLatency.Record(context.Background(), time.Since(start).Seconds())
	}
}

func (r *Router) invoke(reg registration, msg core.InboundMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.metrics.HandlerPanics != nil {
				r.metrics.HandlerPanics.Add(context.Background(), 1)
			}
			r.logger.Error("handler panicked",
				"type", msg.Type,
				"handler", reg.name,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()
	reg.fn(msg)
}
