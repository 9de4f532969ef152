package delivery

import (
	"context"
	"time"
)

// Event is the payload delivered to handlers.
type Event struct {
	ID         string                 `json:"id"`
	Topic      string                 `json:"topic"`
	Time       time.Time              `json:"time"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Handler receives events.
type Handler interface {
	// Name identifies the handler in logs, metrics and timeout exemptions.
	// Dotted names ("pkg.Type") take part in package matching.
	Name() string
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	name string
	fn   func(ctx context.Context, event Event) error
}

// NewHandlerFunc returns a Handler named name that calls fn.
func NewHandlerFunc(name string, fn func(ctx context.Context, event Event) error) *HandlerFunc {
	return &HandlerFunc{name: name, fn: fn}
}

// Name implements Handler.
func (h *HandlerFunc) Name() string { return h.name }

// Handle implements Handler.
func (h *HandlerFunc) Handle(ctx context.Context, event Event) error {
	return h.fn(ctx, event)
}
