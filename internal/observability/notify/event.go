// Package notify defines the notification sink port and its payloads.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// GenerationEventPayload captures the canonical data emitted for generation
// lifecycle notifications (completions, failures, cancellations).
type GenerationEventPayload struct {
	JobID      string
	UserID     string
	Kind       string
	Step       string
	Provider   string
	Message    string
	ErrorClass string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming generation events.
type Sink interface {
	SendGenerationEvent(ctx context.Context, payload GenerationEventPayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload GenerationEventPayload) error

// SendGenerationEvent implements the Sink interface.
func (f SinkFunc) SendGenerationEvent(ctx context.Context, payload GenerationEventPayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}

// Fanout duplicates events across multiple sinks, returning the first error.
type Fanout []Sink

// SendGenerationEvent implements the Sink interface.
func (f Fanout) SendGenerationEvent(ctx context.Context, payload GenerationEventPayload) error {
	var firstErr error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.SendGenerationEvent(ctx, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
