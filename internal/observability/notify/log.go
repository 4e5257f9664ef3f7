package notify

import (
	"context"
	"log/slog"

	"github.com/talkingphoto/pipeline/internal/core"
)

// LogSink writes generation events to the structured log. It is the default
// sink when no webhook is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "notify_log_sink")}
}

// SendGenerationEvent implements the Sink interface.
func (s *LogSink) SendGenerationEvent(ctx context.Context, payload GenerationEventPayload) error {
	s.logger.InfoContext(ctx, "generation event",
		"kind", payload.Kind,
		"job_id", payload.JobID,
		"user_id", payload.UserID,
		"step", payload.Step,
		"provider", payload.Provider,
		"severity", payload.Severity,
		"message", payload.Message,
	)
	return nil
}

// UserNotifier adapts a Sink to the core.UserNotifier port so the recovery
// engine and orchestrator can dispatch user-facing messages through whatever
// sinks are configured.
type UserNotifier struct {
	sink  Sink
	clock core.Clock
}

// NewUserNotifier constructs a UserNotifier over the given sink.
func NewUserNotifier(sink Sink, clock core.Clock) *UserNotifier {
	return &UserNotifier{sink: sink, clock: clock}
}

// Notify implements core.UserNotifier.
func (n *UserNotifier) Notify(ctx context.Context, un core.UserNotification) error {
	if n == nil || n.sink == nil {
		return nil
	}
	payload := GenerationEventPayload{
		JobID:    un.JobID,
		UserID:   un.UserID,
		Kind:     un.Kind,
		Message:  un.Message,
		Severity: SeverityInfo,
	}
	if n.clock != nil {
		payload.OccurredAt = n.clock.Now()
	}
	return n.sink.SendGenerationEvent(ctx, payload)
}
