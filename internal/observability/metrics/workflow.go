// Package metrics provides helpers for emitting workflow lifecycle metrics.
package metrics

import (
	"time"

	obserrors "github.com/talkingphoto/pipeline/internal/observability/errors"
	"github.com/talkingphoto/pipeline/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// StepMetric captures details about one workflow step execution.
type StepMetric struct {
	Step     string
	Provider string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitWorkflowStep emits standardised per-step metrics.
func EmitWorkflowStep(sink statsd.Sink, in StepMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"step":   in.Step,
		"result": in.Result,
	}
	if in.Provider != "" {
		tags["provider"] = in.Provider
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("workflow.step", 1, tags)
	if in.Duration > 0 {
		sink.Timing("workflow.step_duration", in.Duration, CloneTags(tags))
	}
}

// WorkflowMetric captures the terminal outcome of a whole workflow.
type WorkflowMetric struct {
	Status       string
	Provider     string
	FallbackUsed bool
	Duration     time.Duration
}

// EmitWorkflowOutcome emits metrics for a finished workflow.
func EmitWorkflowOutcome(sink statsd.Sink, in WorkflowMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"status": in.Status,
	}
	if in.Provider != "" {
		tags["provider"] = in.Provider
	}
	if in.FallbackUsed {
		tags["fallback"] = "true"
	}
	sink.Count("workflow.completed", 1, tags)
	if in.Duration > 0 {
		sink.Timing("workflow.duration", in.Duration, CloneTags(tags))
	}
}

// RecoveryMetric captures one recovery engine decision.
type RecoveryMetric struct {
	Category  string
	Action    string
	Recovered bool
}

// EmitRecovery emits metrics for a recovery attempt.
func EmitRecovery(sink statsd.Sink, in RecoveryMetric) {
	if sink == nil {
		return
	}
	result := ResultError
	if in.Recovered {
		result = ResultSuccess
	}
	sink.Count("recovery.handled", 1, map[string]string{
		"category": in.Category,
		"action":   in.Action,
		"result":   result,
	})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty maps.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
