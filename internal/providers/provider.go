// Package providers contains the adapters for external video generation
// vendors. Each vendor is exposed through the same Provider interface so the
// router can treat them uniformly.
package providers

import (
	"context"

	"github.com/talkingphoto/pipeline/internal/domain/model"
)

// RenderState is the normalized lifecycle state of a vendor render.
type RenderState string

const (
	// RenderQueued means the vendor accepted the job but has not started.
	RenderQueued RenderState = "queued"
	// RenderProcessing means the vendor is rendering.
	RenderProcessing RenderState = "processing"
	// RenderSucceeded means the result is ready to fetch.
	RenderSucceeded RenderState = "succeeded"
	// RenderFailed means the vendor gave up on the job.
	RenderFailed RenderState = "failed"
)

// Terminal reports whether the state ends the render.
func (s RenderState) Terminal() bool {
	return s == RenderSucceeded || s == RenderFailed
}

// Descriptor carries the routing-relevant characteristics of a provider.
// Cost is credits per second of output video; quality is a 0-10 score;
// latency is the observed average wall time for a standard render.
type Descriptor struct {
	Name              string  `json:"name"`
	CostPerSecond     float64 `json:"cost_per_second"`
	QualityScore      float64 `json:"quality_score"`
	AvgLatencySeconds float64 `json:"avg_latency_seconds"`
}

// CostFor returns the credit cost of a render of the given duration.
func (d Descriptor) CostFor(durationSeconds float64) float64 {
	return d.CostPerSecond * durationSeconds
}

// SubmitRequest is the vendor-neutral render submission.
type SubmitRequest struct {
	JobID           string
	SourceFileID    string
	ScriptText      string
	VoiceSettings   model.VoiceSettings
	DurationSeconds float64
	Quality         model.QualityTier
	AspectRatio     model.AspectRatio
}

// RenderStatus is one normalized status snapshot from a vendor.
type RenderStatus struct {
	State     RenderState
	Percent   float64
	ResultURL string
	Detail    string
	Quality   model.QualityMetrics
}

// Provider is the uniform adapter surface for one video generation vendor.
type Provider interface {
	// Descriptor returns the static routing characteristics.
	Descriptor() Descriptor
	// Submit starts a render and returns the vendor's job id. Errors are
	// apperrors with codes the classifier understands (rate_limited,
	// payment_required, payload_too_large, unavailable, timeout).
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// Status fetches the current state of a previously submitted render.
	Status(ctx context.Context, providerJobID string) (*RenderStatus, error)
}
