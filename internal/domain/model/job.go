// Package model defines the core data types for the video generation pipeline.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// QualityTier represents the requested output quality for a generation.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type QualityTier string

// AspectRatio represents the requested output aspect ratio.
type AspectRatio string

// GenerationStep represents one stage of the generation workflow.
type GenerationStep string

// JobStatus represents the current status of a generation job.
type JobStatus string

const (
	// QualityEconomy selects the cheapest acceptable output.
	QualityEconomy QualityTier = "economy"
	// QualityStandard is the default quality tier.
	QualityStandard QualityTier = "standard"
	// QualityPremium selects the highest quality output.
	QualityPremium QualityTier = "premium"

	// AspectLandscape is 16:9.
	AspectLandscape AspectRatio = "16:9"
	// AspectPortrait is 9:16.
	AspectPortrait AspectRatio = "9:16"
	// AspectSquare is 1:1.
	AspectSquare AspectRatio = "1:1"

	// StepValidation validates inputs and credit balance.
	StepValidation GenerationStep = "validation"
	// StepPhotoEnhancement improves the source photo when needed.
	StepPhotoEnhancement GenerationStep = "photo_enhancement"
	// StepSpeechSynthesis produces the narration audio from the script.
	StepSpeechSynthesis GenerationStep = "speech_synthesis"
	// StepLipSyncProcessing aligns mouth movement with the audio track.
	StepLipSyncProcessing GenerationStep = "lipsync_processing"
	// StepVideoGeneration is the main provider-backed rendering stage.
	StepVideoGeneration GenerationStep = "video_generation"
	// StepPostProcessing covers thumbnailing and output checks.
	StepPostProcessing GenerationStep = "post_processing"
	// StepStorageUpload finalizes the artifact in durable storage.
	StepStorageUpload GenerationStep = "storage_upload"
	// StepCompletion records final accounting and notifications.
	StepCompletion GenerationStep = "completion"

	// StatusPending indicates a job is waiting to be processed.
	StatusPending JobStatus = "pending"
	// StatusProcessing indicates a job is currently being processed.
	StatusProcessing JobStatus = "processing"
	// StatusCompleted indicates a job finished successfully.
	StatusCompleted JobStatus = "completed"
	// StatusFailed indicates a job failed after recovery was exhausted.
	StatusFailed JobStatus = "failed"
	// StatusCancelled indicates a job was cancelled by the user or recovery.
	StatusCancelled JobStatus = "cancelled"
)

// Steps lists the workflow steps in execution order.
var Steps = []GenerationStep{
	StepValidation,
	StepPhotoEnhancement,
	StepSpeechSynthesis,
	StepLipSyncProcessing,
	StepVideoGeneration,
	StepPostProcessing,
	StepStorageUpload,
	StepCompletion,
}

// StepWeights maps each step to its fixed contribution to overall progress.
// The weights sum to 100.
var StepWeights = map[GenerationStep]int{
	StepValidation:        5,
	StepPhotoEnhancement:  15,
	StepSpeechSynthesis:   10,
	StepLipSyncProcessing: 15,
	StepVideoGeneration:   40,
	StepPostProcessing:    10,
	StepStorageUpload:     3,
	StepCompletion:        2,
}

// ErrNoJobsAvailable is returned when no jobs are available for reservation.
var ErrNoJobsAvailable = errors.New("no jobs available")

// UnmarshalText implements encoding.TextUnmarshaler for QualityTier to allow env parsing.
func (q *QualityTier) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	qt := QualityTier(v)
	if qt.Valid() {
		*q = qt
		return nil
	}
	return fmt.Errorf("invalid QualityTier: %q", v)
}

// Valid returns true if the QualityTier is valid.
func (q QualityTier) Valid() bool {
	return q == QualityEconomy || q == QualityStandard || q == QualityPremium
}

// Downgrade returns the next lower tier and true, or the same tier and false
// when already at the bottom.
func (q QualityTier) Downgrade() (QualityTier, bool) {
	switch q {
	case QualityPremium:
		return QualityStandard, true
	case QualityStandard:
		return QualityEconomy, true
	default:
		return q, false
	}
}

// Valid returns true if the AspectRatio is valid.
func (a AspectRatio) Valid() bool {
	return a == AspectLandscape || a == AspectPortrait || a == AspectSquare
}

// Valid returns true if the GenerationStep is valid.
func (s GenerationStep) Valid() bool {
	for _, step := range Steps {
		if step == s {
			return true
		}
	}
	return false
}

// Index returns the position of the step in the workflow, or -1.
func (s GenerationStep) Index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusCompleted ||
		s == StatusFailed || s == StatusCancelled
}

// Terminal returns true for statuses that end a job's lifecycle.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// VoiceSettings describes the narration voice requested by the user.
type VoiceSettings struct {
	Language string  `json:"language"`
	Voice    string  `json:"voice,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// GenerationRequest is the immutable input for one generation. It is created
// once per user submission and never mutated afterwards.
type GenerationRequest struct {
	UserID          string        `json:"user_id"`
	SourceFileID    string        `json:"source_file_id"`
	SourceFileHash  string        `json:"source_file_hash"`
	ScriptText      string        `json:"script_text"`
	VoiceSettings   VoiceSettings `json:"voice_settings"`
	DurationSeconds float64       `json:"duration_seconds"`
	Quality         QualityTier   `json:"quality"`
	AspectRatio     AspectRatio   `json:"aspect_ratio"`
}

const (
	minScriptChars = 10
	maxScriptChars = 1000

	minDurationSeconds = 5.0
	maxDurationSeconds = 30.0
	secondsPerWord     = 0.35
)

// Validate validates the GenerationRequest fields.
func (r *GenerationRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user id is required")
	}
	if r.SourceFileID == "" {
		return errors.New("source file id is required")
	}
	script := strings.TrimSpace(r.ScriptText)
	if len(script) < minScriptChars {
		return fmt.Errorf("script text is too short (minimum %d characters)", minScriptChars)
	}
	if len(r.ScriptText) > maxScriptChars {
		return fmt.Errorf("script text is too long (maximum %d characters)", maxScriptChars)
	}
	if !r.Quality.Valid() {
		return fmt.Errorf("invalid quality tier: %q", r.Quality)
	}
	if !r.AspectRatio.Valid() {
		return fmt.Errorf("invalid aspect ratio: %q", r.AspectRatio)
	}
	return nil
}

// EstimateDuration derives the target video duration from the script length.
func (r *GenerationRequest) EstimateDuration() float64 {
	words := len(strings.Fields(r.ScriptText))
	d := float64(words) * secondsPerWord
	if d < minDurationSeconds {
		return minDurationSeconds
	}
	if d > maxDurationSeconds {
		return maxDurationSeconds
	}
	return d
}

// QualityMetrics carries the per-job quality figures reported by a provider.
type QualityMetrics struct {
	LipSyncAccuracy float64 `json:"lip_sync_accuracy,omitempty"`
	Resolution      string  `json:"resolution,omitempty"`
	AudioQuality    string  `json:"audio_quality,omitempty"`
	OverallScore    float64 `json:"overall_score,omitempty"`
}

// ProcessingPlan captures the mutable execution choices for a job. The
// optimizer and recovery engine rewrite the plan; the request stays frozen.
type ProcessingPlan struct {
	Provider      string      `json:"provider"`
	Quality       QualityTier `json:"quality"`
	ParallelHints []string    `json:"parallel_hints,omitempty"`
	CacheKey      string      `json:"cache_key,omitempty"`
	// TriedProviders lists every provider the job already ran against, so a
	// fallback chain never reselects one that failed.
	TriedProviders []string `json:"tried_providers,omitempty"`
}

// GenerationJob is the mutable execution record for one generation. It is
// transitioned exclusively by the orchestrator and the recovery engine.
type GenerationJob struct {
	ID               string          `json:"id"                          db:"id"`
	Request          GenerationRequest `json:"request"                   db:"request"`
	Step             GenerationStep  `json:"step"                        db:"step"`
	Status           JobStatus       `json:"status"                      db:"status"`
	Plan             ProcessingPlan  `json:"plan"                        db:"plan"`
	OriginalProvider string          `json:"original_provider,omitempty" db:"original_provider"`
	FallbackProvider string          `json:"fallback_provider,omitempty" db:"fallback_provider"`
	ProviderJobID    string          `json:"provider_job_id,omitempty"   db:"provider_job_id"`
	RetryCount       int             `json:"retry_count"                 db:"retry_count"`
	AccruedCost      float64         `json:"accrued_cost"                db:"accrued_cost"`
	RefundedCredits  float64         `json:"refunded_credits"            db:"refunded_credits"`
	Quality          QualityMetrics  `json:"quality_metrics"             db:"quality_metrics"`
	Optimization     json.RawMessage `json:"optimization,omitempty"      db:"optimization"`
	ProgressPercent  float64         `json:"progress_percent"            db:"progress_percent"`
	ResultPath       string          `json:"result_path,omitempty"       db:"result_path"`
	ResultURL        string          `json:"result_url,omitempty"        db:"result_url"`
	LastError        *string         `json:"last_error,omitempty"        db:"last_error"`
	CreatedAt        time.Time       `json:"created_at"                  db:"created_at"`
	StartedAt        *time.Time      `json:"started_at,omitempty"        db:"started_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"      db:"completed_at"`
}

// Terminal reports whether the job has reached a terminal status.
func (j *GenerationJob) Terminal() bool {
	return j.Status.Terminal()
}

// FallbackUsed reports whether the job was rerouted to a fallback provider.
func (j *GenerationJob) FallbackUsed() bool {
	return j.FallbackProvider != ""
}

// MarkProcessing transitions the job into the processing state.
func (j *GenerationJob) MarkProcessing(now time.Time) {
	j.Status = StatusProcessing
	if j.StartedAt == nil {
		t := now
		j.StartedAt = &t
	}
	j.LastError = nil
}

// MarkCompleted transitions the job into the completed state.
func (j *GenerationJob) MarkCompleted(now time.Time) {
	j.Status = StatusCompleted
	j.ProgressPercent = 100
	t := now
	j.CompletedAt = &t
}

// MarkFailed transitions the job into the failed state.
func (j *GenerationJob) MarkFailed(errMsg string, now time.Time) {
	j.Status = StatusFailed
	j.LastError = &errMsg
	t := now
	j.CompletedAt = &t
}

// MarkCancelled transitions the job into the cancelled state with a reason.
func (j *GenerationJob) MarkCancelled(reason string, now time.Time) {
	j.Status = StatusCancelled
	msg := "cancelled: " + reason
	j.LastError = &msg
	t := now
	j.CompletedAt = &t
}

// JobTransition is one append-only audit row describing a state change.
type JobTransition struct {
	JobID      string         `json:"job_id"      db:"job_id"`
	FromStatus JobStatus      `json:"from_status" db:"from_status"`
	ToStatus   JobStatus      `json:"to_status"   db:"to_status"`
	Step       GenerationStep `json:"step"        db:"step"`
	Detail     string         `json:"detail,omitempty" db:"detail"`
	At         time.Time      `json:"at"          db:"at"`
}

// ApplyFallback atomically records a provider switch. A job has exactly one
// active provider at any time; the original/fallback pair preserves the
// before/after values for audit, and the outgoing provider joins the tried
// set so later fallbacks skip it.
func (j *GenerationJob) ApplyFallback(provider string) {
	if j.OriginalProvider == "" {
		j.OriginalProvider = j.Plan.Provider
	}
	j.Plan.recordTried(j.Plan.Provider)
	j.FallbackProvider = provider
	j.Plan.Provider = provider
	j.ProviderJobID = ""
}

func (p *ProcessingPlan) recordTried(provider string) {
	if provider == "" {
		return
	}
	for _, tried := range p.TriedProviders {
		if tried == provider {
			return
		}
	}
	p.TriedProviders = append(p.TriedProviders, provider)
}
