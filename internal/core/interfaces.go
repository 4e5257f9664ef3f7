// Package core defines the ports between the service layer and its adapters.
package core

import (
	"context"
	"time"

	"github.com/talkingphoto/pipeline/internal/domain/model"
)

// This file contains repository and adapter interface definitions (ports in
// hexagonal architecture). Service implementations should depend on these
// interfaces, not concrete implementations.

// JobRepository defines the interface for generation job persistence.
type JobRepository interface {
	Create(ctx context.Context, job *model.GenerationJob) error
	GetByID(ctx context.Context, id string) (*model.GenerationJob, error)
	// Update persists the full mutable state of a job. Only the single
	// executor goroutine for a job may call it.
	Update(ctx context.Context, job *model.GenerationJob) error
	// ReserveNext atomically claims the oldest pending job and moves it to
	// processing. Returns model.ErrNoJobsAvailable when the queue is empty.
	ReserveNext(ctx context.Context) (*model.GenerationJob, error)
	// RequestCancel flags a processing or pending job for cancellation.
	// Returns false if the job is already terminal.
	RequestCancel(ctx context.Context, id, reason string) (bool, error)
	// CancelRequested reports whether a cancel flag is set for the job.
	CancelRequested(ctx context.Context, id string) (bool, error)
	// ListByUser returns the user's jobs, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.GenerationJob, error)
	// RecordTransition appends one row to the job's audit trail.
	RecordTransition(ctx context.Context, t *model.JobTransition) error
}

// CacheRepository defines the interface for caching operations.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// SetIfNotExists atomically sets a key only if it doesn't already exist.
	// Returns true if the key was set, false if it already existed.
	SetIfNotExists(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// DeductParams groups parameters for CreditLedger.Deduct.
type DeductParams struct {
	UserID  string
	JobID   string
	Credits float64
	Reason  string
}

// RefundParams groups parameters for CreditLedger.Refund.
type RefundParams struct {
	UserID  string
	JobID   string
	Credits float64
	Reason  string
}

// CreditLedger defines the interface for user credit accounting.
// Deduct and Refund are idempotent per (job, reason): replaying a call after
// a crash must not double-charge or double-refund.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (float64, error)
	Deduct(ctx context.Context, params DeductParams) error
	Refund(ctx context.Context, params RefundParams) error
}

// StoredArtifact describes a finalized artifact in durable storage.
type StoredArtifact struct {
	Path string
	URL  string
	Size int64
}

// ArtifactStore defines the interface for durable video artifact storage.
type ArtifactStore interface {
	// Store downloads the provider result at srcURL and persists it under a
	// job-scoped path, returning the durable location.
	Store(ctx context.Context, jobID, srcURL string) (*StoredArtifact, error)
	// Delete removes a stored artifact. Used when a completed upload is
	// superseded by a retried render.
	Delete(ctx context.Context, path string) error
}

// UserNotification is a message destined for the end user.
type UserNotification struct {
	UserID  string
	JobID   string
	Kind    string
	Message string
}

// UserNotifier defines the interface for user-facing notifications.
type UserNotifier interface {
	Notify(ctx context.Context, n UserNotification) error
}

// PhotoAnalysis is the pre-flight assessment of a source photo. Scores are
// normalized to 0..1.
type PhotoAnalysis struct {
	FileSizeBytes        int64   `json:"file_size_bytes"`
	Width                int     `json:"width"`
	Height               int     `json:"height"`
	FaceCount            int     `json:"face_count"`
	BackgroundComplexity float64 `json:"background_complexity"`
	LightingQuality      float64 `json:"lighting_quality"`
	QualityScore         float64 `json:"quality_score"`
}

// SpeechRequest groups parameters for MediaProcessor.SynthesizeSpeech.
type SpeechRequest struct {
	JobID    string
	Script   string
	Language string
	Voice    string
	Speed    float64
}

// LipSyncRequest groups parameters for MediaProcessor.PrepareLipSync.
type LipSyncRequest struct {
	JobID       string
	PhotoFileID string
	AudioPath   string
}

// MediaProcessor defines the interface for the local media stages that run
// before and after the provider render: photo analysis/enhancement, speech
// synthesis, lip-sync preparation, and thumbnailing.
type MediaProcessor interface {
	// AnalyzePhoto inspects the source photo and scores it.
	AnalyzePhoto(ctx context.Context, fileID string) (*PhotoAnalysis, error)
	// EnhancePhoto improves the source photo and returns the enhanced file
	// id. Callers fall back to the original file when enhancement fails.
	EnhancePhoto(ctx context.Context, fileID string) (string, error)
	// SynthesizeSpeech renders the narration audio and returns its path.
	SynthesizeSpeech(ctx context.Context, req SpeechRequest) (string, error)
	// PrepareLipSync aligns the audio with the photo and returns the
	// prepared asset path.
	PrepareLipSync(ctx context.Context, req LipSyncRequest) (string, error)
	// GenerateThumbnail produces a preview image for the rendered video.
	// Best-effort: failures never fail the workflow.
	GenerateThumbnail(ctx context.Context, jobID, videoPath string) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}
