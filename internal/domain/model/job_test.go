package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() GenerationRequest {
	return GenerationRequest{
		UserID:       "user-1",
		SourceFileID: "photo-1",
		ScriptText:   "A script long enough to pass the minimum length check.",
		Quality:      QualityStandard,
		AspectRatio:  AspectLandscape,
	}
}

func TestGenerationRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *GenerationRequest)
		wantErr string
	}{
		{"valid", func(*GenerationRequest) {}, ""},
		{"missing user", func(r *GenerationRequest) { r.UserID = "" }, "user id"},
		{"missing source file", func(r *GenerationRequest) { r.SourceFileID = "" }, "source file id"},
		{"script too short", func(r *GenerationRequest) { r.ScriptText = "short" }, "too short"},
		{
			"whitespace does not satisfy the minimum",
			func(r *GenerationRequest) { r.ScriptText = "hi " + strings.Repeat(" ", 20) },
			"too short",
		},
		{
			"script too long",
			func(r *GenerationRequest) { r.ScriptText = strings.Repeat("a", 1001) },
			"too long",
		},
		{"bad quality", func(r *GenerationRequest) { r.Quality = "ultra" }, "quality tier"},
		{"bad aspect ratio", func(r *GenerationRequest) { r.AspectRatio = "4:3" }, "aspect ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEstimateDuration(t *testing.T) {
	req := validRequest()

	// 40 words at 0.35s per word.
	req.ScriptText = strings.Repeat("word ", 40)
	assert.InDelta(t, 14.0, req.EstimateDuration(), 1e-9)

	// Short scripts clamp to the 5s floor.
	req.ScriptText = "just a few words"
	assert.InDelta(t, 5.0, req.EstimateDuration(), 1e-9)

	// Long scripts clamp to the 30s ceiling.
	req.ScriptText = strings.Repeat("word ", 200)
	assert.InDelta(t, 30.0, req.EstimateDuration(), 1e-9)
}

func TestQualityTierDowngrade(t *testing.T) {
	lower, ok := QualityPremium.Downgrade()
	assert.True(t, ok)
	assert.Equal(t, QualityStandard, lower)

	lower, ok = QualityStandard.Downgrade()
	assert.True(t, ok)
	assert.Equal(t, QualityEconomy, lower)

	lower, ok = QualityEconomy.Downgrade()
	assert.False(t, ok)
	assert.Equal(t, QualityEconomy, lower)
}

func TestQualityTierUnmarshalText(t *testing.T) {
	var q QualityTier
	require.NoError(t, q.UnmarshalText([]byte(" Premium ")))
	assert.Equal(t, QualityPremium, q)

	assert.Error(t, q.UnmarshalText([]byte("ultra")))
}

func TestStepsAndWeights(t *testing.T) {
	assert.Equal(t, []GenerationStep{
		StepValidation,
		StepPhotoEnhancement,
		StepSpeechSynthesis,
		StepLipSyncProcessing,
		StepVideoGeneration,
		StepPostProcessing,
		StepStorageUpload,
		StepCompletion,
	}, Steps)

	total := 0
	for _, step := range Steps {
		weight, ok := StepWeights[step]
		require.True(t, ok, "step %s has no weight", step)
		assert.Positive(t, weight)
		total += weight
	}
	assert.Equal(t, 100, total)
}

func TestGenerationStepIndex(t *testing.T) {
	assert.Equal(t, 0, StepValidation.Index())
	assert.Equal(t, 4, StepVideoGeneration.Index())
	assert.Equal(t, 7, StepCompletion.Index())
	assert.Equal(t, -1, GenerationStep("rendering").Index())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusProcessing.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestJobTransitions(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	job := &GenerationJob{ID: "job-1", Status: StatusPending}

	job.MarkProcessing(now)
	assert.Equal(t, StatusProcessing, job.Status)
	require.NotNil(t, job.StartedAt)
	assert.Equal(t, now, *job.StartedAt)

	// A second MarkProcessing after recovery keeps the original start time.
	later := now.Add(time.Minute)
	job.MarkProcessing(later)
	assert.Equal(t, now, *job.StartedAt)

	job.MarkCompleted(later)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, 100.0, job.ProgressPercent)
	require.NotNil(t, job.CompletedAt)
	assert.True(t, job.Terminal())
}

func TestJobMarkFailedAndCancelled(t *testing.T) {
	now := time.Now()

	failed := &GenerationJob{ID: "job-f", Status: StatusProcessing}
	failed.MarkFailed("render exploded", now)
	assert.Equal(t, StatusFailed, failed.Status)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "render exploded", *failed.LastError)

	cancelled := &GenerationJob{ID: "job-c", Status: StatusProcessing}
	cancelled.MarkCancelled("user requested", now)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.LastError)
	assert.Equal(t, "cancelled: user requested", *cancelled.LastError)
}

func TestApplyFallback(t *testing.T) {
	job := &GenerationJob{
		Plan:          ProcessingPlan{Provider: "veo3", Quality: QualityStandard},
		ProviderJobID: "veo3-123",
	}

	job.ApplyFallback("runway")
	assert.Equal(t, "veo3", job.OriginalProvider)
	assert.Equal(t, "runway", job.FallbackProvider)
	assert.Equal(t, "runway", job.Plan.Provider)
	assert.Empty(t, job.ProviderJobID)
	assert.True(t, job.FallbackUsed())

	// A second switch preserves the original provider and grows the tried
	// set without duplicates.
	job.ApplyFallback("stub")
	assert.Equal(t, "veo3", job.OriginalProvider)
	assert.Equal(t, "stub", job.FallbackProvider)
	assert.Equal(t, "stub", job.Plan.Provider)
	assert.Equal(t, []string{"veo3", "runway"}, job.Plan.TriedProviders)

	job.Plan.recordTried("runway")
	assert.Equal(t, []string{"veo3", "runway"}, job.Plan.TriedProviders)
}
