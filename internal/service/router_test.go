package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkingphoto/pipeline/internal/domain/model"
	apperrors "github.com/talkingphoto/pipeline/internal/errors"
	"github.com/talkingphoto/pipeline/internal/providers"
)

func testFleet() (*fakeProvider, *fakeProvider, *fakeProvider, *providers.Registry) {
	veo3 := &fakeProvider{
		desc: providers.Descriptor{Name: "veo3", CostPerSecond: 0.5, QualityScore: 9.0, AvgLatencySeconds: 25},
		statuses: []*providers.RenderStatus{
			{State: providers.RenderProcessing, Percent: 40},
			{State: providers.RenderSucceeded, Percent: 100, ResultURL: "https://veo3.example/out.mp4"},
		},
	}
	runway := &fakeProvider{
		desc: providers.Descriptor{Name: "runway", CostPerSecond: 0.8, QualityScore: 8.0, AvgLatencySeconds: 35},
		statuses: []*providers.RenderStatus{
			{State: providers.RenderSucceeded, Percent: 100, ResultURL: "https://runway.example/out.mp4"},
		},
	}
	nano := &fakeProvider{
		desc: providers.Descriptor{Name: "nanobanana", CostPerSecond: 0.2, QualityScore: 6.0, AvgLatencySeconds: 15},
		statuses: []*providers.RenderStatus{
			{State: providers.RenderSucceeded, Percent: 100, ResultURL: "https://nano.example/out.mp4"},
		},
	}
	registry := providers.MustNewRegistry(veo3, runway, nano, providers.NewStub())
	return veo3, runway, nano, registry
}

func newTestRouter(t *testing.T, registry *providers.Registry, cache *fakeCache, cfg RouterConfig) (*Router, *fakeClock, *fakeArtifacts) {
	t.Helper()
	clock := newFakeClock()
	artifacts := &fakeArtifacts{}
	router, err := NewRouter(RouterOptions{
		Registry:  registry,
		Cache:     cache,
		Artifacts: artifacts,
		Clock:     clock,
		Config:    cfg,
	})
	require.NoError(t, err)
	return router, clock, artifacts
}

func TestSelectProvider_PreferenceOrder(t *testing.T) {
	_, _, _, registry := testFleet()
	router, _, _ := newTestRouter(t, registry, newFakeCache(), RouterConfig{})

	tests := []struct {
		name     string
		quality  model.QualityTier
		expected string
	}{
		// Cheapest real provider wins under economy; the free stub still
		// ranks last.
		{"economy picks cheapest", model.QualityEconomy, "nanobanana"},
		{"premium picks highest quality", model.QualityPremium, "veo3"},
		// Balanced ranks by cost per quality point: nanobanana 0.033,
		// veo3 0.056, runway 0.1.
		{"balanced picks best value", model.QualityStandard, "nanobanana"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := router.SelectProvider(context.Background(), Requirements{Quality: tt.quality})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, desc.Name)
		})
	}
}

func TestSelectProvider_StubIsAlwaysLastResort(t *testing.T) {
	_, _, _, registry := testFleet()
	router, _, _ := newTestRouter(t, registry, newFakeCache(), RouterConfig{})

	desc, err := router.SelectProvider(context.Background(), Requirements{
		Quality: model.QualityEconomy,
		Exclude: []string{"veo3", "runway", "nanobanana"},
	})
	require.NoError(t, err)
	assert.Equal(t, "stub", desc.Name)
}

func TestSelectProvider_SkipsDownProviders(t *testing.T) {
	_, _, _, registry := testFleet()
	cache := newFakeCache()
	router, _, _ := newTestRouter(t, registry, cache, RouterConfig{})

	require.NoError(t, cache.Set(context.Background(), providerDownPrefix+"veo3", []byte("1"), 0))

	desc, err := router.SelectProvider(context.Background(), Requirements{Quality: model.QualityPremium})
	require.NoError(t, err)
	assert.Equal(t, "runway", desc.Name)
}

func TestSelectProvider_AllDownReturnsUnavailable(t *testing.T) {
	_, _, _, registry := testFleet()
	cache := newFakeCache()
	router, _, _ := newTestRouter(t, registry, cache, RouterConfig{})

	ctx := context.Background()
	for _, name := range registry.Names() {
		require.NoError(t, cache.Set(ctx, providerDownPrefix+name, []byte("1"), 0))
	}

	_, err := router.SelectProvider(ctx, Requirements{Quality: model.QualityStandard})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestSelectProvider_NoCandidatesReturnsNotFound(t *testing.T) {
	_, _, _, registry := testFleet()
	router, _, _ := newTestRouter(t, registry, newFakeCache(), RouterConfig{})

	_, err := router.SelectProvider(context.Background(), Requirements{
		Quality: model.QualityStandard,
		Exclude: registry.Names(),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRouterGenerate_SuccessStoresArtifactAndCachesResult(t *testing.T) {
	veo3, _, _, registry := testFleet()
	cache := newFakeCache()
	router, _, artifacts := newTestRouter(t, registry, cache, RouterConfig{})

	job := testJob("job-gen")
	var percents []float64
	outcome, err := router.Generate(context.Background(), job, func(pct float64) {
		percents = append(percents, pct)
	})
	require.NoError(t, err)

	assert.Equal(t, "veo3", outcome.Provider)
	assert.Equal(t, "veo3-job-gen", outcome.ProviderJobID)
	assert.Equal(t, "veo3-job-gen", job.ProviderJobID)
	assert.Equal(t, "https://veo3.example/out.mp4", outcome.ResultURL)
	assert.Equal(t, "artifacts/job-gen/video.mp4", outcome.StoredPath)
	assert.False(t, outcome.CacheHit)
	assert.InDelta(t, 5.0, outcome.CostCredits, 1e-9) // 0.5 credits/s * 10s
	assert.Equal(t, 1, veo3.submits)
	assert.Equal(t, []float64{40, 100}, percents)
	assert.Equal(t, []string{"https://veo3.example/out.mp4"}, artifacts.stored)

	assert.NotEmpty(t, job.Plan.CacheKey)
	assert.True(t, cache.has(resultCachePrefix+job.Plan.CacheKey))
}

func TestRouterGenerate_CacheHitSkipsProvider(t *testing.T) {
	veo3, _, _, registry := testFleet()
	cache := newFakeCache()
	router, _, _ := newTestRouter(t, registry, cache, RouterConfig{})

	job := testJob("job-cached")
	fp, err := fingerprintForJob(job)
	require.NoError(t, err)

	cached := GenerationOutcome{
		Provider:    "veo3",
		ResultURL:   "https://veo3.example/prev.mp4",
		StoredPath:  "artifacts/prev/video.mp4",
		CostCredits: 5,
	}
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	require.NoError(t, cache.Set(context.Background(), resultCachePrefix+fp, raw, 0))

	var percents []float64
	outcome, err := router.Generate(context.Background(), job, func(pct float64) {
		percents = append(percents, pct)
	})
	require.NoError(t, err)

	assert.True(t, outcome.CacheHit)
	assert.Zero(t, outcome.CostCredits, "cache hits cost nothing")
	assert.Equal(t, "artifacts/prev/video.mp4", outcome.StoredPath)
	assert.Equal(t, []float64{100}, percents)
	assert.Zero(t, veo3.submits)
}

func TestRouterGenerate_RenderFailureSurfacesDetail(t *testing.T) {
	veo3, _, _, registry := testFleet()
	veo3.statuses = []*providers.RenderStatus{
		{State: providers.RenderFailed, Detail: "face not detected"},
	}
	cache := newFakeCache()
	router, _, _ := newTestRouter(t, registry, cache, RouterConfig{})

	_, err := router.Generate(context.Background(), testJob("job-fail"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "face not detected")
	// Render failures are the provider doing its job, not an outage.
	assert.False(t, cache.has(providerDownPrefix+"veo3"))
}

func TestRouterGenerate_PollTimeoutMarksProviderDown(t *testing.T) {
	veo3, _, _, registry := testFleet()
	veo3.statuses = []*providers.RenderStatus{
		{State: providers.RenderProcessing, Percent: 10},
	}
	cache := newFakeCache()
	router, _, _ := newTestRouter(t, registry, cache, RouterConfig{
		PollInterval: 3 * time.Second,
		PollWindow:   10 * time.Second,
	})

	_, err := router.Generate(context.Background(), testJob("job-slow"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.True(t, cache.has(providerDownPrefix+"veo3"))
}

func TestRouterGenerate_SubmitOutageMarksProviderDown(t *testing.T) {
	veo3, _, _, registry := testFleet()
	veo3.submitErr = apperrors.Unavailable("503 from vendor")
	cache := newFakeCache()
	router, _, _ := newTestRouter(t, registry, cache, RouterConfig{})

	_, err := router.Generate(context.Background(), testJob("job-outage"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.True(t, cache.has(providerDownPrefix+"veo3"))
}

func TestRouterGenerate_CanceledWhilePolling(t *testing.T) {
	veo3, _, _, registry := testFleet()
	veo3.statuses = []*providers.RenderStatus{
		{State: providers.RenderProcessing, Percent: 10},
	}
	router, _, _ := newTestRouter(t, registry, newFakeCache(), RouterConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := router.Generate(ctx, testJob("job-cancel"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCanceled(err))
}

func TestRouterGenerate_SuccessWithoutResultURLIsUnavailable(t *testing.T) {
	veo3, _, _, registry := testFleet()
	veo3.statuses = []*providers.RenderStatus{
		{State: providers.RenderSucceeded, Percent: 100},
	}
	router, _, _ := newTestRouter(t, registry, newFakeCache(), RouterConfig{})

	_, err := router.Generate(context.Background(), testJob("job-nourl"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestTryFallback_NeverRevisitsTriedProviders(t *testing.T) {
	_, _, _, registry := testFleet()
	router, _, _ := newTestRouter(t, registry, newFakeCache(), RouterConfig{})

	job := testJob("job-chain")
	job.Plan.Quality = model.QualityPremium // preference: veo3, runway, nanobanana, stub
	job.ProviderJobID = "veo3-job-chain"

	first, err := router.TryFallback(context.Background(), job, "timeout")
	require.NoError(t, err)
	assert.Equal(t, "runway", first)
	assert.Equal(t, "veo3", job.OriginalProvider)
	assert.Equal(t, "runway", job.FallbackProvider)
	assert.Equal(t, "runway", job.Plan.Provider)
	assert.Empty(t, job.ProviderJobID, "vendor job id belongs to the previous provider")

	second, err := router.TryFallback(context.Background(), job, "timeout")
	require.NoError(t, err)
	assert.Equal(t, "nanobanana", second)
	assert.Equal(t, "veo3", job.OriginalProvider, "original provider is recorded once")
	assert.Equal(t, "nanobanana", job.Plan.Provider)
	assert.Equal(t, []string{"veo3", "runway"}, job.Plan.TriedProviders)

	// Third hop must skip every provider already tried and land on the stub,
	// the final link in the chain.
	third, err := router.TryFallback(context.Background(), job, "timeout")
	require.NoError(t, err)
	assert.Equal(t, "stub", third)
	assert.Equal(t, []string{"veo3", "runway", "nanobanana"}, job.Plan.TriedProviders)

	// With the whole fleet exhausted the chain terminates instead of looping.
	_, err = router.TryFallback(context.Background(), job, "timeout")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, "stub", job.Plan.Provider, "failed fallback must not mutate the plan")
}

func TestTryFallback_NoCandidateReturnsUnavailable(t *testing.T) {
	registry := providers.MustNewRegistry(providers.NewStub())
	router, _, _ := newTestRouter(t, registry, newFakeCache(), RouterConfig{})

	job := testJob("job-stuck")
	job.Plan.Provider = "stub"

	_, err := router.TryFallback(context.Background(), job, "timeout")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, "stub", job.Plan.Provider, "failed fallback must not mutate the plan")
}
