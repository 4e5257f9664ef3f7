package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/domain/model"
	apperrors "github.com/talkingphoto/pipeline/internal/errors"
	"github.com/talkingphoto/pipeline/internal/observability/statsd"
	"github.com/talkingphoto/pipeline/internal/providers"
)

const (
	resultCachePrefix   = "generation:result:"
	providerDownPrefix  = "provider:down:"
	defaultPollInterval = 3 * time.Second
	defaultPollWindow   = 300 * time.Second
	defaultResultTTL    = time.Hour
	defaultHealthTTL    = 2 * time.Minute
)

// Requirements describe what the caller needs from a provider.
type Requirements struct {
	Quality model.QualityTier
	Exclude []string
}

// GenerationOutcome is the result of one successful video generation.
type GenerationOutcome struct {
	Provider      string               `json:"provider"`
	ProviderJobID string               `json:"provider_job_id,omitempty"`
	ResultURL     string               `json:"result_url"`
	StoredPath    string               `json:"stored_path,omitempty"`
	StoredURL     string               `json:"stored_url,omitempty"`
	Quality       model.QualityMetrics `json:"quality"`
	CostCredits   float64              `json:"cost_credits"`
	CacheHit      bool                 `json:"cache_hit"`
}

// ProgressFunc receives poll-loop progress as a 0-100 percentage of the
// provider's own render. The orchestrator owns mapping it into the overall
// workflow band; the router never touches job progress state.
type ProgressFunc func(percent float64)

// RouterConfig tunes the router's poll loop and caches.
type RouterConfig struct {
	PollInterval time.Duration
	PollWindow   time.Duration
	ResultTTL    time.Duration
	HealthTTL    time.Duration
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollWindow <= 0 {
		c.PollWindow = defaultPollWindow
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = defaultResultTTL
	}
	if c.HealthTTL <= 0 {
		c.HealthTTL = defaultHealthTTL
	}
	return c
}

// RouterOptions bundles dependencies for NewRouter.
type RouterOptions struct {
	Registry  *providers.Registry  // Required
	Cache     core.CacheRepository // Required: fingerprint + health caches
	Artifacts core.ArtifactStore   // Required
	Clock     core.Clock           // Required
	Config    RouterConfig
	Metrics   statsd.Sink  // Optional
	Logger    *slog.Logger // Optional
}

// Router selects providers by quality preference, serves identical requests
// from the fingerprint cache, and drives submitted renders to completion.
// It never retries on its own: failures surface as coded errors for the
// recovery engine.
type Router struct {
	registry  *providers.Registry
	cache     core.CacheRepository
	artifacts core.ArtifactStore
	clock     core.Clock
	cfg       RouterConfig
	metrics   statsd.Sink
	logger    *slog.Logger
}

var _ FallbackPicker = (*Router)(nil)

// NewRouter constructs a Router.
func NewRouter(opts RouterOptions) (*Router, error) {
	if opts.Registry == nil {
		return nil, errors.New("provider Registry is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("CacheRepository is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("ArtifactStore is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("Clock is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "provider_router")
	}

	return &Router{
		registry:  opts.Registry,
		cache:     opts.Cache,
		artifacts: opts.Artifacts,
		clock:     opts.Clock,
		cfg:       opts.Config.withDefaults(),
		metrics:   opts.Metrics,
		logger:    logger,
	}, nil
}

// MustNewRouter constructs a Router and panics on error.
func MustNewRouter(opts RouterOptions) *Router {
	router, err := NewRouter(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // fail fast on invalid startup wiring
	}
	return router
}

// SelectProvider returns the best available provider for the requirements.
// Preference order: economy by cost, premium by quality, balanced by
// cost-per-quality. Providers marked down in the health cache are skipped;
// the stub ranks last regardless of preference.
func (r *Router) SelectProvider(ctx context.Context, req Requirements) (providers.Descriptor, error) {
	candidates := r.registry.DescriptorsExcept(req.Exclude...)
	sortByPreference(candidates, req.Quality)

	var firstDown string
	for _, d := range candidates {
		if r.isDown(ctx, d.Name) {
			if firstDown == "" {
				firstDown = d.Name
			}
			continue
		}
		return d, nil
	}
	if firstDown != "" {
		return providers.Descriptor{}, apperrors.Unavailablef("all candidate providers are marked down (first: %s)", firstDown)
	}
	return providers.Descriptor{}, apperrors.NotFound("no provider available for requirements")
}

// sortByPreference orders descriptors for the quality tier. The sort is
// stable over the registry's name-sorted output, so ties are deterministic.
func sortByPreference(descs []providers.Descriptor, quality model.QualityTier) {
	rank := func(d providers.Descriptor) float64 {
		switch quality {
		case model.QualityEconomy:
			return d.CostPerSecond
		case model.QualityPremium:
			return -d.QualityScore
		default:
			if d.QualityScore <= 0 {
				return 0
			}
			return d.CostPerSecond / d.QualityScore
		}
	}
	sort.SliceStable(descs, func(i, j int) bool {
		// Stub is the last resort under every preference.
		if (descs[i].Name == "stub") != (descs[j].Name == "stub") {
			return descs[j].Name == "stub"
		}
		return rank(descs[i]) < rank(descs[j])
	})
}

// Generate runs the video generation stage for the job: cache lookup,
// submission, poll loop, artifact storage. onProgress may be nil.
func (r *Router) Generate(
	ctx context.Context,
	job *model.GenerationJob,
	onProgress ProgressFunc,
) (*GenerationOutcome, error) {
	fp, err := fingerprintForJob(job)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "compute request fingerprint")
	}
	job.Plan.CacheKey = fp

	if outcome := r.cachedOutcome(ctx, fp); outcome != nil {
		if r.logger != nil {
			r.logger.InfoContext(ctx, "serving generation from cache", "job_id", job.ID, "fingerprint", fp)
		}
		r.count("router.cache_hit", nil)
		if onProgress != nil {
			onProgress(100)
		}
		return outcome, nil
	}

	provider, err := r.registry.Get(job.Plan.Provider)
	if err != nil {
		return nil, err
	}
	desc := provider.Descriptor()

	providerJobID, err := provider.Submit(ctx, submitRequestFor(job))
	if err != nil {
		r.noteProviderError(ctx, desc.Name, err)
		return nil, err
	}
	job.ProviderJobID = providerJobID
	r.count("router.submitted", map[string]string{"provider": desc.Name})

	status, err := r.poll(ctx, provider, providerJobID, onProgress)
	if err != nil {
		r.noteProviderError(ctx, desc.Name, err)
		return nil, err
	}

	outcome := &GenerationOutcome{
		Provider:      desc.Name,
		ProviderJobID: providerJobID,
		ResultURL:     status.ResultURL,
		Quality:       status.Quality,
		CostCredits:   desc.CostFor(job.Request.DurationSeconds),
	}

	stored, err := r.artifacts.Store(ctx, job.ID, status.ResultURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "store generated artifact")
	}
	outcome.StoredPath = stored.Path
	outcome.StoredURL = stored.URL

	r.cacheOutcome(ctx, fp, outcome)
	return outcome, nil
}

// poll drives the render to a terminal state within the configured window.
func (r *Router) poll(
	ctx context.Context,
	provider providers.Provider,
	providerJobID string,
	onProgress ProgressFunc,
) (*providers.RenderStatus, error) {
	deadline := r.clock.Now().Add(r.cfg.PollWindow)
	for {
		status, err := provider.Status(ctx, providerJobID)
		if err != nil {
			return nil, err
		}
		if onProgress != nil {
			onProgress(status.Percent)
		}

		switch status.State {
		case providers.RenderSucceeded:
			if status.ResultURL == "" {
				return nil, apperrors.Unavailable("provider reported success without a result URL")
			}
			return status, nil
		case providers.RenderFailed:
			return nil, apperrors.Newf(apperrors.ErrCodeInternal, "render failed: %s", status.Detail)
		}

		if !r.clock.Now().Add(r.cfg.PollInterval).Before(deadline) {
			return nil, apperrors.Timeoutf("video generation timed out after %s", r.cfg.PollWindow)
		}
		if err := r.clock.Sleep(ctx, r.cfg.PollInterval); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeCanceled, "generation canceled while polling")
		}
	}
}

// TryFallback reroutes the job to the next provider in preference order,
// never reselecting a provider the job already tried. The stub is the final
// link in the chain.
func (r *Router) TryFallback(ctx context.Context, job *model.GenerationJob, reason string) (string, error) {
	exclude := []string{job.Plan.Provider}
	exclude = append(exclude, job.Plan.TriedProviders...)
	if job.OriginalProvider != "" {
		exclude = append(exclude, job.OriginalProvider)
	}

	desc, err := r.SelectProvider(ctx, Requirements{Quality: job.Plan.Quality, Exclude: exclude})
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "no fallback provider after %s", job.Plan.Provider)
	}

	if r.logger != nil {
		r.logger.InfoContext(ctx, "switching provider",
			"job_id", job.ID,
			"from", job.Plan.Provider,
			"to", desc.Name,
			"reason", reason,
		)
	}
	job.ApplyFallback(desc.Name)
	r.count("router.fallback", map[string]string{"provider": desc.Name, "reason": reason})
	return desc.Name, nil
}

// fingerprintForJob fingerprints the request at the plan's effective quality
// so downgraded jobs never collide with full-quality renders.
func fingerprintForJob(job *model.GenerationJob) (string, error) {
	req := job.Request
	if job.Plan.Quality != "" {
		req.Quality = job.Plan.Quality
	}
	return Fingerprint(&req)
}

func submitRequestFor(job *model.GenerationJob) providers.SubmitRequest {
	quality := job.Plan.Quality
	if quality == "" {
		quality = job.Request.Quality
	}
	return providers.SubmitRequest{
		JobID:           job.ID,
		SourceFileID:    job.Request.SourceFileID,
		ScriptText:      job.Request.ScriptText,
		VoiceSettings:   job.Request.VoiceSettings,
		DurationSeconds: job.Request.DurationSeconds,
		Quality:         quality,
		AspectRatio:     job.Request.AspectRatio,
	}
}

func (r *Router) cachedOutcome(ctx context.Context, fingerprint string) *GenerationOutcome {
	raw, err := r.cache.Get(ctx, resultCachePrefix+fingerprint)
	if err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "result cache read failed", "error", err)
		}
		return nil
	}
	if len(raw) == 0 {
		return nil
	}
	var outcome GenerationOutcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return nil
	}
	outcome.CacheHit = true
	outcome.CostCredits = 0
	return &outcome
}

func (r *Router) cacheOutcome(ctx context.Context, fingerprint string, outcome *GenerationOutcome) {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, resultCachePrefix+fingerprint, raw, r.cfg.ResultTTL); err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "result cache write failed", "error", err)
		}
	}
}

// noteProviderError marks a provider down in the health cache when the error
// indicates an outage, so selection skips it until the mark expires.
func (r *Router) noteProviderError(ctx context.Context, name string, err error) {
	if !apperrors.IsUnavailable(err) && !apperrors.IsTimeout(err) {
		return
	}
	if cacheErr := r.cache.Set(ctx, providerDownPrefix+name, []byte("1"), r.cfg.HealthTTL); cacheErr != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "health cache write failed", "provider", name, "error", cacheErr)
		}
	}
}

func (r *Router) isDown(ctx context.Context, name string) bool {
	raw, err := r.cache.Get(ctx, providerDownPrefix+name)
	if err != nil {
		// Treat cache outages as healthy rather than blocking all routing.
		return false
	}
	return len(raw) > 0
}

func (r *Router) count(name string, tags map[string]string) {
	if r.metrics != nil {
		r.metrics.Count(name, 1, tags)
	}
}
