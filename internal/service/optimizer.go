package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/domain/model"
	"github.com/talkingphoto/pipeline/internal/providers"
)

// Complexity factor weights. The weighted factors sum to at most 1.
const (
	weightFileSize   = 0.2
	weightResolution = 0.2
	weightFaces      = 0.3
	weightBackground = 0.15
	weightLighting   = 0.15

	fileSizeNorm   = 5 << 20 // 5MB
	resolutionNorm = 1920 * 1080
	faceNorm       = 3
)

// Base render times in seconds per provider, before multipliers.
var baseRenderSeconds = map[string]float64{
	"veo3":       25,
	"runway":     35,
	"nanobanana": 15,
	"stub":       5,
}

var qualityTimeFactor = map[model.QualityTier]float64{
	model.QualityEconomy:  0.7,
	model.QualityStandard: 1.0,
	model.QualityPremium:  1.4,
}

// OptimizerOptions bundles dependencies for NewOptimizer.
type OptimizerOptions struct {
	Registry *providers.Registry  // Required
	Tracker  *PerformanceTracker  // Required
	Cache    core.CacheRepository // Required: cache-hit prediction
	Logger   *slog.Logger         // Optional
}

// Optimizer performs the pre-flight analysis for a workflow: complexity
// scoring, time estimation, bottleneck prediction, and greedy strategy
// selection. It rewrites the job's ProcessingPlan but never executes
// anything itself.
type Optimizer struct {
	registry *providers.Registry
	tracker  *PerformanceTracker
	cache    core.CacheRepository
	logger   *slog.Logger
}

// NewOptimizer constructs an Optimizer.
func NewOptimizer(opts OptimizerOptions) (*Optimizer, error) {
	if opts.Registry == nil {
		return nil, errors.New("provider Registry is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("PerformanceTracker is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("CacheRepository is required")
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "workflow_optimizer")
	}
	return &Optimizer{
		registry: opts.Registry,
		tracker:  opts.Tracker,
		cache:    opts.Cache,
		logger:   logger,
	}, nil
}

// MustNewOptimizer constructs an Optimizer and panics on error.
func MustNewOptimizer(opts OptimizerOptions) *Optimizer {
	o, err := NewOptimizer(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // fail fast on invalid startup wiring
	}
	return o
}

// Optimize analyzes the job ahead of video generation and greedily applies
// strategies until the estimate meets targetSeconds or options run out. It
// mutates job.Plan (provider, quality, hints, cache key) only.
func (o *Optimizer) Optimize(
	ctx context.Context,
	job *model.GenerationJob,
	analysis *core.PhotoAnalysis,
	targetSeconds float64,
) (*model.OptimizationResult, error) {
	complexity := Complexity(analysis)
	baseline := o.Estimate(job.Plan.Provider, job.Plan.Quality, job.Request.DurationSeconds, complexity)

	result := &model.OptimizationResult{
		Complexity:       complexity,
		BaselineEstimate: baseline,
	}
	result.Bottlenecks = o.findBottlenecks(job, complexity, baseline)

	cacheHit := o.cacheHitExpected(ctx, job)
	result.CacheHitExpected = cacheHit

	opportunities := o.findOpportunities(job, baseline, complexity, cacheHit)
	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].SavingSeconds*opportunities[i].Confidence >
			opportunities[j].SavingSeconds*opportunities[j].Confidence
	})

	estimate := baseline
	for _, opp := range opportunities {
		if targetSeconds > 0 && estimate <= targetSeconds {
			break
		}
		estimate = o.apply(job, opp, estimate)
		result.AppliedStrategies = append(result.AppliedStrategies, opp)
	}

	result.OptimizedEstimate = estimate
	result.RecommendedPlan = job.Plan

	if o.logger != nil {
		o.logger.DebugContext(ctx, "pre-flight optimization complete",
			"job_id", job.ID,
			"complexity", complexity,
			"baseline_s", baseline,
			"optimized_s", estimate,
			"strategies", len(result.AppliedStrategies),
		)
	}
	return result, nil
}

// Complexity scores a photo 0..1 from its weighted normalized factors.
// Missing analysis is treated as middling complexity.
func Complexity(analysis *core.PhotoAnalysis) float64 {
	if analysis == nil {
		return 0.5
	}
	c := weightFileSize*clamp01(float64(analysis.FileSizeBytes)/float64(fileSizeNorm)) +
		weightResolution*clamp01(float64(analysis.Width*analysis.Height)/float64(resolutionNorm)) +
		weightFaces*clamp01(float64(analysis.FaceCount)/faceNorm) +
		weightBackground*clamp01(analysis.BackgroundComplexity) +
		weightLighting*clamp01(1-analysis.LightingQuality)
	return clamp01(c)
}

// Estimate predicts render wall time in seconds for a provider and quality.
func (o *Optimizer) Estimate(provider string, quality model.QualityTier, durationSeconds, complexity float64) float64 {
	base, ok := baseRenderSeconds[provider]
	if !ok {
		base = 30
	}
	qf, ok := qualityTimeFactor[quality]
	if !ok {
		qf = 1.0
	}
	durFactor := durationSeconds / 15
	if durFactor < 0.5 {
		durFactor = 0.5
	}
	if durFactor > 2.0 {
		durFactor = 2.0
	}
	return base * (0.8 + 0.4*complexity) * durFactor * qf * o.tracker.Multiplier(provider)
}

func (o *Optimizer) findBottlenecks(job *model.GenerationJob, complexity, estimate float64) []model.Bottleneck {
	var out []model.Bottleneck
	if complexity > 0.8 {
		out = append(out, model.Bottleneck{
			Kind:   "preprocessing",
			Detail: "complex source photo slows enhancement and lip-sync preparation",
		})
	}
	if len(job.Request.ScriptText) > 500 {
		out = append(out, model.Bottleneck{
			Kind:   "speech_synthesis",
			Detail: "long script extends narration synthesis",
		})
	}
	if avg, ok := o.tracker.AvgDuration(job.Plan.Provider); ok && avg.Seconds() > 35 {
		out = append(out, model.Bottleneck{
			Kind:   "provider",
			Detail: "provider " + job.Plan.Provider + " is rendering slower than usual",
			Impact: avg.Seconds() - 35,
		})
	}
	if job.Plan.Quality == model.QualityPremium && estimate > 40 {
		out = append(out, model.Bottleneck{
			Kind:   "quality",
			Detail: "premium rendering dominates the estimated time",
		})
	}
	return out
}

func (o *Optimizer) findOpportunities(
	job *model.GenerationJob,
	estimate, complexity float64,
	cacheHit bool,
) []model.AppliedStrategy {
	var out []model.AppliedStrategy

	if estimate > 20 {
		out = append(out, model.AppliedStrategy{
			Strategy:      model.StrategyParallelSteps,
			SavingSeconds: 0.3 * estimate,
			Confidence:    0.8,
		})
	}
	if cacheHit {
		out = append(out, model.AppliedStrategy{
			Strategy:      model.StrategyResultCaching,
			SavingSeconds: 0.6 * estimate,
			Confidence:    0.9,
		})
	}
	if alt, altEst, ok := o.bestAlternative(job, complexity); ok && altEst < 0.8*estimate {
		out = append(out, model.AppliedStrategy{
			Strategy:       model.StrategyProviderSwitch,
			SavingSeconds:  estimate - altEst,
			Confidence:     0.7,
			QualityDelta:   -0.1,
			TargetProvider: alt,
		})
	}
	if estimate > 35 {
		if lower, ok := job.Plan.Quality.Downgrade(); ok {
			out = append(out, model.AppliedStrategy{
				Strategy:       model.StrategyQualityAdaptation,
				SavingSeconds:  0.25 * estimate,
				Confidence:     0.6,
				QualityDelta:   -0.2,
				DowngradedTier: lower,
			})
		}
	}
	return out
}

// bestAlternative finds the fastest other provider at the current quality.
func (o *Optimizer) bestAlternative(job *model.GenerationJob, complexity float64) (string, float64, bool) {
	var bestName string
	var bestEst float64
	for _, d := range o.registry.DescriptorsExcept(job.Plan.Provider, "stub") {
		est := o.Estimate(d.Name, job.Plan.Quality, job.Request.DurationSeconds, complexity)
		if bestName == "" || est < bestEst {
			bestName, bestEst = d.Name, est
		}
	}
	return bestName, bestEst, bestName != ""
}

// apply mutates the plan for one strategy and returns the reduced estimate.
func (o *Optimizer) apply(job *model.GenerationJob, opp model.AppliedStrategy, estimate float64) float64 {
	switch opp.Strategy {
	case model.StrategyParallelSteps:
		job.Plan.ParallelHints = append(job.Plan.ParallelHints, "photo_enhancement|speech_synthesis")
		return estimate * 0.7
	case model.StrategyResultCaching:
		// CacheKey is set by the router at generation time; here we only
		// account for the expected hit.
		return estimate * 0.2
	case model.StrategyProviderSwitch:
		job.Plan.Provider = opp.TargetProvider
		return estimate - opp.SavingSeconds
	case model.StrategyQualityAdaptation:
		job.Plan.Quality = opp.DowngradedTier
		return estimate * 0.75
	default:
		return estimate
	}
}

func (o *Optimizer) cacheHitExpected(ctx context.Context, job *model.GenerationJob) bool {
	fp, err := fingerprintForJob(job)
	if err != nil {
		return false
	}
	raw, err := o.cache.Get(ctx, resultCachePrefix+fp)
	if err != nil {
		return false
	}
	return len(raw) > 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
