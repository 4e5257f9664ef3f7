package model

// OptimizationStrategy names one pre-flight optimization the planner can apply.
type OptimizationStrategy string

const (
	// StrategyParallelSteps runs independent steps concurrently.
	StrategyParallelSteps OptimizationStrategy = "parallel_steps"
	// StrategyResultCaching serves a previously rendered identical request.
	StrategyResultCaching OptimizationStrategy = "result_caching"
	// StrategyProviderSwitch moves the job to a faster provider.
	StrategyProviderSwitch OptimizationStrategy = "provider_switch"
	// StrategyQualityAdaptation trades output quality for speed.
	StrategyQualityAdaptation OptimizationStrategy = "quality_adaptation"
)

// Bottleneck describes one predicted slow point in a workflow.
type Bottleneck struct {
	Kind    string  `json:"kind"`
	Detail  string  `json:"detail"`
	Impact  float64 `json:"impact_seconds,omitempty"`
	Percent float64 `json:"impact_percent,omitempty"`
}

// AppliedStrategy is one strategy the optimizer selected, with its expected
// payoff.
type AppliedStrategy struct {
	Strategy        OptimizationStrategy `json:"strategy"`
	SavingSeconds   float64              `json:"saving_seconds"`
	Confidence      float64              `json:"confidence"`
	QualityDelta    float64              `json:"quality_delta,omitempty"`
	TargetProvider  string               `json:"target_provider,omitempty"`
	DowngradedTier  QualityTier          `json:"downgraded_tier,omitempty"`
}

// OptimizationResult is the optimizer's pre-flight verdict for one request.
type OptimizationResult struct {
	Complexity         float64              `json:"complexity"`
	BaselineEstimate   float64              `json:"baseline_estimate_seconds"`
	OptimizedEstimate  float64              `json:"optimized_estimate_seconds"`
	RecommendedPlan    ProcessingPlan       `json:"recommended_plan"`
	Bottlenecks        []Bottleneck         `json:"bottlenecks,omitempty"`
	AppliedStrategies  []AppliedStrategy    `json:"applied_strategies,omitempty"`
	CacheHitExpected   bool                 `json:"cache_hit_expected"`
}
