package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/domain/model"
	apperrors "github.com/talkingphoto/pipeline/internal/errors"
	"github.com/talkingphoto/pipeline/internal/observability/metrics"
	"github.com/talkingphoto/pipeline/internal/observability/statsd"
)

// FallbackPicker selects and applies an alternate provider for a job. The
// Router implements it.
type FallbackPicker interface {
	TryFallback(ctx context.Context, job *model.GenerationJob, reason string) (string, error)
}

// RecoveryStats aggregates engine decisions. Safe for concurrent use.
type RecoveryStats struct {
	mu         sync.Mutex
	total      int64
	recovered  int64
	failed     int64
	byCategory map[model.ErrorCategory]int64
	byAction   map[model.RecoveryAction]int64
}

// RecoveryStatsSnapshot is a point-in-time copy of the counters.
type RecoveryStatsSnapshot struct {
	Total       int64                          `json:"total"`
	Recovered   int64                          `json:"recovered"`
	Failed      int64                          `json:"failed"`
	SuccessRate float64                        `json:"success_rate"`
	ByCategory  map[model.ErrorCategory]int64  `json:"by_category"`
	ByAction    map[model.RecoveryAction]int64 `json:"by_action"`
}

func newRecoveryStats() *RecoveryStats {
	return &RecoveryStats{
		byCategory: make(map[model.ErrorCategory]int64),
		byAction:   make(map[model.RecoveryAction]int64),
	}
}

func (s *RecoveryStats) record(category model.ErrorCategory, action model.RecoveryAction, recovered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byCategory[category]++
	if action != "" {
		s.byAction[action]++
	}
	if recovered {
		s.recovered++
	} else {
		s.failed++
	}
}

// Snapshot returns a copy of the counters with a derived success rate.
func (s *RecoveryStats) Snapshot() RecoveryStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := RecoveryStatsSnapshot{
		Total:      s.total,
		Recovered:  s.recovered,
		Failed:     s.failed,
		ByCategory: make(map[model.ErrorCategory]int64, len(s.byCategory)),
		ByAction:   make(map[model.RecoveryAction]int64, len(s.byAction)),
	}
	if s.total > 0 {
		snap.SuccessRate = float64(s.recovered) / float64(s.total)
	}
	for k, v := range s.byCategory {
		snap.ByCategory[k] = v
	}
	for k, v := range s.byAction {
		snap.ByAction[k] = v
	}
	return snap
}

// RecoveryEngineOptions bundles dependencies for NewRecoveryEngine.
type RecoveryEngineOptions struct {
	Ledger    core.CreditLedger // Required: refunds
	Notifier  core.UserNotifier // Required: user messages
	Fallbacks FallbackPicker    // Required: provider switches
	Clock     core.Clock        // Required: retry back-off
	Metrics   statsd.Sink       // Optional
	Logger    *slog.Logger      // Optional
}

// RecoveryEngine turns classified workflow failures into remediation
// decisions. It mutates the job it is handed (retry counters, plan changes,
// terminal cancellation) but never persists it; the orchestrator owns
// persistence.
type RecoveryEngine struct {
	ledger    core.CreditLedger
	notifier  core.UserNotifier
	fallbacks FallbackPicker
	clock     core.Clock
	metrics   statsd.Sink
	logger    *slog.Logger
	stats     *RecoveryStats
}

// NewRecoveryEngine constructs a RecoveryEngine.
func NewRecoveryEngine(opts RecoveryEngineOptions) (*RecoveryEngine, error) {
	if opts.Ledger == nil {
		return nil, errors.New("CreditLedger is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("UserNotifier is required")
	}
	if opts.Fallbacks == nil {
		return nil, errors.New("FallbackPicker is required")
	}
	if opts.Clock == nil {
		return nil, errors.New("Clock is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "recovery_engine")
	}

	return &RecoveryEngine{
		ledger:    opts.Ledger,
		notifier:  opts.Notifier,
		fallbacks: opts.Fallbacks,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
		logger:    logger,
		stats:     newRecoveryStats(),
	}, nil
}

// MustNewRecoveryEngine constructs a RecoveryEngine and panics on error.
func MustNewRecoveryEngine(opts RecoveryEngineOptions) *RecoveryEngine {
	engine, err := NewRecoveryEngine(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // fail fast on invalid startup wiring
	}
	return engine
}

// Stats returns a snapshot of the engine's counters.
func (e *RecoveryEngine) Stats() RecoveryStatsSnapshot {
	return e.stats.Snapshot()
}

// Handle classifies the failure, looks up its plan, and walks the plan's
// actions until one resolves the situation. Context cancellation aborts
// mid-plan with the context error.
func (e *RecoveryEngine) Handle(
	ctx context.Context,
	job *model.GenerationJob,
	cause error,
	step model.GenerationStep,
) (*model.RecoveryOutcome, error) {
	category, severity := Classify(cause, "")
	ec := model.ErrorContext{
		JobID:      job.ID,
		UserID:     job.Request.UserID,
		Step:       step,
		Provider:   job.Plan.Provider,
		Category:   category,
		Severity:   severity,
		Message:    cause.Error(),
		RetryCount: job.RetryCount,
		RetryAfter: apperrors.GetRetryAfter(cause),
		OccurredAt: e.clock.Now(),
	}

	plan := PlanFor(category)
	if apperrors.IsPayloadTooLarge(cause) {
		plan = payloadTooLargePlan
	}

	if e.logger != nil {
		e.logger.WarnContext(ctx, "handling workflow failure",
			"job_id", job.ID,
			"step", step,
			"category", category,
			"severity", severity,
			"retry_count", job.RetryCount,
			"error", cause,
		)
	}

	notified := plan.NotifyUser
	if plan.NotifyUser {
		e.notify(ctx, job, userMessageFor(category))
	}

	outcome := &model.RecoveryOutcome{}
	actions := make([]model.RecoveryAction, 0, len(plan.PrimaryActions)+len(plan.FallbackActions))
	actions = append(actions, plan.PrimaryActions...)
	actions = append(actions, plan.FallbackActions...)

	for i, action := range actions {
		inFallback := i >= len(plan.PrimaryActions)
		if action == model.ActionNotifyUser && notified {
			// The plan-level notification already went out; a second copy of
			// the same message would only confuse the user.
			outcome.Attempts = append(outcome.Attempts, model.ActionAttempt{
				Action: action,
				OK:     false,
				Detail: "user already notified",
				At:     e.clock.Now(),
			})
			continue
		}
		resolved, detail, err := e.execute(ctx, job, plan, action, &ec, outcome)
		if err != nil {
			// Context cancellation only; record and abort.
			e.stats.record(category, action, false)
			return nil, err
		}
		if action == model.ActionNotifyUser {
			notified = true
		}
		outcome.Attempts = append(outcome.Attempts, model.ActionAttempt{
			Action: action,
			OK:     resolved,
			Detail: detail,
			At:     e.clock.Now(),
		})
		if resolved {
			outcome.Success = true
			outcome.Action = action
			outcome.FallbackUsed = inFallback
			e.stats.record(category, action, true)
			metrics.EmitRecovery(e.metrics, metrics.RecoveryMetric{
				Category:  string(category),
				Action:    string(action),
				Recovered: true,
			})
			return outcome, nil
		}
	}

	outcome.Success = false
	outcome.RequiresManualIntervention = true
	e.stats.record(category, "", false)
	metrics.EmitRecovery(e.metrics, metrics.RecoveryMetric{Category: string(category)})
	if e.logger != nil {
		e.logger.ErrorContext(ctx, "recovery exhausted",
			"job_id", job.ID, "category", category, "attempts", len(outcome.Attempts))
	}
	return outcome, nil
}

// execute runs one action. The bool reports whether the action resolved the
// failure; a non-nil error aborts the whole plan (context cancellation).
func (e *RecoveryEngine) execute(
	ctx context.Context,
	job *model.GenerationJob,
	plan model.RecoveryPlan,
	action model.RecoveryAction,
	ec *model.ErrorContext,
	outcome *model.RecoveryOutcome,
) (bool, string, error) {
	switch action {
	case model.ActionRetry, model.ActionPartialRetry:
		if job.RetryCount >= plan.MaxRetries {
			return false, fmt.Sprintf("retry budget exhausted (%d)", plan.MaxRetries), nil
		}
		delay := plan.RetryDelay
		if ec.RetryAfter > delay {
			// Honor the provider's requested back-off over our default.
			delay = ec.RetryAfter
		}
		if delay > 0 {
			if err := e.clock.Sleep(ctx, delay); err != nil {
				return false, "", err
			}
		}
		job.RetryCount++
		outcome.ResumeStep = ec.Step
		return true, "", nil

	case model.ActionFallbackProvider:
		provider, err := e.fallbacks.TryFallback(ctx, job, string(ec.Category))
		if err != nil {
			if ctx.Err() != nil {
				return false, "", ctx.Err()
			}
			return false, err.Error(), nil
		}
		outcome.NewProvider = provider
		outcome.ResumeStep = resumeStepFor(ec.Step)
		return true, "switched to " + provider, nil

	case model.ActionQualityDowngrade:
		lower, ok := job.Plan.Quality.Downgrade()
		if !ok {
			return false, "already at lowest quality tier", nil
		}
		job.Plan.Quality = lower
		outcome.NewQuality = lower
		outcome.ResumeStep = resumeStepFor(ec.Step)
		return true, "downgraded to " + string(lower), nil

	case model.ActionNotifyUser:
		e.notify(ctx, job, userMessageFor(ec.Category))
		// Informational only; never resolves the failure.
		return false, "user notified", nil

	case model.ActionCancel:
		refund := e.refund(ctx, job, plan.RefundFraction)
		job.MarkCancelled(string(ec.Category), e.clock.Now())
		outcome.RefundIssued = refund
		outcome.UserMessage = userMessageFor(ec.Category)
		return true, fmt.Sprintf("cancelled, refunded %.2f credits", refund), nil

	default:
		return false, "unsupported action " + string(action), nil
	}
}

// resumeStepFor picks where a rerouted or downgraded job continues. A failure
// before the render resumes at the failing step so the intermediate stages
// still run; a failure during or after the render restarts it.
func resumeStepFor(step model.GenerationStep) model.GenerationStep {
	if idx := step.Index(); idx >= 0 && idx < model.StepVideoGeneration.Index() {
		return step
	}
	return model.StepVideoGeneration
}

// refund issues at most the unrefunded remainder of the job's accrued cost.
func (e *RecoveryEngine) refund(ctx context.Context, job *model.GenerationJob, fraction float64) float64 {
	if fraction <= 0 || job.AccruedCost <= 0 {
		return 0
	}
	amount := job.AccruedCost * fraction
	if remaining := job.AccruedCost - job.RefundedCredits; amount > remaining {
		amount = remaining
	}
	if amount <= 0 {
		return 0
	}
	err := e.ledger.Refund(ctx, core.RefundParams{
		UserID:  job.Request.UserID,
		JobID:   job.ID,
		Credits: amount,
		Reason:  "recovery_cancel",
	})
	if err != nil {
		if e.logger != nil {
			e.logger.ErrorContext(ctx, "refund failed", "job_id", job.ID, "error", err)
		}
		return 0
	}
	job.RefundedCredits += amount
	return amount
}

func (e *RecoveryEngine) notify(ctx context.Context, job *model.GenerationJob, message string) {
	err := e.notifier.Notify(ctx, core.UserNotification{
		UserID:  job.Request.UserID,
		JobID:   job.ID,
		Kind:    "generation_issue",
		Message: message,
	})
	if err != nil && e.logger != nil {
		e.logger.WarnContext(ctx, "user notification failed", "job_id", job.ID, "error", err)
	}
}

// userMessageFor maps categories to the user-facing copy sent with
// notifications and cancellations.
func userMessageFor(category model.ErrorCategory) string {
	switch category {
	case model.CategoryInsufficientCredit:
		return "Your video could not be generated because your credit balance is too low. Any charged credits have been refunded."
	case model.CategoryMissingResource:
		return "Your source photo could not be found. Please re-upload it and try again."
	case model.CategoryInvalidInput:
		return "Your request could not be processed as submitted. Please review the script and photo and try again."
	case model.CategoryProviderUnavailable:
		return "Our video service is temporarily unavailable. We are rerouting your request."
	case model.CategoryRateLimit:
		return "Generation is briefly delayed due to high demand. Your video will start shortly."
	default:
		return "We hit a problem generating your video and are working to recover it automatically."
	}
}
