package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/domain/model"
	apperrors "github.com/talkingphoto/pipeline/internal/errors"
	"github.com/talkingphoto/pipeline/internal/observability/metrics"
	"github.com/talkingphoto/pipeline/internal/observability/statsd"
)

// Cumulative progress after each completed step, derived from the fixed step
// weights. Video generation reports live progress inside the 65-85 band.
const (
	videoBandStart = 65.0
	videoBandEnd   = 85.0

	enhancementSkipScore = 0.8
)

// defaultStepTimeouts per step, in the workflow's execution order.
var defaultStepTimeouts = map[model.GenerationStep]time.Duration{
	model.StepValidation:        10 * time.Second,
	model.StepPhotoEnhancement:  30 * time.Second,
	model.StepSpeechSynthesis:   15 * time.Second,
	model.StepLipSyncProcessing: 20 * time.Second,
	model.StepVideoGeneration:   120 * time.Second,
	model.StepPostProcessing:    30 * time.Second,
	model.StepStorageUpload:     20 * time.Second,
	model.StepCompletion:        5 * time.Second,
}

// OrchestratorConfig tunes the workflow state machine.
type OrchestratorConfig struct {
	// StepTimeouts overrides the default per-step deadlines.
	StepTimeouts map[model.GenerationStep]time.Duration
	// TargetSeconds is the optimizer's time budget; zero disables the
	// budget and the optimizer only applies clear wins.
	TargetSeconds float64
	// CancelPollInterval is how often a background watcher checks the
	// repository's cancel flag during execution. Zero disables the watcher;
	// cancellation is then only observed between steps.
	CancelPollInterval time.Duration
}

func (c OrchestratorConfig) stepTimeout(step model.GenerationStep) time.Duration {
	if d, ok := c.StepTimeouts[step]; ok && d > 0 {
		return d
	}
	return defaultStepTimeouts[step]
}

// OrchestratorOptions bundles dependencies for NewOrchestrator.
type OrchestratorOptions struct {
	Jobs      core.JobRepository  // Required
	Ledger    core.CreditLedger   // Required
	Router    *Router             // Required
	Recovery  *RecoveryEngine     // Required
	Optimizer *Optimizer          // Required
	Media     core.MediaProcessor // Required
	Notifier  core.UserNotifier   // Required
	Tracker   *PerformanceTracker // Required
	Progress  *ProgressEmitter    // Optional
	Clock     core.Clock          // Required
	Config    OrchestratorConfig
	Metrics   statsd.Sink  // Optional
	Logger    *slog.Logger // Optional
}

// Orchestrator drives a generation job through the eight workflow steps,
// escalating failures to the recovery engine and emitting weighted progress.
// Exactly one executor goroutine owns a job at a time.
type Orchestrator struct {
	jobs      core.JobRepository
	ledger    core.CreditLedger
	router    *Router
	recovery  *RecoveryEngine
	optimizer *Optimizer
	media     core.MediaProcessor
	notifier  core.UserNotifier
	tracker   *PerformanceTracker
	progress  *ProgressEmitter
	clock     core.Clock
	cfg       OrchestratorConfig
	metrics   statsd.Sink
	logger    *slog.Logger

	locks sync.Map // job id -> *sync.Mutex
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Ledger == nil:
		return nil, errors.New("CreditLedger is required")
	case opts.Router == nil:
		return nil, errors.New("Router is required")
	case opts.Recovery == nil:
		return nil, errors.New("RecoveryEngine is required")
	case opts.Optimizer == nil:
		return nil, errors.New("Optimizer is required")
	case opts.Media == nil:
		return nil, errors.New("MediaProcessor is required")
	case opts.Notifier == nil:
		return nil, errors.New("UserNotifier is required")
	case opts.Tracker == nil:
		return nil, errors.New("PerformanceTracker is required")
	case opts.Clock == nil:
		return nil, errors.New("Clock is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "workflow_orchestrator")
	}

	return &Orchestrator{
		jobs:      opts.Jobs,
		ledger:    opts.Ledger,
		router:    opts.Router,
		recovery:  opts.Recovery,
		optimizer: opts.Optimizer,
		media:     opts.Media,
		notifier:  opts.Notifier,
		tracker:   opts.Tracker,
		progress:  opts.Progress,
		clock:     opts.Clock,
		cfg:       opts.Config,
		metrics:   opts.Metrics,
		logger:    logger,
	}, nil
}

// MustNewOrchestrator constructs an Orchestrator and panics on error.
func MustNewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o, err := NewOrchestrator(opts)
	if err != nil {
		panic(err) //nolint:forbidigo // fail fast on invalid startup wiring
	}
	return o
}

// Submit validates a request, selects the initial provider, and persists a
// pending job for the worker pool to pick up.
func (o *Orchestrator) Submit(ctx context.Context, req *model.GenerationRequest) (*model.GenerationJob, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid generation request")
	}
	if req.DurationSeconds <= 0 {
		req.DurationSeconds = req.EstimateDuration()
	}

	desc, err := o.router.SelectProvider(ctx, Requirements{Quality: req.Quality})
	if err != nil {
		return nil, fmt.Errorf("select provider: %w", err)
	}

	job := &model.GenerationJob{
		ID:      uuid.NewString(),
		Request: *req,
		Step:    model.StepValidation,
		Status:  model.StatusPending,
		Plan: model.ProcessingPlan{
			Provider: desc.Name,
			Quality:  req.Quality,
		},
		CreatedAt: o.clock.Now(),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "generation submitted",
			"job_id", job.ID, "user_id", req.UserID, "provider", desc.Name, "quality", req.Quality)
	}
	return job, nil
}

// execState carries intermediate artifacts between steps of one execution.
type execState struct {
	analysis       *core.PhotoAnalysis
	photoFileID    string
	audioPath      string
	lipSyncPath    string
	outcome        *GenerationOutcome
	videoStartedAt time.Time
}

// Execute runs the job to a terminal state. It is safe to call concurrently
// for different jobs; concurrent calls for the same job serialize on a
// per-job mutex.
func (o *Orchestrator) Execute(ctx context.Context, job *model.GenerationJob) (*model.WorkflowResult, error) {
	lock := o.lockFor(job.ID)
	lock.Lock()
	// Drop the map entry once the last holder releases it; a waiter blocked
	// on the same mutex still unblocks, sees the terminal job, and returns.
	defer o.locks.Delete(job.ID)
	defer lock.Unlock()

	if job.Terminal() {
		return o.result(job), nil
	}

	ctx, stopWatcher := o.watchCancellation(ctx, job.ID)
	defer stopWatcher()

	startedAt := o.clock.Now()
	prevStatus := job.Status
	job.MarkProcessing(startedAt)
	o.persist(ctx, job, prevStatus, "execution started")

	state := &execState{photoFileID: job.Request.SourceFileID}

	idx := job.Step.Index()
	if idx < 0 {
		idx = 0
	}
	for idx < len(model.Steps) {
		step := model.Steps[idx]
		if stop := o.checkCancelled(ctx, job); stop {
			break
		}

		job.Step = step
		stepStart := o.clock.Now()
		err := o.runStep(ctx, job, state, step)
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
		}
		metrics.EmitWorkflowStep(o.metrics, metrics.StepMetric{
			Step:     string(step),
			Provider: job.Plan.Provider,
			Result:   result,
			Duration: o.clock.Now().Sub(stepStart),
			Err:      err,
		})

		if err == nil {
			o.advanceProgress(job, step)
			o.persist(ctx, job, job.Status, "step completed: "+string(step))
			idx++
			continue
		}

		if ctx.Err() != nil {
			o.cancelJob(ctx, job, "canceled")
			break
		}

		next, terminal := o.recover(ctx, job, err, step)
		if terminal {
			break
		}
		idx = next
	}

	o.finalize(ctx, job, startedAt)
	return o.result(job), nil
}

// recover hands a step failure to the recovery engine and translates the
// outcome into a resume index. terminal=true means the job reached a
// terminal status (or must fail now).
func (o *Orchestrator) recover(
	ctx context.Context,
	job *model.GenerationJob,
	cause error,
	step model.GenerationStep,
) (int, bool) {
	outcome, err := o.recovery.Handle(ctx, job, cause, step)
	if err != nil {
		// Context cancellation mid-plan.
		o.cancelJob(ctx, job, "canceled")
		return 0, true
	}

	if job.Terminal() {
		// Recovery cancelled the job itself.
		o.persist(ctx, job, model.StatusProcessing, "recovery cancelled job")
		return 0, true
	}

	if !outcome.Success {
		msg := cause.Error()
		if outcome.RequiresManualIntervention {
			msg += " (manual intervention required)"
		}
		job.MarkFailed(msg, o.clock.Now())
		o.persist(ctx, job, model.StatusProcessing, "recovery exhausted")
		return 0, true
	}

	resume := outcome.ResumeStep
	if resume == "" {
		resume = step
	}
	if o.logger != nil {
		o.logger.InfoContext(ctx, "recovered from step failure",
			"job_id", job.ID,
			"step", step,
			"action", outcome.Action,
			"resume_step", resume,
			"provider", job.Plan.Provider,
		)
	}
	o.persist(ctx, job, job.Status, fmt.Sprintf("recovered via %s", outcome.Action))
	idx := resume.Index()
	if idx < 0 {
		idx = step.Index()
	}
	return idx, false
}

func (o *Orchestrator) runStep(
	ctx context.Context,
	job *model.GenerationJob,
	state *execState,
	step model.GenerationStep,
) error {
	stepCtx, cancel := context.WithTimeout(ctx, o.cfg.stepTimeout(step))
	defer cancel()

	var err error
	switch step {
	case model.StepValidation:
		err = o.stepValidation(stepCtx, job)
	case model.StepPhotoEnhancement:
		err = o.stepPhotoEnhancement(stepCtx, job, state)
	case model.StepSpeechSynthesis:
		err = o.stepSpeechSynthesis(stepCtx, job, state)
	case model.StepLipSyncProcessing:
		err = o.stepLipSync(stepCtx, job, state)
	case model.StepVideoGeneration:
		err = o.stepVideoGeneration(stepCtx, job, state)
	case model.StepPostProcessing:
		err = o.stepPostProcessing(stepCtx, job, state)
	case model.StepStorageUpload:
		err = o.stepStorageUpload(stepCtx, job)
	case model.StepCompletion:
		err = o.stepCompletion(stepCtx, job, state)
	default:
		err = apperrors.Internalf("unknown step %q", step)
	}

	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeTimeout, "step %s timed out after %s", step, o.cfg.stepTimeout(step))
	}
	return err
}

func (o *Orchestrator) stepValidation(ctx context.Context, job *model.GenerationJob) error {
	if err := job.Request.Validate(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid request")
	}

	desc, err := o.router.registry.Get(job.Plan.Provider)
	if err != nil {
		return err
	}
	cost := desc.Descriptor().CostFor(job.Request.DurationSeconds)

	balance, err := o.ledger.Balance(ctx, job.Request.UserID)
	if err != nil {
		return fmt.Errorf("check credit balance: %w", err)
	}
	if balance < cost {
		return apperrors.PaymentRequired(
			fmt.Sprintf("insufficient credit: balance %.2f, required %.2f", balance, cost))
	}
	return nil
}

// stepPhotoEnhancement analyzes the photo, enhances it unless it already
// scores well, and runs the pre-flight optimizer. Enhancement failures fall
// back to the original photo without failing the workflow.
func (o *Orchestrator) stepPhotoEnhancement(ctx context.Context, job *model.GenerationJob, state *execState) error {
	analysis, err := o.media.AnalyzePhoto(ctx, job.Request.SourceFileID)
	if err != nil {
		return fmt.Errorf("analyze photo: %w", err)
	}
	state.analysis = analysis

	if analysis.QualityScore < enhancementSkipScore {
		enhanced, err := o.media.EnhancePhoto(ctx, job.Request.SourceFileID)
		if err != nil {
			if o.logger != nil {
				o.logger.WarnContext(ctx, "photo enhancement failed, using original",
					"job_id", job.ID, "error", err)
			}
		} else {
			state.photoFileID = enhanced
		}
	}

	optimization, err := o.optimizer.Optimize(ctx, job, analysis, o.cfg.TargetSeconds)
	if err != nil {
		return fmt.Errorf("pre-flight optimization: %w", err)
	}
	if raw, err := json.Marshal(optimization); err == nil {
		job.Optimization = raw
	}
	return nil
}

func (o *Orchestrator) stepSpeechSynthesis(ctx context.Context, job *model.GenerationJob, state *execState) error {
	audioPath, err := o.media.SynthesizeSpeech(ctx, core.SpeechRequest{
		JobID:    job.ID,
		Script:   job.Request.ScriptText,
		Language: job.Request.VoiceSettings.Language,
		Voice:    job.Request.VoiceSettings.Voice,
		Speed:    job.Request.VoiceSettings.Speed,
	})
	if err != nil {
		return fmt.Errorf("synthesize speech: %w", err)
	}
	state.audioPath = audioPath
	return nil
}

func (o *Orchestrator) stepLipSync(ctx context.Context, job *model.GenerationJob, state *execState) error {
	prepared, err := o.media.PrepareLipSync(ctx, core.LipSyncRequest{
		JobID:       job.ID,
		PhotoFileID: state.photoFileID,
		AudioPath:   state.audioPath,
	})
	if err != nil {
		return fmt.Errorf("prepare lip sync: %w", err)
	}
	state.lipSyncPath = prepared
	return nil
}

// stepVideoGeneration reserves credits, delegates the render to the router,
// and refunds immediately on a cache hit.
func (o *Orchestrator) stepVideoGeneration(ctx context.Context, job *model.GenerationJob, state *execState) error {
	desc, err := o.router.registry.Get(job.Plan.Provider)
	if err != nil {
		return err
	}
	cost := desc.Descriptor().CostFor(job.Request.DurationSeconds)

	if cost > 0 && job.AccruedCost == 0 {
		err := o.ledger.Deduct(ctx, core.DeductParams{
			UserID:  job.Request.UserID,
			JobID:   job.ID,
			Credits: cost,
			Reason:  "generation",
		})
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodePaymentRequired, "reserve generation credits")
		}
		job.AccruedCost = cost
	}

	state.videoStartedAt = o.clock.Now()
	outcome, err := o.router.Generate(ctx, job, func(pct float64) {
		o.emitProgress(job, videoBandStart+clamp01(pct/100)*(videoBandEnd-videoBandStart), "rendering video")
	})
	if err != nil {
		return err
	}
	state.outcome = outcome

	if outcome.CacheHit && job.AccruedCost > job.RefundedCredits {
		refund := job.AccruedCost - job.RefundedCredits
		err := o.ledger.Refund(ctx, core.RefundParams{
			UserID:  job.Request.UserID,
			JobID:   job.ID,
			Credits: refund,
			Reason:  "cache_hit",
		})
		if err == nil {
			job.RefundedCredits += refund
		} else if o.logger != nil {
			o.logger.WarnContext(ctx, "cache-hit refund failed", "job_id", job.ID, "error", err)
		}
	}

	job.ResultPath = outcome.StoredPath
	job.ResultURL = outcome.StoredURL
	job.Quality = outcome.Quality
	return nil
}

// stepPostProcessing generates a thumbnail. Best-effort: failures never fail
// the workflow.
func (o *Orchestrator) stepPostProcessing(ctx context.Context, job *model.GenerationJob, state *execState) error {
	if state.outcome == nil {
		return apperrors.Internal("post-processing reached without a generation outcome")
	}
	if _, err := o.media.GenerateThumbnail(ctx, job.ID, job.ResultPath); err != nil {
		if o.logger != nil {
			o.logger.WarnContext(ctx, "thumbnail generation failed", "job_id", job.ID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) stepStorageUpload(_ context.Context, job *model.GenerationJob) error {
	// The router finalized the artifact when the render completed; this
	// step verifies the durable location before the job is declared done.
	if job.ResultPath == "" {
		return apperrors.NotFound("stored artifact missing after generation")
	}
	return nil
}

func (o *Orchestrator) stepCompletion(ctx context.Context, job *model.GenerationJob, state *execState) error {
	if state.outcome != nil && !state.outcome.CacheHit && !state.videoStartedAt.IsZero() {
		o.tracker.Record(state.outcome.Provider, o.clock.Now().Sub(state.videoStartedAt))
	}

	err := o.notifier.Notify(ctx, core.UserNotification{
		UserID:  job.Request.UserID,
		JobID:   job.ID,
		Kind:    "generation_completed",
		Message: "Your video is ready.",
	})
	if err != nil && o.logger != nil {
		o.logger.WarnContext(ctx, "completion notification failed", "job_id", job.ID, "error", err)
	}

	if o.logger != nil {
		o.logger.InfoContext(ctx, "generation analytics",
			"job_id", job.ID,
			"user_id", job.Request.UserID,
			"provider", job.Plan.Provider,
			"fallback_used", job.FallbackUsed(),
			"quality", job.Plan.Quality,
			"cost_credits", job.AccruedCost-job.RefundedCredits,
			"cache_hit", state.outcome != nil && state.outcome.CacheHit,
		)
	}
	return nil
}

// advanceProgress moves the job's progress to the cumulative weight of all
// completed steps and emits an event.
func (o *Orchestrator) advanceProgress(job *model.GenerationJob, completed model.GenerationStep) {
	cumulative := 0
	for _, step := range model.Steps {
		cumulative += model.StepWeights[step]
		if step == completed {
			break
		}
	}
	if pct := float64(cumulative); pct > job.ProgressPercent {
		job.ProgressPercent = pct
	}
	o.emitProgress(job, job.ProgressPercent, "completed "+string(completed))
}

func (o *Orchestrator) emitProgress(job *model.GenerationJob, percent float64, message string) {
	if percent > job.ProgressPercent {
		job.ProgressPercent = percent
	}
	if o.progress == nil {
		return
	}
	o.progress.Emit(model.ProgressEvent{
		JobID:    job.ID,
		UserID:   job.Request.UserID,
		Step:     job.Step,
		Percent:  job.ProgressPercent,
		Message:  message,
		Provider: job.Plan.Provider,
		At:       o.clock.Now(),
	})
}

// checkCancelled consults the repository cancel flag and context. Returns
// true when execution must stop.
func (o *Orchestrator) checkCancelled(ctx context.Context, job *model.GenerationJob) bool {
	if ctx.Err() != nil {
		o.cancelJob(ctx, job, "canceled")
		return true
	}
	requested, err := o.jobs.CancelRequested(ctx, job.ID)
	if err != nil {
		if o.logger != nil {
			o.logger.WarnContext(ctx, "cancel flag check failed", "job_id", job.ID, "error", err)
		}
		return false
	}
	if requested {
		o.cancelJob(ctx, job, "user requested cancellation")
		return true
	}
	return false
}

// cancelJob marks the job cancelled and refunds all accrued credits.
func (o *Orchestrator) cancelJob(ctx context.Context, job *model.GenerationJob, reason string) {
	if job.Terminal() {
		return
	}
	// Use a detached context so cleanup survives the canceled one.
	persistCtx := context.WithoutCancel(ctx)

	if remaining := job.AccruedCost - job.RefundedCredits; remaining > 0 {
		err := o.ledger.Refund(persistCtx, core.RefundParams{
			UserID:  job.Request.UserID,
			JobID:   job.ID,
			Credits: remaining,
			Reason:  "cancellation",
		})
		if err == nil {
			job.RefundedCredits += remaining
		} else if o.logger != nil {
			o.logger.ErrorContext(persistCtx, "cancellation refund failed", "job_id", job.ID, "error", err)
		}
	}

	job.MarkCancelled(reason, o.clock.Now())
	o.persist(persistCtx, job, model.StatusProcessing, "cancelled: "+reason)

	err := o.notifier.Notify(persistCtx, core.UserNotification{
		UserID:  job.Request.UserID,
		JobID:   job.ID,
		Kind:    "generation_cancelled",
		Message: "Your video generation was cancelled. Unused credits were refunded.",
	})
	if err != nil && o.logger != nil {
		o.logger.WarnContext(persistCtx, "cancellation notification failed", "job_id", job.ID, "error", err)
	}
}

// finalize emits terminal metrics and notifications once the loop exits.
func (o *Orchestrator) finalize(ctx context.Context, job *model.GenerationJob, startedAt time.Time) {
	persistCtx := context.WithoutCancel(ctx)
	now := o.clock.Now()

	if !job.Terminal() {
		// Loop ran off the end of the steps: success.
		prev := job.Status
		job.MarkCompleted(now)
		o.persist(persistCtx, job, prev, "workflow completed")
	}

	if job.Status == model.StatusFailed {
		err := o.notifier.Notify(persistCtx, core.UserNotification{
			UserID:  job.Request.UserID,
			JobID:   job.ID,
			Kind:    "generation_failed",
			Message: "We could not generate your video. Our team has been notified.",
		})
		if err != nil && o.logger != nil {
			o.logger.WarnContext(persistCtx, "failure notification failed", "job_id", job.ID, "error", err)
		}
	}

	if o.progress != nil {
		o.progress.Forget(job.ID)
	}
	metrics.EmitWorkflowOutcome(o.metrics, metrics.WorkflowMetric{
		Status:       string(job.Status),
		Provider:     job.Plan.Provider,
		FallbackUsed: job.FallbackUsed(),
		Duration:     now.Sub(startedAt),
	})
}

// persist updates the job row and appends an audit transition. Persistence
// failures are logged, not fatal: the in-memory state machine stays the
// source of truth for the current execution.
func (o *Orchestrator) persist(ctx context.Context, job *model.GenerationJob, from model.JobStatus, detail string) {
	if err := o.jobs.Update(ctx, job); err != nil {
		if o.logger != nil {
			o.logger.ErrorContext(ctx, "persist job failed", "job_id", job.ID, "error", err)
		}
		return
	}
	err := o.jobs.RecordTransition(ctx, &model.JobTransition{
		JobID:      job.ID,
		FromStatus: from,
		ToStatus:   job.Status,
		Step:       job.Step,
		Detail:     detail,
		At:         o.clock.Now(),
	})
	if err != nil && o.logger != nil {
		o.logger.WarnContext(ctx, "record transition failed", "job_id", job.ID, "error", err)
	}
}

// watchCancellation optionally spawns a watcher that cancels the execution
// context when the repository's cancel flag is set.
func (o *Orchestrator) watchCancellation(ctx context.Context, jobID string) (context.Context, func()) {
	if o.cfg.CancelPollInterval <= 0 {
		return ctx, func() {}
	}
	watched, cancel := context.WithCancel(ctx)
	go func() {
		for {
			if err := o.clock.Sleep(watched, o.cfg.CancelPollInterval); err != nil {
				return
			}
			requested, err := o.jobs.CancelRequested(watched, jobID)
			if err == nil && requested {
				cancel()
				return
			}
		}
	}()
	return watched, cancel
}

func (o *Orchestrator) result(job *model.GenerationJob) *model.WorkflowResult {
	result := &model.WorkflowResult{
		JobID:           job.ID,
		Status:          job.Status,
		Provider:        job.Plan.Provider,
		FallbackUsed:    job.FallbackUsed(),
		ResultPath:      job.ResultPath,
		ResultURL:       job.ResultURL,
		CostCredits:     job.AccruedCost - job.RefundedCredits,
		RefundedCredits: job.RefundedCredits,
		Quality:         job.Quality,
	}
	if job.StartedAt != nil && job.CompletedAt != nil {
		result.Elapsed = job.CompletedAt.Sub(*job.StartedAt)
	}
	if job.LastError != nil {
		result.Error = *job.LastError
	}
	return result
}

func (o *Orchestrator) lockFor(jobID string) *sync.Mutex {
	actual, _ := o.locks.LoadOrStore(jobID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}
