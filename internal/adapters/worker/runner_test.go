package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/domain/model"
	"github.com/talkingphoto/pipeline/internal/providers"
	"github.com/talkingphoto/pipeline/internal/service"
)

type queueRepo struct {
	mu         sync.Mutex
	jobs       map[string]*model.GenerationJob
	pending    []*model.GenerationJob
	reserveErr error
}

func newQueueRepo() *queueRepo {
	return &queueRepo{jobs: make(map[string]*model.GenerationJob)}
}

func (r *queueRepo) Create(_ context.Context, job *model.GenerationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	r.pending = append(r.pending, job)
	return nil
}

func (r *queueRepo) GetByID(_ context.Context, id string) (*model.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return job, nil
}

func (r *queueRepo) Update(_ context.Context, job *model.GenerationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *queueRepo) ReserveNext(context.Context) (*model.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reserveErr != nil {
		return nil, r.reserveErr
	}
	if len(r.pending) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	job := r.pending[0]
	r.pending = r.pending[1:]
	return job, nil
}

func (r *queueRepo) RequestCancel(context.Context, string, string) (bool, error) {
	return false, nil
}

func (r *queueRepo) CancelRequested(context.Context, string) (bool, error) { return false, nil }

func (r *queueRepo) ListByUser(context.Context, string, int) ([]*model.GenerationJob, error) {
	return nil, nil
}

func (r *queueRepo) RecordTransition(context.Context, *model.JobTransition) error { return nil }

// cancelAfterClock cancels the run context once the idle loop has slept
// the configured number of times.
type cancelAfterClock struct {
	mu         sync.Mutex
	sleeps     int
	cancelAt   int
	cancelFunc context.CancelFunc
}

func (c *cancelAfterClock) Now() time.Time { return time.Now() }

func (c *cancelAfterClock) Sleep(ctx context.Context, _ time.Duration) error {
	c.mu.Lock()
	c.sleeps++
	if c.sleeps >= c.cancelAt {
		c.cancelFunc()
	}
	c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// instantClock advances a manual time instead of sleeping so the service
// graph runs synchronously.
type instantClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

type staticLedger struct{}

func (staticLedger) Balance(context.Context, string) (float64, error) { return 100, nil }
func (staticLedger) Deduct(context.Context, core.DeductParams) error  { return nil }
func (staticLedger) Refund(context.Context, core.RefundParams) error  { return nil }

type nilCache struct{}

func (nilCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (nilCache) Get(context.Context, string) ([]byte, error)              { return nil, nil }
func (nilCache) Delete(context.Context, string) (bool, error)             { return false, nil }
func (nilCache) SetIfNotExists(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}
func (nilCache) Health(context.Context) error { return nil }

type localArtifacts struct{}

func (localArtifacts) Store(_ context.Context, jobID, _ string) (*core.StoredArtifact, error) {
	return &core.StoredArtifact{Path: "artifacts/" + jobID + "/video.mp4"}, nil
}
func (localArtifacts) Delete(context.Context, string) error { return nil }

type silentNotifier struct{}

func (silentNotifier) Notify(context.Context, core.UserNotification) error { return nil }

type passthroughMedia struct{}

func (passthroughMedia) AnalyzePhoto(context.Context, string) (*core.PhotoAnalysis, error) {
	return &core.PhotoAnalysis{QualityScore: 0.9, LightingQuality: 1.0}, nil
}
func (passthroughMedia) EnhancePhoto(_ context.Context, fileID string) (string, error) {
	return fileID, nil
}
func (passthroughMedia) SynthesizeSpeech(context.Context, core.SpeechRequest) (string, error) {
	return "audio.wav", nil
}
func (passthroughMedia) PrepareLipSync(context.Context, core.LipSyncRequest) (string, error) {
	return "lipsync.dat", nil
}
func (passthroughMedia) GenerateThumbnail(context.Context, string, string) (string, error) {
	return "thumb.jpg", nil
}

func newStubOrchestrator(t *testing.T, repo *queueRepo) *service.Orchestrator {
	t.Helper()

	clock := &instantClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	registry := providers.MustNewRegistry(providers.NewStub())

	router := service.MustNewRouter(service.RouterOptions{
		Registry:  registry,
		Cache:     nilCache{},
		Artifacts: localArtifacts{},
		Clock:     clock,
	})
	recovery := service.MustNewRecoveryEngine(service.RecoveryEngineOptions{
		Ledger:    staticLedger{},
		Notifier:  silentNotifier{},
		Fallbacks: router,
		Clock:     clock,
	})
	tracker := service.NewPerformanceTracker(clock)
	optimizer := service.MustNewOptimizer(service.OptimizerOptions{
		Registry: registry,
		Tracker:  tracker,
		Cache:    nilCache{},
	})
	return service.MustNewOrchestrator(service.OrchestratorOptions{
		Jobs:      repo,
		Ledger:    staticLedger{},
		Router:    router,
		Recovery:  recovery,
		Optimizer: optimizer,
		Media:     passthroughMedia{},
		Notifier:  silentNotifier{},
		Tracker:   tracker,
		Clock:     clock,
		Config:    service.OrchestratorConfig{TargetSeconds: 30},
	})
}

func TestRunner_IdleLoopStopsOnCancel(t *testing.T) {
	repo := newQueueRepo()
	ctx, cancel := context.WithCancel(context.Background())
	clock := &cancelAfterClock{cancelAt: 3, cancelFunc: cancel}

	runner, err := NewRunner(RunnerOptions{
		Jobs:         repo,
		Orchestrator: newStubOrchestrator(t, repo),
		Clock:        clock,
		PollInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	err = runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, clock.sleeps, 3)
}

func TestRunner_FatalReserveErrorPropagates(t *testing.T) {
	repo := newQueueRepo()
	repo.reserveErr = errors.New("connection refused")

	runner, err := NewRunner(RunnerOptions{
		Jobs:         repo,
		Orchestrator: newStubOrchestrator(t, repo),
	})
	require.NoError(t, err)

	err = runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve next")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRunner_ProcessesJobToCompletion(t *testing.T) {
	repo := newQueueRepo()
	orchestrator := newStubOrchestrator(t, repo)

	job, err := orchestrator.Submit(context.Background(), &model.GenerationRequest{
		UserID:       "user-1",
		SourceFileID: "photo-1",
		ScriptText:   "A script long enough to pass the minimum length check.",
		Quality:      model.QualityStandard,
		AspectRatio:  model.AspectLandscape,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	clock := &cancelAfterClock{cancelAt: 1, cancelFunc: cancel}

	runner, err := NewRunner(RunnerOptions{
		Jobs:         repo,
		Orchestrator: orchestrator,
		Clock:        clock,
	})
	require.NoError(t, err)

	err = runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, 100.0, stored.ProgressPercent)
}

func TestNewRunner_Validation(t *testing.T) {
	repo := newQueueRepo()

	_, err := NewRunner(RunnerOptions{Orchestrator: newStubOrchestrator(t, repo)})
	assert.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: repo})
	assert.Error(t, err)
}
