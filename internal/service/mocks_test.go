package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/talkingphoto/pipeline/internal/core"
	"github.com/talkingphoto/pipeline/internal/domain/model"
	"github.com/talkingphoto/pipeline/internal/providers"
)

// Hand-written fakes for the core ports. Every fake is safe for concurrent
// use so orchestrator tests can exercise the real locking paths.

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleep advances the clock instead of blocking, so poll loops and retry
// delays run instantly in tests.
func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

type fakeCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	setErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.mu.Lock()
	c.data[key] = value
	c.mu.Unlock()
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *fakeCache) Delete(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	delete(c.data, key)
	return ok, nil
}

func (c *fakeCache) SetIfNotExists(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		return false, nil
	}
	c.data[key] = value
	return true, nil
}

func (c *fakeCache) Health(context.Context) error { return nil }

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data[key]) > 0
}

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]float64
	deducts    []core.DeductParams
	refunds    []core.RefundParams
	balanceErr error
	deductErr  error
	refundErr  error
}

func newFakeLedger(balances map[string]float64) *fakeLedger {
	if balances == nil {
		balances = make(map[string]float64)
	}
	return &fakeLedger{balances: balances}
}

func (l *fakeLedger) Balance(_ context.Context, userID string) (float64, error) {
	if l.balanceErr != nil {
		return 0, l.balanceErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *fakeLedger) Deduct(_ context.Context, params core.DeductParams) error {
	if l.deductErr != nil {
		return l.deductErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deducts = append(l.deducts, params)
	l.balances[params.UserID] -= params.Credits
	return nil
}

func (l *fakeLedger) Refund(_ context.Context, params core.RefundParams) error {
	if l.refundErr != nil {
		return l.refundErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds = append(l.refunds, params)
	l.balances[params.UserID] += params.Credits
	return nil
}

func (l *fakeLedger) refundTotal() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total float64
	for _, r := range l.refunds {
		total += r.Credits
	}
	return total
}

type fakeJobRepo struct {
	mu          sync.Mutex
	jobs        map[string]*model.GenerationJob
	transitions []model.JobTransition
	cancelFlags map[string]bool
	updateErr   error
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{
		jobs:        make(map[string]*model.GenerationJob),
		cancelFlags: make(map[string]bool),
	}
}

func (r *fakeJobRepo) Create(_ context.Context, job *model.GenerationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id string) (*model.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	return job, nil
}

func (r *fakeJobRepo) Update(_ context.Context, job *model.GenerationJob) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) ReserveNext(context.Context) (*model.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, job := range r.jobs {
		if job.Status == model.StatusPending {
			job.Status = model.StatusProcessing
			return job, nil
		}
	}
	return nil, model.ErrNoJobsAvailable
}

func (r *fakeJobRepo) RequestCancel(_ context.Context, id, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Terminal() {
		return false, nil
	}
	r.cancelFlags[id] = true
	return true, nil
}

func (r *fakeJobRepo) CancelRequested(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelFlags[id], nil
}

func (r *fakeJobRepo) setCancelFlag(id string) {
	r.mu.Lock()
	r.cancelFlags[id] = true
	r.mu.Unlock()
}

func (r *fakeJobRepo) ListByUser(_ context.Context, userID string, _ int) ([]*model.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.GenerationJob
	for _, job := range r.jobs {
		if job.Request.UserID == userID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) RecordTransition(_ context.Context, t *model.JobTransition) error {
	r.mu.Lock()
	r.transitions = append(r.transitions, *t)
	r.mu.Unlock()
	return nil
}

type fakeArtifacts struct {
	mu       sync.Mutex
	stored   []string
	deleted  []string
	storeErr error
}

func (a *fakeArtifacts) Store(_ context.Context, jobID, srcURL string) (*core.StoredArtifact, error) {
	if a.storeErr != nil {
		return nil, a.storeErr
	}
	a.mu.Lock()
	a.stored = append(a.stored, srcURL)
	a.mu.Unlock()
	return &core.StoredArtifact{
		Path: "artifacts/" + jobID + "/video.mp4",
		URL:  "https://cdn.local/artifacts/" + jobID + "/video.mp4",
		Size: 1024,
	}, nil
}

func (a *fakeArtifacts) Delete(_ context.Context, path string) error {
	a.mu.Lock()
	a.deleted = append(a.deleted, path)
	a.mu.Unlock()
	return nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	sent      []core.UserNotification
	notifyErr error
}

func (n *fakeNotifier) Notify(_ context.Context, notification core.UserNotification) error {
	if n.notifyErr != nil {
		return n.notifyErr
	}
	n.mu.Lock()
	n.sent = append(n.sent, notification)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type fakeMedia struct {
	mu          sync.Mutex
	analysis    *core.PhotoAnalysis
	analyzeErr  error
	enhanceErr  error
	speechErr   error
	lipSyncErr  error
	thumbErr    error
	speechCalls int

	// speechHook runs before each SynthesizeSpeech call; tests use it to
	// inject failures or cancellation mid-workflow.
	speechHook func()
}

func (m *fakeMedia) AnalyzePhoto(context.Context, string) (*core.PhotoAnalysis, error) {
	if m.analyzeErr != nil {
		return nil, m.analyzeErr
	}
	if m.analysis != nil {
		return m.analysis, nil
	}
	return &core.PhotoAnalysis{QualityScore: 0.9, LightingQuality: 1.0}, nil
}

func (m *fakeMedia) EnhancePhoto(_ context.Context, fileID string) (string, error) {
	if m.enhanceErr != nil {
		return "", m.enhanceErr
	}
	return fileID + "-enhanced", nil
}

func (m *fakeMedia) SynthesizeSpeech(_ context.Context, req core.SpeechRequest) (string, error) {
	m.mu.Lock()
	m.speechCalls++
	hook := m.speechHook
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	if m.speechErr != nil {
		return "", m.speechErr
	}
	return "audio/" + req.JobID + ".wav", nil
}

func (m *fakeMedia) PrepareLipSync(_ context.Context, req core.LipSyncRequest) (string, error) {
	if m.lipSyncErr != nil {
		return "", m.lipSyncErr
	}
	return "lipsync/" + req.JobID + ".dat", nil
}

func (m *fakeMedia) GenerateThumbnail(_ context.Context, jobID, _ string) (string, error) {
	if m.thumbErr != nil {
		return "", m.thumbErr
	}
	return "thumbs/" + jobID + ".jpg", nil
}

// fakeProvider is a scriptable vendor adapter. Status responses are consumed
// in order; the last one repeats.
type fakeProvider struct {
	desc      providers.Descriptor
	submitErr error
	statusErr error
	statuses  []*providers.RenderStatus

	mu          sync.Mutex
	submits     int
	statusCalls int
}

func (p *fakeProvider) Descriptor() providers.Descriptor { return p.desc }

func (p *fakeProvider) Submit(_ context.Context, req providers.SubmitRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submits++
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return p.desc.Name + "-" + req.JobID, nil
}

func (p *fakeProvider) Status(context.Context, string) (*providers.RenderStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	idx := p.statusCalls - 1
	if idx >= len(p.statuses) {
		idx = len(p.statuses) - 1
	}
	return p.statuses[idx], nil
}

// fallbackPickerFunc adapts a function to the FallbackPicker interface.
type fallbackPickerFunc func(ctx context.Context, job *model.GenerationJob, reason string) (string, error)

func (f fallbackPickerFunc) TryFallback(ctx context.Context, job *model.GenerationJob, reason string) (string, error) {
	return f(ctx, job, reason)
}

func testRequest() model.GenerationRequest {
	return model.GenerationRequest{
		UserID:         "user-1",
		SourceFileID:   "photo-1",
		SourceFileHash: "abc123",
		ScriptText:     "Hello there, this is a short narration script for testing.",
		VoiceSettings:  model.VoiceSettings{Language: "en-US", Voice: "nova", Speed: 1.0},
		Quality:        model.QualityStandard,
		AspectRatio:    model.AspectLandscape,
	}
}

func testJob(id string) *model.GenerationJob {
	req := testRequest()
	req.DurationSeconds = 10
	return &model.GenerationJob{
		ID:      id,
		Request: req,
		Step:    model.StepValidation,
		Status:  model.StatusPending,
		Plan: model.ProcessingPlan{
			Provider: "veo3",
			Quality:  req.Quality,
		},
	}
}
