package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/talkingphoto/pipeline/internal/domain/model"
)

const defaultProgressBuffer = 256

// ProgressHandler consumes delivered progress events.
type ProgressHandler func(event model.ProgressEvent)

// ProgressEmitterOptions bundles dependencies for NewProgressEmitter.
type ProgressEmitterOptions struct {
	// Buffer is the channel capacity; events are dropped, never blocked on,
	// when the buffer is full.
	Buffer  int
	Handler ProgressHandler // Optional: nil means events are counted and discarded
	Logger  *slog.Logger    // Optional
}

// ProgressEmitter decouples progress reporting from delivery. Emit is safe
// to call from any executor goroutine and never blocks; a single delivery
// goroutine (Run) forwards events to the handler. Per-job percentages are
// monotone non-decreasing: regressions are suppressed at the emitter.
type ProgressEmitter struct {
	ch      chan model.ProgressEvent
	handler ProgressHandler
	logger  *slog.Logger

	mu      sync.Mutex
	highs   map[string]float64
	dropped int64
}

// NewProgressEmitter constructs a ProgressEmitter.
func NewProgressEmitter(opts ProgressEmitterOptions) *ProgressEmitter {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultProgressBuffer
	}
	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "progress_emitter")
	}
	return &ProgressEmitter{
		ch:      make(chan model.ProgressEvent, buffer),
		handler: opts.Handler,
		logger:  logger,
		highs:   make(map[string]float64),
	}
}

// Run delivers events until ctx is canceled. It is intended to run as a
// single dedicated goroutine.
func (p *ProgressEmitter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-p.ch:
			if p.handler != nil {
				p.handler(event)
			}
		}
	}
}

// Emit enqueues a progress event. Regressions below the job's high-water
// mark are suppressed; a full buffer drops the event rather than blocking
// the workflow.
func (p *ProgressEmitter) Emit(event model.ProgressEvent) {
	if p == nil {
		return
	}
	p.mu.Lock()
	if high, ok := p.highs[event.JobID]; ok && event.Percent < high {
		p.mu.Unlock()
		return
	}
	p.highs[event.JobID] = event.Percent
	p.mu.Unlock()

	select {
	case p.ch <- event:
	default:
		p.mu.Lock()
		p.dropped++
		dropped := p.dropped
		p.mu.Unlock()
		if p.logger != nil && dropped%100 == 1 {
			p.logger.Warn("progress buffer full, dropping events", "dropped_total", dropped)
		}
	}
}

// Forget clears the high-water mark for a terminal job.
func (p *ProgressEmitter) Forget(jobID string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.highs, jobID)
	p.mu.Unlock()
}

// Dropped reports how many events were discarded due to a full buffer.
func (p *ProgressEmitter) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
