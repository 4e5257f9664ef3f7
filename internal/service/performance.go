package service

import (
	"sync"
	"time"

	"github.com/talkingphoto/pipeline/internal/core"
)

const (
	trackerWindow    = 24 * time.Hour
	baselineDuration = 30 * time.Second
)

type trackerSample struct {
	duration time.Duration
	at       time.Time
}

// PerformanceTracker keeps a trailing window of observed generation
// durations per provider. The orchestrator feeds it completed jobs; the
// optimizer reads it to ground estimates in reality. Safe for concurrent use.
type PerformanceTracker struct {
	clock core.Clock

	mu      sync.Mutex
	samples map[string][]trackerSample
}

// NewPerformanceTracker constructs a tracker with a 24h trailing window.
func NewPerformanceTracker(clock core.Clock) *PerformanceTracker {
	return &PerformanceTracker{
		clock:   clock,
		samples: make(map[string][]trackerSample),
	}
}

// Record adds one observed generation duration for a provider.
func (t *PerformanceTracker) Record(provider string, d time.Duration) {
	if t == nil || provider == "" || d <= 0 {
		return
	}
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.samples[provider] = append(t.prune(t.samples[provider], now), trackerSample{duration: d, at: now})
}

// AvgDuration returns the trailing-window average for a provider and whether
// any samples exist.
func (t *PerformanceTracker) AvgDuration(provider string) (time.Duration, bool) {
	if t == nil {
		return 0, false
	}
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.prune(t.samples[provider], now)
	t.samples[provider] = kept
	if len(kept) == 0 {
		return 0, false
	}
	var total time.Duration
	for _, s := range kept {
		total += s.duration
	}
	return total / time.Duration(len(kept)), true
}

// Multiplier returns the provider's trailing average relative to the 30s
// baseline, clamped to [0.5, 2.0]. Providers without history get 1.0.
func (t *PerformanceTracker) Multiplier(provider string) float64 {
	avg, ok := t.AvgDuration(provider)
	if !ok {
		return 1.0
	}
	m := float64(avg) / float64(baselineDuration)
	if m < 0.5 {
		return 0.5
	}
	if m > 2.0 {
		return 2.0
	}
	return m
}

func (t *PerformanceTracker) prune(samples []trackerSample, now time.Time) []trackerSample {
	cutoff := now.Add(-trackerWindow)
	i := 0
	for ; i < len(samples); i++ {
		if samples[i].at.After(cutoff) {
			break
		}
	}
	return samples[i:]
}
