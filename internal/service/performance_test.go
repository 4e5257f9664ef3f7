package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceTracker_NoHistoryIsNeutral(t *testing.T) {
	tracker := NewPerformanceTracker(newFakeClock())

	_, ok := tracker.AvgDuration("veo3")
	assert.False(t, ok)
	assert.Equal(t, 1.0, tracker.Multiplier("veo3"))
}

func TestPerformanceTracker_AveragesSamples(t *testing.T) {
	tracker := NewPerformanceTracker(newFakeClock())
	tracker.Record("veo3", 20*time.Second)
	tracker.Record("veo3", 40*time.Second)

	avg, ok := tracker.AvgDuration("veo3")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, avg)
	assert.Equal(t, 1.0, tracker.Multiplier("veo3"))
}

func TestPerformanceTracker_MultiplierClamps(t *testing.T) {
	clock := newFakeClock()

	slow := NewPerformanceTracker(clock)
	slow.Record("runway", 5*time.Minute)
	assert.Equal(t, 2.0, slow.Multiplier("runway"))

	fast := NewPerformanceTracker(clock)
	fast.Record("nanobanana", 2*time.Second)
	assert.Equal(t, 0.5, fast.Multiplier("nanobanana"))
}

func TestPerformanceTracker_IgnoresInvalidSamples(t *testing.T) {
	tracker := NewPerformanceTracker(newFakeClock())
	tracker.Record("", 10*time.Second)
	tracker.Record("veo3", 0)
	tracker.Record("veo3", -time.Second)

	_, ok := tracker.AvgDuration("veo3")
	assert.False(t, ok)
}

func TestPerformanceTracker_PrunesTrailingWindow(t *testing.T) {
	clock := newFakeClock()
	tracker := NewPerformanceTracker(clock)

	tracker.Record("veo3", 60*time.Second)
	clock.Advance(23 * time.Hour)
	tracker.Record("veo3", 20*time.Second)

	// Both samples are still inside the 24h window.
	avg, ok := tracker.AvgDuration("veo3")
	require.True(t, ok)
	assert.Equal(t, 40*time.Second, avg)

	// Another 2h later only the second sample survives.
	clock.Advance(2 * time.Hour)
	avg, ok = tracker.AvgDuration("veo3")
	require.True(t, ok)
	assert.Equal(t, 20*time.Second, avg)

	clock.Advance(25 * time.Hour)
	_, ok = tracker.AvgDuration("veo3")
	assert.False(t, ok)
	assert.Equal(t, 1.0, tracker.Multiplier("veo3"))
}

func TestPerformanceTracker_ProvidersAreIndependent(t *testing.T) {
	tracker := NewPerformanceTracker(newFakeClock())
	tracker.Record("veo3", 60*time.Second)

	assert.Equal(t, 2.0, tracker.Multiplier("veo3"))
	assert.Equal(t, 1.0, tracker.Multiplier("runway"))
}

func TestPerformanceTracker_NilReceiverIsSafe(t *testing.T) {
	var tracker *PerformanceTracker
	assert.NotPanics(t, func() {
		tracker.Record("veo3", time.Second)
	})
	_, ok := tracker.AvgDuration("veo3")
	assert.False(t, ok)
}
