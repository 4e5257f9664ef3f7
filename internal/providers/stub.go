package providers

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/talkingphoto/pipeline/internal/errors"
)

// StubDescriptor is the routing profile for the local stub provider.
var StubDescriptor = Descriptor{
	Name:              "stub",
	CostPerSecond:     0.0,
	QualityScore:      5.0,
	AvgLatencySeconds: 1.0,
}

// Stub is a deterministic in-process provider for local development and
// tests. Every submission succeeds after CompleteAfterPolls status calls;
// failure cases are injected by tests through fakes, not through the stub.
type Stub struct {
	// CompleteAfterPolls is the number of Status calls before a render
	// reports success. Zero means success on the first call.
	CompleteAfterPolls int

	mu    sync.Mutex
	polls map[string]int
	seq   int
}

// NewStub constructs a stub provider that succeeds on the second poll.
func NewStub() *Stub {
	return &Stub{CompleteAfterPolls: 1, polls: make(map[string]int)}
}

// Descriptor returns the static routing characteristics.
func (s *Stub) Descriptor() Descriptor {
	return StubDescriptor
}

// Submit registers a render and returns a deterministic job id.
func (s *Stub) Submit(_ context.Context, req SubmitRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("stub-%s-%d", req.JobID, s.seq)
	s.polls[id] = 0
	return id, nil
}

// Status advances the render one poll at a time until it succeeds.
func (s *Stub) Status(_ context.Context, providerJobID string) (*RenderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.polls[providerJobID]
	if !ok {
		return nil, apperrors.NotFoundf("stub: unknown render %q", providerJobID)
	}
	s.polls[providerJobID] = n + 1

	if n >= s.CompleteAfterPolls {
		return &RenderStatus{
			State:     RenderSucceeded,
			Percent:   100,
			ResultURL: "stub://results/" + providerJobID + ".mp4",
		}, nil
	}
	pct := float64(n+1) / float64(s.CompleteAfterPolls+1) * 100
	return &RenderStatus{State: RenderProcessing, Percent: pct}, nil
}
