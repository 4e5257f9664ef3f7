package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/talkingphoto/pipeline/internal/errors"
)

func TestStub_SucceedsAfterConfiguredPolls(t *testing.T) {
	stub := NewStub()
	ctx := context.Background()

	id, err := stub.Submit(ctx, SubmitRequest{JobID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, "stub-job-1-1", id)

	first, err := stub.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RenderProcessing, first.State)
	assert.InDelta(t, 50.0, first.Percent, 1e-9)

	second, err := stub.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, RenderSucceeded, second.State)
	assert.Equal(t, 100.0, second.Percent)
	assert.Equal(t, "stub://results/"+id+".mp4", second.ResultURL)
}

func TestStub_ImmediateCompletion(t *testing.T) {
	stub := &Stub{CompleteAfterPolls: 0, polls: make(map[string]int)}

	id, err := stub.Submit(context.Background(), SubmitRequest{JobID: "job-2"})
	require.NoError(t, err)

	status, err := stub.Status(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, RenderSucceeded, status.State)
}

func TestStub_UnknownRender(t *testing.T) {
	stub := NewStub()
	_, err := stub.Status(context.Background(), "never-submitted")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStub_SubmissionsGetDistinctIDs(t *testing.T) {
	stub := NewStub()
	ctx := context.Background()

	first, err := stub.Submit(ctx, SubmitRequest{JobID: "job-a"})
	require.NoError(t, err)
	second, err := stub.Submit(ctx, SubmitRequest{JobID: "job-a"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestStubDescriptor(t *testing.T) {
	stub := NewStub()
	desc := stub.Descriptor()
	assert.Equal(t, "stub", desc.Name)
	assert.Zero(t, desc.CostPerSecond)
}

func TestRenderStateTerminal(t *testing.T) {
	assert.False(t, RenderQueued.Terminal())
	assert.False(t, RenderProcessing.Terminal())
	assert.True(t, RenderSucceeded.Terminal())
	assert.True(t, RenderFailed.Terminal())
}

func TestDescriptorCostFor(t *testing.T) {
	desc := Descriptor{CostPerSecond: 0.15}
	assert.InDelta(t, 1.5, desc.CostFor(10), 1e-9)
	assert.Zero(t, Descriptor{}.CostFor(10))
}
