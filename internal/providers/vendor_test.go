package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/talkingphoto/pipeline/internal/errors"
)

func newVeo3Server(t *testing.T, handler http.HandlerFunc) (Provider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewVeo3(ClientConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		HTTPClient: server.Client(),
	}, nil)
	require.NoError(t, err)
	return provider, server
}

func TestVendorClient_SubmitParsesJobID(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	provider, _ := newVeo3Server(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/videos/generate", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"operation":{"id":"op-42","state":"pending"}}`))
	})

	id, err := provider.Submit(context.Background(), SubmitRequest{
		JobID:           "job-1",
		SourceFileID:    "photo-1",
		ScriptText:      "hello world",
		DurationSeconds: 10,
		Quality:         "standard",
		AspectRatio:     "16:9",
	})
	require.NoError(t, err)

	assert.Equal(t, "op-42", id)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "photo-1", gotBody["source_file_id"])
	assert.Equal(t, "job-1", gotBody["client_ref"])
	assert.Equal(t, "standard", gotBody["quality"])
}

func TestVendorClient_SubmitMissingJobIDIsUnavailable(t *testing.T) {
	provider, _ := newVeo3Server(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"operation":{}}`))
	})

	_, err := provider.Submit(context.Background(), SubmitRequest{JobID: "job-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestVendorClient_StatusNormalizesStates(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected RenderStatus
	}{
		{
			name:     "running with progress",
			payload:  `{"operation":{"state":"running","progress_percent":37.5}}`,
			expected: RenderStatus{State: RenderProcessing, Percent: 37.5},
		},
		{
			name:    "succeeded with result",
			payload: `{"operation":{"state":"SUCCEEDED","progress_percent":100,"result":{"video_uri":"https://v/out.mp4"}}}`,
			expected: RenderStatus{
				State: RenderSucceeded, Percent: 100, ResultURL: "https://v/out.mp4",
			},
		},
		{
			name:    "failed with detail",
			payload: `{"operation":{"state":"failed","error":{"message":"no face detected"}}}`,
			expected: RenderStatus{
				State: RenderFailed, Detail: "no face detected",
			},
		},
		{
			name:    "failed without detail gets a placeholder",
			payload: `{"operation":{"state":"failed"}}`,
			expected: RenderStatus{
				State: RenderFailed, Detail: "provider reported failure without detail",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, _ := newVeo3Server(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/videos/op-42", r.URL.Path)
				_, _ = w.Write([]byte(tt.payload))
			})

			status, err := provider.Status(context.Background(), "op-42")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, *status)
		})
	}
}

func TestVendorClient_StatusRejectsUnknownState(t *testing.T) {
	provider, _ := newVeo3Server(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"operation":{"state":"melting"}}`))
	})

	_, err := provider.Status(context.Background(), "op-42")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestVendorClient_MapsHTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(err error) bool
	}{
		{"rate limited", http.StatusTooManyRequests, apperrors.IsRateLimited},
		{"payment required", http.StatusPaymentRequired, apperrors.IsPaymentRequired},
		{"payload too large", http.StatusRequestEntityTooLarge, apperrors.IsPayloadTooLarge},
		{"not found", http.StatusNotFound, apperrors.IsNotFound},
		{"bad request", http.StatusBadRequest, apperrors.IsValidation},
		{"server error", http.StatusBadGateway, apperrors.IsUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, _ := newVeo3Server(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":"nope"}`))
			})

			_, err := provider.Submit(context.Background(), SubmitRequest{JobID: "job-1"})
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error mapping: %v", err)
		})
	}
}

func TestVendorClient_RateLimitCarriesRetryAfter(t *testing.T) {
	provider, _ := newVeo3Server(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	})

	_, err := provider.Submit(context.Background(), SubmitRequest{JobID: "job-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsRateLimited(err))
	assert.Equal(t, 7*time.Second, apperrors.GetRetryAfter(err))
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"delta seconds", "30", 30 * time.Second},
		{"zero seconds", "0", 0},
		{"negative seconds", "-5", 0},
		{"http date in the future", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"http date in the past", now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"garbage", "soon", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseRetryAfter(tt.value, now))
		})
	}
}

func TestVendorClient_RequiresBaseURL(t *testing.T) {
	_, err := NewVeo3(ClientConfig{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL")
}

func TestVendorClient_CanceledContext(t *testing.T) {
	provider, _ := newVeo3Server(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"operation":{"id":"op-1","state":"pending"}}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Submit(ctx, SubmitRequest{JobID: "job-1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCanceled(err))
}
