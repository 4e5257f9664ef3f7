package config

import "time"

// WorkerConfig contains generation worker pool configuration.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines executing jobs.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// PollInterval is how long an idle worker waits before polling for
	// the next pending job.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.PollInterval < 100*time.Millisecond {
		w.PollInterval = 100 * time.Millisecond
	}
}

// WorkflowConfig contains workflow execution tuning.
type WorkflowConfig struct {
	// TargetSeconds is the processing-time target the optimizer plans toward.
	TargetSeconds float64 `env:"WORKFLOW_TARGET_SECONDS" envDefault:"30"`

	// RenderPollInterval is the delay between provider status polls.
	RenderPollInterval time.Duration `env:"WORKFLOW_RENDER_POLL_INTERVAL" envDefault:"3s"`

	// RenderPollWindow bounds how long a single render may be polled
	// before it is treated as timed out.
	RenderPollWindow time.Duration `env:"WORKFLOW_RENDER_POLL_WINDOW" envDefault:"5m"`

	// ResultCacheTTL is how long completed render results stay cached.
	ResultCacheTTL time.Duration `env:"WORKFLOW_RESULT_CACHE_TTL" envDefault:"1h"`

	// ProviderDownTTL is how long a provider is skipped after a
	// transport-level failure.
	ProviderDownTTL time.Duration `env:"WORKFLOW_PROVIDER_DOWN_TTL" envDefault:"2m"`

	// CancelPollInterval is how often a running job checks for a
	// cancellation request. Zero disables the background watcher.
	CancelPollInterval time.Duration `env:"WORKFLOW_CANCEL_POLL_INTERVAL" envDefault:"2s"`
}

// Sanitize applies guardrails to workflow configuration values.
func (w *WorkflowConfig) Sanitize() {
	if w.TargetSeconds <= 0 {
		w.TargetSeconds = 30
	}
	if w.RenderPollInterval < 500*time.Millisecond {
		w.RenderPollInterval = 500 * time.Millisecond
	}
	if w.RenderPollWindow < w.RenderPollInterval {
		w.RenderPollWindow = 5 * time.Minute
	}
	if w.ResultCacheTTL <= 0 {
		w.ResultCacheTTL = time.Hour
	}
	if w.ProviderDownTTL <= 0 {
		w.ProviderDownTTL = 2 * time.Minute
	}
	if w.CancelPollInterval < 0 {
		w.CancelPollInterval = 0
	}
}
