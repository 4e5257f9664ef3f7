package model

import "time"

// ProgressEvent is one point-in-time progress report for a job. Events are
// emitted by the orchestrator only; consumers must tolerate drops.
type ProgressEvent struct {
	JobID    string         `json:"job_id"`
	UserID   string         `json:"user_id"`
	Step     GenerationStep `json:"step"`
	Percent  float64        `json:"percent"`
	Message  string         `json:"message,omitempty"`
	Provider string         `json:"provider,omitempty"`
	At       time.Time      `json:"at"`
}

// WorkflowResult is the terminal summary returned by a completed execution.
type WorkflowResult struct {
	JobID           string         `json:"job_id"`
	Status          JobStatus      `json:"status"`
	Provider        string         `json:"provider,omitempty"`
	FallbackUsed    bool           `json:"fallback_used"`
	ResultPath      string         `json:"result_path,omitempty"`
	ResultURL       string         `json:"result_url,omitempty"`
	CostCredits     float64        `json:"cost_credits"`
	RefundedCredits float64        `json:"refunded_credits,omitempty"`
	Quality         QualityMetrics `json:"quality,omitempty"`
	Elapsed         time.Duration  `json:"elapsed"`
	Error           string         `json:"error,omitempty"`
}
