package model

import "time"

// ErrorCategory classifies a workflow failure for recovery planning.
type ErrorCategory string

// Severity grades how urgently a failure needs operator attention.
type Severity string

// RecoveryAction names one remediation the recovery engine can attempt.
type RecoveryAction string

const (
	// CategoryTimeout covers deadline and polling expirations.
	CategoryTimeout ErrorCategory = "timeout"
	// CategoryRateLimit covers provider throttling responses.
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategoryInsufficientCredit covers payment and quota exhaustion.
	CategoryInsufficientCredit ErrorCategory = "insufficient_credit"
	// CategoryMissingResource covers absent source files or artifacts.
	CategoryMissingResource ErrorCategory = "missing_resource"
	// CategoryInvalidInput covers validation and malformed-payload failures.
	CategoryInvalidInput ErrorCategory = "invalid_input"
	// CategoryProcessingFailure covers renders the provider started but
	// could not finish.
	CategoryProcessingFailure ErrorCategory = "processing_failure"
	// CategoryResourceExhaustion covers provider capacity or memory limits.
	CategoryResourceExhaustion ErrorCategory = "resource_exhaustion"
	// CategoryProviderUnavailable covers outages and 5xx responses.
	CategoryProviderUnavailable ErrorCategory = "provider_unavailable"
	// CategoryUnknown is the conservative catch-all.
	CategoryUnknown ErrorCategory = "unknown"

	// SeverityLow failures resolve themselves on retry.
	SeverityLow Severity = "low"
	// SeverityMedium failures need a plan but not a human.
	SeverityMedium Severity = "medium"
	// SeverityHigh failures burn user credits or block completion.
	SeverityHigh Severity = "high"
	// SeverityCritical failures require operator notification.
	SeverityCritical Severity = "critical"

	// ActionRetry re-runs the failed step on the same provider.
	ActionRetry RecoveryAction = "retry"
	// ActionPartialRetry restarts from the failed step with corrected inputs.
	ActionPartialRetry RecoveryAction = "partial_retry"
	// ActionFallbackProvider reroutes the job to an alternate provider.
	ActionFallbackProvider RecoveryAction = "fallback_provider"
	// ActionQualityDowngrade lowers the quality tier and retries.
	ActionQualityDowngrade RecoveryAction = "quality_downgrade"
	// ActionNotifyUser informs the user without changing the job.
	ActionNotifyUser RecoveryAction = "notify_user"
	// ActionCancel terminates the job, optionally with a refund.
	ActionCancel RecoveryAction = "cancel"
)

// Valid returns true if the ErrorCategory is valid.
func (c ErrorCategory) Valid() bool {
	switch c {
	case CategoryTimeout, CategoryRateLimit, CategoryInsufficientCredit,
		CategoryMissingResource, CategoryInvalidInput, CategoryProcessingFailure,
		CategoryResourceExhaustion, CategoryProviderUnavailable, CategoryUnknown:
		return true
	}
	return false
}

// ErrorContext is the full picture of one failure handed to the recovery
// engine: the classified error plus where the workflow stood when it broke.
type ErrorContext struct {
	JobID      string         `json:"job_id"`
	UserID     string         `json:"user_id"`
	Step       GenerationStep `json:"step"`
	Provider   string         `json:"provider"`
	Category   ErrorCategory  `json:"category"`
	Severity   Severity       `json:"severity"`
	Message    string         `json:"message"`
	RetryCount int            `json:"retry_count"`
	// RetryAfter carries the back-off a throttling provider asked for, when
	// the failure included one.
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// RecoveryPlan is the remediation recipe for one error category. Primary
// actions run in order first; fallback actions only when every primary
// attempt failed.
type RecoveryPlan struct {
	Category        ErrorCategory    `json:"category"`
	PrimaryActions  []RecoveryAction `json:"primary_actions"`
	FallbackActions []RecoveryAction `json:"fallback_actions,omitempty"`
	MaxRetries      int              `json:"max_retries"`
	RetryDelay      time.Duration    `json:"retry_delay"`
	RefundFraction  float64          `json:"refund_fraction"`
	NotifyUser      bool             `json:"notify_user"`
}

// ActionAttempt is one entry in a recovery attempt log.
type ActionAttempt struct {
	Action RecoveryAction `json:"action"`
	OK     bool           `json:"ok"`
	Detail string         `json:"detail,omitempty"`
	At     time.Time      `json:"at"`
}

// RecoveryOutcome records what the engine actually did for one failure.
type RecoveryOutcome struct {
	Success                    bool            `json:"success"`
	Action                     RecoveryAction  `json:"action,omitempty"`
	FallbackUsed               bool            `json:"fallback_used"`
	ResumeStep                 GenerationStep  `json:"resume_step,omitempty"`
	NewProvider                string          `json:"new_provider,omitempty"`
	NewQuality                 QualityTier     `json:"new_quality,omitempty"`
	RefundIssued               float64         `json:"refund_issued,omitempty"`
	UserMessage                string          `json:"user_message,omitempty"`
	RequiresManualIntervention bool            `json:"requires_manual_intervention,omitempty"`
	Attempts                   []ActionAttempt `json:"attempts,omitempty"`
}
