package service

import (
	"time"

	"github.com/talkingphoto/pipeline/internal/domain/model"
)

// recoveryPlans is the static remediation table, keyed by error category.
// Primary actions run in order; fallback actions only after every primary
// attempt failed. USER_NOTIFICATION never resolves a failure by itself, it
// only informs, so plans that lead with it always carry a resolving fallback.
var recoveryPlans = map[model.ErrorCategory]model.RecoveryPlan{
	model.CategoryTimeout: {
		Category:        model.CategoryTimeout,
		PrimaryActions:  []model.RecoveryAction{model.ActionRetry},
		FallbackActions: []model.RecoveryAction{model.ActionFallbackProvider},
		MaxRetries:      3,
		RetryDelay:      30 * time.Second,
	},
	model.CategoryRateLimit: {
		Category:        model.CategoryRateLimit,
		PrimaryActions:  []model.RecoveryAction{model.ActionFallbackProvider},
		FallbackActions: []model.RecoveryAction{model.ActionQualityDowngrade, model.ActionRetry},
		MaxRetries:      2,
		RetryDelay:      120 * time.Second,
	},
	model.CategoryInsufficientCredit: {
		Category:        model.CategoryInsufficientCredit,
		PrimaryActions:  []model.RecoveryAction{model.ActionNotifyUser},
		FallbackActions: []model.RecoveryAction{model.ActionCancel},
		MaxRetries:      0,
		RefundFraction:  1.0,
		NotifyUser:      true,
	},
	model.CategoryMissingResource: {
		Category:        model.CategoryMissingResource,
		PrimaryActions:  []model.RecoveryAction{model.ActionPartialRetry},
		FallbackActions: []model.RecoveryAction{model.ActionCancel},
		MaxRetries:      1,
		RetryDelay:      5 * time.Second,
		RefundFraction:  1.0,
		NotifyUser:      true,
	},
	model.CategoryInvalidInput: {
		Category:        model.CategoryInvalidInput,
		PrimaryActions:  []model.RecoveryAction{model.ActionPartialRetry},
		FallbackActions: []model.RecoveryAction{model.ActionCancel},
		MaxRetries:      1,
		RetryDelay:      5 * time.Second,
		RefundFraction:  0.8,
		NotifyUser:      true,
	},
	model.CategoryProcessingFailure: {
		Category:        model.CategoryProcessingFailure,
		PrimaryActions:  []model.RecoveryAction{model.ActionRetry},
		FallbackActions: []model.RecoveryAction{model.ActionFallbackProvider},
		MaxRetries:      2,
		RetryDelay:      10 * time.Second,
	},
	model.CategoryResourceExhaustion: {
		Category:        model.CategoryResourceExhaustion,
		PrimaryActions:  []model.RecoveryAction{model.ActionQualityDowngrade},
		FallbackActions: []model.RecoveryAction{model.ActionFallbackProvider},
		MaxRetries:      1,
		RetryDelay:      60 * time.Second,
	},
	model.CategoryProviderUnavailable: {
		Category:        model.CategoryProviderUnavailable,
		PrimaryActions:  []model.RecoveryAction{model.ActionFallbackProvider},
		FallbackActions: []model.RecoveryAction{model.ActionRetry, model.ActionNotifyUser},
		MaxRetries:      2,
		RetryDelay:      30 * time.Second,
		NotifyUser:      true,
	},
	model.CategoryUnknown: {
		Category:       model.CategoryUnknown,
		PrimaryActions: []model.RecoveryAction{model.ActionRetry},
		MaxRetries:     1,
		RetryDelay:     30 * time.Second,
		NotifyUser:     true,
	},
}

// payloadTooLargePlan overrides the invalid-input plan when the failure is a
// size rejection: a different vendor may accept the source, so the plan
// leads with a provider switch before giving up.
var payloadTooLargePlan = model.RecoveryPlan{
	Category:        model.CategoryInvalidInput,
	PrimaryActions:  []model.RecoveryAction{model.ActionFallbackProvider},
	FallbackActions: []model.RecoveryAction{model.ActionCancel},
	MaxRetries:      1,
	RefundFraction:  0.8,
	NotifyUser:      true,
}

// PlanFor returns the recovery plan for a category. The unknown plan doubles
// as the conservative default.
func PlanFor(category model.ErrorCategory) model.RecoveryPlan {
	if plan, ok := recoveryPlans[category]; ok {
		return plan
	}
	return recoveryPlans[model.CategoryUnknown]
}
