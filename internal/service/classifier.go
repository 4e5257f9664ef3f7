package service

import (
	"strings"

	"github.com/talkingphoto/pipeline/internal/domain/model"
	apperrors "github.com/talkingphoto/pipeline/internal/errors"
)

// classifierRule maps a set of message substrings to one error category.
// Rules are evaluated in order and the first match wins, so narrow patterns
// must come before broad ones.
type classifierRule struct {
	patterns []string
	category model.ErrorCategory
}

// classifierRules is the ordered substring table. Matching is
// case-insensitive.
var classifierRules = []classifierRule{
	{[]string{"insufficient credit", "payment required", "quota exceeded", "credit balance"}, model.CategoryInsufficientCredit},
	{[]string{"rate limit", "too many requests", "throttle"}, model.CategoryRateLimit},
	{[]string{"timeout", "timed out", "deadline exceeded"}, model.CategoryTimeout},
	{[]string{"not found", "missing", "no such file", "does not exist"}, model.CategoryMissingResource},
	{[]string{"out of memory", "resource exhaust", "capacity", "overloaded"}, model.CategoryResourceExhaustion},
	{[]string{"unavailable", "connection refused", "connection reset", "service down", "bad gateway"}, model.CategoryProviderUnavailable},
	{[]string{"payload too large", "invalid", "malformed", "unsupported", "rejected request"}, model.CategoryInvalidInput},
	{[]string{"generation failed", "render failed", "processing failed", "provider reported failure"}, model.CategoryProcessingFailure},
}

// codeCategories short-circuits classification when the error carries a
// structured code. Message patterns only run for uncoded errors.
var codeCategories = map[apperrors.ErrorCode]model.ErrorCategory{
	apperrors.ErrCodeTimeout:         model.CategoryTimeout,
	apperrors.ErrCodeRateLimited:     model.CategoryRateLimit,
	apperrors.ErrCodePaymentRequired: model.CategoryInsufficientCredit,
	apperrors.ErrCodeNotFound:        model.CategoryMissingResource,
	apperrors.ErrCodeValidation:      model.CategoryInvalidInput,
	apperrors.ErrCodePayloadTooLarge: model.CategoryInvalidInput,
	apperrors.ErrCodeUnavailable:     model.CategoryProviderUnavailable,
}

// categorySeverities grades each category.
var categorySeverities = map[model.ErrorCategory]model.Severity{
	model.CategoryTimeout:             model.SeverityMedium,
	model.CategoryRateLimit:           model.SeverityHigh,
	model.CategoryInsufficientCredit:  model.SeverityCritical,
	model.CategoryMissingResource:     model.SeverityHigh,
	model.CategoryInvalidInput:        model.SeverityMedium,
	model.CategoryProcessingFailure:   model.SeverityMedium,
	model.CategoryResourceExhaustion:  model.SeverityHigh,
	model.CategoryProviderUnavailable: model.SeverityHigh,
	model.CategoryUnknown:             model.SeverityMedium,
}

// Classify maps a failure to exactly one category and severity. Structured
// error codes win over message patterns; unmatched errors are conservative
// unknowns.
func Classify(err error, message string) (model.ErrorCategory, model.Severity) {
	if err != nil {
		if code := apperrors.GetCode(err); code != "" {
			if cat, ok := codeCategories[code]; ok {
				return cat, categorySeverities[cat]
			}
		}
		if message == "" {
			message = err.Error()
		}
	}

	lower := strings.ToLower(message)
	for _, rule := range classifierRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.category, categorySeverities[rule.category]
			}
		}
	}
	return model.CategoryUnknown, categorySeverities[model.CategoryUnknown]
}
