// Package apperror defines the error taxonomy shared by the request-gating
// pipeline. Every denial surfaced to a client carries a stable machine code
// and an HTTP status; internal details stay in server logs.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable error codes. Clients switch on these, so they are part
// of the API contract and must not change.
const (
	CodeMissingHost           = "MISSING_HOST"
	CodeTenantNotFound        = "TENANT_NOT_FOUND"
	CodeTenantInactive        = "TENANT_INACTIVE"
	CodeTrialExpired          = "TRIAL_EXPIRED"
	CodeCrossTenantAccess     = "CROSS_TENANT_ACCESS"
	CodeDomainMismatch        = "DOMAIN_MISMATCH"
	CodeValidationSystemError = "VALIDATION_SYSTEM_ERROR"
	CodeRateLimitExceeded     = "RATE_LIMIT_EXCEEDED"
	CodeRuleNotFound          = "RULE_NOT_FOUND"
	CodeSecurityViolation     = "SECURITY_VIOLATION"
	CodeBruteForceBlocked     = "BRUTE_FORCE_BLOCKED"
)

// Error is a client-safe error with a stable code and HTTP status.
type Error struct {
	Code    string
	Message string
	Status  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Sentinel instances for well-known failure conditions. Callers should use
// [errors.Is] or [FromError] to match these.
var (
	ErrMissingHost = &Error{
		Code:    CodeMissingHost,
		Message: "request has no Host header",
		Status:  http.StatusBadRequest,
	}
	ErrTenantNotFound = &Error{
		Code:    CodeTenantNotFound,
		Message: "tenant not found",
		Status:  http.StatusNotFound,
	}
	ErrTenantInactive = &Error{
		Code:    CodeTenantInactive,
		Message: "tenant is not active",
		Status:  http.StatusForbidden,
	}
	ErrTrialExpired = &Error{
		Code:    CodeTrialExpired,
		Message: "tenant trial has expired",
		Status:  http.StatusForbidden,
	}
	ErrCrossTenantAccess = &Error{
		Code:    CodeCrossTenantAccess,
		Message: "user does not belong to this tenant",
		Status:  http.StatusForbidden,
	}
	ErrDomainMismatch = &Error{
		Code:    CodeDomainMismatch,
		Message: "request domain does not match tenant domain",
		Status:  http.StatusForbidden,
	}
	ErrValidationSystem = &Error{
		Code:    CodeValidationSystemError,
		Message: "validation system error",
		Status:  http.StatusInternalServerError,
	}
	ErrRateLimitExceeded = &Error{
		Code:    CodeRateLimitExceeded,
		Message: "rate limit exceeded",
		Status:  http.StatusTooManyRequests,
	}
	ErrRuleNotFound = &Error{
		Code:    CodeRuleNotFound,
		Message: "rate limit rule not found",
		Status:  http.StatusNotFound,
	}
	ErrSecurityViolation = &Error{
		Code:    CodeSecurityViolation,
		Message: "request blocked by security screen",
		Status:  http.StatusBadRequest,
	}
	ErrBruteForceBlocked = &Error{
		Code:    CodeBruteForceBlocked,
		Message: "too many failed attempts, try again later",
		Status:  http.StatusTooManyRequests,
	}
)

// New returns a copy of base with its message replaced. The code and status
// are preserved so [errors.Is] matching by code still works.
func New(base *Error, message string) *Error {
	return &Error{Code: base.Code, Message: message, Status: base.Status}
}

// Is matches errors by code, so a customized message still compares equal
// to its sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// ByCode returns the sentinel for a known code, or ErrValidationSystem for
// anything unrecognized.
func ByCode(code string) *Error {
	for _, e := range []*Error{
		ErrMissingHost, ErrTenantNotFound, ErrTenantInactive, ErrTrialExpired,
		ErrCrossTenantAccess, ErrDomainMismatch, ErrValidationSystem,
		ErrRateLimitExceeded, ErrRuleNotFound, ErrSecurityViolation,
		ErrBruteForceBlocked,
	} {
		if e.Code == code {
			return e
		}
	}
	return ErrValidationSystem
}

// FromError extracts an *Error from err, or wraps it as an internal
// validation system error so unknown failures fail closed.
func FromError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrValidationSystem
}
