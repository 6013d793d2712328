package protocol

import "errors"

// Error taxonomy for the ingress/apply pipeline. Every failure path in the
// core wraps one of these sentinels so callers can classify with errors.Is.
var (
	// ErrValidationFailed marks malformed, oversized or forbidden input.
	// Recoverable: the caller corrects the batch and resubmits.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPermissionDenied marks an operation refused by policy.
	// Surfaced as an explicit denial, never retried automatically.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrWindowNotFound marks an apply against an unknown window id.
	ErrWindowNotFound = errors.New("window not found")

	// ErrDomApplyFailed marks a target that did not resolve or a mutation
	// that failed mid-flight.
	ErrDomApplyFailed = errors.New("dom apply failed")

	// ErrSanitizationInputTooLarge marks HTML over the hard sanitizer cap.
	ErrSanitizationInputTooLarge = errors.New("sanitization input too large")
)
