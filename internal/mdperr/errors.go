// Package mdperr defines the structured error kinds raised by the mapper,
// per the error handling design: transient broker faults, no-target
// misses, duplicate tokens, malformed envelopes and unknown correlations.
package mdperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple comparison with errors.Is.
var (
	// ErrNoTargets indicates target_for resolved to an empty set. Not
	// surfaced to callers: the façade reports Offline or Nothing instead
	// of returning an error.
	ErrNoTargets = errors.New("no targets available for request")

	// ErrDuplicateToken indicates new_job was called with a token that
	// already has a live job registered.
	ErrDuplicateToken = errors.New("duplicate correlation token")

	// ErrUnknownToken indicates a reply envelope's token has no matching job.
	ErrUnknownToken = errors.New("unknown correlation token")

	// ErrUnknownAgent indicates a heartbeat for an identity with no prior register.
	ErrUnknownAgent = errors.New("heartbeat from unknown agent")

	// ErrMalformedEnvelope indicates decode failure on a reply or offline delivery.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// Code classifies an Error for programmatic handling and retry policy.
type Code string

// Error codes, one per §7 error kind.
const (
	CodeTransientBroker Code = "TRANSIENT_BROKER"
	CodeNoTargets       Code = "NO_TARGETS"
	CodeDuplicateToken  Code = "DUPLICATE_TOKEN"
	CodeMalformed       Code = "MALFORMED_ENVELOPE"
	CodeUnknownToken    Code = "UNKNOWN_TOKEN"
	CodeUnknownAgent    Code = "UNKNOWN_AGENT"
)

// Error is a structured mapper error with an optional cause and context,
// generalized from the teacher's MDP protocol error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mapper %s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("mapper %s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is compares structured errors by code, falling back to cause comparison.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	var other *Error
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return errors.Is(e.Cause, target)
}

// WithContext attaches a key/value pair for structured log fields.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New builds a structured Error.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause, Context: make(map[string]interface{})}
}

// NewTransientBroker wraps a publish/subscribe failure as retryable.
func NewTransientBroker(op string, cause error) *Error {
	return New(CodeTransientBroker, fmt.Sprintf("broker operation %q failed", op), cause).
		WithContext("operation", op)
}

// NewDuplicateToken reports a token collision at job registration.
func NewDuplicateToken(token string) *Error {
	return New(CodeDuplicateToken, fmt.Sprintf("token %q already has a registered job", token), ErrDuplicateToken).
		WithContext("token", token)
}

// NewMalformed wraps a codec failure as its cause; the failing frame is not
// recorded.
func NewMalformed(cause error) *Error {
	return New(CodeMalformed, "failed to decode envelope", cause)
}

// IsRetryable reports whether the error kind is safe to retry locally.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var merr *Error
	if errors.As(err, &merr) {
		return merr.Code == CodeTransientBroker
	}
	return false
}

// IsPermanent reports whether the error kind should not be retried and is
// fatal for the call that produced it.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var merr *Error
	if errors.As(err, &merr) {
		return merr.Code == CodeDuplicateToken || merr.Code == CodeMalformed
	}
	return false
}
