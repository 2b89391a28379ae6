package patch

import (
	"errors"
	"fmt"
)

// ErrorCode classifies bus submission failures.
type ErrorCode string

// Bus error codes. Validation and permission failures are synchronous and
// never mutate world state; callers must modify the transaction before
// retrying permission failures, while ChannelFull is retryable as-is.
const (
	ErrTooManyPendingTransactions ErrorCode = "too_many_pending_transactions"
	ErrTooManyPatches             ErrorCode = "too_many_patches"
	ErrUnknownNamespace           ErrorCode = "unknown_namespace"
	ErrSourceMismatch             ErrorCode = "source_mismatch"
	ErrPermissionDenied           ErrorCode = "permission_denied"
	ErrResourceLimitExceeded      ErrorCode = "resource_limit_exceeded"
	ErrChannelFull                ErrorCode = "channel_full"
	ErrValidationFailed           ErrorCode = "validation_failed"
)

// BusError is returned for every submission failure. Two BusErrors match
// under errors.Is when their codes agree, so callers can branch on code
// without caring about message detail.
type BusError struct {
	Code    ErrorCode
	Message string
}

// NewBusError builds a BusError with a formatted message.
func NewBusError(code ErrorCode, format string, args ...any) *BusError {
	return &BusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *BusError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any BusError carrying the same code.
func (e *BusError) Is(target error) bool {
	var other *BusError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// CodeOf extracts the error code from err, or empty when err is not a
// BusError.
func CodeOf(err error) ErrorCode {
	var be *BusError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
