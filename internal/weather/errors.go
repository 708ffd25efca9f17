package weather

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode is the machine-readable identity of a failure.
type ErrorCode string

const (
	CodeInvalidLocation     ErrorCode = "invalid_location"
	CodeProviderTimeout     ErrorCode = "provider_timeout"
	CodeProviderRateLimited ErrorCode = "provider_rate_limited"
	CodeProviderUnavailable ErrorCode = "provider_unavailable"
	CodeProviderDataInvalid ErrorCode = "provider_data_invalid"
	CodeAllProvidersFailed  ErrorCode = "all_providers_failed_no_cache"
)

// Error is the single error type produced by the engine. Compare with the
// sentinels below via errors.Is; only the code takes part in matching.
type Error struct {
	Code     ErrorCode
	Provider string
	// RetryAfter is set on rate-limit denials when the wait is known.
	RetryAfter time.Duration
	Err        error
}

var (
	ErrInvalidLocation     = &Error{Code: CodeInvalidLocation}
	ErrProviderTimeout     = &Error{Code: CodeProviderTimeout}
	ErrProviderRateLimited = &Error{Code: CodeProviderRateLimited}
	ErrProviderUnavailable = &Error{Code: CodeProviderUnavailable}
	ErrProviderDataInvalid = &Error{Code: CodeProviderDataInvalid}
	ErrAllProvidersFailed  = &Error{Code: CodeAllProvidersFailed}
)

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewProviderError builds a provider failure of the given code.
func NewProviderError(code ErrorCode, provider string, err error) *Error {
	return &Error{Code: code, Provider: provider, Err: err}
}

// detached keeps the message of err but drops its chain, so provider error
// codes do not match across the service boundary.
func detached(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(err.Error())
}

func invalidLocation(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidLocation, Err: fmt.Errorf(format, args...)}
}
