package usecase

import (
	"errors"
	"fmt"
	"net/http"

	"llm-gateway/internal/provider"
)

type ErrorCode string

const (
	ErrorUnknownProvider       ErrorCode = "UNKNOWN_PROVIDER"
	ErrorMisconfiguredProvider ErrorCode = "MISCONFIGURED_PROVIDER"
	ErrorUpstreamUnavailable   ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrorInvalidRequestBody    ErrorCode = "INVALID_REQUEST_BODY"
	ErrorInternal              ErrorCode = "INTERNAL_ERROR"
)

// Error is returned by every service. Reason is safe to show to callers;
// Err carries the underlying cause for logs.
type Error struct {
	Code   ErrorCode
	Reason string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatus is the status the handler answers with.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Code {
	case ErrorUnknownProvider, ErrorInvalidRequestBody:
		return http.StatusBadRequest
	case ErrorUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// upstreamError mirrors a 4xx/5xx upstream status and falls back to 502.
func upstreamError(reason string, err error) *Error {
	e := newError(ErrorUpstreamUnavailable, reason, err)
	if status, ok := provider.UpstreamStatus(err); ok && status >= 400 && status <= 599 {
		e.Status = status
	}
	return e
}

// resolveError classifies failures from the registry and provider build.
func resolveError(name string, err error) *Error {
	if errors.Is(err, provider.ErrUnknownProvider) {
		return newError(ErrorUnknownProvider, fmt.Sprintf("unknown provider %q", name), err)
	}
	var missing *provider.MissingSecretError
	if errors.As(err, &missing) {
		return newError(ErrorMisconfiguredProvider, missing.Error(), err)
	}
	return newError(ErrorMisconfiguredProvider, fmt.Sprintf("provider %q could not be initialized", name), err)
}
