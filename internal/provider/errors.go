package provider

import (
	"errors"
	"fmt"
)

// ErrUnknownProvider is returned by Registry.Resolve for unregistered names.
var ErrUnknownProvider = errors.New("provider: unknown provider")

// MissingSecretError reports a required credential that is not configured.
// It names the secret, never a value.
type MissingSecretError struct {
	Provider string
	Secret   string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("provider: %s is not configured: %s is not set", e.Provider, e.Secret)
}

// StatusError captures non-2xx upstream responses with status-aware context.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// UpstreamStatus extracts the HTTP status of an upstream failure, if any.
func UpstreamStatus(err error) (int, bool) {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.StatusCode, true
}
