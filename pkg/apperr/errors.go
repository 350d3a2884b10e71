// Package apperr holds the error taxonomy shared by the ingestion, extraction
// and CRM stages. Callers match with errors.Is against the sentinels and use
// errors.As when they need the details.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfig              = errors.New("configuration error")
	ErrNotConnected        = errors.New("provider not connected")
	ErrAuthExpired         = errors.New("authorization expired")
	ErrProviderTransient   = errors.New("transient provider error")
	ErrProviderExhausted   = errors.New("provider credentials exhausted")
	ErrValidationExhausted = errors.New("extraction validation exhausted")
	ErrRunInProgress       = errors.New("pipeline run already in progress")
)

// ConfigError means the caller has to fix settings or reconnect; never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config error: " + e.Reason }

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

type NotConnectedError struct {
	Provider string
	UserID   string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s is not connected for user %s", e.Provider, e.UserID)
}

func (e *NotConnectedError) Is(target error) bool { return target == ErrNotConnected }

// ProviderError is a failed call to an upstream API. StatusCode is zero when
// the request never produced a response.
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Body       string
	Malformed  bool
	Err        error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Malformed:
		return fmt.Sprintf("%s %s: malformed response", e.Provider, e.Op)
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s %s: status %d: %s", e.Provider, e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s %s: status %d", e.Provider, e.Op, e.StatusCode)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrAuthExpired:
		return e.StatusCode == http.StatusUnauthorized
	case ErrProviderTransient:
		return e.Transient()
	}
	return false
}

// Transient covers transport failures, rate limiting and 5xx responses.
func (e *ProviderError) Transient() bool {
	if e.StatusCode == 0 {
		return !e.Malformed
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusOf returns the upstream HTTP status carried by err, or zero.
func StatusOf(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

type ProviderExhaustedError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *ProviderExhaustedError) Error() string {
	return fmt.Sprintf("all %s credentials exhausted after %d attempts: %v", e.Provider, e.Attempts, e.Last)
}

func (e *ProviderExhaustedError) Unwrap() error { return e.Last }

func (e *ProviderExhaustedError) Is(target error) bool { return target == ErrProviderExhausted }

// ValidationExhaustedError carries the last validation problem seen.
type ValidationExhaustedError struct {
	MessageID string
	Attempts  int
	Last      error
}

func (e *ValidationExhaustedError) Error() string {
	return fmt.Sprintf("extraction for message %s invalid after %d attempts: %v", e.MessageID, e.Attempts, e.Last)
}

func (e *ValidationExhaustedError) Unwrap() error { return e.Last }

func (e *ValidationExhaustedError) Is(target error) bool { return target == ErrValidationExhausted }

// HTTPStatus maps an error onto the status code returned by the API layer.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrConfig), errors.Is(err, ErrNotConnected):
		return http.StatusBadRequest
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrValidationExhausted):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrProviderExhausted):
		return http.StatusServiceUnavailable
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
