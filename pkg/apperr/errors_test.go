package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestProviderErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       *ProviderError
		transient bool
		auth      bool
	}{
		{"transport", &ProviderError{Provider: "gemini", Err: errors.New("dial tcp")}, true, false},
		{"unauthorized", &ProviderError{Provider: "hubspot", StatusCode: 401}, false, true},
		{"rate limited", &ProviderError{Provider: "gemini", StatusCode: 429}, true, false},
		{"server error", &ProviderError{Provider: "zoho", StatusCode: 503}, true, false},
		{"bad request", &ProviderError{Provider: "zoho", StatusCode: 400}, false, false},
		{"malformed", &ProviderError{Provider: "gemini", StatusCode: 200, Malformed: true}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("unable to call: %w", tt.err)
			if got := errors.Is(wrapped, ErrProviderTransient); got != tt.transient {
				t.Errorf("transient = %v, want %v", got, tt.transient)
			}
			if got := errors.Is(wrapped, ErrAuthExpired); got != tt.auth {
				t.Errorf("auth expired = %v, want %v", got, tt.auth)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ConfigError{Reason: "baseline missing"}, http.StatusBadRequest},
		{&NotConnectedError{Provider: "gmail", UserID: "u1"}, http.StatusBadRequest},
		{ErrRunInProgress, http.StatusConflict},
		{&ValidationExhaustedError{MessageID: "m1", Attempts: 3, Last: errors.New("bad")}, http.StatusUnprocessableEntity},
		{&ProviderExhaustedError{Provider: "gemini", Attempts: 2}, http.StatusServiceUnavailable},
		{&ProviderError{Provider: "hubspot", StatusCode: 400}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestStatusOf(t *testing.T) {
	err := fmt.Errorf("wrap: %w", &ProviderError{Provider: "zoho", StatusCode: 404})
	if got := StatusOf(err); got != 404 {
		t.Errorf("StatusOf() = %d, want 404", got)
	}
	if got := StatusOf(errors.New("plain")); got != 0 {
		t.Errorf("StatusOf(plain) = %d, want 0", got)
	}
}
