// Package crmhttp is the request wrapper shared by the CRM backends. A call
// that comes back 401 refreshes the access token and is replayed once; a 5xx
// or transport failure is replayed once after a pause; anything else in the
// 4xx range fails straight away with the backend's error body.
package crmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kowsik11/abhivan/pkg/apperr"
	"github.com/kowsik11/abhivan/pkg/retrypolicy"
)

const (
	maxAttempts  = 2
	maxBodyBytes = 4 << 20
	maxErrorBody = 2000
)

// Credential is what a request needs to reach one user's CRM account.
type Credential struct {
	AccessToken string
	APIBase     string
}

type TokenSource interface {
	// Token returns a usable credential, refreshing it first if it is about to expire.
	Token(ctx context.Context, userID string) (*Credential, error)
	// Refresh forces a token refresh after the backend rejected the current one.
	Refresh(ctx context.Context, userID string) (*Credential, error)
}

type Config struct {
	// Provider names the backend in logs and errors.
	Provider string
	// AuthScheme prefixes the token in the Authorization header.
	AuthScheme string
	Tokens     TokenSource
	HTTPClient *http.Client
	RetryPause time.Duration
}

type Client struct {
	provider   string
	scheme     string
	tokens     TokenSource
	httpClient *http.Client
	pause      time.Duration
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	scheme := cfg.AuthScheme
	if scheme == "" {
		scheme = "Bearer"
	}
	return &Client{
		provider:   cfg.Provider,
		scheme:     scheme,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		pause:      cfg.RetryPause,
	}
}

type Request struct {
	// Op labels the call in errors, e.g. "search contacts".
	Op     string
	Method string
	Path   string
	Query  url.Values
	Body   any
	// AllowNotFound turns a 404 into an empty response instead of an error.
	AllowNotFound bool
}

type Response struct {
	StatusCode int
	Body       []byte

	provider string
	op       string
}

// Empty is true for 204, an allowed 404, or a blank body.
func (r *Response) Empty() bool {
	return r.StatusCode == http.StatusNoContent || r.StatusCode == http.StatusNotFound || len(bytes.TrimSpace(r.Body)) == 0
}

// Decode unmarshals the body into v. An empty response leaves v untouched.
func (r *Response) Decode(v any) error {
	if r.Empty() {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &apperr.ProviderError{Provider: r.provider, Op: r.op, StatusCode: r.StatusCode, Malformed: true, Err: err}
	}
	return nil
}

// Do sends req on behalf of userID.
func (c *Client) Do(ctx context.Context, userID string, req Request) (*Response, error) {
	var payload []byte
	if req.Body != nil {
		var err error
		payload, err = json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("unable to encode %s %s request: %w", c.provider, req.Op, err)
		}
	}

	cred, err := c.tokens.Token(ctx, userID)
	if err != nil {
		return nil, err
	}

	policy := retrypolicy.Policy{
		Name:        c.provider + " " + req.Op,
		MaxAttempts: maxAttempts,
		Retryable:   retryable,
		Delay: func(n uint, err error) time.Duration {
			if errors.Is(err, apperr.ErrAuthExpired) {
				return 0
			}
			return c.pause
		},
		Prepare: func(ctx context.Context, n uint, lastErr error) error {
			if !errors.Is(lastErr, apperr.ErrAuthExpired) {
				return nil
			}
			log.Printf("[%s] Access token rejected for user %s, refreshing", c.provider, userID)
			refreshed, err := c.tokens.Refresh(ctx, userID)
			if err != nil {
				return fmt.Errorf("unable to refresh %s token: %w", c.provider, err)
			}
			cred = refreshed
			return nil
		},
	}

	return retrypolicy.Do(ctx, policy, func(ctx context.Context, attempt uint) (*Response, error) {
		return c.send(ctx, cred, req, payload)
	})
}

// retryable allows one replay for an expired token, a 5xx, or a request that
// never got a response. 429 is left to the caller.
func retryable(err error) bool {
	var pe *apperr.ProviderError
	if !errors.As(err, &pe) || pe.Malformed {
		return false
	}
	return pe.StatusCode == 0 || pe.StatusCode == http.StatusUnauthorized || pe.StatusCode >= 500
}

func (c *Client) send(ctx context.Context, cred *Credential, req Request, payload []byte) (*Response, error) {
	target := strings.TrimRight(cred.APIBase, "/") + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("unable to build %s %s request: %w", c.provider, req.Op, err)
	}
	httpReq.Header.Set("Authorization", c.scheme+" "+cred.AccessToken)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &apperr.ProviderError{Provider: c.provider, Op: req.Op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &apperr.ProviderError{Provider: c.provider, Op: req.Op, StatusCode: 0, Err: err}
	}

	out := &Response{StatusCode: resp.StatusCode, Body: data, provider: c.provider, op: req.Op}
	if resp.StatusCode == http.StatusNotFound && req.AllowNotFound {
		return out, nil
	}
	if resp.StatusCode >= 400 {
		return nil, &apperr.ProviderError{
			Provider:   c.provider,
			Op:         req.Op,
			StatusCode: resp.StatusCode,
			Body:       clip(strings.TrimSpace(string(data)), maxErrorBody),
		}
	}
	return out, nil
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
