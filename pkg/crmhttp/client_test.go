package crmhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
	connrepo "github.com/kowsik11/abhivan/internal/connection/repository"
	"github.com/kowsik11/abhivan/pkg/apperr"
	"github.com/kowsik11/abhivan/pkg/kvstore"
)

type fixture struct {
	client    *Client
	conns     connrepo.ConnectionRepository
	refreshes *int32
}

func newFixture(t *testing.T, api http.HandlerFunc, expiry time.Time) fixture {
	t.Helper()
	apiSrv := httptest.NewServer(api)
	t.Cleanup(apiSrv.Close)

	var refreshes int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshes, 1)
		if err := r.ParseForm(); err != nil || r.PostForm.Get("refresh_token") != "refresh-1" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`)
	}))
	t.Cleanup(tokenSrv.Close)

	conns := connrepo.NewConnectionRepository(kvstore.NewMemoryStore())
	if err := conns.Save(context.Background(), &conndomain.Connection{
		UserID:       "u1",
		Provider:     conndomain.ProviderHubSpot,
		AccessToken:  "stale",
		RefreshToken: "refresh-1",
		Expiry:       expiry,
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	tokens := NewOAuthTokenSource(OAuthConfig{
		Provider: conndomain.ProviderHubSpot,
		ClientID: "cid",
		TokenURL: tokenSrv.URL,
		APIBase:  apiSrv.URL,
	}, conns)
	client := NewClient(Config{Provider: "hubspot", Tokens: tokens, RetryPause: time.Millisecond})
	return fixture{client: client, conns: conns, refreshes: &refreshes}
}

func TestDoRefreshesOnUnauthorized(t *testing.T) {
	var calls int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"id":"42"}`)
	}, time.Time{})

	resp, err := f.client.Do(context.Background(), "u1", Request{Op: "get", Method: http.MethodGet, Path: "/crm/v3/objects/contacts/42"})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := resp.Decode(&out); err != nil || out.ID != "42" {
		t.Errorf("Decode() = %+v, %v", out, err)
	}
	if atomic.LoadInt32(&calls) != 2 || atomic.LoadInt32(f.refreshes) != 1 {
		t.Errorf("expected 2 calls and 1 refresh, got %d and %d", atomic.LoadInt32(&calls), atomic.LoadInt32(f.refreshes))
	}

	stored, _ := f.conns.Get(context.Background(), "u1", conndomain.ProviderHubSpot)
	if stored.AccessToken != "fresh" || stored.RefreshToken != "refresh-1" {
		t.Errorf("refreshed token not persisted: %+v", stored)
	}
}

func TestDoSecondUnauthorizedIsTerminal(t *testing.T) {
	var calls int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}, time.Time{})

	_, err := f.client.Do(context.Background(), "u1", Request{Op: "get", Method: http.MethodGet, Path: "/x"})
	if !errors.Is(err, apperr.ErrAuthExpired) {
		t.Fatalf("expected auth expired, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 || atomic.LoadInt32(f.refreshes) != 1 {
		t.Errorf("expected exactly one refresh and one replay, got %d calls %d refreshes", atomic.LoadInt32(&calls), atomic.LoadInt32(f.refreshes))
	}
}

func TestDoRetriesServerErrorOnce(t *testing.T) {
	var calls int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}, time.Time{})

	_, err := f.client.Do(context.Background(), "u1", Request{Op: "get", Method: http.MethodGet, Path: "/x"})
	if apperr.StatusOf(err) != http.StatusBadGateway {
		t.Fatalf("expected 502 error, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 || atomic.LoadInt32(f.refreshes) != 0 {
		t.Errorf("expected 2 calls and no refresh, got %d and %d", atomic.LoadInt32(&calls), atomic.LoadInt32(f.refreshes))
	}
}

func TestDoClientErrorFailsImmediately(t *testing.T) {
	var calls int32
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message":"Property values were not valid"}`)
	}, time.Time{})

	_, err := f.client.Do(context.Background(), "u1", Request{Op: "create", Method: http.MethodPost, Path: "/x", Body: map[string]string{"a": "b"}})
	if apperr.StatusOf(err) != http.StatusBadRequest || !strings.Contains(err.Error(), "Property values were not valid") {
		t.Fatalf("expected 400 carrying the body, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected a single call, got %d", atomic.LoadInt32(&calls))
	}
}

func TestDoAllowNotFound(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, time.Time{})

	resp, err := f.client.Do(context.Background(), "u1", Request{Op: "get", Method: http.MethodGet, Path: "/x", AllowNotFound: true})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !resp.Empty() {
		t.Error("404 response should be empty")
	}
}

func TestDoRefreshesNearExpiry(t *testing.T) {
	var auth atomic.Value
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, `{}`)
	}, time.Now().Add(10*time.Second))

	if _, err := f.client.Do(context.Background(), "u1", Request{Op: "get", Method: http.MethodGet, Path: "/x"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got, _ := auth.Load().(string); got != "Bearer fresh" || atomic.LoadInt32(f.refreshes) != 1 {
		t.Errorf("expected proactive refresh, got auth %v refreshes %d", auth.Load(), atomic.LoadInt32(f.refreshes))
	}
}

func TestDoNotConnected(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {}, time.Time{})

	_, err := f.client.Do(context.Background(), "someone-else", Request{Op: "get", Method: http.MethodGet, Path: "/x"})
	if !errors.Is(err, apperr.ErrNotConnected) {
		t.Errorf("expected not connected, got %v", err)
	}
}
