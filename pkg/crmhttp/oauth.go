package crmhttp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/kowsik11/abhivan/internal/connection/domain"
	"github.com/kowsik11/abhivan/internal/connection/repository"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

// expiryLeeway refreshes tokens that would expire mid-request.
const expiryLeeway = 60 * time.Second

type OAuthConfig struct {
	Provider     domain.Provider
	ClientID     string
	ClientSecret string
	TokenURL     string
	// APIBase is used when the stored connection carries no api_domain.
	APIBase    string
	HTTPClient *http.Client
}

// OAuthTokenSource reads tokens from the connection store and writes
// refreshed ones back to it.
type OAuthTokenSource struct {
	cfg         OAuthConfig
	oauth       *oauth2.Config
	connections repository.ConnectionRepository
}

func NewOAuthTokenSource(cfg OAuthConfig, connections repository.ConnectionRepository) *OAuthTokenSource {
	return &OAuthTokenSource{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		connections: connections,
	}
}

func (s *OAuthTokenSource) Token(ctx context.Context, userID string) (*Credential, error) {
	conn, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !conn.Expiry.IsZero() && time.Until(conn.Expiry) < expiryLeeway && conn.RefreshToken != "" {
		return s.refresh(ctx, conn)
	}
	return s.credential(conn), nil
}

func (s *OAuthTokenSource) Refresh(ctx context.Context, userID string) (*Credential, error) {
	conn, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.refresh(ctx, conn)
}

func (s *OAuthTokenSource) load(ctx context.Context, userID string) (*domain.Connection, error) {
	conn, err := s.connections.Get(ctx, userID, s.cfg.Provider)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.AccessToken == "" {
		return nil, &apperr.NotConnectedError{Provider: string(s.cfg.Provider), UserID: userID}
	}
	return conn, nil
}

func (s *OAuthTokenSource) refresh(ctx context.Context, conn *domain.Connection) (*Credential, error) {
	if conn.RefreshToken == "" {
		return nil, &apperr.ProviderError{
			Provider:   string(s.cfg.Provider),
			Op:         "refresh token",
			StatusCode: http.StatusUnauthorized,
			Body:       "no refresh token stored; reconnect the account",
		}
	}

	if s.cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.cfg.HTTPClient)
	}
	// An empty access token forces the source to hit the token endpoint.
	token, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken}).Token()
	if err != nil {
		return nil, s.refreshError(err)
	}

	if err := s.connections.Modify(ctx, conn.UserID, s.cfg.Provider, func(stored *domain.Connection) error {
		stored.ApplyToken(token)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("unable to persist refreshed %s token: %w", s.cfg.Provider, err)
	}
	log.Printf("[%s] Refreshed access token for user %s", s.cfg.Provider, conn.UserID)

	conn.ApplyToken(token)
	return s.credential(conn), nil
}

func (s *OAuthTokenSource) refreshError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		return &apperr.ProviderError{
			Provider:   string(s.cfg.Provider),
			Op:         "refresh token",
			StatusCode: re.Response.StatusCode,
			Body:       clip(string(re.Body), maxErrorBody),
			Err:        err,
		}
	}
	return &apperr.ProviderError{Provider: string(s.cfg.Provider), Op: "refresh token", Err: err}
}

func (s *OAuthTokenSource) credential(conn *domain.Connection) *Credential {
	base := conn.APIDomain
	if base == "" {
		base = s.cfg.APIBase
	}
	return &Credential{AccessToken: conn.AccessToken, APIBase: base}
}
