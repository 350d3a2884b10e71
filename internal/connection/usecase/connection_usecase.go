package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kowsik11/abhivan/internal/connection/domain"
	"github.com/kowsik11/abhivan/internal/connection/repository"
	ingestrepo "github.com/kowsik11/abhivan/internal/ingest/repository"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

// ConnectionUsecase manages the stored OAuth grants and the state that
// depends on them.
type ConnectionUsecase interface {
	Connect(ctx context.Context, userID string, provider domain.Provider, req *domain.ConnectRequest) (*domain.ConnectionSummary, error)
	Disconnect(ctx context.Context, userID string, provider domain.Provider) error
	List(ctx context.Context, userID string) ([]domain.ConnectionSummary, error)
}

// ClientCache drops a cached API client after its credentials change.
type ClientCache interface {
	Forget(userID string)
}

type connectionUsecase struct {
	connections repository.ConnectionRepository
	cursors     ingestrepo.CursorRepository
	messages    ingestrepo.MessageRepository
	mail        ClientCache
	now         func() time.Time
}

func NewConnectionUsecase(connections repository.ConnectionRepository, cursors ingestrepo.CursorRepository, messages ingestrepo.MessageRepository, mail ClientCache) ConnectionUsecase {
	return &connectionUsecase{
		connections: connections,
		cursors:     cursors,
		messages:    messages,
		mail:        mail,
		now:         time.Now,
	}
}

// Connect stores the grant. Connecting Gmail starts a fresh baseline: only
// mail received from now on is ingested.
func (u *connectionUsecase) Connect(ctx context.Context, userID string, provider domain.Provider, req *domain.ConnectRequest) (*domain.ConnectionSummary, error) {
	if !provider.Valid() {
		return nil, &apperr.ConfigError{Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		return nil, &apperr.ConfigError{Reason: "access_token is required"}
	}

	now := u.now().UTC()
	conn := &domain.Connection{
		UserID:       userID,
		Provider:     provider,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Expiry:       req.Expiry,
		Scopes:       req.Scopes,
		Email:        req.Email,
		APIDomain:    strings.TrimRight(req.APIDomain, "/"),
		PortalID:     req.PortalID,
		ConnectedAt:  now,
		UpdatedAt:    now,
	}
	if conn.Expiry.IsZero() && req.ExpiresIn > 0 {
		conn.Expiry = now.Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	if err := u.connections.Save(ctx, conn); err != nil {
		return nil, fmt.Errorf("unable to save %s connection: %w", provider, err)
	}

	if provider == domain.ProviderGmail {
		if u.mail != nil {
			u.mail.Forget(userID)
		}
		if err := u.cursors.SetBaseline(ctx, userID, now); err != nil {
			return nil, fmt.Errorf("unable to set ingestion baseline: %w", err)
		}
		if err := u.messages.Reset(ctx, userID); err != nil {
			return nil, fmt.Errorf("unable to reset inbox index: %w", err)
		}
		log.Printf("[Connection] Gmail connected for user %s, baseline %s", userID, now.Format(time.RFC3339))
	} else {
		log.Printf("[Connection] %s connected for user %s", provider, userID)
	}

	return summarize(provider, conn), nil
}

func (u *connectionUsecase) Disconnect(ctx context.Context, userID string, provider domain.Provider) error {
	if !provider.Valid() {
		return &apperr.ConfigError{Reason: fmt.Sprintf("unknown provider %q", provider)}
	}
	if err := u.connections.Delete(ctx, userID, provider); err != nil {
		return fmt.Errorf("unable to delete %s connection: %w", provider, err)
	}

	if provider == domain.ProviderGmail {
		if u.mail != nil {
			u.mail.Forget(userID)
		}
		if err := u.cursors.Reset(ctx, userID); err != nil {
			return fmt.Errorf("unable to reset ingestion cursor: %w", err)
		}
		if err := u.messages.Reset(ctx, userID); err != nil {
			return fmt.Errorf("unable to reset inbox index: %w", err)
		}
	}
	log.Printf("[Connection] %s disconnected for user %s", provider, userID)
	return nil
}

func (u *connectionUsecase) List(ctx context.Context, userID string) ([]domain.ConnectionSummary, error) {
	providers := []domain.Provider{domain.ProviderGmail, domain.ProviderHubSpot, domain.ProviderZoho}
	summaries := make([]domain.ConnectionSummary, 0, len(providers))
	for _, p := range providers {
		conn, err := u.connections.Get(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *summarize(p, conn))
	}
	return summaries, nil
}

func summarize(provider domain.Provider, conn *domain.Connection) *domain.ConnectionSummary {
	if conn == nil {
		return &domain.ConnectionSummary{Provider: provider}
	}
	return &domain.ConnectionSummary{
		Provider:    provider,
		Connected:   true,
		Email:       conn.Email,
		ConnectedAt: conn.ConnectedAt,
	}
}
