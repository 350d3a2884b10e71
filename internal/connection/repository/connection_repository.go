package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kowsik11/abhivan/internal/connection/domain"
	"github.com/kowsik11/abhivan/pkg/kvstore"
)

type ConnectionRepository interface {
	// Get returns nil, nil when the user has not connected the provider.
	Get(ctx context.Context, userID string, provider domain.Provider) (*domain.Connection, error)
	Save(ctx context.Context, conn *domain.Connection) error
	// Modify applies fn to the stored connection under the store's key lock.
	Modify(ctx context.Context, userID string, provider domain.Provider, fn func(*domain.Connection) error) error
	Delete(ctx context.Context, userID string, provider domain.Provider) error
}

type connectionRepository struct {
	store kvstore.Store
}

func NewConnectionRepository(store kvstore.Store) ConnectionRepository {
	return &connectionRepository{store: store}
}

func connectionKey(userID string, provider domain.Provider) string {
	return fmt.Sprintf("conn:%s:%s", provider, userID)
}

var errMissing = errors.New("connection missing")

func (r *connectionRepository) Get(ctx context.Context, userID string, provider domain.Provider) (*domain.Connection, error) {
	raw, err := r.store.Get(ctx, connectionKey(userID, provider))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load %s connection: %w", provider, err)
	}
	var conn domain.Connection
	if err := json.Unmarshal(raw, &conn); err != nil {
		return nil, fmt.Errorf("unable to decode %s connection: %w", provider, err)
	}
	return &conn, nil
}

func (r *connectionRepository) Save(ctx context.Context, conn *domain.Connection) error {
	raw, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("unable to encode %s connection: %w", conn.Provider, err)
	}
	return r.store.Put(ctx, connectionKey(conn.UserID, conn.Provider), raw)
}

func (r *connectionRepository) Modify(ctx context.Context, userID string, provider domain.Provider, fn func(*domain.Connection) error) error {
	err := r.store.Update(ctx, connectionKey(userID, provider), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, errMissing
		}
		var conn domain.Connection
		if err := json.Unmarshal(current, &conn); err != nil {
			return nil, err
		}
		if err := fn(&conn); err != nil {
			return nil, err
		}
		return json.Marshal(&conn)
	})
	if errors.Is(err, errMissing) {
		return nil
	}
	return err
}

func (r *connectionRepository) Delete(ctx context.Context, userID string, provider domain.Provider) error {
	return r.store.Delete(ctx, connectionKey(userID, provider))
}
