package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kowsik11/abhivan/internal/ingest/domain"
	"github.com/kowsik11/abhivan/pkg/kvstore"
)

// CursorRepository persists IngestionCursor records, one per user.
type CursorRepository interface {
	Get(ctx context.Context, userID string) (*domain.IngestionCursor, error)
	// SetBaseline starts a fresh cursor fenced at the given time.
	SetBaseline(ctx context.Context, userID string, at time.Time) error
	MarkBaselineReady(ctx context.Context, userID string) error
	// RecordProcessed appends ids to the processed set and moves LastUID to the last one.
	RecordProcessed(ctx context.Context, userID string, ids []string) error
	Reset(ctx context.Context, userID string) error
}

type cursorRepository struct {
	store kvstore.Store
}

func NewCursorRepository(store kvstore.Store) CursorRepository {
	return &cursorRepository{store: store}
}

func cursorKey(userID string) string { return "cursor:" + userID }

func (r *cursorRepository) Get(ctx context.Context, userID string) (*domain.IngestionCursor, error) {
	raw, err := r.store.Get(ctx, cursorKey(userID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load cursor: %w", err)
	}
	return decodeCursor(raw)
}

func (r *cursorRepository) SetBaseline(ctx context.Context, userID string, at time.Time) error {
	at = at.UTC()
	return r.update(ctx, userID, func(c *domain.IngestionCursor) error {
		*c = domain.IngestionCursor{
			ProcessedIDs: []string{},
			BaselineAt:   &at,
		}
		return nil
	})
}

func (r *cursorRepository) MarkBaselineReady(ctx context.Context, userID string) error {
	return r.update(ctx, userID, func(c *domain.IngestionCursor) error {
		c.BaselineReady = true
		return nil
	})
}

func (r *cursorRepository) RecordProcessed(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.update(ctx, userID, func(c *domain.IngestionCursor) error {
		seen := c.ProcessedSet()
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			c.ProcessedIDs = append(c.ProcessedIDs, id)
		}
		c.LastUID = ids[len(ids)-1]
		return nil
	})
}

func (r *cursorRepository) Reset(ctx context.Context, userID string) error {
	return r.store.Delete(ctx, cursorKey(userID))
}

func (r *cursorRepository) update(ctx context.Context, userID string, mutate func(*domain.IngestionCursor) error) error {
	err := r.store.Update(ctx, cursorKey(userID), func(current []byte) ([]byte, error) {
		cursor := &domain.IngestionCursor{ProcessedIDs: []string{}}
		if current != nil {
			decoded, err := decodeCursor(current)
			if err != nil {
				return nil, err
			}
			cursor = decoded
		}
		if err := mutate(cursor); err != nil {
			return nil, err
		}
		return json.Marshal(cursor)
	})
	if err != nil {
		return fmt.Errorf("unable to update cursor: %w", err)
	}
	return nil
}

func decodeCursor(raw []byte) (*domain.IngestionCursor, error) {
	var cursor domain.IngestionCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return nil, fmt.Errorf("unable to decode cursor: %w", err)
	}
	if cursor.ProcessedIDs == nil {
		cursor.ProcessedIDs = []string{}
	}
	return &cursor, nil
}
