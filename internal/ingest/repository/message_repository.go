package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/kowsik11/abhivan/internal/ingest/domain"
	"github.com/kowsik11/abhivan/pkg/fuzzy"
	"github.com/kowsik11/abhivan/pkg/kvstore"
)

const (
	previewLength   = 800
	defaultListSize = 50
	maxListSize     = 200
)

var linkPattern = regexp.MustCompile(`https?://`)

// MessageRepository is the per-user inbox index of recently ingested messages.
type MessageRepository interface {
	RecordPoll(ctx context.Context, userID string, messages []*domain.Message) error
	UpdateStatus(ctx context.Context, userID, messageID string, update domain.StatusUpdate) error
	List(ctx context.Context, userID string, filter domain.ListFilter) ([]*domain.InboxRecord, error)
	Summary(ctx context.Context, userID string) (*domain.InboxSummary, error)
	Get(ctx context.Context, userID, messageID string) (*domain.InboxRecord, error)
	Reset(ctx context.Context, userID string) error
}

type messageRepository struct {
	store kvstore.Store
	limit int
}

// NewMessageRepository keeps at most limit records per user, newest first.
func NewMessageRepository(store kvstore.Store, limit int) MessageRepository {
	if limit <= 0 {
		limit = 10
	}
	return &messageRepository{store: store, limit: limit}
}

func inboxKey(userID string) string { return "inbox:" + userID }

func (r *messageRepository) RecordPoll(ctx context.Context, userID string, messages []*domain.Message) error {
	now := time.Now().UTC()
	return r.update(ctx, userID, func(bucket *domain.InboxBucket) {
		bucket.LastCheckedAt = &now
		for _, msg := range messages {
			existing := bucket.Messages[msg.ID]
			record := newRecord(msg, now)
			if existing != nil {
				record.CreatedAt = existing.CreatedAt
			}
			bucket.Messages[msg.ID] = record
		}
		r.prune(bucket)
	})
}

func (r *messageRepository) UpdateStatus(ctx context.Context, userID, messageID string, update domain.StatusUpdate) error {
	return r.update(ctx, userID, func(bucket *domain.InboxBucket) {
		record, ok := bucket.Messages[messageID]
		if !ok {
			return
		}
		record.Status = update.Status
		record.UpdatedAt = time.Now().UTC()
		record.Error = update.Error
		if update.CRMTarget != "" {
			record.CRMTarget = update.CRMTarget
		}
		if update.CRMContactID != "" {
			record.CRMContactID = update.CRMContactID
		}
		if update.CRMNoteID != "" {
			record.CRMNoteID = update.CRMNoteID
		}
		if update.CRMRecordURL != "" {
			record.CRMRecordURL = update.CRMRecordURL
		}
	})
}

func (r *messageRepository) List(ctx context.Context, userID string, filter domain.ListFilter) ([]*domain.InboxRecord, error) {
	bucket, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListSize
	}
	if limit > maxListSize {
		limit = maxListSize
	}
	query := strings.TrimSpace(filter.Query)

	records := make([]*domain.InboxRecord, 0, len(bucket.Messages))
	for _, record := range bucket.Messages {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if query != "" && !fuzzy.MatchAny(query, record.Subject, record.Sender, record.Preview) {
			continue
		}
		records = append(records, record)
	}
	sortNewestFirst(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *messageRepository) Summary(ctx context.Context, userID string) (*domain.InboxSummary, error) {
	bucket, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := &domain.InboxSummary{
		LastCheckedAt: bucket.LastCheckedAt,
		Counts: map[domain.MessageStatus]int{
			domain.StatusNew:       0,
			domain.StatusProcessed: 0,
			domain.StatusError:     0,
		},
		Total: len(bucket.Messages),
	}
	for _, record := range bucket.Messages {
		summary.Counts[record.Status]++
	}
	return summary, nil
}

func (r *messageRepository) Get(ctx context.Context, userID, messageID string) (*domain.InboxRecord, error) {
	bucket, err := r.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return bucket.Messages[messageID], nil
}

func (r *messageRepository) Reset(ctx context.Context, userID string) error {
	return r.store.Delete(ctx, inboxKey(userID))
}

func (r *messageRepository) prune(bucket *domain.InboxBucket) {
	if len(bucket.Messages) <= r.limit {
		return
	}
	records := make([]*domain.InboxRecord, 0, len(bucket.Messages))
	for _, record := range bucket.Messages {
		records = append(records, record)
	}
	sortNewestFirst(records)
	for _, record := range records[r.limit:] {
		delete(bucket.Messages, record.ID)
	}
}

func (r *messageRepository) load(ctx context.Context, userID string) (*domain.InboxBucket, error) {
	raw, err := r.store.Get(ctx, inboxKey(userID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return emptyBucket(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to load inbox: %w", err)
	}
	return decodeBucket(raw)
}

func (r *messageRepository) update(ctx context.Context, userID string, mutate func(*domain.InboxBucket)) error {
	err := r.store.Update(ctx, inboxKey(userID), func(current []byte) ([]byte, error) {
		bucket := emptyBucket()
		if current != nil {
			decoded, err := decodeBucket(current)
			if err != nil {
				return nil, err
			}
			bucket = decoded
		}
		mutate(bucket)
		return json.Marshal(bucket)
	})
	if err != nil {
		return fmt.Errorf("unable to update inbox: %w", err)
	}
	return nil
}

func newRecord(msg *domain.Message, now time.Time) *domain.InboxRecord {
	subject := msg.Subject
	if subject == "" {
		subject = "(no subject)"
	}
	preview := msg.BodyText
	if runes := []rune(preview); len(runes) > previewLength {
		preview = string(runes[:previewLength])
	}
	anchor := msg.ThreadID
	if anchor == "" {
		anchor = msg.ID
	}
	return &domain.InboxRecord{
		ID:             msg.ID,
		ThreadID:       msg.ThreadID,
		Subject:        subject,
		Sender:         msg.Sender,
		Snippet:        msg.Snippet,
		Preview:        preview,
		ReceivedAt:     msg.ReceivedAt,
		Status:         domain.StatusNew,
		HasAttachments: len(msg.Attachments) > 0,
		HasImages:      msg.HasImages,
		HasLinks:       linkPattern.MatchString(msg.BodyText),
		MailURL:        "https://mail.google.com/mail/u/0/#inbox/" + anchor,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func sortNewestFirst(records []*domain.InboxRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].ReceivedAt.Equal(records[j].ReceivedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].ReceivedAt.After(records[j].ReceivedAt)
	})
}

func emptyBucket() *domain.InboxBucket {
	return &domain.InboxBucket{Messages: map[string]*domain.InboxRecord{}}
}

func decodeBucket(raw []byte) (*domain.InboxBucket, error) {
	var bucket domain.InboxBucket
	if err := json.Unmarshal(raw, &bucket); err != nil {
		return nil, fmt.Errorf("unable to decode inbox: %w", err)
	}
	if bucket.Messages == nil {
		bucket.Messages = map[string]*domain.InboxRecord{}
	}
	return &bucket, nil
}
