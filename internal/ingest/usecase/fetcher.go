package usecase

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kowsik11/abhivan/internal/ingest/domain"
	"github.com/kowsik11/abhivan/internal/ingest/repository"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

const maxPageSize = 100

// MaxPollCount caps how many messages a single sync request may ask for.
const MaxPollCount = 500

type PollOptions struct {
	MaxCount int
	Query    string
	LabelIDs []string
}

// Fetcher pulls new mail past the user's baseline and advances the cursor.
type Fetcher struct {
	provider  domain.MailProvider
	extractor domain.TextExtractor
	cursors   repository.CursorRepository
	messages  repository.MessageRepository
}

func NewFetcher(provider domain.MailProvider, extractor domain.TextExtractor, cursors repository.CursorRepository, messages repository.MessageRepository) *Fetcher {
	return &Fetcher{
		provider:  provider,
		extractor: extractor,
		cursors:   cursors,
		messages:  messages,
	}
}

// Poll returns messages not seen before, oldest listing order preserved.
//
// The first poll after a connect only arms the baseline and returns nothing.
// Any provider error aborts the poll without touching the cursor, so messages
// fetched earlier in the same call are fetched again by the next poll.
func (f *Fetcher) Poll(ctx context.Context, userID string, opts PollOptions) ([]*domain.Message, error) {
	if opts.MaxCount <= 0 {
		return []*domain.Message{}, nil
	}

	cursor, err := f.cursors.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cursor == nil || cursor.BaselineAt == nil {
		return nil, &apperr.ConfigError{Reason: "gmail baseline missing; reconnect gmail"}
	}

	if !cursor.BaselineReady {
		if err := f.cursors.MarkBaselineReady(ctx, userID); err != nil {
			return nil, err
		}
		log.Printf("[Fetcher] Baseline armed for user %s at %s", userID, cursor.BaselineAt.Format(time.RFC3339))
		f.recordPoll(ctx, userID, nil)
		return []*domain.Message{}, nil
	}

	fence := cursor.BaselineAt.Truncate(time.Second)
	query := fmt.Sprintf("after:%d", fence.Unix())
	if opts.Query != "" {
		query += " " + opts.Query
	}

	seen := cursor.ProcessedSet()
	collected := make([]*domain.Message, 0, opts.MaxCount)
	var skipped []string
	pageToken := ""

	for len(collected) < opts.MaxCount {
		page, err := f.provider.ListMessages(ctx, userID, domain.ListQuery{
			Query:      query,
			LabelIDs:   opts.LabelIDs,
			PageToken:  pageToken,
			MaxResults: int64(min(maxPageSize, opts.MaxCount)),
		})
		if err != nil {
			return nil, fmt.Errorf("unable to list messages: %w", err)
		}

		for _, id := range page.IDs {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}

			raw, err := f.provider.GetMessage(ctx, userID, id)
			if err != nil {
				return nil, fmt.Errorf("unable to fetch message %s: %w", id, err)
			}
			msg, err := f.buildMessage(ctx, userID, raw)
			if err != nil {
				return nil, err
			}
			if msg.ReceivedAt.Before(fence) || (msg.SentAt != nil && msg.SentAt.Before(fence)) {
				log.Printf("[Fetcher] Skipping message %s older than baseline", id)
				skipped = append(skipped, id)
				continue
			}

			collected = append(collected, msg)
			if len(collected) >= opts.MaxCount {
				break
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	// Skipped ids go first so LastUID stays on the newest collected message.
	ids := skipped
	for _, msg := range collected {
		ids = append(ids, msg.ID)
	}
	if err := f.cursors.RecordProcessed(ctx, userID, ids); err != nil {
		return nil, err
	}
	if len(collected) > 0 {
		log.Printf("[Fetcher] Collected %d new messages for user %s", len(collected), userID)
	}
	f.recordPoll(ctx, userID, collected)

	return collected, nil
}

// recordPoll updates the inbox index; failures only cost observability.
func (f *Fetcher) recordPoll(ctx context.Context, userID string, msgs []*domain.Message) {
	if f.messages == nil {
		return
	}
	if err := f.messages.RecordPoll(ctx, userID, msgs); err != nil {
		log.Printf("[Fetcher] Failed to record poll for user %s: %v", userID, err)
	}
}

func (f *Fetcher) buildMessage(ctx context.Context, userID string, raw *domain.RawMessage) (*domain.Message, error) {
	msg := &domain.Message{
		ID:          raw.ID,
		ThreadID:    raw.ThreadID,
		Subject:     raw.Header("Subject"),
		Sender:      raw.Header("From"),
		Recipients:  splitRecipients(raw.Header("To")),
		SentAt:      parseSentAt(raw.Header("Date")),
		ReceivedAt:  raw.InternalDate,
		Snippet:     raw.Snippet,
		BodyText:    ExtractBody(raw.Payload),
		Attachments: []domain.Attachment{},
		HasImages:   hasImages(raw.Payload),
	}
	if msg.ReceivedAt.IsZero() {
		if msg.SentAt != nil {
			msg.ReceivedAt = *msg.SentAt
		} else {
			msg.ReceivedAt = time.Now().UTC()
		}
	}

	for _, part := range attachmentParts(raw.Payload) {
		data, err := f.provider.GetAttachment(ctx, userID, raw.ID, part.AttachmentID)
		if err != nil {
			return nil, fmt.Errorf("unable to fetch attachment %s of %s: %w", part.Filename, raw.ID, err)
		}
		attachment := domain.Attachment{
			Filename: part.Filename,
			MimeType: part.MimeType,
			Size:     len(data),
		}
		if f.extractor != nil {
			attachment.Text = f.extractor.ExtractText(part.Filename, part.MimeType, data)
		}
		msg.Attachments = append(msg.Attachments, attachment)
	}
	return msg, nil
}
