package usecase

import (
	"context"

	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
	connrepo "github.com/kowsik11/abhivan/internal/connection/repository"
	"github.com/kowsik11/abhivan/internal/ingest/domain"
	"github.com/kowsik11/abhivan/internal/ingest/repository"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

// MailboxUsecase is the read side of ingestion plus a manual sync trigger.
type MailboxUsecase interface {
	Status(ctx context.Context, userID string) (*domain.MailboxStatus, error)
	Sync(ctx context.Context, userID string, opts PollOptions) ([]*domain.Message, error)
	Summary(ctx context.Context, userID string) (*domain.InboxSummary, error)
	ListMessages(ctx context.Context, userID string, filter domain.ListFilter) ([]*domain.InboxRecord, error)
	GetMessage(ctx context.Context, userID, messageID string) (*domain.InboxRecord, error)
}

type mailboxUsecase struct {
	fetcher     *Fetcher
	connections connrepo.ConnectionRepository
	cursors     repository.CursorRepository
	messages    repository.MessageRepository
}

func NewMailboxUsecase(fetcher *Fetcher, connections connrepo.ConnectionRepository, cursors repository.CursorRepository, messages repository.MessageRepository) MailboxUsecase {
	return &mailboxUsecase{
		fetcher:     fetcher,
		connections: connections,
		cursors:     cursors,
		messages:    messages,
	}
}

func (u *mailboxUsecase) Status(ctx context.Context, userID string) (*domain.MailboxStatus, error) {
	conn, err := u.connections.Get(ctx, userID, conndomain.ProviderGmail)
	if err != nil {
		return nil, err
	}
	status := &domain.MailboxStatus{Connected: conn != nil}
	if conn != nil {
		status.Email = conn.Email
	}

	cursor, err := u.cursors.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		status.BaselineAt = cursor.BaselineAt
		status.BaselineReady = cursor.BaselineReady
		status.Processed = len(cursor.ProcessedIDs)
	}

	summary, err := u.messages.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	status.Inbox = *summary
	return status, nil
}

// Sync polls once outside the pipeline; new messages land in the inbox as "new".
func (u *mailboxUsecase) Sync(ctx context.Context, userID string, opts PollOptions) ([]*domain.Message, error) {
	conn, err := u.connections.Get(ctx, userID, conndomain.ProviderGmail)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, &apperr.NotConnectedError{Provider: string(conndomain.ProviderGmail), UserID: userID}
	}
	return u.fetcher.Poll(ctx, userID, opts)
}

func (u *mailboxUsecase) Summary(ctx context.Context, userID string) (*domain.InboxSummary, error) {
	return u.messages.Summary(ctx, userID)
}

func (u *mailboxUsecase) ListMessages(ctx context.Context, userID string, filter domain.ListFilter) ([]*domain.InboxRecord, error) {
	return u.messages.List(ctx, userID, filter)
}

func (u *mailboxUsecase) GetMessage(ctx context.Context, userID, messageID string) (*domain.InboxRecord, error) {
	return u.messages.Get(ctx, userID, messageID)
}
