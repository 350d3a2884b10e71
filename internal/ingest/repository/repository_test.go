package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kowsik11/abhivan/internal/ingest/domain"
	"github.com/kowsik11/abhivan/pkg/kvstore"
)

func TestCursorLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewCursorRepository(kvstore.NewMemoryStore())

	cursor, err := repo.Get(ctx, "u1")
	if err != nil || cursor != nil {
		t.Fatalf("Get() on empty store = %v, %v; want nil, nil", cursor, err)
	}

	baseline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.SetBaseline(ctx, "u1", baseline); err != nil {
		t.Fatalf("SetBaseline() error = %v", err)
	}
	cursor, _ = repo.Get(ctx, "u1")
	if cursor.BaselineAt == nil || !cursor.BaselineAt.Equal(baseline) || cursor.BaselineReady {
		t.Fatalf("unexpected cursor after baseline: %+v", cursor)
	}

	if err := repo.MarkBaselineReady(ctx, "u1"); err != nil {
		t.Fatalf("MarkBaselineReady() error = %v", err)
	}
	if err := repo.RecordProcessed(ctx, "u1", []string{"a", "b"}); err != nil {
		t.Fatalf("RecordProcessed() error = %v", err)
	}
	if err := repo.RecordProcessed(ctx, "u1", []string{"b", "c"}); err != nil {
		t.Fatalf("RecordProcessed() error = %v", err)
	}

	cursor, _ = repo.Get(ctx, "u1")
	if !cursor.BaselineReady {
		t.Error("expected ready cursor")
	}
	if len(cursor.ProcessedIDs) != 3 || cursor.LastUID != "c" {
		t.Errorf("unexpected processed state %v last=%s", cursor.ProcessedIDs, cursor.LastUID)
	}

	// reconnecting clears dedupe state and readiness
	if err := repo.SetBaseline(ctx, "u1", baseline.Add(time.Hour)); err != nil {
		t.Fatalf("SetBaseline() error = %v", err)
	}
	cursor, _ = repo.Get(ctx, "u1")
	if cursor.BaselineReady || len(cursor.ProcessedIDs) != 0 || cursor.LastUID != "" {
		t.Errorf("expected fresh cursor, got %+v", cursor)
	}

	if err := repo.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if cursor, _ := repo.Get(ctx, "u1"); cursor != nil {
		t.Errorf("expected no cursor after reset, got %+v", cursor)
	}
}

func testMessage(id string, received time.Time) *domain.Message {
	return &domain.Message{
		ID:         id,
		ThreadID:   "t-" + id,
		Subject:    "Subject " + id,
		Sender:     "sender-" + id + "@example.com",
		ReceivedAt: received,
		BodyText:   "Body of " + id,
	}
}

func TestRecordPollPrunesToNewest(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(kvstore.NewMemoryStore(), 3)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var msgs []*domain.Message
	for i := 0; i < 5; i++ {
		msgs = append(msgs, testMessage(fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	if err := repo.RecordPoll(ctx, "u1", msgs); err != nil {
		t.Fatalf("RecordPoll() error = %v", err)
	}

	records, err := repo.List(ctx, "u1", domain.ListFilter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].ID != "m4" || records[2].ID != "m2" {
		t.Errorf("expected newest first m4..m2, got %s..%s", records[0].ID, records[2].ID)
	}
	if records[0].Status != domain.StatusNew || records[0].MailURL != "https://mail.google.com/mail/u/0/#inbox/t-m4" {
		t.Errorf("unexpected record %+v", records[0])
	}

	summary, _ := repo.Summary(ctx, "u1")
	if summary.Total != 3 || summary.Counts[domain.StatusNew] != 3 || summary.LastCheckedAt == nil {
		t.Errorf("unexpected summary %+v", summary)
	}
}

func TestRecordPollDefaultsSubject(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(kvstore.NewMemoryStore(), 10)
	msg := testMessage("m1", time.Now())
	msg.Subject = ""
	msg.BodyText = "see https://example.com"

	_ = repo.RecordPoll(ctx, "u1", []*domain.Message{msg})
	record, err := repo.Get(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if record.Subject != "(no subject)" {
		t.Errorf("expected placeholder subject, got %q", record.Subject)
	}
	if !record.HasLinks {
		t.Error("expected link flag")
	}
}

func TestUpdateStatusAndFilter(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(kvstore.NewMemoryStore(), 10)
	now := time.Now()
	_ = repo.RecordPoll(ctx, "u1", []*domain.Message{
		testMessage("m1", now),
		testMessage("m2", now.Add(time.Second)),
	})

	err := repo.UpdateStatus(ctx, "u1", "m1", domain.StatusUpdate{
		Status:       domain.StatusProcessed,
		CRMTarget:    "hubspot",
		CRMContactID: "c-1",
		CRMNoteID:    "n-1",
	})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	_ = repo.UpdateStatus(ctx, "u1", "m2", domain.StatusUpdate{Status: domain.StatusError, Error: "boom"})
	// unknown ids are ignored
	if err := repo.UpdateStatus(ctx, "u1", "missing", domain.StatusUpdate{Status: domain.StatusError}); err != nil {
		t.Fatalf("UpdateStatus(missing) error = %v", err)
	}

	processed, _ := repo.List(ctx, "u1", domain.ListFilter{Status: domain.StatusProcessed})
	if len(processed) != 1 || processed[0].CRMNoteID != "n-1" {
		t.Errorf("unexpected processed list %+v", processed)
	}

	matched, _ := repo.List(ctx, "u1", domain.ListFilter{Query: "sender-m2"})
	if len(matched) != 1 || matched[0].ID != "m2" || matched[0].Error != "boom" {
		t.Errorf("unexpected query result %+v", matched)
	}

	summary, _ := repo.Summary(ctx, "u1")
	if summary.Counts[domain.StatusProcessed] != 1 || summary.Counts[domain.StatusError] != 1 || summary.Counts[domain.StatusNew] != 0 {
		t.Errorf("unexpected counts %+v", summary.Counts)
	}
}

func TestMessageRepositoryReset(t *testing.T) {
	ctx := context.Background()
	repo := NewMessageRepository(kvstore.NewMemoryStore(), 10)
	_ = repo.RecordPoll(ctx, "u1", []*domain.Message{testMessage("m1", time.Now())})
	if err := repo.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	summary, _ := repo.Summary(ctx, "u1")
	if summary.Total != 0 || summary.LastCheckedAt != nil {
		t.Errorf("expected empty inbox, got %+v", summary)
	}
}
