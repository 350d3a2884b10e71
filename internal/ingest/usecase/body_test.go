package usecase

import (
	"testing"

	"github.com/kowsik11/abhivan/internal/ingest/domain"
)

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name    string
		payload *domain.MessagePart
		want    string
	}{
		{"nil payload", nil, ""},
		{
			"single part body wins",
			&domain.MessagePart{MimeType: "text/html", Data: []byte("<b>hi</b>")},
			"<b>hi</b>",
		},
		{
			"first plain leaf in nested tree",
			&domain.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*domain.MessagePart{
					{MimeType: "multipart/related", Parts: []*domain.MessagePart{
						{MimeType: "multipart/alternative", Parts: []*domain.MessagePart{
							{MimeType: "text/plain"},
							{MimeType: "text/plain; charset=utf-8", Data: []byte("deep")},
						}},
					}},
					{MimeType: "text/plain", Data: []byte("later")},
				},
			},
			"deep",
		},
		{
			"empty multipart falls through to sibling",
			&domain.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*domain.MessagePart{
					{MimeType: "multipart/alternative", Parts: []*domain.MessagePart{{MimeType: "text/html", Data: []byte("x")}}},
					{MimeType: "text/plain", Data: []byte("sibling")},
				},
			},
			"sibling",
		},
		{
			"plain attachment is not the body",
			&domain.MessagePart{
				MimeType: "multipart/mixed",
				Parts: []*domain.MessagePart{
					{MimeType: "text/plain", Filename: "notes.txt", Data: []byte("attached")},
				},
			},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractBody(tt.payload); got != tt.want {
				t.Errorf("ExtractBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSentAt(t *testing.T) {
	got := parseSentAt("Tue, 5 May 2026 10:15:00 +0200 (CEST)")
	if got == nil {
		t.Fatal("expected a parsed date")
	}
	if got.Hour() != 8 || got.Minute() != 15 {
		t.Errorf("expected 08:15 UTC, got %s", got)
	}
	if parseSentAt("") != nil || parseSentAt("not a date") != nil {
		t.Error("expected nil for missing or invalid dates")
	}
}

func TestSplitRecipients(t *testing.T) {
	got := splitRecipients(" a@x.com ,, B <b@x.com>")
	if len(got) != 2 || got[0] != "a@x.com" || got[1] != "B <b@x.com>" {
		t.Errorf("unexpected recipients %v", got)
	}
}
