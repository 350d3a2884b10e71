package domain

import (
	"context"
	"strings"
	"time"
)

// Attachment is an attachment part with whatever text could be extracted.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
	Text     string `json:"text,omitempty"`
}

// Message is a newly ingested email. ID anchors idempotency for the whole pipeline.
type Message struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"thread_id"`
	Subject     string       `json:"subject"`
	Sender      string       `json:"sender"`
	Recipients  []string     `json:"recipients"`
	SentAt      *time.Time   `json:"sent_at,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
	Snippet     string       `json:"snippet"`
	BodyText    string       `json:"body_text"`
	Attachments []Attachment `json:"attachments"`
	HasImages   bool         `json:"has_images"`
}

// ConsolidatedText is the body followed by one block per attachment that
// produced text.
func (m *Message) ConsolidatedText() string {
	blocks := []string{m.BodyText}
	for _, a := range m.Attachments {
		if a.Text == "" {
			continue
		}
		blocks = append(blocks, "\nAttachment: "+a.Filename+"\n"+a.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// Header is a raw message header.
type Header struct {
	Name  string
	Value string
}

// MessagePart is one node of a provider's MIME tree with the inline body
// already decoded.
type MessagePart struct {
	PartID       string
	MimeType     string
	Filename     string
	Headers      []Header
	Data         []byte
	AttachmentID string
	Size         int
	Parts        []*MessagePart
}

// RawMessage is the provider's full-format view of a message.
type RawMessage struct {
	ID           string
	ThreadID     string
	Snippet      string
	InternalDate time.Time
	LabelIDs     []string
	Payload      *MessagePart
}

// Header returns the first header with the given name, case-insensitively.
func (m *RawMessage) Header(name string) string {
	if m.Payload == nil {
		return ""
	}
	for _, h := range m.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

type ListQuery struct {
	Query      string
	LabelIDs   []string
	PageToken  string
	MaxResults int64
}

type MessagePage struct {
	IDs           []string
	NextPageToken string
}

// MailProvider is the read-only mailbox the fetcher pages through.
type MailProvider interface {
	ListMessages(ctx context.Context, userID string, q ListQuery) (*MessagePage, error)
	GetMessage(ctx context.Context, userID, messageID string) (*RawMessage, error)
	GetAttachment(ctx context.Context, userID, messageID, attachmentID string) ([]byte, error)
}

// TextExtractor turns attachment bytes into text; empty means no text.
type TextExtractor interface {
	ExtractText(filename, mimeType string, data []byte) string
}
