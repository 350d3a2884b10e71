package usecase

import (
	"net/mail"
	"strings"
	"time"

	"github.com/kowsik11/abhivan/internal/ingest/domain"
)

// ExtractBody prefers the payload's own body; otherwise it walks the
// multipart tree depth-first and returns the first non-empty text/plain leaf.
func ExtractBody(payload *domain.MessagePart) string {
	if payload == nil {
		return ""
	}
	if len(payload.Data) > 0 {
		return string(payload.Data)
	}
	return firstPlainText(payload.Parts)
}

func firstPlainText(parts []*domain.MessagePart) string {
	for _, part := range parts {
		mimeType := strings.ToLower(part.MimeType)
		switch {
		case strings.HasPrefix(mimeType, "text/plain") && part.Filename == "" && len(part.Data) > 0:
			return string(part.Data)
		case strings.HasPrefix(mimeType, "multipart/"):
			if text := firstPlainText(part.Parts); text != "" {
				return text
			}
		}
	}
	return ""
}

// walkParts visits every node of the tree, root included.
func walkParts(part *domain.MessagePart, visit func(*domain.MessagePart)) {
	if part == nil {
		return
	}
	visit(part)
	for _, child := range part.Parts {
		walkParts(child, visit)
	}
}

func attachmentParts(payload *domain.MessagePart) []*domain.MessagePart {
	var parts []*domain.MessagePart
	walkParts(payload, func(p *domain.MessagePart) {
		if p.AttachmentID != "" {
			parts = append(parts, p)
		}
	})
	return parts
}

func hasImages(payload *domain.MessagePart) bool {
	found := false
	walkParts(payload, func(p *domain.MessagePart) {
		if strings.HasPrefix(strings.ToLower(p.MimeType), "image/") {
			found = true
		}
	})
	return found
}

func splitRecipients(header string) []string {
	recipients := []string{}
	for _, r := range strings.Split(header, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}

// parseSentAt reads the Date header; nil when it is missing or unparseable.
func parseSentAt(header string) *time.Time {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	t, err := mail.ParseDate(header)
	if err != nil {
		// some senders append a zone name in parentheses that ParseDate rejects
		if idx := strings.Index(header, " ("); idx > 0 {
			t, err = mail.ParseDate(header[:idx])
		}
		if err != nil {
			return nil
		}
	}
	t = t.UTC()
	return &t
}
