package domain

import "time"

type MessageStatus string

const (
	StatusNew       MessageStatus = "new"
	StatusProcessed MessageStatus = "processed"
	StatusError     MessageStatus = "error"
)

func (s MessageStatus) Valid() bool {
	switch s {
	case StatusNew, StatusProcessed, StatusError:
		return true
	}
	return false
}

// InboxRecord is what the inbox index keeps about one ingested message.
type InboxRecord struct {
	ID             string        `json:"id"`
	ThreadID       string        `json:"thread_id"`
	Subject        string        `json:"subject"`
	Sender         string        `json:"sender"`
	Snippet        string        `json:"snippet"`
	Preview        string        `json:"preview"`
	ReceivedAt     time.Time     `json:"received_at"`
	Status         MessageStatus `json:"status"`
	HasAttachments bool          `json:"has_attachments"`
	HasImages      bool          `json:"has_images"`
	HasLinks       bool          `json:"has_links"`
	MailURL        string        `json:"gmail_url"`
	CRMTarget      string        `json:"crm_target,omitempty"`
	CRMContactID   string        `json:"crm_contact_id,omitempty"`
	CRMNoteID      string        `json:"crm_note_id,omitempty"`
	CRMRecordURL   string        `json:"crm_record_url,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// InboxBucket is the stored per-user inbox index.
type InboxBucket struct {
	LastCheckedAt *time.Time              `json:"last_checked_at"`
	Messages      map[string]*InboxRecord `json:"messages"`
}

type StatusUpdate struct {
	Status       MessageStatus
	CRMTarget    string
	CRMContactID string
	CRMNoteID    string
	CRMRecordURL string
	Error        string
}

// ListFilter selects inbox records; an empty Status means all.
type ListFilter struct {
	Status MessageStatus
	Query  string
	Limit  int
}

type InboxSummary struct {
	LastCheckedAt *time.Time            `json:"last_checked_at"`
	Counts        map[MessageStatus]int `json:"counts"`
	Total         int                   `json:"total"`
}

// MailboxStatus is the Gmail connection view shown to the user.
type MailboxStatus struct {
	Connected     bool         `json:"connected"`
	Email         string       `json:"email,omitempty"`
	BaselineAt    *time.Time   `json:"baseline_at"`
	BaselineReady bool         `json:"baseline_ready"`
	Processed     int          `json:"processed_ids"`
	Inbox         InboxSummary `json:"inbox"`
}
