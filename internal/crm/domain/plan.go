package domain

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

type Target string

const (
	TargetNone    Target = ""
	TargetHubSpot Target = "hubspot"
	TargetZoho    Target = "zoho"
)

func ParseTarget(s string) (Target, error) {
	switch Target(s) {
	case TargetNone, TargetHubSpot, TargetZoho:
		return Target(s), nil
	case "none":
		return TargetNone, nil
	}
	return "", fmt.Errorf("unknown CRM target %q", s)
}

type ContactPlan struct {
	FullName string `json:"full_name"`
	Email    string `json:"email,omitempty"`
}

type CompanyPlan struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// NotePlan's ExternalRef is the source message id and the sync idempotency key.
type NotePlan struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ExternalRef string `json:"external_ref"`
}

// Marker is the line embedded in the note body that identifies its source message.
func (n NotePlan) Marker() string {
	return ExternalRefMarker(n.ExternalRef)
}

func ExternalRefMarker(ref string) string {
	return "ExternalRef: " + ref
}

// MarkedIn reports whether body carries this note's marker. The marker must end
// at whitespace, a tag, or the end of the body so "m1" never matches "m10".
func (n NotePlan) MarkedIn(body string) bool {
	marker := n.Marker()
	for rest := body; ; {
		i := strings.Index(rest, marker)
		if i < 0 {
			return false
		}
		rest = rest[i+len(marker):]
		if rest == "" {
			return true
		}
		next := rune(rest[0])
		if next == '<' || unicode.IsSpace(next) {
			return true
		}
	}
}

// Plan is the CRM-agnostic write derived from one extraction.
type Plan struct {
	Contact *ContactPlan `json:"contact,omitempty"`
	Company *CompanyPlan `json:"company,omitempty"`
	Note    NotePlan     `json:"note"`
}

type ParentKind string

const (
	ParentContact ParentKind = "contact"
	ParentCompany ParentKind = "company"
)

type NoteParent struct {
	Kind ParentKind
	ID   string
}

// WriteResult holds the ids touched by one plan execution. Each id is either
// newly created or an existing record that was found.
type WriteResult struct {
	Target         Target `json:"target"`
	ContactID      string `json:"contact_id,omitempty"`
	ContactCreated bool   `json:"contact_created"`
	CompanyID      string `json:"company_id,omitempty"`
	CompanyCreated bool   `json:"company_created"`
	Associated     bool   `json:"associated"`
	NoteID         string `json:"note_id,omitempty"`
	NoteCreated    bool   `json:"note_created"`
	RecordURL      string `json:"record_url,omitempty"`
}

// SyncEngine is one CRM backend's idempotent write capability set.
type SyncEngine interface {
	UpsertContact(ctx context.Context, userID string, contact ContactPlan, company *CompanyPlan) (id string, created bool, err error)
	UpsertCompany(ctx context.Context, userID string, company CompanyPlan) (id string, created bool, err error)
	// Associate links a contact to a company; linking twice is not an error.
	Associate(ctx context.Context, userID, contactID, companyID string) error
	// UpsertNote returns the existing note carrying the plan's marker under
	// parent, or creates one.
	UpsertNote(ctx context.Context, userID string, parent NoteParent, note NotePlan) (id string, created bool, err error)
}

// RecordLinker is implemented by engines that can link to a CRM record page.
type RecordLinker interface {
	RecordURL(ctx context.Context, userID string, result *WriteResult) string
}
