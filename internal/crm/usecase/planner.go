package usecase

import (
	"strings"

	"github.com/kowsik11/abhivan/internal/crm/domain"
	extractiondomain "github.com/kowsik11/abhivan/internal/extraction/domain"
	ingestdomain "github.com/kowsik11/abhivan/internal/ingest/domain"
)

const defaultNoteTitle = "Email Note"

// BuildPlan maps an extraction onto a CRM write. Only the first person
// becomes the contact.
func BuildPlan(msg *ingestdomain.Message, ext *extractiondomain.Extraction) domain.Plan {
	plan := domain.Plan{
		Note: domain.NotePlan{
			Title:       noteTitle(msg.Subject),
			Body:        noteBody(ext, msg.ID),
			ExternalRef: msg.ID,
		},
	}
	if len(ext.People) > 0 {
		primary := ext.People[0]
		plan.Contact = &domain.ContactPlan{FullName: primary.Name, Email: primary.Email}
	}
	if ext.Company != nil {
		plan.Company = &domain.CompanyPlan{Name: ext.Company.Name, Domain: ext.Company.Domain}
	}
	return plan
}

func noteTitle(subject string) string {
	if subject = strings.TrimSpace(subject); subject != "" {
		return subject
	}
	return defaultNoteTitle
}

func noteBody(ext *extractiondomain.Extraction, messageID string) string {
	lines := []string{
		"Summary: " + ext.Summary,
		"Intent: " + orNA(ext.Intent),
		"Amount: " + orNA(ext.Amount),
		"Dates: " + orNA(strings.Join(ext.Dates, ", ")),
		"Next Steps: " + orNA(strings.Join(ext.NextSteps, ", ")),
		"Evidence: " + ext.Evidence,
		"",
		domain.ExternalRefMarker(messageID),
	}
	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
