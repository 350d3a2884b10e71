package usecase

import (
	"fmt"
	"strings"
	"time"

	ingestdomain "github.com/kowsik11/abhivan/internal/ingest/domain"
)

const extractionInstructions = `Extract structured CRM data from the email body and attachments.
Return JSON with keys:
- people: array of { "name": string, "email": string }
- company: { "name": string, "domain": string } or null
- intent: string
- amount: string
- dates: array of strings
- next_steps: array of strings
- summary: string
- evidence: string (a quote or reference from the email)
If a field is unknown, use an empty string or an empty array.
Return only the JSON object.`

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func messageMetadata(msg *ingestdomain.Message) string {
	sentAt := "N/A"
	if msg.SentAt != nil {
		sentAt = msg.SentAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("Subject: %s\nFrom: %s\nTo: %s\nSent at: %s",
		orNA(msg.Subject),
		orNA(msg.Sender),
		orNA(strings.Join(msg.Recipients, ", ")),
		sentAt,
	)
}

// AnalysisPrompt asks the model for the initial extraction.
func AnalysisPrompt(msg *ingestdomain.Message) string {
	return fmt.Sprintf("%s\n\n%s\n\n%s", messageMetadata(msg), extractionInstructions, msg.ConsolidatedText())
}

// RepairPrompt feeds the validation problem back together with the full message.
func RepairPrompt(msg *ingestdomain.Message, problem string) string {
	return fmt.Sprintf(`Your previous JSON response was invalid.
Reason: %s
Return only corrected JSON matching the required schema.

%s

Email context:
%s

%s`, problem, extractionInstructions, messageMetadata(msg), msg.ConsolidatedText())
}
