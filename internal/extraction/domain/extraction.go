package domain

import (
	"fmt"
	"strings"
)

type Person struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type Company struct {
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
}

// Extraction is the validated set of facts pulled from one message.
// MessageID always equals the source message id.
type Extraction struct {
	MessageID string   `json:"message_id"`
	People    []Person `json:"people"`
	Company   *Company `json:"company,omitempty"`
	Intent    string   `json:"intent"`
	Amount    string   `json:"amount"`
	Dates     []string `json:"dates"`
	NextSteps []string `json:"next_steps"`
	Summary   string   `json:"summary"`
	Evidence  string   `json:"evidence"`
}

const (
	StageParse  = "parse"
	StageSchema = "schema"
)

type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError says why a model response was rejected, field by field.
type ValidationError struct {
	Stage  string       `json:"stage"`
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Stage + " error"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Path == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Path, f.Message))
	}
	return fmt.Sprintf("%s error: %s", e.Stage, strings.Join(parts, "; "))
}
