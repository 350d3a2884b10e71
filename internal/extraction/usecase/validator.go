package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kowsik11/abhivan/internal/extraction/domain"
	ingestdomain "github.com/kowsik11/abhivan/internal/ingest/domain"
	"github.com/kowsik11/abhivan/pkg/apperr"
	"github.com/kowsik11/abhivan/pkg/retrypolicy"
)

//go:embed extraction.schema.json
var extractionSchema []byte

const DefaultMaxRetries = 3

// Repairer asks the model to fix a response that failed validation.
type Repairer interface {
	Repair(ctx context.Context, msg *ingestdomain.Message, problem string) (string, error)
}

// Validator parses and schema-checks model output, requesting repairs until
// the response validates or the attempt budget is spent.
type Validator struct {
	repairer   Repairer
	maxRetries int
	schema     *jsonschema.Schema
}

func NewValidator(repairer Repairer, maxRetries int) (*Validator, error) {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.schema.json", bytes.NewReader(extractionSchema)); err != nil {
		return nil, fmt.Errorf("unable to load extraction schema: %w", err)
	}
	schema, err := compiler.Compile("extraction.schema.json")
	if err != nil {
		return nil, fmt.Errorf("unable to compile extraction schema: %w", err)
	}
	return &Validator{repairer: repairer, maxRetries: maxRetries, schema: schema}, nil
}

// Validate makes at most maxRetries validation attempts; attempts after the
// first validate a repaired response. Repair call failures end the loop as-is.
func (v *Validator) Validate(ctx context.Context, msg *ingestdomain.Message, raw string) (*domain.Extraction, error) {
	current := raw
	policy := retrypolicy.Policy{
		MaxAttempts: uint(v.maxRetries),
		Retryable: func(err error) bool {
			var ve *domain.ValidationError
			return errors.As(err, &ve)
		},
		Prepare: func(ctx context.Context, n uint, lastErr error) error {
			repaired, err := v.repairer.Repair(ctx, msg, lastErr.Error())
			if err != nil {
				return err
			}
			current = repaired
			return nil
		},
	}

	extraction, err := retrypolicy.Do(ctx, policy, func(ctx context.Context, attempt uint) (*domain.Extraction, error) {
		extraction, err := v.check(current, msg.ID)
		if err != nil {
			log.Printf("[Extraction] Attempt %d/%d for message %s invalid: %v", attempt+1, v.maxRetries, msg.ID, err)
		}
		return extraction, err
	})
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			return nil, &apperr.ValidationExhaustedError{MessageID: msg.ID, Attempts: v.maxRetries, Last: ve}
		}
		return nil, err
	}
	return extraction, nil
}

// check validates one response. The message id is always overwritten with
// the source id before validation.
func (v *Validator) check(raw, messageID string) (*domain.Extraction, error) {
	doc, err := parseResponse(raw)
	if err != nil {
		return nil, &domain.ValidationError{
			Stage:  domain.StageParse,
			Fields: []domain.FieldError{{Message: err.Error()}},
		}
	}
	if obj, ok := doc.(map[string]any); ok {
		obj["message_id"] = messageID
	}

	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &domain.ValidationError{Stage: domain.StageSchema, Fields: fieldErrors(ve)}
		}
		return nil, &domain.ValidationError{Stage: domain.StageSchema, Fields: []domain.FieldError{{Message: err.Error()}}}
	}

	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("unable to re-encode extraction: %w", err)
	}
	var payload extractionPayload
	if err := json.Unmarshal(normalized, &payload); err != nil {
		return nil, &domain.ValidationError{
			Stage:  domain.StageSchema,
			Fields: []domain.FieldError{{Message: err.Error()}},
		}
	}
	return payload.toExtraction(messageID), nil
}

// fieldErrors flattens the schema error tree into its leaves.
func fieldErrors(ve *jsonschema.ValidationError) []domain.FieldError {
	var out []domain.FieldError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			path := e.InstanceLocation
			if path == "" {
				path = "/"
			}
			out = append(out, domain.FieldError{Path: path, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// parseResponse accepts bare JSON, JSON inside a code fence, or JSON
// surrounded by prose.
func parseResponse(content string) (any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("empty response")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" {
		candidates = append(candidates, stripped)
	}
	if extracted := extractObject(content); extracted != "" {
		candidates = append(candidates, extracted)
	}

	var firstErr error
	for _, candidate := range candidates {
		var doc any
		decoder := json.NewDecoder(strings.NewReader(candidate))
		if err := decoder.Decode(&doc); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if decoder.More() {
			continue
		}
		return doc, nil
	}
	return nil, fmt.Errorf("response is not valid JSON: %v", firstErr)
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}
	lines = lines[1:]
	if last := strings.TrimSpace(lines[len(lines)-1]); strings.HasPrefix(last, "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

type extractionPayload struct {
	People []struct {
		Name  string  `json:"name"`
		Email *string `json:"email"`
	} `json:"people"`
	Company *struct {
		Name   string  `json:"name"`
		Domain *string `json:"domain"`
	} `json:"company"`
	Intent    *string  `json:"intent"`
	Amount    any      `json:"amount"`
	Dates     []string `json:"dates"`
	NextSteps []string `json:"next_steps"`
	Summary   string   `json:"summary"`
	Evidence  string   `json:"evidence"`
}

func (p *extractionPayload) toExtraction(messageID string) *domain.Extraction {
	ext := &domain.Extraction{
		MessageID: messageID,
		People:    []domain.Person{},
		Intent:    strings.TrimSpace(deref(p.Intent)),
		Amount:    amountString(p.Amount),
		Dates:     nonEmpty(p.Dates),
		NextSteps: nonEmpty(p.NextSteps),
		Summary:   strings.TrimSpace(p.Summary),
		Evidence:  strings.TrimSpace(p.Evidence),
	}
	for _, person := range p.People {
		name := strings.TrimSpace(person.Name)
		email := strings.ToLower(strings.TrimSpace(deref(person.Email)))
		if name == "" && email == "" {
			continue
		}
		ext.People = append(ext.People, domain.Person{Name: name, Email: email})
	}
	if p.Company != nil {
		name := strings.TrimSpace(p.Company.Name)
		domainName := strings.ToLower(strings.TrimSpace(deref(p.Company.Domain)))
		if name == "" {
			name = domainName
		}
		if name != "" {
			ext.Company = &domain.Company{Name: name, Domain: domainName}
		}
	}
	return ext
}

func amountString(v any) string {
	switch a := v.(type) {
	case string:
		return strings.TrimSpace(a)
	case float64:
		return strconv.FormatFloat(a, 'f', -1, 64)
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(items []string) []string {
	out := []string{}
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
