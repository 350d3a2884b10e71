package hubspot

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
	connrepo "github.com/kowsik11/abhivan/internal/connection/repository"
	"github.com/kowsik11/abhivan/internal/crm/domain"
	"github.com/kowsik11/abhivan/pkg/apperr"
	"github.com/kowsik11/abhivan/pkg/crmhttp"
)

const (
	providerName = "hubspot"
	appBase      = "https://app.hubspot.com"
)

// Engine writes plans into HubSpot through the CRM v3 object API.
type Engine struct {
	client      *crmhttp.Client
	connections connrepo.ConnectionRepository
	now         func() time.Time
}

func NewEngine(client *crmhttp.Client, connections connrepo.ConnectionRepository) *Engine {
	return &Engine{client: client, connections: connections, now: time.Now}
}

type filter struct {
	PropertyName string `json:"propertyName"`
	Operator     string `json:"operator"`
	Value        string `json:"value,omitempty"`
}

type filterGroup struct {
	Filters []filter `json:"filters"`
}

type searchRequest struct {
	FilterGroups []filterGroup `json:"filterGroups"`
	Properties   []string      `json:"properties,omitempty"`
	Limit        int           `json:"limit"`
}

type object struct {
	ID         string            `json:"id"`
	Properties map[string]string `json:"properties"`
}

type searchResponse struct {
	Total   int      `json:"total"`
	Results []object `json:"results"`
}

type objectInput struct {
	Properties map[string]string `json:"properties"`
}

func (e *Engine) UpsertContact(ctx context.Context, userID string, contact domain.ContactPlan, _ *domain.CompanyPlan) (string, bool, error) {
	props := contactProperties(contact)

	if filters := contactLookup(contact); len(filters) > 0 {
		existing, err := e.searchOne(ctx, userID, "contacts", filters...)
		if err != nil {
			return "", false, err
		}
		if existing != nil {
			if err := e.update(ctx, userID, "contacts", existing.ID, props); err != nil {
				return "", false, err
			}
			return existing.ID, false, nil
		}
	}

	id, err := e.create(ctx, userID, "contacts", props)
	if err != nil {
		return "", false, err
	}
	log.Printf("[HubSpot] Created contact %s for user %s", id, userID)
	return id, true, nil
}

func (e *Engine) UpsertCompany(ctx context.Context, userID string, company domain.CompanyPlan) (string, bool, error) {
	props := map[string]string{"name": company.Name}
	if company.Domain != "" {
		props["domain"] = company.Domain
	}

	var lookups []filter
	if company.Domain != "" {
		lookups = append(lookups, filter{PropertyName: "domain", Operator: "EQ", Value: company.Domain})
	}
	lookups = append(lookups, filter{PropertyName: "name", Operator: "EQ", Value: company.Name})

	for _, f := range lookups {
		existing, err := e.searchOne(ctx, userID, "companies", f)
		if err != nil {
			return "", false, err
		}
		if existing != nil {
			if err := e.update(ctx, userID, "companies", existing.ID, props); err != nil {
				return "", false, err
			}
			return existing.ID, false, nil
		}
	}

	id, err := e.create(ctx, userID, "companies", props)
	if err != nil {
		return "", false, err
	}
	log.Printf("[HubSpot] Created company %s for user %s", id, userID)
	return id, true, nil
}

// Associate uses the default contact_to_company label; HubSpot treats a
// repeated PUT as a no-op.
func (e *Engine) Associate(ctx context.Context, userID, contactID, companyID string) error {
	path := fmt.Sprintf("/crm/v3/objects/contacts/%s/associations/companies/%s/contact_to_company",
		url.PathEscape(contactID), url.PathEscape(companyID))
	_, err := e.client.Do(ctx, userID, crmhttp.Request{Op: "associate contact", Method: http.MethodPut, Path: path})
	return err
}

func (e *Engine) UpsertNote(ctx context.Context, userID string, parent domain.NoteParent, note domain.NotePlan) (string, bool, error) {
	existing, err := e.findNote(ctx, userID, parent, note)
	if err != nil {
		return "", false, err
	}
	if existing != "" {
		log.Printf("[HubSpot] Note for %s already on %s %s", note.ExternalRef, parent.Kind, parent.ID)
		return existing, false, nil
	}

	id, err := e.create(ctx, userID, "notes", map[string]string{
		"hs_note_title": note.Title,
		"hs_note_body":  note.Body,
		"hs_timestamp":  e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", false, err
	}

	objectType, label := "contacts", "note_to_contact"
	if parent.Kind == domain.ParentCompany {
		objectType, label = "companies", "note_to_company"
	}
	path := fmt.Sprintf("/crm/v3/objects/notes/%s/associations/%s/%s/%s",
		url.PathEscape(id), objectType, url.PathEscape(parent.ID), label)
	if _, err := e.client.Do(ctx, userID, crmhttp.Request{Op: "associate note", Method: http.MethodPut, Path: path}); err != nil {
		return "", false, err
	}
	return id, true, nil
}

// findNote looks for a note under parent whose body carries the marker line.
func (e *Engine) findNote(ctx context.Context, userID string, parent domain.NoteParent, note domain.NotePlan) (string, error) {
	assocProperty := "associations.contact"
	if parent.Kind == domain.ParentCompany {
		assocProperty = "associations.company"
	}
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []filter{
			{PropertyName: "hs_note_body", Operator: "CONTAINS_TOKEN", Value: note.ExternalRef},
			{PropertyName: assocProperty, Operator: "EQ", Value: parent.ID},
		}}},
		Properties: []string{"hs_note_body"},
		Limit:      100,
	}
	results, err := e.search(ctx, userID, "notes", req)
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if note.MarkedIn(r.Properties["hs_note_body"]) {
			return r.ID, nil
		}
	}
	return "", nil
}

// RecordURL links to the contact (or company) page when the portal id is known.
func (e *Engine) RecordURL(ctx context.Context, userID string, result *domain.WriteResult) string {
	conn, err := e.connections.Get(ctx, userID, conndomain.ProviderHubSpot)
	if err != nil || conn == nil || conn.PortalID == "" {
		return ""
	}
	switch {
	case result.ContactID != "":
		return fmt.Sprintf("%s/contacts/%s/record/0-1/%s", appBase, conn.PortalID, result.ContactID)
	case result.CompanyID != "":
		return fmt.Sprintf("%s/contacts/%s/record/0-2/%s", appBase, conn.PortalID, result.CompanyID)
	}
	return ""
}

func (e *Engine) searchOne(ctx context.Context, userID, objectType string, filters ...filter) (*object, error) {
	results, err := e.search(ctx, userID, objectType, searchRequest{
		FilterGroups: []filterGroup{{Filters: filters}},
		Limit:        1,
	})
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

func (e *Engine) search(ctx context.Context, userID, objectType string, req searchRequest) ([]object, error) {
	resp, err := e.client.Do(ctx, userID, crmhttp.Request{
		Op:            "search " + objectType,
		Method:        http.MethodPost,
		Path:          "/crm/v3/objects/" + objectType + "/search",
		Body:          req,
		AllowNotFound: true,
	})
	if err != nil {
		return nil, err
	}
	var out searchResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

func (e *Engine) create(ctx context.Context, userID, objectType string, props map[string]string) (string, error) {
	resp, err := e.client.Do(ctx, userID, crmhttp.Request{
		Op:     "create " + objectType,
		Method: http.MethodPost,
		Path:   "/crm/v3/objects/" + objectType,
		Body:   objectInput{Properties: props},
	})
	if err != nil {
		return "", err
	}
	var out object
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &apperr.ProviderError{Provider: providerName, Op: "create " + objectType, StatusCode: resp.StatusCode, Malformed: true}
	}
	return out.ID, nil
}

func (e *Engine) update(ctx context.Context, userID, objectType, id string, props map[string]string) error {
	_, err := e.client.Do(ctx, userID, crmhttp.Request{
		Op:     "update " + objectType,
		Method: http.MethodPatch,
		Path:   "/crm/v3/objects/" + objectType + "/" + url.PathEscape(id),
		Body:   objectInput{Properties: props},
	})
	return err
}

func contactProperties(contact domain.ContactPlan) map[string]string {
	props := map[string]string{}
	first, last := splitName(contact.FullName)
	if first != "" {
		props["firstname"] = first
	}
	if last != "" {
		props["lastname"] = last
	}
	if contact.Email != "" {
		props["email"] = contact.Email
	}
	return props
}

// contactLookup finds a contact by email, or by its exact name parts when the
// email is unknown. A nameless contact without email is always created.
func contactLookup(contact domain.ContactPlan) []filter {
	if contact.Email != "" {
		return []filter{{PropertyName: "email", Operator: "EQ", Value: contact.Email}}
	}
	first, last := splitName(contact.FullName)
	if first == "" {
		return nil
	}
	filters := []filter{{PropertyName: "firstname", Operator: "EQ", Value: first}}
	if last != "" {
		return append(filters, filter{PropertyName: "lastname", Operator: "EQ", Value: last})
	}
	return append(filters, filter{PropertyName: "lastname", Operator: "NOT_HAS_PROPERTY"})
}

// splitName puts a single word in firstname; otherwise the last word is the
// last name and everything before it the first name.
func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}
