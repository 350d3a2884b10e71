// Package zoho implements the CRM sync engine for Zoho CRM. Records live in
// the Contacts, Accounts and Notes modules; a note's parent is set directly on
// the note instead of through a separate association call.
package zoho

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/kowsik11/abhivan/internal/crm/domain"
	"github.com/kowsik11/abhivan/pkg/apperr"
	"github.com/kowsik11/abhivan/pkg/crmhttp"
)

const (
	providerName = "zoho"
	recordBase   = "https://crm.zoho.com/crm/tab"

	moduleContacts = "Contacts"
	moduleAccounts = "Accounts"
	moduleNotes    = "Notes"
)

type Engine struct {
	client *crmhttp.Client
}

func NewEngine(client *crmhttp.Client) *Engine {
	return &Engine{client: client}
}

type lookup struct {
	ID string `json:"id"`
}

type record struct {
	ID          string  `json:"id"`
	NoteContent string  `json:"Note_Content"`
	ParentID    *lookup `json:"Parent_Id"`
}

type listResponse struct {
	Data []record `json:"data"`
}

type writeResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
	} `json:"data"`
}

type writeRequest struct {
	Data []map[string]any `json:"data"`
}

func (e *Engine) UpsertContact(ctx context.Context, userID string, contact domain.ContactPlan, company *domain.CompanyPlan) (string, bool, error) {
	var existing *record
	if query := contactLookup(contact); query != nil {
		found, err := e.search(ctx, userID, moduleContacts, query)
		if err != nil {
			return "", false, err
		}
		if len(found) > 0 {
			existing = &found[0]
		}
	}

	fields := contactFields(contact)
	if existing != nil {
		if err := e.update(ctx, userID, moduleContacts, existing.ID, fields); err != nil {
			return "", false, err
		}
		return existing.ID, false, nil
	}

	if company != nil && company.Name != "" {
		fields["Account_Name"] = map[string]string{"name": company.Name}
	}
	id, err := e.create(ctx, userID, moduleContacts, fields)
	if err != nil {
		return "", false, err
	}
	log.Printf("[Zoho] Created contact %s for user %s", id, userID)
	return id, true, nil
}

func (e *Engine) UpsertCompany(ctx context.Context, userID string, company domain.CompanyPlan) (string, bool, error) {
	fields := map[string]any{"Account_Name": company.Name}
	if company.Domain != "" {
		fields["Website"] = company.Domain
	}

	var criteria []string
	if company.Domain != "" {
		criteria = append(criteria, "(Website:equals:"+escapeCriteria(company.Domain)+")")
	}
	criteria = append(criteria, "(Account_Name:equals:"+escapeCriteria(company.Name)+")")

	for _, c := range criteria {
		found, err := e.search(ctx, userID, moduleAccounts, url.Values{"criteria": {c}})
		if err != nil {
			return "", false, err
		}
		if len(found) > 0 {
			id := found[0].ID
			if err := e.update(ctx, userID, moduleAccounts, id, fields); err != nil {
				return "", false, err
			}
			return id, false, nil
		}
	}

	id, err := e.create(ctx, userID, moduleAccounts, fields)
	if err != nil {
		return "", false, err
	}
	log.Printf("[Zoho] Created account %s for user %s", id, userID)
	return id, true, nil
}

// Associate points the contact's Account_Name lookup at the account. Setting
// the same account again leaves the record unchanged.
func (e *Engine) Associate(ctx context.Context, userID, contactID, companyID string) error {
	return e.update(ctx, userID, moduleContacts, contactID, map[string]any{
		"Account_Name": map[string]string{"id": companyID},
	})
}

func (e *Engine) UpsertNote(ctx context.Context, userID string, parent domain.NoteParent, note domain.NotePlan) (string, bool, error) {
	criteria := "(Note_Content:contains:" + escapeCriteria(note.Marker()) + ")"
	found, err := e.search(ctx, userID, moduleNotes, url.Values{"criteria": {criteria}})
	if err != nil {
		return "", false, err
	}
	for _, n := range found {
		if n.ParentID != nil && n.ParentID.ID == parent.ID && note.MarkedIn(n.NoteContent) {
			log.Printf("[Zoho] Note for %s already on %s %s", note.ExternalRef, parent.Kind, parent.ID)
			return n.ID, false, nil
		}
	}

	id, err := e.create(ctx, userID, moduleNotes, map[string]any{
		"Note_Title":   note.Title,
		"Note_Content": note.Body,
		"Parent_Id":    parent.ID,
		"se_module":    parentModule(parent.Kind),
	})
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (e *Engine) RecordURL(ctx context.Context, userID string, result *domain.WriteResult) string {
	switch {
	case result.ContactID != "":
		return recordBase + "/" + moduleContacts + "/" + result.ContactID
	case result.CompanyID != "":
		return recordBase + "/" + moduleAccounts + "/" + result.CompanyID
	}
	return ""
}

// search returns nothing for 204 and 404, which is how Zoho reports no matches.
func (e *Engine) search(ctx context.Context, userID, module string, query url.Values) ([]record, error) {
	resp, err := e.client.Do(ctx, userID, crmhttp.Request{
		Op:            "search " + module,
		Method:        http.MethodGet,
		Path:          "/crm/v3/" + module + "/search",
		Query:         query,
		AllowNotFound: true,
	})
	if err != nil {
		return nil, err
	}
	var out listResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (e *Engine) create(ctx context.Context, userID, module string, fields map[string]any) (string, error) {
	return e.write(ctx, userID, "create "+module, http.MethodPost, "/crm/v3/"+module, fields)
}

func (e *Engine) update(ctx context.Context, userID, module, id string, fields map[string]any) error {
	_, err := e.write(ctx, userID, "update "+module, http.MethodPut, "/crm/v3/"+module+"/"+url.PathEscape(id), fields)
	return err
}

// write sends a single-record payload. Zoho can answer 2xx while rejecting
// the record, so the per-record status is checked too.
func (e *Engine) write(ctx context.Context, userID, op, method, path string, fields map[string]any) (string, error) {
	resp, err := e.client.Do(ctx, userID, crmhttp.Request{
		Op:     op,
		Method: method,
		Path:   path,
		Body:   writeRequest{Data: []map[string]any{fields}},
	})
	if err != nil {
		return "", err
	}
	var out writeResponse
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", &apperr.ProviderError{Provider: providerName, Op: op, StatusCode: resp.StatusCode, Malformed: true}
	}
	item := out.Data[0]
	if strings.EqualFold(item.Status, "error") {
		return "", &apperr.ProviderError{
			Provider:   providerName,
			Op:         op,
			StatusCode: http.StatusBadRequest,
			Body:       item.Code + ": " + item.Message,
		}
	}
	return item.Details.ID, nil
}

// contactLookup searches by email, falling back to the full name when the
// email is unknown.
func contactLookup(contact domain.ContactPlan) url.Values {
	if contact.Email != "" {
		return url.Values{"email": {contact.Email}}
	}
	name := strings.Join(strings.Fields(contact.FullName), " ")
	if name == "" {
		return nil
	}
	return url.Values{"criteria": {"(Full_Name:equals:" + escapeCriteria(name) + ")"}}
}

func contactFields(contact domain.ContactPlan) map[string]any {
	fields := map[string]any{}
	parts := strings.Fields(contact.FullName)
	switch len(parts) {
	case 0:
		fields["Last_Name"] = "Unknown"
	case 1:
		fields["Last_Name"] = parts[0]
	default:
		fields["First_Name"] = strings.Join(parts[:len(parts)-1], " ")
		fields["Last_Name"] = parts[len(parts)-1]
	}
	if contact.Email != "" {
		fields["Email"] = contact.Email
	}
	return fields
}

func parentModule(kind domain.ParentKind) string {
	if kind == domain.ParentCompany {
		return moduleAccounts
	}
	return moduleContacts
}

var criteriaEscaper = strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`, ",", `\,`)

func escapeCriteria(value string) string {
	return criteriaEscaper.Replace(value)
}
