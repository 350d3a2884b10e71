package zoho

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
	connrepo "github.com/kowsik11/abhivan/internal/connection/repository"
	"github.com/kowsik11/abhivan/internal/crm/domain"
	crmusecase "github.com/kowsik11/abhivan/internal/crm/usecase"
	"github.com/kowsik11/abhivan/pkg/apperr"
	"github.com/kowsik11/abhivan/pkg/crmhttp"
	"github.com/kowsik11/abhivan/pkg/kvstore"
)

// fakeZoho stores records per module and evaluates the simple criteria the engine sends.
type fakeZoho struct {
	mu      sync.Mutex
	seq     int
	modules map[string]map[string]map[string]any
	token   string
}

func newFakeZoho() *fakeZoho {
	return &fakeZoho{
		modules: map[string]map[string]map[string]any{"Contacts": {}, "Accounts": {}, "Notes": {}},
		token:   "token",
	}
}

var criteriaUnescaper = strings.NewReplacer(`\(`, "(", `\)`, ")", `\,`, ",", `\\`, `\`)

func (f *fakeZoho) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Zoho-oauthtoken "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"code":"INVALID_TOKEN"}`)
		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/crm/v3/"), "/")
	module := parts[0]

	switch {
	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "search":
		f.search(w, module, r)
	case r.Method == http.MethodPost && len(parts) == 1:
		var req writeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		fields := req.Data[0]
		if module == "Contacts" && fields["Last_Name"] == nil {
			fmt.Fprint(w, `{"data":[{"code":"MANDATORY_NOT_FOUND","status":"error","message":"required field not found","details":{}}]}`)
			return
		}
		f.seq++
		id := fmt.Sprintf("z%d", f.seq)
		if module == "Notes" {
			fields["Parent_Id"] = map[string]any{"id": fields["Parent_Id"]}
		}
		f.modules[module][id] = fields
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"data":[{"code":"SUCCESS","status":"success","details":{"id":%q}}]}`, id)
	case r.Method == http.MethodPut && len(parts) == 2:
		var req writeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		for k, v := range req.Data[0] {
			f.modules[module][parts[1]][k] = v
		}
		fmt.Fprintf(w, `{"data":[{"code":"SUCCESS","status":"success","details":{"id":%q}}]}`, parts[1])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeZoho) search(w http.ResponseWriter, module string, r *http.Request) {
	field, op, value := "Email", "equals", r.URL.Query().Get("email")
	if c := r.URL.Query().Get("criteria"); c != "" {
		pieces := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(c, "("), ")"), ":", 3)
		field, op, value = pieces[0], pieces[1], criteriaUnescaper.Replace(pieces[2])
	}

	var data []map[string]any
	for id, rec := range f.modules[module] {
		got, _ := rec[field].(string)
		if field == "Full_Name" {
			first, _ := rec["First_Name"].(string)
			last, _ := rec["Last_Name"].(string)
			got = strings.TrimSpace(first + " " + last)
		}
		if (op == "equals" && got == value) || (op == "contains" && strings.Contains(got, value)) {
			out := map[string]any{"id": id}
			for k, v := range rec {
				out[k] = v
			}
			data = append(data, out)
		}
	}
	if len(data) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"data": data})
}

func (f *fakeZoho) field(module, id, name string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modules[module][id][name]
}

func (f *fakeZoho) count(module string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.modules[module])
}

func newTestEngine(t *testing.T, fake *fakeZoho, accessToken string) (*Engine, connrepo.ConnectionRepository) {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token","token_type":"Bearer","expires_in":3600,"api_domain":%q}`, srv.URL)
	}))
	t.Cleanup(tokenSrv.Close)

	conns := connrepo.NewConnectionRepository(kvstore.NewMemoryStore())
	if err := conns.Save(context.Background(), &conndomain.Connection{
		UserID:       "u1",
		Provider:     conndomain.ProviderZoho,
		AccessToken:  accessToken,
		RefreshToken: "refresh",
		APIDomain:    srv.URL,
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	tokens := crmhttp.NewOAuthTokenSource(crmhttp.OAuthConfig{
		Provider: conndomain.ProviderZoho,
		TokenURL: tokenSrv.URL,
		APIBase:  "http://unused.invalid",
	}, conns)
	client := crmhttp.NewClient(crmhttp.Config{
		Provider:   providerName,
		AuthScheme: "Zoho-oauthtoken",
		Tokens:     tokens,
		RetryPause: time.Millisecond,
	})
	return NewEngine(client), conns
}

func testPlan() domain.Plan {
	return domain.Plan{
		Contact: &domain.ContactPlan{FullName: "Ravi Kumar", Email: "ravi@globex.io"},
		Company: &domain.CompanyPlan{Name: "Globex (India), Ltd", Domain: "globex.io"},
		Note: domain.NotePlan{
			Title:       "Demo request",
			Body:        "Summary: wants a demo\n\nExternalRef: 18c9f",
			ExternalRef: "18c9f",
		},
	}
}

func TestExecuteIsIdempotent(t *testing.T) {
	fake := newFakeZoho()
	engine, _ := newTestEngine(t, fake, "token")
	ctx := context.Background()

	first, err := crmusecase.Execute(ctx, engine, "u1", testPlan())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !first.ContactCreated || !first.CompanyCreated || !first.NoteCreated {
		t.Errorf("expected fresh records, got %+v", first)
	}
	if got := fake.field("Contacts", first.ContactID, "First_Name"); got != "Ravi" {
		t.Errorf("First_Name = %v", got)
	}
	account, _ := fake.field("Contacts", first.ContactID, "Account_Name").(map[string]any)
	if account["id"] != first.CompanyID {
		t.Errorf("contact not linked to account %s: %v", first.CompanyID, account)
	}
	if got := fake.field("Notes", first.NoteID, "se_module"); got != "Contacts" {
		t.Errorf("note module = %v", got)
	}

	second, err := crmusecase.Execute(ctx, engine, "u1", testPlan())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if second.NoteCreated || second.NoteID != first.NoteID {
		t.Errorf("note must be reused, got %+v", second)
	}
	if second.CompanyCreated || second.CompanyID != first.CompanyID {
		t.Errorf("account must be found by website, got %+v", second)
	}
	if fake.count("Notes") != 1 || fake.count("Accounts") != 1 || fake.count("Contacts") != 1 {
		t.Errorf("duplicates created: notes=%d accounts=%d contacts=%d",
			fake.count("Notes"), fake.count("Accounts"), fake.count("Contacts"))
	}
}

func TestNoteFallsBackToAccount(t *testing.T) {
	fake := newFakeZoho()
	engine, _ := newTestEngine(t, fake, "token")
	plan := testPlan()
	plan.Contact = nil

	result, err := crmusecase.Execute(context.Background(), engine, "u1", plan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := fake.field("Notes", result.NoteID, "se_module"); got != "Accounts" {
		t.Errorf("note module = %v, want Accounts", got)
	}
	if want := "https://crm.zoho.com/crm/tab/Accounts/" + result.CompanyID; engine.RecordURL(context.Background(), "u1", result) != want {
		t.Errorf("unexpected record url for %+v", result)
	}
}

func TestRefreshUsesTokenDomain(t *testing.T) {
	fake := newFakeZoho()
	engine, conns := newTestEngine(t, fake, "expired")

	id, created, err := engine.UpsertCompany(context.Background(), "u1", domain.CompanyPlan{Name: "Initech"})
	if err != nil {
		t.Fatalf("UpsertCompany() error = %v", err)
	}
	if id == "" || !created {
		t.Errorf("expected a created account, got %q %v", id, created)
	}
	conn, _ := conns.Get(context.Background(), "u1", conndomain.ProviderZoho)
	if conn.AccessToken != "token" || conn.RefreshToken != "refresh" {
		t.Errorf("refreshed token not stored: %+v", conn)
	}
}

func TestRecordLevelErrorIsSurfaced(t *testing.T) {
	fake := newFakeZoho()
	engine, _ := newTestEngine(t, fake, "token")

	_, err := engine.create(context.Background(), "u1", moduleContacts, map[string]any{"Email": "x@y.z"})
	if apperr.StatusOf(err) != http.StatusBadRequest || !strings.Contains(err.Error(), "MANDATORY_NOT_FOUND") {
		t.Errorf("expected record error, got %v", err)
	}
}

func TestContactFields(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		first any
		last  any
	}{
		{"single word", "Cher", nil, "Cher"},
		{"two words", "Ravi Kumar", "Ravi", "Kumar"},
		{"three words", "Mary Ann Smith", "Mary Ann", "Smith"},
		{"empty", " ", nil, "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := contactFields(domain.ContactPlan{FullName: tt.in})
			if fields["First_Name"] != tt.first || fields["Last_Name"] != tt.last {
				t.Errorf("contactFields(%q) = %v", tt.in, fields)
			}
		})
	}
}

func TestEscapeCriteria(t *testing.T) {
	if got := escapeCriteria("Globex (India), Ltd"); got != `Globex \(India\)\, Ltd` {
		t.Errorf("escapeCriteria() = %s", got)
	}
}

func TestExecuteReusesContactWithoutEmail(t *testing.T) {
	fake := newFakeZoho()
	engine, _ := newTestEngine(t, fake, "token")
	ctx := context.Background()
	plan := domain.Plan{
		Contact: &domain.ContactPlan{FullName: "Jane  Doe"},
		Note: domain.NotePlan{
			Title:       "Intro",
			Body:        "Summary: intro call\n\nExternalRef: msg-9",
			ExternalRef: "msg-9",
		},
	}

	first, err := crmusecase.Execute(ctx, engine, "u1", plan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	second, err := crmusecase.Execute(ctx, engine, "u1", plan)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if second.ContactCreated || second.ContactID != first.ContactID {
		t.Errorf("contact must be found by name, got %+v", second)
	}
	if second.NoteCreated || second.NoteID != first.NoteID {
		t.Errorf("note must be reused, got %+v", second)
	}
	if fake.count("Contacts") != 1 || fake.count("Notes") != 1 {
		t.Errorf("duplicates created: contacts=%d notes=%d", fake.count("Contacts"), fake.count("Notes"))
	}
}

func TestContactLookup(t *testing.T) {
	if got := contactLookup(domain.ContactPlan{FullName: "Jane Doe", Email: "jane@acme.com"}); got.Get("email") != "jane@acme.com" {
		t.Errorf("email lookup = %v", got)
	}
	if got := contactLookup(domain.ContactPlan{FullName: " Jane   Doe "}); got.Get("criteria") != "(Full_Name:equals:Jane Doe)" {
		t.Errorf("name lookup = %v", got)
	}
	if got := contactLookup(domain.ContactPlan{}); got != nil {
		t.Errorf("empty contact lookup = %v", got)
	}
}
