package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
	connrepo "github.com/kowsik11/abhivan/internal/connection/repository"
	crmdomain "github.com/kowsik11/abhivan/internal/crm/domain"
	crmusecase "github.com/kowsik11/abhivan/internal/crm/usecase"
	extractiondomain "github.com/kowsik11/abhivan/internal/extraction/domain"
	ingestdomain "github.com/kowsik11/abhivan/internal/ingest/domain"
	ingestrepo "github.com/kowsik11/abhivan/internal/ingest/repository"
	ingestusecase "github.com/kowsik11/abhivan/internal/ingest/usecase"
	"github.com/kowsik11/abhivan/pkg/apperr"
	"github.com/kowsik11/abhivan/pkg/kvstore"
)

type fakePoller struct {
	messages []*ingestdomain.Message
	inbox    ingestrepo.MessageRepository
	calls    int
	block    chan struct{}
	entered  chan struct{}
}

func (p *fakePoller) Poll(ctx context.Context, userID string, opts ingestusecase.PollOptions) ([]*ingestdomain.Message, error) {
	p.calls++
	if p.entered != nil {
		close(p.entered)
	}
	if p.block != nil {
		<-p.block
	}
	if err := p.inbox.RecordPoll(ctx, userID, p.messages); err != nil {
		return nil, err
	}
	return p.messages, nil
}

type echoAnalyzer struct{}

func (echoAnalyzer) Analyze(ctx context.Context, msg *ingestdomain.Message) (string, error) {
	return msg.BodyText, nil
}

// bodyValidator accepts any body except "garbage".
type bodyValidator struct{}

func (bodyValidator) Validate(ctx context.Context, msg *ingestdomain.Message, raw string) (*extractiondomain.Extraction, error) {
	if raw == "garbage" {
		return nil, &apperr.ValidationExhaustedError{MessageID: msg.ID, Attempts: 3, Last: errors.New("parse error")}
	}
	return &extractiondomain.Extraction{
		MessageID: msg.ID,
		People:    []extractiondomain.Person{{Name: "Jane Doe", Email: "jane@acme.com"}},
		Summary:   raw,
		Evidence:  raw,
		Dates:     []string{},
		NextSteps: []string{},
	}, nil
}

type countingEngine struct {
	notes   map[string]string
	noteErr error
}

func (e *countingEngine) UpsertContact(ctx context.Context, userID string, c crmdomain.ContactPlan, _ *crmdomain.CompanyPlan) (string, bool, error) {
	return "c-1", false, nil
}

func (e *countingEngine) UpsertCompany(ctx context.Context, userID string, c crmdomain.CompanyPlan) (string, bool, error) {
	return "co-1", false, nil
}

func (e *countingEngine) Associate(ctx context.Context, userID, contactID, companyID string) error {
	return nil
}

func (e *countingEngine) UpsertNote(ctx context.Context, userID string, parent crmdomain.NoteParent, note crmdomain.NotePlan) (string, bool, error) {
	if e.noteErr != nil {
		return "", false, e.noteErr
	}
	if id, ok := e.notes[note.ExternalRef]; ok {
		return id, false, nil
	}
	id := "n-" + note.ExternalRef
	e.notes[note.ExternalRef] = id
	return id, true, nil
}

type runnerFixture struct {
	runner *Runner
	poller *fakePoller
	conns  connrepo.ConnectionRepository
	inbox  ingestrepo.MessageRepository
	engine *countingEngine
}

func newRunnerFixture(msgs ...*ingestdomain.Message) *runnerFixture {
	store := kvstore.NewMemoryStore()
	inbox := ingestrepo.NewMessageRepository(store, 10)
	conns := connrepo.NewConnectionRepository(store)
	poller := &fakePoller{messages: msgs, inbox: inbox}
	engine := &countingEngine{notes: map[string]string{}}
	syncer := crmusecase.NewSyncer(map[crmdomain.Target]crmdomain.SyncEngine{crmdomain.TargetHubSpot: engine})
	return &runnerFixture{
		runner: NewRunner(poller, echoAnalyzer{}, bodyValidator{}, syncer, conns, inbox),
		poller: poller,
		conns:  conns,
		inbox:  inbox,
		engine: engine,
	}
}

func message(id, body string) *ingestdomain.Message {
	return &ingestdomain.Message{ID: id, Subject: "Subject " + id, BodyText: body, ReceivedAt: time.Now()}
}

func TestRunDryRunContinuesPastFailures(t *testing.T) {
	fx := newRunnerFixture(message("m1", "garbage"), message("m2", "wants a quote"))
	ctx := context.Background()

	result, err := fx.runner.Run(ctx, RunRequest{UserID: "u1", MaxMessages: 5})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.DryRun || result.Processed != 1 || result.Failed != 1 || result.RunID == "" {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Results[1].Plan == nil || result.Results[1].CRM != nil {
		t.Errorf("dry run should plan without writing, got %+v", result.Results[1])
	}

	failed, _ := fx.inbox.Get(ctx, "u1", "m1")
	if failed.Status != ingestdomain.StatusError || failed.Error == "" {
		t.Errorf("m1 should be marked error, got %+v", failed)
	}
	done, _ := fx.inbox.Get(ctx, "u1", "m2")
	if done.Status != ingestdomain.StatusProcessed {
		t.Errorf("m2 should be processed, got %+v", done)
	}
}

func TestRunWritesToCRM(t *testing.T) {
	fx := newRunnerFixture(message("m1", "renewal"))
	ctx := context.Background()
	_ = fx.conns.Save(ctx, &conndomain.Connection{UserID: "u1", Provider: conndomain.ProviderHubSpot, AccessToken: "a"})

	result, err := fx.runner.Run(ctx, RunRequest{UserID: "u1", MaxMessages: 5, CRM: crmdomain.TargetHubSpot})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Processed != 1 || result.Results[0].CRM == nil || result.Results[0].CRM.NoteID != "n-m1" {
		t.Fatalf("unexpected result %+v", result)
	}
	rec, _ := fx.inbox.Get(ctx, "u1", "m1")
	if rec.CRMNoteID != "n-m1" || rec.CRMTarget != "hubspot" {
		t.Errorf("CRM ids not recorded: %+v", rec)
	}

	// the same message delivered again must not create a second note
	again, err := fx.runner.Run(ctx, RunRequest{UserID: "u1", MaxMessages: 5, CRM: crmdomain.TargetHubSpot})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if again.Results[0].CRM.NoteCreated || len(fx.engine.notes) != 1 {
		t.Errorf("note duplicated on replay: %+v", again.Results[0].CRM)
	}
}

func TestRunReportsUpstreamStatus(t *testing.T) {
	fx := newRunnerFixture(message("m1", "renewal"), message("m2", "quote"))
	ctx := context.Background()
	_ = fx.conns.Save(ctx, &conndomain.Connection{UserID: "u1", Provider: conndomain.ProviderHubSpot, AccessToken: "a"})
	fx.engine.noteErr = &apperr.ProviderError{Provider: "hubspot", Op: "create notes", StatusCode: 400}

	result, err := fx.runner.Run(ctx, RunRequest{UserID: "u1", MaxMessages: 5, CRM: crmdomain.TargetHubSpot})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Failed != 2 {
		t.Fatalf("expected both messages to fail, got %+v", result)
	}
	for _, item := range result.Results {
		if item.UpstreamStatus != 400 || item.Status != ingestdomain.StatusError {
			t.Errorf("unexpected item %+v", item)
		}
	}
}

func TestRunRequiresCRMConnection(t *testing.T) {
	fx := newRunnerFixture(message("m1", "hello"))

	_, err := fx.runner.Run(context.Background(), RunRequest{UserID: "u1", MaxMessages: 5, CRM: crmdomain.TargetHubSpot})
	if !errors.Is(err, apperr.ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
	if fx.poller.calls != 0 {
		t.Error("mail must not be fetched when the CRM is not connected")
	}

	_, err = fx.runner.Run(context.Background(), RunRequest{UserID: "u1", MaxMessages: 5, CRM: crmdomain.TargetZoho})
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("unregistered target should be a config error, got %v", err)
	}
}

func TestRunRejectsConcurrentRunForSameUser(t *testing.T) {
	fx := newRunnerFixture(message("m1", "hello"))
	fx.poller.block = make(chan struct{})
	fx.poller.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := fx.runner.Run(context.Background(), RunRequest{UserID: "u1", MaxMessages: 5})
		done <- err
	}()
	<-fx.poller.entered

	if _, err := fx.runner.Run(context.Background(), RunRequest{UserID: "u1", MaxMessages: 5}); !errors.Is(err, apperr.ErrRunInProgress) {
		t.Errorf("expected run in progress, got %v", err)
	}

	close(fx.poller.block)
	if err := <-done; err != nil {
		t.Fatalf("first run error = %v", err)
	}
}
