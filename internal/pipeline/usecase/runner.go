package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	conndomain "github.com/kowsik11/abhivan/internal/connection/domain"
	connrepo "github.com/kowsik11/abhivan/internal/connection/repository"
	crmdomain "github.com/kowsik11/abhivan/internal/crm/domain"
	crmusecase "github.com/kowsik11/abhivan/internal/crm/usecase"
	extractiondomain "github.com/kowsik11/abhivan/internal/extraction/domain"
	ingestdomain "github.com/kowsik11/abhivan/internal/ingest/domain"
	ingestrepo "github.com/kowsik11/abhivan/internal/ingest/repository"
	ingestusecase "github.com/kowsik11/abhivan/internal/ingest/usecase"
	"github.com/kowsik11/abhivan/pkg/apperr"
)

type Poller interface {
	Poll(ctx context.Context, userID string, opts ingestusecase.PollOptions) ([]*ingestdomain.Message, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, msg *ingestdomain.Message) (string, error)
}

type Validator interface {
	Validate(ctx context.Context, msg *ingestdomain.Message, raw string) (*extractiondomain.Extraction, error)
}

type Syncer interface {
	Supports(target crmdomain.Target) bool
	Execute(ctx context.Context, target crmdomain.Target, userID string, plan crmdomain.Plan) (*crmdomain.WriteResult, error)
}

type RunRequest struct {
	UserID      string
	MaxMessages int
	Query       string
	LabelIDs    []string
	// CRM is the write target; TargetNone extracts without writing.
	CRM crmdomain.Target
}

type MessageResult struct {
	MessageID  string                       `json:"message_id"`
	Subject    string                       `json:"subject"`
	Status     ingestdomain.MessageStatus   `json:"status"`
	Extraction *extractiondomain.Extraction `json:"extraction,omitempty"`
	Plan       *crmdomain.Plan              `json:"plan,omitempty"`
	CRM        *crmdomain.WriteResult       `json:"crm,omitempty"`
	Error      string                       `json:"error,omitempty"`
	// UpstreamStatus is the HTTP status of the failing provider call, if any.
	UpstreamStatus int `json:"upstream_status,omitempty"`
}

type RunResult struct {
	RunID     string          `json:"run_id"`
	Target    string          `json:"target"`
	DryRun    bool            `json:"dry_run"`
	Fetched   int             `json:"fetched"`
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Results   []MessageResult `json:"results"`
	LatencyMS int64           `json:"latency_ms"`
}

// Runner drives fetch, extraction, validation, planning and CRM sync for one
// user at a time.
type Runner struct {
	poller      Poller
	analyzer    Analyzer
	validator   Validator
	syncer      Syncer
	connections connrepo.ConnectionRepository
	messages    ingestrepo.MessageRepository

	locks sync.Map // userID -> *semaphore.Weighted
}

func NewRunner(poller Poller, analyzer Analyzer, validator Validator, syncer Syncer, connections connrepo.ConnectionRepository, messages ingestrepo.MessageRepository) *Runner {
	return &Runner{
		poller:      poller,
		analyzer:    analyzer,
		validator:   validator,
		syncer:      syncer,
		connections: connections,
		messages:    messages,
	}
}

func (r *Runner) userLock(userID string) *semaphore.Weighted {
	lock, _ := r.locks.LoadOrStore(userID, semaphore.NewWeighted(1))
	return lock.(*semaphore.Weighted)
}

// Run processes every new message. A message that fails extraction or sync is
// marked as an error and the run moves on; a missing connection or a
// cancelled context ends the run.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	lock := r.userLock(req.UserID)
	if !lock.TryAcquire(1) {
		return nil, apperr.ErrRunInProgress
	}
	defer lock.Release(1)

	start := time.Now()
	result := &RunResult{
		RunID:   uuid.New().String(),
		Target:  string(req.CRM),
		DryRun:  req.CRM == crmdomain.TargetNone,
		Results: []MessageResult{},
	}

	if err := r.checkTarget(ctx, req); err != nil {
		return nil, err
	}

	msgs, err := r.poller.Poll(ctx, req.UserID, ingestusecase.PollOptions{
		MaxCount: req.MaxMessages,
		Query:    req.Query,
		LabelIDs: req.LabelIDs,
	})
	if err != nil {
		return nil, err
	}
	result.Fetched = len(msgs)
	log.Printf("[Pipeline] Run %s for user %s: %d new messages (target=%q)", result.RunID, req.UserID, len(msgs), req.CRM)

	for _, msg := range msgs {
		item, err := r.process(ctx, req, msg)
		r.recordStatus(ctx, req.UserID, item)

		if item.Status == ingestdomain.StatusProcessed {
			result.Processed++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, item)

		if err != nil && (ctx.Err() != nil || errors.Is(err, apperr.ErrNotConnected)) {
			result.LatencyMS = time.Since(start).Milliseconds()
			return result, err
		}
	}

	result.LatencyMS = time.Since(start).Milliseconds()
	log.Printf("[Pipeline] Run %s done: processed=%d failed=%d in %dms", result.RunID, result.Processed, result.Failed, result.LatencyMS)
	return result, nil
}

func (r *Runner) checkTarget(ctx context.Context, req RunRequest) error {
	if req.CRM == crmdomain.TargetNone {
		return nil
	}
	if r.syncer == nil || !r.syncer.Supports(req.CRM) {
		return &apperr.ConfigError{Reason: fmt.Sprintf("CRM target %q is not configured", req.CRM)}
	}
	conn, err := r.connections.Get(ctx, req.UserID, conndomain.Provider(req.CRM))
	if err != nil {
		return err
	}
	if conn == nil {
		return &apperr.NotConnectedError{Provider: string(req.CRM), UserID: req.UserID}
	}
	return nil
}

func (r *Runner) process(ctx context.Context, req RunRequest, msg *ingestdomain.Message) (MessageResult, error) {
	item := MessageResult{MessageID: msg.ID, Subject: msg.Subject, Status: ingestdomain.StatusError}

	raw, err := r.analyzer.Analyze(ctx, msg)
	if err != nil {
		return r.fail(item, "analyze", err)
	}
	ext, err := r.validator.Validate(ctx, msg, raw)
	if err != nil {
		return r.fail(item, "validate", err)
	}
	item.Extraction = ext

	plan := crmusecase.BuildPlan(msg, ext)
	item.Plan = &plan

	if req.CRM != crmdomain.TargetNone {
		written, err := r.syncer.Execute(ctx, req.CRM, req.UserID, plan)
		if err != nil {
			return r.fail(item, "sync", err)
		}
		item.CRM = written
	}

	item.Status = ingestdomain.StatusProcessed
	return item, nil
}

func (r *Runner) fail(item MessageResult, stage string, err error) (MessageResult, error) {
	log.Printf("[Pipeline] Message %s failed at %s: %v", item.MessageID, stage, err)
	item.Error = fmt.Sprintf("%s: %v", stage, err)
	item.UpstreamStatus = apperr.StatusOf(err)
	return item, err
}

func (r *Runner) recordStatus(ctx context.Context, userID string, item MessageResult) {
	update := ingestdomain.StatusUpdate{Status: item.Status, Error: item.Error}
	if item.CRM != nil {
		update.CRMTarget = string(item.CRM.Target)
		update.CRMContactID = item.CRM.ContactID
		update.CRMNoteID = item.CRM.NoteID
		update.CRMRecordURL = item.CRM.RecordURL
	}
	if err := r.messages.UpdateStatus(ctx, userID, item.MessageID, update); err != nil {
		log.Printf("[Pipeline] Failed to update status of message %s: %v", item.MessageID, err)
	}
}
