package usecase

import (
	"context"
	"fmt"
	"log"

	"github.com/kowsik11/abhivan/internal/crm/domain"
)

// Syncer selects the engine for a CRM target and runs the shared write sequence.
type Syncer struct {
	engines map[domain.Target]domain.SyncEngine
}

func NewSyncer(engines map[domain.Target]domain.SyncEngine) *Syncer {
	return &Syncer{engines: engines}
}

func (s *Syncer) Supports(target domain.Target) bool {
	_, ok := s.engines[target]
	return ok
}

func (s *Syncer) Execute(ctx context.Context, target domain.Target, userID string, plan domain.Plan) (*domain.WriteResult, error) {
	engine, ok := s.engines[target]
	if !ok {
		return nil, fmt.Errorf("no CRM engine registered for %q", target)
	}
	result, err := Execute(ctx, engine, userID, plan)
	if err != nil {
		return nil, err
	}
	result.Target = target
	if linker, ok := engine.(domain.RecordLinker); ok {
		result.RecordURL = linker.RecordURL(ctx, userID, result)
	}
	return result, nil
}

// Execute applies plan: contact, company, association, then the note. The note
// hangs off the contact when there is one, else the company; with neither
// there is nothing to attach it to and no note is written.
func Execute(ctx context.Context, engine domain.SyncEngine, userID string, plan domain.Plan) (*domain.WriteResult, error) {
	result := &domain.WriteResult{}

	if plan.Contact != nil {
		id, created, err := engine.UpsertContact(ctx, userID, *plan.Contact, plan.Company)
		if err != nil {
			return nil, fmt.Errorf("unable to upsert contact: %w", err)
		}
		result.ContactID, result.ContactCreated = id, created
	}

	if plan.Company != nil {
		id, created, err := engine.UpsertCompany(ctx, userID, *plan.Company)
		if err != nil {
			return nil, fmt.Errorf("unable to upsert company: %w", err)
		}
		result.CompanyID, result.CompanyCreated = id, created
	}

	if result.ContactID != "" && result.CompanyID != "" {
		if err := engine.Associate(ctx, userID, result.ContactID, result.CompanyID); err != nil {
			return nil, fmt.Errorf("unable to associate contact %s with company %s: %w", result.ContactID, result.CompanyID, err)
		}
		result.Associated = true
	}

	var parent *domain.NoteParent
	switch {
	case result.ContactID != "":
		parent = &domain.NoteParent{Kind: domain.ParentContact, ID: result.ContactID}
	case result.CompanyID != "":
		parent = &domain.NoteParent{Kind: domain.ParentCompany, ID: result.CompanyID}
	}
	if parent == nil {
		log.Printf("[CRM] Plan for %s has no contact or company; skipping note", plan.Note.ExternalRef)
		return result, nil
	}

	id, created, err := engine.UpsertNote(ctx, userID, *parent, plan.Note)
	if err != nil {
		return nil, fmt.Errorf("unable to upsert note: %w", err)
	}
	result.NoteID, result.NoteCreated = id, created
	return result, nil
}
