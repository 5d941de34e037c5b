package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
	audit "appeals/pkg/platform/audit"
	"appeals/pkg/requestcontext"
)

// ChangeEntryStatus moves an agenda entry through its status machine.
// Entering decided requires a resolved merit voting result for the case, and
// decided accepts no further transition.
func (s *Service) ChangeEntryStatus(ctx context.Context, cmd ChangeStatusCommand) (entry *models.AgendaEntry, err error) {
	ctx, span := s.startSpan(ctx, "ChangeEntryStatus",
		attribute.String("case_id", cmd.CaseID.String()),
		attribute.String("session_id", cmd.SessionID.String()),
		attribute.String("target", string(cmd.Transition.Target)))
	defer func() { finishSpan(span, err) }()

	if err := cmd.Transition.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "change_entry_status", func(txCtx context.Context) error {
		if err := s.store.LockCase(txCtx, cmd.CaseID); err != nil {
			return wrapStoreErr(err, "case")
		}
		e, err := s.store.FindEntry(txCtx, cmd.CaseID, cmd.SessionID)
		if err != nil {
			return wrapStoreErr(err, "agenda entry")
		}
		batches, err := s.store.ListBatchesByCase(txCtx, cmd.CaseID)
		if err != nil {
			return wrapStoreErr(err, "voting result")
		}
		if err := e.CanTransition(cmd.Transition, models.HasResolvedMerit(batches)); err != nil {
			return err
		}
		e.ApplyTransition(cmd.Transition, now)
		if err := s.store.UpdateEntry(txCtx, e); err != nil {
			return wrapStoreErr(err, "agenda entry")
		}

		events := []audit.ComplianceEvent{statusEvent(e)}
		if e.Status == models.AgendaStatusDecided {
			events = append(events, decidedEvent(e))
			if s.metrics != nil {
				s.metrics.IncrementCaseDecided()
			}
		}
		entry = e
		return s.emit(txCtx, events...)
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, audit.EventEntryStatusChanged,
		"case_id", cmd.CaseID,
		"session_id", cmd.SessionID,
		"status", entry.Status)
	return entry, nil
}

// decideEntry moves the agenda entry of caseID in sessionID to decided after
// its merit result was resolved. Entries that are missing or already decided
// are left alone; the returned entry is nil then.
func (s *Service) decideEntry(ctx context.Context, caseID id.CaseID, sessionID id.SessionID, now time.Time) (*models.AgendaEntry, error) {
	e, err := optional(s.store.FindEntry(ctx, caseID, sessionID))
	if err != nil {
		return nil, wrapStoreErr(err, "agenda entry")
	}
	if e == nil || e.Status.IsTerminal() {
		return nil, nil
	}
	transition := models.StatusTransition{Target: models.AgendaStatusDecided}
	if err := e.CanTransition(transition, true); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decide agenda entry")
	}
	e.ApplyTransition(transition, now)
	if err := s.store.UpdateEntry(ctx, e); err != nil {
		return nil, wrapStoreErr(err, "agenda entry")
	}
	if s.metrics != nil {
		s.metrics.IncrementCaseDecided()
	}
	return e, nil
}

func statusEvent(e *models.AgendaEntry) audit.ComplianceEvent {
	return audit.ComplianceEvent{
		CaseID:    e.CaseID,
		SessionID: e.SessionID,
		Action:    string(audit.EventEntryStatusChanged),
		Decision:  string(e.Status),
	}
}

func decidedEvent(e *models.AgendaEntry) audit.ComplianceEvent {
	return audit.ComplianceEvent{
		CaseID:    e.CaseID,
		SessionID: e.SessionID,
		Action:    string(audit.EventCaseDecided),
		Decision:  string(models.AgendaStatusDecided),
	}
}
