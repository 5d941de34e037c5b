package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
	audit "appeals/pkg/platform/audit"
	"appeals/pkg/platform/sentinel"
	"appeals/pkg/requestcontext"
)

// AddCaseToAgenda places a case on a session agenda. The first member ever
// assigned to the case becomes its rapporteur; later assignees join the
// reviewer set carried forward from the previous active distribution.
func (s *Service) AddCaseToAgenda(ctx context.Context, cmd AddCaseCommand) (item *models.AgendaItem, err error) {
	ctx, span := s.startSpan(ctx, "AddCaseToAgenda",
		attribute.String("case_id", cmd.CaseID.String()),
		attribute.String("session_id", cmd.SessionID.String()))
	defer func() { finishSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "add_case", func(txCtx context.Context) error {
		if err := s.store.LockCase(txCtx, cmd.CaseID); err != nil {
			return wrapStoreErr(err, "case")
		}
		if _, err := s.store.FindCase(txCtx, cmd.CaseID); err != nil {
			return wrapStoreErr(err, "case")
		}
		session, err := s.mutableSession(txCtx, cmd.SessionID)
		if err != nil {
			return err
		}
		existing, err := optional(s.store.FindEntry(txCtx, cmd.CaseID, cmd.SessionID))
		if err != nil {
			return wrapStoreErr(err, "agenda entry")
		}
		if existing != nil {
			return dErrors.New(dErrors.CodeConflict, "case is already on the session agenda")
		}

		previous, err := optional(s.store.FindActiveDistribution(txCtx, cmd.CaseID))
		if err != nil {
			return wrapStoreErr(err, "distribution")
		}
		entries, err := s.store.ListEntriesBySession(txCtx, cmd.SessionID)
		if err != nil {
			return wrapStoreErr(err, "agenda")
		}
		snapshot, err := optional(s.store.LatestSnapshot(txCtx, cmd.SessionID))
		if err != nil {
			return wrapStoreErr(err, "publication snapshot")
		}

		position := len(entries) + 1
		dist := models.NewDistribution(id.DistributionID(uuid.New()), cmd.CaseID, cmd.SessionID, cmd.Assignee, previous, position, now)
		addedAfterPublication := snapshot != nil && !snapshot.Contains(cmd.CaseID, cmd.Assignee)
		entry := models.NewAgendaEntry(cmd.CaseID, cmd.SessionID, position, addedAfterPublication, now)

		if previous != nil {
			previous.Active = false
			previous.UpdatedAt = now
			if err := s.store.UpdateDistribution(txCtx, previous); err != nil {
				return wrapStoreErr(err, "distribution")
			}
		}
		if err := s.store.CreateEntry(txCtx, entry); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "case is already on the session agenda")
			}
			return wrapStoreErr(err, "agenda entry")
		}
		if err := s.store.CreateDistribution(txCtx, dist); err != nil {
			return wrapStoreErr(err, "distribution")
		}
		if _, err := s.reconcile(txCtx, session); err != nil {
			return err
		}

		assignment := "reviewer"
		if dist.Rapporteur == cmd.Assignee {
			assignment = "rapporteur"
		}
		item = &models.AgendaItem{Entry: entry, Distribution: dist}
		return s.emit(txCtx, audit.ComplianceEvent{
			CaseID:    cmd.CaseID,
			SessionID: cmd.SessionID,
			MemberID:  cmd.Assignee,
			Subject:   dist.ID.String(),
			Action:    string(audit.EventCaseAgendaAdded),
			Decision:  assignment,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, audit.EventCaseAgendaAdded,
		"case_id", cmd.CaseID,
		"session_id", cmd.SessionID,
		"member_id", cmd.Assignee,
		"added_after_publication", item.Entry.AddedAfterPublication)
	return item, nil
}

// RemoveCaseFromAgenda takes a case off a session agenda. The session's
// distribution is deleted and the most recent remaining one becomes active.
// Removal is refused once any voting result of the case is resolved, or when
// votes were cast for the case in this session.
func (s *Service) RemoveCaseFromAgenda(ctx context.Context, caseID id.CaseID, sessionID id.SessionID) (err error) {
	ctx, span := s.startSpan(ctx, "RemoveCaseFromAgenda",
		attribute.String("case_id", caseID.String()),
		attribute.String("session_id", sessionID.String()))
	defer func() { finishSpan(span, err) }()

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "remove_case", func(txCtx context.Context) error {
		if err := s.store.LockCase(txCtx, caseID); err != nil {
			return wrapStoreErr(err, "case")
		}
		session, err := s.mutableSession(txCtx, sessionID)
		if err != nil {
			return err
		}
		if _, err := s.store.FindEntry(txCtx, caseID, sessionID); err != nil {
			return wrapStoreErr(err, "agenda entry")
		}

		batches, err := s.store.ListBatchesByCase(txCtx, caseID)
		if err != nil {
			return wrapStoreErr(err, "voting result")
		}
		if models.HasResolved(batches) {
			return dErrors.New(dErrors.CodeConflict, "case has a resolved voting result and cannot leave the agenda")
		}
		votes, err := s.store.ListVotesByCase(txCtx, caseID)
		if err != nil {
			return wrapStoreErr(err, "vote")
		}
		for _, v := range votes {
			if v.SessionID == sessionID {
				return dErrors.New(dErrors.CodeConflict, "votes were cast for the case in this session")
			}
		}

		if err := s.store.DeleteEntry(txCtx, caseID, sessionID); err != nil {
			return wrapStoreErr(err, "agenda entry")
		}
		if err := s.dropSessionDistribution(txCtx, caseID, sessionID, now); err != nil {
			return err
		}
		if err := s.compactPositions(txCtx, sessionID, now); err != nil {
			return err
		}
		if _, err := s.reconcile(txCtx, session); err != nil {
			return err
		}
		return s.emit(txCtx, audit.ComplianceEvent{
			CaseID:    caseID,
			SessionID: sessionID,
			Action:    string(audit.EventCaseAgendaRemoved),
		})
	})
	if err != nil {
		return err
	}

	s.logEvent(ctx, audit.EventCaseAgendaRemoved, "case_id", caseID, "session_id", sessionID)
	return nil
}

func (s *Service) dropSessionDistribution(ctx context.Context, caseID id.CaseID, sessionID id.SessionID, now time.Time) error {
	dist, err := optional(s.store.FindDistribution(ctx, caseID, sessionID))
	if err != nil {
		return wrapStoreErr(err, "distribution")
	}
	if dist == nil {
		return nil
	}
	if err := s.store.DeleteDistribution(ctx, dist.ID); err != nil {
		return wrapStoreErr(err, "distribution")
	}
	if !dist.Active {
		return nil
	}
	remaining, err := s.store.ListDistributionsByCase(ctx, caseID)
	if err != nil {
		return wrapStoreErr(err, "distribution")
	}
	if len(remaining) == 0 {
		return nil
	}
	latest := remaining[len(remaining)-1]
	latest.Active = true
	latest.UpdatedAt = now
	if err := s.store.UpdateDistribution(ctx, latest); err != nil {
		return wrapStoreErr(err, "distribution")
	}
	return nil
}

// compactPositions renumbers the remaining entries 1..n in their current order.
func (s *Service) compactPositions(ctx context.Context, sessionID id.SessionID, now time.Time) error {
	entries, err := s.store.ListEntriesBySession(ctx, sessionID)
	if err != nil {
		return wrapStoreErr(err, "agenda")
	}
	for i, e := range entries {
		if e.Position == i+1 {
			continue
		}
		e.Position = i + 1
		e.UpdatedAt = now
		if err := s.store.UpdateEntry(ctx, e); err != nil {
			return wrapStoreErr(err, "agenda entry")
		}
	}
	return nil
}

// Redistribute changes the member a case is distributed to in one session.
// The rapporteur never changes; a new distributee joins the reviewer set.
func (s *Service) Redistribute(ctx context.Context, caseID id.CaseID, sessionID id.SessionID, assignee id.MemberID) (dist *models.Distribution, err error) {
	ctx, span := s.startSpan(ctx, "Redistribute",
		attribute.String("case_id", caseID.String()),
		attribute.String("session_id", sessionID.String()))
	defer func() { finishSpan(span, err) }()

	if assignee.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "assignee is required")
	}

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "redistribute", func(txCtx context.Context) error {
		if err := s.store.LockCase(txCtx, caseID); err != nil {
			return wrapStoreErr(err, "case")
		}
		session, err := s.mutableSession(txCtx, sessionID)
		if err != nil {
			return err
		}
		entry, err := s.store.FindEntry(txCtx, caseID, sessionID)
		if err != nil {
			return wrapStoreErr(err, "agenda entry")
		}
		if entry.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeConflict, "case is already decided in this session")
		}
		current, err := s.store.FindDistribution(txCtx, caseID, sessionID)
		if err != nil {
			return wrapStoreErr(err, "distribution")
		}
		if !current.Active {
			return dErrors.New(dErrors.CodeConflict, "distribution was superseded by a later session")
		}
		dist = current
		if current.Distributee == assignee {
			return nil
		}

		current.Reassign(assignee, now)
		if err := s.store.UpdateDistribution(txCtx, current); err != nil {
			return wrapStoreErr(err, "distribution")
		}
		if _, err := s.reconcile(txCtx, session); err != nil {
			return err
		}
		return s.emit(txCtx, audit.ComplianceEvent{
			CaseID:    caseID,
			SessionID: sessionID,
			MemberID:  assignee,
			Subject:   current.ID.String(),
			Action:    string(audit.EventCaseRedistributed),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, audit.EventCaseRedistributed, "case_id", caseID, "session_id", sessionID, "member_id", assignee)
	return dist, nil
}

// ReorderAgenda rewrites the ordering of a session agenda. caseIDs must list
// every case on the agenda exactly once. Ordering never affects whether the
// agenda matches its publication.
func (s *Service) ReorderAgenda(ctx context.Context, sessionID id.SessionID, caseIDs []id.CaseID) (entries []*models.AgendaEntry, err error) {
	ctx, span := s.startSpan(ctx, "ReorderAgenda", attribute.String("session_id", sessionID.String()))
	defer func() { finishSpan(span, err) }()

	if len(caseIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "order must not be empty")
	}

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "reorder_agenda", func(txCtx context.Context) error {
		if _, err := s.mutableSession(txCtx, sessionID); err != nil {
			return err
		}
		current, err := s.store.ListEntriesBySession(txCtx, sessionID)
		if err != nil {
			return wrapStoreErr(err, "agenda")
		}
		if !isPermutation(current, caseIDs) {
			return dErrors.New(dErrors.CodeValidation, "order must list every case on the agenda exactly once")
		}
		byCase := make(map[id.CaseID]*models.AgendaEntry, len(current))
		for _, e := range current {
			byCase[e.CaseID] = e
		}
		entries = make([]*models.AgendaEntry, 0, len(caseIDs))
		for i, caseID := range caseIDs {
			e := byCase[caseID]
			if e.Position != i+1 {
				e.Position = i + 1
				e.UpdatedAt = now
				if err := s.store.UpdateEntry(txCtx, e); err != nil {
					return wrapStoreErr(err, "agenda entry")
				}
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "agenda reordered",
		"session_id", sessionID,
		"cases", len(entries),
		"request_id", requestcontext.RequestID(ctx))
	return entries, nil
}

func isPermutation(entries []*models.AgendaEntry, caseIDs []id.CaseID) bool {
	if len(entries) != len(caseIDs) {
		return false
	}
	seen := make(map[id.CaseID]struct{}, len(caseIDs))
	for _, caseID := range caseIDs {
		if _, dup := seen[caseID]; dup {
			return false
		}
		seen[caseID] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := seen[e.CaseID]; !ok {
			return false
		}
	}
	return true
}

// PublishAgenda records a publication snapshot of the live agenda, clears the
// added-after-publication flags and marks the session pending.
func (s *Service) PublishAgenda(ctx context.Context, sessionID id.SessionID) (snapshot *models.PublicationSnapshot, err error) {
	ctx, span := s.startSpan(ctx, "PublishAgenda", attribute.String("session_id", sessionID.String()))
	defer func() { finishSpan(span, err) }()

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "publish_agenda", func(txCtx context.Context) error {
		session, err := s.mutableSession(txCtx, sessionID)
		if err != nil {
			return err
		}
		items, err := s.liveAgenda(txCtx, sessionID)
		if err != nil {
			return err
		}
		agenda := &models.SessionAgenda{Session: session, Items: items}
		snapshot = &models.PublicationSnapshot{
			ID:          id.SnapshotID(uuid.New()),
			SessionID:   sessionID,
			PublishedAt: now,
			Entries:     agenda.LiveEntries(),
		}
		if err := s.store.CreateSnapshot(txCtx, snapshot); err != nil {
			return wrapStoreErr(err, "publication snapshot")
		}

		events := make([]audit.ComplianceEvent, 0, len(items))
		for _, item := range items {
			if item.Entry.AddedAfterPublication {
				item.Entry.AddedAfterPublication = false
				item.Entry.UpdatedAt = now
				if err := s.store.UpdateEntry(txCtx, item.Entry); err != nil {
					return wrapStoreErr(err, "agenda entry")
				}
			}
			events = append(events, audit.ComplianceEvent{
				CaseID:    item.Entry.CaseID,
				SessionID: sessionID,
				Subject:   snapshot.ID.String(),
				Action:    string(audit.EventAgendaPublished),
			})
		}
		if session.Status != models.SessionStatusPending {
			if err := s.store.UpdateSessionStatus(txCtx, sessionID, models.SessionStatusPending); err != nil {
				return wrapStoreErr(err, "session")
			}
		}
		return s.emit(txCtx, events...)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementAgendaPublished()
	}
	s.logEvent(ctx, audit.EventAgendaPublished, "session_id", sessionID, "cases", len(snapshot.Entries))
	return snapshot, nil
}

// IsAgendaCurrent reports whether the live agenda of a session still matches
// its most recent publication: the same (case, distributee) pairs, in any
// order. A session that was never published is not current.
func (s *Service) IsAgendaCurrent(ctx context.Context, sessionID id.SessionID) (bool, error) {
	if _, err := s.store.FindSession(ctx, sessionID); err != nil {
		return false, wrapStoreErr(err, "session")
	}
	snapshot, err := optional(s.store.LatestSnapshot(ctx, sessionID))
	if err != nil {
		return false, wrapStoreErr(err, "publication snapshot")
	}
	if snapshot == nil {
		return false, nil
	}
	items, err := s.liveAgenda(ctx, sessionID)
	if err != nil {
		return false, err
	}
	agenda := &models.SessionAgenda{Items: items}
	return snapshot.Matches(agenda.LiveEntries()), nil
}

// SessionAgenda returns the live agenda of a session with its distributions
// and publication state.
func (s *Service) SessionAgenda(ctx context.Context, sessionID id.SessionID) (*models.SessionAgenda, error) {
	session, err := s.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "session")
	}
	items, err := s.liveAgenda(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	snapshot, err := optional(s.store.LatestSnapshot(ctx, sessionID))
	if err != nil {
		return nil, wrapStoreErr(err, "publication snapshot")
	}
	agenda := &models.SessionAgenda{Session: session, Items: items, LastPublished: snapshot}
	agenda.Current = snapshot != nil && snapshot.Matches(agenda.LiveEntries())
	return agenda, nil
}

// reconcile recomputes and stores the session's publication status after an
// agenda mutation.
func (s *Service) reconcile(ctx context.Context, session *models.Session) (models.SessionStatus, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveReconcile(start)
		}
	}()

	snapshot, err := optional(s.store.LatestSnapshot(ctx, session.ID))
	if err != nil {
		return "", wrapStoreErr(err, "publication snapshot")
	}
	current := false
	if snapshot != nil {
		items, err := s.liveAgenda(ctx, session.ID)
		if err != nil {
			return "", err
		}
		agenda := &models.SessionAgenda{Items: items}
		current = snapshot.Matches(agenda.LiveEntries())
	}
	status := session.Reconcile(snapshot != nil, current)
	if status == session.Status {
		return status, nil
	}
	if err := s.store.UpdateSessionStatus(ctx, session.ID, status); err != nil {
		return "", wrapStoreErr(err, "session")
	}
	session.Status = status
	return status, nil
}

// liveAgenda loads the session entries in agenda order with the distribution
// recorded for each case in that session.
func (s *Service) liveAgenda(ctx context.Context, sessionID id.SessionID) ([]models.AgendaItem, error) {
	entries, err := s.store.ListEntriesBySession(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "agenda")
	}
	slices.SortStableFunc(entries, func(a, b *models.AgendaEntry) int { return a.Position - b.Position })
	items := make([]models.AgendaItem, 0, len(entries))
	for _, e := range entries {
		dist, err := optional(s.store.FindDistribution(ctx, e.CaseID, sessionID))
		if err != nil {
			return nil, wrapStoreErr(err, "distribution")
		}
		items = append(items, models.AgendaItem{Entry: e, Distribution: dist})
	}
	return items, nil
}

func (s *Service) mutableSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := s.store.FindSession(ctx, sessionID)
	if err != nil {
		return nil, wrapStoreErr(err, "session")
	}
	if err := session.CanMutateAgenda(); err != nil {
		return nil, err
	}
	return session, nil
}
