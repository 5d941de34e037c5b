package service

import (
	"github.com/google/uuid"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
	audit "appeals/pkg/platform/audit"
)

func (s *ServiceSuite) TestAddCaseToAgenda() {
	s.Run("first assignee becomes rapporteur", func() {
		item := s.addCase(s.caseID, s.s1, s.alice)

		s.Equal(s.alice, item.Distribution.Rapporteur)
		s.Equal(s.alice, item.Distribution.Distributee)
		s.Empty(item.Distribution.Reviewers)
		s.True(item.Distribution.Active)
		s.Equal(1, item.Entry.Position)
		s.Equal(models.AgendaStatusOnAgenda, item.Entry.Status)
		s.Equal(models.SessionStatusNeedsPublication, s.sessionStatus(s.s1))
		s.Equal([]string{string(audit.EventCaseAgendaAdded)}, s.audit.Actions(s.caseID))
	})

	s.Run("rapporteur never changes as the case moves between sessions", func() {
		second := s.addCase(s.caseID, s.s2, s.bruno)
		third := s.addCase(s.caseID, s.s3, s.carla)

		s.Equal(s.alice, second.Distribution.Rapporteur)
		s.Equal([]id.MemberID{s.bruno}, second.Distribution.Reviewers)
		s.Equal(s.alice, third.Distribution.Rapporteur)
		s.Equal([]id.MemberID{s.bruno, s.carla}, third.Distribution.Reviewers)

		active := s.activeDistribution()
		s.Equal(third.Distribution.ID, active.ID)
		first, err := s.store.FindDistribution(s.ctx, s.caseID, s.s1)
		s.Require().NoError(err)
		s.False(first.Active)
	})

	s.Run("returning rapporteur is not added as reviewer", func() {
		other := s.seedSession(s.now.AddDate(0, 1, 0))
		item := s.addCase(s.caseID, other, s.alice)

		s.Equal(s.alice, item.Distribution.Rapporteur)
		s.Equal([]id.MemberID{s.bruno, s.carla}, item.Distribution.Reviewers)
	})

	s.Run("same case twice on one agenda is rejected", func() {
		_, err := s.service.AddCaseToAgenda(s.ctx, AddCaseCommand{CaseID: s.caseID, SessionID: s.s1, Assignee: s.diego})
		s.requireCode(err, dErrors.CodeConflict)
	})
}

func (s *ServiceSuite) TestAddCaseToAgenda_Rejections() {
	s.Run("missing fields fail validation", func() {
		_, err := s.service.AddCaseToAgenda(s.ctx, AddCaseCommand{CaseID: s.caseID, SessionID: s.s1})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("unknown case is not found", func() {
		_, err := s.service.AddCaseToAgenda(s.ctx, AddCaseCommand{CaseID: id.CaseID(uuid.New()), SessionID: s.s1, Assignee: s.alice})
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("cancelled session accepts no cases", func() {
		s.Require().NoError(s.store.UpdateSessionStatus(s.ctx, s.s2, models.SessionStatusCancelled))
		_, err := s.service.AddCaseToAgenda(s.ctx, AddCaseCommand{CaseID: s.caseID, SessionID: s.s2, Assignee: s.alice})
		s.requireCode(err, dErrors.CodeConflict)
	})
}

func (s *ServiceSuite) TestRedistribute() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.Run("new distributee joins reviewers and rapporteur stays", func() {
		dist, err := s.service.Redistribute(s.ctx, s.caseID, s.s1, s.bruno)
		s.Require().NoError(err)
		s.Equal(s.alice, dist.Rapporteur)
		s.Equal(s.bruno, dist.Distributee)
		s.Equal([]id.MemberID{s.bruno}, dist.Reviewers)
	})

	s.Run("same distributee is a no-op", func() {
		before := len(s.audit.Actions(s.caseID))
		dist, err := s.service.Redistribute(s.ctx, s.caseID, s.s1, s.bruno)
		s.Require().NoError(err)
		s.Equal(s.bruno, dist.Distributee)
		s.Len(s.audit.Actions(s.caseID), before)
	})

	s.Run("superseded distribution cannot be redistributed", func() {
		s.addCase(s.caseID, s.s2, s.carla)
		_, err := s.service.Redistribute(s.ctx, s.caseID, s.s1, s.diego)
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("missing assignee fails validation", func() {
		_, err := s.service.Redistribute(s.ctx, s.caseID, s.s2, id.MemberID{})
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestRemoveCaseFromAgenda() {
	s.Run("previous distribution becomes active again", func() {
		s.addCase(s.caseID, s.s1, s.alice)
		s.addCase(s.caseID, s.s2, s.bruno)

		err := s.service.RemoveCaseFromAgenda(s.ctx, s.caseID, s.s2)
		s.Require().NoError(err)

		active := s.activeDistribution()
		s.Equal(s.s1, active.SessionID)
		_, err = s.store.FindEntry(s.ctx, s.caseID, s.s2)
		s.Require().Error(err)
	})

	s.Run("remaining positions are compacted", func() {
		other := s.seedCase()
		third := s.seedCase()
		s.addCase(other, s.s1, s.bruno)
		s.addCase(third, s.s1, s.carla)

		err := s.service.RemoveCaseFromAgenda(s.ctx, other, s.s1)
		s.Require().NoError(err)

		entries, err := s.store.ListEntriesBySession(s.ctx, s.s1)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal(s.caseID, entries[0].CaseID)
		s.Equal(1, entries[0].Position)
		s.Equal(third, entries[1].CaseID)
		s.Equal(2, entries[1].Position)
	})

	s.Run("votes cast in the session block removal", func() {
		s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
		err := s.service.RemoveCaseFromAgenda(s.ctx, s.caseID, s.s1)
		s.requireCode(err, dErrors.CodeConflict)
	})
}

func (s *ServiceSuite) TestRemoveCaseFromAgenda_ResolvedBatchBlocks() {
	s.addCase(s.caseID, s.s1, s.alice)
	v := s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P1"))
	_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
	s.Require().NoError(err)
	s.addCase(s.caseID, s.s2, s.bruno)

	err = s.service.RemoveCaseFromAgenda(s.ctx, s.caseID, s.s2)
	s.requireCode(err, dErrors.CodeConflict)

	entry := s.entry(s.s2)
	s.Equal(models.AgendaStatusOnAgenda, entry.Status)
}

func (s *ServiceSuite) TestReorderAgenda() {
	other := s.seedCase()
	s.addCase(s.caseID, s.s1, s.alice)
	s.addCase(other, s.s1, s.bruno)

	s.Run("entries take the requested positions", func() {
		entries, err := s.service.ReorderAgenda(s.ctx, s.s1, []id.CaseID{other, s.caseID})
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
		s.Equal(other, entries[0].CaseID)
		s.Equal(1, entries[0].Position)
		s.Equal(2, s.entry(s.s1).Position)
	})

	s.Run("incomplete order fails validation", func() {
		_, err := s.service.ReorderAgenda(s.ctx, s.s1, []id.CaseID{other})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("duplicated case fails validation", func() {
		_, err := s.service.ReorderAgenda(s.ctx, s.s1, []id.CaseID{other, other})
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestPublishAndReconcile() {
	other := s.seedCase()
	s.addCase(s.caseID, s.s1, s.alice)
	s.addCase(other, s.s1, s.bruno)

	s.Run("unpublished agenda is never current", func() {
		current, err := s.service.IsAgendaCurrent(s.ctx, s.s1)
		s.Require().NoError(err)
		s.False(current)
	})

	s.Run("publication snapshots the agenda and marks the session pending", func() {
		snapshot, err := s.service.PublishAgenda(s.ctx, s.s1)
		s.Require().NoError(err)
		s.ElementsMatch([]models.SnapshotEntry{
			{CaseID: s.caseID, Distributee: s.alice},
			{CaseID: other, Distributee: s.bruno},
		}, snapshot.Entries)
		s.Equal(models.SessionStatusPending, s.sessionStatus(s.s1))

		current, err := s.service.IsAgendaCurrent(s.ctx, s.s1)
		s.Require().NoError(err)
		s.True(current)
	})

	s.Run("ordering does not affect currency", func() {
		_, err := s.service.ReorderAgenda(s.ctx, s.s1, []id.CaseID{other, s.caseID})
		s.Require().NoError(err)

		current, err := s.service.IsAgendaCurrent(s.ctx, s.s1)
		s.Require().NoError(err)
		s.True(current)
	})

	s.Run("redistribution requires republication", func() {
		_, err := s.service.Redistribute(s.ctx, s.caseID, s.s1, s.carla)
		s.Require().NoError(err)
		s.Equal(models.SessionStatusNeedsPublication, s.sessionStatus(s.s1))

		agenda, err := s.service.SessionAgenda(s.ctx, s.s1)
		s.Require().NoError(err)
		s.False(agenda.Current)
		s.NotNil(agenda.LastPublished)
	})

	s.Run("restoring the published distributee makes the agenda current again", func() {
		_, err := s.service.Redistribute(s.ctx, s.caseID, s.s1, s.alice)
		s.Require().NoError(err)
		s.Equal(models.SessionStatusPending, s.sessionStatus(s.s1))
	})

	s.Run("case added after publication is flagged until republished", func() {
		late := s.seedCase()
		item := s.addCase(late, s.s1, s.diego)
		s.True(item.Entry.AddedAfterPublication)
		s.Equal(models.SessionStatusNeedsPublication, s.sessionStatus(s.s1))

		_, err := s.service.PublishAgenda(s.ctx, s.s1)
		s.Require().NoError(err)
		e, err := s.store.FindEntry(s.ctx, late, s.s1)
		s.Require().NoError(err)
		s.False(e.AddedAfterPublication)
		s.Equal(models.SessionStatusPending, s.sessionStatus(s.s1))
	})
}
