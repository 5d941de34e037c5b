package service

import (
	"appeals/internal/judgment/models"
	dErrors "appeals/pkg/domain-errors"
	audit "appeals/pkg/platform/audit"
)

func (s *ServiceSuite) changeStatus(transition models.StatusTransition) (*models.AgendaEntry, error) {
	return s.service.ChangeEntryStatus(s.ctx, ChangeStatusCommand{
		CaseID:     s.caseID,
		SessionID:  s.s1,
		Transition: transition,
	})
}

func (s *ServiceSuite) TestChangeEntryStatus() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.Run("inquiry requires a deadline", func() {
		_, err := s.changeStatus(models.StatusTransition{Target: models.AgendaStatusUnderInquiry})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("inquiry records the deadline", func() {
		e, err := s.changeStatus(models.StatusTransition{Target: models.AgendaStatusUnderInquiry, InquiryDeadlineDays: 30})
		s.Require().NoError(err)
		s.Equal(models.AgendaStatusUnderInquiry, e.Status)
		s.Require().NotNil(e.InquiryDeadlineDays)
		s.Equal(30, *e.InquiryDeadlineDays)
	})

	s.Run("review request replaces the inquiry data", func() {
		e, err := s.changeStatus(models.StatusTransition{Target: models.AgendaStatusUnderReviewRequest, ReviewRequester: s.carla})
		s.Require().NoError(err)
		s.Nil(e.InquiryDeadlineDays)
		s.Require().NotNil(e.ReviewRequester)
		s.Equal(s.carla, *e.ReviewRequester)
	})

	s.Run("suspension clears state data", func() {
		e, err := s.changeStatus(models.StatusTransition{Target: models.AgendaStatusSuspended})
		s.Require().NoError(err)
		s.Nil(e.ReviewRequester)
		s.Equal(models.AgendaStatusSuspended, s.entry(s.s1).Status)
	})

	s.Run("unknown status fails validation", func() {
		_, err := s.changeStatus(models.StatusTransition{Target: "adjourned"})
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Contains(s.audit.Actions(s.caseID), string(audit.EventEntryStatusChanged))
}

func (s *ServiceSuite) TestChangeEntryStatus_DecidedGate() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.Run("decided requires a resolved merit voting result", func() {
		_, err := s.changeStatus(models.StatusTransition{Target: models.AgendaStatusDecided})
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("resolved preliminary result does not unlock decided", func() {
		v := s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P1"))
		_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
		s.Require().NoError(err)

		_, err = s.changeStatus(models.StatusTransition{Target: models.AgendaStatusDecided})
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("decided is accepted once merit is resolved", func() {
		s.addCase(s.caseID, s.s2, s.bruno)
		v := s.cast(s.merit(s.s2, s.alice, models.VoteRoleRapporteur, "GRANTED"))
		_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
		s.Require().NoError(err)
		s.Equal(models.AgendaStatusDecided, s.entry(s.s2).Status)

		e, err := s.changeStatus(models.StatusTransition{Target: models.AgendaStatusDecided})
		s.Require().NoError(err)
		s.Equal(models.AgendaStatusDecided, e.Status)
	})

	s.Run("decided is terminal", func() {
		_, err := s.changeStatus(models.StatusTransition{Target: models.AgendaStatusOnAgenda})
		s.requireCode(err, dErrors.CodeConflict)
		_, err = s.changeStatus(models.StatusTransition{Target: models.AgendaStatusDecided})
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("decided entry accepts no votes", func() {
		_, err := s.service.CastVote(s.ctx, s.merit(s.s1, s.carla, models.VoteRoleVotingMember, "GRANTED"))
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("decided entry cannot be redistributed", func() {
		_, err := s.service.Redistribute(s.ctx, s.caseID, s.s2, s.diego)
		s.requireCode(err, dErrors.CodeConflict)
	})
}
