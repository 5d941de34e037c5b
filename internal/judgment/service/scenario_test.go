package service

import (
	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	audit "appeals/pkg/platform/audit"
)

// TestScenario_CaseJudgedAcrossTwoSessions follows one case from its first
// distribution to a decided agenda entry.
func (s *ServiceSuite) TestScenario_CaseJudgedAcrossTwoSessions() {
	first := s.addCase(s.caseID, s.s1, s.alice)
	s.Equal(s.alice, first.Distribution.Rapporteur)

	preliminary := s.cast(s.notAdmitted(s.s1, s.bruno, models.VoteRoleReviewer, "P1"))
	batches, err := s.service.GroupVotes(s.ctx, s.caseID)
	s.Require().NoError(err)
	s.Require().Len(batches, 1)
	s.Equal(models.BucketKey{Category: models.BatchCategoryNotAdmitted, Preliminary: "P1"}, batches[0].Key())

	resolved, err := s.service.ResolveBatch(s.ctx, *preliminary.BatchID, s.bruno)
	s.Require().NoError(err)
	s.Equal(s.bruno, *resolved.WinningMemberID)

	second := s.addCase(s.caseID, s.s2, s.carla)
	s.Equal(s.alice, second.Distribution.Rapporteur)
	s.Equal([]id.MemberID{s.bruno, s.carla}, second.Distribution.Reviewers)

	merit := s.cast(s.merit(s.s2, s.alice, models.VoteRoleRapporteur, "GRANTED"))
	batches, err = s.service.GroupVotes(s.ctx, s.caseID)
	s.Require().NoError(err)
	s.Require().Len(batches, 2)
	s.True(s.batch(*merit.BatchID).IsMerit())

	_, err = s.service.ResolveBatch(s.ctx, *merit.BatchID, s.alice)
	s.Require().NoError(err)
	s.Equal(models.AgendaStatusDecided, s.entry(s.s2).Status)
	s.Equal(models.AgendaStatusOnAgenda, s.entry(s.s1).Status)

	history, err := s.service.CaseHistory(s.ctx, s.caseID)
	s.Require().NoError(err)
	s.Len(history.Entries, 2)
	s.Len(history.Distributions, 2)
	s.Len(history.Votes, 2)
	s.Len(history.Batches, 2)
	s.True(models.HasResolvedMerit(history.Batches))

	s.Equal([]string{
		string(audit.EventCaseAgendaAdded),
		string(audit.EventVoteCast),
		string(audit.EventBatchResolved),
		string(audit.EventCaseAgendaAdded),
		string(audit.EventVoteCast),
		string(audit.EventBatchResolved),
		string(audit.EventCaseDecided),
	}, s.audit.Actions(s.caseID))
}
