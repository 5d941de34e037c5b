package service

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"appeals/internal/judgment/models"
	"appeals/internal/judgment/service/mocks"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
	audit "appeals/pkg/platform/audit"
)

func (s *ServiceSuite) TestResolveBatch_Merit() {
	s.addCase(s.caseID, s.s1, s.alice)
	leader := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
	s.cast(s.follow(s.s1, s.bruno, leader.ID))
	s.cast(s.merit(s.s1, s.carla, models.VoteRoleVotingMember, "DENIED"))
	abstain := s.merit(s.s1, s.diego, models.VoteRoleVotingMember, "")
	abstain.MeritDecision = nil
	abstain.Participation = models.ParticipationAbstain
	s.cast(abstain)

	b, err := s.service.ResolveBatch(s.ctx, *leader.BatchID, s.alice)
	s.Require().NoError(err)

	s.Equal(models.BatchStatusResolved, b.Status)
	s.Equal(leader.ID, *b.WinningVoteID)
	s.Equal(s.alice, *b.WinningMemberID)
	s.Equal(s.s1, *b.DecidedSessionID)
	s.False(b.QualityVoteUsed)
	s.Equal(models.Tally{TotalVotes: 3, Abstentions: 1}, b.Tally)
	s.NotNil(b.ResolvedAt)

	c, err := s.store.FindCase(s.ctx, s.caseID)
	s.Require().NoError(err)
	s.Equal(models.CaseStageAwaitingPublication, c.Stage)
	s.Equal(models.AgendaStatusDecided, s.entry(s.s1).Status)

	actions := s.audit.Actions(s.caseID)
	s.Contains(actions, string(audit.EventBatchResolved))
	s.Contains(actions, string(audit.EventCaseDecided))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.CasesDecided))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.BatchesResolved.WithLabelValues("merit", "manual")))

	_, err = s.service.ResolveBatch(s.ctx, b.ID, s.alice)
	s.requireCode(err, dErrors.CodeConflict)
}

func (s *ServiceSuite) TestResolveBatch_NotAdmittedLeavesEntryOpen() {
	s.addCase(s.caseID, s.s1, s.alice)
	v := s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P1"))

	b, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
	s.Require().NoError(err)

	s.Require().NotNil(b.PreliminaryDecision)
	s.Equal(id.DecisionCode("P1"), *b.PreliminaryDecision)
	s.Equal(models.AgendaStatusOnAgenda, s.entry(s.s1).Status)
	c, err := s.store.FindCase(s.ctx, s.caseID)
	s.Require().NoError(err)
	s.Equal(models.CaseStageInProgress, c.Stage)
}

func (s *ServiceSuite) TestResolveBatch_WinnerMustHoldAnalystVote() {
	s.addCase(s.caseID, s.s1, s.alice)
	v := s.cast(s.merit(s.s1, s.carla, models.VoteRoleVotingMember, "GRANTED"))

	s.Run("voting member cannot win", func() {
		_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.carla)
		s.requireCode(err, dErrors.CodeInvariantViolation)
	})

	s.Run("member without a vote cannot win", func() {
		_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
		s.requireCode(err, dErrors.CodeInvariantViolation)
	})

	s.Equal(models.BatchStatusOpen, s.batch(*v.BatchID).Status)
}

// Any president vote is reported as a tie-break even when the count was not
// tied. This mirrors the detection rule in use by the board and is kept until
// the intended semantics are settled.
func (s *ServiceSuite) TestResolveBatch_PresidentVoteFlaggedAsQualityVote() {
	s.addCase(s.caseID, s.s1, s.alice)
	v := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
	s.cast(s.merit(s.s1, s.bruno, models.VoteRoleVotingMember, "GRANTED"))
	s.cast(s.merit(s.s1, s.president, models.VoteRolePresident, "GRANTED"))

	b, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
	s.Require().NoError(err)

	s.True(b.QualityVoteUsed)
	s.Equal(s.president, *b.QualityVoteMemberID)
}

func (s *ServiceSuite) TestResolveBatch_StageFailureRollsBack() {
	ctrl := gomock.NewController(s.T())
	stages := mocks.NewMockCaseStages(ctrl)
	stages.EXPECT().MarkAwaitingPublication(gomock.Any(), s.caseID).Return(errors.New("intake unavailable"))
	svc := New(s.store, s.store, s.store, stages)

	s.addCase(s.caseID, s.s1, s.alice)
	v := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))

	_, err := svc.ResolveBatch(s.ctx, *v.BatchID, s.alice)
	s.requireCode(err, dErrors.CodeInternal)

	s.Equal(models.BatchStatusOpen, s.batch(*v.BatchID).Status)
	s.Equal(models.AgendaStatusOnAgenda, s.entry(s.s1).Status)
}

func (s *ServiceSuite) TestDeclareUnanimous() {
	s.addCase(s.caseID, s.s1, s.alice)
	s.addCase(s.caseID, s.s2, s.bruno)
	sole := s.cast(s.merit(s.s2, s.bruno, models.VoteRoleReviewer, "GRANTED"))

	b, err := s.service.DeclareUnanimous(s.ctx, *sole.BatchID)
	s.Require().NoError(err)

	s.Equal(models.BatchStatusResolved, b.Status)
	s.Equal(s.bruno, *b.WinningMemberID)
	s.False(b.QualityVoteUsed)
	s.Equal(4, b.Tally.TotalVotes)
	s.Equal(models.AgendaStatusDecided, s.entry(s.s2).Status)

	followers, err := s.store.ListFollowers(s.ctx, sole.ID)
	s.Require().NoError(err)
	s.Require().Len(followers, 3)
	members := make([]id.MemberID, 0, len(followers))
	for _, f := range followers {
		members = append(members, f.MemberID)
		s.Equal(models.VoteRoleVotingMember, f.Role)
		s.Equal(models.ParticipationPresent, f.Participation)
		s.Equal(s.s2, f.SessionID)
		s.Equal(*sole.BatchID, *f.BatchID)
	}
	s.ElementsMatch([]id.MemberID{s.president, s.carla, s.diego}, members)
	s.Contains(s.audit.Actions(s.caseID), string(audit.EventUnanimityDeclared))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.BatchesResolved.WithLabelValues("merit", "unanimity")))
}

func (s *ServiceSuite) TestDeclareUnanimous_SkipsIneligibleMembers() {
	s.Require().NoError(s.store.SaveRoster(s.ctx, s.s1, []models.Member{
		{ID: s.alice, Role: models.MemberRoleCounselor, Eligible: true},
		{ID: s.bruno, Role: models.MemberRoleCounselor, Eligible: true},
		{ID: s.carla, Role: models.MemberRoleCounselor, Eligible: false},
	}))
	s.addCase(s.caseID, s.s1, s.alice)
	sole := s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P1"))

	b, err := s.service.DeclareUnanimous(s.ctx, *sole.BatchID)
	s.Require().NoError(err)

	followers, err := s.store.ListFollowers(s.ctx, sole.ID)
	s.Require().NoError(err)
	s.Require().Len(followers, 1)
	s.Equal(s.bruno, followers[0].MemberID)
	s.Equal(id.DecisionCode("P1"), *followers[0].PreliminaryDecision)
	s.Equal(2, b.Tally.TotalVotes)
}

func (s *ServiceSuite) TestDeclareUnanimous_Rejections() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.Run("two votes make no writes", func() {
		v := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
		s.cast(s.merit(s.s1, s.bruno, models.VoteRoleVotingMember, "GRANTED"))

		_, err := s.service.DeclareUnanimous(s.ctx, *v.BatchID)
		s.requireCode(err, dErrors.CodeInvariantViolation)

		s.Len(s.votes(), 2)
		s.Equal(models.BatchStatusOpen, s.batch(*v.BatchID).Status)
		s.NotContains(s.audit.Actions(s.caseID), string(audit.EventUnanimityDeclared))
	})

	s.Run("sole vote must come from an analyst", func() {
		v := s.cast(s.notAdmitted(s.s1, s.carla, models.VoteRoleVotingMember, "P1"))

		_, err := s.service.DeclareUnanimous(s.ctx, *v.BatchID)
		s.requireCode(err, dErrors.CodeInvariantViolation)
	})

	s.Run("resolved voting result is rejected", func() {
		v := s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P2"))
		_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
		s.Require().NoError(err)

		_, err = s.service.DeclareUnanimous(s.ctx, *v.BatchID)
		s.requireCode(err, dErrors.CodeConflict)
	})
}

func (s *ServiceSuite) TestResolveRacesUnanimity() {
	s.addCase(s.caseID, s.s1, s.alice)
	sole := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))

	var (
		wg           sync.WaitGroup
		resolveErr   error
		unanimityErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, resolveErr = s.service.ResolveBatch(s.ctx, *sole.BatchID, s.alice)
	}()
	go func() {
		defer wg.Done()
		_, unanimityErr = s.service.DeclareUnanimous(s.ctx, *sole.BatchID)
	}()
	wg.Wait()

	s.Require().True((resolveErr == nil) != (unanimityErr == nil), "exactly one resolution must win")
	s.Equal(models.BatchStatusResolved, s.batch(*sole.BatchID).Status)
	if resolveErr == nil {
		s.requireCode(unanimityErr, dErrors.CodeConflict)
		s.ErrorContains(unanimityErr, "voting result is already resolved")
		s.Len(s.votes(), 1)
		s.NotContains(s.audit.Actions(s.caseID), string(audit.EventUnanimityDeclared))
	} else {
		s.requireCode(resolveErr, dErrors.CodeConflict)
		s.ErrorContains(resolveErr, "voting result is already resolved")
		s.Len(s.votes(), 5)
	}
}

func (s *ServiceSuite) TestDeclareUnanimous_RosterFailureMakesNoWrites() {
	ctrl := gomock.NewController(s.T())
	roster := mocks.NewMockRoster(ctrl)
	roster.EXPECT().SessionRoster(gomock.Any(), s.s1).Return(nil, errors.New("registry down"))
	svc := New(s.store, s.store, roster, s.store)

	s.addCase(s.caseID, s.s1, s.alice)
	sole := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))

	_, err := svc.DeclareUnanimous(s.ctx, *sole.BatchID)
	s.requireCode(err, dErrors.CodeInternal)

	s.Len(s.votes(), 1)
	s.Equal(models.BatchStatusOpen, s.batch(*sole.BatchID).Status)
}

func (s *ServiceSuite) TestDeleteBatch() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.Run("votes are deleted followers first", func() {
		leader := s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P1"))
		follower := s.follow(s.s1, s.bruno, leader.ID)
		follower.Knowledge = models.KnowledgeNotAdmitted
		s.cast(follower)

		s.Require().NoError(s.service.DeleteBatch(s.ctx, *leader.BatchID))

		s.Empty(s.votes())
		_, err := s.store.FindBatch(s.ctx, *leader.BatchID)
		s.Require().Error(err)
		s.Equal(float64(2), testutil.ToFloat64(s.metrics.VotesDeleted))
	})

	s.Run("followers in another voting result block deletion", func() {
		leader := s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P2"))
		_, err := s.service.ResolveBatch(s.ctx, *leader.BatchID, s.alice)
		s.Require().NoError(err)
		follower := s.follow(s.s1, s.bruno, leader.ID)
		follower.Knowledge = models.KnowledgeNotAdmitted
		f := s.cast(follower)
		s.NotEqual(*leader.BatchID, *f.BatchID)

		err = s.service.DeleteBatch(s.ctx, *leader.BatchID)
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("decided case keeps its voting results", func() {
		v := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
		_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
		s.Require().NoError(err)

		err = s.service.DeleteBatch(s.ctx, *v.BatchID)
		s.requireCode(err, dErrors.CodeConflict)
	})
}
