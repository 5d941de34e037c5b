package service

import (
	"errors"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"appeals/internal/judgment/models"
	"appeals/internal/judgment/service/mocks"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
	audit "appeals/pkg/platform/audit"
)

func (s *ServiceSuite) TestCastVote() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.Run("vote is grouped into the merit voting result", func() {
		v := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))

		b := s.batch(*v.BatchID)
		s.Equal(models.BatchCategoryMerit, b.Category)
		s.Equal(models.BatchStatusOpen, b.Status)
		s.Nil(b.PreliminaryDecision)
		s.Contains(s.audit.Actions(s.caseID), string(audit.EventVoteCast))
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.VotesCast))
	})

	s.Run("second admitted vote of a member is rejected", func() {
		_, err := s.service.CastVote(s.ctx, s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "DENIED"))
		s.requireCode(err, dErrors.CodeConflict)
		s.Len(s.votes(), 1)
	})

	s.Run("not-admitted votes are unique per preliminary decision", func() {
		s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P1"))
		s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P2"))
		s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, ""))

		_, err := s.service.CastVote(s.ctx, s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P1"))
		s.requireCode(err, dErrors.CodeConflict)
		_, err = s.service.CastVote(s.ctx, s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, ""))
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("each bucket gets its own voting result", func() {
		batches, err := s.store.ListBatchesByCase(s.ctx, s.caseID)
		s.Require().NoError(err)
		s.Len(batches, 4)

		keys := make(map[models.BucketKey]bool)
		for _, b := range batches {
			keys[b.Key()] = true
		}
		s.True(keys[models.BucketKey{Category: models.BatchCategoryMerit}])
		s.True(keys[models.BucketKey{Category: models.BatchCategoryNotAdmitted, Preliminary: "P1"}])
		s.True(keys[models.BucketKey{Category: models.BatchCategoryNotAdmitted, Preliminary: "P2"}])
		s.True(keys[models.BucketKey{Category: models.BatchCategoryNotAdmitted}])
	})

	s.Run("votes of the same bucket share a voting result", func() {
		first := s.cast(s.notAdmitted(s.s1, s.bruno, models.VoteRoleVotingMember, "P1"))
		second := s.cast(s.notAdmitted(s.s1, s.carla, models.VoteRoleVotingMember, "P1"))
		s.Equal(*first.BatchID, *second.BatchID)
	})
}

func (s *ServiceSuite) TestCastVote_Rejections() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.Run("admitted present vote without merit decision fails validation", func() {
		cmd := s.merit(s.s1, s.bruno, models.VoteRoleVotingMember, "GRANTED")
		cmd.MeritDecision = nil
		_, err := s.service.CastVote(s.ctx, cmd)
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("preliminary decision on an admitted vote fails validation", func() {
		cmd := s.merit(s.s1, s.bruno, models.VoteRoleVotingMember, "GRANTED")
		cmd.PreliminaryDecision = id.DecisionCode("P1").Ptr()
		_, err := s.service.CastVote(s.ctx, cmd)
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("case not on the session agenda", func() {
		_, err := s.service.CastVote(s.ctx, s.merit(s.s2, s.bruno, models.VoteRoleVotingMember, "GRANTED"))
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("absent admitted vote needs no merit decision", func() {
		cmd := s.merit(s.s1, s.diego, models.VoteRoleVotingMember, "GRANTED")
		cmd.MeritDecision = nil
		cmd.Participation = models.ParticipationAbsent
		s.cast(cmd)
	})

	s.Len(s.votes(), 1)
}

func (s *ServiceSuite) TestCastVote_MeritAlreadyResolved() {
	s.addCase(s.caseID, s.s1, s.alice)
	v := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
	_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
	s.Require().NoError(err)
	s.addCase(s.caseID, s.s2, s.carla)

	_, err = s.service.CastVote(s.ctx, s.merit(s.s2, s.carla, models.VoteRoleReviewer, "DENIED"))
	s.requireCode(err, dErrors.CodeConflict)

	batches, err := s.store.ListBatchesByCase(s.ctx, s.caseID)
	s.Require().NoError(err)
	merit := 0
	for _, b := range batches {
		if b.IsMerit() {
			merit++
		}
	}
	s.Equal(1, merit)
	s.Len(s.votes(), 1)

	decided := 0
	for _, action := range s.audit.Actions(s.caseID) {
		if action == string(audit.EventCaseDecided) {
			decided++
		}
	}
	s.Equal(1, decided)

	s.Run("not-admitted votes are still accepted", func() {
		s.cast(s.notAdmitted(s.s2, s.carla, models.VoteRoleReviewer, "P1"))
	})
}

func (s *ServiceSuite) TestCastVote_UnknownDecisionMakesNoWrites() {
	ctrl := gomock.NewController(s.T())
	catalog := mocks.NewMockDecisionCatalog(ctrl)
	catalog.EXPECT().ValidatePreliminary(id.DecisionCode("P9")).
		Return(dErrors.New(dErrors.CodeValidation, "unknown preliminary decision P9"))
	catalog.EXPECT().ValidateMerit(id.DecisionCode("GRANTED")).Return(nil)
	svc := New(s.store, s.store, s.store, s.store, WithDecisionCatalog(catalog))

	s.addCase(s.caseID, s.s1, s.alice)

	_, err := svc.CastVote(s.ctx, s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P9"))
	s.requireCode(err, dErrors.CodeValidation)
	s.Empty(s.votes())
	batches, err := s.store.ListBatchesByCase(s.ctx, s.caseID)
	s.Require().NoError(err)
	s.Empty(batches)

	_, err = svc.CastVote(s.ctx, s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
	s.Require().NoError(err)
	s.Len(s.votes(), 1)
}

func (s *ServiceSuite) TestCastVote_AuditFailureRollsBack() {
	ctrl := gomock.NewController(s.T())
	publisher := mocks.NewMockAuditPublisher(ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("audit store unavailable"))
	svc := New(s.store, s.store, s.store, s.store, WithAuditPublisher(publisher))

	s.addCase(s.caseID, s.s1, s.alice)
	s.addCase(s.caseID, s.s2, s.bruno)

	_, err := svc.CastVote(s.ctx, s.merit(s.s2, s.carla, models.VoteRoleReviewer, "GRANTED"))
	s.requireCode(err, dErrors.CodeInternal)

	s.Empty(s.votes())
	s.Equal([]id.MemberID{s.bruno}, s.activeDistribution().Reviewers)
	batches, err := s.store.ListBatchesByCase(s.ctx, s.caseID)
	s.Require().NoError(err)
	s.Empty(batches)
}

func (s *ServiceSuite) TestCastVote_Followers() {
	s.addCase(s.caseID, s.s1, s.alice)
	leader := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))

	s.Run("follower lands in the leader's voting result", func() {
		f := s.cast(s.follow(s.s1, s.bruno, leader.ID))
		s.Equal(*leader.BatchID, *f.BatchID)
		s.Equal(leader.ID, *f.FollowsVoteID)
		s.Require().NotNil(f.MeritDecision)
		s.Equal(id.DecisionCode("GRANTED"), *f.MeritDecision)
	})

	s.Run("following a follower is rejected", func() {
		followers, err := s.store.ListFollowers(s.ctx, leader.ID)
		s.Require().NoError(err)
		s.Require().Len(followers, 1)

		_, err = s.service.CastVote(s.ctx, s.follow(s.s1, s.carla, followers[0].ID))
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("following one's own vote is rejected", func() {
		other := s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P1")
		v := s.cast(other)
		cmd := s.follow(s.s1, s.alice, v.ID)
		cmd.Knowledge = models.KnowledgeNotAdmitted
		_, err := s.service.CastVote(s.ctx, cmd)
		s.requireCode(err, dErrors.CodeValidation)
	})

	s.Run("following an unknown vote is not found", func() {
		_, err := s.service.CastVote(s.ctx, s.follow(s.s1, s.carla, id.VoteID(uuid.New())))
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestCastVote_ReviewerJoinsDistribution() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.cast(s.merit(s.s1, s.bruno, models.VoteRoleReviewer, "GRANTED"))

	dist := s.activeDistribution()
	s.Equal(s.alice, dist.Rapporteur)
	s.Equal([]id.MemberID{s.bruno}, dist.Reviewers)
}

func (s *ServiceSuite) TestGroupVotes_Idempotent() {
	s.addCase(s.caseID, s.s1, s.alice)
	s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
	s.cast(s.notAdmitted(s.s1, s.bruno, models.VoteRoleVotingMember, "P1"))

	first, err := s.service.GroupVotes(s.ctx, s.caseID)
	s.Require().NoError(err)
	second, err := s.service.GroupVotes(s.ctx, s.caseID)
	s.Require().NoError(err)

	s.Len(first, 2)
	s.Equal(first, second)
	for _, v := range s.votes() {
		s.NotNil(v.BatchID)
	}
}

func (s *ServiceSuite) TestDeleteVote() {
	s.addCase(s.caseID, s.s1, s.alice)

	s.Run("last vote takes its voting result with it", func() {
		v := s.cast(s.notAdmitted(s.s1, s.bruno, models.VoteRoleVotingMember, "P1"))

		s.Require().NoError(s.service.DeleteVote(s.ctx, v.ID))

		_, err := s.store.FindBatch(s.ctx, *v.BatchID)
		s.Require().Error(err)
		s.Contains(s.audit.Actions(s.caseID), string(audit.EventBatchDeleted))
	})

	s.Run("followed vote cannot be deleted", func() {
		leader := s.cast(s.merit(s.s1, s.alice, models.VoteRoleRapporteur, "GRANTED"))
		s.cast(s.follow(s.s1, s.bruno, leader.ID))

		err := s.service.DeleteVote(s.ctx, leader.ID)
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("vote of a resolved voting result cannot be deleted", func() {
		v := s.cast(s.notAdmitted(s.s1, s.alice, models.VoteRoleRapporteur, "P2"))
		_, err := s.service.ResolveBatch(s.ctx, *v.BatchID, s.alice)
		s.Require().NoError(err)

		err = s.service.DeleteVote(s.ctx, v.ID)
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("unknown vote is not found", func() {
		err := s.service.DeleteVote(s.ctx, id.VoteID(uuid.New()))
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestDeleteVote_ReviewerRollback() {
	s.Run("reviewer without evidence elsewhere is removed", func() {
		s.addCase(s.caseID, s.s1, s.alice)
		s.addCase(s.caseID, s.s2, s.alice)
		v := s.cast(s.merit(s.s2, s.bruno, models.VoteRoleReviewer, "GRANTED"))
		s.Equal([]id.MemberID{s.bruno}, s.activeDistribution().Reviewers)

		s.Require().NoError(s.service.DeleteVote(s.ctx, v.ID))

		s.Empty(s.activeDistribution().Reviewers)
		s.Contains(s.audit.Actions(s.caseID), string(audit.EventReviewerRolledBack))
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.ReviewerRollbacks))
	})
}

func (s *ServiceSuite) TestDeleteVote_ReviewerWithEarlierEvidenceStays() {
	s.addCase(s.caseID, s.s1, s.alice)
	s.addCase(s.caseID, s.s2, s.bruno)
	s.addCase(s.caseID, s.s3, s.alice)
	s.Equal([]id.MemberID{s.bruno}, s.activeDistribution().Reviewers)

	v := s.cast(s.merit(s.s3, s.bruno, models.VoteRoleReviewer, "GRANTED"))
	s.Require().NoError(s.service.DeleteVote(s.ctx, v.ID))

	s.Equal([]id.MemberID{s.bruno}, s.activeDistribution().Reviewers)
	s.NotContains(s.audit.Actions(s.caseID), string(audit.EventReviewerRolledBack))
}

// Being this session's distributee is not evidence from another session, so
// the seat goes with the deleted vote.
func (s *ServiceSuite) TestDeleteVote_DistributeeWithoutEarlierEvidenceIsRemoved() {
	s.addCase(s.caseID, s.s1, s.alice)
	s.addCase(s.caseID, s.s2, s.bruno)
	s.Equal([]id.MemberID{s.bruno}, s.activeDistribution().Reviewers)

	v := s.cast(s.merit(s.s2, s.bruno, models.VoteRoleReviewer, "GRANTED"))
	s.Require().NoError(s.service.DeleteVote(s.ctx, v.ID))

	s.Empty(s.activeDistribution().Reviewers)
	s.Equal(s.alice, s.activeDistribution().Rapporteur)
	s.Contains(s.audit.Actions(s.caseID), string(audit.EventReviewerRolledBack))
}
