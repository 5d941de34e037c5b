package service

import (
	"context"
	"errors"
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

const duplicateVoteMessage = "member already voted on this case for this decision"

// CastVote records a vote and groups it into its voting result in the same
// transaction. A reviewer vote adds the member to the case's active reviewer
// set. A case has a single merit result, so admitted votes are rejected once
// it is resolved. Duplicate votes are re-checked under the case lock so the
// second of two racing writers fails.
func (s *Service) CastVote(ctx context.Context, cmd CastVoteCommand) (vote *models.Vote, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "CastVote",
		attribute.String("case_id", cmd.CaseID.String()),
		attribute.String("session_id", cmd.SessionID.String()),
		attribute.String("role", string(cmd.Role)))
	defer func() { finishSpan(span, err) }()

	if err := s.validateDecisions(cmd.PreliminaryDecision, cmd.MeritDecision); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	candidate, err := models.NewVote(id.VoteID(uuid.New()), cmd.params(), now)
	if err != nil {
		return nil, asValidation(err)
	}

	err = s.runInTx(ctx, "cast_vote", func(txCtx context.Context) error {
		if err := s.store.LockCase(txCtx, cmd.CaseID); err != nil {
			return wrapStoreErr(err, "case")
		}
		entry, err := optional(s.store.FindEntry(txCtx, cmd.CaseID, cmd.SessionID))
		if err != nil {
			return wrapStoreErr(err, "agenda entry")
		}
		if entry == nil {
			return dErrors.New(dErrors.CodeConflict, "case is not on the session agenda")
		}
		if entry.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeConflict, "case is already decided in this session")
		}
		if candidate.IsFollower() {
			if err := s.attachLeader(txCtx, candidate); err != nil {
				return err
			}
		}

		if candidate.Knowledge == models.KnowledgeAdmitted {
			batches, err := s.store.ListBatchesByCase(txCtx, cmd.CaseID)
			if err != nil {
				return wrapStoreErr(err, "voting result")
			}
			if models.HasResolvedMerit(batches) {
				return dErrors.New(dErrors.CodeConflict, "case already has a resolved merit result")
			}
		}

		existing, err := s.store.ListVotesByCase(txCtx, cmd.CaseID)
		if err != nil {
			return wrapStoreErr(err, "vote")
		}
		for _, v := range existing {
			if candidate.ConflictsWith(v) {
				return dErrors.New(dErrors.CodeConflict, duplicateVoteMessage)
			}
		}
		if err := s.store.CreateVote(txCtx, candidate); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, duplicateVoteMessage)
			}
			return wrapStoreErr(err, "vote")
		}

		if candidate.Role == models.VoteRoleReviewer {
			if err := s.promoteReviewer(txCtx, candidate, now); err != nil {
				return err
			}
		}

		grouped, err := s.groupVotes(txCtx, cmd.CaseID, now)
		if err != nil {
			return err
		}
		if batchID, ok := grouped[candidate.ID]; ok {
			candidate.BatchID = &batchID
		}

		vote = candidate
		return s.emit(txCtx, audit.ComplianceEvent{
			CaseID:    candidate.CaseID,
			SessionID: candidate.SessionID,
			MemberID:  candidate.MemberID,
			Subject:   candidate.ID.String(),
			Action:    string(audit.EventVoteCast),
			Decision:  voteDecision(candidate),
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementVotesCast(1)
		s.metrics.ObserveCastVote(start)
	}
	s.logEvent(ctx, audit.EventVoteCast,
		"case_id", vote.CaseID,
		"session_id", vote.SessionID,
		"member_id", vote.MemberID,
		"vote_id", vote.ID,
		"role", vote.Role)
	return vote, nil
}

// attachLeader resolves the followed vote and copies its outcome onto v.
func (s *Service) attachLeader(ctx context.Context, v *models.Vote) error {
	leader, err := s.store.FindVote(ctx, *v.FollowsVoteID)
	if err != nil {
		return wrapStoreErr(err, "followed vote")
	}
	if leader.CaseID != v.CaseID {
		return dErrors.New(dErrors.CodeValidation, "followed vote belongs to another case")
	}
	if leader.IsFollower() {
		return dErrors.New(dErrors.CodeValidation, "cannot follow a vote that follows another vote")
	}
	if leader.MemberID == v.MemberID {
		return dErrors.New(dErrors.CodeValidation, "a member cannot follow their own vote")
	}
	v.FollowFrom(leader)
	return nil
}

// promoteReviewer adds the voter to the active distribution's reviewer set.
func (s *Service) promoteReviewer(ctx context.Context, v *models.Vote, now time.Time) error {
	dist, err := optional(s.store.FindActiveDistribution(ctx, v.CaseID))
	if err != nil {
		return wrapStoreErr(err, "distribution")
	}
	if dist == nil || !dist.AddReviewer(v.MemberID) {
		return nil
	}
	dist.UpdatedAt = now
	if err := s.store.UpdateDistribution(ctx, dist); err != nil {
		return wrapStoreErr(err, "distribution")
	}
	return nil
}

func (s *Service) validateDecisions(preliminary, merit *id.DecisionCode) error {
	if s.catalog == nil {
		return nil
	}
	if preliminary != nil {
		if err := s.catalog.ValidatePreliminary(*preliminary); err != nil {
			return err
		}
	}
	if merit != nil {
		if err := s.catalog.ValidateMerit(*merit); err != nil {
			return err
		}
	}
	return nil
}

func voteDecision(v *models.Vote) string {
	switch {
	case v.MeritDecision != nil:
		return v.MeritDecision.String()
	case v.PreliminaryDecision != nil:
		return v.PreliminaryDecision.String()
	default:
		return string(v.Knowledge)
	}
}

// GroupVotes attaches every ungrouped vote of a case to the open voting
// result of its bucket, creating results as needed. Running it again without
// new votes changes nothing.
func (s *Service) GroupVotes(ctx context.Context, caseID id.CaseID) (batches []*models.Batch, err error) {
	ctx, span := s.startSpan(ctx, "GroupVotes", attribute.String("case_id", caseID.String()))
	defer func() { finishSpan(span, err) }()

	now := requestcontext.Now(ctx)
	err = s.runInTx(ctx, "group_votes", func(txCtx context.Context) error {
		if err := s.store.LockCase(txCtx, caseID); err != nil {
			return wrapStoreErr(err, "case")
		}
		if _, err := s.store.FindCase(txCtx, caseID); err != nil {
			return wrapStoreErr(err, "case")
		}
		if _, err := s.groupVotes(txCtx, caseID, now); err != nil {
			return err
		}
		batches, err = s.store.ListBatchesByCase(txCtx, caseID)
		return wrapStoreErr(err, "voting result")
	})
	if err != nil {
		return nil, err
	}
	return batches, nil
}

// groupVotes partitions the case's ungrouped votes into buckets and attaches
// them to the open batch of each bucket. It returns the batch assigned to
// each vote it grouped.
func (s *Service) groupVotes(ctx context.Context, caseID id.CaseID, now time.Time) (map[id.VoteID]id.BatchID, error) {
	votes, err := s.store.ListVotesByCase(ctx, caseID)
	if err != nil {
		return nil, wrapStoreErr(err, "vote")
	}
	var ungrouped []*models.Vote
	for _, v := range votes {
		if !v.IsGrouped() {
			ungrouped = append(ungrouped, v)
		}
	}
	if len(ungrouped) == 0 {
		return nil, nil
	}

	batches, err := s.store.ListBatchesByCase(ctx, caseID)
	if err != nil {
		return nil, wrapStoreErr(err, "voting result")
	}
	open := make(map[models.BucketKey]*models.Batch)
	for _, b := range batches {
		if b.IsOpen() {
			open[b.Key()] = b
		}
	}

	assigned := make(map[id.VoteID]id.BatchID, len(ungrouped))
	for _, v := range ungrouped {
		key := v.Bucket()
		batch, ok := open[key]
		if !ok {
			batch = models.NewBatch(id.BatchID(uuid.New()), caseID, key, now)
			if err := s.store.CreateBatch(ctx, batch); err != nil {
				return nil, wrapStoreErr(err, "voting result")
			}
			open[key] = batch
		}
		batchID := batch.ID
		v.BatchID = &batchID
		if err := s.store.UpdateVote(ctx, v); err != nil {
			return nil, wrapStoreErr(err, "vote")
		}
		assigned[v.ID] = batchID
	}
	return assigned, nil
}

// DeleteVote removes a vote. Reviewer rollback runs first; a voting result
// left without votes is destroyed. Votes of resolved results and votes that
// others follow cannot be deleted.
func (s *Service) DeleteVote(ctx context.Context, voteID id.VoteID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteVote", attribute.String("vote_id", voteID.String()))
	defer func() { finishSpan(span, err) }()

	var deleted *models.Vote
	err = s.runInTx(ctx, "delete_vote", func(txCtx context.Context) error {
		v, err := s.lockVote(txCtx, voteID)
		if err != nil {
			return err
		}
		var batch *models.Batch
		if v.BatchID != nil {
			batch, err = s.store.FindBatch(txCtx, *v.BatchID)
			if err != nil {
				return wrapStoreErr(err, "voting result")
			}
			if batch.IsResolved() {
				return dErrors.New(dErrors.CodeConflict, "vote belongs to a resolved voting result")
			}
		}
		followers, err := s.store.ListFollowers(txCtx, v.ID)
		if err != nil {
			return wrapStoreErr(err, "vote")
		}
		if len(followers) > 0 {
			return dErrors.New(dErrors.CodeConflict, "vote is followed by other votes")
		}

		events, err := s.removeVote(txCtx, v)
		if err != nil {
			return err
		}
		if batch != nil {
			destroyed, err := s.destroyIfEmpty(txCtx, batch)
			if err != nil {
				return err
			}
			if destroyed {
				events = append(events, audit.ComplianceEvent{
					CaseID:  batch.CaseID,
					Subject: batch.ID.String(),
					Action:  string(audit.EventBatchDeleted),
					Reason:  "last vote deleted",
				})
			}
		}
		deleted = v
		return s.emit(txCtx, events...)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementVotesDeleted(1)
	}
	s.logEvent(ctx, audit.EventVoteDeleted,
		"case_id", deleted.CaseID,
		"member_id", deleted.MemberID,
		"vote_id", deleted.ID)
	return nil
}

// lockVote loads a vote, locks its case and re-reads it under the lock.
func (s *Service) lockVote(ctx context.Context, voteID id.VoteID) (*models.Vote, error) {
	v, err := s.store.FindVote(ctx, voteID)
	if err != nil {
		return nil, wrapStoreErr(err, "vote")
	}
	if err := s.store.LockCase(ctx, v.CaseID); err != nil {
		return nil, wrapStoreErr(err, "case")
	}
	v, err = s.store.FindVote(ctx, voteID)
	if err != nil {
		return nil, wrapStoreErr(err, "vote")
	}
	return v, nil
}

// removeVote runs reviewer rollback for v and deletes it.
func (s *Service) removeVote(ctx context.Context, v *models.Vote) ([]audit.ComplianceEvent, error) {
	rolledBack, err := s.rollbackReviewer(ctx, v)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteVote(ctx, v.ID); err != nil {
		return nil, wrapStoreErr(err, "vote")
	}
	events := []audit.ComplianceEvent{{
		CaseID:    v.CaseID,
		SessionID: v.SessionID,
		MemberID:  v.MemberID,
		Subject:   v.ID.String(),
		Action:    string(audit.EventVoteDeleted),
	}}
	if rolledBack {
		events = append(events, audit.ComplianceEvent{
			CaseID:    v.CaseID,
			SessionID: v.SessionID,
			MemberID:  v.MemberID,
			Subject:   v.ID.String(),
			Action:    string(audit.EventReviewerRolledBack),
		})
	}
	return events, nil
}

func (s *Service) destroyIfEmpty(ctx context.Context, batch *models.Batch) (bool, error) {
	remaining, err := s.store.ListVotesByBatch(ctx, batch.ID)
	if err != nil {
		return false, wrapStoreErr(err, "vote")
	}
	if len(remaining) > 0 {
		return false, nil
	}
	if err := s.store.DeleteBatch(ctx, batch.ID); err != nil {
		return false, wrapStoreErr(err, "voting result")
	}
	return true, nil
}
