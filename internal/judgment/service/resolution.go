package service

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
	audit "appeals/pkg/platform/audit"
	"appeals/pkg/requestcontext"
)

const (
	resolutionManual    = "manual"
	resolutionUnanimity = "unanimity"
)

// ResolveBatch finalizes a voting result with the position of winner, who
// must hold a rapporteur or reviewer vote in it. The engine records the
// outcome announced by the board; it does not count a majority. Resolving
// the merit result advances the case to awaiting publication and decides the
// agenda entry of the session in which the winning vote was cast.
func (s *Service) ResolveBatch(ctx context.Context, batchID id.BatchID, winner id.MemberID) (batch *models.Batch, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "ResolveBatch",
		attribute.String("batch_id", batchID.String()),
		attribute.String("winner", winner.String()))
	defer func() { finishSpan(span, err) }()

	if winner.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "winning member is required")
	}

	err = s.runInTx(ctx, "resolve_batch", func(txCtx context.Context) error {
		b, err := s.lockBatch(txCtx, batchID)
		if err != nil {
			return err
		}
		if err := b.CanResolve(); err != nil {
			return err
		}
		votes, err := s.store.ListVotesByBatch(txCtx, b.ID)
		if err != nil {
			return wrapStoreErr(err, "vote")
		}
		events, err := s.resolve(txCtx, b, votes, winner, false)
		if err != nil {
			return err
		}
		batch = b
		return s.emit(txCtx, events...)
	})
	if err != nil {
		return nil, err
	}

	s.afterResolve(ctx, batch, resolutionManual, start)
	return batch, nil
}

// DeclareUnanimous resolves a voting result holding a single analyst vote on
// behalf of the whole session: every eligible roster member other than the
// rapporteur, the reviewers and the sole voter receives a present
// voting-member vote following the sole vote, and the result is resolved
// with the sole voter as winner and no tie-break. All of it commits or none
// of it does.
func (s *Service) DeclareUnanimous(ctx context.Context, batchID id.BatchID) (batch *models.Batch, err error) {
	start := time.Now()
	ctx, span := s.startSpan(ctx, "DeclareUnanimous", attribute.String("batch_id", batchID.String()))
	defer func() { finishSpan(span, err) }()

	var synthesized int
	err = s.runInTx(ctx, "declare_unanimous", func(txCtx context.Context) error {
		b, err := s.lockBatch(txCtx, batchID)
		if err != nil {
			return err
		}
		if err := b.CanResolve(); err != nil {
			return err
		}
		votes, err := s.store.ListVotesByBatch(txCtx, b.ID)
		if err != nil {
			return wrapStoreErr(err, "vote")
		}
		if len(votes) != 1 {
			return dErrors.New(dErrors.CodeInvariantViolation, "unanimity requires exactly one vote in the voting result")
		}
		sole := votes[0]
		if !sole.Role.IsAnalyst() {
			return dErrors.New(dErrors.CodeInvariantViolation, "unanimity requires the sole vote to come from the rapporteur or a reviewer")
		}

		followers, err := s.synthesizeFollowers(txCtx, b, sole)
		if err != nil {
			return err
		}
		synthesized = len(followers)

		events, err := s.resolve(txCtx, b, append([]*models.Vote{sole}, followers...), sole.MemberID, true)
		if err != nil {
			return err
		}
		batch = b
		events = append(events, audit.ComplianceEvent{
			CaseID:    b.CaseID,
			SessionID: sole.SessionID,
			MemberID:  sole.MemberID,
			Subject:   b.ID.String(),
			Action:    string(audit.EventUnanimityDeclared),
			Decision:  strconv.Itoa(len(followers)),
		})
		return s.emit(txCtx, events...)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementVotesCast(synthesized)
	}
	s.afterResolve(ctx, batch, resolutionUnanimity, start)
	return batch, nil
}

// synthesizeFollowers creates the following votes of a unanimity declaration.
// Members who already hold a vote in the same bucket keep it and are skipped.
func (s *Service) synthesizeFollowers(ctx context.Context, b *models.Batch, sole *models.Vote) ([]*models.Vote, error) {
	roster, err := s.roster.SessionRoster(ctx, sole.SessionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session roster")
	}
	dist, err := optional(s.store.FindActiveDistribution(ctx, b.CaseID))
	if err != nil {
		return nil, wrapStoreErr(err, "distribution")
	}
	existing, err := s.store.ListVotesByCase(ctx, b.CaseID)
	if err != nil {
		return nil, wrapStoreErr(err, "vote")
	}

	now := requestcontext.Now(ctx)
	var followers []*models.Vote
	seen := map[id.MemberID]bool{sole.MemberID: true}
	for _, member := range roster {
		if !member.Eligible || seen[member.ID] {
			continue
		}
		seen[member.ID] = true
		if dist != nil && dist.IsAnalyst(member.ID) {
			continue
		}
		follower := &models.Vote{
			ID:            id.VoteID(uuid.New()),
			CaseID:        sole.CaseID,
			SessionID:     sole.SessionID,
			MemberID:      member.ID,
			Role:          models.VoteRoleVotingMember,
			Participation: models.ParticipationPresent,
			Text:          sole.Text,
			CreatedAt:     now,
		}
		follower.FollowFrom(sole)
		if slices.ContainsFunc(existing, follower.ConflictsWith) {
			continue
		}
		batchID := b.ID
		follower.BatchID = &batchID
		if err := s.store.CreateVote(ctx, follower); err != nil {
			return nil, wrapStoreErr(err, "vote")
		}
		followers = append(followers, follower)
	}
	return followers, nil
}

// resolve applies a resolution to b, which the caller has locked and checked
// open. votes are all votes of b.
func (s *Service) resolve(ctx context.Context, b *models.Batch, votes []*models.Vote, winner id.MemberID, unanimous bool) ([]audit.ComplianceEvent, error) {
	if len(votes) == 0 {
		return nil, dErrors.New(dErrors.CodeConflict, "voting result has no votes")
	}
	winning, err := models.FindWinningVote(votes, winner)
	if err != nil {
		return nil, err
	}
	leaders, err := s.leadersOf(ctx, votes)
	if err != nil {
		return nil, err
	}

	resolution := models.Resolution{
		WinningVote:      winning,
		Tally:            models.ComputeTally(votes, leaders),
		DecidedSessionID: winning.SessionID,
	}
	if !unanimous {
		resolution.QualityVoteBy = models.DetectQualityVote(votes)
	}
	now := requestcontext.Now(ctx)
	b.ApplyResolution(resolution, now)
	if err := s.store.UpdateBatch(ctx, b); err != nil {
		return nil, wrapStoreErr(err, "voting result")
	}

	events := []audit.ComplianceEvent{{
		CaseID:    b.CaseID,
		SessionID: winning.SessionID,
		MemberID:  winning.MemberID,
		Subject:   b.ID.String(),
		Action:    string(audit.EventBatchResolved),
		Decision:  voteDecision(winning),
	}}
	if !b.IsMerit() {
		return events, nil
	}

	if err := s.stages.MarkAwaitingPublication(ctx, b.CaseID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance case stage")
	}
	decided, err := s.decideEntry(ctx, b.CaseID, winning.SessionID, now)
	if err != nil {
		return nil, err
	}
	if decided != nil {
		events = append(events, decidedEvent(decided))
	}
	return events, nil
}

// leadersOf loads the votes followed by any of votes.
func (s *Service) leadersOf(ctx context.Context, votes []*models.Vote) (map[id.VoteID]*models.Vote, error) {
	leaders := make(map[id.VoteID]*models.Vote, len(votes))
	for _, v := range votes {
		leaders[v.ID] = v
	}
	for _, v := range votes {
		if v.FollowsVoteID == nil {
			continue
		}
		if _, ok := leaders[*v.FollowsVoteID]; ok {
			continue
		}
		leader, err := optional(s.store.FindVote(ctx, *v.FollowsVoteID))
		if err != nil {
			return nil, wrapStoreErr(err, "vote")
		}
		if leader != nil {
			leaders[leader.ID] = leader
		}
	}
	return leaders, nil
}

func (s *Service) afterResolve(ctx context.Context, b *models.Batch, path string, start time.Time) {
	if s.metrics != nil {
		s.metrics.IncrementBatchResolved(string(b.Category), path)
		s.metrics.ObserveResolve(start)
	}
	s.logEvent(ctx, audit.EventBatchResolved,
		"case_id", b.CaseID,
		"batch_id", b.ID,
		"category", b.Category,
		"path", path,
		"quality_vote_used", b.QualityVoteUsed,
		"total_votes", b.Tally.TotalVotes)
}

// DeleteBatch deletes a voting result with all of its votes, followers
// first, running reviewer rollback for each vote. Refused once the case is
// decided on any agenda.
func (s *Service) DeleteBatch(ctx context.Context, batchID id.BatchID) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteBatch", attribute.String("batch_id", batchID.String()))
	defer func() { finishSpan(span, err) }()

	var deletedVotes int
	var caseID id.CaseID
	err = s.runInTx(ctx, "delete_batch", func(txCtx context.Context) error {
		b, err := s.lockBatch(txCtx, batchID)
		if err != nil {
			return err
		}
		entries, err := s.store.ListEntriesByCase(txCtx, b.CaseID)
		if err != nil {
			return wrapStoreErr(err, "agenda entry")
		}
		for _, e := range entries {
			if e.Status.IsTerminal() {
				return dErrors.New(dErrors.CodeConflict, "case is already decided")
			}
		}

		votes, err := s.store.ListVotesByBatch(txCtx, b.ID)
		if err != nil {
			return wrapStoreErr(err, "vote")
		}
		if err := s.checkFollowersContained(txCtx, b, votes); err != nil {
			return err
		}
		slices.SortStableFunc(votes, func(a, c *models.Vote) int {
			switch {
			case a.IsFollower() == c.IsFollower():
				return 0
			case a.IsFollower():
				return -1
			default:
				return 1
			}
		})

		var events []audit.ComplianceEvent
		for _, v := range votes {
			voteEvents, err := s.removeVote(txCtx, v)
			if err != nil {
				return err
			}
			events = append(events, voteEvents...)
		}
		if err := s.store.DeleteBatch(txCtx, b.ID); err != nil {
			return wrapStoreErr(err, "voting result")
		}
		events = append(events, audit.ComplianceEvent{
			CaseID:   b.CaseID,
			Subject:  b.ID.String(),
			Action:   string(audit.EventBatchDeleted),
			Decision: strconv.Itoa(len(votes)),
		})
		deletedVotes = len(votes)
		caseID = b.CaseID
		return s.emit(txCtx, events...)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementVotesDeleted(deletedVotes)
	}
	s.logEvent(ctx, audit.EventBatchDeleted, "case_id", caseID, "batch_id", batchID, "votes", deletedVotes)
	return nil
}

// checkFollowersContained rejects the deletion when a vote outside b follows
// one of its votes.
func (s *Service) checkFollowersContained(ctx context.Context, b *models.Batch, votes []*models.Vote) error {
	for _, v := range votes {
		followers, err := s.store.ListFollowers(ctx, v.ID)
		if err != nil {
			return wrapStoreErr(err, "vote")
		}
		for _, f := range followers {
			if f.BatchID == nil || *f.BatchID != b.ID {
				return dErrors.New(dErrors.CodeConflict, "a vote of this voting result is followed from another voting result")
			}
		}
	}
	return nil
}

// lockBatch loads a batch, locks its case and re-reads the batch under the lock.
func (s *Service) lockBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	b, err := s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, wrapStoreErr(err, "voting result")
	}
	if err := s.store.LockCase(ctx, b.CaseID); err != nil {
		return nil, wrapStoreErr(err, "case")
	}
	b, err = s.store.FindBatch(ctx, batchID)
	if err != nil {
		return nil, wrapStoreErr(err, "voting result")
	}
	return b, nil
}
