package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	"appeals/pkg/platform/sentinel"
)

// -----------------------------------------------------------------------------
// Votes
// -----------------------------------------------------------------------------

const voteColumns = `id, case_id, session_id, member_id, role, participation, knowledge,
	preliminary_decision, merit_decision, body, follows_vote_id, batch_id, created_at`

func (s *Postgres) CreateVote(ctx context.Context, v *models.Vote) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO votes (`+voteColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, voteArgs(v)...)
	if err != nil {
		return mapWriteErr(err, "insert vote")
	}
	return nil
}

// UpdateVote rewrites the grouping of a vote. The other columns are fixed
// once cast.
func (s *Postgres) UpdateVote(ctx context.Context, v *models.Vote) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE votes SET batch_id = $2 WHERE id = $1
	`, uuid.UUID(v.ID), nullBatch(v.BatchID))
	if err != nil {
		return mapWriteErr(err, "update vote")
	}
	return requireAffected(res, "vote")
}

func (s *Postgres) DeleteVote(ctx context.Context, voteID id.VoteID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM votes WHERE id = $1`, uuid.UUID(voteID))
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	return requireAffected(res, "vote")
}

func (s *Postgres) FindVote(ctx context.Context, voteID id.VoteID) (*models.Vote, error) {
	v, err := scanVote(s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+voteColumns+` FROM votes WHERE id = $1
	`, uuid.UUID(voteID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vote %s: %w", voteID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find vote: %w", err)
	}
	return v, nil
}

func (s *Postgres) ListVotesByCase(ctx context.Context, caseID id.CaseID) ([]*models.Vote, error) {
	return s.listVotes(ctx, `SELECT `+voteColumns+` FROM votes WHERE case_id = $1 ORDER BY seq`, uuid.UUID(caseID))
}

func (s *Postgres) ListVotesByBatch(ctx context.Context, batchID id.BatchID) ([]*models.Vote, error) {
	return s.listVotes(ctx, `SELECT `+voteColumns+` FROM votes WHERE batch_id = $1 ORDER BY seq`, uuid.UUID(batchID))
}

func (s *Postgres) ListFollowers(ctx context.Context, voteID id.VoteID) ([]*models.Vote, error) {
	return s.listVotes(ctx, `SELECT `+voteColumns+` FROM votes WHERE follows_vote_id = $1 ORDER BY seq`, uuid.UUID(voteID))
}

func (s *Postgres) listVotes(ctx context.Context, query string, arg any) ([]*models.Vote, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []*models.Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return out, nil
}

func voteArgs(v *models.Vote) []any {
	var follows uuid.NullUUID
	if v.FollowsVoteID != nil {
		follows = uuid.NullUUID{UUID: uuid.UUID(*v.FollowsVoteID), Valid: true}
	}
	return []any{
		uuid.UUID(v.ID),
		uuid.UUID(v.CaseID),
		uuid.UUID(v.SessionID),
		uuid.UUID(v.MemberID),
		string(v.Role),
		string(v.Participation),
		string(v.Knowledge),
		nullCode(v.PreliminaryDecision),
		nullCode(v.MeritDecision),
		v.Text,
		follows,
		nullBatch(v.BatchID),
		v.CreatedAt,
	}
}

func scanVote(row rowScanner) (*models.Vote, error) {
	var (
		voteID, caseID, sessionID, memberID uuid.UUID
		role, participation, knowledge      string
		preliminary, merit                  sql.NullString
		follows, batchID                    uuid.NullUUID
		v                                   models.Vote
	)
	if err := row.Scan(&voteID, &caseID, &sessionID, &memberID, &role, &participation, &knowledge,
		&preliminary, &merit, &v.Text, &follows, &batchID, &v.CreatedAt); err != nil {
		return nil, err
	}
	v.ID = id.VoteID(voteID)
	v.CaseID = id.CaseID(caseID)
	v.SessionID = id.SessionID(sessionID)
	v.MemberID = id.MemberID(memberID)
	v.Role = models.VoteRole(role)
	v.Participation = models.Participation(participation)
	v.Knowledge = models.Knowledge(knowledge)
	v.PreliminaryDecision = codeFrom(preliminary)
	v.MeritDecision = codeFrom(merit)
	if follows.Valid {
		leader := id.VoteID(follows.UUID)
		v.FollowsVoteID = &leader
	}
	if batchID.Valid {
		b := id.BatchID(batchID.UUID)
		v.BatchID = &b
	}
	return &v, nil
}

// -----------------------------------------------------------------------------
// Voting results
// -----------------------------------------------------------------------------

const batchColumns = `id, case_id, category, preliminary_decision, status, winning_vote_id, winning_member_id,
	quality_vote_used, quality_vote_member_id, total_votes, abstentions, absences, recusals, suspicions,
	decided_session_id, resolved_at, created_at, updated_at`

func (s *Postgres) CreateBatch(ctx context.Context, b *models.Batch) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO batches (`+batchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, batchArgs(b)...)
	if err != nil {
		return mapWriteErr(err, "insert voting result")
	}
	return nil
}

// UpdateBatch stores the status and resolution of a batch. Its bucket is
// fixed at creation.
func (s *Postgres) UpdateBatch(ctx context.Context, b *models.Batch) error {
	args := batchArgs(b)
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE batches SET status = $2, winning_vote_id = $3, winning_member_id = $4, quality_vote_used = $5,
			quality_vote_member_id = $6, total_votes = $7, abstentions = $8, absences = $9, recusals = $10,
			suspicions = $11, decided_session_id = $12, resolved_at = $13, updated_at = $14
		WHERE id = $1
	`, append([]any{args[0]}, append(args[4:16], b.UpdatedAt)...)...)
	if err != nil {
		return mapWriteErr(err, "update voting result")
	}
	return requireAffected(res, "voting result")
}

func (s *Postgres) DeleteBatch(ctx context.Context, batchID id.BatchID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, uuid.UUID(batchID))
	if err != nil {
		return fmt.Errorf("delete voting result: %w", err)
	}
	return requireAffected(res, "voting result")
}

func (s *Postgres) FindBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error) {
	b, err := scanBatch(s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+batchColumns+` FROM batches WHERE id = $1
	`, uuid.UUID(batchID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("voting result %s: %w", batchID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find voting result: %w", err)
	}
	return b, nil
}

func (s *Postgres) ListBatchesByCase(ctx context.Context, caseID id.CaseID) ([]*models.Batch, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+batchColumns+` FROM batches WHERE case_id = $1 ORDER BY seq
	`, uuid.UUID(caseID))
	if err != nil {
		return nil, fmt.Errorf("list voting results: %w", err)
	}
	defer rows.Close()

	var out []*models.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voting result: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voting results: %w", err)
	}
	return out, nil
}

func batchArgs(b *models.Batch) []any {
	var winningVote, winningMember, qualityMember, decidedSession uuid.NullUUID
	if b.WinningVoteID != nil {
		winningVote = uuid.NullUUID{UUID: uuid.UUID(*b.WinningVoteID), Valid: true}
	}
	if b.WinningMemberID != nil {
		winningMember = uuid.NullUUID{UUID: uuid.UUID(*b.WinningMemberID), Valid: true}
	}
	if b.QualityVoteMemberID != nil {
		qualityMember = uuid.NullUUID{UUID: uuid.UUID(*b.QualityVoteMemberID), Valid: true}
	}
	if b.DecidedSessionID != nil {
		decidedSession = uuid.NullUUID{UUID: uuid.UUID(*b.DecidedSessionID), Valid: true}
	}
	var resolvedAt sql.NullTime
	if b.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *b.ResolvedAt, Valid: true}
	}
	return []any{
		uuid.UUID(b.ID),
		uuid.UUID(b.CaseID),
		string(b.Category),
		nullCode(b.PreliminaryDecision),
		string(b.Status),
		winningVote,
		winningMember,
		b.QualityVoteUsed,
		qualityMember,
		b.Tally.TotalVotes,
		b.Tally.Abstentions,
		b.Tally.Absences,
		b.Tally.Recusals,
		b.Tally.Suspicions,
		decidedSession,
		resolvedAt,
		b.CreatedAt,
		b.UpdatedAt,
	}
}

func scanBatch(row rowScanner) (*models.Batch, error) {
	var (
		batchID, caseID                                       uuid.UUID
		category, status                                      string
		preliminary                                           sql.NullString
		winningVote, winningMember, qualityMember, decidedSes uuid.NullUUID
		resolvedAt                                            sql.NullTime
		b                                                     models.Batch
	)
	if err := row.Scan(&batchID, &caseID, &category, &preliminary, &status, &winningVote, &winningMember,
		&b.QualityVoteUsed, &qualityMember, &b.Tally.TotalVotes, &b.Tally.Abstentions, &b.Tally.Absences,
		&b.Tally.Recusals, &b.Tally.Suspicions, &decidedSes, &resolvedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.ID = id.BatchID(batchID)
	b.CaseID = id.CaseID(caseID)
	b.Category = models.BatchCategory(category)
	b.Status = models.BatchStatus(status)
	b.PreliminaryDecision = codeFrom(preliminary)
	if winningVote.Valid {
		v := id.VoteID(winningVote.UUID)
		b.WinningVoteID = &v
	}
	if winningMember.Valid {
		m := id.MemberID(winningMember.UUID)
		b.WinningMemberID = &m
	}
	if qualityMember.Valid {
		m := id.MemberID(qualityMember.UUID)
		b.QualityVoteMemberID = &m
	}
	if decidedSes.Valid {
		sessionID := id.SessionID(decidedSes.UUID)
		b.DecidedSessionID = &sessionID
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		b.ResolvedAt = &t
	}
	return &b, nil
}

func nullCode(c *id.DecisionCode) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}

func codeFrom(ns sql.NullString) *id.DecisionCode {
	if !ns.Valid {
		return nil
	}
	return id.DecisionCode(ns.String).Ptr()
}

func nullBatch(b *id.BatchID) uuid.NullUUID {
	if b == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*b), Valid: true}
}
