package models

import (
	"time"

	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

// BucketKey identifies the decision bucket a vote belongs to. Preliminary is
// empty for merit buckets and for not-admitted votes without a preliminary
// decision.
type BucketKey struct {
	Category    BatchCategory
	Preliminary id.DecisionCode
}

// Tally holds the aggregate counts stamped on a resolved batch.
type Tally struct {
	TotalVotes  int `json:"total_votes"`
	Abstentions int `json:"abstentions"`
	Absences    int `json:"absences"`
	Recusals    int `json:"recusals"`
	Suspicions  int `json:"suspicions"`
}

// Batch (voting result) groups the votes of one case decided together under
// one decision category.
//
// Invariants:
//   - At most one open batch per case and bucket key
//   - A merit batch carries no preliminary decision
//   - Resolved is terminal; resolution fields are only set when resolved
//   - A batch without votes does not exist
type Batch struct {
	ID                  id.BatchID       `json:"id"`
	CaseID              id.CaseID        `json:"case_id"`
	Category            BatchCategory    `json:"category"`
	PreliminaryDecision *id.DecisionCode `json:"preliminary_decision,omitempty"`
	Status              BatchStatus      `json:"status"`
	WinningVoteID       *id.VoteID       `json:"winning_vote_id,omitempty"`
	WinningMemberID     *id.MemberID     `json:"winning_member_id,omitempty"`
	QualityVoteUsed     bool             `json:"quality_vote_used"`
	QualityVoteMemberID *id.MemberID     `json:"quality_vote_member_id,omitempty"`
	Tally               Tally            `json:"tally"`
	DecidedSessionID    *id.SessionID    `json:"decided_session_id,omitempty"`
	ResolvedAt          *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// NewBatch opens a batch for the given bucket.
func NewBatch(batchID id.BatchID, caseID id.CaseID, key BucketKey, now time.Time) *Batch {
	b := &Batch{
		ID:        batchID,
		CaseID:    caseID,
		Category:  key.Category,
		Status:    BatchStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if key.Category == BatchCategoryNotAdmitted && key.Preliminary != "" {
		code := key.Preliminary
		b.PreliminaryDecision = &code
	}
	return b
}

// Key returns the bucket the batch groups.
func (b *Batch) Key() BucketKey {
	key := BucketKey{Category: b.Category}
	if b.PreliminaryDecision != nil {
		key.Preliminary = *b.PreliminaryDecision
	}
	return key
}

func (b *Batch) IsOpen() bool {
	return b.Status == BatchStatusOpen
}

func (b *Batch) IsResolved() bool {
	return b.Status == BatchStatusResolved
}

func (b *Batch) IsMerit() bool {
	return b.Category == BatchCategoryMerit
}

// CanResolve checks the batch is still accepting a resolution.
func (b *Batch) CanResolve() error {
	if !b.IsOpen() {
		return dErrors.New(dErrors.CodeConflict, "voting result is already resolved")
	}
	return nil
}

// Resolution is the outcome recorded on a batch.
type Resolution struct {
	WinningVote      *Vote
	QualityVoteBy    *id.MemberID
	Tally            Tally
	DecidedSessionID id.SessionID
}

// ApplyResolution marks the batch resolved. Call CanResolve first.
func (b *Batch) ApplyResolution(r Resolution, now time.Time) {
	voteID := r.WinningVote.ID
	memberID := r.WinningVote.MemberID
	sessionID := r.DecidedSessionID
	b.Status = BatchStatusResolved
	b.WinningVoteID = &voteID
	b.WinningMemberID = &memberID
	b.QualityVoteUsed = r.QualityVoteBy != nil
	b.QualityVoteMemberID = nil
	if r.QualityVoteBy != nil {
		qv := *r.QualityVoteBy
		b.QualityVoteMemberID = &qv
	}
	b.Tally = r.Tally
	b.DecidedSessionID = &sessionID
	b.ResolvedAt = &now
	b.UpdatedAt = now
}

// Clone returns a deep copy.
func (b *Batch) Clone() *Batch {
	c := *b
	c.PreliminaryDecision = cloneCode(b.PreliminaryDecision)
	if b.WinningVoteID != nil {
		v := *b.WinningVoteID
		c.WinningVoteID = &v
	}
	if b.WinningMemberID != nil {
		m := *b.WinningMemberID
		c.WinningMemberID = &m
	}
	if b.QualityVoteMemberID != nil {
		m := *b.QualityVoteMemberID
		c.QualityVoteMemberID = &m
	}
	if b.DecidedSessionID != nil {
		s := *b.DecidedSessionID
		c.DecidedSessionID = &s
	}
	if b.ResolvedAt != nil {
		t := *b.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// ComputeTally counts the batch's votes by participation. A present vote is
// counted in TotalVotes when it has a position of its own or follows a vote
// that can be found in leaders; followers are credited with the leader's
// outcome rather than their own fields.
func ComputeTally(votes []*Vote, leaders map[id.VoteID]*Vote) Tally {
	var t Tally
	for _, v := range votes {
		switch v.Participation {
		case ParticipationPresent:
			if hasResolvedPosition(v, leaders) {
				t.TotalVotes++
			}
		case ParticipationAbstain:
			t.Abstentions++
		case ParticipationAbsent:
			t.Absences++
		case ParticipationRecused:
			t.Recusals++
		case ParticipationSuspect:
			t.Suspicions++
		}
	}
	return t
}

func hasResolvedPosition(v *Vote, leaders map[id.VoteID]*Vote) bool {
	if v.FollowsVoteID == nil {
		return v.HasOwnPosition()
	}
	leader, ok := leaders[*v.FollowsVoteID]
	return ok && leader.HasOwnPosition()
}

// DetectQualityVote returns the member of the first president-role vote in
// the batch. Any president vote is reported as a tie-break, whether or not
// the count was actually tied.
func DetectQualityVote(votes []*Vote) *id.MemberID {
	for _, v := range votes {
		if v.Role == VoteRolePresident {
			m := v.MemberID
			return &m
		}
	}
	return nil
}

// FindWinningVote locates the analyst vote of member inside the batch.
func FindWinningVote(votes []*Vote, member id.MemberID) (*Vote, error) {
	for _, v := range votes {
		if v.MemberID == member && v.Role.IsAnalyst() {
			return v, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeInvariantViolation, "winning member must hold a rapporteur or reviewer vote in the voting result")
}
