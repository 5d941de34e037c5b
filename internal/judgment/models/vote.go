package models

import (
	"strings"
	"time"

	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

const maxVoteTextLength = 20000

// Vote is one member's position on a case for one decision bucket.
//
// Invariants:
//   - A member holds at most one admitted vote per case
//   - A member holds at most one not-admitted vote per case and preliminary
//     decision key (the absent key counts as its own key)
//   - PreliminaryDecision is only set on not-admitted votes
//   - A present, admitted vote that follows nobody names a merit decision
//   - FollowsVoteID references another vote of the same case; the follower
//     contributes the referenced vote's outcome, not its own fields
type Vote struct {
	ID                  id.VoteID        `json:"id"`
	CaseID              id.CaseID        `json:"case_id"`
	SessionID           id.SessionID     `json:"session_id"`
	MemberID            id.MemberID      `json:"member_id"`
	Role                VoteRole         `json:"role"`
	Participation       Participation    `json:"participation"`
	Knowledge           Knowledge        `json:"knowledge"`
	PreliminaryDecision *id.DecisionCode `json:"preliminary_decision,omitempty"`
	MeritDecision       *id.DecisionCode `json:"merit_decision,omitempty"`
	Text                string           `json:"text,omitempty"`
	FollowsVoteID       *id.VoteID       `json:"follows_vote_id,omitempty"`
	BatchID             *id.BatchID      `json:"batch_id,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

// VoteParams carries the caller-supplied fields of a new vote.
type VoteParams struct {
	CaseID              id.CaseID
	SessionID           id.SessionID
	MemberID            id.MemberID
	Role                VoteRole
	Participation       Participation
	Knowledge           Knowledge
	PreliminaryDecision *id.DecisionCode
	MeritDecision       *id.DecisionCode
	Text                string
	FollowsVoteID       *id.VoteID
}

// NewVote validates params and builds an ungrouped vote.
func NewVote(voteID id.VoteID, p VoteParams, now time.Time) (*Vote, error) {
	if p.CaseID.IsNil() || p.SessionID.IsNil() || p.MemberID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "vote requires case, session and member")
	}
	if p.Role == "" || p.Participation == "" || p.Knowledge == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "vote requires role, participation and knowledge outcome")
	}
	if !p.Role.IsValid() || !p.Participation.IsValid() || !p.Knowledge.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "vote has an unknown role, participation or knowledge outcome")
	}
	text := strings.TrimSpace(p.Text)
	if len(text) > maxVoteTextLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "vote text is too long")
	}
	v := &Vote{
		ID:                  voteID,
		CaseID:              p.CaseID,
		SessionID:           p.SessionID,
		MemberID:            p.MemberID,
		Role:                p.Role,
		Participation:       p.Participation,
		Knowledge:           p.Knowledge,
		PreliminaryDecision: p.PreliminaryDecision,
		MeritDecision:       p.MeritDecision,
		Text:                text,
		FollowsVoteID:       p.FollowsVoteID,
		CreatedAt:           now,
	}
	if err := v.checkDecisions(); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vote) checkDecisions() error {
	switch v.Knowledge {
	case KnowledgeAdmitted:
		if v.PreliminaryDecision != nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "preliminary decision is only allowed when not admitted")
		}
		if v.MeritDecision == nil && v.FollowsVoteID == nil && v.Participation == ParticipationPresent {
			return dErrors.New(dErrors.CodeInvariantViolation, "merit decision is required when admitted")
		}
	case KnowledgeNotAdmitted:
		if v.MeritDecision != nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "merit decision is only allowed when admitted")
		}
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "invalid knowledge outcome")
	}
	return nil
}

// FollowFrom makes v follow leader: the knowledge outcome and decision
// references are copied so the follower lands in the leader's bucket.
func (v *Vote) FollowFrom(leader *Vote) {
	leaderID := leader.ID
	v.FollowsVoteID = &leaderID
	v.Knowledge = leader.Knowledge
	v.PreliminaryDecision = cloneCode(leader.PreliminaryDecision)
	v.MeritDecision = cloneCode(leader.MeritDecision)
}

// Bucket returns the decision bucket the vote is grouped under.
func (v *Vote) Bucket() BucketKey {
	if v.Knowledge == KnowledgeAdmitted {
		return BucketKey{Category: BatchCategoryMerit}
	}
	key := BucketKey{Category: BatchCategoryNotAdmitted}
	if v.PreliminaryDecision != nil {
		key.Preliminary = *v.PreliminaryDecision
	}
	return key
}

// ConflictsWith reports whether other occupies the same uniqueness slot as v:
// same member and case, and either both admitted or both not admitted under
// the same preliminary key.
func (v *Vote) ConflictsWith(other *Vote) bool {
	if v.ID == other.ID || v.MemberID != other.MemberID || v.CaseID != other.CaseID {
		return false
	}
	return v.Bucket() == other.Bucket()
}

// IsGrouped reports whether the vote already belongs to a batch.
func (v *Vote) IsGrouped() bool {
	return v.BatchID != nil
}

// IsFollower reports whether the vote follows another vote.
func (v *Vote) IsFollower() bool {
	return v.FollowsVoteID != nil
}

// HasOwnPosition reports whether the vote states a position by itself.
func (v *Vote) HasOwnPosition() bool {
	if v.Knowledge == KnowledgeNotAdmitted {
		return true
	}
	return v.MeritDecision != nil
}

// Clone returns a deep copy.
func (v *Vote) Clone() *Vote {
	c := *v
	c.PreliminaryDecision = cloneCode(v.PreliminaryDecision)
	c.MeritDecision = cloneCode(v.MeritDecision)
	if v.FollowsVoteID != nil {
		f := *v.FollowsVoteID
		c.FollowsVoteID = &f
	}
	if v.BatchID != nil {
		b := *v.BatchID
		c.BatchID = &b
	}
	return &c
}

func cloneCode(c *id.DecisionCode) *id.DecisionCode {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
