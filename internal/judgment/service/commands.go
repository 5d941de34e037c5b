package service

import (
	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

// AddCaseCommand places a case on a session agenda and assigns it.
type AddCaseCommand struct {
	CaseID    id.CaseID
	SessionID id.SessionID
	Assignee  id.MemberID
}

func (c AddCaseCommand) Validate() error {
	if c.CaseID.IsNil() || c.SessionID.IsNil() || c.Assignee.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "case, session and assignee are required")
	}
	return nil
}

// CastVoteCommand records one member's vote on a case.
type CastVoteCommand struct {
	CaseID              id.CaseID
	SessionID           id.SessionID
	MemberID            id.MemberID
	Role                models.VoteRole
	Participation       models.Participation
	Knowledge           models.Knowledge
	PreliminaryDecision *id.DecisionCode
	MeritDecision       *id.DecisionCode
	Text                string
	FollowsVoteID       *id.VoteID
}

func (c CastVoteCommand) params() models.VoteParams {
	return models.VoteParams{
		CaseID:              c.CaseID,
		SessionID:           c.SessionID,
		MemberID:            c.MemberID,
		Role:                c.Role,
		Participation:       c.Participation,
		Knowledge:           c.Knowledge,
		PreliminaryDecision: c.PreliminaryDecision,
		MeritDecision:       c.MeritDecision,
		Text:                c.Text,
		FollowsVoteID:       c.FollowsVoteID,
	}
}

// ChangeStatusCommand moves an agenda entry through the status machine.
type ChangeStatusCommand struct {
	CaseID     id.CaseID
	SessionID  id.SessionID
	Transition models.StatusTransition
}
