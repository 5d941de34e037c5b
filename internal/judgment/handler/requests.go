package handler

import (
	"strings"

	"appeals/internal/judgment/models"
	"appeals/internal/judgment/service"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

const maxReorderCases = 500

// AddCaseRequest is the body of POST /sessions/{sessionID}/agenda.
type AddCaseRequest struct {
	CaseID   string `json:"case_id"`
	Assignee string `json:"assignee"`

	caseID   id.CaseID
	assignee id.MemberID
}

func (r *AddCaseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.caseID, err = id.ParseCaseID(strings.TrimSpace(r.CaseID)); err != nil {
		return err
	}
	if r.assignee, err = id.ParseMemberID(strings.TrimSpace(r.Assignee)); err != nil {
		return err
	}
	return nil
}

func (r *AddCaseRequest) Command(sessionID id.SessionID) service.AddCaseCommand {
	return service.AddCaseCommand{CaseID: r.caseID, SessionID: sessionID, Assignee: r.assignee}
}

// RedistributeRequest is the body of PUT .../agenda/{caseID}/distribution.
type RedistributeRequest struct {
	Assignee string `json:"assignee"`

	assignee id.MemberID
}

func (r *RedistributeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	r.assignee, err = id.ParseMemberID(strings.TrimSpace(r.Assignee))
	return err
}

// ReorderRequest is the body of PUT /sessions/{sessionID}/agenda/order.
type ReorderRequest struct {
	CaseIDs []string `json:"case_ids"`

	caseIDs []id.CaseID
}

func (r *ReorderRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.CaseIDs) > maxReorderCases {
		return dErrors.New(dErrors.CodeValidation, "too many case_ids")
	}
	r.caseIDs = make([]id.CaseID, 0, len(r.CaseIDs))
	for _, raw := range r.CaseIDs {
		caseID, err := id.ParseCaseID(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		r.caseIDs = append(r.caseIDs, caseID)
	}
	return nil
}

// ChangeStatusRequest is the body of PUT .../agenda/{caseID}/status.
type ChangeStatusRequest struct {
	Status              string `json:"status"`
	InquiryDeadlineDays int    `json:"inquiry_deadline_days,omitempty"`
	ReviewRequester     string `json:"review_requester,omitempty"`

	transition models.StatusTransition
}

func (r *ChangeStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	target, err := models.ParseAgendaStatus(strings.TrimSpace(r.Status))
	if err != nil {
		return err
	}
	r.transition = models.StatusTransition{Target: target, InquiryDeadlineDays: r.InquiryDeadlineDays}
	if raw := strings.TrimSpace(r.ReviewRequester); raw != "" {
		requester, err := id.ParseMemberID(raw)
		if err != nil {
			return err
		}
		r.transition.ReviewRequester = requester
	}
	return r.transition.Validate()
}

// CastVoteRequest is the body of POST /votes. MemberID names the voter, which
// may differ from the authenticated member recording it.
type CastVoteRequest struct {
	CaseID              string `json:"case_id"`
	SessionID           string `json:"session_id"`
	MemberID            string `json:"member_id"`
	Role                string `json:"role"`
	Participation       string `json:"participation"`
	Knowledge           string `json:"knowledge"`
	PreliminaryDecision string `json:"preliminary_decision,omitempty"`
	MeritDecision       string `json:"merit_decision,omitempty"`
	Text                string `json:"text,omitempty"`
	FollowsVoteID       string `json:"follows_vote_id,omitempty"`

	cmd service.CastVoteCommand
}

func (r *CastVoteRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var (
		cmd service.CastVoteCommand
		err error
	)
	if cmd.CaseID, err = id.ParseCaseID(strings.TrimSpace(r.CaseID)); err != nil {
		return err
	}
	if cmd.SessionID, err = id.ParseSessionID(strings.TrimSpace(r.SessionID)); err != nil {
		return err
	}
	if cmd.MemberID, err = id.ParseMemberID(strings.TrimSpace(r.MemberID)); err != nil {
		return err
	}
	if cmd.Role, err = models.ParseVoteRole(strings.TrimSpace(r.Role)); err != nil {
		return err
	}
	if cmd.Participation, err = models.ParseParticipation(strings.TrimSpace(r.Participation)); err != nil {
		return err
	}
	if cmd.Knowledge, err = models.ParseKnowledge(strings.TrimSpace(r.Knowledge)); err != nil {
		return err
	}
	if r.PreliminaryDecision != "" {
		code, err := id.ParseDecisionCode(r.PreliminaryDecision)
		if err != nil {
			return err
		}
		cmd.PreliminaryDecision = &code
	}
	if r.MeritDecision != "" {
		code, err := id.ParseDecisionCode(r.MeritDecision)
		if err != nil {
			return err
		}
		cmd.MeritDecision = &code
	}
	if raw := strings.TrimSpace(r.FollowsVoteID); raw != "" {
		leader, err := id.ParseVoteID(raw)
		if err != nil {
			return err
		}
		cmd.FollowsVoteID = &leader
	}
	cmd.Text = r.Text
	r.cmd = cmd
	return nil
}

// ResolveRequest is the body of POST /batches/{batchID}/resolution.
type ResolveRequest struct {
	Winner string `json:"winner"`

	winner id.MemberID
}

func (r *ResolveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	r.winner, err = id.ParseMemberID(strings.TrimSpace(r.Winner))
	return err
}
