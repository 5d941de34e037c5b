package models

import (
	"time"

	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

// AgendaEntry places a case on a session agenda and carries the per-entry
// status machine.
//
// Invariants:
//   - InquiryDeadlineDays is set only while Status is under_inquiry
//   - ReviewRequester is set only while Status is under_review_request
//   - Decided is terminal
type AgendaEntry struct {
	CaseID                id.CaseID    `json:"case_id"`
	SessionID             id.SessionID `json:"session_id"`
	Position              int          `json:"position"`
	Status                AgendaStatus `json:"status"`
	InquiryDeadlineDays   *int         `json:"inquiry_deadline_days,omitempty"`
	ReviewRequester       *id.MemberID `json:"review_requester,omitempty"`
	AddedAfterPublication bool         `json:"added_after_publication"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// NewAgendaEntry builds an entry in the initial on_agenda state.
func NewAgendaEntry(caseID id.CaseID, sessionID id.SessionID, position int, addedAfterPublication bool, now time.Time) *AgendaEntry {
	return &AgendaEntry{
		CaseID:                caseID,
		SessionID:             sessionID,
		Position:              position,
		Status:                AgendaStatusOnAgenda,
		AddedAfterPublication: addedAfterPublication,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// StatusTransition is a requested change of an agenda entry's status together
// with the data the target state carries.
type StatusTransition struct {
	Target              AgendaStatus
	InquiryDeadlineDays int
	ReviewRequester     id.MemberID
}

// Validate checks that the transition carries the data its target needs.
func (t StatusTransition) Validate() error {
	switch t.Target {
	case AgendaStatusUnderInquiry:
		if t.InquiryDeadlineDays <= 0 {
			return dErrors.New(dErrors.CodeValidation, "inquiry deadline must be a positive number of days")
		}
	case AgendaStatusUnderReviewRequest:
		if t.ReviewRequester.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "review requester is required")
		}
	case AgendaStatusOnAgenda, AgendaStatusSuspended, AgendaStatusDecided:
	default:
		return dErrors.New(dErrors.CodeValidation, "invalid agenda status: "+string(t.Target))
	}
	return nil
}

// CanTransition checks the state machine. hasResolvedMerit reports whether a
// resolved merit batch exists for the case; it gates entry into decided.
func (e *AgendaEntry) CanTransition(t StatusTransition, hasResolvedMerit bool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if e.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeConflict, "case is already decided in this session")
	}
	if t.Target == AgendaStatusDecided && !hasResolvedMerit {
		return dErrors.New(dErrors.CodeConflict, "case has no resolved merit voting result")
	}
	return nil
}

// ApplyTransition moves the entry to the target state, clearing the fields
// that belong to other states. Call CanTransition first.
func (e *AgendaEntry) ApplyTransition(t StatusTransition, now time.Time) {
	e.InquiryDeadlineDays = nil
	e.ReviewRequester = nil
	switch t.Target {
	case AgendaStatusUnderInquiry:
		days := t.InquiryDeadlineDays
		e.InquiryDeadlineDays = &days
	case AgendaStatusUnderReviewRequest:
		requester := t.ReviewRequester
		e.ReviewRequester = &requester
	case AgendaStatusOnAgenda, AgendaStatusSuspended, AgendaStatusDecided:
	}
	e.Status = t.Target
	e.UpdatedAt = now
}

// Clone returns a deep copy.
func (e *AgendaEntry) Clone() *AgendaEntry {
	c := *e
	if e.InquiryDeadlineDays != nil {
		days := *e.InquiryDeadlineDays
		c.InquiryDeadlineDays = &days
	}
	if e.ReviewRequester != nil {
		requester := *e.ReviewRequester
		c.ReviewRequester = &requester
	}
	return &c
}
