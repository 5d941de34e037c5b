package models

import (
	"time"

	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
)

// Case is an appeal under adjudication. Identity and number are owned by case
// intake; the engine only reads them and advances Stage once the merit batch
// is resolved.
type Case struct {
	ID     id.CaseID `json:"id"`
	Number string    `json:"number"`
	Stage  CaseStage `json:"stage"`
}

// CaseStage is the overall process stage of a case. Only the transition into
// StageAwaitingPublication is driven by this engine.
type CaseStage string

const (
	CaseStageInProgress          CaseStage = "in_progress"
	CaseStageAwaitingPublication CaseStage = "awaiting_publication"
)

// Session is a dated sitting of the board.
//
// Invariants:
//   - Cancelled sessions accept no agenda mutation
//   - Status is recomputed by the agenda reconciler after every mutation
type Session struct {
	ID        id.SessionID  `json:"id"`
	Date      time.Time     `json:"date"`
	Kind      string        `json:"kind"`
	Status    SessionStatus `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CanMutateAgenda checks whether cases may be added, removed or redistributed.
func (s *Session) CanMutateAgenda() error {
	if s.Status == SessionStatusCancelled {
		return dErrors.New(dErrors.CodeConflict, "session is cancelled")
	}
	return nil
}

// Reconcile returns the publication status the session should hold after an
// agenda mutation. Without any snapshot the agenda has never been published
// and always needs publication. A closed session whose agenda still matches
// its publication stays closed.
func (s *Session) Reconcile(hasSnapshot, current bool) SessionStatus {
	switch {
	case s.Status == SessionStatusCancelled:
		return SessionStatusCancelled
	case !hasSnapshot:
		return SessionStatusNeedsPublication
	case current && s.Status == SessionStatusClosed:
		return SessionStatusClosed
	case current:
		return SessionStatusPending
	default:
		return SessionStatusNeedsPublication
	}
}

// MemberRole is the seat a member holds on the board.
type MemberRole string

const (
	MemberRolePresident MemberRole = "president"
	MemberRoleCounselor MemberRole = "counselor"
)

// Member is a board member as seen on a session roster.
type Member struct {
	ID       id.MemberID `json:"id"`
	Name     string      `json:"name"`
	Role     MemberRole  `json:"role"`
	Eligible bool        `json:"eligible"`
}
