package models

import (
	"slices"
	"time"

	id "appeals/pkg/domain"
)

// Distribution records who analyzes a case in one session and the lineage
// carried over from earlier sessions.
//
// Invariants:
//   - Rapporteur is the first member ever assigned to the case and is copied
//     unchanged into every later row
//   - Reviewers never contains the rapporteur and holds no duplicates
//   - Reviewers only grows from session to session, except through reviewer
//     rollback on vote deletion
//   - At most one row per case is Active: the most recent one
type Distribution struct {
	ID          id.DistributionID `json:"id"`
	CaseID      id.CaseID         `json:"case_id"`
	SessionID   id.SessionID      `json:"session_id"`
	Rapporteur  id.MemberID       `json:"rapporteur"`
	Distributee id.MemberID       `json:"distributee"`
	Reviewers   []id.MemberID     `json:"reviewers"`
	Position    int               `json:"position"`
	Active      bool              `json:"active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewDistribution builds the row for a case entering a session. With no
// previous distribution the assignee becomes the rapporteur; otherwise the
// rapporteur and reviewers are carried forward and the assignee joins the
// reviewers unless already the rapporteur or a reviewer.
func NewDistribution(distID id.DistributionID, caseID id.CaseID, sessionID id.SessionID, assignee id.MemberID, previous *Distribution, position int, now time.Time) *Distribution {
	d := &Distribution{
		ID:          distID,
		CaseID:      caseID,
		SessionID:   sessionID,
		Rapporteur:  assignee,
		Distributee: assignee,
		Reviewers:   []id.MemberID{},
		Position:    position,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if previous != nil {
		d.Rapporteur = previous.Rapporteur
		d.Reviewers = slices.Clone(previous.Reviewers)
		d.AddReviewer(assignee)
	}
	return d
}

// HasReviewer reports whether member is in the reviewer set.
func (d *Distribution) HasReviewer(member id.MemberID) bool {
	return slices.Contains(d.Reviewers, member)
}

// IsAnalyst reports whether member is the rapporteur or a reviewer.
func (d *Distribution) IsAnalyst(member id.MemberID) bool {
	return d.Rapporteur == member || d.HasReviewer(member)
}

// AddReviewer appends member to the reviewer set. Returns false when the
// member is the rapporteur or already a reviewer.
func (d *Distribution) AddReviewer(member id.MemberID) bool {
	if member == d.Rapporteur || d.HasReviewer(member) {
		return false
	}
	d.Reviewers = append(d.Reviewers, member)
	return true
}

// RemoveReviewer drops member from the reviewer set. Returns false when the
// member was not a reviewer.
func (d *Distribution) RemoveReviewer(member id.MemberID) bool {
	idx := slices.Index(d.Reviewers, member)
	if idx < 0 {
		return false
	}
	d.Reviewers = slices.Delete(d.Reviewers, idx, idx+1)
	return true
}

// Reassign changes this session's distributee, extending the reviewer set the
// same way a new distribution would. The rapporteur never changes.
func (d *Distribution) Reassign(member id.MemberID, now time.Time) {
	d.Distributee = member
	d.AddReviewer(member)
	d.UpdatedAt = now
}

// Clone returns a deep copy.
func (d *Distribution) Clone() *Distribution {
	c := *d
	c.Reviewers = slices.Clone(d.Reviewers)
	if c.Reviewers == nil {
		c.Reviewers = []id.MemberID{}
	}
	return &c
}
