package models

import (
	"time"

	id "appeals/pkg/domain"
)

// SnapshotEntry is one (case, distributee) pair of a published agenda.
type SnapshotEntry struct {
	CaseID      id.CaseID   `json:"case_id"`
	Distributee id.MemberID `json:"distributee"`
}

// PublicationSnapshot is the immutable record of a session agenda taken when
// the agenda was published. It exists only to be compared with the live agenda.
type PublicationSnapshot struct {
	ID          id.SnapshotID   `json:"id"`
	SessionID   id.SessionID    `json:"session_id"`
	PublishedAt time.Time       `json:"published_at"`
	Entries     []SnapshotEntry `json:"entries"`
}

// Contains reports whether the snapshot lists caseID with distributee.
func (s *PublicationSnapshot) Contains(caseID id.CaseID, distributee id.MemberID) bool {
	for _, e := range s.Entries {
		if e.CaseID == caseID {
			return e.Distributee == distributee
		}
	}
	return false
}

// Matches reports whether live holds exactly the snapshot's (case,
// distributee) pairs. Ordering is irrelevant.
func (s *PublicationSnapshot) Matches(live []SnapshotEntry) bool {
	if len(live) != len(s.Entries) {
		return false
	}
	published := make(map[id.CaseID]id.MemberID, len(s.Entries))
	for _, e := range s.Entries {
		published[e.CaseID] = e.Distributee
	}
	seen := make(map[id.CaseID]struct{}, len(live))
	for _, e := range live {
		distributee, ok := published[e.CaseID]
		if !ok || distributee != e.Distributee {
			return false
		}
		seen[e.CaseID] = struct{}{}
	}
	return len(seen) == len(published)
}
