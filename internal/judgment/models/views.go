package models

import (
	id "appeals/pkg/domain"
)

// AgendaItem is one live agenda line: the entry and the distribution recorded
// for the case in that session.
type AgendaItem struct {
	Entry        *AgendaEntry  `json:"entry"`
	Distribution *Distribution `json:"distribution,omitempty"`
}

// SessionAgenda is the per-session read model used for agenda printing and
// publication.
type SessionAgenda struct {
	Session       *Session             `json:"session"`
	Items         []AgendaItem         `json:"items"`
	Current       bool                 `json:"current"`
	LastPublished *PublicationSnapshot `json:"last_published,omitempty"`
}

// LiveEntries projects the agenda into (case, distributee) pairs for
// comparison with a snapshot.
func (a *SessionAgenda) LiveEntries() []SnapshotEntry {
	out := make([]SnapshotEntry, 0, len(a.Items))
	for _, item := range a.Items {
		e := SnapshotEntry{CaseID: item.Entry.CaseID}
		if item.Distribution != nil {
			e.Distributee = item.Distribution.Distributee
		}
		out = append(out, e)
	}
	return out
}

// CaseHistory is the full judgment trail of a case across sessions.
type CaseHistory struct {
	CaseID        id.CaseID       `json:"case_id"`
	Entries       []*AgendaEntry  `json:"entries"`
	Distributions []*Distribution `json:"distributions"`
	Votes         []*Vote         `json:"votes"`
	Batches       []*Batch        `json:"batches"`
}

// HasResolvedMerit reports whether a resolved merit batch exists among batches.
func HasResolvedMerit(batches []*Batch) bool {
	for _, b := range batches {
		if b.IsMerit() && b.IsResolved() {
			return true
		}
	}
	return false
}

// HasResolved reports whether any batch in batches is resolved.
func HasResolved(batches []*Batch) bool {
	for _, b := range batches {
		if b.IsResolved() {
			return true
		}
	}
	return false
}
