package models

import (
	dErrors "appeals/pkg/domain-errors"
)

// SessionStatus is the publication status of a deliberation session.
type SessionStatus string

const (
	SessionStatusPending          SessionStatus = "pending"
	SessionStatusNeedsPublication SessionStatus = "needs_publication"
	SessionStatusClosed           SessionStatus = "closed"
	SessionStatusCancelled        SessionStatus = "cancelled"
)

func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusPending, SessionStatusNeedsPublication, SessionStatusClosed, SessionStatusCancelled:
		return true
	}
	return false
}

// AgendaStatus is the per-entry lifecycle of a case on a session agenda.
type AgendaStatus string

const (
	AgendaStatusOnAgenda           AgendaStatus = "on_agenda"
	AgendaStatusSuspended          AgendaStatus = "suspended"
	AgendaStatusUnderInquiry       AgendaStatus = "under_inquiry"
	AgendaStatusUnderReviewRequest AgendaStatus = "under_review_request"
	AgendaStatusDecided            AgendaStatus = "decided"
)

// ParseAgendaStatus validates an agenda status from external input.
func ParseAgendaStatus(raw string) (AgendaStatus, error) {
	s := AgendaStatus(raw)
	if !s.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid agenda status: "+raw)
	}
	return s, nil
}

func (s AgendaStatus) IsValid() bool {
	switch s {
	case AgendaStatusOnAgenda, AgendaStatusSuspended, AgendaStatusUnderInquiry,
		AgendaStatusUnderReviewRequest, AgendaStatusDecided:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is accepted.
func (s AgendaStatus) IsTerminal() bool {
	return s == AgendaStatusDecided
}

// VoteRole is the capacity in which a member casts a vote.
type VoteRole string

const (
	VoteRoleRapporteur   VoteRole = "rapporteur"
	VoteRoleReviewer     VoteRole = "reviewer"
	VoteRolePresident    VoteRole = "president"
	VoteRoleVotingMember VoteRole = "voting_member"
)

func ParseVoteRole(raw string) (VoteRole, error) {
	r := VoteRole(raw)
	switch r {
	case VoteRoleRapporteur, VoteRoleReviewer, VoteRolePresident, VoteRoleVotingMember:
		return r, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid vote role: "+raw)
}

func (r VoteRole) IsValid() bool {
	_, err := ParseVoteRole(string(r))
	return err == nil
}

// IsAnalyst reports whether the role belongs to someone who analyzed the case.
// Only analysts may hold the winning position of a batch.
func (r VoteRole) IsAnalyst() bool {
	return r == VoteRoleRapporteur || r == VoteRoleReviewer
}

// Participation records how a member took part in the vote.
type Participation string

const (
	ParticipationPresent Participation = "present"
	ParticipationAbstain Participation = "abstain"
	ParticipationAbsent  Participation = "absent"
	ParticipationRecused Participation = "recused"
	ParticipationSuspect Participation = "suspect"
)

func ParseParticipation(raw string) (Participation, error) {
	p := Participation(raw)
	switch p {
	case ParticipationPresent, ParticipationAbstain, ParticipationAbsent, ParticipationRecused, ParticipationSuspect:
		return p, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid participation: "+raw)
}

func (p Participation) IsValid() bool {
	_, err := ParseParticipation(string(p))
	return err == nil
}

// Knowledge is whether the board admits the appeal for a ruling on the merits.
type Knowledge string

const (
	KnowledgeAdmitted    Knowledge = "admitted"
	KnowledgeNotAdmitted Knowledge = "not_admitted"
)

func ParseKnowledge(raw string) (Knowledge, error) {
	k := Knowledge(raw)
	switch k {
	case KnowledgeAdmitted, KnowledgeNotAdmitted:
		return k, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invalid knowledge outcome: "+raw)
}

func (k Knowledge) IsValid() bool {
	_, err := ParseKnowledge(string(k))
	return err == nil
}

// BatchCategory is the decision category a voting result groups.
type BatchCategory string

const (
	BatchCategoryNotAdmitted BatchCategory = "not_admitted"
	BatchCategoryMerit       BatchCategory = "merit"
)

// BatchStatus is the lifecycle of a voting result.
type BatchStatus string

const (
	BatchStatusOpen     BatchStatus = "open"
	BatchStatusResolved BatchStatus = "resolved"
)
