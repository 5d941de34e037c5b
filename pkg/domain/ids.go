// Package domain holds typed identifiers shared by every module.
//
// Each identifier wraps a UUID in its own named type so a vote id can never be
// passed where a case id is expected. Construct identifiers from external input
// through the Parse functions; they reject empty, malformed and nil UUIDs.
package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "appeals/pkg/domain-errors"
)

type (
	// CaseID identifies an appeal under adjudication. Owned by case intake.
	CaseID uuid.UUID
	// SessionID identifies a deliberation session. Owned by scheduling.
	SessionID uuid.UUID
	// MemberID identifies a board member. Owned by the member registry.
	MemberID uuid.UUID
	// VoteID identifies a single recorded vote.
	VoteID uuid.UUID
	// BatchID identifies a voting result batch.
	BatchID uuid.UUID
	// DistributionID identifies a per-session distribution row.
	DistributionID uuid.UUID
	// SnapshotID identifies an agenda publication snapshot.
	SnapshotID uuid.UUID
)

const maxIDLength = 64

func parseUUID(kind, raw string) (uuid.UUID, error) {
	if raw == "" || strings.TrimSpace(raw) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(raw) > maxIDLength || !utf8.ValidString(raw) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return parsed, nil
}

func unmarshalUUID(kind string, text []byte) (uuid.UUID, error) {
	if len(text) == 0 {
		return uuid.Nil, nil
	}
	return parseUUID(kind, string(text))
}

func ParseCaseID(s string) (CaseID, error) {
	u, err := parseUUID("case_id", s)
	return CaseID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID("session_id", s)
	return SessionID(u), err
}

func ParseMemberID(s string) (MemberID, error) {
	u, err := parseUUID("member_id", s)
	return MemberID(u), err
}

func ParseVoteID(s string) (VoteID, error) {
	u, err := parseUUID("vote_id", s)
	return VoteID(u), err
}

func ParseBatchID(s string) (BatchID, error) {
	u, err := parseUUID("batch_id", s)
	return BatchID(u), err
}

func ParseDistributionID(s string) (DistributionID, error) {
	u, err := parseUUID("distribution_id", s)
	return DistributionID(u), err
}

func ParseSnapshotID(s string) (SnapshotID, error) {
	u, err := parseUUID("snapshot_id", s)
	return SnapshotID(u), err
}

func (id CaseID) String() string { return uuid.UUID(id).String() }
func (id CaseID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id CaseID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *CaseID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("case_id", text)
	*id = CaseID(u)
	return err
}

func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id SessionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *SessionID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("session_id", text)
	*id = SessionID(u)
	return err
}

func (id MemberID) String() string { return uuid.UUID(id).String() }
func (id MemberID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id MemberID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *MemberID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("member_id", text)
	*id = MemberID(u)
	return err
}

func (id VoteID) String() string { return uuid.UUID(id).String() }
func (id VoteID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id VoteID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *VoteID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("vote_id", text)
	*id = VoteID(u)
	return err
}

func (id BatchID) String() string { return uuid.UUID(id).String() }
func (id BatchID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id BatchID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *BatchID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("batch_id", text)
	*id = BatchID(u)
	return err
}

func (id DistributionID) String() string { return uuid.UUID(id).String() }
func (id DistributionID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DistributionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *DistributionID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("distribution_id", text)
	*id = DistributionID(u)
	return err
}

func (id SnapshotID) String() string { return uuid.UUID(id).String() }
func (id SnapshotID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SnapshotID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}
func (id *SnapshotID) UnmarshalText(text []byte) error {
	u, err := unmarshalUUID("snapshot_id", text)
	*id = SnapshotID(u)
	return err
}
