package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "appeals/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events that form the adjudication record of a
	// case. They are persisted fail-closed and retained indefinitely.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers everything else. Events default here.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	CaseID    id.CaseID
	SessionID id.SessionID
	MemberID  id.MemberID
	Subject   string
	Action    string
	Decision  string
	Reason    string
	RequestID string
	// ActorID is the authenticated member who triggered the action when it
	// differs from MemberID (e.g. a secretary recording a vote).
	ActorID string
}

type AuditEvent string

const (
	// Agenda events
	EventCaseAgendaAdded    AuditEvent = "case_agenda_added"
	EventCaseAgendaRemoved  AuditEvent = "case_agenda_removed"
	EventCaseRedistributed  AuditEvent = "case_redistributed"
	EventAgendaPublished    AuditEvent = "agenda_published"
	EventEntryStatusChanged AuditEvent = "entry_status_changed"

	// Vote events
	EventVoteCast           AuditEvent = "vote_cast"
	EventVoteDeleted        AuditEvent = "vote_deleted"
	EventReviewerRolledBack AuditEvent = "reviewer_rolled_back"

	// Voting result events
	EventBatchResolved     AuditEvent = "batch_resolved"
	EventUnanimityDeclared AuditEvent = "unanimity_declared"
	EventBatchDeleted      AuditEvent = "batch_deleted"

	// EventCaseDecided is the terminal signal consumed by decision publication.
	EventCaseDecided AuditEvent = "case_decided"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCaseAgendaAdded:    CategoryCompliance,
	EventCaseAgendaRemoved:  CategoryCompliance,
	EventCaseRedistributed:  CategoryCompliance,
	EventAgendaPublished:    CategoryCompliance,
	EventEntryStatusChanged: CategoryCompliance,
	EventVoteCast:           CategoryCompliance,
	EventVoteDeleted:        CategoryCompliance,
	EventReviewerRolledBack: CategoryCompliance,
	EventBatchResolved:      CategoryCompliance,
	EventUnanimityDeclared:  CategoryCompliance,
	EventBatchDeleted:       CategoryCompliance,
	EventCaseDecided:        CategoryCompliance,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures an action that becomes part of a case's
// adjudication record. Use with the compliance publisher for fail-closed
// semantics.
type ComplianceEvent struct {
	Timestamp time.Time    // When the event occurred (set automatically if zero)
	CaseID    id.CaseID    // The case affected (required)
	SessionID id.SessionID // Deliberation session, when the action is session-scoped
	MemberID  id.MemberID  // Member whose vote or assignment changed
	Subject   string       // Entity acted on (vote id, batch id, ...)
	Action    string       // The action taken (e.g., "vote_cast")
	Decision  string       // Outcome of the action (e.g., decision code, new status)
	Reason    string
	RequestID string // Correlation ID for request tracing
	ActorID   string // Authenticated member who called the operation
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored Event shape.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:  AuditEvent(e.Action).Category(),
		Timestamp: e.Timestamp,
		CaseID:    e.CaseID,
		SessionID: e.SessionID,
		MemberID:  e.MemberID,
		Subject:   e.Subject,
		Action:    e.Action,
		Decision:  e.Decision,
		Reason:    e.Reason,
		RequestID: e.RequestID,
		ActorID:   e.ActorID,
	}
}

// Store persists audit events. Implementations are outbox-backed: Append
// must join the caller's transaction when one is present in ctx.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// OutboxEntry is one row awaiting relay to the event stream.
type OutboxEntry struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Outbox is the relay side of an outbox-backed store.
type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// outboxPayload is the JSON structure published to the event stream.
type outboxPayload struct {
	ID        string `json:"id"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	CaseID    string `json:"case_id"`
	SessionID string `json:"session_id,omitempty"`
	MemberID  string `json:"member_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Action    string `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ActorID   string `json:"actor_id,omitempty"`
}

// NewOutboxEntry builds the outbox row for event. Entries are keyed by case
// so the relay preserves per-case ordering on partitioned topics.
func NewOutboxEntry(event Event, now time.Time) (OutboxEntry, error) {
	eventID := uuid.New()
	payload := outboxPayload{
		ID:        eventID.String(),
		Category:  string(AuditEvent(event.Action).Category()),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		CaseID:    event.CaseID.String(),
		Subject:   event.Subject,
		Action:    event.Action,
		Decision:  event.Decision,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ActorID:   event.ActorID,
	}
	if !event.SessionID.IsNil() {
		payload.SessionID = event.SessionID.String()
	}
	if !event.MemberID.IsNil() {
		payload.MemberID = event.MemberID.String()
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("marshal audit payload: %w", err)
	}
	return OutboxEntry{
		ID:            eventID,
		AggregateType: "case",
		AggregateID:   event.CaseID.String(),
		EventType:     event.Action,
		Payload:       body,
		CreatedAt:     now,
	}, nil
}
