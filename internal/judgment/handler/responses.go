package handler

import (
	"time"

	"appeals/internal/judgment/models"
)

// AgendaCurrentResponse answers GET /sessions/{sessionID}/agenda/current.
type AgendaCurrentResponse struct {
	SessionID string `json:"session_id"`
	Current   bool   `json:"current"`
}

// PublicationResponse answers POST /sessions/{sessionID}/publications.
type PublicationResponse struct {
	SnapshotID  string                 `json:"snapshot_id"`
	SessionID   string                 `json:"session_id"`
	PublishedAt time.Time              `json:"published_at"`
	Entries     []models.SnapshotEntry `json:"entries"`
}

func FromSnapshot(snap *models.PublicationSnapshot) *PublicationResponse {
	entries := snap.Entries
	if entries == nil {
		entries = []models.SnapshotEntry{}
	}
	return &PublicationResponse{
		SnapshotID:  snap.ID.String(),
		SessionID:   snap.SessionID.String(),
		PublishedAt: snap.PublishedAt,
		Entries:     entries,
	}
}

// EntriesResponse lists agenda entries in agenda order.
type EntriesResponse struct {
	Entries []*models.AgendaEntry `json:"entries"`
}

// BatchesResponse lists voting results of a case.
type BatchesResponse struct {
	Batches []*models.Batch `json:"batches"`
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
