package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"appeals/internal/judgment/models"
	"appeals/internal/judgment/service"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
	"appeals/pkg/platform/httputil"
	"appeals/pkg/requestcontext"
)

// Service is the judgment engine as seen by the HTTP layer.
type Service interface {
	AddCaseToAgenda(ctx context.Context, cmd service.AddCaseCommand) (*models.AgendaItem, error)
	RemoveCaseFromAgenda(ctx context.Context, caseID id.CaseID, sessionID id.SessionID) error
	Redistribute(ctx context.Context, caseID id.CaseID, sessionID id.SessionID, assignee id.MemberID) (*models.Distribution, error)
	ReorderAgenda(ctx context.Context, sessionID id.SessionID, caseIDs []id.CaseID) ([]*models.AgendaEntry, error)
	ChangeEntryStatus(ctx context.Context, cmd service.ChangeStatusCommand) (*models.AgendaEntry, error)
	PublishAgenda(ctx context.Context, sessionID id.SessionID) (*models.PublicationSnapshot, error)
	IsAgendaCurrent(ctx context.Context, sessionID id.SessionID) (bool, error)
	SessionAgenda(ctx context.Context, sessionID id.SessionID) (*models.SessionAgenda, error)
	CastVote(ctx context.Context, cmd service.CastVoteCommand) (*models.Vote, error)
	DeleteVote(ctx context.Context, voteID id.VoteID) error
	GroupVotes(ctx context.Context, caseID id.CaseID) ([]*models.Batch, error)
	CaseHistory(ctx context.Context, caseID id.CaseID) (*models.CaseHistory, error)
	ResolveBatch(ctx context.Context, batchID id.BatchID, winner id.MemberID) (*models.Batch, error)
	DeclareUnanimous(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	DeleteBatch(ctx context.Context, batchID id.BatchID) error
}

// Handler exposes the engine over HTTP. Authentication is applied by the
// router; every handler expects a member in the request context.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the judgment endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/agenda", h.HandleAddCase)
		r.Get("/agenda", h.HandleSessionAgenda)
		r.Put("/agenda/order", h.HandleReorder)
		r.Get("/agenda/current", h.HandleAgendaCurrent)
		r.Delete("/agenda/{caseID}", h.HandleRemoveCase)
		r.Put("/agenda/{caseID}/distribution", h.HandleRedistribute)
		r.Put("/agenda/{caseID}/status", h.HandleChangeStatus)
		r.Post("/publications", h.HandlePublish)
	})
	r.Post("/votes", h.HandleCastVote)
	r.Delete("/votes/{voteID}", h.HandleDeleteVote)
	r.Post("/cases/{caseID}/grouping", h.HandleGroupVotes)
	r.Get("/cases/{caseID}/history", h.HandleCaseHistory)
	r.Post("/batches/{batchID}/resolution", h.HandleResolve)
	r.Post("/batches/{batchID}/unanimity", h.HandleUnanimity)
	r.Delete("/batches/{batchID}", h.HandleDeleteBatch)
}

// requireMember writes 401 when no member is in the context.
func requireMember(w http.ResponseWriter, r *http.Request) bool {
	if requestcontext.MemberID(r.Context()).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return false
	}
	return true
}

func pathParam[T any](w http.ResponseWriter, r *http.Request, name string, parse func(string) (T, error)) (T, bool) {
	v, err := parse(chi.URLParam(r, name))
	if err != nil {
		httputil.WriteError(w, err)
		return v, false
	}
	return v, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// HandleAddCase handles POST /sessions/{sessionID}/agenda.
func (h *Handler) HandleAddCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	sessionID, ok := pathParam(w, r, "sessionID", id.ParseSessionID)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddCaseRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	item, err := h.service.AddCaseToAgenda(ctx, req.Command(sessionID))
	if err != nil {
		h.fail(ctx, w, "add case to agenda failed", err, "session_id", sessionID, "case_id", req.CaseID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, item)
}

// HandleRemoveCase handles DELETE /sessions/{sessionID}/agenda/{caseID}.
func (h *Handler) HandleRemoveCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	sessionID, ok := pathParam(w, r, "sessionID", id.ParseSessionID)
	if !ok {
		return
	}
	caseID, ok := pathParam(w, r, "caseID", id.ParseCaseID)
	if !ok {
		return
	}

	if err := h.service.RemoveCaseFromAgenda(ctx, caseID, sessionID); err != nil {
		h.fail(ctx, w, "remove case from agenda failed", err, "session_id", sessionID, "case_id", caseID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRedistribute handles PUT /sessions/{sessionID}/agenda/{caseID}/distribution.
func (h *Handler) HandleRedistribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	sessionID, ok := pathParam(w, r, "sessionID", id.ParseSessionID)
	if !ok {
		return
	}
	caseID, ok := pathParam(w, r, "caseID", id.ParseCaseID)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[RedistributeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	dist, err := h.service.Redistribute(ctx, caseID, sessionID, req.assignee)
	if err != nil {
		h.fail(ctx, w, "redistribution failed", err, "session_id", sessionID, "case_id", caseID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dist)
}

// HandleReorder handles PUT /sessions/{sessionID}/agenda/order.
func (h *Handler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	sessionID, ok := pathParam(w, r, "sessionID", id.ParseSessionID)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ReorderRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	entries, err := h.service.ReorderAgenda(ctx, sessionID, req.caseIDs)
	if err != nil {
		h.fail(ctx, w, "agenda reorder failed", err, "session_id", sessionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EntriesResponse{Entries: nonNil(entries)})
}

// HandleChangeStatus handles PUT /sessions/{sessionID}/agenda/{caseID}/status.
func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	sessionID, ok := pathParam(w, r, "sessionID", id.ParseSessionID)
	if !ok {
		return
	}
	caseID, ok := pathParam(w, r, "caseID", id.ParseCaseID)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ChangeStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	entry, err := h.service.ChangeEntryStatus(ctx, service.ChangeStatusCommand{
		CaseID:     caseID,
		SessionID:  sessionID,
		Transition: req.transition,
	})
	if err != nil {
		h.fail(ctx, w, "agenda status change failed", err, "session_id", sessionID, "case_id", caseID, "status", req.Status)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// HandleSessionAgenda handles GET /sessions/{sessionID}/agenda.
func (h *Handler) HandleSessionAgenda(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	sessionID, ok := pathParam(w, r, "sessionID", id.ParseSessionID)
	if !ok {
		return
	}

	agenda, err := h.service.SessionAgenda(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "session agenda query failed", err, "session_id", sessionID)
		return
	}
	agenda.Items = nonNil(agenda.Items)
	httputil.WriteJSON(w, http.StatusOK, agenda)
}

// HandleAgendaCurrent handles GET /sessions/{sessionID}/agenda/current.
func (h *Handler) HandleAgendaCurrent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	sessionID, ok := pathParam(w, r, "sessionID", id.ParseSessionID)
	if !ok {
		return
	}

	current, err := h.service.IsAgendaCurrent(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "agenda currency check failed", err, "session_id", sessionID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AgendaCurrentResponse{SessionID: sessionID.String(), Current: current})
}

// HandlePublish handles POST /sessions/{sessionID}/publications.
func (h *Handler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	sessionID, ok := pathParam(w, r, "sessionID", id.ParseSessionID)
	if !ok {
		return
	}

	snap, err := h.service.PublishAgenda(ctx, sessionID)
	if err != nil {
		h.fail(ctx, w, "agenda publication failed", err, "session_id", sessionID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromSnapshot(snap))
}

// HandleCastVote handles POST /votes.
func (h *Handler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CastVoteRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	vote, err := h.service.CastVote(ctx, req.cmd)
	if err != nil {
		h.fail(ctx, w, "cast vote failed", err, "case_id", req.CaseID, "session_id", req.SessionID, "member_id", req.MemberID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, vote)
}

// HandleDeleteVote handles DELETE /votes/{voteID}.
func (h *Handler) HandleDeleteVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	voteID, ok := pathParam(w, r, "voteID", id.ParseVoteID)
	if !ok {
		return
	}

	if err := h.service.DeleteVote(ctx, voteID); err != nil {
		h.fail(ctx, w, "delete vote failed", err, "vote_id", voteID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGroupVotes handles POST /cases/{caseID}/grouping.
func (h *Handler) HandleGroupVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	caseID, ok := pathParam(w, r, "caseID", id.ParseCaseID)
	if !ok {
		return
	}

	batches, err := h.service.GroupVotes(ctx, caseID)
	if err != nil {
		h.fail(ctx, w, "vote grouping failed", err, "case_id", caseID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BatchesResponse{Batches: nonNil(batches)})
}

// HandleCaseHistory handles GET /cases/{caseID}/history.
func (h *Handler) HandleCaseHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	caseID, ok := pathParam(w, r, "caseID", id.ParseCaseID)
	if !ok {
		return
	}

	history, err := h.service.CaseHistory(ctx, caseID)
	if err != nil {
		h.fail(ctx, w, "case history query failed", err, "case_id", caseID)
		return
	}
	history.Entries = nonNil(history.Entries)
	history.Distributions = nonNil(history.Distributions)
	history.Votes = nonNil(history.Votes)
	history.Batches = nonNil(history.Batches)
	httputil.WriteJSON(w, http.StatusOK, history)
}

// HandleResolve handles POST /batches/{batchID}/resolution.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	batchID, ok := pathParam(w, r, "batchID", id.ParseBatchID)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	batch, err := h.service.ResolveBatch(ctx, batchID, req.winner)
	if err != nil {
		h.fail(ctx, w, "voting result resolution failed", err, "batch_id", batchID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, batch)
}

// HandleUnanimity handles POST /batches/{batchID}/unanimity.
func (h *Handler) HandleUnanimity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	batchID, ok := pathParam(w, r, "batchID", id.ParseBatchID)
	if !ok {
		return
	}

	batch, err := h.service.DeclareUnanimous(ctx, batchID)
	if err != nil {
		h.fail(ctx, w, "unanimity declaration failed", err, "batch_id", batchID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, batch)
}

// HandleDeleteBatch handles DELETE /batches/{batchID}.
func (h *Handler) HandleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !requireMember(w, r) {
		return
	}
	batchID, ok := pathParam(w, r, "batchID", id.ParseBatchID)
	if !ok {
		return
	}

	if err := h.service.DeleteBatch(ctx, batchID); err != nil {
		h.fail(ctx, w, "delete voting result failed", err, "batch_id", batchID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
