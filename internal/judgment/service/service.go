package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Roster,CaseStages,DecisionCatalog,AuditPublisher

import (
	"context"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"appeals/internal/judgment/metrics"
	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	audit "appeals/pkg/platform/audit"
)

type AgendaStore interface {
	CreateEntry(ctx context.Context, entry *models.AgendaEntry) error
	UpdateEntry(ctx context.Context, entry *models.AgendaEntry) error
	DeleteEntry(ctx context.Context, caseID id.CaseID, sessionID id.SessionID) error
	FindEntry(ctx context.Context, caseID id.CaseID, sessionID id.SessionID) (*models.AgendaEntry, error)
	ListEntriesBySession(ctx context.Context, sessionID id.SessionID) ([]*models.AgendaEntry, error)
	ListEntriesByCase(ctx context.Context, caseID id.CaseID) ([]*models.AgendaEntry, error)
}

type DistributionStore interface {
	CreateDistribution(ctx context.Context, d *models.Distribution) error
	UpdateDistribution(ctx context.Context, d *models.Distribution) error
	DeleteDistribution(ctx context.Context, distID id.DistributionID) error
	FindActiveDistribution(ctx context.Context, caseID id.CaseID) (*models.Distribution, error)
	FindDistribution(ctx context.Context, caseID id.CaseID, sessionID id.SessionID) (*models.Distribution, error)
	ListDistributionsByCase(ctx context.Context, caseID id.CaseID) ([]*models.Distribution, error)
}

type VoteStore interface {
	CreateVote(ctx context.Context, v *models.Vote) error
	UpdateVote(ctx context.Context, v *models.Vote) error
	DeleteVote(ctx context.Context, voteID id.VoteID) error
	FindVote(ctx context.Context, voteID id.VoteID) (*models.Vote, error)
	ListVotesByCase(ctx context.Context, caseID id.CaseID) ([]*models.Vote, error)
	ListVotesByBatch(ctx context.Context, batchID id.BatchID) ([]*models.Vote, error)
	ListFollowers(ctx context.Context, voteID id.VoteID) ([]*models.Vote, error)
}

type BatchStore interface {
	CreateBatch(ctx context.Context, b *models.Batch) error
	UpdateBatch(ctx context.Context, b *models.Batch) error
	DeleteBatch(ctx context.Context, batchID id.BatchID) error
	FindBatch(ctx context.Context, batchID id.BatchID) (*models.Batch, error)
	ListBatchesByCase(ctx context.Context, caseID id.CaseID) ([]*models.Batch, error)
}

type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, snap *models.PublicationSnapshot) error
	LatestSnapshot(ctx context.Context, sessionID id.SessionID) (*models.PublicationSnapshot, error)
}

// ReferenceStore reads case and session data owned by intake and scheduling.
// Only the session publication status is written back.
type ReferenceStore interface {
	FindCase(ctx context.Context, caseID id.CaseID) (*models.Case, error)
	FindSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, sessionID id.SessionID, status models.SessionStatus) error
}

// Store is the full persistence port of the engine.
type Store interface {
	AgendaStore
	DistributionStore
	VoteStore
	BatchStore
	SnapshotStore
	ReferenceStore
	// LockCase serializes writers of one case for the rest of the transaction.
	LockCase(ctx context.Context, caseID id.CaseID) error
}

// StoreTx provides a transactional boundary. Store calls made with txCtx
// participate in the transaction; a non-nil error from fn rolls back every
// write made through it.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// Roster lists the members seated for a session, with eligibility.
type Roster interface {
	SessionRoster(ctx context.Context, sessionID id.SessionID) ([]models.Member, error)
}

// CaseStages advances the overall case stage owned by case intake.
type CaseStages interface {
	MarkAwaitingPublication(ctx context.Context, caseID id.CaseID) error
}

// DecisionCatalog validates decision references against the taxonomy.
type DecisionCatalog interface {
	ValidatePreliminary(code id.DecisionCode) error
	ValidateMerit(code id.DecisionCode) error
}

// AuditPublisher persists compliance events. It is called inside the
// transaction so events commit or roll back with the change they record.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Service is the judgment and distribution engine.
type Service struct {
	store   Store
	tx      StoreTx
	roster  Roster
	stages  CaseStages
	catalog DecisionCatalog
	auditor AuditPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithDecisionCatalog(catalog DecisionCatalog) Option {
	return func(s *Service) {
		s.catalog = catalog
	}
}

// New constructs the engine. tx must run closures against the same backing
// storage as store.
func New(store Store, tx StoreTx, roster Roster, stages CaseStages, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     tx,
		roster: roster,
		stages: stages,
		tracer: otel.Tracer("appeals/judgment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}
