package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the judgment engine.
// Tracks votes, batch resolutions and the duration of the transactional paths.
type Metrics struct {
	VotesCast           prometheus.Counter
	VotesDeleted        prometheus.Counter
	BatchesResolved     *prometheus.CounterVec
	ReviewerRollbacks   prometheus.Counter
	CasesDecided        prometheus.Counter
	AgendaPublications  prometheus.Counter
	CastVoteDuration    prometheus.Histogram
	ResolveDuration     prometheus.Histogram
	ReconcileDuration   prometheus.Histogram
	TransactionFailures *prometheus.CounterVec
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VotesCast: f.NewCounter(prometheus.CounterOpts{
			Name: "appeals_votes_cast_total",
			Help: "Total number of votes recorded, including synthesized unanimity votes",
		}),
		VotesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "appeals_votes_deleted_total",
			Help: "Total number of votes deleted",
		}),
		BatchesResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appeals_voting_results_resolved_total",
			Help: "Total number of voting results resolved, by category and path",
		}, []string{"category", "path"}),
		ReviewerRollbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "appeals_reviewer_rollbacks_total",
			Help: "Total number of reviewers removed by vote deletion",
		}),
		CasesDecided: f.NewCounter(prometheus.CounterOpts{
			Name: "appeals_cases_decided_total",
			Help: "Total number of agenda entries that reached decided",
		}),
		AgendaPublications: f.NewCounter(prometheus.CounterOpts{
			Name: "appeals_agenda_publications_total",
			Help: "Total number of session agenda publications",
		}),
		CastVoteDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "appeals_cast_vote_duration_seconds",
			Help:    "Duration of CastVote including grouping",
			Buckets: durationBuckets,
		}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "appeals_resolve_duration_seconds",
			Help:    "Duration of voting result resolution (manual and unanimity)",
			Buckets: durationBuckets,
		}),
		ReconcileDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "appeals_reconcile_duration_seconds",
			Help:    "Duration of agenda reconciliation against the last publication",
			Buckets: durationBuckets,
		}),
		TransactionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "appeals_transaction_failures_total",
			Help: "Total number of engine transactions rolled back, by operation",
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementVotesCast(n int) {
	m.VotesCast.Add(float64(n))
}

func (m *Metrics) IncrementVotesDeleted(n int) {
	m.VotesDeleted.Add(float64(n))
}

// IncrementBatchResolved records a resolution. path is "manual" or "unanimity".
func (m *Metrics) IncrementBatchResolved(category, path string) {
	m.BatchesResolved.WithLabelValues(category, path).Inc()
}

func (m *Metrics) IncrementReviewerRollback() {
	m.ReviewerRollbacks.Inc()
}

func (m *Metrics) IncrementCaseDecided() {
	m.CasesDecided.Inc()
}

func (m *Metrics) IncrementAgendaPublished() {
	m.AgendaPublications.Inc()
}

func (m *Metrics) IncrementTransactionFailure(operation string) {
	m.TransactionFailures.WithLabelValues(operation).Inc()
}

// ObserveCastVote records the duration of a CastVote operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveCastVote(start time.Time) {
	m.CastVoteDuration.Observe(time.Since(start).Seconds())
}

// ObserveResolve records the duration of a resolution.
func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveReconcile(start time.Time) {
	m.ReconcileDuration.Observe(time.Since(start).Seconds())
}
