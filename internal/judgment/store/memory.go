package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	dErrors "appeals/pkg/domain-errors"
	"appeals/pkg/platform/sentinel"
)

// defaultTxTimeout is the maximum duration for an in-memory transaction.
const defaultTxTimeout = 5 * time.Second

type entryKey struct {
	caseID    id.CaseID
	sessionID id.SessionID
}

// state is everything the in-memory store holds. Transactions snapshot it
// and restore the snapshot on failure.
type state struct {
	cases         map[id.CaseID]*models.Case
	sessions      map[id.SessionID]*models.Session
	rosters       map[id.SessionID][]models.Member
	entries       map[entryKey]*models.AgendaEntry
	distributions map[id.DistributionID]*models.Distribution
	votes         map[id.VoteID]*models.Vote
	batches       map[id.BatchID]*models.Batch
	snapshots     map[id.SessionID][]*models.PublicationSnapshot
	seq           map[any]int64
	next          int64
}

func newState() *state {
	return &state{
		cases:         make(map[id.CaseID]*models.Case),
		sessions:      make(map[id.SessionID]*models.Session),
		rosters:       make(map[id.SessionID][]models.Member),
		entries:       make(map[entryKey]*models.AgendaEntry),
		distributions: make(map[id.DistributionID]*models.Distribution),
		votes:         make(map[id.VoteID]*models.Vote),
		batches:       make(map[id.BatchID]*models.Batch),
		snapshots:     make(map[id.SessionID][]*models.PublicationSnapshot),
		seq:           make(map[any]int64),
	}
}

// clone copies the state. Stored values are never mutated in place (writes
// replace them with fresh clones), so copying the maps is enough.
func (st *state) clone() *state {
	c := &state{
		cases:         maps.Clone(st.cases),
		sessions:      maps.Clone(st.sessions),
		rosters:       maps.Clone(st.rosters),
		entries:       maps.Clone(st.entries),
		distributions: maps.Clone(st.distributions),
		votes:         maps.Clone(st.votes),
		batches:       maps.Clone(st.batches),
		snapshots:     make(map[id.SessionID][]*models.PublicationSnapshot, len(st.snapshots)),
		seq:           maps.Clone(st.seq),
		next:          st.next,
	}
	for k, v := range st.snapshots {
		c.snapshots[k] = slices.Clone(v)
	}
	return c
}

func (st *state) stamp(key any) {
	st.next++
	st.seq[key] = st.next
}

// InMemory is the engine store for development and tests. Transactions are
// serialized; a failed transaction restores the state it started from.
//
// Error Contract:
// - Return sentinel.ErrNotFound when the requested entity does not exist
// - Return sentinel.ErrAlreadyUsed when a uniqueness rule would be broken
type InMemory struct {
	txMu    sync.Mutex
	mu      sync.RWMutex
	st      *state
	timeout time.Duration
}

type MemoryOption func(*InMemory)

// WithTxTimeout bounds how long a transaction may wait for and hold the lock.
func WithTxTimeout(d time.Duration) MemoryOption {
	return func(s *InMemory) {
		s.timeout = d
	}
}

func NewInMemory(opts ...MemoryOption) *InMemory {
	s := &InMemory{st: newState(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.RLock()
	saved := s.st.clone()
	s.mu.RUnlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.st = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

// LockCase is a no-op: RunInTx already serializes every writer.
func (s *InMemory) LockCase(_ context.Context, _ id.CaseID) error {
	return nil
}

// -----------------------------------------------------------------------------
// Reference data
// -----------------------------------------------------------------------------

func (s *InMemory) SaveCase(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.st.cases[c.ID] = &cp
	return nil
}

func (s *InMemory) SaveSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.st.sessions[session.ID] = &cp
	return nil
}

// SaveRoster replaces the members seated for a session.
func (s *InMemory) SaveRoster(_ context.Context, sessionID id.SessionID, members []models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.rosters[sessionID] = slices.Clone(members)
	return nil
}

func (s *InMemory) FindCase(_ context.Context, caseID id.CaseID) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.cases[caseID]
	if !ok {
		return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) FindSession(_ context.Context, sessionID id.SessionID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.st.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	cp := *session
	return &cp, nil
}

func (s *InMemory) UpdateSessionStatus(_ context.Context, sessionID id.SessionID, status models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.st.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	cp := *session
	cp.Status = status
	cp.UpdatedAt = time.Now()
	s.st.sessions[sessionID] = &cp
	return nil
}

func (s *InMemory) SessionRoster(_ context.Context, sessionID id.SessionID) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.st.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	return slices.Clone(s.st.rosters[sessionID]), nil
}

func (s *InMemory) MarkAwaitingPublication(_ context.Context, caseID id.CaseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.cases[caseID]
	if !ok {
		return fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	cp := *c
	cp.Stage = models.CaseStageAwaitingPublication
	s.st.cases[caseID] = &cp
	return nil
}

// -----------------------------------------------------------------------------
// Agenda entries
// -----------------------------------------------------------------------------

func (s *InMemory) CreateEntry(_ context.Context, entry *models.AgendaEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey{entry.CaseID, entry.SessionID}
	if _, exists := s.st.entries[key]; exists {
		return fmt.Errorf("agenda entry: %w", sentinel.ErrAlreadyUsed)
	}
	s.st.entries[key] = entry.Clone()
	return nil
}

func (s *InMemory) UpdateEntry(_ context.Context, entry *models.AgendaEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey{entry.CaseID, entry.SessionID}
	if _, exists := s.st.entries[key]; !exists {
		return fmt.Errorf("agenda entry: %w", sentinel.ErrNotFound)
	}
	s.st.entries[key] = entry.Clone()
	return nil
}

func (s *InMemory) DeleteEntry(_ context.Context, caseID id.CaseID, sessionID id.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey{caseID, sessionID}
	if _, exists := s.st.entries[key]; !exists {
		return fmt.Errorf("agenda entry: %w", sentinel.ErrNotFound)
	}
	delete(s.st.entries, key)
	return nil
}

func (s *InMemory) FindEntry(_ context.Context, caseID id.CaseID, sessionID id.SessionID) (*models.AgendaEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.st.entries[entryKey{caseID, sessionID}]
	if !ok {
		return nil, fmt.Errorf("agenda entry: %w", sentinel.ErrNotFound)
	}
	return entry.Clone(), nil
}

// ListEntriesBySession returns the agenda ordered by position.
func (s *InMemory) ListEntriesBySession(_ context.Context, sessionID id.SessionID) ([]*models.AgendaEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AgendaEntry
	for key, entry := range s.st.entries {
		if key.sessionID == sessionID {
			out = append(out, entry.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.AgendaEntry) int {
		if a.Position != b.Position {
			return a.Position - b.Position
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// ListEntriesByCase returns the case's entries oldest first.
func (s *InMemory) ListEntriesByCase(_ context.Context, caseID id.CaseID) ([]*models.AgendaEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.AgendaEntry
	for key, entry := range s.st.entries {
		if key.caseID == caseID {
			out = append(out, entry.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.AgendaEntry) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// -----------------------------------------------------------------------------
// Distributions
// -----------------------------------------------------------------------------

func (s *InMemory) CreateDistribution(_ context.Context, d *models.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.distributions {
		if existing.CaseID != d.CaseID {
			continue
		}
		if existing.SessionID == d.SessionID || (existing.Active && d.Active) {
			return fmt.Errorf("distribution: %w", sentinel.ErrAlreadyUsed)
		}
	}
	s.st.distributions[d.ID] = d.Clone()
	s.st.stamp(d.ID)
	return nil
}

func (s *InMemory) UpdateDistribution(_ context.Context, d *models.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.distributions[d.ID]; !ok {
		return fmt.Errorf("distribution %s: %w", d.ID, sentinel.ErrNotFound)
	}
	if d.Active {
		for _, other := range s.st.distributions {
			if other.ID != d.ID && other.CaseID == d.CaseID && other.Active {
				return fmt.Errorf("distribution: %w", sentinel.ErrAlreadyUsed)
			}
		}
	}
	s.st.distributions[d.ID] = d.Clone()
	return nil
}

func (s *InMemory) DeleteDistribution(_ context.Context, distID id.DistributionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.distributions[distID]; !ok {
		return fmt.Errorf("distribution %s: %w", distID, sentinel.ErrNotFound)
	}
	delete(s.st.distributions, distID)
	delete(s.st.seq, distID)
	return nil
}

func (s *InMemory) FindActiveDistribution(_ context.Context, caseID id.CaseID) (*models.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.st.distributions {
		if d.CaseID == caseID && d.Active {
			return d.Clone(), nil
		}
	}
	return nil, fmt.Errorf("active distribution: %w", sentinel.ErrNotFound)
}

func (s *InMemory) FindDistribution(_ context.Context, caseID id.CaseID, sessionID id.SessionID) (*models.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.st.distributions {
		if d.CaseID == caseID && d.SessionID == sessionID {
			return d.Clone(), nil
		}
	}
	return nil, fmt.Errorf("distribution: %w", sentinel.ErrNotFound)
}

// ListDistributionsByCase returns the case's distributions in creation order.
func (s *InMemory) ListDistributionsByCase(_ context.Context, caseID id.CaseID) ([]*models.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Distribution
	for _, d := range s.st.distributions {
		if d.CaseID == caseID {
			out = append(out, d.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Distribution) int {
		return int(s.st.seq[a.ID] - s.st.seq[b.ID])
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Votes
// -----------------------------------------------------------------------------

func (s *InMemory) CreateVote(_ context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.st.votes[v.ID]; exists {
		return fmt.Errorf("vote %s: %w", v.ID, sentinel.ErrAlreadyUsed)
	}
	for _, existing := range s.st.votes {
		if v.ConflictsWith(existing) {
			return fmt.Errorf("vote: %w", sentinel.ErrAlreadyUsed)
		}
	}
	s.st.votes[v.ID] = v.Clone()
	s.st.stamp(v.ID)
	return nil
}

func (s *InMemory) UpdateVote(_ context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.votes[v.ID]; !ok {
		return fmt.Errorf("vote %s: %w", v.ID, sentinel.ErrNotFound)
	}
	s.st.votes[v.ID] = v.Clone()
	return nil
}

func (s *InMemory) DeleteVote(_ context.Context, voteID id.VoteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.votes[voteID]; !ok {
		return fmt.Errorf("vote %s: %w", voteID, sentinel.ErrNotFound)
	}
	delete(s.st.votes, voteID)
	delete(s.st.seq, voteID)
	return nil
}

func (s *InMemory) FindVote(_ context.Context, voteID id.VoteID) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.st.votes[voteID]
	if !ok {
		return nil, fmt.Errorf("vote %s: %w", voteID, sentinel.ErrNotFound)
	}
	return v.Clone(), nil
}

func (s *InMemory) ListVotesByCase(_ context.Context, caseID id.CaseID) ([]*models.Vote, error) {
	return s.listVotes(func(v *models.Vote) bool { return v.CaseID == caseID }), nil
}

func (s *InMemory) ListVotesByBatch(_ context.Context, batchID id.BatchID) ([]*models.Vote, error) {
	return s.listVotes(func(v *models.Vote) bool { return v.BatchID != nil && *v.BatchID == batchID }), nil
}

func (s *InMemory) ListFollowers(_ context.Context, voteID id.VoteID) ([]*models.Vote, error) {
	return s.listVotes(func(v *models.Vote) bool { return v.FollowsVoteID != nil && *v.FollowsVoteID == voteID }), nil
}

// listVotes returns matching votes in cast order.
func (s *InMemory) listVotes(match func(*models.Vote) bool) []*models.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Vote
	for _, v := range s.st.votes {
		if match(v) {
			out = append(out, v.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Vote) int {
		return int(s.st.seq[a.ID] - s.st.seq[b.ID])
	})
	return out
}

// -----------------------------------------------------------------------------
// Voting results
// -----------------------------------------------------------------------------

func (s *InMemory) CreateBatch(_ context.Context, b *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.IsOpen() {
		for _, existing := range s.st.batches {
			if existing.CaseID == b.CaseID && existing.IsOpen() && existing.Key() == b.Key() {
				return fmt.Errorf("open voting result: %w", sentinel.ErrAlreadyUsed)
			}
		}
	}
	s.st.batches[b.ID] = b.Clone()
	s.st.stamp(b.ID)
	return nil
}

func (s *InMemory) UpdateBatch(_ context.Context, b *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.batches[b.ID]; !ok {
		return fmt.Errorf("voting result %s: %w", b.ID, sentinel.ErrNotFound)
	}
	s.st.batches[b.ID] = b.Clone()
	return nil
}

func (s *InMemory) DeleteBatch(_ context.Context, batchID id.BatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.batches[batchID]; !ok {
		return fmt.Errorf("voting result %s: %w", batchID, sentinel.ErrNotFound)
	}
	delete(s.st.batches, batchID)
	delete(s.st.seq, batchID)
	return nil
}

func (s *InMemory) FindBatch(_ context.Context, batchID id.BatchID) (*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.st.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("voting result %s: %w", batchID, sentinel.ErrNotFound)
	}
	return b.Clone(), nil
}

func (s *InMemory) ListBatchesByCase(_ context.Context, caseID id.CaseID) ([]*models.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Batch
	for _, b := range s.st.batches {
		if b.CaseID == caseID {
			out = append(out, b.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Batch) int {
		return int(s.st.seq[a.ID] - s.st.seq[b.ID])
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Publication snapshots
// -----------------------------------------------------------------------------

func (s *InMemory) CreateSnapshot(_ context.Context, snap *models.PublicationSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	cp.Entries = slices.Clone(snap.Entries)
	s.st.snapshots[snap.SessionID] = append(s.st.snapshots[snap.SessionID], &cp)
	return nil
}

func (s *InMemory) LatestSnapshot(_ context.Context, sessionID id.SessionID) (*models.PublicationSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := s.st.snapshots[sessionID]
	if len(snaps) == 0 {
		return nil, fmt.Errorf("publication snapshot: %w", sentinel.ErrNotFound)
	}
	latest := *snaps[len(snaps)-1]
	latest.Entries = slices.Clone(latest.Entries)
	return &latest, nil
}
