package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"appeals/internal/judgment/models"
	id "appeals/pkg/domain"
	"appeals/pkg/platform/sentinel"
	txcontext "appeals/pkg/platform/tx"
)

const uniqueViolation = "23505"

// Postgres persists the engine state in PostgreSQL. Every method runs on the
// transaction carried by ctx when there is one.
//
// Error Contract:
// - Return sentinel.ErrNotFound when the requested row does not exist
// - Return sentinel.ErrAlreadyUsed when a unique index rejects the write
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

type PostgresOption func(*Postgres)

// WithPostgresTxTimeout bounds transactions started without a deadline.
func WithPostgresTxTimeout(d time.Duration) PostgresOption {
	return func(s *Postgres) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	s := &Postgres{db: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

// mapWriteErr turns unique violations into sentinel.ErrAlreadyUsed.
func mapWriteErr(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, sentinel.ErrNotFound)
	}
	return nil
}

// LockCase serializes writers of one case until the surrounding transaction
// ends.
func (s *Postgres) LockCase(ctx context.Context, caseID id.CaseID) error {
	_, err := s.execer(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, caseID.String())
	if err != nil {
		return fmt.Errorf("lock case: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Reference data
// -----------------------------------------------------------------------------

func (s *Postgres) SaveCase(ctx context.Context, c *models.Case) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO cases (id, number, stage) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET number = EXCLUDED.number, stage = EXCLUDED.stage
	`, uuid.UUID(c.ID), c.Number, string(c.Stage))
	if err != nil {
		return fmt.Errorf("save case: %w", err)
	}
	return nil
}

func (s *Postgres) SaveSession(ctx context.Context, session *models.Session) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO sessions (id, session_date, kind, status, updated_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET session_date = EXCLUDED.session_date, kind = EXCLUDED.kind,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at
	`, uuid.UUID(session.ID), session.Date, session.Kind, string(session.Status), time.Now())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SaveRoster replaces the members seated for a session.
func (s *Postgres) SaveRoster(ctx context.Context, sessionID id.SessionID, members []models.Member) error {
	exec := s.execer(ctx)
	if _, err := exec.ExecContext(ctx, `DELETE FROM session_members WHERE session_id = $1`, uuid.UUID(sessionID)); err != nil {
		return fmt.Errorf("clear roster: %w", err)
	}
	for i, m := range members {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO session_members (session_id, member_id, name, role, eligible, seat)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.UUID(sessionID), uuid.UUID(m.ID), m.Name, string(m.Role), m.Eligible, i)
		if err != nil {
			return mapWriteErr(err, "insert roster member")
		}
	}
	return nil
}

func (s *Postgres) FindCase(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	var (
		rawID uuid.UUID
		c     models.Case
		stage string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT id, number, stage FROM cases WHERE id = $1`, uuid.UUID(caseID)).
		Scan(&rawID, &c.Number, &stage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find case: %w", err)
	}
	c.ID = id.CaseID(rawID)
	c.Stage = models.CaseStage(stage)
	return &c, nil
}

func (s *Postgres) FindSession(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	var (
		rawID   uuid.UUID
		session models.Session
		status  string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, session_date, kind, status, updated_at FROM sessions WHERE id = $1
	`, uuid.UUID(sessionID)).Scan(&rawID, &session.Date, &session.Kind, &status, &session.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	session.ID = id.SessionID(rawID)
	session.Status = models.SessionStatus(status)
	return &session, nil
}

func (s *Postgres) UpdateSessionStatus(ctx context.Context, sessionID id.SessionID, status models.SessionStatus) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1
	`, uuid.UUID(sessionID), string(status), time.Now())
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return requireAffected(res, "session")
}

func (s *Postgres) SessionRoster(ctx context.Context, sessionID id.SessionID) ([]models.Member, error) {
	if _, err := s.FindSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT member_id, name, role, eligible FROM session_members WHERE session_id = $1 ORDER BY seat
	`, uuid.UUID(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var (
			rawID uuid.UUID
			m     models.Member
			role  string
		)
		if err := rows.Scan(&rawID, &m.Name, &role, &m.Eligible); err != nil {
			return nil, fmt.Errorf("scan roster member: %w", err)
		}
		m.ID = id.MemberID(rawID)
		m.Role = models.MemberRole(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster: %w", err)
	}
	return members, nil
}

func (s *Postgres) MarkAwaitingPublication(ctx context.Context, caseID id.CaseID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `UPDATE cases SET stage = $2 WHERE id = $1`,
		uuid.UUID(caseID), string(models.CaseStageAwaitingPublication))
	if err != nil {
		return fmt.Errorf("advance case stage: %w", err)
	}
	return requireAffected(res, "case")
}

// -----------------------------------------------------------------------------
// Agenda entries
// -----------------------------------------------------------------------------

const entryColumns = `case_id, session_id, position, status, inquiry_deadline_days, review_requester,
	added_after_publication, created_at, updated_at`

func (s *Postgres) CreateEntry(ctx context.Context, e *models.AgendaEntry) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO agenda_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entryArgs(e)...)
	if err != nil {
		return mapWriteErr(err, "insert agenda entry")
	}
	return nil
}

func (s *Postgres) UpdateEntry(ctx context.Context, e *models.AgendaEntry) error {
	args := entryArgs(e)
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE agenda_entries SET position = $3, status = $4, inquiry_deadline_days = $5,
			review_requester = $6, added_after_publication = $7, updated_at = $8
		WHERE case_id = $1 AND session_id = $2
	`, args[0], args[1], args[2], args[3], args[4], args[5], args[6], e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update agenda entry: %w", err)
	}
	return requireAffected(res, "agenda entry")
}

func (s *Postgres) DeleteEntry(ctx context.Context, caseID id.CaseID, sessionID id.SessionID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM agenda_entries WHERE case_id = $1 AND session_id = $2
	`, uuid.UUID(caseID), uuid.UUID(sessionID))
	if err != nil {
		return fmt.Errorf("delete agenda entry: %w", err)
	}
	return requireAffected(res, "agenda entry")
}

func (s *Postgres) FindEntry(ctx context.Context, caseID id.CaseID, sessionID id.SessionID) (*models.AgendaEntry, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+entryColumns+` FROM agenda_entries WHERE case_id = $1 AND session_id = $2
	`, uuid.UUID(caseID), uuid.UUID(sessionID))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agenda entry: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find agenda entry: %w", err)
	}
	return e, nil
}

func (s *Postgres) ListEntriesBySession(ctx context.Context, sessionID id.SessionID) ([]*models.AgendaEntry, error) {
	return s.listEntries(ctx, `
		SELECT `+entryColumns+` FROM agenda_entries WHERE session_id = $1 ORDER BY position, created_at
	`, uuid.UUID(sessionID))
}

func (s *Postgres) ListEntriesByCase(ctx context.Context, caseID id.CaseID) ([]*models.AgendaEntry, error) {
	return s.listEntries(ctx, `
		SELECT `+entryColumns+` FROM agenda_entries WHERE case_id = $1 ORDER BY created_at
	`, uuid.UUID(caseID))
}

func (s *Postgres) listEntries(ctx context.Context, query string, arg any) ([]*models.AgendaEntry, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list agenda entries: %w", err)
	}
	defer rows.Close()

	var out []*models.AgendaEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agenda entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agenda entries: %w", err)
	}
	return out, nil
}

func entryArgs(e *models.AgendaEntry) []any {
	var deadline sql.NullInt32
	if e.InquiryDeadlineDays != nil {
		deadline = sql.NullInt32{Int32: int32(*e.InquiryDeadlineDays), Valid: true}
	}
	var requester uuid.NullUUID
	if e.ReviewRequester != nil {
		requester = uuid.NullUUID{UUID: uuid.UUID(*e.ReviewRequester), Valid: true}
	}
	return []any{
		uuid.UUID(e.CaseID),
		uuid.UUID(e.SessionID),
		e.Position,
		string(e.Status),
		deadline,
		requester,
		e.AddedAfterPublication,
		e.CreatedAt,
		e.UpdatedAt,
	}
}

func scanEntry(row rowScanner) (*models.AgendaEntry, error) {
	var (
		caseID, sessionID uuid.UUID
		status            string
		deadline          sql.NullInt32
		requester         uuid.NullUUID
		e                 models.AgendaEntry
	)
	if err := row.Scan(&caseID, &sessionID, &e.Position, &status, &deadline, &requester,
		&e.AddedAfterPublication, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.CaseID = id.CaseID(caseID)
	e.SessionID = id.SessionID(sessionID)
	e.Status = models.AgendaStatus(status)
	if deadline.Valid {
		days := int(deadline.Int32)
		e.InquiryDeadlineDays = &days
	}
	if requester.Valid {
		member := id.MemberID(requester.UUID)
		e.ReviewRequester = &member
	}
	return &e, nil
}

// -----------------------------------------------------------------------------
// Distributions
// -----------------------------------------------------------------------------

const distributionColumns = `id, case_id, session_id, rapporteur, distributee, reviewers, position, active,
	created_at, updated_at`

func (s *Postgres) CreateDistribution(ctx context.Context, d *models.Distribution) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO distributions (`+distributionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, distributionArgs(d)...)
	if err != nil {
		return mapWriteErr(err, "insert distribution")
	}
	return nil
}

func (s *Postgres) UpdateDistribution(ctx context.Context, d *models.Distribution) error {
	args := distributionArgs(d)
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE distributions SET distributee = $2, reviewers = $3, position = $4, active = $5, updated_at = $6
		WHERE id = $1
	`, args[0], args[4], args[5], args[6], args[7], d.UpdatedAt)
	if err != nil {
		return mapWriteErr(err, "update distribution")
	}
	return requireAffected(res, "distribution")
}

func (s *Postgres) DeleteDistribution(ctx context.Context, distID id.DistributionID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM distributions WHERE id = $1`, uuid.UUID(distID))
	if err != nil {
		return fmt.Errorf("delete distribution: %w", err)
	}
	return requireAffected(res, "distribution")
}

func (s *Postgres) FindActiveDistribution(ctx context.Context, caseID id.CaseID) (*models.Distribution, error) {
	return s.findDistribution(ctx, `
		SELECT `+distributionColumns+` FROM distributions WHERE case_id = $1 AND active
	`, uuid.UUID(caseID))
}

func (s *Postgres) FindDistribution(ctx context.Context, caseID id.CaseID, sessionID id.SessionID) (*models.Distribution, error) {
	return s.findDistribution(ctx, `
		SELECT `+distributionColumns+` FROM distributions WHERE case_id = $1 AND session_id = $2
	`, uuid.UUID(caseID), uuid.UUID(sessionID))
}

func (s *Postgres) findDistribution(ctx context.Context, query string, args ...any) (*models.Distribution, error) {
	d, err := scanDistribution(s.execer(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("distribution: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find distribution: %w", err)
	}
	return d, nil
}

func (s *Postgres) ListDistributionsByCase(ctx context.Context, caseID id.CaseID) ([]*models.Distribution, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+distributionColumns+` FROM distributions WHERE case_id = $1 ORDER BY seq
	`, uuid.UUID(caseID))
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var out []*models.Distribution
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distributions: %w", err)
	}
	return out, nil
}

func distributionArgs(d *models.Distribution) []any {
	reviewers := make([]string, 0, len(d.Reviewers))
	for _, r := range d.Reviewers {
		reviewers = append(reviewers, r.String())
	}
	return []any{
		uuid.UUID(d.ID),
		uuid.UUID(d.CaseID),
		uuid.UUID(d.SessionID),
		uuid.UUID(d.Rapporteur),
		uuid.UUID(d.Distributee),
		pq.Array(reviewers),
		d.Position,
		d.Active,
		d.CreatedAt,
		d.UpdatedAt,
	}
}

func scanDistribution(row rowScanner) (*models.Distribution, error) {
	var (
		distID, caseID, sessionID uuid.UUID
		rapporteur, distributee   uuid.UUID
		reviewers                 []string
		d                         models.Distribution
	)
	if err := row.Scan(&distID, &caseID, &sessionID, &rapporteur, &distributee, pq.Array(&reviewers),
		&d.Position, &d.Active, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ID = id.DistributionID(distID)
	d.CaseID = id.CaseID(caseID)
	d.SessionID = id.SessionID(sessionID)
	d.Rapporteur = id.MemberID(rapporteur)
	d.Distributee = id.MemberID(distributee)
	d.Reviewers = make([]id.MemberID, 0, len(reviewers))
	for _, raw := range reviewers {
		member, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse reviewer: %w", err)
		}
		d.Reviewers = append(d.Reviewers, id.MemberID(member))
	}
	return &d, nil
}

// -----------------------------------------------------------------------------
// Publication snapshots
// -----------------------------------------------------------------------------

func (s *Postgres) CreateSnapshot(ctx context.Context, snap *models.PublicationSnapshot) error {
	exec := s.execer(ctx)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO snapshots (id, session_id, published_at) VALUES ($1, $2, $3)
	`, uuid.UUID(snap.ID), uuid.UUID(snap.SessionID), snap.PublishedAt)
	if err != nil {
		return mapWriteErr(err, "insert snapshot")
	}
	for _, e := range snap.Entries {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO snapshot_entries (snapshot_id, case_id, distributee) VALUES ($1, $2, $3)
		`, uuid.UUID(snap.ID), uuid.UUID(e.CaseID), uuid.UUID(e.Distributee))
		if err != nil {
			return mapWriteErr(err, "insert snapshot entry")
		}
	}
	return nil
}

func (s *Postgres) LatestSnapshot(ctx context.Context, sessionID id.SessionID) (*models.PublicationSnapshot, error) {
	exec := s.execer(ctx)
	var (
		snapID, rawSession uuid.UUID
		snap               models.PublicationSnapshot
	)
	err := exec.QueryRowContext(ctx, `
		SELECT id, session_id, published_at FROM snapshots WHERE session_id = $1 ORDER BY seq DESC LIMIT 1
	`, uuid.UUID(sessionID)).Scan(&snapID, &rawSession, &snap.PublishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("publication snapshot: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find snapshot: %w", err)
	}
	snap.ID = id.SnapshotID(snapID)
	snap.SessionID = id.SessionID(rawSession)

	rows, err := exec.QueryContext(ctx, `
		SELECT case_id, distributee FROM snapshot_entries WHERE snapshot_id = $1
	`, snapID)
	if err != nil {
		return nil, fmt.Errorf("list snapshot entries: %w", err)
	}
	defer rows.Close()
	snap.Entries = []models.SnapshotEntry{}
	for rows.Next() {
		var caseID, distributee uuid.UUID
		if err := rows.Scan(&caseID, &distributee); err != nil {
			return nil, fmt.Errorf("scan snapshot entry: %w", err)
		}
		snap.Entries = append(snap.Entries, models.SnapshotEntry{
			CaseID:      id.CaseID(caseID),
			Distributee: id.MemberID(distributee),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot entries: %w", err)
	}
	return &snap, nil
}
