// Package postgres persists the audit chain in PostgreSQL.
//
// The chain tail lives in a single row (audit_chain_tail). An append locks that
// row with SELECT ... FOR UPDATE, links the entry, inserts it and advances the
// tail in one transaction, so appends from every process are serialized by the
// database. Purged entries leave a row in audit_tombstones that keeps their
// chain position and hashes.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"audittrail/internal/audit/chain"
	"audittrail/internal/audit/models"
	"audittrail/pkg/platform/sentinel"
	txcontext "audittrail/pkg/platform/tx"
)

const (
	purgeLockKey   int64 = 0x61756469745f7031 // "audit_p1"
	migrateLockKey int64 = 0x61756469745f6d31 // "audit_m1"

	defaultLockTimeout = 5 * time.Second
)

const entryColumns = `id, sequence, previous_hash, data_hash, "timestamp",
	event_type, entity_type, entity_id, user_id, user_name, user_role,
	old_value, new_value, change_reason, user_comment,
	source, ip_address, user_agent, session_id, request_id, api_endpoint,
	is_critical, is_security_relevant, is_compliance_relevant, legal_basis,
	retention_until, schema_version`

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the PostgreSQL-backed audit store.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithLockTimeout bounds how long an append waits for the chain tail lock before
// the attempt fails as a conflict.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) querier(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// AppendLinked links and inserts one entry under the chain tail lock. A
// transaction in ctx is joined; otherwise the append runs in its own.
//
// ctx bounds only the wait for the tail lock. Once the lock is held the insert
// and the commit run to completion, so a cancelled caller never leaves the
// chain half-written.
func (s *Store) AppendLinked(ctx context.Context, link chain.LinkFunc) (*models.Entry, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.appendInTx(ctx, tx, link)
	}

	work := context.WithoutCancel(ctx)
	tx, err := s.db.BeginTx(work, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	e, err := s.appendInTx(ctx, tx, link)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", classify(err))
	}
	return e, nil
}

func (s *Store) appendInTx(ctx context.Context, tx *sql.Tx, link chain.LinkFunc) (*models.Entry, error) {
	restore, err := s.boundLockWait(ctx, tx)
	if err != nil {
		return nil, err
	}

	var tail models.Tail
	err = tx.QueryRowContext(ctx,
		`SELECT sequence, last_hash FROM audit_chain_tail WHERE id = 1 FOR UPDATE`,
	).Scan(&tail.Sequence, &tail.Hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chain tail row missing, run migrations: %w", sentinel.ErrUnavailable)
		}
		return nil, fmt.Errorf("lock chain tail: %w", classify(err))
	}

	work := context.WithoutCancel(ctx)
	if err := restore(work); err != nil {
		return nil, err
	}
	e := link(tail)

	query := `INSERT INTO audit_entries (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`
	_, err = tx.ExecContext(work, query,
		e.ID, e.Sequence, e.PreviousHash, e.DataHash, e.Timestamp,
		string(e.EventType), e.EntityType, e.EntityID, e.UserID, e.UserName, e.UserRole,
		e.OldValue, e.NewValue, e.ChangeReason, e.UserComment,
		string(e.Source), e.IPAddress, e.UserAgent, e.SessionID, e.RequestID, e.APIEndpoint,
		e.IsCritical, e.IsSecurityRelevant, e.IsComplianceRelevant, string(e.LegalBasis),
		e.RetentionUntil, e.SchemaVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", classify(err))
	}

	res, err := tx.ExecContext(work,
		`UPDATE audit_chain_tail SET sequence = $1, last_hash = $2 WHERE id = 1 AND sequence = $3`,
		e.Sequence, e.DataHash, tail.Sequence,
	)
	if err != nil {
		return nil, fmt.Errorf("advance chain tail: %w", classify(err))
	}
	if n, err := res.RowsAffected(); err != nil || n != 1 {
		return nil, fmt.Errorf("advance chain tail: %w", sentinel.ErrConflict)
	}
	return e, nil
}

// boundLockWait applies the store's lock timeout to the transaction and returns
// a func that puts the previous setting back. Only the tail lock wait is
// bounded; a joined caller transaction keeps its own lock_timeout afterwards.
func (s *Store) boundLockWait(ctx context.Context, tx *sql.Tx) (func(context.Context) error, error) {
	if s.lockTimeout <= 0 {
		return func(context.Context) error { return nil }, nil
	}

	var previous string
	if err := tx.QueryRowContext(ctx, `SELECT current_setting('lock_timeout')`).Scan(&previous); err != nil {
		return nil, fmt.Errorf("read lock timeout: %w", classify(err))
	}
	timeout := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", classify(err))
	}

	return func(ctx context.Context) error {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, previous); err != nil {
			return fmt.Errorf("restore lock timeout: %w", classify(err))
		}
		return nil
	}, nil
}

// Tail returns the last committed chain position.
func (s *Store) Tail(ctx context.Context) (models.Tail, error) {
	var tail models.Tail
	err := s.querier(ctx).QueryRowContext(ctx,
		`SELECT sequence, last_hash FROM audit_chain_tail WHERE id = 1`,
	).Scan(&tail.Sequence, &tail.Hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Tail{}, nil
	}
	if err != nil {
		return models.Tail{}, fmt.Errorf("read chain tail: %w", classify(err))
	}
	return tail, nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*models.Entry, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get audit entry: %w", classify(err))
	}
	return e, nil
}

// Find returns matching entries, newest first.
func (s *Store) Find(ctx context.Context, f models.Filter) ([]*models.Entry, error) {
	where, args := buildWhere(f)
	query := `SELECT ` + entryColumns + ` FROM audit_entries` + where + ` ORDER BY sequence DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find audit entries: %w", classify(err))
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, f models.Filter) (int64, error) {
	where, args := buildWhere(f)
	var n int64
	err := s.querier(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", classify(err))
	}
	return n, nil
}

// CountDistinct counts distinct non-empty values of field among matching entries.
func (s *Store) CountDistinct(ctx context.Context, f models.Filter, field models.Field) (int64, error) {
	expr, err := fieldExpr(field)
	if err != nil {
		return 0, err
	}
	where, args := buildWhere(f, expr+` <> ''`)
	var n int64
	err = s.querier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT `+expr+`) FROM audit_entries`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count distinct %s: %w", field, classify(err))
	}
	return n, nil
}

// GroupCount counts matching entries per non-empty value of field.
func (s *Store) GroupCount(ctx context.Context, f models.Filter, field models.Field) (map[string]int64, error) {
	expr, err := fieldExpr(field)
	if err != nil {
		return nil, err
	}
	where, args := buildWhere(f, expr+` <> ''`)
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+expr+`, COUNT(*) FROM audit_entries`+where+` GROUP BY 1`, args...)
	if err != nil {
		return nil, fmt.Errorf("group by %s: %w", field, classify(err))
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scan group count: %w", err)
		}
		out[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group counts: %w", err)
	}
	return out, nil
}

// ChainLinks returns every position from the first sequence stamped at or after
// from up to the last sequence stamped before to, by sequence. Zero bounds are
// open. Positions inside that window are returned whatever their own timestamp,
// since timestamps are taken before the tail lock and need not follow sequence.
func (s *Store) ChainLinks(ctx context.Context, from, to time.Time) ([]models.ChainLink, error) {
	lo, hi, err := s.sequenceWindow(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if hi == 0 {
		return nil, nil
	}

	entries, err := s.queryEntries(ctx, `SELECT `+entryColumns+` FROM audit_entries
		WHERE sequence BETWEEN $1 AND $2 ORDER BY sequence`, lo, hi)
	if err != nil {
		return nil, err
	}
	tombstones, err := s.queryTombstones(ctx, `SELECT id, sequence, "timestamp", event_type, previous_hash, data_hash, purged_at
		FROM audit_tombstones WHERE sequence BETWEEN $1 AND $2 ORDER BY sequence`, lo, hi)
	if err != nil {
		return nil, err
	}

	links := make([]models.ChainLink, 0, len(entries)+len(tombstones))
	i, j := 0, 0
	for i < len(entries) || j < len(tombstones) {
		if j >= len(tombstones) || (i < len(entries) && entries[i].Sequence < tombstones[j].Sequence) {
			links = append(links, entries[i].Link())
			i++
			continue
		}
		links = append(links, tombstones[j].Link())
		j++
	}
	return links, nil
}

// sequenceWindow maps [from, to) onto the lowest and highest sequence, live or
// purged, stamped inside it. hi is 0 when nothing falls inside.
func (s *Store) sequenceWindow(ctx context.Context, from, to time.Time) (lo, hi int64, err error) {
	var (
		conds []string
		args  []any
	)
	if !from.IsZero() {
		args = append(args, from.UTC())
		conds = append(conds, fmt.Sprintf(`"timestamp" >= $%d`, len(args)))
	}
	if !to.IsZero() {
		args = append(args, to.UTC())
		conds = append(conds, fmt.Sprintf(`"timestamp" < $%d`, len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	err = s.querier(ctx).QueryRowContext(ctx, `SELECT COALESCE(MIN(sequence), 0), COALESCE(MAX(sequence), 0) FROM (
		SELECT sequence, "timestamp" FROM audit_entries
		UNION ALL
		SELECT sequence, "timestamp" FROM audit_tombstones
	) positions`+where, args...).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, fmt.Errorf("read sequence window: %w", classify(err))
	}
	return lo, hi, nil
}

// LinkAt returns the entry or tombstone at sequence.
func (s *Store) LinkAt(ctx context.Context, sequence int64) (models.ChainLink, error) {
	row := s.querier(ctx).QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM audit_entries WHERE sequence = $1`, sequence)
	e, err := scanEntry(row)
	if err == nil {
		return e.Link(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ChainLink{}, fmt.Errorf("read chain link %d: %w", sequence, classify(err))
	}

	tombstones, err := s.queryTombstones(ctx, `SELECT id, sequence, "timestamp", event_type, previous_hash, data_hash, purged_at
		FROM audit_tombstones WHERE sequence = $1`, sequence)
	if err != nil {
		return models.ChainLink{}, err
	}
	if len(tombstones) == 0 {
		return models.ChainLink{}, sentinel.ErrNotFound
	}
	return tombstones[0].Link(), nil
}

// WithPurgeLock runs fn inside a transaction holding the purge advisory lock,
// exclusive for purges and shared for verification. The transaction is placed in
// the context handed to fn, so appends and deletes inside fn commit together.
func (s *Store) WithPurgeLock(ctx context.Context, exclusive bool, fn func(ctx context.Context) error) (err error) {
	lockFn := `SELECT pg_advisory_xact_lock_shared($1)`
	if exclusive {
		lockFn = `SELECT pg_advisory_xact_lock($1)`
	}

	if tx, ok := txcontext.From(ctx); ok {
		if _, err := tx.ExecContext(ctx, lockFn, purgeLockKey); err != nil {
			return fmt.Errorf("acquire purge lock: %w", classify(err))
		}
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin purge lock: %w", classify(err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, lockFn, purgeLockKey); err != nil {
		return fmt.Errorf("acquire purge lock: %w", classify(err))
	}
	if err = fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit purge lock: %w", classify(err))
	}
	return nil
}

// CountOlderThan counts entries whose retention ended before cutoff.
func (s *Store) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.querier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_entries WHERE retention_until < $1`, cutoff.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count expired entries: %w", classify(err))
	}
	return n, nil
}

// DeleteOlderThan removes entries whose retention ended before cutoff, keeping a
// tombstone for each removed chain position. The update trigger does not fire on
// DELETE.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff, purgedAt time.Time) (int64, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.deleteOlderThan(ctx, s.querier(ctx), cutoff, purgedAt)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	n, err := s.deleteOlderThan(ctx, tx, cutoff, purgedAt)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", classify(err))
	}
	return n, nil
}

func (s *Store) deleteOlderThan(ctx context.Context, q dbExecutor, cutoff, purgedAt time.Time) (int64, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_tombstones (id, sequence, "timestamp", event_type, previous_hash, data_hash, purged_at)
		SELECT id, sequence, "timestamp", event_type, previous_hash, data_hash, $2
		FROM audit_entries
		WHERE retention_until < $1
		ON CONFLICT (id) DO NOTHING
	`, cutoff.UTC(), models.NormalizeTime(purgedAt))
	if err != nil {
		return 0, fmt.Errorf("write tombstones: %w", classify(err))
	}

	res, err := q.ExecContext(ctx, `DELETE FROM audit_entries WHERE retention_until < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired entries: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired entries: %w", err)
	}
	return n, nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]*models.Entry, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read chain entries: %w", classify(err))
	}
	defer rows.Close()

	var out []*models.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chain entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chain entries: %w", err)
	}
	return out, nil
}

func (s *Store) queryTombstones(ctx context.Context, query string, args ...any) ([]models.Tombstone, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read tombstones: %w", classify(err))
	}
	defer rows.Close()

	var out []models.Tombstone
	for rows.Next() {
		var (
			t         models.Tombstone
			eventType string
		)
		if err := rows.Scan(&t.ID, &t.Sequence, &t.Timestamp, &eventType, &t.PreviousHash, &t.DataHash, &t.PurgedAt); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		t.EventType = models.EventType(eventType)
		t.Timestamp = t.Timestamp.UTC()
		t.PurgedAt = t.PurgedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tombstones: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.Entry, error) {
	var (
		e                            models.Entry
		eventType, source, legalBase string
	)
	err := row.Scan(
		&e.ID, &e.Sequence, &e.PreviousHash, &e.DataHash, &e.Timestamp,
		&eventType, &e.EntityType, &e.EntityID, &e.UserID, &e.UserName, &e.UserRole,
		&e.OldValue, &e.NewValue, &e.ChangeReason, &e.UserComment,
		&source, &e.IPAddress, &e.UserAgent, &e.SessionID, &e.RequestID, &e.APIEndpoint,
		&e.IsCritical, &e.IsSecurityRelevant, &e.IsComplianceRelevant, &legalBase,
		&e.RetentionUntil, &e.SchemaVersion,
	)
	if err != nil {
		return nil, err
	}
	e.EventType = models.EventType(eventType)
	e.Source = models.Source(source)
	e.LegalBasis = models.LegalBasis(legalBase)
	e.Timestamp = e.Timestamp.UTC()
	e.RetentionUntil = e.RetentionUntil.UTC()
	return &e, nil
}

// buildWhere renders f as a WHERE clause with positional arguments. extra
// conditions are ANDed in verbatim.
func buildWhere(f models.Filter, extra ...string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(format string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(format, len(args)))
	}

	if f.EntityType != "" {
		add("entity_type = $%d", f.EntityType)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if len(f.EventTypes) > 0 {
		add("event_type = ANY($%d)", pq.Array(eventTypeStrings(f.EventTypes)))
	}
	if !f.From.IsZero() {
		add(`"timestamp" >= $%d`, f.From.UTC())
	}
	if !f.To.IsZero() {
		add(`"timestamp" < $%d`, f.To.UTC())
	}
	if f.Critical != nil {
		add("is_critical = $%d", *f.Critical)
	}
	if f.Security != nil {
		add("is_security_relevant = $%d", *f.Security)
	}
	if f.Compliance != nil {
		add("is_compliance_relevant = $%d", *f.Compliance)
	}
	if f.Notifiable {
		add("(is_critical OR event_type = ANY($%d))", pq.Array(eventTypeStrings(models.NotifiableTypes())))
	}
	if f.RetentionBelow > 0 {
		add(`retention_until - "timestamp" < $%d::interval`, fmt.Sprintf("%d microseconds", f.RetentionBelow.Microseconds()))
	}
	conds = append(conds, extra...)

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func fieldExpr(field models.Field) (string, error) {
	switch field {
	case models.FieldUserID:
		return "user_id", nil
	case models.FieldEntity:
		return "(entity_type || ':' || entity_id)", nil
	case models.FieldEventType:
		return "event_type", nil
	case models.FieldLegalBasis:
		return "legal_basis", nil
	case models.FieldSource:
		return "source", nil
	case models.FieldUserAgent:
		return "user_agent", nil
	default:
		return "", fmt.Errorf("unsupported aggregate field %q", field)
	}
}

func eventTypeStrings(types []models.EventType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// classify maps retryable PostgreSQL failures onto the sentinel errors the chain
// engine retries on, keeping the original error in the chain.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", // serialization_failure
			"40P01", // deadlock_detected
			"55P03", // lock_not_available
			"23505": // unique_violation: a competing writer took the position
			return fmt.Errorf("%w: %w", sentinel.ErrConflict, err)
		case "57P01", "57P02", "57P03", "08000", "08003", "08006":
			return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
		}
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
