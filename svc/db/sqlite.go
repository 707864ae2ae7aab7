package db

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"lclpaste/pkg/domain"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 100
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

var _ Store = (*SQLite)(nil)

func (s *SQLite) DB() *sql.DB {
	return s.db
}

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	case circuitHalfOpen:
		return nil
	default:
		return nil
	}
}

func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	_, err = s.db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	_, err = s.db.Exec("PRAGMA synchronous=FULL")
	if err != nil {
		return errors.Wrap(err, "set synchronous mode")
	}
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		storage_ref TEXT PRIMARY KEY,
		public_id TEXT NOT NULL UNIQUE,
		content TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		is_private INTEGER NOT NULL DEFAULT 0,
		is_code INTEGER NOT NULL DEFAULT 0,
		code_language TEXT NOT NULL DEFAULT 'text',
		created_at DATETIME NOT NULL,
		updated INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME,
		is_owned_by_user INTEGER NOT NULL DEFAULT 0,
		owner_name TEXT NOT NULL DEFAULT 'anonymous',
		will_expire INTEGER NOT NULL DEFAULT 0,
		expiry_date DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_pastes_created_at ON pastes(created_at);
	CREATE INDEX IF NOT EXISTS idx_pastes_owner ON pastes(owner_name, is_owned_by_user);
	CREATE INDEX IF NOT EXISTS idx_pastes_latest ON pastes(is_private, created_at);
	`
	_, err = s.db.Exec(query)
	return err
}

const pasteColumns = `storage_ref, public_id, content, filename, description, is_private, is_code,
	code_language, created_at, updated, updated_at, is_owned_by_user, owner_name, will_expire, expiry_date`

// Insert persists the paste and assigns its storage ref. The ref is a
// random v4 UUID: not derivable from the public id and never reused.
func (s *SQLite) Insert(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	if p.StorageRef == "" {
		p.StorageRef = uuid.NewString()
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (` + pasteColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(queryCtx, q,
		p.StorageRef, p.PublicID, p.Content, p.Filename, p.Description,
		p.IsPrivate, p.IsCode, p.CodeLanguage, p.CreatedAt,
		p.Updated, nullTime(p.UpdatedAt), p.IsOwnedByUser, p.OwnerName,
		p.WillExpire, nullTime(p.ExpiryDate),
	)
	s.recordError(err)
	return errors.Wrap(err, "db insert")
}

func (s *SQLite) GetByPublicID(ctx context.Context, publicID string) (*domain.Paste, error) {
	return s.getWhere(ctx, "public_id = ?", publicID)
}

func (s *SQLite) GetByRef(ctx context.Context, ref string) (*domain.Paste, error) {
	return s.getWhere(ctx, "storage_ref = ?", ref)
}

func (s *SQLite) getWhere(ctx context.Context, where string, arg string) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `SELECT ` + pasteColumns + ` FROM pastes WHERE ` + where
	row := s.db.QueryRowContext(queryCtx, q, arg)
	p, err := scanPaste(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	return p, nil
}

// Merge applies the sparse patch as a single partial UPDATE. Only the
// columns present in the patch appear in the SET clause.
func (s *SQLite) Merge(ctx context.Context, ref string, patch domain.Patch) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	sets := make([]string, 0, 10)
	args := make([]interface{}, 0, 11)
	if patch.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *patch.Content)
	}
	if patch.Filename != nil {
		sets = append(sets, "filename = ?")
		args = append(args, *patch.Filename)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.IsPrivate != nil {
		sets = append(sets, "is_private = ?")
		args = append(args, *patch.IsPrivate)
	}
	if patch.IsCode != nil {
		sets = append(sets, "is_code = ?")
		args = append(args, *patch.IsCode)
	}
	if patch.CodeLanguage != nil {
		sets = append(sets, "code_language = ?")
		args = append(args, *patch.CodeLanguage)
	}
	if patch.WillExpire != nil {
		sets = append(sets, "will_expire = ?")
		args = append(args, *patch.WillExpire)
	}
	if patch.ExpiryDate != nil {
		sets = append(sets, "expiry_date = ?")
		args = append(args, *patch.ExpiryDate)
	} else if patch.ClearExpiry {
		sets = append(sets, "expiry_date = NULL")
	}
	if patch.Updated != nil {
		sets = append(sets, "updated = ?")
		args = append(args, *patch.Updated)
	}
	if patch.UpdatedAt != nil {
		sets = append(sets, "updated_at = ?")
		args = append(args, *patch.UpdatedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, ref)
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := "UPDATE pastes SET " + strings.Join(sets, ", ") + " WHERE storage_ref = ?"
	res, err := s.db.ExecContext(queryCtx, q, args...)
	s.recordError(err)
	if err != nil {
		return errors.Wrap(err, "db merge")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "db merge rows affected")
	}
	if affected == 0 {
		return domain.ErrPasteNotFound
	}
	return nil
}

func (s *SQLite) ListLatest(ctx context.Context, limit int) ([]domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `SELECT ` + pasteColumns + ` FROM pastes
	WHERE is_private = 0 ORDER BY created_at DESC LIMIT ?`
	rows, err := s.db.QueryContext(queryCtx, q, limit)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db list latest")
	}
	return collectPastes(rows)
}

func (s *SQLite) ListOwned(ctx context.Context, owner string) ([]domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `SELECT ` + pasteColumns + ` FROM pastes
	WHERE owner_name = ? AND is_owned_by_user = 1 ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(queryCtx, q, owner)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db list owned")
	}
	return collectPastes(rows)
}

func (s *SQLite) ExistsPublicID(ctx context.Context, publicID string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var exists int
	q := `SELECT 1 FROM pastes WHERE public_id = ? LIMIT 1`
	err := s.db.QueryRowContext(queryCtx, q, publicID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "exists check failed")
	}
	return exists == 1, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaste(row rowScanner) (*domain.Paste, error) {
	var p domain.Paste
	var updatedAt, expiryDate sql.NullTime
	err := row.Scan(
		&p.StorageRef, &p.PublicID, &p.Content, &p.Filename, &p.Description,
		&p.IsPrivate, &p.IsCode, &p.CodeLanguage, &p.CreatedAt,
		&p.Updated, &updatedAt, &p.IsOwnedByUser, &p.OwnerName,
		&p.WillExpire, &expiryDate,
	)
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		p.UpdatedAt = &t
	}
	if expiryDate.Valid {
		t := expiryDate.Time
		p.ExpiryDate = &t
	}
	return &p, nil
}

func collectPastes(rows *sql.Rows) ([]domain.Paste, error) {
	defer rows.Close()
	var out []domain.Paste
	for rows.Next() {
		p, err := scanPaste(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan paste")
		}
		out = append(out, *p)
	}
	return out, errors.Wrap(rows.Err(), "iterate pastes")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
