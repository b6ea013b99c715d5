package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alexanderramin/kanban/internal/db"
)

const sqliteBackend = "sqlite"

// SQLiteStore keeps documents in the documents table. Each Update or
// UpdateMany is one immediate transaction, so the database write lock plays
// the role of the per-key file locks and a failed write rolls back every key.
type SQLiteStore struct {
	database *sql.DB
	uow      db.UnitOfWork
	retry    RetryPolicy
	metrics  *Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type SQLiteOption func(*SQLiteStore)

func WithSQLiteRetryPolicy(p RetryPolicy) SQLiteOption {
	return func(s *SQLiteStore) { s.retry = p }
}

func WithSQLiteMetrics(m *Metrics) SQLiteOption {
	return func(s *SQLiteStore) { s.metrics = m }
}

// WithUnitOfWork replaces the transaction runner, e.g. with one that injects
// failures.
func WithUnitOfWork(u db.UnitOfWork) SQLiteOption {
	return func(s *SQLiteStore) { s.uow = u }
}

func WithSQLiteLogger(l *slog.Logger) SQLiteOption {
	return func(s *SQLiteStore) { s.logger = l }
}

// OpenSQLiteStore opens (and migrates) the database at path.
func OpenSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	database, err := db.OpenDB(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStore(database, opts...), nil
}

func NewSQLiteStore(database *sql.DB, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{
		database: database,
		uow:      db.NewSQLiteUnitOfWork(database),
		retry:    DefaultRetryPolicy(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SQLiteStore) Read(ctx context.Context, key Key) ([]byte, error) {
	if !key.valid() {
		return nil, fmt.Errorf("store: invalid key %q", key)
	}
	data, err := readDoc(ctx, s.database, key)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, key)
	}
	return data, nil
}

func readDoc(ctx context.Context, q db.DBTX, key Key) ([]byte, error) {
	var body []byte
	err := q.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, string(key)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return body, nil
}

func (s *SQLiteStore) Update(ctx context.Context, key Key, fn UpdateFunc) error {
	return s.UpdateMany(ctx, []Key{key}, func(cur map[Key][]byte) (map[Key][]byte, error) {
		next, err := fn(cur[key])
		if err != nil {
			return nil, err
		}
		return map[Key][]byte{key: next}, nil
	})
}

func (s *SQLiteStore) UpdateMany(ctx context.Context, keys []Key, fn UpdateManyFunc) error {
	ordered, err := sortedKeys(keys)
	if err != nil {
		return err
	}
	if len(ordered) == 0 {
		return nil
	}
	lockKey := ordered[0]

	start := time.Now()
	var waited time.Duration
	err = backoff.Retry(func() error {
		err := s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
			waited = time.Since(start)
			return s.apply(ctx, tx, ordered, fn)
		})
		if db.IsBusy(err) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, s.retry.newBackOff(ctx))
	s.metrics.observeWait(sqliteBackend, lockKey, waited)

	switch {
	case err == nil, errors.Is(err, ErrNoChange):
		return nil
	case db.IsBusy(err):
		s.metrics.lockTimeout(sqliteBackend, lockKey)
		s.logger.Warn("lock timeout", "key", lockKey, "waited", time.Since(start))
		return &LockTimeoutError{Key: lockKey, Waited: time.Since(start)}
	default:
		return err
	}
}

func (s *SQLiteStore) apply(ctx context.Context, tx db.DBTX, ordered []Key, fn UpdateManyFunc) error {
	cur := make(map[Key][]byte, len(ordered))
	for _, k := range ordered {
		data, err := readDoc(ctx, tx, k)
		if err != nil {
			return err
		}
		cur[k] = data
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if err := checkResult(ordered, next); err != nil {
		return err
	}

	now := s.now().UTC().Format(time.RFC3339Nano)
	for _, k := range ordered {
		data, ok := next[k]
		if !ok || data == nil {
			continue
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at,
			revision = documents.revision + 1`, string(k), data, now)
		if err != nil {
			s.metrics.write(sqliteBackend, k, "error")
			return fmt.Errorf("writing %s: %w", k, err)
		}
		s.metrics.write(sqliteBackend, k, "ok")
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Key, error) {
	rows, err := s.database.QueryContext(ctx,
		`SELECT key FROM documents WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, Key(k))
	}
	return keys, rows.Err()
}

// Revision returns how many times key was written, or 0 when absent.
func (s *SQLiteStore) Revision(ctx context.Context, key Key) (int, error) {
	var rev int
	err := s.database.QueryRowContext(ctx, `SELECT revision FROM documents WHERE key = ?`, string(key)).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}

func (s *SQLiteStore) Close() error { return s.database.Close() }
