package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.KVStore = (*KVRepo)(nil)

// KVRepo is the SQLite implementation of the KVStore port interface, used for
// key pool rotation state when no Redis instance is configured. It is shared
// only by processes pointing at the same database file.
type KVRepo struct {
	db *DB
}

// NewKVRepo creates a new KVRepo backed by the given DB.
func NewKVRepo(db *DB) *KVRepo {
	return &KVRepo{db: db}
}

const upsertKV = `
	INSERT INTO rotation_state (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
`

// Get returns the value stored under key. It reads through the writer
// connection so a rotation decision always sees the latest write.
func (r *KVRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Writer.QueryRowContext(ctx, `SELECT value FROM rotation_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get rotation state %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key.
func (r *KVRepo) Set(ctx context.Context, key, value string) error {
	if _, err := r.db.Writer.ExecContext(ctx, upsertKV, key, value, formatTime(time.Now())); err != nil {
		return fmt.Errorf("set rotation state %q: %w", key, err)
	}
	return nil
}

// MultiSet stores all pairs in one transaction.
func (r *KVRepo) MultiSet(ctx context.Context, pairs map[string]string) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rotation state write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := formatTime(time.Now())
	for key, value := range pairs {
		if _, err := tx.ExecContext(ctx, upsertKV, key, value, stamp); err != nil {
			return fmt.Errorf("set rotation state %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rotation state: %w", err)
	}
	return nil
}

// Close is a no-op; the DB is owned and closed by the caller.
func (r *KVRepo) Close() error {
	return nil
}
