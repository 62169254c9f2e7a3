package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// IdempotencyStore is the durable dedup tier behind the core's LRU.
type IdempotencyStore struct {
	db      *sql.DB
	dialect Dialect
	timeout time.Duration
}

func NewIdempotencyStore(db *sql.DB, dialect Dialect) *IdempotencyStore {
	return &IdempotencyStore{
		db:      db,
		dialect: dialect,
		timeout: 500 * time.Millisecond,
	}
}

// IsDuplicate checks whether the key was committed by an earlier run.
func (s *IdempotencyStore) IsDuplicate(ctx context.Context, idempotencyKey string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var exists int
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(`
		SELECT 1
		FROM clearing_idempotency
		WHERE idempotency_key = ?
		LIMIT 1`), idempotencyKey).Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
