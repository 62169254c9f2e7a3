package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CfdLedger/internal/core"
)

// snapshotFormatVersion 1: JSON-encoded core.SnapshotState.
const snapshotFormatVersion = 1

// SnapshotManager stores state snapshots and reads the event log for
// recovery.
type SnapshotManager struct {
	db      *sql.DB
	dialect Dialect
}

func NewSnapshotManager(db *sql.DB, dialect Dialect) *SnapshotManager {
	return &SnapshotManager{db: db, dialect: dialect}
}

// SnapshotInfo describes a stored snapshot without its payload.
type SnapshotInfo struct {
	Sequence  int64
	StateHash [32]byte
	SizeBytes int
	Verified  bool
	CreatedAt time.Time
}

// SaveSnapshot persists an unverified snapshot. Saving the same sequence
// again replaces it.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.SnapshotState) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, sm.dialect.Rebind(`
		INSERT INTO clearing_snapshots
			(sequence, state_hash, data, format_version, size_bytes, verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sequence) DO UPDATE SET
			state_hash = excluded.state_hash, data = excluded.data,
			size_bytes = excluded.size_bytes, verified = excluded.verified`),
		snap.Sequence, snap.StateHash[:], data, snapshotFormatVersion, len(data), false, time.Now().UnixMicro(),
	)
	if err != nil {
		return 0, fmt.Errorf("save snapshot %d: %w", snap.Sequence, err)
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	row := sm.db.QueryRowContext(ctx, sm.dialect.Rebind(`
		SELECT data, format_version FROM clearing_snapshots
		WHERE verified = ?
		ORDER BY sequence DESC
		LIMIT 1`), true)

	var data []byte
	var format int
	if err := row.Scan(&data, &format); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if format != snapshotFormatVersion {
		return nil, fmt.Errorf("snapshot format %d not supported", format)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// ListSnapshots returns stored snapshots, newest first.
func (sm *SnapshotManager) ListSnapshots(ctx context.Context, limit int) ([]SnapshotInfo, error) {
	rows, err := sm.db.QueryContext(ctx, sm.dialect.Rebind(`
		SELECT sequence, state_hash, size_bytes, verified, created_at
		FROM clearing_snapshots
		ORDER BY sequence DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var hash []byte
		var created int64
		if err := rows.Scan(&info.Sequence, &hash, &info.SizeBytes, &info.Verified, &created); err != nil {
			return nil, err
		}
		copy(info.StateHash[:], hash)
		info.CreatedAt = time.UnixMicro(created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// MarkVerified marks a snapshot as verified after its integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	res, err := sm.db.ExecContext(ctx, sm.dialect.Rebind(`
		UPDATE clearing_snapshots SET verified = ? WHERE sequence = ?`), true, sequence)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("snapshot %d not found", sequence)
	}
	return nil
}

// PruneSnapshots keeps the newest keep snapshots.
func (sm *SnapshotManager) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	res, err := sm.db.ExecContext(ctx, sm.dialect.Rebind(`
		DELETE FROM clearing_snapshots WHERE sequence NOT IN (
			SELECT sequence FROM clearing_snapshots ORDER BY sequence DESC LIMIT ?
		)`), keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LoadEventsFrom loads up to limit events starting at fromSequence for
// replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, sm.dialect.Rebind(`
		SELECT sequence, command_type, idempotency_key, signer, height, payload,
		       state_hash, prev_hash, created_at
		FROM clearing_events
		WHERE sequence >= ?
		ORDER BY sequence ASC
		LIMIT ?`), fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.CommandType, &e.IdempotencyKey, &e.Signer, &e.Height,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// StateHashAt returns the logged state hash of a sequence.
func (sm *SnapshotManager) StateHashAt(ctx context.Context, sequence int64) ([32]byte, bool, error) {
	var hash []byte
	err := sm.db.QueryRowContext(ctx, sm.dialect.Rebind(`
		SELECT state_hash FROM clearing_events WHERE sequence = ?`), sequence).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return [32]byte{}, false, nil
	}
	if err != nil {
		return [32]byte{}, false, err
	}
	var out [32]byte
	copy(out[:], hash)
	return out, true, nil
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM clearing_events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// RecentIdempotencyKeys returns the newest limit keys, oldest first, for
// LRU warming.
func (sm *SnapshotManager) RecentIdempotencyKeys(ctx context.Context, limit int) ([]string, error) {
	rows, err := sm.db.QueryContext(ctx, sm.dialect.Rebind(`
		SELECT idempotency_key FROM clearing_idempotency
		ORDER BY sequence DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys, nil
}
