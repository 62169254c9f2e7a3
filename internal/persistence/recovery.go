package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CfdLedger/internal/core"
	"CfdLedger/internal/observability"
)

// RecoveryResult summarizes a restart.
type RecoveryResult struct {
	SnapshotSequence int64 // 0 on a cold start
	Replayed         int
	Sequence         int64
	Height           uint64
	StateHash        [32]byte
}

// Recovery restores a fresh core from the latest verified snapshot and
// replays the event log after it.
type Recovery struct {
	Snapshots *SnapshotManager
	PageSize  int
	WarmKeys  int
	Metrics   *observability.Metrics
	Log       zerolog.Logger
}

// Run must be called before the core starts serving commands.
func (r *Recovery) Run(ctx context.Context, c *core.DeterministicCore) (RecoveryResult, error) {
	start := time.Now()
	pageSize := r.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}

	var res RecoveryResult
	snap, err := r.Snapshots.LoadLatestSnapshot(ctx)
	if err != nil {
		return res, err
	}
	if snap != nil {
		if err := c.RestoreFromSnapshot(snap); err != nil {
			return res, fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
		}
		res.SnapshotSequence = snap.Sequence
		r.Log.Info().Int64("seq", snap.Sequence).Int("records", len(snap.Records)).Msg("loaded snapshot")
	} else {
		r.Log.Info().Msg("no snapshot found, cold start")
	}

	from := res.SnapshotSequence + 1
	for {
		rows, err := r.Snapshots.LoadEventsFrom(ctx, from, pageSize)
		if err != nil {
			return res, fmt.Errorf("load events from %d: %w", from, err)
		}
		for _, row := range rows {
			env, err := row.Envelope()
			if err != nil {
				return res, err
			}
			if err := c.ReplayEnvelope(env); err != nil {
				return res, err
			}
			res.Replayed++
		}
		if len(rows) < pageSize {
			break
		}
		from = rows[len(rows)-1].Sequence + 1
	}

	latest, err := r.Snapshots.GetLatestSequence(ctx)
	if err != nil {
		return res, err
	}
	if latest > c.GetSequence() {
		return res, fmt.Errorf("event log ends at %d but replay stopped at %d: %w", latest, c.GetSequence(), core.ErrReplayDiverged)
	}

	if r.WarmKeys > 0 {
		keys, err := r.Snapshots.RecentIdempotencyKeys(ctx, r.WarmKeys)
		if err != nil {
			return res, fmt.Errorf("warm idempotency keys: %w", err)
		}
		c.WarmLRU(keys)
	}

	res.Sequence = c.GetSequence()
	res.Height = c.LastHeight()
	res.StateHash = c.GetStateHash()

	if r.Metrics != nil {
		r.Metrics.ReplayDuration.Set(time.Since(start).Seconds())
	}
	r.Log.Info().
		Int64("snapshot_seq", res.SnapshotSequence).
		Int("replayed", res.Replayed).
		Int64("seq", res.Sequence).
		Uint64("height", res.Height).
		Dur("took", time.Since(start)).
		Msg("recovery complete")
	return res, nil
}
