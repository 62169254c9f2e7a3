package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"CfdLedger/internal/core"
	"CfdLedger/internal/observability"
)

// Snapshotter takes a snapshot every Interval sequences, stores it once the
// event log has caught up with it, verifies it and prunes old ones.
type Snapshotter struct {
	core      *core.DeterministicCore
	snapshots *SnapshotManager
	persisted func() int64
	cfg       core.Config
	interval  int64
	keep      int
	poll      time.Duration
	metrics   *observability.Metrics
	log       zerolog.Logger

	lastSequence int64
}

func NewSnapshotter(
	c *core.DeterministicCore,
	snapshots *SnapshotManager,
	persisted func() int64,
	cfg core.Config,
	interval int64,
	keep int,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Snapshotter {
	if keep <= 0 {
		keep = 3
	}
	return &Snapshotter{
		core:         c,
		snapshots:    snapshots,
		persisted:    persisted,
		cfg:          cfg,
		interval:     interval,
		keep:         keep,
		poll:         10 * time.Millisecond,
		metrics:      metrics,
		log:          log,
		lastSequence: c.GetSequence(),
	}
}

// Run checks the core sequence every checkEvery until ctx is done.
func (s *Snapshotter) Run(ctx context.Context, checkEvery time.Duration) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.core.GetSequence()-s.lastSequence < s.interval {
				continue
			}
			if _, err := s.Snapshot(ctx); err != nil && ctx.Err() == nil {
				s.log.Error().Err(err).Msg("periodic snapshot failed")
			}
		}
	}
}

// Snapshot captures the state on the core goroutine and stores it.
func (s *Snapshotter) Snapshot(ctx context.Context) (int64, error) {
	return s.take(ctx, func(ctx context.Context) (*core.SnapshotState, error) {
		var snap *core.SnapshotState
		var snapErr error
		if err := s.core.Do(ctx, func() { snap, snapErr = s.core.CreateSnapshotState() }); err != nil {
			return nil, err
		}
		return snap, snapErr
	})
}

// FinalSnapshot captures the state directly. Call it only after the core
// loop has stopped.
func (s *Snapshotter) FinalSnapshot(ctx context.Context) (int64, error) {
	return s.take(ctx, func(context.Context) (*core.SnapshotState, error) {
		return s.core.CreateSnapshotState()
	})
}

func (s *Snapshotter) take(ctx context.Context, capture func(context.Context) (*core.SnapshotState, error)) (int64, error) {
	start := time.Now()
	snap, err := capture(ctx)
	if err != nil {
		return 0, fmt.Errorf("capture snapshot: %w", err)
	}
	if snap.Sequence == 0 || snap.Sequence == s.lastSequence {
		return snap.Sequence, nil
	}

	// The snapshot must not get ahead of the event log it is verified
	// against.
	for s.persisted() < snap.Sequence {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(s.poll):
		}
	}

	size, err := s.snapshots.SaveSnapshot(ctx, snap)
	if err != nil {
		return 0, err
	}
	if err := s.Verify(ctx, snap); err != nil {
		return 0, err
	}
	if err := s.snapshots.MarkVerified(ctx, snap.Sequence); err != nil {
		return 0, err
	}
	if _, err := s.snapshots.PruneSnapshots(ctx, s.keep); err != nil {
		s.log.Warn().Err(err).Msg("prune snapshots failed")
	}
	s.lastSequence = snap.Sequence

	if s.metrics != nil {
		s.metrics.SnapshotTaken.Inc()
		s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		s.metrics.SnapshotSizeBytes.Set(float64(size))
		s.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	s.log.Info().Int64("seq", snap.Sequence).Int("size_bytes", size).Msg("snapshot saved")
	return snap.Sequence, nil
}

// Verify checks a snapshot against the logged state hash of its sequence
// and restores it into a scratch core to prove it loads back to the same
// tip.
func (s *Snapshotter) Verify(ctx context.Context, snap *core.SnapshotState) error {
	logged, ok, err := s.snapshots.StateHashAt(ctx, snap.Sequence)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot %d: sequence not in event log", snap.Sequence)
	}
	if logged != snap.StateHash {
		return fmt.Errorf("snapshot %d: hash %x, logged %x: %w", snap.Sequence, snap.StateHash, logged, core.ErrReplayDiverged)
	}

	scratch := core.NewDeterministicCore(s.cfg, core.Deps{Clock: core.NewManualClock(snap.Height)})
	if err := scratch.RestoreFromSnapshot(snap); err != nil {
		return fmt.Errorf("snapshot %d: %w", snap.Sequence, err)
	}
	again, err := scratch.CreateSnapshotState()
	if err != nil {
		return err
	}
	if again.StateHash != snap.StateHash || again.Sequence != snap.Sequence ||
		len(again.Records) != len(snap.Records) || len(again.Balances) != len(snap.Balances) {
		return fmt.Errorf("snapshot %d does not restore to itself", snap.Sequence)
	}
	return nil
}
