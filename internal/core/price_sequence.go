package core

import (
	"fmt"

	"CfdLedger/internal/event"
	"CfdLedger/internal/observability"
)

// PriceSequencer tracks the last accepted publisher sequence per price
// partition. Gaps are tolerated; stale updates are skipped.
// Not thread-safe: only the core goroutine touches it.
type PriceSequencer struct {
	last    map[string]uint64
	metrics *observability.Metrics
}

func NewPriceSequencer(metrics *observability.Metrics) *PriceSequencer {
	return &PriceSequencer{
		last:    make(map[string]uint64),
		metrics: metrics,
	}
}

// PricePartition returns the partition and publisher sequence of a price
// update. ok is false for commands that are not sequenced, including price
// updates carrying sequence zero.
func PricePartition(cmd event.Command) (partition string, seq uint64, ok bool) {
	switch c := cmd.(type) {
	case *event.UpdateOracle:
		partition, seq = "oracle", c.PriceSequence
	case *event.UpdateAssetPrice:
		partition, seq = fmt.Sprintf("spot:%s:%s", c.Class, c.Symbol), c.PriceSequence
	case *event.UpdateFeed:
		partition, seq = fmt.Sprintf("feed:%s:%s:%s", c.Class, c.Symbol, c.Slot), c.PriceSequence
	default:
		return "", 0, false
	}
	return partition, seq, seq != 0
}

// Stale reports whether seq is not newer than the last accepted sequence.
func (ps *PriceSequencer) Stale(partition string, seq uint64) bool {
	last, seen := ps.last[partition]
	if seen && seq <= last {
		if ps.metrics != nil {
			ps.metrics.StalePriceUpdates.WithLabelValues(partition).Inc()
		}
		return true
	}
	return false
}

// Accept records seq as the last accepted sequence. Call only after the
// update committed.
func (ps *PriceSequencer) Accept(partition string, seq uint64) {
	last, seen := ps.last[partition]
	if seen && seq > last+1 && ps.metrics != nil {
		ps.metrics.PriceSequenceGaps.WithLabelValues(partition).Inc()
	}
	ps.last[partition] = seq
}

// Last returns the last accepted sequence of a partition.
func (ps *PriceSequencer) Last(partition string) uint64 {
	return ps.last[partition]
}

// Partitions returns a copy of every partition's last sequence.
func (ps *PriceSequencer) Partitions() map[string]uint64 {
	out := make(map[string]uint64, len(ps.last))
	for k, v := range ps.last {
		out[k] = v
	}
	return out
}

// Restore sets a partition's last sequence (used during recovery).
func (ps *PriceSequencer) Restore(partition string, seq uint64) {
	ps.last[partition] = seq
}
