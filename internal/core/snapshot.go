package core

import (
	"encoding/json"
	"fmt"

	"CfdLedger/internal/address"
	"CfdLedger/internal/ledger"
)

// SnapshotRecord is one record in a snapshot.
type SnapshotRecord struct {
	Address address.Address `json:"address"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

// SnapshotState holds the serializable in-memory state for restore.
type SnapshotState struct {
	Sequence        int64             `json:"sequence"`
	StateHash       [32]byte          `json:"state_hash"`
	Height          uint64            `json:"height"`
	Balances        map[string]int64  `json:"balances"` // account path -> balance
	Records         []SnapshotRecord  `json:"records"`
	PriceSequences  map[string]uint64 `json:"price_sequences"`
	IdempotencyKeys []string          `json:"idempotency_keys"`
}

// CreateSnapshotState captures the committed state. Call it from the core
// goroutine or while no command is being processed.
func (c *DeterministicCore) CreateSnapshotState() (*SnapshotState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	balances := c.balanceTracker.Snapshot()
	snap := &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		Height:          c.lastHeight,
		Balances:        make(map[string]int64, len(balances)),
		PriceSequences:  c.prices.Partitions(),
		IdempotencyKeys: c.idempotency.lru.Keys(),
	}
	for key, bal := range balances {
		if bal != 0 {
			snap.Balances[key.AccountPath()] = bal
		}
	}
	for _, e := range c.records.Entries() {
		data, err := c.codec.Encode(e.Record)
		if err != nil {
			return nil, err
		}
		snap.Records = append(snap.Records, SnapshotRecord{Address: e.Key, Kind: e.Record.Kind(), Data: data})
	}
	return snap, nil
}

// RestoreFromSnapshot loads a snapshot into a fresh core. Replay continues
// from snap.Sequence + 1.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path, bal := range snap.Balances {
		key, err := ledger.ParseAccountPath(path)
		if err != nil {
			return fmt.Errorf("restore balances: %w", err)
		}
		c.balanceTracker.SetBalance(key, bal)
	}
	for _, r := range snap.Records {
		rec, err := c.codec.Decode(r.Kind, r.Data)
		if err != nil {
			return fmt.Errorf("restore record %s: %w", r.Address, err)
		}
		c.records.Restore(r.Address, rec)
	}
	for partition, seq := range snap.PriceSequences {
		c.prices.Restore(partition, seq)
	}
	c.idempotency.lru.WarmFromKeys(snap.IdempotencyKeys)

	c.sequence = snap.Sequence + 1
	c.lastHeight = snap.Height
	c.hasher.SetPrevHash(snap.StateHash)
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.lru.WarmFromKeys(keys)
}
