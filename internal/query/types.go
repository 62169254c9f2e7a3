package query

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/state"
)

// Response wraps every query result with the sequence it reflects.
type Response[T any] struct {
	Data         T     `json:"data"`
	AsOfSequence int64 `json:"as_of_sequence"`
}

// PositionResponse is a position marked to the current market price.
type PositionResponse struct {
	*state.Position

	// Derived at query time, absent when no price is available.
	MarkPrice          uint64 `json:"mark_price,omitempty"`
	UnrealizedPnL      int64  `json:"unrealized_pnl"`
	CollateralValue    uint64 `json:"collateral_value,omitempty"`
	CollateralRatioBps uint64 `json:"collateral_ratio_bps,omitempty"`
	Liquidatable       bool   `json:"liquidatable"`
}

// StateResponse describes the chain tip and the supply of every asset.
type StateResponse struct {
	Sequence  int64            `json:"sequence"`
	StateHash string           `json:"state_hash"`
	Height    uint64           `json:"height"`
	Records   int              `json:"records"`
	Supply    map[string]int64 `json:"supply"`
}

// JournalHistoryEntry is one logged journal touching an owner.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Asset         string `json:"asset"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Authority     string `json:"authority"`
	Height        int64  `json:"height"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy        bool              `json:"is_healthy"`
	CheckedEvents    int64             `json:"checked_events"`
	HashChainBreaks  []int64           `json:"hash_chain_breaks,omitempty"`
	UnbalancedAssets []UnbalancedAsset `json:"unbalanced_assets,omitempty"`
	LogTipMismatch   bool              `json:"log_tip_mismatch,omitempty"`
}

// UnbalancedAsset is an asset whose accounts do not sum to zero.
type UnbalancedAsset struct {
	Asset     string `json:"asset"`
	Imbalance int64  `json:"imbalance"`
}

// owner parses a base58 owner path parameter.
func parseOwner(s string) (address.Address, error) {
	return address.Parse(s)
}
