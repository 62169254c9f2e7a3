package ledger

import (
	stdmath "math"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
)

// Host is the value-movement collaborator consumed by the clearing
// components. Every call either stages its movement or fails with a fault
// and stages nothing.
type Host interface {
	Transfer(from, to AccountKey, amount uint64, authority address.Address) error
	Mint(to AccountKey, amount uint64, authority address.Address) error
	Burn(from AccountKey, amount uint64, authority address.Address) error
	Balance(key AccountKey) uint64
}

// Tx stages the movements of one command over the committed balances.
// Nothing reaches the tracker until the core applies Batch().
type Tx struct {
	tracker  *BalanceTracker
	eventRef string
	height   uint64
	deltas   map[AccountKey]int64
	journals []Journal
}

var _ Host = (*Tx)(nil)

// Begin opens a staging transaction for one command.
func (bt *BalanceTracker) Begin(eventRef string, height uint64) *Tx {
	return &Tx{
		tracker:  bt,
		eventRef: eventRef,
		height:   height,
		deltas:   make(map[AccountKey]int64),
	}
}

func (tx *Tx) balance(key AccountKey) int64 {
	return tx.tracker.GetBalance(key) + tx.deltas[key]
}

// Balance returns the staged balance of a holder account (zero if negative,
// which only issuance accounts can be).
func (tx *Tx) Balance(key AccountKey) uint64 {
	b := tx.balance(key)
	if b < 0 {
		return 0
	}
	return uint64(b)
}

func (tx *Tx) stage(debit, credit AccountKey, amount uint64, kind JournalType, authority address.Address) error {
	if amount == 0 {
		return nil
	}
	if amount > stdmath.MaxInt64 {
		return fault.New(fault.MathOverflow, "amount %d exceeds ledger range", amount)
	}
	if debit.AssetID != credit.AssetID {
		return fault.New(fault.InvalidAssetType, "%s and %s hold different assets", debit, credit)
	}
	amt := int64(amount)

	if credit.Scope != AccountScopeIssuance {
		if have := tx.balance(credit); have < amt {
			return fault.New(fault.InsufficientBalance, "%s has %d, needs %d", credit, have, amt)
		}
	}
	if debit.Scope != AccountScopeIssuance && tx.balance(debit) > stdmath.MaxInt64-amt {
		return fault.New(fault.MathOverflow, "%s balance overflows", debit)
	}
	// Issuance carries minus the supply and must stay representable.
	if credit.Scope == AccountScopeIssuance && tx.balance(credit) < stdmath.MinInt64+amt {
		return fault.New(fault.MathOverflow, "%s supply overflows", credit)
	}

	tx.deltas[debit] += amt
	tx.deltas[credit] -= amt
	tx.journals = append(tx.journals, Journal{
		EventRef:      tx.eventRef,
		DebitAccount:  debit,
		CreditAccount: credit,
		AssetID:       debit.AssetID,
		Amount:        amt,
		JournalType:   kind,
		Authority:     authority,
		Height:        tx.height,
	})
	return nil
}

// Transfer moves amount from one holder account to another of the same asset.
func (tx *Tx) Transfer(from, to AccountKey, amount uint64, authority address.Address) error {
	return tx.stage(to, from, amount, JournalTypeTransfer, authority)
}

// Mint credits newly issued units of to's asset.
func (tx *Tx) Mint(to AccountKey, amount uint64, authority address.Address) error {
	return tx.stage(to, IssuanceAccount(to.AssetID), amount, JournalTypeMint, authority)
}

// Burn destroys units held by from.
func (tx *Tx) Burn(from AccountKey, amount uint64, authority address.Address) error {
	return tx.stage(IssuanceAccount(from.AssetID), from, amount, JournalTypeBurn, authority)
}

// Len returns the number of staged journals.
func (tx *Tx) Len() int { return len(tx.journals) }

// Batch seals the staged journals with the committed sequence. It returns
// nil when the command moved no value.
func (tx *Tx) Batch(sequence int64) *Batch {
	if len(tx.journals) == 0 {
		return nil
	}
	batchID := BatchIDFor(tx.eventRef)
	journals := make([]Journal, len(tx.journals))
	for i, j := range tx.journals {
		j.JournalID = journalIDFor(batchID, i)
		j.BatchID = batchID
		j.Sequence = sequence
		journals[i] = j
	}
	return &Batch{
		BatchID:  batchID,
		EventRef: tx.eventRef,
		Sequence: sequence,
		Height:   tx.height,
		Journals: journals,
	}
}

// Touched returns every account the transaction staged a movement on.
func (tx *Tx) Touched() []AccountKey {
	keys := make([]AccountKey, 0, len(tx.deltas))
	for k := range tx.deltas {
		keys = append(keys, k)
	}
	return keys
}
