package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"CfdLedger/internal/address"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeTransfer JournalType = iota
	JournalTypeMint
	JournalTypeBurn
)

func (t JournalType) String() string {
	switch t {
	case JournalTypeTransfer:
		return "transfer"
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID       // Derived from batch and position
	BatchID       uuid.UUID       // Groups the entries of one command
	EventRef      string          // Idempotency key of source command
	Sequence      int64           // Global command sequence
	DebitAccount  AccountKey      // Account receiving debit (balance increases)
	CreditAccount AccountKey      // Account receiving credit (balance decreases)
	AssetID       AssetID         // Asset being moved
	Amount        int64           // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType     // Entry type
	Authority     address.Address // Signer that authorized the movement
	Height        uint64          // Height the command executed at
}

// Batch is the set of journal entries produced by one command
type Batch struct {
	BatchID  uuid.UUID
	EventRef string
	Sequence int64
	Height   uint64
	Journals []Journal
}

// batchNamespace scopes deterministic batch and journal ids.
var batchNamespace = uuid.MustParse("6f1c9d0e-3b7a-4d51-9a43-c2f0e8a1b7d4")

// BatchIDFor derives the batch id of a command from its idempotency key so
// replay reproduces identical ids.
func BatchIDFor(eventRef string) uuid.UUID {
	return uuid.NewSHA1(batchNamespace, []byte(eventRef))
}

func journalIDFor(batchID uuid.UUID, index int) uuid.UUID {
	return uuid.NewSHA1(batchID, []byte(fmt.Sprintf("%d", index)))
}

// Validate ensures the batch is well-formed.
// Each entry moves one positive amount from the credit to the debit account,
// so every entry is balanced on its own.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}

		if j.DebitAccount.AssetID != j.AssetID || j.CreditAccount.AssetID != j.AssetID {
			return fmt.Errorf("journal %s mixes assets", j.JournalID)
		}
	}

	return nil
}
