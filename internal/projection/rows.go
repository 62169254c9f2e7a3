package projection

import (
	"encoding/hex"
	"strconv"
	"time"

	"CfdLedger/internal/amm"
	"CfdLedger/internal/core"
	"CfdLedger/internal/event"
)

// EventRecord is one committed command in the analytics store.
type EventRecord struct {
	Sequence    int64
	CommandType string
	Signer      string
	Height      uint64
	StateHash   string // hex
	EmittedAt   time.Time
}

// JournalRecord is one ledger movement.
type JournalRecord struct {
	JournalID     string
	BatchID       string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Asset         string
	Amount        int64
	JournalType   string
	Authority     string
	Height        uint64
}

// SwapRecord is one executed swap on either pool type.
type SwapRecord struct {
	Sequence  int64
	Height    uint64
	Pool      string // "long_short" or "slot:<creator>:<pool_id>"
	Trader    string
	Direction string
	AmountIn  uint64
	Fee       uint64
	AmountOut uint64
}

// Batch groups the rows of several outputs for one sink write.
type Batch struct {
	Events   []EventRecord
	Journals []JournalRecord
	Swaps    []SwapRecord
}

func (b *Batch) Len() int { return len(b.Events) }

func (b *Batch) Reset() {
	b.Events = b.Events[:0]
	b.Journals = b.Journals[:0]
	b.Swaps = b.Swaps[:0]
}

// LastSequence is the highest sequence in the batch, 0 when empty.
func (b *Batch) LastSequence() int64 {
	if len(b.Events) == 0 {
		return 0
	}
	return b.Events[len(b.Events)-1].Sequence
}

// Add appends the rows of one committed command.
func (b *Batch) Add(out core.CoreOutput) {
	env := out.Envelope
	b.Events = append(b.Events, EventRecord{
		Sequence:    env.Sequence,
		CommandType: string(env.CommandType),
		Signer:      env.Signer.String(),
		Height:      env.Height,
		StateHash:   hex.EncodeToString(env.StateHash[:]),
		EmittedAt:   out.Emitted,
	})

	if out.Batch != nil {
		for _, j := range out.Batch.Journals {
			b.Journals = append(b.Journals, JournalRecord{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Asset:         j.AssetID.String(),
				Amount:        j.Amount,
				JournalType:   j.JournalType.String(),
				Authority:     j.Authority.String(),
				Height:        j.Height,
			})
		}
	}

	if swap, ok := swapRecord(out); ok {
		b.Swaps = append(b.Swaps, swap)
	}
}

func swapRecord(out core.CoreOutput) (SwapRecord, bool) {
	env := out.Envelope
	if env.CommandType != event.CommandSwap && env.CommandType != event.CommandSwapSlotPool {
		return SwapRecord{}, false
	}
	cmd, err := env.Decode()
	if err != nil {
		return SwapRecord{}, false
	}

	rec := SwapRecord{Sequence: env.Sequence, Height: env.Height, Trader: env.Signer.String()}
	var q amm.Quote
	switch c := cmd.(type) {
	case *event.Swap:
		res, ok := out.Output.(amm.SwapResult)
		if !ok {
			return SwapRecord{}, false
		}
		rec.Pool = "long_short"
		rec.Direction = c.Direction.String()
		q = res.Quote
	case *event.SwapSlotPool:
		quote, ok := out.Output.(amm.Quote)
		if !ok {
			return SwapRecord{}, false
		}
		rec.Pool = "slot:" + c.Creator.String() + ":" + strconv.FormatUint(c.PoolID, 10)
		rec.Direction = c.Direction.String()
		q = quote
	default:
		return SwapRecord{}, false
	}
	rec.AmountIn = q.AmountIn
	rec.Fee = q.Fee
	rec.AmountOut = q.AmountOut
	return rec, true
}
