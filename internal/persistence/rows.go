package persistence

import (
	"fmt"
	"time"

	"CfdLedger/internal/address"
	"CfdLedger/internal/core"
	"CfdLedger/internal/event"
	"CfdLedger/internal/store"
)

// EventRow represents a row in clearing_events
type EventRow struct {
	Sequence       int64
	CommandType    string
	IdempotencyKey string
	Signer         string
	Height         int64
	Payload        []byte // JSON-encoded command
	StateHash      []byte
	PrevHash       []byte
	CreatedAt      int64 // unix micros
}

// JournalRow represents a row in clearing_journals
type JournalRow struct {
	JournalID     string
	BatchID       string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	AssetID       uint16
	Amount        int64
	JournalType   int32
	Authority     string
	Height        int64
}

// RecordRow represents a row in clearing_records. Data is nil for deletes.
type RecordRow struct {
	Address  string
	Kind     string
	Data     []byte
	Sequence int64
	Deleted  bool
}

// Rows is everything one committed command writes.
type Rows struct {
	Event    EventRow
	Journals []JournalRow
	Records  []RecordRow
}

// RowsFromOutput converts a core output into table rows.
func RowsFromOutput(out core.CoreOutput, codec *store.Codec) (Rows, error) {
	env := out.Envelope
	emitted := out.Emitted
	if emitted.IsZero() {
		emitted = time.Now()
	}
	rows := Rows{
		Event: EventRow{
			Sequence:       env.Sequence,
			CommandType:    string(env.CommandType),
			IdempotencyKey: env.IdempotencyKey,
			Signer:         env.Signer.String(),
			Height:         int64(env.Height),
			Payload:        env.Payload,
			StateHash:      append([]byte(nil), env.StateHash[:]...),
			PrevHash:       append([]byte(nil), env.PrevHash[:]...),
			CreatedAt:      emitted.UnixMicro(),
		},
	}

	if out.Batch != nil {
		rows.Journals = make([]JournalRow, 0, len(out.Batch.Journals))
		for _, j := range out.Batch.Journals {
			rows.Journals = append(rows.Journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				Sequence:      j.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				AssetID:       uint16(j.AssetID),
				Amount:        j.Amount,
				JournalType:   int32(j.JournalType),
				Authority:     j.Authority.String(),
				Height:        int64(j.Height),
			})
		}
	}

	for _, ch := range out.Changes {
		row := RecordRow{Address: ch.Key.String(), Sequence: env.Sequence, Deleted: ch.Deleted}
		if !ch.Deleted {
			data, err := codec.Encode(ch.Record)
			if err != nil {
				return Rows{}, fmt.Errorf("seq %d: %w", env.Sequence, err)
			}
			row.Kind = ch.Record.Kind()
			row.Data = data
		}
		rows.Records = append(rows.Records, row)
	}
	return rows, nil
}

// Envelope rebuilds the logged envelope for replay.
func (r EventRow) Envelope() (*event.Envelope, error) {
	signer, err := address.Parse(r.Signer)
	if err != nil {
		return nil, fmt.Errorf("event %d signer: %w", r.Sequence, err)
	}
	env := &event.Envelope{
		Sequence:       r.Sequence,
		IdempotencyKey: r.IdempotencyKey,
		CommandType:    event.CommandType(r.CommandType),
		Signer:         signer,
		Height:         uint64(r.Height),
		Payload:        r.Payload,
	}
	if len(r.StateHash) != 32 || len(r.PrevHash) != 32 {
		return nil, fmt.Errorf("event %d: hash length %d/%d", r.Sequence, len(r.StateHash), len(r.PrevHash))
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, nil
}
