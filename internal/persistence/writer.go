package persistence

import (
	"context"
	"fmt"
	"strings"
)

// maxRowsPerInsert keeps multi-row INSERTs under the bind parameter limits
// of both dialects.
const maxRowsPerInsert = 500

// EventLogWriter writes events, journals, record versions and idempotency
// keys using multi-row INSERTs. Every write is idempotent so a retried batch
// never duplicates rows.
type EventLogWriter struct {
	dialect Dialect
}

func NewEventLogWriter(dialect Dialect) *EventLogWriter {
	return &EventLogWriter{dialect: dialect}
}

// insertRows runs "<prefix> VALUES (...), (...) <suffix>" in chunks.
func (w *EventLogWriter) insertRows(ctx context.Context, ex execer, prefix, suffix string, cols, n int, args func(i int) []any) error {
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", cols), ", ") + ")"

	for start := 0; start < n; start += maxRowsPerInsert {
		end := start + maxRowsPerInsert
		if end > n {
			end = n
		}

		values := make([]string, 0, end-start)
		flat := make([]any, 0, (end-start)*cols)
		for i := start; i < end; i++ {
			values = append(values, tuple)
			flat = append(flat, args(i)...)
		}

		query := prefix + " VALUES " + strings.Join(values, ", ") + " " + suffix
		if _, err := ex.ExecContext(ctx, w.dialect.Rebind(query), flat...); err != nil {
			return err
		}
	}
	return nil
}

// WriteEventBatch writes a batch of events to clearing_events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}
	return w.insertRows(ctx, ex,
		`INSERT INTO clearing_events
		(sequence, command_type, idempotency_key, signer, height, payload, state_hash, prev_hash, created_at)`,
		"ON CONFLICT (sequence) DO NOTHING",
		9, len(events),
		func(i int) []any {
			e := events[i]
			return []any{e.Sequence, e.CommandType, e.IdempotencyKey, e.Signer, e.Height, e.Payload, e.StateHash, e.PrevHash, e.CreatedAt}
		},
	)
}

// WriteJournalBatch writes a batch of journal entries to clearing_journals.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, ex execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}
	return w.insertRows(ctx, ex,
		`INSERT INTO clearing_journals
		(journal_id, batch_id, sequence, debit_account, credit_account, asset_id, amount, journal_type, authority, height)`,
		"ON CONFLICT (journal_id) DO NOTHING",
		10, len(journals),
		func(i int) []any {
			j := journals[i]
			return []any{j.JournalID, j.BatchID, j.Sequence, j.DebitAccount, j.CreditAccount, int64(j.AssetID), j.Amount, int64(j.JournalType), j.Authority, j.Height}
		},
	)
}

// WriteIdempotencyKeys records the dedup keys of the given events.
func (w *EventLogWriter) WriteIdempotencyKeys(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}
	return w.insertRows(ctx, ex,
		`INSERT INTO clearing_idempotency (idempotency_key, sequence)`,
		"ON CONFLICT (idempotency_key) DO NOTHING",
		2, len(events),
		func(i int) []any { return []any{events[i].IdempotencyKey, events[i].Sequence} },
	)
}

// WriteRecordVersions upserts the latest version of each record. Rows must
// be in sequence order; a later row for the same address wins. Deletes
// keep the last kind and data and set the deleted flag.
func (w *EventLogWriter) WriteRecordVersions(ctx context.Context, ex execer, records []RecordRow) error {
	upsert := w.dialect.Rebind(`INSERT INTO clearing_records (address, kind, data, sequence, deleted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			kind = excluded.kind, data = excluded.data, sequence = excluded.sequence, deleted = excluded.deleted
		WHERE clearing_records.sequence <= excluded.sequence`)
	del := w.dialect.Rebind(`UPDATE clearing_records SET deleted = ?, sequence = ?
		WHERE address = ? AND sequence <= ?`)

	for _, r := range records {
		var err error
		if r.Deleted {
			_, err = ex.ExecContext(ctx, del, true, r.Sequence, r.Address, r.Sequence)
		} else {
			_, err = ex.ExecContext(ctx, upsert, r.Address, r.Kind, r.Data, r.Sequence, false)
		}
		if err != nil {
			return fmt.Errorf("record %s at seq %d: %w", r.Address, r.Sequence, err)
		}
	}
	return nil
}
