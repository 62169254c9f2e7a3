package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"

	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/store"
)

// ErrNoEventLog is returned by history queries on a service without a
// database.
var ErrNoEventLog = errors.New("event log not configured")

const maxJournalPage = 500

// Journals returns the logged journals touching owner's wallets, newest
// first. beforeSeq pages backwards; zero starts at the tip.
func (qs *QueryService) Journals(ctx context.Context, owner string, limit int, beforeSeq int64) (Response[[]JournalHistoryEntry], error) {
	var resp Response[[]JournalHistoryEntry]
	if qs.db == nil {
		return resp, ErrNoEventLog
	}
	key, err := parseOwner(owner)
	if err != nil {
		return resp, fault.New(fault.InvalidAddress, "owner %q", owner)
	}
	if limit <= 0 || limit > maxJournalPage {
		limit = maxJournalPage
	}
	if beforeSeq <= 0 {
		beforeSeq = math.MaxInt64
	}

	pattern := fmt.Sprintf("user:%s:%%", key)
	rows, err := qs.db.QueryContext(ctx, qs.dialect.Rebind(`
		SELECT journal_id, batch_id, sequence, debit_account, credit_account,
		       asset_id, amount, journal_type, authority, height
		FROM clearing_journals
		WHERE (debit_account LIKE ? OR credit_account LIKE ?) AND sequence < ?
		ORDER BY sequence DESC, journal_id
		LIMIT ?`), pattern, pattern, beforeSeq, limit)
	if err != nil {
		return resp, fmt.Errorf("query journals: %w", err)
	}
	defer rows.Close()

	resp.Data = []JournalHistoryEntry{}
	for rows.Next() {
		var e JournalHistoryEntry
		var assetID uint16
		var journalType int32
		if err := rows.Scan(&e.JournalID, &e.BatchID, &e.Sequence, &e.DebitAccount, &e.CreditAccount,
			&assetID, &e.Amount, &journalType, &e.Authority, &e.Height); err != nil {
			return resp, fmt.Errorf("scan journal: %w", err)
		}
		e.Asset = ledger.AssetID(assetID).String()
		e.JournalType = ledger.JournalType(journalType).String()
		resp.Data = append(resp.Data, e)
	}
	if err := rows.Err(); err != nil {
		return resp, err
	}
	resp.AsOfSequence, _, _ = qs.state.Tip()
	return resp, nil
}

// VerifyIntegrity checks that every asset nets to zero across accounts
// and, with an event log, that the logged hash chain is unbroken and
// agrees with the core's tip.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (Response[IntegrityReport], error) {
	var resp Response[IntegrityReport]
	report := &resp.Data

	qs.state.ViewAsOf(func(seq int64, _ *store.Store, balances *ledger.BalanceTracker) {
		resp.AsOfSequence = seq
		for asset, total := range balances.ComputeGlobalBalance() {
			if total != 0 {
				report.UnbalancedAssets = append(report.UnbalancedAssets, UnbalancedAsset{Asset: asset.String(), Imbalance: total})
			}
		}
	})

	if qs.db != nil {
		if err := qs.verifyChain(ctx, report); err != nil {
			return resp, err
		}
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedAssets) == 0 && !report.LogTipMismatch
	return resp, nil
}

func (qs *QueryService) verifyChain(ctx context.Context, report *IntegrityReport) error {
	rows, err := qs.db.QueryContext(ctx, `SELECT sequence, state_hash, prev_hash FROM clearing_events ORDER BY sequence`)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var (
		lastSeq  int64
		lastHash = make([]byte, 32)
	)
	for rows.Next() {
		var seq int64
		var stateHash, prevHash []byte
		if err := rows.Scan(&seq, &stateHash, &prevHash); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		if seq != lastSeq+1 || !bytes.Equal(prevHash, lastHash) {
			report.HashChainBreaks = append(report.HashChainBreaks, seq)
		}
		report.CheckedEvents++
		lastSeq, lastHash = seq, stateHash
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// The log may trail the core while the persistence worker catches up,
	// but it must never lead it or disagree at the tip.
	tipSeq, tipHash, _ := qs.state.Tip()
	switch {
	case lastSeq > tipSeq:
		report.LogTipMismatch = true
	case lastSeq == tipSeq && lastSeq > 0 && !bytes.Equal(lastHash, tipHash[:]):
		report.LogTipMismatch = true
	}
	return nil
}
