package ledger_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"

	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
)

var (
	alice = address.FromSeed("alice")
	bob   = address.FromSeed("bob")
	vault = address.FromSeed("vault")
)

func mustCommit(t *testing.T, bt *ledger.BalanceTracker, tx *ledger.Tx, seq int64) {
	t.Helper()
	batch := tx.Batch(seq)
	if batch == nil {
		t.Fatal("expected a batch")
	}
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}
}

// ============================================================================
// Test: AccountKey
// ============================================================================

func TestAccountKey_UserPath(t *testing.T) {
	key := ledger.UserAccount(alice, ledger.AssetUSDC)

	expected := "user:" + alice.String() + ":USDC"
	if path := key.AccountPath(); path != expected {
		t.Errorf("got %q, want %q", path, expected)
	}
}

func TestAccountKey_IssuancePath(t *testing.T) {
	key := ledger.IssuanceAccount(ledger.AssetLong)
	if path := key.AccountPath(); path != "issuance:LONG" {
		t.Errorf("got %q, want %q", path, "issuance:LONG")
	}
}

func TestParseAccountPath_RoundTrip(t *testing.T) {
	keys := []ledger.AccountKey{
		ledger.UserAccount(alice, ledger.AssetStakedCaden),
		ledger.VaultAccount(vault, ledger.AssetUSDC),
		ledger.IssuanceAccount(ledger.AssetSlot),
	}
	for _, key := range keys {
		parsed, err := ledger.ParseAccountPath(key.AccountPath())
		if err != nil {
			t.Fatalf("parse %s: %v", key, err)
		}
		if parsed != key {
			t.Errorf("round trip mismatch: got %+v, want %+v", parsed, key)
		}
	}

	for _, bad := range []string{"", "user:xyz", "user:" + alice.String() + ":DOGE", "wallet:" + alice.String() + ":USDC"} {
		if _, err := ledger.ParseAccountPath(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestGetAssetID(t *testing.T) {
	id, ok := ledger.GetAssetID("STK_CADEN")
	if !ok || id != ledger.AssetStakedCaden {
		t.Errorf("STK_CADEN: got (%d, %v)", id, ok)
	}
	if _, ok := ledger.GetAssetID("DOGE"); ok {
		t.Error("DOGE should not be a known asset")
	}
}

// ============================================================================
// Test: Tx (host primitives)
// ============================================================================

func TestTx_MintTransferBurn(t *testing.T) {
	bt := ledger.NewBalanceTracker()

	tx := bt.Begin("req-1", 10)
	if err := tx.Mint(ledger.UserAccount(alice, ledger.AssetUSDC), 1_000, alice); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tx.Transfer(ledger.UserAccount(alice, ledger.AssetUSDC), ledger.VaultAccount(vault, ledger.AssetUSDC), 400, alice); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := tx.Burn(ledger.UserAccount(alice, ledger.AssetUSDC), 100, alice); err != nil {
		t.Fatalf("burn: %v", err)
	}

	// Nothing is visible before commit
	if got := bt.UserBalance(alice, ledger.AssetUSDC); got != 0 {
		t.Errorf("staged balance leaked: %d", got)
	}
	if got := tx.Balance(ledger.UserAccount(alice, ledger.AssetUSDC)); got != 500 {
		t.Errorf("staged balance: got %d, want 500", got)
	}

	mustCommit(t, bt, tx, 1)

	if got := bt.UserBalance(alice, ledger.AssetUSDC); got != 500 {
		t.Errorf("alice: got %d, want 500", got)
	}
	if got := bt.GetBalance(ledger.VaultAccount(vault, ledger.AssetUSDC)); got != 400 {
		t.Errorf("vault: got %d, want 400", got)
	}
	if got := bt.Supply(ledger.AssetUSDC); got != 900 {
		t.Errorf("supply: got %d, want 900", got)
	}
}

func TestTx_InsufficientBalance(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	tx := bt.Begin("req-1", 1)

	err := tx.Transfer(ledger.UserAccount(alice, ledger.AssetUSDC), ledger.UserAccount(bob, ledger.AssetUSDC), 1, alice)
	if !errors.Is(err, fault.InsufficientBalance) {
		t.Fatalf("expected InsufficientBalance, got %v", err)
	}
	if tx.Len() != 0 {
		t.Errorf("failed transfer must not stage a journal")
	}

	err = tx.Burn(ledger.UserAccount(alice, ledger.AssetLong), 5, bob)
	if !errors.Is(err, fault.InsufficientBalance) {
		t.Errorf("expected InsufficientBalance on burn, got %v", err)
	}
}

func TestTx_ZeroAmountIsNoop(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	tx := bt.Begin("req-1", 1)

	if err := tx.Transfer(ledger.UserAccount(alice, ledger.AssetUSDC), ledger.UserAccount(bob, ledger.AssetUSDC), 0, alice); err != nil {
		t.Fatalf("zero transfer should succeed: %v", err)
	}
	if tx.Batch(1) != nil {
		t.Error("zero transfer should produce no batch")
	}
}

func TestTx_MixedAssetsRejected(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	tx := bt.Begin("req-1", 1)
	_ = tx.Mint(ledger.UserAccount(alice, ledger.AssetUSDC), 10, alice)

	err := tx.Transfer(ledger.UserAccount(alice, ledger.AssetUSDC), ledger.UserAccount(bob, ledger.AssetLong), 5, alice)
	if !errors.Is(err, fault.InvalidAssetType) {
		t.Errorf("expected InvalidAssetType, got %v", err)
	}
}

func TestTx_AmountOverInt64(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	tx := bt.Begin("req-1", 1)

	err := tx.Mint(ledger.UserAccount(alice, ledger.AssetUSDC), 1<<63, alice)
	if !errors.Is(err, fault.MathOverflow) {
		t.Errorf("expected MathOverflow, got %v", err)
	}
}

func TestTx_SupplyOverflow(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	tx := bt.Begin("req-1", 1)

	if err := tx.Mint(ledger.UserAccount(alice, ledger.AssetUSDC), math.MaxInt64, alice); err != nil {
		t.Fatalf("mint to alice: %v", err)
	}
	if err := tx.Mint(ledger.UserAccount(bob, ledger.AssetUSDC), 1, alice); err != nil {
		t.Fatalf("mint to bob: %v", err)
	}
	err := tx.Mint(ledger.UserAccount(vault, ledger.AssetUSDC), 1, alice)
	if !errors.Is(err, fault.MathOverflow) {
		t.Fatalf("expected MathOverflow, got %v", err)
	}
	if got := tx.Len(); got != 2 {
		t.Errorf("rejected mint staged a journal: %d journals", got)
	}
}

func TestTx_DeterministicBatchIDs(t *testing.T) {
	build := func() *ledger.Batch {
		bt := ledger.NewBalanceTracker()
		tx := bt.Begin("req-42", 7)
		_ = tx.Mint(ledger.UserAccount(alice, ledger.AssetUSDC), 10, alice)
		_ = tx.Mint(ledger.UserAccount(bob, ledger.AssetUSDC), 20, bob)
		return tx.Batch(3)
	}
	a, b := build(), build()

	if a.BatchID != b.BatchID {
		t.Errorf("batch ids differ: %s vs %s", a.BatchID, b.BatchID)
	}
	for i := range a.Journals {
		if a.Journals[i].JournalID != b.Journals[i].JournalID {
			t.Errorf("journal %d ids differ", i)
		}
		if a.Journals[i].Sequence != 3 || a.Journals[i].Height != 7 {
			t.Errorf("journal %d: sequence/height not stamped", i)
		}
	}
	if a.Journals[0].JournalID == a.Journals[1].JournalID {
		t.Error("journal ids within a batch must be distinct")
	}
}

func TestTx_AuthorityRecorded(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	tx := bt.Begin("req-1", 1)
	_ = tx.Mint(ledger.UserAccount(alice, ledger.AssetLong), 10, vault)
	mustCommit(t, bt, tx, 1)

	tx = bt.Begin("req-2", 2)
	if err := tx.Burn(ledger.UserAccount(alice, ledger.AssetLong), 10, bob); err != nil {
		t.Fatalf("burn: %v", err)
	}
	batch := tx.Batch(2)
	if batch.Journals[0].Authority != bob {
		t.Errorf("burn authority: got %s, want %s", batch.Journals[0].Authority, bob)
	}
	if batch.Journals[0].JournalType != ledger.JournalTypeBurn {
		t.Errorf("journal type: got %s", batch.Journals[0].JournalType)
	}
}

// ============================================================================
// Test: Batch Validation
// ============================================================================

func TestBatchValidate(t *testing.T) {
	batchID := uuid.New()
	user := ledger.UserAccount(alice, ledger.AssetUSDC)
	issuance := ledger.IssuanceAccount(ledger.AssetUSDC)

	cases := []struct {
		name    string
		journal ledger.Journal
		wantErr bool
	}{
		{"valid", ledger.Journal{BatchID: batchID, DebitAccount: user, CreditAccount: issuance, AssetID: ledger.AssetUSDC, Amount: 1}, false},
		{"zero amount", ledger.Journal{BatchID: batchID, DebitAccount: user, CreditAccount: issuance, AssetID: ledger.AssetUSDC, Amount: 0}, true},
		{"negative amount", ledger.Journal{BatchID: batchID, DebitAccount: user, CreditAccount: issuance, AssetID: ledger.AssetUSDC, Amount: -1}, true},
		{"self transfer", ledger.Journal{BatchID: batchID, DebitAccount: user, CreditAccount: user, AssetID: ledger.AssetUSDC, Amount: 1}, true},
		{"mismatched batch", ledger.Journal{BatchID: uuid.New(), DebitAccount: user, CreditAccount: issuance, AssetID: ledger.AssetUSDC, Amount: 1}, true},
		{"mixed assets", ledger.Journal{BatchID: batchID, DebitAccount: user, CreditAccount: issuance, AssetID: ledger.AssetLong, Amount: 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			batch := &ledger.Batch{BatchID: batchID, Journals: []ledger.Journal{tc.journal}}
			err := batch.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}

	empty := &ledger.Batch{BatchID: batchID}
	if err := empty.Validate(); err == nil {
		t.Error("empty batch should fail validation")
	}
}

// ============================================================================
// Test: InvariantValidator
// ============================================================================

func TestInvariantValidator_GlobalBalanceZero(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	v := ledger.NewInvariantValidator(bt)

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("empty ledger should have zero global balance: %v", err)
	}

	tx := bt.Begin("req-1", 1)
	_ = tx.Mint(ledger.UserAccount(alice, ledger.AssetUSDC), 1_000_000, alice)
	_ = tx.Transfer(ledger.UserAccount(alice, ledger.AssetUSDC), ledger.UserAccount(bob, ledger.AssetUSDC), 250_000, alice)
	batch := tx.Batch(1)
	if err := bt.ApplyBatch(batch); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	if err := v.ValidateGlobalBalance(); err != nil {
		t.Errorf("balanced ledger should have zero global balance: %v", err)
	}
	if err := v.ValidateTouchedNonNegative(batch); err != nil {
		t.Errorf("no holder account should be negative: %v", err)
	}
}

func TestBalanceTracker_SnapshotIsCopy(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	tx := bt.Begin("req-1", 1)
	_ = tx.Mint(ledger.UserAccount(alice, ledger.AssetUSDC), 999, alice)
	mustCommit(t, bt, tx, 1)

	snap := bt.Snapshot()
	for k := range snap {
		snap[k] = 0
	}
	if bt.UserBalance(alice, ledger.AssetUSDC) != 999 {
		t.Error("tracker balance should not be affected by snapshot mutation")
	}
}
