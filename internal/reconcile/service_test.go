package reconcile

import (
	"context"
	"testing"

	"github.com/famcircle/famcircle/internal/ledger"
	"github.com/famcircle/famcircle/internal/logging"
	"github.com/famcircle/famcircle/internal/settlement"
)

func pendingFunding(t *testing.T, store *ledger.InMemoryStore, familyID, amount int64) ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	fw, err := store.GetOrCreateFamilyWallet(ctx, familyID)
	if err != nil {
		t.Fatalf("get family wallet: %v", err)
	}
	led, err := store.CreateLedger(ctx, ledger.CreateLedger{
		FamilyID:    familyID,
		Type:        ledger.TypeFunding,
		Status:      ledger.StatusPending,
		AmountCents: amount,
		Entries: []ledger.EntryInput{
			{AccountType: ledger.AccountExternal, Direction: ledger.Debit, AmountCents: amount, ExternalAccountID: "settlement:rail"},
			{AccountType: ledger.AccountFamily, Direction: ledger.Credit, AmountCents: amount, FamilyWalletID: fw.ID},
		},
	})
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}
	return led
}

func TestHandleOutcome_CompletesPendingLedger(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, logging.Discard())
	ctx := context.Background()
	led := pendingFunding(t, store, 1, 10_000)

	if err := svc.HandleOutcome(ctx, settlement.Outcome{LedgerID: led.ID, Status: settlement.OutcomeCompleted}); err != nil {
		t.Fatalf("handle outcome: %v", err)
	}

	got, _ := store.GetLedger(ctx, led.ID)
	if got.Status != ledger.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
	fw, _ := store.GetOrCreateFamilyWallet(ctx, 1)
	if fw.BalanceCents != 10_000 {
		t.Fatalf("expected 10000, got %d", fw.BalanceCents)
	}
}

func TestHandleOutcome_DuplicateCallbacksApplyOnce(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, logging.Discard())
	ctx := context.Background()
	led := pendingFunding(t, store, 1, 10_000)

	outcome := settlement.Outcome{LedgerID: led.ID, Status: settlement.OutcomeCompleted}
	for i := 0; i < 3; i++ {
		if err := svc.HandleOutcome(ctx, outcome); err != nil {
			t.Fatalf("callback %d: %v", i, err)
		}
	}

	fw, _ := store.GetOrCreateFamilyWallet(ctx, 1)
	if fw.BalanceCents != 10_000 {
		t.Fatalf("duplicate callbacks double-applied: balance=%d", fw.BalanceCents)
	}
}

func TestHandleOutcome_ConflictingTerminalIsSwallowed(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, logging.Discard())
	ctx := context.Background()
	led := pendingFunding(t, store, 1, 10_000)

	if err := svc.HandleOutcome(ctx, settlement.Outcome{LedgerID: led.ID, Status: settlement.OutcomeCompleted}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// A late contradictory callback is logged and dropped, never retried.
	if err := svc.HandleOutcome(ctx, settlement.Outcome{LedgerID: led.ID, Status: settlement.OutcomeFailed}); err != nil {
		t.Fatalf("conflicting callback should be swallowed: %v", err)
	}

	got, _ := store.GetLedger(ctx, led.ID)
	if got.Status != ledger.StatusCompleted {
		t.Fatalf("status changed after terminal: %s", got.Status)
	}
}

func TestHandleOutcome_UnknownLedgerIsSwallowed(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, logging.Discard())

	if err := svc.HandleOutcome(context.Background(), settlement.Outcome{LedgerID: "no-such-ledger", Status: settlement.OutcomeCompleted}); err != nil {
		t.Fatalf("unknown ledger should be swallowed: %v", err)
	}
}

func TestHandleOutcome_UnknownStatus(t *testing.T) {
	store := ledger.NewInMemory()
	svc := NewService(store, logging.Discard())
	led := pendingFunding(t, store, 1, 1_000)

	if err := svc.HandleOutcome(context.Background(), settlement.Outcome{LedgerID: led.ID, Status: "reversed"}); err == nil {
		t.Fatalf("expected error for unknown settlement status")
	}
}
