package settlement

import (
	"context"
	"sync"
	"testing"
	"time"
)

type outcomeCollector struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (c *outcomeCollector) collect(_ context.Context, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func (c *outcomeCollector) byLedger() map[string][]Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]Outcome)
	for _, o := range c.outcomes {
		out[o.LedgerID] = append(out[o.LedgerID], o)
	}
	return out
}

func TestMockRail_OneTerminalOutcomePerLedger(t *testing.T) {
	rail := NewMockRail(5 * time.Millisecond)
	collector := &outcomeCollector{}
	rail.Subscribe(collector.collect)
	ctx := context.Background()

	funding, err := rail.CreateFundingTransfer(ctx, FundingRequest{LedgerID: "ledger-a", FamilyID: 1, AmountCents: 10_000})
	if err != nil {
		t.Fatalf("funding transfer: %v", err)
	}
	payout, err := rail.CreatePayout(ctx, PayoutRequest{LedgerID: "ledger-b", FamilyID: 1, UserID: "user-1", AmountCents: 2_000})
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if funding.ID == "" || payout.ID == "" || funding.ID == payout.ID {
		t.Fatalf("expected distinct transfer handles, got %q and %q", funding.ID, payout.ID)
	}

	rail.Wait()

	got := collector.byLedger()
	for _, ledgerID := range []string{"ledger-a", "ledger-b"} {
		outcomes := got[ledgerID]
		if len(outcomes) != 1 {
			t.Fatalf("ledger %s: expected exactly one outcome, got %d", ledgerID, len(outcomes))
		}
		if outcomes[0].Status != OutcomeCompleted {
			t.Fatalf("ledger %s: expected completed, got %s", ledgerID, outcomes[0].Status)
		}
	}
}

func TestMockRail_ScriptedFailure(t *testing.T) {
	rail := NewMockRail(0)
	rail.ScriptOutcome(OutcomeFailed)
	collector := &outcomeCollector{}
	rail.Subscribe(collector.collect)

	if _, err := rail.CreatePayout(context.Background(), PayoutRequest{LedgerID: "ledger-a", AmountCents: 500}); err != nil {
		t.Fatalf("payout: %v", err)
	}
	rail.Wait()

	outcomes := collector.byLedger()["ledger-a"]
	if len(outcomes) != 1 || outcomes[0].Status != OutcomeFailed {
		t.Fatalf("expected one failed outcome, got %+v", outcomes)
	}
}

func TestMockRail_ScriptAffectsSubsequentTransfersOnly(t *testing.T) {
	rail := NewMockRail(0)
	collector := &outcomeCollector{}
	rail.Subscribe(collector.collect)
	ctx := context.Background()

	if _, err := rail.CreatePayout(ctx, PayoutRequest{LedgerID: "before", AmountCents: 100}); err != nil {
		t.Fatalf("payout: %v", err)
	}
	rail.ScriptOutcome(OutcomeFailed)
	if _, err := rail.CreatePayout(ctx, PayoutRequest{LedgerID: "after", AmountCents: 100}); err != nil {
		t.Fatalf("payout: %v", err)
	}
	rail.Wait()

	got := collector.byLedger()
	if got["before"][0].Status != OutcomeCompleted {
		t.Fatalf("pre-script transfer affected: %+v", got["before"])
	}
	if got["after"][0].Status != OutcomeFailed {
		t.Fatalf("post-script transfer not affected: %+v", got["after"])
	}
}
