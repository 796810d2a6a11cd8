// Package settlement is the boundary to the money-movement rail. The only
// contract any real implementation must honor: each transfer is keyed by the
// requesting ledger id, and exactly one terminal outcome is eventually
// reported per ledger.
package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// OutcomeCompleted reports that the rail moved the money.
	OutcomeCompleted = "completed"
	// OutcomeFailed reports that the money never moved.
	OutcomeFailed = "failed"
)

// FundingRequest asks the rail to pull money into a family wallet.
type FundingRequest struct {
	LedgerID    string
	FamilyID    int64
	AmountCents int64
}

// PayoutRequest asks the rail to push money out to a member.
type PayoutRequest struct {
	LedgerID    string
	FamilyID    int64
	UserID      string
	AmountCents int64
}

// Transfer is the rail's handle for an initiated movement.
type Transfer struct {
	ID string
}

// Outcome is the terminal result the rail reports for a ledger.
type Outcome struct {
	LedgerID string
	Status   string
}

// Rail abstracts the external settlement rail consumed by the transfer
// orchestrator.
type Rail interface {
	CreateFundingTransfer(ctx context.Context, req FundingRequest) (Transfer, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (Transfer, error)
}

// OutcomeFunc consumes a settlement outcome.
type OutcomeFunc func(ctx context.Context, outcome Outcome)

// MockRail simulates the settlement rail: it approves every request with a
// synthetic handle and reports a terminal outcome to its subscribers after
// the configured delay. Subscription is per-instance so tests and the server
// each wire their own handler, no process-global registration.
type MockRail struct {
	delay   time.Duration
	mu      sync.Mutex
	outcome string
	subs    []OutcomeFunc
	wg      sync.WaitGroup
}

// NewMockRail builds a rail that reports OutcomeCompleted after delay.
func NewMockRail(delay time.Duration) *MockRail {
	return &MockRail{delay: delay, outcome: OutcomeCompleted}
}

// Subscribe registers fn to receive every terminal outcome.
func (r *MockRail) Subscribe(fn OutcomeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// ScriptOutcome changes the terminal status reported for subsequent
// transfers. Useful for exercising the failure path.
func (r *MockRail) ScriptOutcome(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = status
}

// CreateFundingTransfer approves the funding request and schedules its
// terminal outcome.
func (r *MockRail) CreateFundingTransfer(_ context.Context, req FundingRequest) (Transfer, error) {
	return r.schedule(req.LedgerID), nil
}

// CreatePayout approves the payout request and schedules its terminal
// outcome.
func (r *MockRail) CreatePayout(_ context.Context, req PayoutRequest) (Transfer, error) {
	return r.schedule(req.LedgerID), nil
}

func (r *MockRail) schedule(ledgerID string) Transfer {
	r.mu.Lock()
	status := r.outcome
	r.mu.Unlock()

	r.wg.Add(1)
	time.AfterFunc(r.delay, func() {
		defer r.wg.Done()
		r.deliver(Outcome{LedgerID: ledgerID, Status: status})
	})
	return Transfer{ID: uuid.NewString()}
}

func (r *MockRail) deliver(outcome Outcome) {
	r.mu.Lock()
	subs := append([]OutcomeFunc(nil), r.subs...)
	r.mu.Unlock()
	for _, fn := range subs {
		fn(context.Background(), outcome)
	}
}

// Wait blocks until every scheduled outcome has been delivered. Test helper.
func (r *MockRail) Wait() {
	r.wg.Wait()
}
