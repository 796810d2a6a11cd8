// Package reconcile consumes settlement outcomes and drives ledger status
// transitions. It is the only writer of PENDING -> terminal transitions, and
// it relies on the store's no-op rules to stay safe under duplicate or
// out-of-order callbacks.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/famcircle/famcircle/internal/ledger"
	"github.com/famcircle/famcircle/internal/settlement"
)

// Service reconciles settlement callbacks against the ledger.
type Service struct {
	store  ledger.Store
	logger *slog.Logger
}

// NewService constructs a reconciliation service.
func NewService(store ledger.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// HandleOutcome moves the ledger to its terminal status. Unknown ledger ids
// and conflicting terminal statuses are logged and swallowed so the rail
// does not retry them; store failures propagate and should be retried.
func (s *Service) HandleOutcome(ctx context.Context, outcome settlement.Outcome) error {
	var target ledger.Status
	switch outcome.Status {
	case settlement.OutcomeCompleted:
		target = ledger.StatusCompleted
	case settlement.OutcomeFailed:
		target = ledger.StatusFailed
	default:
		return fmt.Errorf("unknown settlement status %q", outcome.Status)
	}

	led, err := s.store.MarkStatus(ctx, outcome.LedgerID, target)
	switch {
	case err == nil:
		s.logger.Info("settlement reconciled",
			"ledger_id", led.ID, "type", string(led.Type), "status", string(led.Status))
		return nil
	case errors.Is(err, ledger.ErrNotFound):
		s.logger.Warn("settlement callback for unknown ledger",
			"ledger_id", outcome.LedgerID, "status", outcome.Status)
		return nil
	case errors.Is(err, ledger.ErrInvalidTransition):
		s.logger.Warn("out-of-order settlement callback ignored",
			"ledger_id", outcome.LedgerID, "status", outcome.Status, "error", err)
		return nil
	default:
		return err
	}
}

// Outcome adapts HandleOutcome to the rail's subscriber signature. Errors
// are logged; the mock rail has no redelivery.
func (s *Service) Outcome(ctx context.Context, outcome settlement.Outcome) {
	if err := s.HandleOutcome(ctx, outcome); err != nil {
		s.logger.Error("settlement reconciliation failed",
			"ledger_id", outcome.LedgerID, "status", outcome.Status, "error", err)
	}
}
