// Package transfer orchestrates the three monetary flows: family funding,
// family-to-user reward transfers, and user withdrawals. Each flow is one
// atomic ledger operation; settlement rail calls happen strictly after the
// local transaction commits, so a slow or failing rail never holds a
// balance-affecting transaction open.
package transfer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/famcircle/famcircle/internal/ledger"
	"github.com/famcircle/famcircle/internal/notification"
	"github.com/famcircle/famcircle/internal/settlement"
)

// ExternalSettlementAccount is the external-account label used on the rail
// side of funding and withdrawal ledgers.
const ExternalSettlementAccount = "settlement:rail"

// Service coordinates wallet, ledger, and settlement-rail operations.
type Service struct {
	store    ledger.Store
	rail     settlement.Rail
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds a transfer service.
func NewService(store ledger.Store, rail settlement.Rail, notifier notification.Notifier, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if rail == nil {
		return nil, fmt.Errorf("settlement rail is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, rail: rail, notifier: notifier, logger: logger}, nil
}

// FundingInput captures a request to pull external money into the family wallet.
type FundingInput struct {
	FamilyID    int64
	AmountCents int64
	Description string
	Metadata    map[string]string
	InitiatedBy string
}

// RewardInput captures a family-to-user transfer, typically a task or gig payout.
type RewardInput struct {
	FamilyID      int64
	UserID        string
	AmountCents   int64
	Type          ledger.Type
	Description   string
	ReferenceType string
	ReferenceID   string
	InitiatedBy   string
}

// WithdrawalInput captures a member's request to push funds out to the rail.
type WithdrawalInput struct {
	FamilyID    int64
	UserID      string
	AmountCents int64
	Description string
	InitiatedBy string
}

// Result is the outcome of an orchestrated flow.
type Result struct {
	Ledger             ledger.Ledger
	FamilyBalanceCents int64
	UserBalanceCents   int64
}

// InitiateFamilyFunding creates a PENDING FUNDING ledger (external debit,
// family credit, not yet applied) and asks the rail to start the transfer.
// The family balance only moves when the rail reports completion. A rail
// failure after the local commit is logged, not rolled back; the PENDING
// ledger is left for out-of-band retry or expiry.
func (s *Service) InitiateFamilyFunding(ctx context.Context, input FundingInput) (Result, error) {
	if input.AmountCents <= 0 {
		return Result{}, fmt.Errorf("%w: funding amount %d", ledger.ErrInvalidAmount, input.AmountCents)
	}

	fw, err := s.store.GetOrCreateFamilyWallet(ctx, input.FamilyID)
	if err != nil {
		return Result{}, err
	}

	led, err := s.store.CreateLedger(ctx, ledger.CreateLedger{
		FamilyID:    input.FamilyID,
		Type:        ledger.TypeFunding,
		Status:      ledger.StatusPending,
		AmountCents: input.AmountCents,
		Description: input.Description,
		Metadata:    input.Metadata,
		InitiatedBy: input.InitiatedBy,
		Entries: []ledger.EntryInput{
			{AccountType: ledger.AccountExternal, Direction: ledger.Debit, AmountCents: input.AmountCents, ExternalAccountID: ExternalSettlementAccount},
			{AccountType: ledger.AccountFamily, Direction: ledger.Credit, AmountCents: input.AmountCents, FamilyWalletID: fw.ID},
		},
	})
	if err != nil {
		return Result{}, err
	}

	handle, err := s.rail.CreateFundingTransfer(ctx, settlement.FundingRequest{
		LedgerID:    led.ID,
		FamilyID:    input.FamilyID,
		AmountCents: input.AmountCents,
	})
	if err != nil {
		s.logger.Error("settlement funding request failed; ledger left pending",
			"ledger_id", led.ID, "family_id", input.FamilyID, "error", err)
		return Result{Ledger: led, FamilyBalanceCents: fw.BalanceCents}, nil
	}

	if err := s.store.SetExternalID(ctx, led.ID, handle.ID); err != nil {
		return Result{}, err
	}
	led.ExternalID = handle.ID

	return Result{Ledger: led, FamilyBalanceCents: fw.BalanceCents}, nil
}

// TransferFromFamilyToUser moves funds from the pooled family wallet to a
// member's wallet. Both legs are internal, so the ledger is created
// COMPLETED and applied immediately; sufficiency of the family wallet is
// asserted inside the same transaction that debits it.
func (s *Service) TransferFromFamilyToUser(ctx context.Context, input RewardInput) (Result, error) {
	if input.AmountCents <= 0 {
		return Result{}, fmt.Errorf("%w: transfer amount %d", ledger.ErrInvalidAmount, input.AmountCents)
	}
	typ := input.Type
	if typ == "" {
		typ = ledger.TypeTransfer
	}
	switch typ {
	case ledger.TypeTransfer, ledger.TypeTaskReward, ledger.TypeGigReward:
	default:
		return Result{}, fmt.Errorf("ledger type %q cannot move funds from family to user", typ)
	}

	fw, err := s.store.GetOrCreateFamilyWallet(ctx, input.FamilyID)
	if err != nil {
		return Result{}, err
	}
	uw, err := s.store.GetOrCreateUserWallet(ctx, input.FamilyID, input.UserID)
	if err != nil {
		return Result{}, err
	}

	led, err := s.store.CreateLedger(ctx, ledger.CreateLedger{
		FamilyID:      input.FamilyID,
		Type:          typ,
		Status:        ledger.StatusCompleted,
		AmountCents:   input.AmountCents,
		Description:   input.Description,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		InitiatedBy:   input.InitiatedBy,
		Entries: []ledger.EntryInput{
			{AccountType: ledger.AccountFamily, Direction: ledger.Debit, AmountCents: input.AmountCents, FamilyWalletID: fw.ID},
			{AccountType: ledger.AccountUser, Direction: ledger.Credit, AmountCents: input.AmountCents, UserWalletID: uw.ID},
		},
	})
	if err != nil {
		return Result{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindRewardPayout,
			Destination: input.UserID,
			Body:        fmt.Sprintf("You received %d cents from your family wallet", input.AmountCents),
		})
	}

	fw, err = s.store.GetOrCreateFamilyWallet(ctx, input.FamilyID)
	if err != nil {
		return Result{}, err
	}
	uw, err = s.store.GetOrCreateUserWallet(ctx, input.FamilyID, input.UserID)
	if err != nil {
		return Result{}, err
	}

	return Result{Ledger: led, FamilyBalanceCents: fw.BalanceCents, UserBalanceCents: uw.BalanceCents}, nil
}

// RequestUserWithdrawal creates a PENDING WITHDRAWAL ledger (user debit,
// external credit, not yet applied) and asks the rail to start the payout.
// Sufficiency is checked at creation; the debit itself applies only when
// settlement reports completion, and the checked funds are not reserved in
// between.
func (s *Service) RequestUserWithdrawal(ctx context.Context, input WithdrawalInput) (Result, error) {
	if input.AmountCents <= 0 {
		return Result{}, fmt.Errorf("%w: withdrawal amount %d", ledger.ErrInvalidAmount, input.AmountCents)
	}

	fw, err := s.store.GetOrCreateFamilyWallet(ctx, input.FamilyID)
	if err != nil {
		return Result{}, err
	}
	uw, err := s.store.GetOrCreateUserWallet(ctx, input.FamilyID, input.UserID)
	if err != nil {
		return Result{}, err
	}

	led, err := s.store.CreateLedger(ctx, ledger.CreateLedger{
		FamilyID:    input.FamilyID,
		Type:        ledger.TypeWithdrawal,
		Status:      ledger.StatusPending,
		AmountCents: input.AmountCents,
		Description: input.Description,
		InitiatedBy: input.InitiatedBy,
		Entries: []ledger.EntryInput{
			{AccountType: ledger.AccountUser, Direction: ledger.Debit, AmountCents: input.AmountCents, UserWalletID: uw.ID},
			{AccountType: ledger.AccountExternal, Direction: ledger.Credit, AmountCents: input.AmountCents, ExternalAccountID: ExternalSettlementAccount},
		},
	})
	if err != nil {
		return Result{}, err
	}

	handle, err := s.rail.CreatePayout(ctx, settlement.PayoutRequest{
		LedgerID:    led.ID,
		FamilyID:    input.FamilyID,
		UserID:      input.UserID,
		AmountCents: input.AmountCents,
	})
	if err != nil {
		s.logger.Error("settlement payout request failed; ledger left pending",
			"ledger_id", led.ID, "family_id", input.FamilyID, "user_id", input.UserID, "error", err)
		return Result{Ledger: led, FamilyBalanceCents: fw.BalanceCents, UserBalanceCents: uw.BalanceCents}, nil
	}

	if err := s.store.SetExternalID(ctx, led.ID, handle.ID); err != nil {
		return Result{}, err
	}
	led.ExternalID = handle.ID

	return Result{Ledger: led, FamilyBalanceCents: fw.BalanceCents, UserBalanceCents: uw.BalanceCents}, nil
}
