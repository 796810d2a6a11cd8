package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/famcircle/famcircle/internal/wallet"
)

var (
	// ErrInvalidAmount occurs when a ledger or entry amount is not a positive
	// number of cents.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnbalancedLedger occurs when the debit and credit legs of a ledger do
	// not net to zero. Well-formed callers never trigger it.
	ErrUnbalancedLedger = errors.New("unbalanced ledger")

	// ErrInsufficientBalance occurs when the source wallet lacks funds to
	// cover a requested debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidTransition occurs on any status change other than
	// PENDING->COMPLETED or PENDING->FAILED.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound indicates an unknown ledger or wallet on a follow-up call.
	ErrNotFound = errors.New("not found")
)

// Type classifies the monetary movement a ledger records.
type Type string

const (
	TypeFunding    Type = "FUNDING"
	TypeWithdrawal Type = "WITHDRAWAL"
	TypeTransfer   Type = "TRANSFER"
	TypeTaskReward Type = "TASK_REWARD"
	TypeGigReward  Type = "GIG_REWARD"
)

// Valid reports whether t is a known ledger type.
func (t Type) Valid() bool {
	switch t {
	case TypeFunding, TypeWithdrawal, TypeTransfer, TypeTaskReward, TypeGigReward:
		return true
	}
	return false
}

// Status is the settlement state of a ledger. COMPLETED and FAILED are
// terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// AccountType identifies which kind of account an entry posts against.
type AccountType string

const (
	AccountFamily   AccountType = "FAMILY"
	AccountUser     AccountType = "USER"
	AccountExternal AccountType = "EXTERNAL"
)

// Direction is the side of the double entry.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// DefaultCurrency is used when a ledger request carries no currency label.
// Currency is a label only; nothing is converted.
const DefaultCurrency = "USD"

// failedMemo is stamped onto unapplied entries when settlement fails.
const failedMemo = "settlement failed; entry not applied"

// Ledger is an immutable, balanced record of one monetary movement. Only
// Status (and the applied flag on entries) ever changes after creation.
type Ledger struct {
	ID            string
	FamilyID      int64
	Type          Type
	Status        Status
	AmountCents   int64
	Currency      string
	Description   string
	ReferenceType string
	ReferenceID   string
	ExternalID    string
	Metadata      map[string]string
	InitiatedBy   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Entries       []Entry
}

// Entry is one leg of a ledger: a debit or credit against exactly one
// account. Applied guards the balance mutation so it happens at most once.
type Entry struct {
	ID                string
	LedgerID          string
	AccountType       AccountType
	Direction         Direction
	AmountCents       int64
	FamilyWalletID    int64
	UserWalletID      int64
	ExternalAccountID string
	Memo              string
	Applied           bool
}

// CreateLedger is the ledger-creation request consumed by the store.
type CreateLedger struct {
	FamilyID      int64
	Type          Type
	Status        Status
	AmountCents   int64
	Currency      string
	Description   string
	ReferenceType string
	ReferenceID   string
	Metadata      map[string]string
	InitiatedBy   string
	Entries       []EntryInput
}

// EntryInput describes one leg of a requested ledger.
type EntryInput struct {
	AccountType       AccountType
	Direction         Direction
	AmountCents       int64
	FamilyWalletID    int64
	UserWalletID      int64
	ExternalAccountID string
	Memo              string
}

// Store is the persistence contract for wallets and ledgers. Every mutating
// method executes as one atomic unit of work: wallet lookup, sufficiency
// check, ledger/entry writes, and balance mutation either all land or none
// do.
type Store interface {
	// GetOrCreateFamilyWallet returns the family's pooled wallet, creating it
	// with a zero balance on first use.
	GetOrCreateFamilyWallet(ctx context.Context, familyID int64) (wallet.FamilyWallet, error)

	// GetOrCreateUserWallet returns the member's wallet within the family,
	// creating it with a zero balance on first use.
	GetOrCreateUserWallet(ctx context.Context, familyID int64, userID string) (wallet.UserWallet, error)

	// CreateLedger validates, persists, and (when requested COMPLETED)
	// applies a balanced ledger. Sufficiency of every internal debit is
	// asserted inside the same transaction.
	CreateLedger(ctx context.Context, input CreateLedger) (Ledger, error)

	// ApplyEntries applies every not-yet-applied entry of the ledger to its
	// wallet. Re-entrant: already-applied entries are skipped, which is what
	// makes reconciliation retry-safe. Entries of a FAILED ledger are never
	// applied.
	ApplyEntries(ctx context.Context, ledgerID string) error

	// MarkStatus drives the PENDING -> COMPLETED/FAILED state machine.
	// Re-requesting the current status is a no-op; completing applies the
	// pending entries in the same transaction; failing stamps them with an
	// explanatory memo and their monetary effect never happens.
	MarkStatus(ctx context.Context, ledgerID string, status Status) (Ledger, error)

	// SetExternalID records the settlement rail's transfer handle.
	SetExternalID(ctx context.Context, ledgerID, externalID string) error

	// GetLedger returns a ledger with its entries.
	GetLedger(ctx context.Context, ledgerID string) (Ledger, error)

	// ListLedgers returns the family's ledgers, newest first, without
	// entries.
	ListLedgers(ctx context.Context, familyID int64, limit int) ([]Ledger, error)
}

// AssertSufficientBalance fails with ErrInsufficientBalance when the balance
// cannot cover the amount. It must run inside the same transaction that
// later debits, closing the check-then-act race.
func AssertSufficientBalance(balanceCents, amountCents int64, context string) error {
	if balanceCents < amountCents {
		return fmt.Errorf("%w: %s (balance %d, requested %d)", ErrInsufficientBalance, context, balanceCents, amountCents)
	}
	return nil
}

// debitContext names the sufficiency check for error messages, by ledger type.
func (t Type) debitContext() string {
	switch t {
	case TypeWithdrawal:
		return "user withdrawal"
	case TypeTransfer, TypeTaskReward, TypeGigReward:
		return "family wallet reward transfer"
	default:
		return "ledger debit"
	}
}

// validate enforces the structural invariants every ledger request must
// satisfy before any persistence happens.
func (in CreateLedger) validate() error {
	if !in.Type.Valid() {
		return fmt.Errorf("unknown ledger type %q", in.Type)
	}
	if in.Status != StatusPending && in.Status != StatusCompleted {
		return fmt.Errorf("%w: ledgers are created PENDING or COMPLETED, got %q", ErrInvalidTransition, in.Status)
	}
	if in.AmountCents <= 0 {
		return fmt.Errorf("%w: ledger amount %d", ErrInvalidAmount, in.AmountCents)
	}
	if len(in.Entries) < 2 {
		return fmt.Errorf("%w: a ledger needs at least two entries", ErrUnbalancedLedger)
	}

	var debits, credits int64
	for i, e := range in.Entries {
		if e.AmountCents <= 0 {
			return fmt.Errorf("%w: entry %d amount %d", ErrInvalidAmount, i, e.AmountCents)
		}
		switch e.Direction {
		case Debit:
			debits += e.AmountCents
		case Credit:
			credits += e.AmountCents
		default:
			return fmt.Errorf("entry %d: unknown direction %q", i, e.Direction)
		}
		switch e.AccountType {
		case AccountFamily:
			if e.FamilyWalletID == 0 || e.UserWalletID != 0 || e.ExternalAccountID != "" {
				return fmt.Errorf("entry %d: FAMILY entries reference exactly one family wallet", i)
			}
		case AccountUser:
			if e.UserWalletID == 0 || e.FamilyWalletID != 0 || e.ExternalAccountID != "" {
				return fmt.Errorf("entry %d: USER entries reference exactly one user wallet", i)
			}
		case AccountExternal:
			if e.ExternalAccountID == "" || e.FamilyWalletID != 0 || e.UserWalletID != 0 {
				return fmt.Errorf("entry %d: EXTERNAL entries reference exactly one external account", i)
			}
		default:
			return fmt.Errorf("entry %d: unknown account type %q", i, e.AccountType)
		}
	}

	if debits != credits {
		return fmt.Errorf("%w: debits %d, credits %d", ErrUnbalancedLedger, debits, credits)
	}
	return nil
}

// currencyOrDefault resolves the currency label for a request.
func (in CreateLedger) currencyOrDefault() string {
	if in.Currency == "" {
		return DefaultCurrency
	}
	return in.Currency
}

// checkTransition validates a requested status change against the current
// one. It returns (noop, error).
func checkTransition(current, next Status) (bool, error) {
	if current == next {
		return true, nil
	}
	if current != StatusPending {
		return false, fmt.Errorf("%w: ledger is %s", ErrInvalidTransition, current)
	}
	if next != StatusCompleted && next != StatusFailed {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return false, nil
}
