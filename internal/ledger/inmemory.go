package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/famcircle/famcircle/internal/wallet"
)

type userKey struct {
	familyID int64
	userID   string
}

// InMemoryStore is a concurrency-safe store used by unit tests and by
// development runs without a database. A single mutex stands in for
// transactional isolation: every mutating method validates fully before it
// touches state, so a failed call leaves no partial writes.
type InMemoryStore struct {
	mu            sync.Mutex
	walletSeq     int64
	familyWallets map[int64]*wallet.FamilyWallet // keyed by family id
	userWallets   map[userKey]*wallet.UserWallet
	familyByID    map[int64]*wallet.FamilyWallet
	userByID      map[int64]*wallet.UserWallet
	ledgers       map[string]*Ledger
	ledgerOrder   []string
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		familyWallets: make(map[int64]*wallet.FamilyWallet),
		userWallets:   make(map[userKey]*wallet.UserWallet),
		familyByID:    make(map[int64]*wallet.FamilyWallet),
		userByID:      make(map[int64]*wallet.UserWallet),
		ledgers:       make(map[string]*Ledger),
	}
}

func (s *InMemoryStore) GetOrCreateFamilyWallet(_ context.Context, familyID int64) (wallet.FamilyWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.familyWalletLocked(familyID), nil
}

func (s *InMemoryStore) GetOrCreateUserWallet(_ context.Context, familyID int64, userID string) (wallet.UserWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.userWalletLocked(familyID, userID), nil
}

func (s *InMemoryStore) familyWalletLocked(familyID int64) *wallet.FamilyWallet {
	if w, ok := s.familyWallets[familyID]; ok {
		return w
	}
	s.walletSeq++
	now := time.Now().UTC()
	w := &wallet.FamilyWallet{ID: s.walletSeq, FamilyID: familyID, CreatedAt: now, UpdatedAt: now}
	s.familyWallets[familyID] = w
	s.familyByID[w.ID] = w
	return w
}

func (s *InMemoryStore) userWalletLocked(familyID int64, userID string) *wallet.UserWallet {
	key := userKey{familyID: familyID, userID: userID}
	if w, ok := s.userWallets[key]; ok {
		return w
	}
	s.walletSeq++
	now := time.Now().UTC()
	w := &wallet.UserWallet{ID: s.walletSeq, FamilyID: familyID, UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.userWallets[key] = w
	s.userByID[w.ID] = w
	return w
}

func (s *InMemoryStore) CreateLedger(_ context.Context, input CreateLedger) (Ledger, error) {
	if err := input.validate(); err != nil {
		return Ledger{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Resolve referenced wallets and assert sufficiency of every internal
	// debit before anything is written.
	famDebits := make(map[int64]int64)
	userDebits := make(map[int64]int64)
	for _, e := range input.Entries {
		switch e.AccountType {
		case AccountFamily:
			if _, ok := s.familyByID[e.FamilyWalletID]; !ok {
				return Ledger{}, fmt.Errorf("%w: family wallet %d", ErrNotFound, e.FamilyWalletID)
			}
			if e.Direction == Debit {
				famDebits[e.FamilyWalletID] += e.AmountCents
			}
		case AccountUser:
			if _, ok := s.userByID[e.UserWalletID]; !ok {
				return Ledger{}, fmt.Errorf("%w: user wallet %d", ErrNotFound, e.UserWalletID)
			}
			if e.Direction == Debit {
				userDebits[e.UserWalletID] += e.AmountCents
			}
		}
	}
	for id, amount := range famDebits {
		if err := AssertSufficientBalance(s.familyByID[id].BalanceCents, amount, input.Type.debitContext()); err != nil {
			return Ledger{}, err
		}
	}
	for id, amount := range userDebits {
		if err := AssertSufficientBalance(s.userByID[id].BalanceCents, amount, input.Type.debitContext()); err != nil {
			return Ledger{}, err
		}
	}

	now := time.Now().UTC()
	led := &Ledger{
		ID:            uuid.NewString(),
		FamilyID:      input.FamilyID,
		Type:          input.Type,
		Status:        input.Status,
		AmountCents:   input.AmountCents,
		Currency:      input.currencyOrDefault(),
		Description:   input.Description,
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		Metadata:      copyMetadata(input.Metadata),
		InitiatedBy:   input.InitiatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, e := range input.Entries {
		led.Entries = append(led.Entries, Entry{
			ID:                uuid.NewString(),
			LedgerID:          led.ID,
			AccountType:       e.AccountType,
			Direction:         e.Direction,
			AmountCents:       e.AmountCents,
			FamilyWalletID:    e.FamilyWalletID,
			UserWalletID:      e.UserWalletID,
			ExternalAccountID: e.ExternalAccountID,
			Memo:              e.Memo,
		})
	}

	if input.Status == StatusCompleted {
		if err := s.applyLocked(led); err != nil {
			return Ledger{}, err
		}
	}

	s.ledgers[led.ID] = led
	s.ledgerOrder = append(s.ledgerOrder, led.ID)
	return copyLedger(led), nil
}

func (s *InMemoryStore) ApplyEntries(_ context.Context, ledgerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, ok := s.ledgers[ledgerID]
	if !ok {
		return fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
	}
	if led.Status == StatusFailed {
		return nil
	}
	return s.applyLocked(led)
}

// applyLocked applies every unapplied entry to its wallet, all or nothing.
// Deltas are staged and verified against the non-negativity invariant before
// any balance moves.
func (s *InMemoryStore) applyLocked(led *Ledger) error {
	famDeltas := make(map[int64]int64)
	userDeltas := make(map[int64]int64)
	for _, e := range led.Entries {
		if e.Applied || e.AccountType == AccountExternal {
			continue
		}
		delta := e.AmountCents
		if e.Direction == Debit {
			delta = -delta
		}
		switch e.AccountType {
		case AccountFamily:
			famDeltas[e.FamilyWalletID] += delta
		case AccountUser:
			userDeltas[e.UserWalletID] += delta
		}
	}

	for id, delta := range famDeltas {
		w, ok := s.familyByID[id]
		if !ok {
			return fmt.Errorf("%w: family wallet %d", ErrNotFound, id)
		}
		if w.BalanceCents+delta < 0 {
			return fmt.Errorf("%w: applying ledger %s would overdraw family wallet %d", ErrInsufficientBalance, led.ID, id)
		}
	}
	for id, delta := range userDeltas {
		w, ok := s.userByID[id]
		if !ok {
			return fmt.Errorf("%w: user wallet %d", ErrNotFound, id)
		}
		if w.BalanceCents+delta < 0 {
			return fmt.Errorf("%w: applying ledger %s would overdraw user wallet %d", ErrInsufficientBalance, led.ID, id)
		}
	}

	now := time.Now().UTC()
	for id, delta := range famDeltas {
		s.familyByID[id].BalanceCents += delta
		s.familyByID[id].UpdatedAt = now
	}
	for id, delta := range userDeltas {
		s.userByID[id].BalanceCents += delta
		s.userByID[id].UpdatedAt = now
	}
	for i := range led.Entries {
		led.Entries[i].Applied = true
	}
	led.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) MarkStatus(_ context.Context, ledgerID string, status Status) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, ok := s.ledgers[ledgerID]
	if !ok {
		return Ledger{}, fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
	}

	noop, err := checkTransition(led.Status, status)
	if err != nil {
		return Ledger{}, err
	}
	if noop {
		return copyLedger(led), nil
	}

	switch status {
	case StatusCompleted:
		led.Status = StatusCompleted
		if err := s.applyLocked(led); err != nil {
			led.Status = StatusPending
			return Ledger{}, err
		}
	case StatusFailed:
		led.Status = StatusFailed
		for i := range led.Entries {
			if !led.Entries[i].Applied {
				led.Entries[i].Memo = stampMemo(led.Entries[i].Memo)
			}
		}
	}
	led.UpdatedAt = time.Now().UTC()
	return copyLedger(led), nil
}

func (s *InMemoryStore) SetExternalID(_ context.Context, ledgerID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, ok := s.ledgers[ledgerID]
	if !ok {
		return fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
	}
	led.ExternalID = externalID
	led.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) GetLedger(_ context.Context, ledgerID string) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	led, ok := s.ledgers[ledgerID]
	if !ok {
		return Ledger{}, fmt.Errorf("%w: ledger %s", ErrNotFound, ledgerID)
	}
	return copyLedger(led), nil
}

func (s *InMemoryStore) ListLedgers(_ context.Context, familyID int64, limit int) ([]Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Ledger
	for i := len(s.ledgerOrder) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		led := s.ledgers[s.ledgerOrder[i]]
		if led.FamilyID != familyID {
			continue
		}
		header := copyLedger(led)
		header.Entries = nil
		out = append(out, header)
	}
	return out, nil
}

func stampMemo(memo string) string {
	if memo == "" {
		return failedMemo
	}
	return memo + " (" + failedMemo + ")"
}

func copyMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyLedger(led *Ledger) Ledger {
	out := *led
	out.Metadata = copyMetadata(led.Metadata)
	out.Entries = append([]Entry(nil), led.Entries...)
	return out
}
