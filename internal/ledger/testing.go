package ledger

// SeedFamilyBalance is a test helper that sets a family wallet balance when
// using the in-memory store.
func SeedFamilyBalance(s Store, familyID, amountCents int64) {
	if mem, ok := s.(*InMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.familyWalletLocked(familyID).BalanceCents = amountCents
	}
}

// SeedUserBalance is a test helper that sets a user wallet balance when
// using the in-memory store.
func SeedUserBalance(s Store, familyID int64, userID string, amountCents int64) {
	if mem, ok := s.(*InMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.userWalletLocked(familyID, userID).BalanceCents = amountCents
	}
}
