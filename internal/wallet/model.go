package wallet

import "time"

// FamilyWallet is the pooled balance shared by a family. One per family,
// created lazily on first use and never deleted.
type FamilyWallet struct {
	ID           int64
	FamilyID     int64
	BalanceCents int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserWallet is a member's personal balance within a family. Unique per
// (family, user) pair, created lazily on first use.
type UserWallet struct {
	ID           int64
	FamilyID     int64
	UserID       string
	BalanceCents int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
