// Package api holds the response shapes shared across HTTP handlers.
// Monetary amounts cross this boundary as decimal strings, never as native
// floating point.
package api

import (
	"time"

	"github.com/famcircle/famcircle/internal/ledger"
	"github.com/famcircle/famcircle/internal/money"
	"github.com/famcircle/famcircle/internal/wallet"
)

// FamilyWalletResponse is the read model for a family's pooled wallet.
type FamilyWalletResponse struct {
	ID        int64     `json:"id"`
	FamilyID  int64     `json:"family_id"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserWalletResponse is the read model for a member's wallet.
type UserWalletResponse struct {
	ID        int64     `json:"id"`
	FamilyID  int64     `json:"family_id"`
	UserID    string    `json:"user_id"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntryResponse is one leg of a ledger.
type EntryResponse struct {
	ID                string `json:"id"`
	AccountType       string `json:"account_type"`
	Direction         string `json:"direction"`
	Amount            string `json:"amount"`
	FamilyWalletID    int64  `json:"family_wallet_id,omitempty"`
	UserWalletID      int64  `json:"user_wallet_id,omitempty"`
	ExternalAccountID string `json:"external_account_id,omitempty"`
	Memo              string `json:"memo,omitempty"`
	Applied           bool   `json:"applied"`
}

// LedgerResponse is the read model for a ledger and, when loaded, its entries.
type LedgerResponse struct {
	ID            string            `json:"id"`
	FamilyID      int64             `json:"family_id"`
	Type          string            `json:"type"`
	Status        string            `json:"status"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description,omitempty"`
	ReferenceType string            `json:"reference_type,omitempty"`
	ReferenceID   string            `json:"reference_id,omitempty"`
	ExternalID    string            `json:"external_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	InitiatedBy   string            `json:"initiated_by,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	Entries       []EntryResponse   `json:"entries,omitempty"`
}

// NewFamilyWalletResponse maps a family wallet to its read model.
func NewFamilyWalletResponse(w wallet.FamilyWallet) FamilyWalletResponse {
	return FamilyWalletResponse{
		ID:        w.ID,
		FamilyID:  w.FamilyID,
		Balance:   money.FormatCents(w.BalanceCents),
		UpdatedAt: w.UpdatedAt,
	}
}

// NewUserWalletResponse maps a user wallet to its read model.
func NewUserWalletResponse(w wallet.UserWallet) UserWalletResponse {
	return UserWalletResponse{
		ID:        w.ID,
		FamilyID:  w.FamilyID,
		UserID:    w.UserID,
		Balance:   money.FormatCents(w.BalanceCents),
		UpdatedAt: w.UpdatedAt,
	}
}

// NewLedgerResponse maps a ledger (and any loaded entries) to its read model.
func NewLedgerResponse(led ledger.Ledger) LedgerResponse {
	resp := LedgerResponse{
		ID:            led.ID,
		FamilyID:      led.FamilyID,
		Type:          string(led.Type),
		Status:        string(led.Status),
		Amount:        money.FormatCents(led.AmountCents),
		Currency:      led.Currency,
		Description:   led.Description,
		ReferenceType: led.ReferenceType,
		ReferenceID:   led.ReferenceID,
		ExternalID:    led.ExternalID,
		Metadata:      led.Metadata,
		InitiatedBy:   led.InitiatedBy,
		CreatedAt:     led.CreatedAt,
	}
	for _, e := range led.Entries {
		resp.Entries = append(resp.Entries, EntryResponse{
			ID:                e.ID,
			AccountType:       string(e.AccountType),
			Direction:         string(e.Direction),
			Amount:            money.FormatCents(e.AmountCents),
			FamilyWalletID:    e.FamilyWalletID,
			UserWalletID:      e.UserWalletID,
			ExternalAccountID: e.ExternalAccountID,
			Memo:              e.Memo,
			Applied:           e.Applied,
		})
	}
	return resp
}
