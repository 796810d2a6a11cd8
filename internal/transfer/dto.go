package transfer

// FundingRequest captures user-provided data to fund the family wallet from
// the settlement rail. Amount is a decimal string such as "100.00".
type FundingRequest struct {
	Amount      string            `json:"amount"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
	InitiatedBy string            `json:"initiated_by"`
}

// RewardRequest captures a family-to-user transfer, typically triggered by a
// completed task or gig.
type RewardRequest struct {
	UserID        string `json:"user_id"`
	Amount        string `json:"amount"`
	Type          string `json:"type"`
	Description   string `json:"description"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	InitiatedBy   string `json:"initiated_by"`
}

// WithdrawalRequest captures a member's request to push funds out to the rail.
type WithdrawalRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
	InitiatedBy string `json:"initiated_by"`
}
