package transfer

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/famcircle/famcircle/internal/api"
	"github.com/famcircle/famcircle/internal/ledger"
	"github.com/famcircle/famcircle/internal/money"
)

// Handler exposes the monetary flows over HTTP.
type Handler struct {
	service *Service
}

// NewHandler constructs a transfer handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferResponse struct {
	Ledger        api.LedgerResponse `json:"ledger"`
	FamilyBalance string             `json:"family_balance"`
	UserBalance   string             `json:"user_balance,omitempty"`
}

// Fund initiates family wallet funding from the settlement rail. The ledger
// is PENDING until the rail reports back; the balance does not move yet.
func (h *Handler) Fund(c *fiber.Ctx) error {
	familyID, err := parseFamilyID(c)
	if err != nil {
		return err
	}
	var req FundingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.ParseCents(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.InitiateFamilyFunding(c.UserContext(), FundingInput{
		FamilyID:    familyID,
		AmountCents: amount,
		Description: req.Description,
		Metadata:    req.Metadata,
		InitiatedBy: req.InitiatedBy,
	})
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusAccepted).JSON(toResponse(result))
}

// Reward transfers funds from the family wallet to a member, applied
// immediately.
func (h *Handler) Reward(c *fiber.Ctx) error {
	familyID, err := parseFamilyID(c)
	if err != nil {
		return err
	}
	var req RewardRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.ParseCents(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id is required")
	}

	result, err := h.service.TransferFromFamilyToUser(c.UserContext(), RewardInput{
		FamilyID:      familyID,
		UserID:        req.UserID,
		AmountCents:   amount,
		Type:          ledger.Type(req.Type),
		Description:   req.Description,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		InitiatedBy:   req.InitiatedBy,
	})
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

// Withdraw initiates a payout from a member's wallet to the settlement rail.
// The debit applies only once the rail reports completion.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	familyID, err := parseFamilyID(c)
	if err != nil {
		return err
	}
	userID := c.Params("userId")
	var req WithdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := money.ParseCents(req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.RequestUserWithdrawal(c.UserContext(), WithdrawalInput{
		FamilyID:    familyID,
		UserID:      userID,
		AmountCents: amount,
		Description: req.Description,
		InitiatedBy: req.InitiatedBy,
	})
	if err != nil {
		return mapError(err)
	}

	return c.Status(http.StatusAccepted).JSON(toResponse(result))
}

func toResponse(result Result) transferResponse {
	resp := transferResponse{
		Ledger:        api.NewLedgerResponse(result.Ledger),
		FamilyBalance: money.FormatCents(result.FamilyBalanceCents),
	}
	if hasUserLeg(result.Ledger) {
		resp.UserBalance = money.FormatCents(result.UserBalanceCents)
	}
	return resp
}

func hasUserLeg(led ledger.Ledger) bool {
	for _, e := range led.Entries {
		if e.AccountType == ledger.AccountUser {
			return true
		}
	}
	return false
}

func parseFamilyID(c *fiber.Ctx) (int64, error) {
	familyID, err := strconv.ParseInt(c.Params("familyId"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid family id")
	}
	return familyID, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, "not enough funds")
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrUnbalancedLedger):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
