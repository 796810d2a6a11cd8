package reconcile

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/famcircle/famcircle/internal/settlement"
)

// Handler exposes the settlement webhook endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a webhook handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type webhookRequest struct {
	LedgerID string `json:"ledger_id"`
	Status   string `json:"status"`
}

// Webhook accepts {ledger_id, status} payloads from the settlement rail.
// Tolerated conditions (unknown ledger, duplicate, out-of-order) return 200
// so the rail stops retrying; store failures return 500 so it retries.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	var req webhookRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.LedgerID == "" || req.Status == "" {
		return fiber.NewError(http.StatusBadRequest, "ledger_id and status are required")
	}

	if err := h.service.HandleOutcome(c.UserContext(), settlement.Outcome{
		LedgerID: req.LedgerID,
		Status:   req.Status,
	}); err != nil {
		if req.Status != settlement.OutcomeCompleted && req.Status != settlement.OutcomeFailed {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "accepted"})
}
