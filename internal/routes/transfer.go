package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/famcircle/famcircle/internal/transfer"
)

// RegisterTransferRoutes wires the three monetary flows. Each POST sits
// behind the idempotency middleware so caller retries replay instead of
// moving money twice.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, idem fiber.Handler) {
	r.Post("/families/:familyId/funding", idem, h.Fund)
	r.Post("/families/:familyId/rewards", idem, h.Reward)
	r.Post("/families/:familyId/members/:userId/withdrawals", idem, h.Withdraw)
}
