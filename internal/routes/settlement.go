package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/famcircle/famcircle/internal/reconcile"
)

// RegisterSettlementRoutes wires the settlement callback endpoint.
func RegisterSettlementRoutes(r fiber.Router, h *reconcile.Handler, rateLimit fiber.Handler) {
	r.Post("/settlement/webhook", rateLimit, h.Webhook)
}
