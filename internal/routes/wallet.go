package routes

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/famcircle/famcircle/internal/api"
	"github.com/famcircle/famcircle/internal/ledger"
)

// RegisterWalletRoutes wires the wallet and ledger read surface. Balances
// read through get-or-create, so the first read of a wallet provisions it.
func RegisterWalletRoutes(r fiber.Router, store ledger.Store) {
	r.Get("/families/:familyId/wallet", func(c *fiber.Ctx) error {
		familyID, err := familyIDParam(c)
		if err != nil {
			return err
		}
		w, err := store.GetOrCreateFamilyWallet(c.UserContext(), familyID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(api.NewFamilyWalletResponse(w))
	})

	r.Get("/families/:familyId/members/:userId/wallet", func(c *fiber.Ctx) error {
		familyID, err := familyIDParam(c)
		if err != nil {
			return err
		}
		w, err := store.GetOrCreateUserWallet(c.UserContext(), familyID, c.Params("userId"))
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(api.NewUserWalletResponse(w))
	})

	r.Get("/families/:familyId/ledgers", func(c *fiber.Ctx) error {
		familyID, err := familyIDParam(c)
		if err != nil {
			return err
		}
		ledgers, err := store.ListLedgers(c.UserContext(), familyID, c.QueryInt("limit"))
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		out := make([]api.LedgerResponse, 0, len(ledgers))
		for _, led := range ledgers {
			out = append(out, api.NewLedgerResponse(led))
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"family_id": familyID, "ledgers": out})
	})

	r.Get("/ledgers/:ledgerId", func(c *fiber.Ctx) error {
		led, err := store.GetLedger(c.UserContext(), c.Params("ledgerId"))
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return fiber.NewError(http.StatusNotFound, err.Error())
			}
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(api.NewLedgerResponse(led))
	})
}

func familyIDParam(c *fiber.Ctx) (int64, error) {
	familyID, err := strconv.ParseInt(c.Params("familyId"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid family id")
	}
	return familyID, nil
}
