package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/famcircle/famcircle/internal/config"
	"github.com/famcircle/famcircle/internal/ledger"
	"github.com/famcircle/famcircle/internal/middleware"
	"github.com/famcircle/famcircle/internal/notification"
	"github.com/famcircle/famcircle/internal/reconcile"
	"github.com/famcircle/famcircle/internal/settlement"
	"github.com/famcircle/famcircle/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Stores and services
	var store ledger.Store
	if d.DB != nil {
		pg := ledger.NewPostgresStore(d.DB)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return err
		}
		store = pg
	} else {
		store = ledger.NewInMemory()
	}

	rail := settlement.NewMockRail(d.Cfg.SettlementDelay)
	reconcileSvc := reconcile.NewService(store, d.Logger)
	rail.Subscribe(reconcileSvc.Outcome)

	notifier := notification.NewLoggerNotifier(d.Logger)
	transferSvc, err := transfer.NewService(store, rail, notifier, d.Logger)
	if err != nil {
		return err
	}

	transferHandler := transfer.NewHandler(transferSvc)
	reconcileHandler := reconcile.NewHandler(reconcileSvc)

	// Money-moving posts are idempotent per caller key; the settlement
	// webhook carries no Idempotency-Key and relies on the ledger state
	// machine instead, so it is registered outside this middleware.
	idem := passthrough()
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}

	// API routes
	apiGroup := app.Group("/api/v1")
	apiGroup.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(apiGroup, store)
	RegisterTransferRoutes(apiGroup, transferHandler, idem)
	RegisterSettlementRoutes(apiGroup, reconcileHandler, middleware.WebhookRateLimit(d.Cache, 60))

	return nil
}

func passthrough() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Next()
	}
}
