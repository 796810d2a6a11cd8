package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/famcircle/famcircle/internal/config"
	"github.com/famcircle/famcircle/internal/logging"
)

// Dev-mode wiring: no postgres, no redis, in-memory ledger, idempotency
// disabled. Exercises the full route surface end to end.
func setupDevApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	err := Setup(app, Deps{
		Cfg:    config.Config{AppName: "famcircle-test", AppEnv: "development"},
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatalf("setup routes: %v", err)
	}
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()

	var decoded map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func TestSetup_RequiresBackendsOutsideDev(t *testing.T) {
	app := fiber.New()
	err := Setup(app, Deps{
		Cfg:    config.Config{AppEnv: "production"},
		Logger: logging.Discard(),
	})
	if err == nil {
		t.Fatalf("expected setup to fail without database in production")
	}
}

func TestPing(t *testing.T) {
	app := setupDevApp(t)

	code, body := doRequest(t, app, fiber.MethodGet, "/api/v1/ping", "")
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected ping body: %v", body)
	}
}

func TestWalletReadsProvisionOnFirstUse(t *testing.T) {
	app := setupDevApp(t)

	code, body := doRequest(t, app, fiber.MethodGet, "/api/v1/families/7/wallet", "")
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["balance"] != "0.00" {
		t.Fatalf("expected fresh wallet balance 0.00, got %v", body["balance"])
	}

	code, body = doRequest(t, app, fiber.MethodGet, "/api/v1/families/7/members/user-1/wallet", "")
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["user_id"] != "user-1" {
		t.Fatalf("unexpected user wallet: %v", body)
	}
}

func TestWalletRejectsBadFamilyID(t *testing.T) {
	app := setupDevApp(t)

	if code, _ := doRequest(t, app, fiber.MethodGet, "/api/v1/families/abc/wallet", ""); code != fiber.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestFundingFlowEndToEnd(t *testing.T) {
	app := setupDevApp(t)

	code, body := doRequest(t, app, fiber.MethodPost, "/api/v1/families/1/funding", `{"amount":"50.00"}`)
	if code != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	led := body["ledger"].(map[string]any)
	ledgerID, _ := led["id"].(string)
	if ledgerID == "" {
		t.Fatalf("missing ledger id: %v", body)
	}

	// Settle via the webhook, as the rail would.
	code, _ = doRequest(t, app, fiber.MethodPost, "/api/v1/settlement/webhook", `{"ledger_id":"`+ledgerID+`","status":"completed"}`)
	if code != fiber.StatusOK {
		t.Fatalf("webhook: expected 200, got %d", code)
	}

	code, body = doRequest(t, app, fiber.MethodGet, "/api/v1/families/1/wallet", "")
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["balance"] != "50.00" {
		t.Fatalf("expected balance 50.00 after settlement, got %v", body["balance"])
	}

	code, body = doRequest(t, app, fiber.MethodGet, "/api/v1/ledgers/"+ledgerID, "")
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["status"] != "COMPLETED" {
		t.Fatalf("expected COMPLETED ledger, got %v", body["status"])
	}

	code, body = doRequest(t, app, fiber.MethodGet, "/api/v1/families/1/ledgers", "")
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	ledgers, _ := body["ledgers"].([]any)
	if len(ledgers) != 1 {
		t.Fatalf("expected one ledger, got %v", body)
	}
}

func TestUnknownLedgerReturns404(t *testing.T) {
	app := setupDevApp(t)

	if code, _ := doRequest(t, app, fiber.MethodGet, "/api/v1/ledgers/no-such-ledger", ""); code != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}
