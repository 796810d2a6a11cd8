package transfer

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/famcircle/famcircle/internal/ledger"
	"github.com/famcircle/famcircle/internal/settlement"
)

func setupTransferApp(t *testing.T) (*fiber.App, *ledger.InMemoryStore) {
	t.Helper()
	store := ledger.NewInMemory()
	svc := newTestService(t, store, settlement.NewMockRail(0), nil)
	h := NewHandler(svc)

	app := fiber.New()
	app.Post("/families/:familyId/funding", h.Fund)
	app.Post("/families/:familyId/rewards", h.Reward)
	app.Post("/families/:familyId/members/:userId/withdrawals", h.Withdraw)
	return app, store
}

func postJSON(t *testing.T, app *fiber.App, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
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

func TestFundEndpoint(t *testing.T) {
	app, _ := setupTransferApp(t)

	code, body := postJSON(t, app, "/families/1/funding", `{"amount":"100.00"}`)
	if code != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	led, ok := body["ledger"].(map[string]any)
	if !ok {
		t.Fatalf("missing ledger in response: %v", body)
	}
	if led["status"] != string(ledger.StatusPending) {
		t.Fatalf("expected PENDING ledger, got %v", led["status"])
	}
	if led["amount"] != "100.00" {
		t.Fatalf("expected amount 100.00, got %v", led["amount"])
	}
	if body["family_balance"] != "0.00" {
		t.Fatalf("funding credited before settlement: %v", body["family_balance"])
	}
}

func TestRewardEndpoint(t *testing.T) {
	app, store := setupTransferApp(t)
	ledger.SeedFamilyBalance(store, 1, 10_000)

	code, body := postJSON(t, app, "/families/1/rewards", `{"user_id":"user-1","amount":"25.00","type":"TASK_REWARD"}`)
	if code != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if body["family_balance"] != "75.00" || body["user_balance"] != "25.00" {
		t.Fatalf("unexpected balances: %v", body)
	}
	led := body["ledger"].(map[string]any)
	if led["status"] != string(ledger.StatusCompleted) {
		t.Fatalf("expected COMPLETED ledger, got %v", led["status"])
	}
}

func TestRewardEndpointValidation(t *testing.T) {
	app, store := setupTransferApp(t)
	ledger.SeedFamilyBalance(store, 1, 100)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"missing user", "/families/1/rewards", `{"amount":"1.00"}`, fiber.StatusBadRequest},
		{"missing amount", "/families/1/rewards", `{"user_id":"user-1"}`, fiber.StatusBadRequest},
		{"sub-cent amount", "/families/1/rewards", `{"user_id":"user-1","amount":"1.005"}`, fiber.StatusBadRequest},
		{"negative amount", "/families/1/rewards", `{"user_id":"user-1","amount":"-1.00"}`, fiber.StatusBadRequest},
		{"bad family id", "/families/abc/rewards", `{"user_id":"user-1","amount":"1.00"}`, fiber.StatusBadRequest},
		{"insufficient funds", "/families/1/rewards", `{"user_id":"user-1","amount":"5.00"}`, fiber.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		if code, _ := postJSON(t, app, tc.path, tc.body); code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, code)
		}
	}
}

func TestWithdrawEndpoint(t *testing.T) {
	app, store := setupTransferApp(t)
	ledger.SeedUserBalance(store, 1, "user-1", 5_000)

	code, body := postJSON(t, app, "/families/1/members/user-1/withdrawals", `{"amount":"20.00"}`)
	if code != fiber.StatusAccepted {
		t.Fatalf("expected 202, got %d", code)
	}
	led := body["ledger"].(map[string]any)
	if led["status"] != string(ledger.StatusPending) {
		t.Fatalf("expected PENDING ledger, got %v", led["status"])
	}
	// Balance is untouched until the rail settles.
	if body["user_balance"] != "50.00" {
		t.Fatalf("unexpected user balance: %v", body["user_balance"])
	}
}

func TestWithdrawEndpointInsufficientFunds(t *testing.T) {
	app, store := setupTransferApp(t)
	ledger.SeedUserBalance(store, 1, "user-1", 100)

	code, _ := postJSON(t, app, "/families/1/members/user-1/withdrawals", `{"amount":"2.00"}`)
	if code != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
}
