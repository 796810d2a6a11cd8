package reconcile

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/famcircle/famcircle/internal/ledger"
	"github.com/famcircle/famcircle/internal/logging"
	"github.com/famcircle/famcircle/internal/settlement"
)

func setupWebhookApp(t *testing.T) (*fiber.App, *ledger.InMemoryStore) {
	t.Helper()
	store := ledger.NewInMemory()
	handler := NewHandler(NewService(store, logging.Discard()))
	app := fiber.New()
	app.Post("/settlement/webhook", handler.Webhook)
	return app, store
}

func postWebhook(t *testing.T, app *fiber.App, body string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/settlement/webhook", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestWebhook_CompletesLedger(t *testing.T) {
	app, store := setupWebhookApp(t)
	led := pendingFunding(t, store, 1, 10_000)

	code := postWebhook(t, app, `{"ledger_id":"`+led.ID+`","status":"`+settlement.OutcomeCompleted+`"}`)
	if code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	got, _ := store.GetLedger(context.Background(), led.ID)
	if got.Status != ledger.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", got.Status)
	}
}

func TestWebhook_RejectsMalformedPayloads(t *testing.T) {
	app, _ := setupWebhookApp(t)

	for _, body := range []string{
		"not json",
		`{}`,
		`{"ledger_id":"abc"}`,
		`{"status":"completed"}`,
	} {
		if code := postWebhook(t, app, body); code != fiber.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, code)
		}
	}
}

func TestWebhook_RejectsUnknownStatus(t *testing.T) {
	app, store := setupWebhookApp(t)
	led := pendingFunding(t, store, 1, 1_000)

	if code := postWebhook(t, app, `{"ledger_id":"`+led.ID+`","status":"reversed"}`); code != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", code)
	}
}

func TestWebhook_ToleratedConditionsReturn200(t *testing.T) {
	app, store := setupWebhookApp(t)
	led := pendingFunding(t, store, 1, 1_000)

	// Unknown ledger: acknowledged so the rail stops retrying.
	if code := postWebhook(t, app, `{"ledger_id":"no-such-ledger","status":"completed"}`); code != fiber.StatusOK {
		t.Fatalf("expected 200 for unknown ledger, got %d", code)
	}

	// Duplicate terminal callback.
	payload := `{"ledger_id":"` + led.ID + `","status":"completed"}`
	if code := postWebhook(t, app, payload); code != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := postWebhook(t, app, payload); code != fiber.StatusOK {
		t.Fatalf("expected 200 for duplicate callback, got %d", code)
	}
}
