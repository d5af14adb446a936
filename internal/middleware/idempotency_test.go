package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/otpgate/otpgate/internal/logging"
)

func newMiniredis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return cache
}

// setupTestApp mounts a handler that counts invocations, standing in for a
// handler with side effects such as sending a code.
func setupTestApp(t *testing.T, status int) (*fiber.App, *int) {
	t.Helper()
	cache := newMiniredis(t)
	calls := 0
	app := fiber.New()
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/start-verification", func(c *fiber.Ctx) error {
		calls++
		return c.Status(status).JSON(fiber.Map{"call": calls})
	})
	return app, &calls
}

func send(t *testing.T, app *fiber.App, key string) (int, string) {
	t.Helper()
	return sendBody(t, app, key, "{}")
}

func sendBody(t *testing.T, app *fiber.App, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/start-verification", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload)
}

func TestIdempotencyPassesThroughWithoutHeader(t *testing.T) {
	app, calls := setupTestApp(t, fiber.StatusOK)

	send(t, app, "")
	send(t, app, "")

	if *calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", *calls)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupTestApp(t, fiber.StatusOK)

	status, first := send(t, app, "abc123")
	if status != fiber.StatusOK {
		t.Fatalf("expected status %d got %d", fiber.StatusOK, status)
	}

	// Second request should return the cached response without invoking handler again.
	status, second := send(t, app, "abc123")
	if status != fiber.StatusOK {
		t.Fatalf("expected cached status %d got %d", fiber.StatusOK, status)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if *calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", *calls)
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	app, calls := setupTestApp(t, fiber.StatusForbidden)

	send(t, app, "retry-me")
	send(t, app, "retry-me")

	if *calls != 2 {
		t.Fatalf("expected failed request to be retryable, handler ran %d times", *calls)
	}
}

func TestIdempotencyKeyIsBoundToBody(t *testing.T) {
	app, calls := setupTestApp(t, fiber.StatusOK)

	sendBody(t, app, "attempt-1", `{"username":"alice","password":"correct-pw"}`)
	sendBody(t, app, "attempt-1", `{"username":"alice","password":"wrong-pw"}`)
	sendBody(t, app, "attempt-1", `{"username":"mallory","password":"x"}`)

	if *calls != 3 {
		t.Fatalf("a reused key with a different body must reach the handler, ran %d times", *calls)
	}

	sendBody(t, app, "attempt-1", `{"username":"alice","password":"correct-pw"}`)
	if *calls != 3 {
		t.Fatalf("an identical retry must be replayed, handler ran %d times", *calls)
	}
}
