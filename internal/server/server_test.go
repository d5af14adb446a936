package server

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/otpgate/otpgate/internal/config"
	"github.com/otpgate/otpgate/internal/logging"
	"github.com/otpgate/otpgate/internal/login"
)

func TestNewRequiresStoresOutsideDev(t *testing.T) {
	cfg := config.Config{AppName: "otpgate", AppEnv: "production"}
	if _, err := New(cfg, nil, nil, logging.Discard()); err == nil {
		t.Fatalf("expected error without database and redis")
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler(logging.Discard())})
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("pq: relation users does not exist") })
	app.Get("/rejected", func(c *fiber.Ctx) error { return &login.RejectedError{Step: login.StepStart, Reason: login.ReasonCodeDenied} })
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })

	cases := map[string]struct {
		status int
		body   string
	}{
		"/boom":     {fiber.StatusInternalServerError, "Internal Server Error"},
		"/rejected": {fiber.StatusForbidden, login.RejectionMessage},
		"/teapot":   {fiber.StatusTeapot, "short and stout"},
	}

	for path, want := range cases {
		t.Run(strings.TrimPrefix(path, "/"), func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != want.status || string(body) != want.body {
				t.Fatalf("expected %d %q, got %d %q", want.status, want.body, resp.StatusCode, body)
			}
		})
	}
}
