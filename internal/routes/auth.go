package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/otpgate/otpgate/internal/auth"
	"github.com/otpgate/otpgate/internal/login"
)

// RegisterLoginRoutes wires the two login steps. Both are rate limited; only
// start-verification honours Idempotency-Key since it is the step that sends a code.
func RegisterLoginRoutes(r fiber.Router, h *login.Handler, rateLimiter, idempotency fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/start-verification", rateLimiter, idempotency, h.StartVerification)
	group.Post("/login", rateLimiter, h.Login)
}

// RegisterSessionRoutes wires endpoints that require a session.
func RegisterSessionRoutes(r fiber.Router, h *auth.Handler, requireSession fiber.Handler) {
	r.Post("/auth/logout", requireSession, h.Logout)
	r.Get("/me", requireSession, h.Me)
}
