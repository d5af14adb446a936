package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// LocalsClaims is the fiber.Ctx locals key holding verified session claims.
const LocalsClaims = "session_claims"

// Handler exposes session endpoints for authenticated callers.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Logout revokes the caller's session.
func (h *Handler) Logout(c *fiber.Ctx) error {
	claims, ok := c.Locals(LocalsClaims).(Claims)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.svc.Revoke(c.UserContext(), claims); err != nil {
		return fiber.NewError(http.StatusInternalServerError, "logout failed")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

// Me returns the identity bound to the caller's session.
func (h *Handler) Me(c *fiber.Ctx) error {
	claims, ok := c.Locals(LocalsClaims).(Claims)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":    claims.Subject,
		"username":   claims.Username,
		"session_id": claims.ID,
		"expires_at": claims.ExpiresAt.Time.UTC(),
	})
}
