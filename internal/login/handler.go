package login

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/otpgate/otpgate/internal/identity"
)

// RejectionMessage is returned for every rejection so clients cannot tell
// which factor failed.
const RejectionMessage = "Invalid credentials."

// Handler exposes the two login steps over HTTP.
type Handler struct {
	orchestrator *Orchestrator
	validate     *validator.Validate
}

// NewHandler constructs a login HTTP handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

type startRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

type completeRequest struct {
	Username         string `json:"username" validate:"required,max=64"`
	Password         string `json:"password" validate:"required,max=72"`
	VerificationCode string `json:"verificationCode" validate:"required,max=16"`
}

type completeResponse struct {
	SessionID   string `json:"session_id"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   string `json:"expires_at"`
}

// StartVerification checks credentials and triggers the code send.
func (h *Handler) StartVerification(c *fiber.Ctx) error {
	var req startRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	_, err := h.orchestrator.Start(c.UserContext(), identity.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		return rejection(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "verification_started"})
}

// Login completes the attempt with credentials and the received code.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req completeRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	res, err := h.orchestrator.Complete(c.UserContext(), identity.Credentials{Username: req.Username, Password: req.Password}, req.VerificationCode)
	if err != nil {
		return rejection(err)
	}
	return c.Status(http.StatusOK).JSON(completeResponse{
		SessionID:   res.Session.ID,
		UserID:      res.Session.UserID,
		AccessToken: res.Session.Token,
		TokenType:   "Bearer",
		ExpiresAt:   res.Session.ExpiresAt.Format(time.RFC3339),
	})
}

func (h *Handler) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func rejection(err error) error {
	if errors.Is(err, ErrRejected) {
		return fiber.NewError(http.StatusForbidden, RejectionMessage)
	}
	return fiber.NewError(http.StatusInternalServerError, "internal error")
}
