package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const localPhone = "phone"

type AuthService interface {
	SendOTP(ctx context.Context, phone string) (string, error)
	Verify(ctx context.Context, sessionID string, code string) (string, error)
	Authenticate(ctx context.Context, token string) (string, error)
	Logout(ctx context.Context, token string) error
}

type AuthHandler struct {
	service AuthService
}

func NewAuthHandler(service AuthService) (*AuthHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	return &AuthHandler{service: service}, nil
}

// RegisterAuthRoutes mounts the OTP routes and returns the bearer-token middleware
// for protected groups.
func RegisterAuthRoutes(router fiber.Router, service AuthService) (fiber.Handler, error) {
	h, err := NewAuthHandler(service)
	if err != nil {
		return nil, err
	}

	auth := router.Group("/v1/auth")
	auth.Post("/otp/send", h.SendOTP)
	auth.Post("/otp/verify", h.VerifyOTP)
	auth.Post("/logout", h.Logout)

	return RequireAuth(service), nil
}

type sendOTPRequest struct {
	Phone string `json:"phone"`
}

type verifyOTPRequest struct {
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

func (h *AuthHandler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	sessionID, err := h.service.SendOTP(requestContext(c), req.Phone)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"sessionId": sessionID})
}

func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	token, err := h.service.Verify(requestContext(c), req.SessionID, req.Code)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"token": token})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.service.Logout(requestContext(c), bearerToken(c)); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(service AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		phone, err := service.Authenticate(requestContext(c), bearerToken(c))
		if err != nil {
			return toHTTPError(err)
		}
		c.Locals(localPhone, phone)
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
