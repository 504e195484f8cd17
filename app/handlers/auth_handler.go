package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/mkhoshpour/susanoo/app/dto"
	businessflow "github.com/mkhoshpour/susanoo/business_flow"
	"github.com/mkhoshpour/susanoo/config"
)

// AuthHandler exchanges store API keys for access tokens
type AuthHandler struct {
	authFlow  businessflow.AuthFlow
	validator *validator.Validate
	cfg       *config.ProductionConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authFlow businessflow.AuthFlow, cfg *config.ProductionConfig) *AuthHandler {
	return &AuthHandler{
		authFlow:  authFlow,
		validator: validator.New(),
		cfg:       cfg,
	}
}

// IssueToken handles POST /api/v1/auth/token
func (h *AuthHandler) IssueToken(c fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid request format",
			Error:   dto.ErrorDetail{Code: "INVALID_REQUEST"},
		})
	}

	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	token, err := h.authFlow.IssueToken(requestCtx(c, "POST /api/v1/auth/token"), &req, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Token issued",
		Data:    token,
	})
}
