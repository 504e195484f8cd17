package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/app/middleware"
	businessflow "github.com/mkhoshpour/susanoo/business_flow"
	"github.com/mkhoshpour/susanoo/config"
)

// PullPaymentHandler serves pull payment management and the public descriptor
type PullPaymentHandler struct {
	pullPaymentFlow businessflow.PullPaymentFlow
	validator       *validator.Validate
	cfg             *config.ProductionConfig
}

// NewPullPaymentHandler creates a new pull payment handler
func NewPullPaymentHandler(pullPaymentFlow businessflow.PullPaymentFlow, cfg *config.ProductionConfig) *PullPaymentHandler {
	return &PullPaymentHandler{
		pullPaymentFlow: pullPaymentFlow,
		validator:       validator.New(),
		cfg:             cfg,
	}
}

// Create handles POST /api/v1/stores/:storeId/pull-payments
func (h *PullPaymentHandler) Create(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Authentication required",
			Error:   dto.ErrorDetail{Code: "AUTHENTICATION_REQUIRED"},
		})
	}

	var req dto.CreatePullPaymentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid request format",
			Error:   dto.ErrorDetail{Code: "INVALID_REQUEST"},
		})
	}
	req.StoreID = storeID

	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	result, err := h.pullPaymentFlow.Create(requestCtx(c, "POST /api/v1/stores/:storeId/pull-payments"), &req, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.APIResponse{
		Success: true,
		Message: "Pull payment created",
		Data:    result,
	})
}

// Get handles GET /api/v1/pull-payments/:pullPaymentId — the public
// descriptor a payee sees before claiming
func (h *PullPaymentHandler) Get(c fiber.Ctx) error {
	result, err := h.pullPaymentFlow.Get(requestCtx(c, "GET /api/v1/pull-payments/:pullPaymentId"), c.Params("pullPaymentId"))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Pull payment retrieved",
		Data:    result,
	})
}

// List handles GET /api/v1/stores/:storeId/pull-payments
func (h *PullPaymentHandler) List(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Authentication required",
			Error:   dto.ErrorDetail{Code: "AUTHENTICATION_REQUIRED"},
		})
	}

	var req dto.ListPullPaymentsRequest
	if err := c.Bind().Query(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid query parameters",
			Error:   dto.ErrorDetail{Code: "INVALID_REQUEST"},
		})
	}
	req.StoreID = storeID

	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	result, err := h.pullPaymentFlow.List(requestCtx(c, "GET /api/v1/stores/:storeId/pull-payments"), &req)
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Pull payments retrieved",
		Data:    result,
	})
}

// Archive handles DELETE /api/v1/stores/:storeId/pull-payments/:pullPaymentId
func (h *PullPaymentHandler) Archive(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Authentication required",
			Error:   dto.ErrorDetail{Code: "AUTHENTICATION_REQUIRED"},
		})
	}

	ctx := requestCtx(c, "DELETE /api/v1/stores/:storeId/pull-payments/:pullPaymentId")
	if err := h.pullPaymentFlow.Archive(ctx, storeID, c.Params("pullPaymentId"), clientMeta(c)); err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Pull payment archived",
	})
}
