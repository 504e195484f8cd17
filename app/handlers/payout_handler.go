package handlers

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/app/middleware"
	businessflow "github.com/mkhoshpour/susanoo/business_flow"
	"github.com/mkhoshpour/susanoo/config"
	"github.com/mkhoshpour/susanoo/utils"
)

// PayoutHandler serves the public claim surface and the store's payout
// lifecycle endpoints
type PayoutHandler struct {
	claimFlow  businessflow.ClaimFlow
	payoutFlow businessflow.PayoutFlow
	validator  *validator.Validate
	cfg        *config.ProductionConfig
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(claimFlow businessflow.ClaimFlow, payoutFlow businessflow.PayoutFlow, cfg *config.ProductionConfig) *PayoutHandler {
	return &PayoutHandler{
		claimFlow:  claimFlow,
		payoutFlow: payoutFlow,
		validator:  validator.New(),
		cfg:        cfg,
	}
}

func unauthenticated(c fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: "Authentication required",
		Error:   dto.ErrorDetail{Code: "AUTHENTICATION_REQUIRED"},
	})
}

// Claim handles POST /api/v1/pull-payments/:pullPaymentId/payouts. The route
// is public; a bearer token is honoured when present so store operators can
// pre-approve their own claims.
func (h *PayoutHandler) Claim(c fiber.Ctx) error {
	var req dto.ClaimPayoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid request format",
			Error:   dto.ErrorDetail{Code: "INVALID_REQUEST"},
		})
	}
	req.PullPaymentID = c.Params("pullPaymentId")

	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	var auth *businessflow.ClaimAuthorization
	if claims, ok := middleware.GetTokenClaimsFromContext(c); ok {
		auth = &businessflow.ClaimAuthorization{
			StoreID:   claims.StoreID,
			CanManage: claims.HasPermission(utils.PermissionManagePayouts),
		}
	}

	ctx := requestCtx(c, "POST /api/v1/pull-payments/:pullPaymentId/payouts")
	result, err := h.claimFlow.Claim(ctx, &req, auth, clientMeta(c))
	if err != nil {
		_, code, _ := domainErrCode(err)
		middleware.CountClaimResult(code)
		return mapPayoutErr(c, err)
	}
	middleware.CountClaimResult("ok")

	return c.Status(fiber.StatusCreated).JSON(dto.APIResponse{
		Success: true,
		Message: "Payout claimed",
		Data:    result,
	})
}

// CreateForStore handles POST /api/v1/stores/:storeId/payouts — a direct payout
// outside any pull payment
func (h *PayoutHandler) CreateForStore(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	var req dto.CreateStorePayoutRequest
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

	ctx := requestCtx(c, "POST /api/v1/stores/:storeId/payouts")
	result, err := h.claimFlow.ClaimForStore(ctx, &req, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(dto.APIResponse{
		Success: true,
		Message: "Payout created",
		Data:    result,
	})
}

// Approve handles POST /api/v1/stores/:storeId/payouts/:payoutId
func (h *PayoutHandler) Approve(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	var req dto.ApprovePayoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid request format",
			Error:   dto.ErrorDetail{Code: "INVALID_REQUEST"},
		})
	}
	req.PayoutID = c.Params("payoutId")

	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	ctx := requestCtx(c, "POST /api/v1/stores/:storeId/payouts/:payoutId")
	result, err := h.payoutFlow.Approve(ctx, &req, storeID, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Payout approved",
		Data:    result,
	})
}

// Cancel handles POST /api/v1/stores/:storeId/payouts/cancel. The batch always
// returns 200 with a per-payout verdict; partial failure is expected.
func (h *PayoutHandler) Cancel(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	var req dto.CancelPayoutsRequest
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

	ctx := requestCtx(c, "POST /api/v1/stores/:storeId/payouts/cancel")
	result, err := h.payoutFlow.Cancel(ctx, &req, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Cancel batch processed",
		Data:    result,
	})
}

// CancelOne handles DELETE /api/v1/stores/:storeId/payouts/:payoutId — a
// single-payout cancel sharing the batch verdict logic
func (h *PayoutHandler) CancelOne(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	req := dto.CancelPayoutsRequest{
		StoreID:   storeID,
		PayoutIDs: []string{c.Params("payoutId")},
	}

	ctx := requestCtx(c, "DELETE /api/v1/stores/:storeId/payouts/:payoutId")
	result, err := h.payoutFlow.Cancel(ctx, &req, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	verdict := result.Results[0]
	if !verdict.Ok {
		status := fiber.StatusConflict
		switch verdict.Code {
		case "payout-not-found":
			status = fiber.StatusNotFound
		case "internal":
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(dto.APIResponse{
			Success: false,
			Message: verdict.Message,
			Error:   dto.ErrorDetail{Code: verdict.Code},
		})
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Payout cancelled",
	})
}

// Mark handles POST /api/v1/stores/:storeId/payouts/:payoutId/mark
func (h *PayoutHandler) Mark(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	var req dto.MarkPayoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid request format",
			Error:   dto.ErrorDetail{Code: "INVALID_REQUEST"},
		})
	}
	req.PayoutID = c.Params("payoutId")

	if err := h.validator.Struct(&req); err != nil {
		return validationError(c, err)
	}

	ctx := requestCtx(c, "POST /api/v1/stores/:storeId/payouts/:payoutId/mark")
	result, err := h.payoutFlow.Mark(ctx, storeID, &req, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Payout marked",
		Data:    result,
	})
}

// MarkPaid handles POST /api/v1/stores/:storeId/payouts/:payoutId/mark-paid
func (h *PayoutHandler) MarkPaid(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	var req dto.MarkPayoutRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid request format",
				Error:   dto.ErrorDetail{Code: "INVALID_REQUEST"},
			})
		}
	}

	ctx := requestCtx(c, "POST /api/v1/stores/:storeId/payouts/:payoutId/mark-paid")
	result, err := h.payoutFlow.MarkPaid(ctx, storeID, c.Params("payoutId"), req.Proof, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Payout marked paid",
		Data:    result,
	})
}

// Get handles GET /api/v1/stores/:storeId/payouts/:payoutId
func (h *PayoutHandler) Get(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	result, err := h.payoutFlow.Get(requestCtx(c, "GET /api/v1/stores/:storeId/payouts/:payoutId"), storeID, c.Params("payoutId"))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Payout retrieved",
		Data:    result,
	})
}

// List handles GET /api/v1/stores/:storeId/payouts
func (h *PayoutHandler) List(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	var req dto.ListPayoutsRequest
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

	result, err := h.payoutFlow.List(requestCtx(c, "GET /api/v1/stores/:storeId/payouts"), &req)
	if err != nil {
		return mapPayoutErr(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: "Payouts retrieved",
		Data:    result,
	})
}

// Export handles GET /api/v1/stores/:storeId/payouts/export — the full payout ledger
// as an Excel workbook
func (h *PayoutHandler) Export(c fiber.Ctx) error {
	storeID, ok := middleware.GetStoreIDFromContext(c)
	if !ok {
		return unauthenticated(c)
	}

	data, err := h.payoutFlow.ExportXLSX(requestCtx(c, "GET /api/v1/stores/:storeId/payouts/export"), storeID, clientMeta(c))
	if err != nil {
		return mapPayoutErr(c, err)
	}

	filename := fmt.Sprintf("payouts-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(data)
}
