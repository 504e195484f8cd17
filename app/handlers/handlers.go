// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/mkhoshpour/susanoo/app/dto"
	businessflow "github.com/mkhoshpour/susanoo/business_flow"
	"github.com/mkhoshpour/susanoo/utils"
)

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "uuid":
		return err.Field() + " must be a valid UUID"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "uppercase":
		return err.Field() + " must be uppercase"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// requestCtx builds the flow context carrying endpoint and request id for
// audit logging
func requestCtx(c fiber.Ctx, endpoint string) context.Context {
	ctx := context.WithValue(context.Background(), utils.EndpointKey, endpoint)
	if requestID, ok := c.Locals("request_id").(string); ok && requestID != "" {
		ctx = context.WithValue(ctx, utils.RequestIDKey, requestID)
	}
	return ctx
}

func clientMeta(c fiber.Ctx) *businessflow.ClientMetadata {
	meta := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	if requestID := c.Get("X-Request-ID"); requestID != "" {
		meta.SetRequestID(requestID)
	}
	return meta
}

func validationError(c fiber.Ctx, err error) error {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
			Success: false,
			Message: "Validation failed",
			Error:   dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: getValidationErrorMessage(fieldErrors[0])},
		})
	}
	return c.Status(fiber.StatusBadRequest).JSON(dto.APIResponse{
		Success: false,
		Message: "Validation failed",
		Error:   dto.ErrorDetail{Code: "VALIDATION_ERROR", Details: err.Error()},
	})
}

// domainErrCode resolves a flow error to its HTTP status and the stable
// machine code clients key on; every domain failure maps to exactly one code
func domainErrCode(err error) (int, string, string) {
	switch {
	case businessflow.IsPullPaymentNotFound(err):
		return fiber.StatusNotFound, "pull-payment-not-found", "Pull payment not found"
	case businessflow.IsPullPaymentArchived(err):
		return fiber.StatusBadRequest, "archived", "Pull payment is archived"
	case businessflow.IsPullPaymentExpired(err):
		return fiber.StatusBadRequest, "expired", "Pull payment has expired"
	case businessflow.IsPullPaymentNotStarted(err):
		return fiber.StatusBadRequest, "not-started", "Pull payment has not started yet"
	case businessflow.IsDuplicateDestination(err):
		return fiber.StatusBadRequest, "duplicate-destination", "Destination already has a live payout on this pull payment"
	case businessflow.IsOverdraft(err):
		return fiber.StatusBadRequest, "overdraft", "Claim exceeds the remaining balance"
	case businessflow.IsAmountTooLow(err):
		return fiber.StatusBadRequest, "amount-too-low", "Amount is below the minimum claim"
	case businessflow.IsPaymentMethodNotSupported(err):
		return fiber.StatusBadRequest, "payment-method-not-supported", "Payment method is not supported"
	case businessflow.IsDestinationInvalid(err):
		return fiber.StatusBadRequest, "destination-invalid", "Destination is not valid for the payment method"
	case businessflow.IsRateUnavailable(err):
		return fiber.StatusServiceUnavailable, "rate-unavailable", "Exchange rate unavailable"
	case businessflow.IsPayoutNotFound(err):
		return fiber.StatusNotFound, "payout-not-found", "Payout not found"
	case businessflow.IsOldRevision(err):
		return fiber.StatusConflict, "old-revision", "Payout revision is stale"
	case businessflow.IsInvalidState(err):
		return fiber.StatusConflict, "invalid-state", "Payout state does not allow this operation"
	case businessflow.IsStoreNotFound(err), businessflow.IsInvalidAPIKey(err):
		return fiber.StatusUnauthorized, "unauthorized", "Store credentials rejected"
	case businessflow.IsStoreInactive(err):
		return fiber.StatusForbidden, "store-inactive", "Store is inactive"
	default:
		return fiber.StatusInternalServerError, "internal", "Internal server error"
	}
}

func mapPayoutErr(c fiber.Ctx, err error) error {
	var details any
	var businessErr *businessflow.BusinessError
	if errors.As(err, &businessErr) {
		details = businessErr.Message
	}

	status, code, message := domainErrCode(err)
	return c.Status(status).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code, Details: details},
	})
}
