// Package businessflow contains the core business logic and use cases for payout workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Store errors
	ErrStoreNotFound = errors.New("store not found")
	ErrStoreInactive = errors.New("store is inactive")
	ErrInvalidAPIKey = errors.New("invalid API key")

	// Pull payment errors
	ErrPullPaymentNotFound   = errors.New("pull payment not found")
	ErrPullPaymentArchived   = errors.New("pull payment is archived")
	ErrPullPaymentExpired    = errors.New("pull payment has expired")
	ErrPullPaymentNotStarted = errors.New("pull payment has not started yet")

	// Claim errors
	ErrDuplicateDestination      = errors.New("destination already claimed on this pull payment")
	ErrOverdraft                 = errors.New("claim exceeds remaining pull payment balance")
	ErrAmountTooLow              = errors.New("amount is below the minimum claim")
	ErrPaymentMethodNotSupported = errors.New("payment method not supported by this pull payment")
	ErrDestinationInvalid        = errors.New("destination is not valid for the payment method")

	// Payout errors
	ErrPayoutNotFound = errors.New("payout not found")
	ErrInvalidState   = errors.New("payout state does not allow this operation")
	ErrOldRevision    = errors.New("payout revision is stale")

	// Rate errors
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// Filter errors
	ErrInvalidPage     = errors.New("page must be at least 1")
	ErrInvalidPageSize = errors.New("page size must be between 1 and 100")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsStoreNotFound(err error) bool {
	return errors.Is(err, ErrStoreNotFound)
}

func IsStoreInactive(err error) bool {
	return errors.Is(err, ErrStoreInactive)
}

func IsInvalidAPIKey(err error) bool {
	return errors.Is(err, ErrInvalidAPIKey)
}

func IsPullPaymentNotFound(err error) bool {
	return errors.Is(err, ErrPullPaymentNotFound)
}

func IsPullPaymentArchived(err error) bool {
	return errors.Is(err, ErrPullPaymentArchived)
}

func IsPullPaymentExpired(err error) bool {
	return errors.Is(err, ErrPullPaymentExpired)
}

func IsPullPaymentNotStarted(err error) bool {
	return errors.Is(err, ErrPullPaymentNotStarted)
}

func IsDuplicateDestination(err error) bool {
	return errors.Is(err, ErrDuplicateDestination)
}

func IsOverdraft(err error) bool {
	return errors.Is(err, ErrOverdraft)
}

func IsAmountTooLow(err error) bool {
	return errors.Is(err, ErrAmountTooLow)
}

func IsPaymentMethodNotSupported(err error) bool {
	return errors.Is(err, ErrPaymentMethodNotSupported)
}

func IsDestinationInvalid(err error) bool {
	return errors.Is(err, ErrDestinationInvalid)
}

func IsPayoutNotFound(err error) bool {
	return errors.Is(err, ErrPayoutNotFound)
}

func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsOldRevision(err error) bool {
	return errors.Is(err, ErrOldRevision)
}

func IsRateUnavailable(err error) bool {
	return errors.Is(err, ErrRateUnavailable)
}
