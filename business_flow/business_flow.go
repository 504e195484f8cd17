// Package businessflow contains the business logic for the application.
package businessflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/repository"
	"github.com/mkhoshpour/susanoo/utils"
)

// ClientMetadata holds all client-related information for audit logging
type ClientMetadata struct {
	IPAddress  string            `json:"ip_address"`
	UserAgent  string            `json:"user_agent"`
	RequestID  string            `json:"request_id,omitempty"`
	Additional map[string]string `json:"additional,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Additional: make(map[string]string),
	}
}

// AddAdditional adds additional custom information to the metadata
func (cm *ClientMetadata) AddAdditional(key, value string) {
	if cm.Additional == nil {
		cm.Additional = make(map[string]string)
	}
	cm.Additional[key] = value
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

// getStore loads an active store by numeric id
func getStore(ctx context.Context, repo repository.StoreRepository, storeID uint) (models.Store, error) {
	store, err := repo.ByID(ctx, storeID)
	if err != nil {
		return models.Store{}, err
	}
	if store == nil {
		return models.Store{}, ErrStoreNotFound
	}
	if !utils.IsTrue(store.IsActive) {
		return models.Store{}, ErrStoreInactive
	}
	return *store, nil
}

// createAuditLog records an audit entry for a flow outcome; failures to write
// the entry never fail the flow itself
func createAuditLog(ctx context.Context, repo repository.AuditLogRepository, storeID *uint, action, description string, success bool, errorMsg *string, metadata *ClientMetadata) error {
	ipAddress := ""
	userAgent := ""
	if metadata != nil {
		ipAddress = metadata.IPAddress
		userAgent = metadata.UserAgent
	}

	audit := &models.AuditLog{
		StoreID:      storeID,
		Action:       action,
		Description:  &description,
		Success:      utils.ToPtr(success),
		IPAddress:    &ipAddress,
		UserAgent:    &userAgent,
		ErrorMessage: errorMsg,
	}

	requestID := ctx.Value(utils.RequestIDKey)
	if requestID != nil {
		requestIDStr, ok := requestID.(string)
		if ok {
			audit.RequestID = &requestIDStr
		}
	}

	if err := repo.Save(ctx, audit); err != nil {
		return err
	}

	return nil
}

// ToPullPaymentDTO converts a pull payment model plus its claimed total to the external DTO
func ToPullPaymentDTO(pp models.PullPayment, claimed uint64) dto.PullPaymentDTO {
	remaining := uint64(0)
	if pp.Limit > claimed {
		remaining = pp.Limit - claimed
	}

	var expiresAt *string
	if pp.ExpiresAt != nil {
		expiresAt = utils.ToPtr(pp.ExpiresAt.Format(time.RFC3339))
	}

	return dto.PullPaymentDTO{
		ID:                      pp.UUID.String(),
		Name:                    pp.Name,
		Description:             pp.Description,
		Currency:                pp.Currency,
		Limit:                   pp.Limit,
		MinimumClaim:            pp.MinimumClaim,
		Claimed:                 claimed,
		Remaining:               remaining,
		PaymentMethods:          pp.PaymentMethods,
		AutoApproveClaims:       pp.AutoApproveClaims,
		BOLT11ExpirationMinutes: pp.BOLT11ExpirationMinutes,
		StartsAt:                pp.StartsAt.Format(time.RFC3339),
		ExpiresAt:               expiresAt,
		Archived:                pp.Archived,
		ArchivedAt:              pp.ArchivedAt,
		CreatedAt:               pp.CreatedAt.Format(time.RFC3339),
	}
}

// ToPayoutDTO converts a payout model to the external DTO
func ToPayoutDTO(p models.Payout, pullPaymentUUID *string) dto.PayoutDTO {
	var approvedAt, completedAt *string
	if p.ApprovedAt != nil {
		approvedAt = utils.ToPtr(p.ApprovedAt.Format(time.RFC3339))
	}
	if p.CompletedAt != nil {
		completedAt = utils.ToPtr(p.CompletedAt.Format(time.RFC3339))
	}

	return dto.PayoutDTO{
		ID:            p.UUID.String(),
		PullPaymentID: pullPaymentUUID,
		PaymentMethod: p.PaymentMethod,
		Destination:   p.Destination,
		Amount:        p.Amount,
		Currency:      p.Currency,
		MethodAmount:  p.MethodAmount,
		RateLocked:    p.RateLocked,
		Revision:      p.Revision,
		State:         string(p.State),
		StateReason:   p.StateReason,
		ApprovedAt:    approvedAt,
		CompletedAt:   completedAt,
		Proof:         json.RawMessage(p.Proof),
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
}
