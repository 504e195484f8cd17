// Package businessflow contains the core business logic and use cases for payout workflows
package businessflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/app/services"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/repository"
	"github.com/mkhoshpour/susanoo/utils"
	"gorm.io/gorm"
)

// ClaimAuthorization describes who is making a claim. Nil means an anonymous
// payee on the public surface.
type ClaimAuthorization struct {
	StoreID   uint
	CanManage bool
}

// ClaimFlow defines payout claim operations
type ClaimFlow interface {
	Claim(ctx context.Context, req *dto.ClaimPayoutRequest, auth *ClaimAuthorization, metadata *ClientMetadata) (*dto.PayoutDTO, error)
	ClaimForStore(ctx context.Context, req *dto.CreateStorePayoutRequest, metadata *ClientMetadata) (*dto.PayoutDTO, error)
}

// ClaimFlowImpl implements ClaimFlow
type ClaimFlowImpl struct {
	pullPaymentRepo repository.PullPaymentRepository
	payoutRepo      repository.PayoutRepository
	storeRepo       repository.StoreRepository
	auditRepo       repository.AuditLogRepository
	rails           services.RailRegistry
	payoutFlow      PayoutFlow
	events          services.EventPublisher
	db              *gorm.DB
}

// NewClaimFlow creates a new claim flow
func NewClaimFlow(
	pullPaymentRepo repository.PullPaymentRepository,
	payoutRepo repository.PayoutRepository,
	storeRepo repository.StoreRepository,
	auditRepo repository.AuditLogRepository,
	rails services.RailRegistry,
	payoutFlow PayoutFlow,
	events services.EventPublisher,
	db *gorm.DB,
) ClaimFlow {
	return &ClaimFlowImpl{
		pullPaymentRepo: pullPaymentRepo,
		payoutRepo:      payoutRepo,
		storeRepo:       storeRepo,
		auditRepo:       auditRepo,
		rails:           rails,
		payoutFlow:      payoutFlow,
		events:          events,
		db:              db,
	}
}

// Claim evaluates a payee's claim against a pull payment. The checks run in a
// fixed order inside one transaction holding the pull payment row, so two
// racing claims cannot both pass the balance check.
func (f *ClaimFlowImpl) Claim(ctx context.Context, req *dto.ClaimPayoutRequest, auth *ClaimAuthorization, metadata *ClientMetadata) (*dto.PayoutDTO, error) {
	id, err := uuid.Parse(req.PullPaymentID)
	if err != nil {
		return nil, ErrPullPaymentNotFound
	}

	var payout *models.Payout
	var storeID uint
	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		pullPayment, err := f.pullPaymentRepo.ByUUIDForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("failed to load pull payment: %w", err)
		}
		if pullPayment == nil {
			return ErrPullPaymentNotFound
		}
		storeID = pullPayment.StoreID

		if pullPayment.Archived {
			return ErrPullPaymentArchived
		}
		if pullPayment.IsExpired() {
			return ErrPullPaymentExpired
		}
		if !pullPayment.HasStarted() {
			return ErrPullPaymentNotStarted
		}

		exists, err := f.payoutRepo.LiveDestinationExists(txCtx, pullPayment.ID, req.Destination)
		if err != nil {
			return fmt.Errorf("failed to check destination: %w", err)
		}
		if exists {
			return ErrDuplicateDestination
		}

		claimed, err := f.pullPaymentRepo.ClaimedTotal(txCtx, pullPayment.ID)
		if err != nil {
			return fmt.Errorf("failed to sum claims: %w", err)
		}
		if claimed+req.Amount > pullPayment.Limit {
			return ErrOverdraft
		}

		if req.Amount < pullPayment.MinimumClaim {
			return ErrAmountTooLow
		}

		if !pullPayment.SupportsMethod(req.PaymentMethod) {
			return ErrPaymentMethodNotSupported
		}
		rail, ok := f.rails.Rail(req.PaymentMethod)
		if !ok {
			return ErrPaymentMethodNotSupported
		}
		if err := rail.ValidateDestination(req.Destination); err != nil {
			return NewBusinessError("DESTINATION_INVALID", err.Error(), ErrDestinationInvalid)
		}

		payout = &models.Payout{
			PullPaymentID: &pullPayment.ID,
			StoreID:       pullPayment.StoreID,
			PaymentMethod: req.PaymentMethod,
			Destination:   req.Destination,
			Amount:        req.Amount,
			Currency:      pullPayment.Currency,
			State:         models.PayoutStateAwaitingApproval,
			StateReason:   "claimed",
			Metadata:      models.JSONB(req.Metadata),
		}
		if err := f.payoutRepo.Save(txCtx, payout); err != nil {
			return fmt.Errorf("failed to save payout: %w", err)
		}
		return nil
	})
	if err != nil {
		errMsg := err.Error()
		var auditStore *uint
		if storeID != 0 {
			auditStore = &storeID
		}
		_ = createAuditLog(ctx, f.auditRepo, auditStore, models.AuditActionPayoutClaimRejected, errMsg, false, &errMsg, metadata)
		return nil, err
	}

	_ = createAuditLog(ctx, f.auditRepo, &storeID, models.AuditActionPayoutClaimed,
		fmt.Sprintf("payout %s claimed for %d %s", payout.UUID, payout.Amount, payout.Currency), true, nil, metadata)
	_ = f.events.Publish(ctx, services.Event{
		Type:       services.EventPayoutCreated,
		OccurredAt: utils.UTCNow(),
		Payload:    map[string]any{"payout_id": payout.UUID.String(), "store_id": storeID},
	})

	// Auto-approval only fires for authenticated managers who asked for it,
	// and a failed approval leaves the claim standing
	if req.PreApprove && auth != nil && auth.CanManage && auth.StoreID == storeID {
		if autoApproved := f.tryAutoApprove(ctx, payout, storeID, metadata); autoApproved != nil {
			return autoApproved, nil
		}
	}

	result := ToPayoutDTO(*payout, utils.ToPtr(req.PullPaymentID))
	return &result, nil
}

func (f *ClaimFlowImpl) tryAutoApprove(ctx context.Context, payout *models.Payout, storeID uint, metadata *ClientMetadata) *dto.PayoutDTO {
	if payout.PullPaymentID == nil {
		return nil
	}
	pullPayment, err := f.pullPaymentRepo.ByID(ctx, *payout.PullPaymentID)
	if err != nil || pullPayment == nil || !pullPayment.AutoApproveClaims {
		return nil
	}

	approved, err := f.payoutFlow.Approve(ctx, &dto.ApprovePayoutRequest{
		PayoutID: payout.UUID.String(),
		Revision: payout.Revision,
	}, storeID, metadata)
	if err != nil {
		return nil
	}
	return approved
}

// ClaimForStore creates a payout directly under a store, outside any pull
// payment. Only the destination and rail checks apply.
func (f *ClaimFlowImpl) ClaimForStore(ctx context.Context, req *dto.CreateStorePayoutRequest, metadata *ClientMetadata) (*dto.PayoutDTO, error) {
	rail, ok := f.rails.Rail(req.PaymentMethod)
	if !ok {
		return nil, ErrPaymentMethodNotSupported
	}
	if err := rail.ValidateDestination(req.Destination); err != nil {
		return nil, NewBusinessError("DESTINATION_INVALID", err.Error(), ErrDestinationInvalid)
	}

	var payout *models.Payout
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		store, err := getStore(txCtx, f.storeRepo, req.StoreID)
		if err != nil {
			return err
		}

		payout = &models.Payout{
			StoreID:       store.ID,
			PaymentMethod: req.PaymentMethod,
			Destination:   req.Destination,
			Amount:        req.Amount,
			Currency:      req.Currency,
			State:         models.PayoutStateAwaitingApproval,
			StateReason:   "created by store",
			Metadata:      models.JSONB(req.Metadata),
		}
		if err := f.payoutRepo.Save(txCtx, payout); err != nil {
			return fmt.Errorf("failed to save payout: %w", err)
		}
		return nil
	})
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, f.auditRepo, &req.StoreID, models.AuditActionPayoutClaimRejected, errMsg, false, &errMsg, metadata)
		return nil, err
	}

	_ = createAuditLog(ctx, f.auditRepo, &req.StoreID, models.AuditActionPayoutClaimed,
		fmt.Sprintf("payout %s created for %d %s", payout.UUID, payout.Amount, payout.Currency), true, nil, metadata)
	_ = f.events.Publish(ctx, services.Event{
		Type:       services.EventPayoutCreated,
		OccurredAt: utils.UTCNow(),
		Payload:    map[string]any{"payout_id": payout.UUID.String(), "store_id": req.StoreID},
	})

	if req.PreApprove {
		if approved, err := f.payoutFlow.Approve(ctx, &dto.ApprovePayoutRequest{
			PayoutID: payout.UUID.String(),
			Revision: payout.Revision,
		}, req.StoreID, metadata); err == nil {
			return approved, nil
		}
	}

	result := ToPayoutDTO(*payout, nil)
	return &result, nil
}
