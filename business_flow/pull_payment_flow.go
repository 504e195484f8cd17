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

// PullPaymentFlow defines pull payment lifecycle operations
type PullPaymentFlow interface {
	Create(ctx context.Context, req *dto.CreatePullPaymentRequest, metadata *ClientMetadata) (*dto.PullPaymentDTO, error)
	Get(ctx context.Context, pullPaymentID string) (*dto.PullPaymentDTO, error)
	List(ctx context.Context, req *dto.ListPullPaymentsRequest) (*dto.ListPullPaymentsResponse, error)
	Archive(ctx context.Context, storeID uint, pullPaymentID string, metadata *ClientMetadata) error
}

// PullPaymentFlowImpl implements PullPaymentFlow
type PullPaymentFlowImpl struct {
	pullPaymentRepo repository.PullPaymentRepository
	storeRepo       repository.StoreRepository
	auditRepo       repository.AuditLogRepository
	rails           services.RailRegistry
	events          services.EventPublisher
	db              *gorm.DB
}

// NewPullPaymentFlow creates a new pull payment flow
func NewPullPaymentFlow(
	pullPaymentRepo repository.PullPaymentRepository,
	storeRepo repository.StoreRepository,
	auditRepo repository.AuditLogRepository,
	rails services.RailRegistry,
	events services.EventPublisher,
	db *gorm.DB,
) PullPaymentFlow {
	return &PullPaymentFlowImpl{
		pullPaymentRepo: pullPaymentRepo,
		storeRepo:       storeRepo,
		auditRepo:       auditRepo,
		rails:           rails,
		events:          events,
		db:              db,
	}
}

// Create creates a new pull payment for the store
func (f *PullPaymentFlowImpl) Create(ctx context.Context, req *dto.CreatePullPaymentRequest, metadata *ClientMetadata) (*dto.PullPaymentDTO, error) {
	for _, method := range req.PaymentMethods {
		if _, ok := f.rails.Rail(method); !ok {
			return nil, NewBusinessErrorf("PAYMENT_METHOD_NOT_SUPPORTED", "no payment rail registered for %s", ErrPaymentMethodNotSupported, method)
		}
	}
	if req.ExpiresAt != nil && req.StartsAt != nil && !req.ExpiresAt.After(*req.StartsAt) {
		return nil, NewBusinessError("PULL_PAYMENT_VALIDATION_FAILED", "expires_at must be after starts_at", nil)
	}

	bolt11Minutes := req.BOLT11ExpirationMinutes
	if bolt11Minutes == 0 {
		bolt11Minutes = utils.DefaultBOLT11ExpirationMinutes
	}

	var pullPayment *models.PullPayment
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		store, err := getStore(txCtx, f.storeRepo, req.StoreID)
		if err != nil {
			return err
		}

		pullPayment = &models.PullPayment{
			StoreID:                 store.ID,
			Name:                    req.Name,
			Description:             req.Description,
			Currency:                req.Currency,
			Limit:                   req.Limit,
			MinimumClaim:            req.MinimumClaim,
			PaymentMethods:          req.PaymentMethods,
			AutoApproveClaims:       req.AutoApproveClaims,
			BOLT11ExpirationMinutes: bolt11Minutes,
			ExpiresAt:               req.ExpiresAt,
		}
		if req.StartsAt != nil {
			pullPayment.StartsAt = *req.StartsAt
		}

		if err := f.pullPaymentRepo.Save(txCtx, pullPayment); err != nil {
			return fmt.Errorf("failed to save pull payment: %w", err)
		}
		return nil
	})
	if err != nil {
		errMsg := err.Error()
		_ = createAuditLog(ctx, f.auditRepo, &req.StoreID, models.AuditActionPullPaymentFailed, errMsg, false, &errMsg, metadata)
		return nil, err
	}

	_ = createAuditLog(ctx, f.auditRepo, &req.StoreID, models.AuditActionPullPaymentCreated,
		fmt.Sprintf("pull payment %s created", pullPayment.UUID), true, nil, metadata)
	_ = f.events.Publish(ctx, services.Event{
		Type:       services.EventPullPaymentCreated,
		OccurredAt: utils.UTCNow(),
		Payload:    map[string]any{"pull_payment_id": pullPayment.UUID.String(), "store_id": req.StoreID},
	})

	result := ToPullPaymentDTO(*pullPayment, 0)
	return &result, nil
}

// Get returns the public descriptor of a pull payment, including the amount
// still claimable
func (f *PullPaymentFlowImpl) Get(ctx context.Context, pullPaymentID string) (*dto.PullPaymentDTO, error) {
	id, err := uuid.Parse(pullPaymentID)
	if err != nil {
		return nil, ErrPullPaymentNotFound
	}

	pullPayment, err := f.pullPaymentRepo.ByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load pull payment: %w", err)
	}
	if pullPayment == nil {
		return nil, ErrPullPaymentNotFound
	}

	claimed, err := f.pullPaymentRepo.ClaimedTotal(ctx, pullPayment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum claims: %w", err)
	}

	result := ToPullPaymentDTO(*pullPayment, claimed)
	return &result, nil
}

// List returns a page of the store's pull payments
func (f *PullPaymentFlowImpl) List(ctx context.Context, req *dto.ListPullPaymentsRequest) (*dto.ListPullPaymentsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	pullPayments, err := f.pullPaymentRepo.ListByStore(ctx, req.StoreID, req.IncludeArchived, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list pull payments: %w", err)
	}

	filter := models.PullPaymentFilter{StoreID: &req.StoreID}
	if !req.IncludeArchived {
		filter.Archived = utils.ToPtr(false)
	}
	total, err := f.pullPaymentRepo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count pull payments: %w", err)
	}

	items := make([]dto.PullPaymentDTO, 0, len(pullPayments))
	for _, pp := range pullPayments {
		claimed, err := f.pullPaymentRepo.ClaimedTotal(ctx, pp.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to sum claims: %w", err)
		}
		items = append(items, ToPullPaymentDTO(*pp, claimed))
	}

	return &dto.ListPullPaymentsResponse{Items: items, Total: total}, nil
}

// Archive closes a pull payment to further claims. Archiving an already
// archived pull payment is reported, never silently absorbed.
func (f *PullPaymentFlowImpl) Archive(ctx context.Context, storeID uint, pullPaymentID string, metadata *ClientMetadata) error {
	id, err := uuid.Parse(pullPaymentID)
	if err != nil {
		return ErrPullPaymentNotFound
	}

	err = repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		pullPayment, err := f.pullPaymentRepo.ByUUIDForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("failed to load pull payment: %w", err)
		}
		if pullPayment == nil || pullPayment.StoreID != storeID {
			return ErrPullPaymentNotFound
		}
		if pullPayment.Archived {
			return ErrInvalidState
		}

		pullPayment.Archived = true
		pullPayment.ArchivedAt = utils.UTCNowPtr()
		if err := f.pullPaymentRepo.Update(txCtx, pullPayment); err != nil {
			return fmt.Errorf("failed to archive pull payment: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	_ = createAuditLog(ctx, f.auditRepo, &storeID, models.AuditActionPullPaymentArchived,
		fmt.Sprintf("pull payment %s archived", pullPaymentID), true, nil, metadata)
	_ = f.events.Publish(ctx, services.Event{
		Type:       services.EventPullPaymentArchived,
		OccurredAt: utils.UTCNow(),
		Payload:    map[string]any{"pull_payment_id": pullPaymentID, "store_id": storeID},
	})
	return nil
}
