// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/mkhoshpour/susanoo/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// StoreRepository defines operations for merchant stores
type StoreRepository interface {
	Repository[models.Store, models.StoreFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Store, error)
}

// PullPaymentRepository defines operations for pull payments
type PullPaymentRepository interface {
	Repository[models.PullPayment, models.PullPaymentFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.PullPayment, error)
	ByUUIDForUpdate(ctx context.Context, uuid uuid.UUID) (*models.PullPayment, error)
	ListByStore(ctx context.Context, storeID uint, includeArchived bool, limit, offset int) ([]*models.PullPayment, error)
	Update(ctx context.Context, pullPayment *models.PullPayment) error
	// ClaimedTotal sums the amounts of all payouts that count against the
	// pull payment's limit; must run inside the claiming transaction
	ClaimedTotal(ctx context.Context, pullPaymentID uint) (uint64, error)
}

// PayoutRepository defines operations for payouts
type PayoutRepository interface {
	Repository[models.Payout, models.PayoutFilter]
	ByUUID(ctx context.Context, uuid uuid.UUID) (*models.Payout, error)
	Update(ctx context.Context, payout *models.Payout) error
	LiveDestinationExists(ctx context.Context, pullPaymentID uint, destination string) (bool, error)
	ListByStore(ctx context.Context, storeID uint, state *models.PayoutState, limit, offset int) ([]*models.Payout, error)
	ListByState(ctx context.Context, state models.PayoutState, limit, offset int) ([]*models.Payout, error)
	// AdvanceWithRevision performs the atomic optimistic-concurrency
	// transition: the row is updated only when both the expected revision
	// and the expected state still hold, and the revision is incremented
	// in the same statement. Returns false when no row matched.
	AdvanceWithRevision(ctx context.Context, payoutID uint, expectedRevision int, expectedState models.PayoutState, updates map[string]any) (bool, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByStore(ctx context.Context, storeID uint, limit, offset int) ([]*models.AuditLog, error)
	ListFailedActions(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
