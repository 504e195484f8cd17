package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PullPaymentRepositoryImpl implements PullPaymentRepository interface
type PullPaymentRepositoryImpl struct {
	*BaseRepository[models.PullPayment, models.PullPaymentFilter]
}

// NewPullPaymentRepository creates a new pull payment repository
func NewPullPaymentRepository(db *gorm.DB) PullPaymentRepository {
	return &PullPaymentRepositoryImpl{
		BaseRepository: NewBaseRepository[models.PullPayment, models.PullPaymentFilter](db),
	}
}

// ByUUID finds a pull payment by UUID
func (r *PullPaymentRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.PullPayment, error) {
	db := r.getDB(ctx)
	var pullPayment models.PullPayment
	err := db.Where("uuid = ?", id).Last(&pullPayment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pullPayment, nil
}

// ByUUIDForUpdate finds a pull payment by UUID, taking a row lock so that
// concurrent claims serialize on the same pull payment. The lock clause is
// only emitted on postgres; the sqlite driver used in tests serializes
// writers on its own.
func (r *PullPaymentRepositoryImpl) ByUUIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PullPayment, error) {
	db := r.getDB(ctx)
	if db.Dialector.Name() == "postgres" {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var pullPayment models.PullPayment
	err := db.Where("uuid = ?", id).Last(&pullPayment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pullPayment, nil
}

// ListByStore lists pull payments for a store
func (r *PullPaymentRepositoryImpl) ListByStore(ctx context.Context, storeID uint, includeArchived bool, limit, offset int) ([]*models.PullPayment, error) {
	db := r.getDB(ctx)
	var pullPayments []*models.PullPayment

	query := db.Where("store_id = ?", storeID).Order("created_at DESC")
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&pullPayments).Error
	if err != nil {
		return nil, err
	}
	return pullPayments, nil
}

// Update persists changes to an existing pull payment
func (r *PullPaymentRepositoryImpl) Update(ctx context.Context, pullPayment *models.PullPayment) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	pullPayment.UpdatedAt = utils.UTCNow()
	err = db.Save(pullPayment).Error
	if err != nil {
		return err
	}

	return nil
}

// ClaimedTotal sums the amounts of all non-cancelled payouts of a pull payment
func (r *PullPaymentRepositoryImpl) ClaimedTotal(ctx context.Context, pullPaymentID uint) (uint64, error) {
	db := r.getDB(ctx)

	var total *uint64
	err := db.Model(&models.Payout{}).
		Where("pull_payment_id = ? AND state <> ?", pullPaymentID, models.PayoutStateCancelled).
		Select("SUM(amount)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

// ByFilter retrieves pull payments based on filter criteria
func (r *PullPaymentRepositoryImpl) ByFilter(ctx context.Context, filter models.PullPaymentFilter, orderBy string, limit, offset int) ([]*models.PullPayment, error) {
	db := r.getDB(ctx)
	var pullPayments []*models.PullPayment

	query := db.Model(&models.PullPayment{})
	query = r.applyFilter(query, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	} else {
		query = query.Order("created_at DESC")
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&pullPayments).Error
	if err != nil {
		return nil, err
	}
	return pullPayments, nil
}

// Count returns the number of pull payments matching the filter
func (r *PullPaymentRepositoryImpl) Count(ctx context.Context, filter models.PullPaymentFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.PullPayment{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *PullPaymentRepositoryImpl) applyFilter(query *gorm.DB, filter models.PullPaymentFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.StoreID != nil {
		query = query.Where("store_id = ?", *filter.StoreID)
	}
	if filter.Currency != nil {
		query = query.Where("currency = ?", *filter.Currency)
	}
	if filter.Archived != nil {
		query = query.Where("archived = ?", *filter.Archived)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
