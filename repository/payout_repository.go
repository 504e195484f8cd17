package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/utils"
	"gorm.io/gorm"
)

// PayoutRepositoryImpl implements PayoutRepository interface
type PayoutRepositoryImpl struct {
	*BaseRepository[models.Payout, models.PayoutFilter]
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *gorm.DB) PayoutRepository {
	return &PayoutRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Payout, models.PayoutFilter](db),
	}
}

// ByUUID finds a payout by UUID
func (r *PayoutRepositoryImpl) ByUUID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	db := r.getDB(ctx)
	var payout models.Payout
	err := db.Where("uuid = ?", id).Last(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// Update persists changes to an existing payout
func (r *PayoutRepositoryImpl) Update(ctx context.Context, payout *models.Payout) error {
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

	payout.UpdatedAt = utils.UTCNow()
	err = db.Save(payout).Error
	if err != nil {
		return err
	}

	return nil
}

// LiveDestinationExists reports whether a non-cancelled payout of the same
// pull payment already targets the destination
func (r *PayoutRepositoryImpl) LiveDestinationExists(ctx context.Context, pullPaymentID uint, destination string) (bool, error) {
	db := r.getDB(ctx)
	var count int64
	err := db.Model(&models.Payout{}).
		Where("pull_payment_id = ? AND destination = ? AND state <> ?",
			pullPaymentID, destination, models.PayoutStateCancelled).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByStore lists payouts for a store, optionally restricted to one state
func (r *PayoutRepositoryImpl) ListByStore(ctx context.Context, storeID uint, state *models.PayoutState, limit, offset int) ([]*models.Payout, error) {
	db := r.getDB(ctx)
	var payouts []*models.Payout

	query := db.Where("store_id = ?", storeID).Order("created_at DESC")
	if state != nil {
		query = query.Where("state = ?", *state)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// ListByState lists payouts in a given state across all stores; used by the
// automated payout processor
func (r *PayoutRepositoryImpl) ListByState(ctx context.Context, state models.PayoutState, limit, offset int) ([]*models.Payout, error) {
	db := r.getDB(ctx)
	var payouts []*models.Payout

	query := db.Where("state = ?", state).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// AdvanceWithRevision performs the optimistic-concurrency state transition as
// a single conditional UPDATE. Concurrent callers racing on the same payout
// see at most one affected row; the rest observe false and must re-read to
// distinguish a stale revision from an ineligible state.
func (r *PayoutRepositoryImpl) AdvanceWithRevision(ctx context.Context, payoutID uint, expectedRevision int, expectedState models.PayoutState, updates map[string]any) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
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

	values := map[string]any{
		"revision":   gorm.Expr("revision + 1"),
		"updated_at": utils.UTCNow(),
	}
	for k, v := range updates {
		values[k] = v
	}

	res := db.Model(&models.Payout{}).
		Where("id = ? AND revision = ? AND state = ?", payoutID, expectedRevision, expectedState).
		Updates(values)
	if res.Error != nil {
		err = res.Error
		return false, err
	}

	return res.RowsAffected == 1, nil
}

// ByFilter retrieves payouts based on filter criteria
func (r *PayoutRepositoryImpl) ByFilter(ctx context.Context, filter models.PayoutFilter, orderBy string, limit, offset int) ([]*models.Payout, error) {
	db := r.getDB(ctx)
	var payouts []*models.Payout

	query := db.Model(&models.Payout{})
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

	err := query.Find(&payouts).Error
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

// Count returns the number of payouts matching the filter
func (r *PayoutRepositoryImpl) Count(ctx context.Context, filter models.PayoutFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64

	query := db.Model(&models.Payout{})
	query = r.applyFilter(query, filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// applyFilter applies the filter to the query
func (r *PayoutRepositoryImpl) applyFilter(query *gorm.DB, filter models.PayoutFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.PullPaymentID != nil {
		query = query.Where("pull_payment_id = ?", *filter.PullPaymentID)
	}
	if filter.StoreID != nil {
		query = query.Where("store_id = ?", *filter.StoreID)
	}
	if filter.PaymentMethod != nil {
		query = query.Where("payment_method = ?", *filter.PaymentMethod)
	}
	if filter.Destination != nil {
		query = query.Where("destination = ?", *filter.Destination)
	}
	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}
