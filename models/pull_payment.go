package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mkhoshpour/susanoo/utils"
	"gorm.io/gorm"
)

// PullPayment represents a store-funded pot from which payees can claim payouts
// up to a limit, over an optional time window.
type PullPayment struct {
	ID      uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID    uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	StoreID uint      `gorm:"not null;index" json:"store_id"`

	Name        string `gorm:"type:varchar(255);not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	// Limit and MinimumClaim are expressed in minor units of Currency
	Currency     string `gorm:"type:varchar(8);not null" json:"currency"`
	Limit        uint64 `gorm:"not null" json:"limit"`
	MinimumClaim uint64 `gorm:"not null;default:0" json:"minimum_claim"`

	// Payment rails claims may use, e.g. BTC-CHAIN, BTC-LN
	PaymentMethods pq.StringArray `gorm:"type:text[];not null" json:"payment_methods"`

	AutoApproveClaims bool `gorm:"not null;default:false" json:"auto_approve_claims"`

	// How long an approved lightning payout may sit unpaid before its locked
	// rate is considered stale, in minutes
	BOLT11ExpirationMinutes uint `gorm:"not null;default:30" json:"bolt11_expiration_minutes"`

	StartsAt  time.Time  `gorm:"not null" json:"starts_at"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`

	Archived   bool       `gorm:"not null;default:false;index" json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Store   Store    `gorm:"foreignKey:StoreID;constraint:OnDelete:CASCADE" json:"store,omitempty"`
	Payouts []Payout `gorm:"foreignKey:PullPaymentID" json:"payouts,omitempty"`
}

// BeforeCreate ensures UUID is set
func (pp *PullPayment) BeforeCreate(tx *gorm.DB) error {
	if pp.UUID == uuid.Nil {
		pp.UUID = uuid.New()
	}
	if pp.StartsAt.IsZero() {
		pp.StartsAt = utils.UTCNow()
	}
	return nil
}

// IsExpired returns true if the pull payment's claim window has closed
func (pp *PullPayment) IsExpired() bool {
	if pp.ExpiresAt == nil {
		return false
	}
	return utils.UTCNow().After(*pp.ExpiresAt)
}

// HasStarted returns true if the pull payment's claim window has opened
func (pp *PullPayment) HasStarted() bool {
	return !utils.UTCNow().Before(pp.StartsAt)
}

// SupportsMethod returns true if the given payment method is allowed for claims
func (pp *PullPayment) SupportsMethod(method string) bool {
	for _, m := range pp.PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// BOLT11Expiration returns the configured lightning invoice expiration window
func (pp *PullPayment) BOLT11Expiration() time.Duration {
	return time.Duration(pp.BOLT11ExpirationMinutes) * time.Minute
}

// PullPaymentFilter represents filter criteria for pull payment queries
type PullPaymentFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	StoreID       *uint      `json:"store_id,omitempty"`
	Currency      *string    `json:"currency,omitempty"`
	Archived      *bool      `json:"archived,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
