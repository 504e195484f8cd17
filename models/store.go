// Package models contains domain entities and business models for the payout system
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store represents a merchant store that funds pull payments and owns payouts
type Store struct {
	ID   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`

	Name            string `gorm:"type:varchar(255);not null" json:"name"`
	DefaultCurrency string `gorm:"type:varchar(8);not null;default:'USD'" json:"default_currency"`

	// API key is exchanged for a JWT; only the bcrypt hash is stored
	APIKeyHash string `gorm:"type:varchar(255);not null" json:"-"`

	IsActive *bool `gorm:"default:true" json:"is_active"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	PullPayments []PullPayment `gorm:"foreignKey:StoreID" json:"pull_payments,omitempty"`
	Payouts      []Payout      `gorm:"foreignKey:StoreID" json:"payouts,omitempty"`
}

// BeforeCreate ensures UUID is set
func (s *Store) BeforeCreate(tx *gorm.DB) error {
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	return nil
}

// StoreFilter represents filter criteria for store queries
type StoreFilter struct {
	ID            *uint      `json:"id,omitempty"`
	UUID          *uuid.UUID `json:"uuid,omitempty"`
	Name          *string    `json:"name,omitempty"`
	IsActive      *bool      `json:"is_active,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
}
