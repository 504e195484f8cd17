package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mkhoshpour/susanoo/utils"
	"gorm.io/gorm"
)

// PayoutState represents the lifecycle state of a payout
type PayoutState string

const (
	PayoutStateAwaitingApproval PayoutState = "awaiting_approval" // Claimed, waiting for store approval
	PayoutStateAwaitingPayment  PayoutState = "awaiting_payment"  // Approved with a locked rate, waiting for a sender
	PayoutStateInProgress       PayoutState = "in_progress"       // Picked up by the automated payout processor
	PayoutStateCompleted        PayoutState = "completed"         // Funds sent, proof recorded
	PayoutStateCancelled        PayoutState = "cancelled"         // Cancelled before completion
)

// IsValid returns true for a known payout state
func (s PayoutState) IsValid() bool {
	switch s {
	case PayoutStateAwaitingApproval, PayoutStateAwaitingPayment, PayoutStateInProgress,
		PayoutStateCompleted, PayoutStateCancelled:
		return true
	}
	return false
}

// IsTerminal returns true if no further transitions are allowed from this state
func (s PayoutState) IsTerminal() bool {
	return s == PayoutStateCompleted || s == PayoutStateCancelled
}

// Payout represents a single claim against a pull payment (or a store-direct
// payout), progressing through approval and payment.
type Payout struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	// PullPaymentID is nil for store-direct payouts
	PullPaymentID *uint `gorm:"index" json:"pull_payment_id,omitempty"`
	StoreID       uint  `gorm:"not null;index" json:"store_id"`

	PaymentMethod string `gorm:"type:varchar(32);not null;index" json:"payment_method"`
	Destination   string `gorm:"type:text;not null" json:"destination"`

	// Amount is in minor units of Currency; MethodAmount is the converted
	// amount on the payment rail, as a decimal string
	Amount       uint64 `gorm:"not null" json:"amount"`
	Currency     string `gorm:"type:varchar(8);not null" json:"currency"`
	MethodAmount string `gorm:"type:varchar(32)" json:"method_amount"`

	// RateLocked is the Ask price captured at approval time, decimal string
	RateLocked    string `gorm:"type:varchar(32)" json:"rate_locked"`
	EvaluatedRule string `gorm:"type:text" json:"evaluated_rule"`

	// Revision is the optimistic-concurrency counter; approval must present
	// the current value and the storage layer increments it atomically
	Revision int `gorm:"not null;default:0" json:"revision"`

	State       PayoutState `gorm:"type:varchar(20);not null;default:'awaiting_approval';index" json:"state"`
	StateReason string      `gorm:"type:text" json:"state_reason"`

	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Proof holds rail-specific payment evidence (txid, preimage, ...)
	Proof    JSONB `gorm:"type:jsonb;default:'{}'" json:"proof"`
	Metadata JSONB `gorm:"type:jsonb;default:'{}'" json:"metadata"`

	// Audit fields
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	PullPayment *PullPayment `gorm:"foreignKey:PullPaymentID" json:"pull_payment,omitempty"`
	Store       Store        `gorm:"foreignKey:StoreID;constraint:OnDelete:CASCADE" json:"store,omitempty"`
}

// BeforeCreate ensures UUID and CorrelationID are set
func (p *Payout) BeforeCreate(tx *gorm.DB) error {
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	if p.CorrelationID == uuid.Nil {
		p.CorrelationID = uuid.New()
	}
	return nil
}

// IsTerminal returns true if the payout reached a final state
func (p *Payout) IsTerminal() bool {
	return p.State.IsTerminal()
}

// CanBeCancelled returns true while the payout has not completed
func (p *Payout) CanBeCancelled() bool {
	return !p.IsTerminal()
}

// CanBeApproved returns true while the payout awaits approval
func (p *Payout) CanBeApproved() bool {
	return p.State == PayoutStateAwaitingApproval
}

// CountsAgainstLimit returns true if the payout consumes pull payment balance
func (p *Payout) CountsAgainstLimit() bool {
	return p.State != PayoutStateCancelled
}

// RateStaleAfter returns the instant an approved lightning payout's locked
// rate stops being honoured, or nil for other rails / unapproved payouts
func (p *Payout) RateStaleAfter(bolt11Expiration time.Duration) *time.Time {
	if p.PaymentMethod != PaymentMethodBTCLightning || p.ApprovedAt == nil {
		return nil
	}
	return utils.ToPtr(p.ApprovedAt.Add(bolt11Expiration))
}

// Payment rails known to the system; each has a registered PayoutRail service
const (
	PaymentMethodBTCChain     = "BTC-CHAIN"
	PaymentMethodBTCLightning = "BTC-LN"
)

// PayoutFilter represents filter criteria for payout queries
type PayoutFilter struct {
	ID            *uint        `json:"id,omitempty"`
	UUID          *uuid.UUID   `json:"uuid,omitempty"`
	PullPaymentID *uint        `json:"pull_payment_id,omitempty"`
	StoreID       *uint        `json:"store_id,omitempty"`
	PaymentMethod *string      `json:"payment_method,omitempty"`
	Destination   *string      `json:"destination,omitempty"`
	State         *PayoutState `json:"state,omitempty"`
	CreatedAfter  *time.Time   `json:"created_after,omitempty"`
	CreatedBefore *time.Time   `json:"created_before,omitempty"`
}
