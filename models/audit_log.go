// Package models contains domain entities and business models for the payout system
package models

import (
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	StoreID      *uint           `gorm:"index:idx_audit_store_id" json:"store_id,omitempty"`
	Store        *Store          `gorm:"foreignKey:StoreID;references:ID" json:"store,omitempty"`
	Action       string          `gorm:"type:varchar(64);not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	IPAddress    *string         `gorm:"type:varchar(64);index:idx_audit_ip_address" json:"ip_address,omitempty"`
	UserAgent    *string         `gorm:"type:text" json:"user_agent,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     JSONB           `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionTokenIssued           = "token_issued"
	AuditActionTokenIssueFailed      = "token_issue_failed"
	AuditActionPullPaymentCreated    = "pull_payment_created"
	AuditActionPullPaymentFailed     = "pull_payment_creation_failed"
	AuditActionPullPaymentArchived   = "pull_payment_archived"
	AuditActionPayoutClaimed         = "payout_claimed"
	AuditActionPayoutClaimRejected   = "payout_claim_rejected"
	AuditActionPayoutApproved        = "payout_approved"
	AuditActionPayoutApprovalFailed  = "payout_approval_failed"
	AuditActionPayoutCancelled       = "payout_cancelled"
	AuditActionPayoutMarkedPaid      = "payout_marked_paid"
	AuditActionPayoutSent            = "payout_sent"
	AuditActionPayoutSendFailed      = "payout_send_failed"
	AuditActionPayoutRateExpired     = "payout_rate_expired"
	AuditActionPayoutExportRequested = "payout_export_requested"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	StoreID       *uint
	Action        *string
	Success       *bool
	IPAddress     *string
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
