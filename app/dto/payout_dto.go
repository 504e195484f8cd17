package dto

import "encoding/json"

// ClaimPayoutRequest creates a payout claim against a pull payment.
// PullPaymentID comes from the route; Preapproved is only honoured when the
// caller is authenticated with the manage permission.
type ClaimPayoutRequest struct {
	PullPaymentID string          `json:"-"`
	Destination   string          `json:"destination" validate:"required,min=1,max=2048"`
	Amount        uint64          `json:"amount" validate:"required,gt=0"`
	PaymentMethod string          `json:"payment_method" validate:"required,min=1,max=32"`
	PreApprove    bool            `json:"pre_approve"`
	Metadata      json.RawMessage `json:"metadata" validate:"omitempty"`
}

// CreateStorePayoutRequest creates a payout directly under a store, without a
// pull payment. StoreID is resolved from the route.
type CreateStorePayoutRequest struct {
	StoreID       uint            `json:"-"`
	Destination   string          `json:"destination" validate:"required,min=1,max=2048"`
	Amount        uint64          `json:"amount" validate:"required,gt=0"`
	Currency      string          `json:"currency" validate:"required,uppercase,min=3,max=8"`
	PaymentMethod string          `json:"payment_method" validate:"required,min=1,max=32"`
	PreApprove    bool            `json:"pre_approve"`
	Metadata      json.RawMessage `json:"metadata" validate:"omitempty"`
}

// ApprovePayoutRequest approves a payout at a known revision. RateRule
// overrides the store's default rate rule for this approval only.
type ApprovePayoutRequest struct {
	PayoutID string `json:"-"`
	Revision int    `json:"revision" validate:"min=0"`
	RateRule string `json:"rate_rule" validate:"omitempty,max=255"`
}

// CancelPayoutsRequest cancels a batch of payouts
type CancelPayoutsRequest struct {
	StoreID   uint     `json:"-"`
	PayoutIDs []string `json:"payout_ids" validate:"required,min=1,max=100,dive,uuid"`
}

// CancelPayoutResult reports the outcome of cancelling one payout
type CancelPayoutResult struct {
	PayoutID string `json:"payout_id"`
	Ok       bool   `json:"ok"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// CancelPayoutsResponse carries per-payout cancel outcomes
type CancelPayoutsResponse struct {
	Results []CancelPayoutResult `json:"results"`
}

// MarkPayoutRequest records an out-of-band state change with optional proof
type MarkPayoutRequest struct {
	PayoutID string          `json:"-"`
	State    string          `json:"state" validate:"required,oneof=awaiting_payment in_progress completed cancelled"`
	Proof    json.RawMessage `json:"proof" validate:"omitempty"`
}

// PayoutDTO is the external representation of a payout
type PayoutDTO struct {
	ID            string          `json:"id"`
	PullPaymentID *string         `json:"pull_payment_id,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Destination   string          `json:"destination"`
	Amount        uint64          `json:"amount"`
	Currency      string          `json:"currency"`
	MethodAmount  string          `json:"method_amount,omitempty"`
	RateLocked    string          `json:"rate_locked,omitempty"`
	Revision      int             `json:"revision"`
	State         string          `json:"state"`
	StateReason   string          `json:"state_reason,omitempty"`
	ApprovedAt    *string         `json:"approved_at,omitempty"`
	CompletedAt   *string         `json:"completed_at,omitempty"`
	Proof         json.RawMessage `json:"proof,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

// ListPayoutsRequest filters a store's payouts
type ListPayoutsRequest struct {
	StoreID  uint    `json:"-"`
	State    *string `json:"state" query:"state" validate:"omitempty,oneof=awaiting_approval awaiting_payment in_progress completed cancelled"`
	Page     int     `json:"page" query:"page" validate:"omitempty,min=1"`
	PageSize int     `json:"page_size" query:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListPayoutsResponse carries a page of payouts
type ListPayoutsResponse struct {
	Items []PayoutDTO `json:"items"`
	Total int64       `json:"total"`
}
