package dto

import "time"

// CreatePullPaymentRequest creates a new pull payment under a store.
// StoreID is resolved from the route, never from the body.
type CreatePullPaymentRequest struct {
	StoreID                 uint       `json:"-"`
	Name                    string     `json:"name" validate:"required,min=1,max=255"`
	Description             string     `json:"description" validate:"omitempty,max=2000"`
	Currency                string     `json:"currency" validate:"required,uppercase,min=3,max=8"`
	Limit                   uint64     `json:"limit" validate:"required,gt=0"`
	MinimumClaim            uint64     `json:"minimum_claim" validate:"omitempty"`
	PaymentMethods          []string   `json:"payment_methods" validate:"required,min=1,dive,required"`
	AutoApproveClaims       bool       `json:"auto_approve_claims"`
	BOLT11ExpirationMinutes uint       `json:"bolt11_expiration_minutes" validate:"omitempty,max=1440"`
	StartsAt                *time.Time `json:"starts_at" validate:"omitempty"`
	ExpiresAt               *time.Time `json:"expires_at" validate:"omitempty"`
}

// PullPaymentDTO is the external representation of a pull payment
type PullPaymentDTO struct {
	ID                      string     `json:"id"`
	Name                    string     `json:"name"`
	Description             string     `json:"description,omitempty"`
	Currency                string     `json:"currency"`
	Limit                   uint64     `json:"limit"`
	MinimumClaim            uint64     `json:"minimum_claim"`
	Claimed                 uint64     `json:"claimed"`
	Remaining               uint64     `json:"remaining"`
	PaymentMethods          []string   `json:"payment_methods"`
	AutoApproveClaims       bool       `json:"auto_approve_claims"`
	BOLT11ExpirationMinutes uint       `json:"bolt11_expiration_minutes"`
	StartsAt                string     `json:"starts_at"`
	ExpiresAt               *string    `json:"expires_at,omitempty"`
	Archived                bool       `json:"archived"`
	ArchivedAt              *time.Time `json:"archived_at,omitempty"`
	CreatedAt               string     `json:"created_at"`
}

// ListPullPaymentsRequest filters a store's pull payments
type ListPullPaymentsRequest struct {
	StoreID         uint `json:"-"`
	IncludeArchived bool `json:"include_archived" query:"include_archived"`
	Page            int  `json:"page" query:"page" validate:"omitempty,min=1"`
	PageSize        int  `json:"page_size" query:"page_size" validate:"omitempty,min=1,max=100"`
}

// ListPullPaymentsResponse carries a page of pull payments
type ListPullPaymentsResponse struct {
	Items []PullPaymentDTO `json:"items"`
	Total int64            `json:"total"`
}
