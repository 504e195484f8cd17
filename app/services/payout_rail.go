package services

import (
	"context"
	"encoding/json"
)

// PayoutRail abstracts a payment rail a payout can be sent over. Each rail
// validates destinations for its own address format and knows how to move
// funds and produce proof of payment.
type PayoutRail interface {
	Method() string
	ValidateDestination(destination string) error
	// Send moves methodAmount (decimal string in the rail's native unit) to
	// the destination and returns rail-specific proof of payment
	Send(ctx context.Context, destination, methodAmount string) (json.RawMessage, error)
}

// RailRegistry holds the configured rails keyed by payment method
type RailRegistry map[string]PayoutRail

// Rail returns the rail for a payment method
func (r RailRegistry) Rail(method string) (PayoutRail, bool) {
	rail, ok := r[method]
	return rail, ok
}
