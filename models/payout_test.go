package models

import (
	"testing"
	"time"

	"github.com/mkhoshpour/susanoo/utils"
	"github.com/stretchr/testify/assert"
)

func TestPayoutStateValidity(t *testing.T) {
	valid := []PayoutState{
		PayoutStateAwaitingApproval,
		PayoutStateAwaitingPayment,
		PayoutStateInProgress,
		PayoutStateCompleted,
		PayoutStateCancelled,
	}
	for _, s := range valid {
		assert.True(t, s.IsValid(), "state %s", s)
	}
	assert.False(t, PayoutState("paid").IsValid())
	assert.False(t, PayoutState("").IsValid())
}

func TestPayoutStateTerminality(t *testing.T) {
	assert.True(t, PayoutStateCompleted.IsTerminal())
	assert.True(t, PayoutStateCancelled.IsTerminal())
	assert.False(t, PayoutStateAwaitingApproval.IsTerminal())
	assert.False(t, PayoutStateAwaitingPayment.IsTerminal())
	assert.False(t, PayoutStateInProgress.IsTerminal())
}

func TestPayoutLifecycleHelpers(t *testing.T) {
	payout := &Payout{State: PayoutStateAwaitingApproval}
	assert.True(t, payout.CanBeApproved())
	assert.True(t, payout.CanBeCancelled())
	assert.True(t, payout.CountsAgainstLimit())

	payout.State = PayoutStateCompleted
	assert.False(t, payout.CanBeApproved())
	assert.False(t, payout.CanBeCancelled())
	assert.True(t, payout.CountsAgainstLimit())

	payout.State = PayoutStateCancelled
	assert.False(t, payout.CountsAgainstLimit())
}

func TestRateStaleAfterOnlyForApprovedLightning(t *testing.T) {
	approvedAt := utils.UTCNow()
	expiration := 30 * time.Minute

	chain := &Payout{PaymentMethod: PaymentMethodBTCChain, ApprovedAt: &approvedAt}
	assert.Nil(t, chain.RateStaleAfter(expiration))

	unapproved := &Payout{PaymentMethod: PaymentMethodBTCLightning}
	assert.Nil(t, unapproved.RateStaleAfter(expiration))

	lightning := &Payout{PaymentMethod: PaymentMethodBTCLightning, ApprovedAt: &approvedAt}
	staleAt := lightning.RateStaleAfter(expiration)
	assert.NotNil(t, staleAt)
	assert.Equal(t, approvedAt.Add(expiration), *staleAt)
}

func TestPullPaymentWindow(t *testing.T) {
	pp := &PullPayment{StartsAt: utils.UTCNow().Add(-time.Hour)}
	assert.True(t, pp.HasStarted())
	assert.False(t, pp.IsExpired())

	pp.ExpiresAt = utils.ToPtr(utils.UTCNow().Add(-time.Minute))
	assert.True(t, pp.IsExpired())

	future := &PullPayment{StartsAt: utils.UTCNow().Add(time.Hour)}
	assert.False(t, future.HasStarted())
}

func TestPullPaymentSupportsMethod(t *testing.T) {
	pp := &PullPayment{PaymentMethods: []string{PaymentMethodBTCChain}}
	assert.True(t, pp.SupportsMethod(PaymentMethodBTCChain))
	assert.False(t, pp.SupportsMethod(PaymentMethodBTCLightning))
	assert.False(t, pp.SupportsMethod(""))
}
