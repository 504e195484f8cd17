package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/app/services"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) claim(t *testing.T, pullPayment *models.PullPayment, amount uint64, destination string) *dto.PayoutDTO {
	t.Helper()

	result, err := e.claimFlow.Claim(context.Background(), &dto.ClaimPayoutRequest{
		PullPaymentID: pullPayment.UUID.String(),
		Destination:   destination,
		Amount:        amount,
		PaymentMethod: models.PaymentMethodBTCChain,
	}, nil, nil)
	require.NoError(t, err)
	return result
}

func TestApproveLocksRateAndAdvances(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 50_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa") // $500.00

	result, err := env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{
		PayoutID: claimed.ID,
		Revision: 0,
	}, store.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.PayoutStateAwaitingPayment), result.State)
	assert.Equal(t, 1, result.Revision)
	// $500 at an ask of 50000 USD/BTC converts to 0.01 BTC
	assert.Equal(t, "0.01000000", result.MethodAmount)
	assert.Equal(t, "50000.00000000", result.RateLocked)
	assert.Equal(t, "kraken(BTC_USD)", claimedEvaluatedRule(t, env, claimed.ID))
	assert.NotNil(t, result.ApprovedAt)
}

func TestApproveCoinDenominatedPayoutNeedsNoQuote(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.Currency = "BTC"
		pp.Limit = 10_000_000
	})
	claimed := env.claim(t, pullPayment, 1_000_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa") // 0.01 BTC in sats

	// a dead rate source must not matter when no conversion is needed
	env.rateService.result = nil
	env.rateService.err = errors.New("rate source down")

	result, err := env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{
		PayoutID: claimed.ID,
		Revision: 0,
	}, store.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.PayoutStateAwaitingPayment), result.State)
	assert.Equal(t, "0.01000000", result.MethodAmount)
	assert.Equal(t, "1.00000000", result.RateLocked)
}

func claimedEvaluatedRule(t *testing.T, env *testEnv, payoutID string) string {
	t.Helper()
	payouts, err := env.payoutRepo.ByFilter(context.Background(), models.PayoutFilter{}, "", 0, 0)
	require.NoError(t, err)
	for _, p := range payouts {
		if p.UUID.String() == payoutID {
			return p.EvaluatedRule
		}
	}
	t.Fatalf("payout %s not found", payoutID)
	return ""
}

func TestApproveStaleRevision(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 50_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	_, err := env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{
		PayoutID: claimed.ID,
		Revision: 3,
	}, store.ID, nil)
	assert.True(t, IsOldRevision(err))
}

func TestApproveTwiceReportsInvalidState(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 50_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	_, err := env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{PayoutID: claimed.ID, Revision: 0}, store.ID, nil)
	require.NoError(t, err)

	// A second approval loses on state, not revision
	_, err = env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{PayoutID: claimed.ID, Revision: 1}, store.ID, nil)
	assert.True(t, IsInvalidState(err))
}

func TestApproveRateUnavailableKeepsDiagnostics(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 50_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	env.rateService.result = &services.RateResult{
		EvaluatedRule: "coingecko(BTC_USD) * 0.98",
		Errors:        []string{"status 502 from upstream"},
	}

	_, err := env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{PayoutID: claimed.ID, Revision: 0}, store.ID, nil)
	assert.True(t, IsRateUnavailable(err))

	var businessErr *BusinessError
	require.ErrorAs(t, err, &businessErr)
	assert.Contains(t, businessErr.Message, "coingecko(BTC_USD) * 0.98")
	assert.Contains(t, businessErr.Message, "status 502 from upstream")

	// A failed rate fetch must not burn the revision
	current, err := env.payoutFlow.Get(context.Background(), store.ID, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, current.Revision)
	assert.Equal(t, string(models.PayoutStateAwaitingApproval), current.State)
}

func TestApproveScopedToStore(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	other := env.createStore(t, "other-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 50_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	_, err := env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{PayoutID: claimed.ID, Revision: 0}, other.ID, nil)
	assert.True(t, IsPayoutNotFound(err))
}

func TestCancelBatchReportsPerPayout(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	open := env.claim(t, pullPayment, 5_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	done := env.createPayout(t, pullPayment, 5_000, "1BitcoinEaterAddressDontSendf59kuE", models.PayoutStateCompleted)
	missing := "b9c3a1de-0000-4000-8000-000000000000"

	result, err := env.payoutFlow.Cancel(context.Background(), &dto.CancelPayoutsRequest{
		StoreID:   store.ID,
		PayoutIDs: []string{open.ID, done.UUID.String(), missing},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Results, 3)

	assert.True(t, result.Results[0].Ok)
	assert.Equal(t, open.ID, result.Results[0].PayoutID)

	assert.False(t, result.Results[1].Ok)
	assert.Equal(t, "invalid-state", result.Results[1].Code)

	assert.False(t, result.Results[2].Ok)
	assert.Equal(t, "payout-not-found", result.Results[2].Code)

	cancelled, err := env.payoutFlow.Get(context.Background(), store.ID, open.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.PayoutStateCancelled), cancelled.State)
}

func TestCancelApprovedPayout(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 5_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	_, err := env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{PayoutID: claimed.ID, Revision: 0}, store.ID, nil)
	require.NoError(t, err)

	result, err := env.payoutFlow.Cancel(context.Background(), &dto.CancelPayoutsRequest{
		StoreID:   store.ID,
		PayoutIDs: []string{claimed.ID},
	}, nil)
	require.NoError(t, err)
	assert.True(t, result.Results[0].Ok)
}

func TestMarkPaidRecordsProofAndCompletion(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 5_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	_, err := env.payoutFlow.Approve(context.Background(), &dto.ApprovePayoutRequest{PayoutID: claimed.ID, Revision: 0}, store.ID, nil)
	require.NoError(t, err)

	proof := json.RawMessage(`{"txid":"deadbeef"}`)
	result, err := env.payoutFlow.MarkPaid(context.Background(), store.ID, claimed.ID, proof, nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.PayoutStateCompleted), result.State)
	assert.NotNil(t, result.CompletedAt)
	assert.JSONEq(t, `{"txid":"deadbeef"}`, string(result.Proof))
}

func TestMarkCancelledSharesCancelRules(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 5_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	result, err := env.payoutFlow.Mark(context.Background(), store.ID, &dto.MarkPayoutRequest{
		PayoutID: claimed.ID,
		State:    string(models.PayoutStateCancelled),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, string(models.PayoutStateCancelled), result.State)

	// Marking an already cancelled payout cancelled again fails like cancel does
	_, err = env.payoutFlow.Mark(context.Background(), store.ID, &dto.MarkPayoutRequest{
		PayoutID: claimed.ID,
		State:    string(models.PayoutStateCancelled),
	}, nil)
	assert.True(t, IsInvalidState(err))
}

func TestMarkRejectsBackwardTransition(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	claimed := env.claim(t, pullPayment, 5_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	_, err := env.payoutFlow.Mark(context.Background(), store.ID, &dto.MarkPayoutRequest{
		PayoutID: claimed.ID,
		State:    string(models.PayoutStateAwaitingApproval),
	}, nil)
	assert.True(t, IsInvalidState(err))
}

func TestListFiltersByState(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	env.claim(t, pullPayment, 5_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")
	env.createPayout(t, pullPayment, 3_000, "1BitcoinEaterAddressDontSendf59kuE", models.PayoutStateCompleted)

	state := string(models.PayoutStateCompleted)
	result, err := env.payoutFlow.List(context.Background(), &dto.ListPayoutsRequest{
		StoreID: store.ID,
		State:   &state,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Total)
	require.Len(t, result.Items, 1)
	assert.Equal(t, string(models.PayoutStateCompleted), result.Items[0].State)
}

func TestExportXLSXProducesWorkbook(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	env.claim(t, pullPayment, 5_000, "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa")

	data, err := env.payoutFlow.ExportXLSX(context.Background(), store.ID, nil)
	require.NoError(t, err)
	// XLSX files are zip archives
	require.Greater(t, len(data), 4)
	assert.Equal(t, []byte{'P', 'K'}, data[:2])
}

func TestArchiveStopsClaimsAndReportsRepeat(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	require.NoError(t, env.pullPaymentFlow.Archive(context.Background(), store.ID, pullPayment.UUID.String(), nil))

	_, err := env.claimFlow.Claim(context.Background(), &dto.ClaimPayoutRequest{
		PullPaymentID: pullPayment.UUID.String(),
		Destination:   "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Amount:        5_000,
		PaymentMethod: models.PaymentMethodBTCChain,
	}, nil, nil)
	assert.True(t, IsPullPaymentArchived(err))

	err = env.pullPaymentFlow.Archive(context.Background(), store.ID, pullPayment.UUID.String(), nil)
	assert.True(t, IsInvalidState(err))
}
