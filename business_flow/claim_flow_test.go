package businessflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mkhoshpour/susanoo/app/dto"
	"github.com/mkhoshpour/susanoo/app/services"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimRequest(pullPaymentID string) *dto.ClaimPayoutRequest {
	return &dto.ClaimPayoutRequest{
		PullPaymentID: pullPaymentID,
		Destination:   "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Amount:        5_000,
		PaymentMethod: models.PaymentMethodBTCChain,
	}
}

func TestClaimCreatesAwaitingApprovalPayout(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	result, err := env.claimFlow.Claim(context.Background(), claimRequest(pullPayment.UUID.String()), nil, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)

	assert.Equal(t, string(models.PayoutStateAwaitingApproval), result.State)
	assert.Equal(t, uint64(5_000), result.Amount)
	assert.Equal(t, "USD", result.Currency)
	assert.Equal(t, 0, result.Revision)
	require.NotNil(t, result.PullPaymentID)
	assert.Equal(t, pullPayment.UUID.String(), *result.PullPaymentID)
}

func TestClaimedPayoutReloadsDocumentColumns(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	req := claimRequest(pullPayment.UUID.String())
	req.Metadata = json.RawMessage(`{"note":"rent"}`)

	result, err := env.claimFlow.Claim(context.Background(), req, nil, NewClientMetadata("127.0.0.1", "test"))
	require.NoError(t, err)

	// the row must scan back intact, including the column default for proof
	payout, err := env.payoutRepo.ByUUID(context.Background(), uuid.MustParse(result.ID))
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.JSONEq(t, `{}`, string(payout.Proof))
	assert.JSONEq(t, `{"note":"rent"}`, string(payout.Metadata))
}

func TestClaimUnknownPullPayment(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.claimFlow.Claim(context.Background(), claimRequest("b9c3a1de-0000-4000-8000-000000000000"), nil, nil)
	assert.True(t, IsPullPaymentNotFound(err))

	_, err = env.claimFlow.Claim(context.Background(), claimRequest("not-a-uuid"), nil, nil)
	assert.True(t, IsPullPaymentNotFound(err))
}

func TestClaimArchivedWinsOverOtherRejections(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	// Archived, expired, and not worth the minimum all at once; the archived
	// verdict must come back
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.Archived = true
		pp.ArchivedAt = utils.UTCNowPtr()
		pp.ExpiresAt = utils.ToPtr(utils.UTCNow().Add(-time.Minute))
		pp.MinimumClaim = 10_000
	})

	req := claimRequest(pullPayment.UUID.String())
	req.Amount = 1

	_, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	assert.True(t, IsPullPaymentArchived(err))
}

func TestClaimExpired(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.ExpiresAt = utils.ToPtr(utils.UTCNow().Add(-time.Minute))
	})

	_, err := env.claimFlow.Claim(context.Background(), claimRequest(pullPayment.UUID.String()), nil, nil)
	assert.True(t, IsPullPaymentExpired(err))
}

func TestClaimNotStarted(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.StartsAt = utils.UTCNow().Add(time.Hour)
	})

	_, err := env.claimFlow.Claim(context.Background(), claimRequest(pullPayment.UUID.String()), nil, nil)
	assert.True(t, IsPullPaymentNotStarted(err))
}

func TestClaimDuplicateDestination(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	req := claimRequest(pullPayment.UUID.String())
	env.createPayout(t, pullPayment, 2_000, req.Destination, models.PayoutStateAwaitingApproval)

	_, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	assert.True(t, IsDuplicateDestination(err))
}

func TestClaimCancelledPayoutFreesDestination(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	req := claimRequest(pullPayment.UUID.String())
	env.createPayout(t, pullPayment, 2_000, req.Destination, models.PayoutStateCancelled)

	_, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	require.NoError(t, err)
}

func TestClaimOverdraftBoundary(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil) // limit 100_000
	env.createPayout(t, pullPayment, 60_000, "1BitcoinEaterAddressDontSendf59kuE", models.PayoutStateAwaitingApproval)

	over := claimRequest(pullPayment.UUID.String())
	over.Amount = 40_001
	_, err := env.claimFlow.Claim(context.Background(), over, nil, nil)
	assert.True(t, IsOverdraft(err))

	exact := claimRequest(pullPayment.UUID.String())
	exact.Amount = 40_000
	_, err = env.claimFlow.Claim(context.Background(), exact, nil, nil)
	require.NoError(t, err)
}

func TestClaimCancelledPayoutsDoNotCountAgainstLimit(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)
	env.createPayout(t, pullPayment, 99_000, "1BitcoinEaterAddressDontSendf59kuE", models.PayoutStateCancelled)

	req := claimRequest(pullPayment.UUID.String())
	req.Amount = 90_000
	_, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	require.NoError(t, err)
}

func TestClaimAmountTooLow(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil) // minimum 1_000

	req := claimRequest(pullPayment.UUID.String())
	req.Amount = 999
	_, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	assert.True(t, IsAmountTooLow(err))
}

func TestClaimOverdraftCheckedBeforeMinimum(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	// A tiny claim against an exhausted pot must be reported as overdraft,
	// not amount-too-low
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.Limit = 100
		pp.MinimumClaim = 1_000
	})
	env.createPayout(t, pullPayment, 100, "1BitcoinEaterAddressDontSendf59kuE", models.PayoutStateAwaitingApproval)

	req := claimRequest(pullPayment.UUID.String())
	req.Amount = 50
	_, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	assert.True(t, IsOverdraft(err))
}

func TestClaimUnsupportedPaymentMethod(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.PaymentMethods = []string{models.PaymentMethodBTCLightning}
	})

	_, err := env.claimFlow.Claim(context.Background(), claimRequest(pullPayment.UUID.String()), nil, nil)
	assert.True(t, IsPaymentMethodNotSupported(err))
}

func TestClaimInvalidDestination(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	req := claimRequest(pullPayment.UUID.String())
	req.Destination = "bad-address"
	_, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	assert.True(t, IsDestinationInvalid(err))
}

func TestClaimRejectionLeavesNoPayout(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, nil)

	req := claimRequest(pullPayment.UUID.String())
	req.Destination = "bad-address"
	_, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	require.Error(t, err)

	count, err := env.payoutRepo.Count(context.Background(), models.PayoutFilter{PullPaymentID: &pullPayment.ID})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestClaimAutoApprove(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.AutoApproveClaims = true
	})

	req := claimRequest(pullPayment.UUID.String())
	req.PreApprove = true
	auth := &ClaimAuthorization{StoreID: store.ID, CanManage: true}

	result, err := env.claimFlow.Claim(context.Background(), req, auth, nil)
	require.NoError(t, err)

	assert.Equal(t, string(models.PayoutStateAwaitingPayment), result.State)
	assert.NotEmpty(t, result.RateLocked)
	assert.NotEmpty(t, result.MethodAmount)
	assert.Equal(t, 1, result.Revision)
}

func TestClaimAutoApproveRequiresManagePermission(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.AutoApproveClaims = true
	})

	req := claimRequest(pullPayment.UUID.String())
	req.PreApprove = true

	// Anonymous payee asking for pre-approval gets a plain claim
	result, err := env.claimFlow.Claim(context.Background(), req, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, string(models.PayoutStateAwaitingApproval), result.State)
}

func TestClaimAutoApproveFailureLeavesClaimStanding(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")
	pullPayment := env.createPullPayment(t, store.ID, func(pp *models.PullPayment) {
		pp.AutoApproveClaims = true
	})

	// Dead rate source: approval cannot lock a rate
	env.rateService.result = &services.RateResult{
		EvaluatedRule: "kraken(BTC_USD)",
		Errors:        []string{"connection refused"},
	}

	req := claimRequest(pullPayment.UUID.String())
	req.PreApprove = true
	auth := &ClaimAuthorization{StoreID: store.ID, CanManage: true}

	result, err := env.claimFlow.Claim(context.Background(), req, auth, nil)
	require.NoError(t, err)
	assert.Equal(t, string(models.PayoutStateAwaitingApproval), result.State)
}

func TestClaimForStoreDirectPayout(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")

	result, err := env.claimFlow.ClaimForStore(context.Background(), &dto.CreateStorePayoutRequest{
		StoreID:       store.ID,
		Destination:   "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Amount:        2_500,
		Currency:      "USD",
		PaymentMethod: models.PaymentMethodBTCChain,
	}, nil)
	require.NoError(t, err)

	assert.Nil(t, result.PullPaymentID)
	assert.Equal(t, string(models.PayoutStateAwaitingApproval), result.State)
}

func TestClaimForStoreRejectsUnknownMethod(t *testing.T) {
	env := newTestEnv(t)
	store := env.createStore(t, "test-api-key-0123456789")

	_, err := env.claimFlow.ClaimForStore(context.Background(), &dto.CreateStorePayoutRequest{
		StoreID:       store.ID,
		Destination:   "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
		Amount:        2_500,
		Currency:      "USD",
		PaymentMethod: "DOGE-CHAIN",
	}, nil)
	assert.True(t, IsPaymentMethodNotSupported(err))
}
