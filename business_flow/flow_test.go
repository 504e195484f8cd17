package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/lib/pq"
	"github.com/mkhoshpour/susanoo/app/services"
	"github.com/mkhoshpour/susanoo/models"
	"github.com/mkhoshpour/susanoo/repository"
	"github.com/mkhoshpour/susanoo/utils"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// openTestDB creates an isolated in-memory database per test
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.Store{}, &models.PullPayment{}, &models.Payout{}, &models.AuditLog{}))
	return db
}

type testEnv struct {
	db              *gorm.DB
	storeRepo       repository.StoreRepository
	pullPaymentRepo repository.PullPaymentRepository
	payoutRepo      repository.PayoutRepository
	auditRepo       repository.AuditLogRepository
	rails           services.RailRegistry
	rateService     *fakeRateService
	payoutFlow      PayoutFlow
	claimFlow       ClaimFlow
	pullPaymentFlow PullPaymentFlow
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := openTestDB(t)
	env := &testEnv{
		db:              db,
		storeRepo:       repository.NewStoreRepository(db),
		pullPaymentRepo: repository.NewPullPaymentRepository(db),
		payoutRepo:      repository.NewPayoutRepository(db),
		auditRepo:       repository.NewAuditLogRepository(db),
		rails: services.RailRegistry{
			models.PaymentMethodBTCChain:     &fakeRail{method: models.PaymentMethodBTCChain},
			models.PaymentMethodBTCLightning: &fakeRail{method: models.PaymentMethodBTCLightning},
		},
		rateService: &fakeRateService{
			result: &services.RateResult{
				BidAsk:        &services.BidAsk{Bid: 49900, Ask: 50000},
				EvaluatedRule: "kraken(BTC_USD)",
			},
		},
	}

	events := services.NopEventPublisher{}
	env.payoutFlow = NewPayoutFlow(env.payoutRepo, env.pullPaymentRepo, env.auditRepo, env.rateService, services.NewXLSXExportService(), events, db)
	env.claimFlow = NewClaimFlow(env.pullPaymentRepo, env.payoutRepo, env.storeRepo, env.auditRepo, env.rails, env.payoutFlow, events, db)
	env.pullPaymentFlow = NewPullPaymentFlow(env.pullPaymentRepo, env.storeRepo, env.auditRepo, env.rails, events, db)
	return env
}

func (e *testEnv) createStore(t *testing.T, apiKey string) *models.Store {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.MinCost)
	require.NoError(t, err)

	store := &models.Store{
		Name:            "Test Store",
		DefaultCurrency: "USD",
		APIKeyHash:      string(hash),
		IsActive:        utils.ToPtr(true),
	}
	require.NoError(t, e.storeRepo.Save(context.Background(), store))
	return store
}

func (e *testEnv) createPullPayment(t *testing.T, storeID uint, mutate func(*models.PullPayment)) *models.PullPayment {
	t.Helper()

	pullPayment := &models.PullPayment{
		StoreID:        storeID,
		Name:           "Refund pool",
		Currency:       "USD",
		Limit:          100_000, // $1000.00
		MinimumClaim:   1_000,   // $10.00
		PaymentMethods: pq.StringArray{models.PaymentMethodBTCChain, models.PaymentMethodBTCLightning},
		StartsAt:       utils.UTCNow().Add(-time.Hour),
	}
	if mutate != nil {
		mutate(pullPayment)
	}
	require.NoError(t, e.pullPaymentRepo.Save(context.Background(), pullPayment))
	return pullPayment
}

func (e *testEnv) createPayout(t *testing.T, pullPayment *models.PullPayment, amount uint64, destination string, state models.PayoutState) *models.Payout {
	t.Helper()

	payout := &models.Payout{
		PullPaymentID: &pullPayment.ID,
		StoreID:       pullPayment.StoreID,
		PaymentMethod: models.PaymentMethodBTCChain,
		Destination:   destination,
		Amount:        amount,
		Currency:      pullPayment.Currency,
		State:         state,
	}
	require.NoError(t, e.payoutRepo.Save(context.Background(), payout))
	return payout
}

// fakeRail validates any destination except ones prefixed "bad"
type fakeRail struct {
	method string
}

func (r *fakeRail) Method() string { return r.method }

func (r *fakeRail) ValidateDestination(destination string) error {
	if strings.HasPrefix(destination, "bad") {
		return fmt.Errorf("unparseable destination %q", destination)
	}
	return nil
}

func (r *fakeRail) Send(ctx context.Context, destination, methodAmount string) (json.RawMessage, error) {
	return json.RawMessage(`{"txid":"test"}`), nil
}

// fakeRateService returns a canned result
type fakeRateService struct {
	result *services.RateResult
	err    error
}

func (f *fakeRateService) FetchRate(ctx context.Context, pair services.CurrencyPair, rule string) (*services.RateResult, error) {
	return f.result, f.err
}
