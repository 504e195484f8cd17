package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name  string
	quote *BidAsk
	err   error

	lastPair CurrencyPair
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) GetTicker(ctx context.Context, pair CurrencyPair) (*BidAsk, error) {
	p.lastPair = pair
	return p.quote, p.err
}

func newTestRateService(provider *stubProvider) RateService {
	return NewRateService(map[string]RateProvider{provider.name: provider}, provider.name, nil, 0)
}

func TestFetchRateEmptyRuleUsesDefaultProvider(t *testing.T) {
	provider := &stubProvider{name: "kraken", quote: &BidAsk{Bid: 49900, Ask: 50000}}
	service := newTestRateService(provider)

	result, err := service.FetchRate(context.Background(), CurrencyPair{Base: "BTC", Quote: "USD"}, "")
	require.NoError(t, err)

	require.NotNil(t, result.BidAsk)
	assert.Equal(t, 50000.0, result.BidAsk.Ask)
	assert.Equal(t, "kraken(BTC_USD)", result.EvaluatedRule)
	assert.Empty(t, result.Errors)
	assert.Equal(t, CurrencyPair{Base: "BTC", Quote: "USD"}, provider.lastPair)
}

func TestFetchRateAppliesFactor(t *testing.T) {
	provider := &stubProvider{name: "kraken", quote: &BidAsk{Bid: 100, Ask: 200}}
	service := newTestRateService(provider)

	result, err := service.FetchRate(context.Background(), CurrencyPair{Base: "BTC", Quote: "EUR"}, "kraken(BTC_EUR) * 0.5")
	require.NoError(t, err)

	require.NotNil(t, result.BidAsk)
	assert.Equal(t, 50.0, result.BidAsk.Bid)
	assert.Equal(t, 100.0, result.BidAsk.Ask)
	assert.Equal(t, "kraken(BTC_EUR) * 0.5", result.EvaluatedRule)
}

func TestFetchRateRulePairOverridesRequestedPair(t *testing.T) {
	provider := &stubProvider{name: "kraken", quote: &BidAsk{Bid: 1, Ask: 2}}
	service := newTestRateService(provider)

	_, err := service.FetchRate(context.Background(), CurrencyPair{Base: "BTC", Quote: "USD"}, "kraken(BTC_EUR)")
	require.NoError(t, err)
	assert.Equal(t, CurrencyPair{Base: "BTC", Quote: "EUR"}, provider.lastPair)
}

func TestFetchRateMalformedRule(t *testing.T) {
	provider := &stubProvider{name: "kraken", quote: &BidAsk{Bid: 1, Ask: 2}}
	service := newTestRateService(provider)

	for _, rule := range []string{
		"kraken[BTC_USD]",
		"kraken(BTCUSD)",
		"kraken(btc_usd)",
		"kraken(BTC_USD) * -1",
		"kraken(BTC_USD) + 5",
	} {
		result, err := service.FetchRate(context.Background(), CurrencyPair{Base: "BTC", Quote: "USD"}, rule)
		require.NoError(t, err, "rule %q", rule)
		assert.Nil(t, result.BidAsk, "rule %q", rule)
		assert.NotEmpty(t, result.Errors, "rule %q", rule)
		assert.NotEmpty(t, result.EvaluatedRule, "rule %q", rule)
	}
}

func TestFetchRateUnknownProvider(t *testing.T) {
	provider := &stubProvider{name: "kraken", quote: &BidAsk{Bid: 1, Ask: 2}}
	service := newTestRateService(provider)

	result, err := service.FetchRate(context.Background(), CurrencyPair{Base: "BTC", Quote: "USD"}, "binance(BTC_USD)")
	require.NoError(t, err)
	assert.Nil(t, result.BidAsk)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "binance")
	assert.Equal(t, "binance(BTC_USD)", result.EvaluatedRule)
}

func TestFetchRateProviderFailureReportedInResult(t *testing.T) {
	provider := &stubProvider{name: "kraken", err: errors.New("connection refused")}
	service := newTestRateService(provider)

	// Provider failures travel inside the result so callers can surface them
	result, err := service.FetchRate(context.Background(), CurrencyPair{Base: "BTC", Quote: "USD"}, "kraken(BTC_USD)")
	require.NoError(t, err)
	assert.Nil(t, result.BidAsk)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "connection refused")
}

func TestBidAskCenter(t *testing.T) {
	quote := BidAsk{Bid: 100, Ask: 110}
	assert.Equal(t, 105.0, quote.Center())
}
