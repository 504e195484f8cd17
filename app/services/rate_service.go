package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// BidAsk is a two-sided quote for a currency pair
type BidAsk struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
}

// Center returns the midpoint of the quote
func (b BidAsk) Center() float64 {
	return (b.Bid + b.Ask) / 2
}

// CurrencyPair identifies a rate, e.g. BTC_USD
type CurrencyPair struct {
	Base  string
	Quote string
}

func (p CurrencyPair) String() string {
	return p.Base + "_" + p.Quote
}

// RateResult carries the outcome of a rate rule evaluation. BidAsk is nil
// when no usable quote could be produced; EvaluatedRule always holds the
// expanded rule text so callers can surface it as diagnostics.
type RateResult struct {
	BidAsk        *BidAsk
	EvaluatedRule string
	Errors        []string
}

// RateProvider fetches a raw two-sided quote from an exchange
type RateProvider interface {
	Name() string
	GetTicker(ctx context.Context, pair CurrencyPair) (*BidAsk, error)
}

// RateService resolves a rate rule into a quote
type RateService interface {
	FetchRate(ctx context.Context, pair CurrencyPair, rule string) (*RateResult, error)
}

// ruleExpr matches `provider(BASE_QUOTE)` with an optional `* factor` suffix
var ruleExpr = regexp.MustCompile(`^\s*([a-zA-Z0-9]+)\s*\(\s*([A-Z0-9]+)_([A-Z0-9]+)\s*\)\s*(?:\*\s*([0-9]+(?:\.[0-9]+)?))?\s*$`)

// RateServiceImpl implements RateService over a set of exchange providers
// with a short-lived redis quote cache
type RateServiceImpl struct {
	providers       map[string]RateProvider
	defaultProvider string
	cache           *redis.Client
	cacheTTL        time.Duration
}

// NewRateService creates a new rate service. cache may be nil, in which case
// every fetch hits the provider.
func NewRateService(providers map[string]RateProvider, defaultProvider string, cache *redis.Client, cacheTTL time.Duration) RateService {
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &RateServiceImpl{
		providers:       providers,
		defaultProvider: defaultProvider,
		cache:           cache,
		cacheTTL:        cacheTTL,
	}
}

// FetchRate evaluates the rule for the pair. An empty rule falls back to the
// default provider. Provider failures are reported through RateResult, not
// through the error return, so diagnostics survive to the API surface.
func (s *RateServiceImpl) FetchRate(ctx context.Context, pair CurrencyPair, rule string) (*RateResult, error) {
	if strings.TrimSpace(rule) == "" {
		rule = fmt.Sprintf("%s(%s_%s)", s.defaultProvider, pair.Base, pair.Quote)
	}

	matches := ruleExpr.FindStringSubmatch(rule)
	if matches == nil {
		return &RateResult{
			EvaluatedRule: rule,
			Errors:        []string{"rule does not match provider(BASE_QUOTE) [* factor]"},
		}, nil
	}

	providerName := strings.ToLower(matches[1])
	rulePair := CurrencyPair{Base: matches[2], Quote: matches[3]}
	factor := 1.0
	if matches[4] != "" {
		f, err := strconv.ParseFloat(matches[4], 64)
		if err != nil || f <= 0 {
			return &RateResult{
				EvaluatedRule: rule,
				Errors:        []string{fmt.Sprintf("invalid factor %q", matches[4])},
			}, nil
		}
		factor = f
	}

	evaluated := fmt.Sprintf("%s(%s_%s)", providerName, rulePair.Base, rulePair.Quote)
	if factor != 1.0 {
		evaluated = fmt.Sprintf("%s * %s", evaluated, strconv.FormatFloat(factor, 'f', -1, 64))
	}

	provider, ok := s.providers[providerName]
	if !ok {
		return &RateResult{
			EvaluatedRule: evaluated,
			Errors:        []string{fmt.Sprintf("unknown rate provider %q", providerName)},
		}, nil
	}

	quote, err := s.cachedTicker(ctx, provider, rulePair)
	if err != nil {
		return &RateResult{
			EvaluatedRule: evaluated,
			Errors:        []string{err.Error()},
		}, nil
	}

	return &RateResult{
		BidAsk: &BidAsk{
			Bid: quote.Bid * factor,
			Ask: quote.Ask * factor,
		},
		EvaluatedRule: evaluated,
	}, nil
}

func (s *RateServiceImpl) cachedTicker(ctx context.Context, provider RateProvider, pair CurrencyPair) (*BidAsk, error) {
	key := fmt.Sprintf("rate:%s:%s", provider.Name(), pair.String())

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Result()
		if err == nil {
			var cached BidAsk
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				return &cached, nil
			}
		}
	}

	quote, err := provider.GetTicker(ctx, pair)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(quote); err == nil {
			// Cache write failures only cost the next caller a fetch
			_ = s.cache.Set(ctx, key, raw, s.cacheTTL).Err()
		}
	}

	return quote, nil
}
