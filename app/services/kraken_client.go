package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// KrakenClient fetches public ticker quotes from the Kraken REST API
type KrakenClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewKrakenClient creates a new Kraken public-API client
func NewKrakenClient(baseURL string, timeout time.Duration) *KrakenClient {
	if baseURL == "" {
		baseURL = "https://api.kraken.com"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KrakenClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (c *KrakenClient) Name() string { return "kraken" }

// Kraken uses XBT for bitcoin in pair names
func krakenAsset(code string) string {
	if code == "BTC" {
		return "XBT"
	}
	return code
}

type krakenTickerResp struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		Ask []string `json:"a"`
		Bid []string `json:"b"`
	} `json:"result"`
}

// GetTicker returns the best bid/ask for the pair
// Docs: https://docs.kraken.com/rest/#tag/Market-Data/operation/getTickerInformation
func (c *KrakenClient) GetTicker(ctx context.Context, pair CurrencyPair) (*BidAsk, error) {
	symbol := krakenAsset(pair.Base) + krakenAsset(pair.Quote)
	url := fmt.Sprintf("%s/0/public/Ticker?pair=%s", c.BaseURL, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kraken ticker returned status %d", resp.StatusCode)
	}

	var out krakenTickerResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Error) > 0 {
		return nil, fmt.Errorf("kraken ticker error: %s", strings.Join(out.Error, "; "))
	}

	// The result key is kraken's normalized pair name, take the first entry
	for _, ticker := range out.Result {
		if len(ticker.Ask) == 0 || len(ticker.Bid) == 0 {
			break
		}
		ask, err := strconv.ParseFloat(ticker.Ask[0], 64)
		if err != nil {
			return nil, fmt.Errorf("kraken ask %q: %w", ticker.Ask[0], err)
		}
		bid, err := strconv.ParseFloat(ticker.Bid[0], 64)
		if err != nil {
			return nil, fmt.Errorf("kraken bid %q: %w", ticker.Bid[0], err)
		}
		return &BidAsk{Bid: bid, Ask: ask}, nil
	}

	return nil, fmt.Errorf("kraken ticker has no data for %s", symbol)
}
