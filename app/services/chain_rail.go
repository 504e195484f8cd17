package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/btcsuite/btcutil/bech32"
)

// Destination validation errors
var (
	ErrBadAddress = errors.New("malformed bitcoin address")
	ErrBadInvoice = errors.New("malformed lightning invoice")
)

// BitcoinChainRail sends on-chain payouts through a bitcoind node's JSON-RPC
// interface
type BitcoinChainRail struct {
	RPCURL     string
	RPCUser    string
	RPCPass    string
	HTTPClient *http.Client
}

// NewBitcoinChainRail creates a new on-chain bitcoin rail
func NewBitcoinChainRail(rpcURL, rpcUser, rpcPass string, timeout time.Duration) *BitcoinChainRail {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BitcoinChainRail{
		RPCURL:     rpcURL,
		RPCUser:    rpcUser,
		RPCPass:    rpcPass,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (r *BitcoinChainRail) Method() string { return "BTC-CHAIN" }

// ValidateDestination accepts base58check (P2PKH, P2SH) and bech32 (segwit)
// mainnet addresses
func (r *BitcoinChainRail) ValidateDestination(destination string) error {
	if destination == "" {
		return ErrBadAddress
	}

	lower := strings.ToLower(destination)
	if strings.HasPrefix(lower, "bc1") {
		hrp, data, err := bech32.Decode(destination)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBadAddress, err)
		}
		if hrp != "bc" || len(data) == 0 {
			return ErrBadAddress
		}
		return nil
	}

	decoded, version, err := base58.CheckDecode(destination)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	// 0x00 = P2PKH, 0x05 = P2SH; both wrap a 20-byte hash
	if version != 0x00 && version != 0x05 {
		return ErrBadAddress
	}
	if len(decoded) != 20 {
		return ErrBadAddress
	}
	return nil
}

type bitcoindRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type bitcoindRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Send issues a sendtoaddress RPC and returns the resulting txid as proof
func (r *BitcoinChainRail) Send(ctx context.Context, destination, methodAmount string) (json.RawMessage, error) {
	amount, err := strconv.ParseFloat(methodAmount, 64)
	if err != nil || amount <= 0 {
		return nil, fmt.Errorf("invalid send amount %q", methodAmount)
	}

	body, err := json.Marshal(bitcoindRPCRequest{
		JSONRPC: "1.0",
		ID:      "susanoo",
		Method:  "sendtoaddress",
		Params:  []any{destination, amount},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.RPCURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(r.RPCUser, r.RPCPass)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out bitcoindRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Error != nil {
		return nil, fmt.Errorf("bitcoind sendtoaddress failed (%d): %s", out.Error.Code, out.Error.Message)
	}

	var txid string
	if err := json.Unmarshal(out.Result, &txid); err != nil {
		return nil, err
	}

	proof, err := json.Marshal(map[string]string{"txid": txid})
	if err != nil {
		return nil, err
	}
	return proof, nil
}
