package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// bech32Charset is the character set BOLT11 invoices draw their data part from
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// LightningRail sends lightning payouts through an LND node's REST interface
type LightningRail struct {
	RESTURL      string
	MacaroonHex  string
	HTTPClient   *http.Client
	InvoicePref  string
	sendEndpoint string
}

// NewLightningRail creates a new lightning rail against an LND REST endpoint
func NewLightningRail(restURL, macaroonHex string, timeout time.Duration) *LightningRail {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LightningRail{
		RESTURL:      strings.TrimRight(restURL, "/"),
		MacaroonHex:  macaroonHex,
		HTTPClient:   &http.Client{Timeout: timeout},
		InvoicePref:  "lnbc",
		sendEndpoint: "/v1/channels/transactions",
	}
}

func (r *LightningRail) Method() string { return "BTC-LN" }

// ValidateDestination checks the destination is a plausible BOLT11 invoice:
// the right human-readable prefix, a separator, and a data part restricted to
// the bech32 charset. Full invoice decoding is the node's job.
func (r *LightningRail) ValidateDestination(destination string) error {
	invoice := strings.ToLower(strings.TrimSpace(destination))
	if !strings.HasPrefix(invoice, r.InvoicePref) {
		return ErrBadInvoice
	}

	sep := strings.LastIndex(invoice, "1")
	if sep < len(r.InvoicePref) || sep == len(invoice)-1 {
		return ErrBadInvoice
	}

	data := invoice[sep+1:]
	if len(data) < 6 {
		return ErrBadInvoice
	}
	for _, c := range data {
		if !strings.ContainsRune(bech32Charset, c) {
			return fmt.Errorf("%w: invalid character %q", ErrBadInvoice, c)
		}
	}
	return nil
}

type lndSendRequest struct {
	PaymentRequest string `json:"payment_request"`
}

type lndSendResponse struct {
	PaymentError    string `json:"payment_error"`
	PaymentPreimage string `json:"payment_preimage"`
	PaymentHash     string `json:"payment_hash"`
}

// Send pays the BOLT11 invoice; the amount is carried by the invoice itself.
// methodAmount is ignored beyond logging because the invoice is authoritative.
func (r *LightningRail) Send(ctx context.Context, destination, methodAmount string) (json.RawMessage, error) {
	body, err := json.Marshal(lndSendRequest{PaymentRequest: destination})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.RESTURL+r.sendEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Grpc-Metadata-macaroon", r.MacaroonHex)

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lnd send returned status %d", resp.StatusCode)
	}

	var out lndSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.PaymentError != "" {
		return nil, fmt.Errorf("lightning payment failed: %s", out.PaymentError)
	}

	proof, err := json.Marshal(map[string]string{
		"payment_preimage": out.PaymentPreimage,
		"payment_hash":     out.PaymentHash,
	})
	if err != nil {
		return nil, err
	}
	return proof, nil
}
