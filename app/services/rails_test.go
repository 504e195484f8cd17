package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBitcoinChainRailValidateDestination(t *testing.T) {
	rail := NewBitcoinChainRail("http://localhost:8332", "user", "pass", time.Second)

	valid := []string{
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",           // P2PKH
		"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy",           // P2SH
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4",   // bech32 P2WPKH
	}
	for _, addr := range valid {
		assert.NoError(t, rail.ValidateDestination(addr), "address %s", addr)
	}

	invalid := []string{
		"",
		"not-an-address",
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7Divfma",         // corrupted checksum
		"bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5", // corrupted bech32 checksum
		"tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx", // testnet hrp
	}
	for _, addr := range invalid {
		assert.ErrorIs(t, rail.ValidateDestination(addr), ErrBadAddress, "address %s", addr)
	}
}

func TestLightningRailValidateDestination(t *testing.T) {
	rail := NewLightningRail("https://localhost:8080", "abcdef", time.Second)

	valid := []string{
		"lnbc20m1qqqsyqcyq5rqwzqf",
		"LNBC20M1QQQSYQCYQ5RQWZQF", // case-folded before checking
	}
	for _, invoice := range valid {
		assert.NoError(t, rail.ValidateDestination(invoice), "invoice %s", invoice)
	}

	invalid := []string{
		"",
		"lntb20m1qqqsyqcyq5rqwzqf", // testnet prefix
		"lnbc20m",                  // no separator
		"lnbc20m1",                 // empty data part
		"lnbc20m1qqqqib",           // 'i' and 'b' are outside the bech32 charset
	}
	for _, invoice := range invalid {
		assert.ErrorIs(t, rail.ValidateDestination(invoice), ErrBadInvoice, "invoice %s", invoice)
	}
}

func TestRailRegistryLookup(t *testing.T) {
	chain := NewBitcoinChainRail("http://localhost:8332", "user", "pass", time.Second)
	registry := RailRegistry{chain.Method(): chain}

	rail, ok := registry.Rail("BTC-CHAIN")
	assert.True(t, ok)
	assert.Equal(t, "BTC-CHAIN", rail.Method())

	_, ok = registry.Rail("BTC-LN")
	assert.False(t, ok)
}
