package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONBScan(t *testing.T) {
	var doc JSONB

	require.NoError(t, doc.Scan([]byte(`{"txid":"abc"}`)))
	assert.JSONEq(t, `{"txid":"abc"}`, string(doc))

	// sqlite hands column defaults back as strings, not []byte
	require.NoError(t, doc.Scan(`{"a":1}`))
	assert.JSONEq(t, `{"a":1}`, string(doc))

	require.NoError(t, doc.Scan(nil))
	assert.Nil(t, doc)

	assert.Error(t, doc.Scan(42))
}

func TestJSONBValue(t *testing.T) {
	v, err := JSONB(`{"a":1}`).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), v)

	v, err = JSONB(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestJSONBMarshalsVerbatim(t *testing.T) {
	out, err := json.Marshal(struct {
		Proof JSONB `json:"proof"`
	}{Proof: JSONB(`{"txid":"abc"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"proof":{"txid":"abc"}}`, string(out))
}
