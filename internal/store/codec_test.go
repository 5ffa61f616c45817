package store

import (
	"strings"
	"testing"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadCodecPlain(t *testing.T) {
	codec := NewPayloadCodec("")

	payload := models.OrderPayload{
		Email:         "buyer@example.com",
		Amount:        decimal.NewFromFloat(25.00),
		Provider:      "paddle",
		CorrelationID: "chk_abc123",
	}

	raw, err := codec.Encode(payload)
	require.NoError(t, err)
	assert.True(t, strings.Contains(raw, "buyer@example.com"), "plain mode stores readable JSON")

	decoded, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, payload.Email, decoded.Email)
	assert.Equal(t, payload.CorrelationID, decoded.CorrelationID)
	assert.True(t, payload.Amount.Equal(decoded.Amount))
}

func TestPayloadCodecEncrypted(t *testing.T) {
	codec := NewPayloadCodec("a-secret-key")

	payload := models.OrderPayload{
		Email:         "buyer@example.com",
		Amount:        decimal.NewFromInt(42),
		Provider:      "paypal",
		CorrelationID: "5O190127TN364715T",
		Addons:        []models.SelectedAddon{{Field: "rush", Value: "yes"}},
	}

	raw, err := codec.Encode(payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "enc:v1:"))
	assert.False(t, strings.Contains(raw, "buyer@example.com"))

	decoded, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, payload.Email, decoded.Email)
	assert.Equal(t, payload.Addons, decoded.Addons)
}

func TestPayloadCodecKeyMismatch(t *testing.T) {
	raw, err := NewPayloadCodec("key-one").Encode(models.OrderPayload{Email: "x@y.z"})
	require.NoError(t, err)

	_, err = NewPayloadCodec("key-two").Decode(raw)
	assert.Error(t, err)

	_, err = NewPayloadCodec("").Decode(raw)
	assert.Error(t, err, "encrypted blob without a configured key must fail")
}

func TestPayloadCodecReadsLegacyPlainRows(t *testing.T) {
	// Rows written before encryption was enabled stay readable.
	codec := NewPayloadCodec("new-key")

	decoded, err := codec.Decode(`{"email":"old@example.com","amount":"12.5"}`)
	require.NoError(t, err)
	assert.Equal(t, "old@example.com", decoded.Email)
}
