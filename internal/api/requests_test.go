package api

import (
	"encoding/json"
	"testing"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureBodyAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"snake_case", `{"order_id":"5O190127TN364715T"}`, "5O190127TN364715T"},
		{"camelCase", `{"orderId":"5O190127TN364715T"}`, "5O190127TN364715T"},
		{"bare id", `{"id":"5O190127TN364715T"}`, "5O190127TN364715T"},
		{"snake wins over bare", `{"order_id":"A","id":"B"}`, "A"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body captureBody
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &body))
			req, err := body.normalize()
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.OrderID)
		})
	}

	var empty captureBody
	require.NoError(t, json.Unmarshal([]byte(`{"email":"x@y.z"}`), &empty))
	_, err := empty.normalize()
	assert.ErrorIs(t, err, models.ErrMalformedPayload)
}

func TestCheckoutBodyNormalization(t *testing.T) {
	raw := `{
		"productId": 7,
		"provider": " Paddle ",
		"email": " buyer@example.com ",
		"coupon_code": "SAVE10",
		"currency": "usd",
		"amount": 0.01,
		"addons": [{"field": "Rush", "value": "yes"}]
	}`

	var body checkoutBody
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	req, err := body.normalize()
	require.NoError(t, err)

	assert.Equal(t, int64(7), req.ProductID)
	assert.Equal(t, "paddle", req.Provider)
	assert.Equal(t, "buyer@example.com", req.Email)
	assert.Equal(t, "SAVE10", req.CouponCode)
	assert.Equal(t, "USD", req.Currency)
	require.Len(t, req.Addons, 1)

	// There is no amount field to smuggle through normalization.
	assert.True(t, req.TipAmount.IsZero())
}

func TestCheckoutBodyTipValidation(t *testing.T) {
	var body checkoutBody
	require.NoError(t, json.Unmarshal([]byte(`{"provider":"paddle","type":"tip","orderId":"OD-123","tipAmount":"5"}`), &body))
	req, err := body.normalize()
	require.NoError(t, err)
	assert.Equal(t, "OD-123", req.OrderID)
	assert.True(t, req.TipAmount.Equal(decimal.NewFromInt(5)))

	var missing checkoutBody
	require.NoError(t, json.Unmarshal([]byte(`{"provider":"paddle","type":"tip"}`), &missing))
	_, err = missing.normalize()
	assert.ErrorIs(t, err, models.ErrMalformedPayload)
}

func TestPaddleWebhookBodyToEvent(t *testing.T) {
	var body paddleWebhookBody
	require.NoError(t, json.Unmarshal([]byte(`{
		"event_type": "checkout.completed",
		"checkoutId": "chk_abc123",
		"product_id": 7,
		"email": "buyer@example.com",
		"amount": "19.99"
	}`), &body))

	ev := body.toEvent()
	assert.Equal(t, "paddle", ev.Provider)
	assert.Equal(t, "chk_abc123", ev.CorrelationID)
	assert.Equal(t, int64(7), ev.ProductID)
	assert.True(t, ev.Amount.Valid)
	assert.True(t, ev.Amount.Decimal.Equal(decimal.RequireFromString("19.99")))

	var noAmount paddleWebhookBody
	require.NoError(t, json.Unmarshal([]byte(`{"checkout_id":"chk_x"}`), &noAmount))
	assert.False(t, noAmount.toEvent().Amount.Valid)
}
