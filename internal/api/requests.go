package api

import (
	"fmt"
	"strings"

	"checkout-service/internal/models"
	"checkout-service/internal/service"

	"github.com/shopspring/decimal"
)

// The storefront and the legacy widget send the same fields under different
// names (order_id vs orderId, etc). Wire shapes below accept every alias and
// normalization produces exactly one typed request before any business logic
// runs. Client-supplied amounts are accepted in the body and then dropped.

type checkoutBody struct {
	ProductID    int64                  `json:"product_id"`
	ProductIDAlt int64                  `json:"productId"`
	Provider     string                 `json:"provider"`
	Email        string                 `json:"email"`
	Addons       []models.SelectedAddon `json:"addons"`
	Coupon       string                 `json:"coupon"`
	CouponCode   string                 `json:"coupon_code"`
	Currency     string                 `json:"currency"`
	SuccessURL   string                 `json:"success_url"`
	CancelURL    string                 `json:"cancel_url"`

	Type       string           `json:"type"`
	OrderID    string           `json:"order_id"`
	OrderIDAlt string           `json:"orderId"`
	TipAmount  *decimal.Decimal `json:"tip_amount"`
	TipAlt     *decimal.Decimal `json:"tipAmount"`

	// Ignored on purpose; the server recomputes the price.
	Amount *decimal.Decimal `json:"amount"`
}

func (b *checkoutBody) normalize() (*service.OpenSessionRequest, error) {
	req := &service.OpenSessionRequest{
		ProductID:  firstInt64(b.ProductID, b.ProductIDAlt),
		Provider:   strings.ToLower(strings.TrimSpace(b.Provider)),
		Email:      strings.TrimSpace(b.Email),
		Addons:     b.Addons,
		CouponCode: firstString(b.Coupon, b.CouponCode),
		Currency:   strings.ToUpper(strings.TrimSpace(b.Currency)),
		SuccessURL: b.SuccessURL,
		CancelURL:  b.CancelURL,
		Type:       strings.ToLower(strings.TrimSpace(b.Type)),
		OrderID:    firstString(b.OrderID, b.OrderIDAlt),
	}

	if tip := firstDecimal(b.TipAmount, b.TipAlt); tip != nil {
		req.TipAmount = *tip
	}

	if req.Provider == "" {
		return nil, fmt.Errorf("%w: provider is required", models.ErrMalformedPayload)
	}
	if req.Type == models.MetadataTypeTip {
		if req.OrderID == "" {
			return nil, fmt.Errorf("%w: tip checkout requires an order id", models.ErrMalformedPayload)
		}
	} else if req.ProductID == 0 {
		return nil, fmt.Errorf("%w: product_id is required", models.ErrMalformedPayload)
	}
	return req, nil
}

type captureBody struct {
	OrderID    string `json:"order_id"`
	OrderIDAlt string `json:"orderId"`
	IDAlt      string `json:"id"`
	Email      string `json:"email"`
}

// captureRequest is the canonical capture confirmation.
type captureRequest struct {
	OrderID string
	Email   string
}

func (b *captureBody) normalize() (*captureRequest, error) {
	id := firstString(b.OrderID, b.OrderIDAlt, b.IDAlt)
	if id == "" {
		return nil, fmt.Errorf("%w: order id is required", models.ErrMalformedPayload)
	}
	return &captureRequest{
		OrderID: id,
		Email:   strings.TrimSpace(b.Email),
	}, nil
}

type paddleWebhookBody struct {
	EventType     string `json:"event_type"`
	CheckoutID    string `json:"checkout_id"`
	CheckoutIDAlt string `json:"checkoutId"`
	ProductID     int64  `json:"product_id"`
	Email         string `json:"email"`

	// Paddle sends amounts as strings, older webhook versions as numbers;
	// decimal accepts both.
	Amount *decimal.Decimal `json:"amount"`
}

func (b *paddleWebhookBody) toEvent() *service.ReconcileEvent {
	ev := &service.ReconcileEvent{
		Provider:      "paddle",
		CorrelationID: firstString(b.CheckoutID, b.CheckoutIDAlt),
		ProductID:     b.ProductID,
		Email:         strings.TrimSpace(b.Email),
	}
	if b.Amount != nil {
		ev.Amount = decimal.NullDecimal{Decimal: *b.Amount, Valid: true}
	}
	return ev
}

func firstString(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstInt64(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstDecimal(values ...*decimal.Decimal) *decimal.Decimal {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
