package provider

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// PayPalClient talks to the PayPal Orders v2 API. This is the
// client-confirmation-driven provider: the browser approves the order on the
// hosted page, then calls our capture endpoint, and we confirm server-side.
type PayPalClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewPayPalClient creates a PayPal API client
func NewPayPalClient(baseURL, token string) *PayPalClient {
	return &PayPalClient{
		baseURL: baseURL,
		token:   token,
		http:    newHTTPClient(),
	}
}

func (c *PayPalClient) Name() string { return "paypal" }

type paypalOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	Payer struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateCheckout creates a PayPal order and returns its approval URL.
func (c *PayPalClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"description": req.Title,
				"amount": map[string]string{
					"currency_code": req.Currency,
					"value":         req.Amount.StringFixed(2),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": req.SuccessURL,
			"cancel_url": req.CancelURL,
		},
	}

	var resp paypalOrderResponse
	if err := doJSON(ctx, c.http, c.Name(), http.MethodPost,
		c.baseURL+"/v2/checkout/orders", c.token, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("paypal returned no order id")
	}

	checkout := &Checkout{ID: resp.ID}
	for _, link := range resp.Links {
		if link.Rel == "approve" {
			checkout.URL = link.Href
		}
	}
	return checkout, nil
}

// CaptureResult is the normalized outcome of a capture call.
type CaptureResult struct {
	CorrelationID string
	Email         string
	Amount        decimal.Decimal
	Completed     bool
}

// CaptureOrder confirms an approved PayPal order server-side. The returned
// amount is informational only; the session's server-computed amount stays
// authoritative.
func (c *PayPalClient) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var resp paypalOrderResponse
	err := doJSON(ctx, c.http, c.Name(), http.MethodPost,
		fmt.Sprintf("%s/v2/checkout/orders/%s/capture", c.baseURL, orderID),
		c.token, struct{}{}, &resp)
	if err != nil {
		return nil, err
	}

	result := &CaptureResult{
		CorrelationID: resp.ID,
		Email:         resp.Payer.EmailAddress,
		Completed:     resp.Status == "COMPLETED",
	}
	if len(resp.PurchaseUnits) > 0 && len(resp.PurchaseUnits[0].Payments.Captures) > 0 {
		if amount, err := decimal.NewFromString(resp.PurchaseUnits[0].Payments.Captures[0].Amount.Value); err == nil {
			result.Amount = amount
		}
	}
	return result, nil
}

// DeleteCheckout is a no-op for PayPal: uncaptured orders expire on the
// provider side and cannot be captured afterwards.
func (c *PayPalClient) DeleteCheckout(ctx context.Context, checkoutID, planID string) error {
	return nil
}
