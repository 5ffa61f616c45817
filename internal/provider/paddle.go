package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"checkout-service/internal/models"
)

// PaddleClient talks to a Paddle-style billing API. This is the
// webhook-driven provider: we create a plan and a hosted checkout up front,
// and learn about the completed payment from a signed webhook.
type PaddleClient struct {
	baseURL string
	token   string
	secret  string
	http    *http.Client
}

// NewPaddleClient creates a Paddle API client. secret is the shared webhook
// secret; empty disables signature verification.
func NewPaddleClient(baseURL, token, secret string) *PaddleClient {
	return &PaddleClient{
		baseURL: baseURL,
		token:   token,
		secret:  secret,
		http:    newHTTPClient(),
	}
}

func (c *PaddleClient) Name() string { return "paddle" }

// HasWebhookSecret reports whether signature verification is configured.
func (c *PaddleClient) HasWebhookSecret() bool { return c.secret != "" }

// CreateCheckout creates a single-use plan plus a hosted checkout for it.
func (c *PaddleClient) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	var planResp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	planBody := map[string]interface{}{
		"name":     req.Title,
		"amount":   req.Amount.StringFixed(2),
		"currency": strings.ToUpper(req.Currency),
	}
	if err := doJSON(ctx, c.http, c.Name(), http.MethodPost,
		c.baseURL+"/plans", c.token, planBody, &planResp); err != nil {
		return nil, err
	}
	if planResp.Data.ID == "" {
		return nil, fmt.Errorf("paddle returned no plan id")
	}

	var checkoutResp struct {
		Data struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		} `json:"data"`
	}
	checkoutBody := map[string]interface{}{
		"plan_id":     planResp.Data.ID,
		"email":       req.Email,
		"success_url": req.SuccessURL,
		"cancel_url":  req.CancelURL,
	}
	if err := doJSON(ctx, c.http, c.Name(), http.MethodPost,
		c.baseURL+"/checkouts", c.token, checkoutBody, &checkoutResp); err != nil {
		return nil, err
	}
	if checkoutResp.Data.ID == "" {
		return nil, fmt.Errorf("paddle returned no checkout id")
	}

	return &Checkout{
		ID:     checkoutResp.Data.ID,
		PlanID: planResp.Data.ID,
		URL:    checkoutResp.Data.URL,
	}, nil
}

// DeleteCheckout removes the checkout and its single-use plan so the stale
// link cannot be paid again. Callers treat a 404 as success.
func (c *PaddleClient) DeleteCheckout(ctx context.Context, checkoutID, planID string) error {
	if err := doJSON(ctx, c.http, c.Name(), http.MethodDelete,
		c.baseURL+"/checkouts/"+checkoutID, c.token, nil, nil); err != nil {
		return err
	}
	if planID != "" {
		if err := doJSON(ctx, c.http, c.Name(), http.MethodDelete,
			c.baseURL+"/plans/"+planID, c.token, nil, nil); err != nil {
			// The checkout is already gone; a leftover plan is harmless.
			if perr, ok := err.(*models.ProviderError); !ok || !perr.NotFound() {
				return err
			}
		}
	}
	return nil
}

// VerifyWebhookSignature checks the HMAC-SHA256 of the raw body against the
// header-supplied signature. With no secret configured it accepts anything;
// the caller logs that it ran unverified.
func (c *PaddleClient) VerifyWebhookSignature(body []byte, signature string) error {
	if c.secret == "" {
		return nil
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	if signature == "" {
		return fmt.Errorf("%w: missing signature header", models.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	supplied, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, supplied) {
		return fmt.Errorf("%w: signature mismatch", models.ErrInvalidSignature)
	}
	return nil
}
