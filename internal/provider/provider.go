// Package provider wraps the payment provider REST APIs this service talks
// to. Both clients normalize provider error shapes into *models.ProviderError
// and use bearer-token auth with a fixed request timeout, so a hung provider
// turns into a reported error instead of a stuck handler.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
)

const requestTimeout = 10 * time.Second

// CheckoutRequest is what a provider needs to host a checkout page.
type CheckoutRequest struct {
	ProductID  int64
	Title      string
	Amount     decimal.Decimal
	Currency   string
	Email      string
	SuccessURL string
	CancelURL  string
}

// Checkout is the provider-side resource backing a pending session.
type Checkout struct {
	ID     string
	PlanID string
	URL    string
}

// Client is the provider surface the checkout and sweep flows depend on.
type Client interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	// DeleteCheckout hides or removes the provider-side resource so a stale
	// checkout link cannot be paid twice. Advisory; not-found is fine.
	DeleteCheckout(ctx context.Context, checkoutID, planID string) error
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: requestTimeout}
}

// doJSON performs one authenticated JSON round trip and decodes the reply
// into out (when non-nil). Non-2xx replies become *models.ProviderError with
// the provider's message passed through when parseable.
func doJSON(ctx context.Context, hc *http.Client, providerName, method, url, token string, body, out interface{}) error {
	start := time.Now()
	defer func() {
		util.ProviderRequestLatency.WithLabelValues(providerName, method+" "+url).Observe(time.Since(start).Seconds())
	}()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s request: %w", providerName, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", providerName, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", providerName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &models.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    extractMessage(raw),
		}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", providerName, err)
		}
	}
	return nil
}

// extractMessage digs a human-readable message out of provider error bodies.
// Shapes differ per provider; unknown shapes yield an empty message.
func extractMessage(raw []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   struct {
			Detail string `json:"detail"`
		} `json:"error"`
		Details []struct {
			Description string `json:"description"`
		} `json:"details"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	if envelope.Message != "" {
		return envelope.Message
	}
	if envelope.Error.Detail != "" {
		return envelope.Error.Detail
	}
	if len(envelope.Details) > 0 {
		return envelope.Details[0].Description
	}
	return ""
}
