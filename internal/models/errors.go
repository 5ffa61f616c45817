package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the reconciliation taxonomy. Handlers map these onto
// HTTP statuses; anything else is an internal error.
var (
	// ErrInvalidProduct: product missing, or its price is not a finite
	// non-negative number.
	ErrInvalidProduct = errors.New("invalid product")

	// ErrInvalidSignature: webhook HMAC missing or mismatched while a
	// secret is configured.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedPayload: request or event body is not parseable JSON.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrSessionNotFound: no checkout session for the given checkout id.
	ErrSessionNotFound = errors.New("checkout session not found")

	// ErrOrderNotFound: no order for the given order id.
	ErrOrderNotFound = errors.New("order not found")
)

// ProviderError is a non-2xx reply from a payment provider API, with the
// provider's message passed through when it was extractable.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: request failed with status %d", e.Provider, e.StatusCode)
}

// NotFound reports whether the provider said the resource does not exist.
// Advisory deletes treat this as success.
func (e *ProviderError) NotFound() bool {
	return e.StatusCode == 404
}
