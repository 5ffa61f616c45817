package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/provider"
	"checkout-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore embeds the interface so only the methods the webhook path
// touches need implementations; anything else panics loudly.
type stubStore struct {
	service.Store
	products map[int64]*models.Product
	sessions map[string]*models.CheckoutSession
	orders   []*models.Order
}

func (s *stubStore) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	return p, nil
}

func (s *stubStore) GetSessionByCheckoutID(_ context.Context, id string) (*models.CheckoutSession, error) {
	return s.sessions[id], nil
}

func (s *stubStore) CompleteSession(_ context.Context, id string) error {
	if sess, ok := s.sessions[id]; ok {
		sess.Status = models.SessionStatusCompleted
	}
	return nil
}

func (s *stubStore) CreateOrderIfAbsent(_ context.Context, order *models.Order, _ time.Duration) (*models.Order, bool, error) {
	for _, existing := range s.orders {
		if existing.CorrelationID != nil && order.CorrelationID != nil &&
			*existing.CorrelationID == *order.CorrelationID {
			return existing, false, nil
		}
	}
	order.CreatedAt = time.Now()
	s.orders = append(s.orders, order)
	return order, true, nil
}

func (s *stubStore) EncodeOrderPayload(payload models.OrderPayload) (string, error) {
	b, err := json.Marshal(payload)
	return string(b), err
}

type dropPublisher struct{}

func (dropPublisher) PublishOrderCreated(context.Context, *models.OrderCreatedEvent) error { return nil }
func (dropPublisher) PublishTipRecorded(context.Context, *models.TipRecordedEvent) error  { return nil }
func (dropPublisher) PublishSessionArchived(context.Context, *models.SessionArchivedEvent) error {
	return nil
}

func newWebhookRouter(t *testing.T, secret string) (*gin.Engine, *stubStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := &stubStore{
		products: map[int64]*models.Product{7: {ID: 7, Title: "Logo", DeliveryDays: "1"}},
		sessions: map[string]*models.CheckoutSession{
			"chk_abc123": {
				CheckoutID: "chk_abc123",
				Provider:   "paddle",
				ProductID:  7,
				Status:     models.SessionStatusPending,
				Metadata: models.SessionMetadata{
					Email:           "buyer@example.com",
					Amount:          decimal.RequireFromString("25.00"),
					DeliveryMinutes: 1440,
				}.Encode(),
				ExpiresAt: time.Now().Add(15 * time.Minute),
			},
		},
	}

	paddle := provider.NewPaddleClient("http://paddle.invalid", "", secret)
	reconcile := service.NewReconcileService(st,
		map[string]provider.Client{}, // no cleanup client; advisory only
		dropPublisher{}, nil,
		service.ReconcileConfig{DedupWindow: 5 * time.Minute, FallbackDeliveryMinutes: 60})

	router := gin.New()
	handler := NewHandler(nil, reconcile, nil, paddle)
	handler.SetupRoutes(router)
	return router, st
}

func postWebhook(router *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paddle", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("Paddle-Signature", signature)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func hexSign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaddleWebhookDuplicateDelivery(t *testing.T) {
	router, st := newWebhookRouter(t, "whsec_test")
	body := []byte(`{"event_type":"checkout.completed","checkout_id":"chk_abc123"}`)
	signature := hexSign("whsec_test", body)

	first := postWebhook(router, body, signature)
	require.Equal(t, http.StatusOK, first.Code)

	var firstResp struct {
		Received  bool   `json:"received"`
		Duplicate bool   `json:"duplicate"`
		OrderID   string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	assert.True(t, firstResp.Received)
	assert.False(t, firstResp.Duplicate)

	// Provider retries the exact same event.
	second := postWebhook(router, body, signature)
	require.Equal(t, http.StatusOK, second.Code, "duplicates still report success")

	var secondResp struct {
		Duplicate bool   `json:"duplicate"`
		OrderID   string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	assert.True(t, secondResp.Duplicate)
	assert.Equal(t, firstResp.OrderID, secondResp.OrderID)

	assert.Len(t, st.orders, 1, "exactly one order per payment event")
}

func TestPaddleWebhookRejectsBadSignature(t *testing.T) {
	router, st := newWebhookRouter(t, "whsec_test")
	body := []byte(`{"checkout_id":"chk_abc123"}`)

	rec := postWebhook(router, body, hexSign("wrong-secret", body))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postWebhook(router, body, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing signature with configured secret")

	assert.Empty(t, st.orders, "rejected events are not processed")
}

func TestPaddleWebhookNoSecretConfigured(t *testing.T) {
	// Unconfigured deployments process events unverified.
	router, st := newWebhookRouter(t, "")
	body := []byte(`{"checkout_id":"chk_abc123"}`)

	rec := postWebhook(router, body, "some-unchecked-signature")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, st.orders, 1)
}

func TestPaddleWebhookMalformedBody(t *testing.T) {
	router, _ := newWebhookRouter(t, "")

	rec := postWebhook(router, []byte(`{not json`), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
