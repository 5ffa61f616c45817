package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/cache"
	"checkout-service/internal/models"
	"checkout-service/internal/pricing"
	"checkout-service/internal/provider"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const productsCacheKey = "products"

// CheckoutConfig carries the business knobs for the checkout flow.
type CheckoutConfig struct {
	SessionTTL              map[string]time.Duration
	FallbackDeliveryMinutes int
	SweepBatchLimit         int
}

// CheckoutService opens checkout sessions and sweeps expired ones.
type CheckoutService struct {
	store     Store
	pricing   *pricing.Engine
	providers map[string]provider.Client
	publisher EventSink
	cache     *cache.Cache
	cfg       CheckoutConfig
	logger    *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	store Store,
	pricingEngine *pricing.Engine,
	providers map[string]provider.Client,
	publisher EventSink,
	productCache *cache.Cache,
	cfg CheckoutConfig,
) *CheckoutService {
	return &CheckoutService{
		store:     store,
		pricing:   pricingEngine,
		providers: providers,
		publisher: publisher,
		cache:     productCache,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// OpenSessionRequest is a normalized request to start a checkout.
type OpenSessionRequest struct {
	ProductID  int64
	Provider   string
	Email      string
	Addons     []models.SelectedAddon
	CouponCode string
	Currency   string
	SuccessURL string
	CancelURL  string

	// Tip checkouts top up an existing order; the buyer picks the amount.
	Type      string
	OrderID   string
	TipAmount decimal.Decimal
}

// OpenSessionResponse is what the storefront needs to redirect the buyer.
type OpenSessionResponse struct {
	CheckoutID string          `json:"checkout_id"`
	URL        string          `json:"url"`
	Amount     decimal.Decimal `json:"amount"`
	ExpiresAt  time.Time       `json:"expires_at"`
}

// OpenSession computes the authoritative price and delivery deadline, creates
// the provider-side checkout, and persists the pending session so the
// metadata survives the round trip to the provider and back.
func (s *CheckoutService) OpenSession(ctx context.Context, req *OpenSessionRequest) (*OpenSessionResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.OpenSession")
	defer span.End()

	client, ok := s.providers[req.Provider]
	if !ok {
		util.CheckoutsFailedTotal.WithLabelValues(req.Provider, "unknown_provider").Inc()
		return nil, fmt.Errorf("unknown payment provider: %q", req.Provider)
	}

	var amount decimal.Decimal
	var deliveryMinutes int
	var title string

	if req.Type == models.MetadataTypeTip {
		if !req.TipAmount.IsPositive() {
			return nil, fmt.Errorf("%w: tip amount must be positive", models.ErrMalformedPayload)
		}
		if _, err := s.store.GetOrderByOrderID(ctx, req.OrderID); err != nil {
			return nil, fmt.Errorf("tip target: %w", err)
		}
		amount = req.TipAmount.Round(2)
		title = fmt.Sprintf("Tip for order %s", req.OrderID)
	} else {
		// The client may have sent an "amount"; it is ignored. Whatever
		// the pricing engine returns is what gets persisted.
		computed, err := s.pricing.ComputePrice(ctx, req.ProductID, req.Addons, req.CouponCode)
		if err != nil {
			util.CheckoutsFailedTotal.WithLabelValues(req.Provider, "invalid_product").Inc()
			return nil, err
		}
		amount = computed

		product, err := s.store.GetProductByID(ctx, req.ProductID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidProduct, err)
		}
		deliveryMinutes = pricing.ComputeDeliveryMinutes(product, s.cfg.FallbackDeliveryMinutes)
		title = product.Title
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}

	checkout, err := client.CreateCheckout(ctx, provider.CheckoutRequest{
		ProductID:  req.ProductID,
		Title:      title,
		Amount:     amount,
		Currency:   currency,
		Email:      req.Email,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues(req.Provider, "provider_error").Inc()
		return nil, err
	}

	metadata := models.SessionMetadata{
		Email:           req.Email,
		Addons:          req.Addons,
		Amount:          amount,
		DeliveryMinutes: deliveryMinutes,
		Type:            req.Type,
		OrderID:         req.OrderID,
	}

	session := &models.CheckoutSession{
		CheckoutID: checkout.ID,
		Provider:   req.Provider,
		ProductID:  req.ProductID,
		PlanID:     checkout.PlanID,
		Metadata:   metadata.Encode(),
		Status:     models.SessionStatusPending,
		ExpiresAt:  time.Now().Add(s.sessionTTL(req.Provider)),
	}
	if session.CheckoutID == "" {
		// Some providers issue no usable id until payment time; synthesize
		// a placeholder so the row is still addressable.
		session.CheckoutID = "local-" + uuid.New().String()
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist checkout session: %w", err)
	}

	util.CheckoutsOpenedTotal.WithLabelValues(req.Provider).Inc()
	s.logger.Info("Checkout session opened",
		zap.String("provider", req.Provider),
		zap.String("checkout_id", session.CheckoutID),
		zap.Int64("product_id", req.ProductID),
		zap.String("amount", amount.String()))

	return &OpenSessionResponse{
		CheckoutID: session.CheckoutID,
		URL:        checkout.URL,
		Amount:     amount,
		ExpiresAt:  session.ExpiresAt,
	}, nil
}

func (s *CheckoutService) sessionTTL(providerName string) time.Duration {
	if ttl, ok := s.cfg.SessionTTL[providerName]; ok && ttl > 0 {
		return ttl
	}
	return 15 * time.Minute
}

// ListProducts serves the catalog listing through the short-lived cache.
func (s *CheckoutService) ListProducts(ctx context.Context) ([]models.Product, error) {
	if cached, ok := s.cache.Get(productsCacheKey); ok {
		if products, ok := cached.([]models.Product); ok {
			return products, nil
		}
	}

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(productsCacheKey, products)
	return products, nil
}

// GetOrder retrieves an order by its opaque id
func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.store.GetOrderByOrderID(ctx, orderID)
}

// MarkDelivered records delivery of the fulfilled asset
func (s *CheckoutService) MarkDelivered(ctx context.Context, orderID, archiveURL string) error {
	return s.store.MarkOrderDelivered(ctx, orderID, archiveURL)
}

// RequestRevision flips an order into revision status
func (s *CheckoutService) RequestRevision(ctx context.Context, orderID string) error {
	return s.store.UpdateOrderStatus(ctx, orderID, models.OrderStatusRevision)
}

// ArchiveExpiredSessions sweeps a bounded batch of expired pending sessions.
// For each one it best-effort deletes the provider-side checkout so the
// stale link cannot be paid, then archives the row. Provider failures other
// than not-found leave the row pending; the next sweep retries it.
func (s *CheckoutService) ArchiveExpiredSessions(ctx context.Context) (int, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ArchiveExpiredSessions")
	defer span.End()

	sessions, err := s.store.ListExpiredPending(ctx, s.cfg.SweepBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired sessions: %w", err)
	}

	archived := 0
	for i := range sessions {
		session := &sessions[i]

		if client, ok := s.providers[session.Provider]; ok {
			if err := client.DeleteCheckout(ctx, session.CheckoutID, session.PlanID); err != nil {
				var perr *models.ProviderError
				if !errors.As(err, &perr) || !perr.NotFound() {
					util.SessionSweepFailures.WithLabelValues("provider_error").Inc()
					s.logger.Warn("Provider cleanup failed, leaving session pending",
						zap.String("checkout_id", session.CheckoutID),
						zap.String("provider", session.Provider),
						zap.Error(err))
					continue
				}
			}
		}

		if err := s.store.ArchiveSession(ctx, session.CheckoutID); err != nil {
			util.SessionSweepFailures.WithLabelValues("db_error").Inc()
			s.logger.Error("Failed to archive session",
				zap.String("checkout_id", session.CheckoutID),
				zap.Error(err))
			continue
		}

		archived++
		util.SessionsArchivedTotal.Inc()

		event := &models.SessionArchivedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeSessionArchived,
				Timestamp: time.Now(),
			},
			CheckoutID: session.CheckoutID,
			Provider:   session.Provider,
		}
		if err := s.publisher.PublishSessionArchived(ctx, event); err != nil {
			s.logger.Error("Failed to publish SessionArchived event", zap.Error(err))
		}
	}

	return archived, nil
}
