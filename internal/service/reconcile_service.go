package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/pricing"
	"checkout-service/internal/provider"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	reconcileLockTTL = 30 * time.Second

	// processedMarkTTL only needs to outlive a provider's retry schedule;
	// the orders unique index covers everything beyond it.
	processedMarkTTL = time.Hour
)

// ReconcileConfig carries the knobs for payment-event reconciliation.
type ReconcileConfig struct {
	// DedupWindow bounds the product+email heuristic for events without a
	// correlation id. Heuristic only; the exact value is not load-bearing.
	DedupWindow             time.Duration
	FallbackDeliveryMinutes int
}

// ReconcileEvent is a normalized payment event from either ingress path
// (provider webhook or client-driven capture confirmation).
type ReconcileEvent struct {
	Provider      string
	CorrelationID string
	ProductID     int64
	Email         string
	Amount        decimal.NullDecimal
	Addons        []models.SelectedAddon
}

// ReconcileResult reports what reconciliation did with the event.
type ReconcileResult struct {
	OrderID   string `json:"order_id"`
	Duplicate bool   `json:"duplicate"`
	Tip       bool   `json:"tip,omitempty"`
}

// ReconcileService turns confirmed payment events into exactly one order
// each. Both ingress paths for the same payment funnel into Reconcile, which
// is why all the duplicate suppression lives here.
type ReconcileService struct {
	store     Store
	providers map[string]provider.Client
	publisher EventSink
	locker    Locker
	cfg       ReconcileConfig
	logger    *zap.Logger
}

// NewReconcileService creates a new reconciliation service. locker may be
// nil when redis is unavailable; the database guard still holds.
func NewReconcileService(
	store Store,
	providers map[string]provider.Client,
	publisher EventSink,
	locker Locker,
	cfg ReconcileConfig,
) *ReconcileService {
	return &ReconcileService{
		store:     store,
		providers: providers,
		publisher: publisher,
		locker:    locker,
		cfg:       cfg,
		logger:    util.GetLogger(),
	}
}

// Reconcile processes one confirmed payment event:
// session metadata merge, tip branch, duplicate-safe order creation,
// session completion and advisory provider-side cleanup.
func (s *ReconcileService) Reconcile(ctx context.Context, ev *ReconcileEvent) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "ReconcileService.Reconcile")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	if s.locker != nil && ev.CorrelationID != "" {
		acquired, err := s.locker.AcquireReconcileLock(ctx, ev.CorrelationID, reconcileLockTTL)
		if err != nil {
			s.logger.Warn("Reconcile lock unavailable, relying on database guard", zap.Error(err))
		} else if acquired {
			defer func() {
				_ = s.locker.ReleaseReconcileLock(context.Background(), ev.CorrelationID)
			}()
		} else {
			s.logger.Info("Concurrent reconcile for correlation id, proceeding",
				zap.String("correlation_id", ev.CorrelationID))
		}
	}

	if s.locker != nil && ev.CorrelationID != "" {
		processed, err := s.locker.IsEventProcessed(ctx, ev.CorrelationID)
		if err != nil {
			s.logger.Warn("Processed-mark lookup failed", zap.Error(err))
		} else if processed {
			if existing, err := s.store.FindOrderByCorrelationID(ctx, ev.CorrelationID); err == nil && existing != nil {
				util.DuplicateEventsTotal.WithLabelValues(ev.Provider, "processed_mark").Inc()
				s.logger.Info("Duplicate payment event short-circuited by processed mark",
					zap.String("provider", ev.Provider),
					zap.String("correlation_id", ev.CorrelationID))
				return &ReconcileResult{OrderID: existing.OrderID, Duplicate: true}, nil
			}
			// Mark with no visible order; let the database guard decide.
		}
	}

	meta, session := s.recoverMetadata(ctx, ev)

	if meta.Type == models.MetadataTypeTip {
		return s.applyTip(ctx, ev, meta)
	}

	if ev.ProductID == 0 {
		return nil, fmt.Errorf("%w: payment event carries no product", models.ErrMalformedPayload)
	}
	if meta.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: payment event carries negative amount", models.ErrMalformedPayload)
	}

	deliveryMinutes := meta.DeliveryMinutes
	if deliveryMinutes <= 0 {
		product, err := s.store.GetProductByID(ctx, ev.ProductID)
		if err != nil {
			s.logger.Warn("Product lookup for delivery deadline failed, using fallback",
				zap.Int64("product_id", ev.ProductID),
				zap.Error(err))
			product = nil
		}
		deliveryMinutes = pricing.ComputeDeliveryMinutes(product, s.cfg.FallbackDeliveryMinutes)
	}

	payload := models.OrderPayload{
		Email:         meta.Email,
		Amount:        meta.Amount,
		Addons:        meta.Addons,
		Provider:      ev.Provider,
		CorrelationID: ev.CorrelationID,
	}
	encoded, err := s.store.EncodeOrderPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order payload: %w", err)
	}

	order := &models.Order{
		OrderID:         newOrderID(ev.Provider),
		ProductID:       ev.ProductID,
		Status:          models.OrderStatusPaid,
		BuyerEmail:      meta.Email,
		EncryptedData:   encoded,
		DeliveryMinutes: deliveryMinutes,
	}
	if ev.CorrelationID != "" {
		correlationID := ev.CorrelationID
		order.CorrelationID = &correlationID
	}

	stored, created, err := s.store.CreateOrderIfAbsent(ctx, order, s.cfg.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.markProcessed(ctx, ev.CorrelationID)

	if !created {
		match := "correlation_id"
		if ev.CorrelationID == "" {
			match = "product_email_window"
		}
		util.DuplicateEventsTotal.WithLabelValues(ev.Provider, match).Inc()
		s.logger.Info("Duplicate payment event, already processed",
			zap.String("provider", ev.Provider),
			zap.String("correlation_id", ev.CorrelationID),
			zap.String("order_id", stored.OrderID))
		return &ReconcileResult{OrderID: stored.OrderID, Duplicate: true}, nil
	}

	util.OrdersReconciledTotal.WithLabelValues(ev.Provider).Inc()
	s.logger.Info("Order created from payment event",
		zap.String("provider", ev.Provider),
		zap.String("order_id", stored.OrderID),
		zap.String("correlation_id", ev.CorrelationID),
		zap.String("amount", meta.Amount.String()))

	if session != nil {
		if err := s.store.CompleteSession(ctx, session.CheckoutID); err != nil {
			s.logger.Warn("Failed to complete checkout session",
				zap.String("checkout_id", session.CheckoutID),
				zap.Error(err))
		}
	}

	s.cleanupProviderResource(ctx, ev, session)

	event := &models.OrderCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderCreated,
			Timestamp: time.Now(),
		},
		OrderID:         stored.OrderID,
		ProductID:       stored.ProductID,
		Provider:        ev.Provider,
		BuyerEmail:      meta.Email,
		Amount:          meta.Amount.String(),
		DeliveryMinutes: deliveryMinutes,
	}
	if err := s.publisher.PublishOrderCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
	}

	return &ReconcileResult{OrderID: stored.OrderID}, nil
}

// recoverMetadata merges the event payload with the stored session metadata.
// The session's server-computed amount, add-ons and delivery minutes always
// win over anything the event claims; lookup failures degrade silently to
// the event payload.
func (s *ReconcileService) recoverMetadata(ctx context.Context, ev *ReconcileEvent) (models.SessionMetadata, *models.CheckoutSession) {
	meta := models.SessionMetadata{
		Email:  ev.Email,
		Addons: ev.Addons,
	}
	if ev.Amount.Valid {
		meta.Amount = ev.Amount.Decimal
	}

	if ev.CorrelationID == "" {
		return meta, nil
	}

	session, err := s.store.GetSessionByCheckoutID(ctx, ev.CorrelationID)
	if err != nil {
		s.logger.Warn("Session lookup failed, using event payload as-is",
			zap.String("correlation_id", ev.CorrelationID),
			zap.Error(err))
		return meta, nil
	}
	if session == nil {
		return meta, nil
	}

	stored, err := models.DecodeSessionMetadata(session.Metadata)
	if err != nil {
		s.logger.Warn("Session metadata undecodable, using event payload as-is",
			zap.String("correlation_id", ev.CorrelationID),
			zap.Error(err))
		return meta, session
	}

	meta.Type = stored.Type
	meta.OrderID = stored.OrderID
	meta.Amount = stored.Amount
	if len(stored.Addons) > 0 {
		meta.Addons = stored.Addons
	}
	if stored.DeliveryMinutes > 0 {
		meta.DeliveryMinutes = stored.DeliveryMinutes
	}
	if stored.Email != "" {
		meta.Email = stored.Email
	}
	if ev.ProductID == 0 {
		ev.ProductID = session.ProductID
	}

	return meta, session
}

// applyTip tops up the target order's tip fields instead of creating a row.
// Tip increments have no uniqueness to lean on, so the processed mark is the
// only thing standing between a retry storm and a double-counted tip.
func (s *ReconcileService) applyTip(ctx context.Context, ev *ReconcileEvent, meta models.SessionMetadata) (*ReconcileResult, error) {
	if meta.OrderID == "" {
		return nil, fmt.Errorf("%w: tip event names no order", models.ErrMalformedPayload)
	}
	if !meta.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: tip event carries no amount", models.ErrMalformedPayload)
	}

	if s.locker != nil && ev.CorrelationID != "" {
		if processed, err := s.locker.IsEventProcessed(ctx, ev.CorrelationID); err == nil && processed {
			util.DuplicateEventsTotal.WithLabelValues(ev.Provider, "processed_mark").Inc()
			s.logger.Info("Duplicate tip event short-circuited by processed mark",
				zap.String("order_id", meta.OrderID),
				zap.String("correlation_id", ev.CorrelationID))
			return &ReconcileResult{OrderID: meta.OrderID, Duplicate: true, Tip: true}, nil
		}
	}

	if err := s.store.AddOrderTip(ctx, meta.OrderID, meta.Amount); err != nil {
		return nil, fmt.Errorf("failed to record tip: %w", err)
	}
	s.markProcessed(ctx, ev.CorrelationID)

	util.TipsRecordedTotal.Inc()
	s.logger.Info("Tip recorded",
		zap.String("order_id", meta.OrderID),
		zap.String("amount", meta.Amount.String()))

	if ev.CorrelationID != "" {
		if err := s.store.CompleteSession(ctx, ev.CorrelationID); err != nil {
			s.logger.Warn("Failed to complete tip session", zap.Error(err))
		}
	}

	event := &models.TipRecordedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeTipRecorded,
			Timestamp: time.Now(),
		},
		OrderID:  meta.OrderID,
		Provider: ev.Provider,
		Amount:   meta.Amount.String(),
	}
	if err := s.publisher.PublishTipRecorded(ctx, event); err != nil {
		s.logger.Error("Failed to publish TipRecorded event", zap.Error(err))
	}

	return &ReconcileResult{OrderID: meta.OrderID, Tip: true}, nil
}

// cleanupProviderResource deletes the paid checkout on the provider side so
// it cannot be paid again. Advisory: failures are logged, never surfaced.
// The duplicate guard is what actually protects correctness.
func (s *ReconcileService) cleanupProviderResource(ctx context.Context, ev *ReconcileEvent, session *models.CheckoutSession) {
	if ev.CorrelationID == "" {
		return
	}
	client, ok := s.providers[ev.Provider]
	if !ok {
		return
	}

	planID := ""
	if session != nil {
		planID = session.PlanID
	}
	if err := client.DeleteCheckout(ctx, ev.CorrelationID, planID); err != nil {
		var perr *models.ProviderError
		if errors.As(err, &perr) && perr.NotFound() {
			return
		}
		s.logger.Warn("Advisory provider cleanup failed",
			zap.String("provider", ev.Provider),
			zap.String("correlation_id", ev.CorrelationID),
			zap.Error(err))
	}
}

// markProcessed records the correlation id in redis so provider retries can
// be answered without touching the database. Best-effort.
func (s *ReconcileService) markProcessed(ctx context.Context, correlationID string) {
	if s.locker == nil || correlationID == "" {
		return
	}
	if err := s.locker.MarkEventProcessed(ctx, correlationID, processedMarkTTL); err != nil {
		s.logger.Warn("Failed to set processed mark",
			zap.String("correlation_id", correlationID),
			zap.Error(err))
	}
}

func newOrderID(providerName string) string {
	prefix := "OD"
	if len(providerName) >= 2 {
		prefix = strings.ToUpper(providerName[:2])
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.New().String()[:8]))
}
