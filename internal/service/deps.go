package service

import (
	"context"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// Store is the persistence surface the checkout and reconciliation flows
// depend on. *store.Store satisfies it; tests use in-memory fakes.
type Store interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)

	CreateSession(ctx context.Context, session *models.CheckoutSession) error
	GetSessionByCheckoutID(ctx context.Context, checkoutID string) (*models.CheckoutSession, error)
	CompleteSession(ctx context.Context, checkoutID string) error
	ListExpiredPending(ctx context.Context, limit int) ([]models.CheckoutSession, error)
	ArchiveSession(ctx context.Context, checkoutID string) error

	CreateOrderIfAbsent(ctx context.Context, order *models.Order, window time.Duration) (*models.Order, bool, error)
	GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	FindOrderByCorrelationID(ctx context.Context, correlationID string) (*models.Order, error)
	AddOrderTip(ctx context.Context, orderID string, amount decimal.Decimal) error
	UpdateOrderStatus(ctx context.Context, orderID, status string) error
	MarkOrderDelivered(ctx context.Context, orderID, archiveURL string) error

	EncodeOrderPayload(payload models.OrderPayload) (string, error)
}

// EventSink publishes domain events. *broker.EventPublisher satisfies it.
type EventSink interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishTipRecorded(ctx context.Context, event *models.TipRecordedEvent) error
	PublishSessionArchived(ctx context.Context, event *models.SessionArchivedEvent) error
}

// Locker narrows the dual-path reconcile race with short best-effort locks
// and processed-event marks. *redisclient.Client satisfies it.
type Locker interface {
	AcquireReconcileLock(ctx context.Context, correlationID string, ttl time.Duration) (bool, error)
	ReleaseReconcileLock(ctx context.Context, correlationID string) error
	MarkEventProcessed(ctx context.Context, correlationID string, ttl time.Duration) error
	IsEventProcessed(ctx context.Context, correlationID string) (bool, error)
}
