package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

// CreateOrder inserts an order row without any duplicate checking.
// Reconciliation goes through CreateOrderIfAbsent instead.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_id, product_id, status, correlation_id, buyer_email,
			encrypted_data, delivery_time_minutes, archive_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.OrderID, order.ProductID, order.Status, order.CorrelationID,
		strings.ToLower(order.BuyerEmail), order.EncryptedData,
		order.DeliveryMinutes, order.ArchiveURL)
}

// GetOrderByOrderID retrieves an order by its opaque order id
func (s *Store) GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderByCorrelationID looks up an order already created for a provider
// checkout/session id. Returns (nil, nil) when there is none.
func (s *Store) FindOrderByCorrelationID(ctx context.Context, correlationID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE correlation_id = $1", correlationID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindRecentOrderByProductEmail finds an order for the same product and buyer
// created within the trailing window. This is the heuristic duplicate check
// for events that carry no correlation id.
func (s *Store) FindRecentOrderByProductEmail(ctx context.Context, productID int64, email string, window time.Duration) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		SELECT * FROM orders
		WHERE product_id = $1 AND buyer_email = LOWER($2) AND created_at > $3
		ORDER BY created_at DESC LIMIT 1`,
		productID, email, time.Now().Add(-window))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateOrderIfAbsent runs the duplicate check and the insert in one
// transaction. The correlation_id unique index makes the id-based check
// race-free; the product+email window heuristic stays best-effort.
// Returns the stored order and whether this call created it.
func (s *Store) CreateOrderIfAbsent(ctx context.Context, order *models.Order, window time.Duration) (*models.Order, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	if order.CorrelationID != nil && *order.CorrelationID != "" {
		var existing models.Order
		err = tx.GetContext(ctx, &existing,
			"SELECT * FROM orders WHERE correlation_id = $1", *order.CorrelationID)
		if err == nil {
			return &existing, false, nil
		}
		if err != sql.ErrNoRows {
			return nil, false, fmt.Errorf("failed to check correlation id: %w", err)
		}
	} else if order.BuyerEmail != "" {
		var existing models.Order
		err = tx.GetContext(ctx, &existing, `
			SELECT * FROM orders
			WHERE product_id = $1 AND buyer_email = LOWER($2) AND created_at > $3
			ORDER BY created_at DESC LIMIT 1`,
			order.ProductID, order.BuyerEmail, time.Now().Add(-window))
		if err == nil {
			return &existing, false, nil
		}
		if err != sql.ErrNoRows {
			return nil, false, fmt.Errorf("failed to check recent orders: %w", err)
		}
	}

	query := `
		INSERT INTO orders (order_id, product_id, status, correlation_id, buyer_email,
			encrypted_data, delivery_time_minutes, archive_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (correlation_id) DO NOTHING
		RETURNING id, created_at, updated_at`

	err = tx.GetContext(ctx, order, query,
		order.OrderID, order.ProductID, order.Status, order.CorrelationID,
		strings.ToLower(order.BuyerEmail), order.EncryptedData,
		order.DeliveryMinutes, order.ArchiveURL)
	if err == sql.ErrNoRows {
		// Lost the race to the other ingress path; surface the winner.
		// NULL correlation ids never conflict, so the pointer is set here.
		var existing models.Order
		if err := tx.GetContext(ctx, &existing,
			"SELECT * FROM orders WHERE correlation_id = $1", *order.CorrelationID); err != nil {
			return nil, false, fmt.Errorf("failed to load conflicting order: %w", err)
		}
		return &existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return order, true, nil
}

// UpdateOrderStatus updates order status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE order_id = $2",
		status, orderID)
	if err != nil {
		return err
	}
	return requireRow(res, orderID)
}

// AddOrderTip adds a tip amount onto an existing order
func (s *Store) AddOrderTip(ctx context.Context, orderID string, amount decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET tip_amount = COALESCE(tip_amount, 0) + $1, updated_at = NOW()
		WHERE order_id = $2`,
		amount, orderID)
	if err != nil {
		return err
	}
	return requireRow(res, orderID)
}

// MarkOrderDelivered records delivery and the fulfilled asset location
func (s *Store) MarkOrderDelivered(ctx context.Context, orderID, archiveURL string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, delivered_at = NOW(), archive_url = $2, updated_at = NOW()
		WHERE order_id = $3`,
		models.OrderStatusDelivered, archiveURL, orderID)
	if err != nil {
		return err
	}
	return requireRow(res, orderID)
}

// EncodeOrderPayload serializes the opaque blob column for a new order
func (s *Store) EncodeOrderPayload(payload models.OrderPayload) (string, error) {
	return s.codec.Encode(payload)
}

// DecodeOrderPayload decodes an order's opaque blob column
func (s *Store) DecodeOrderPayload(order *models.Order) (models.OrderPayload, error) {
	return s.codec.Decode(order.EncryptedData)
}

func requireRow(res sql.Result, orderID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrOrderNotFound, orderID)
	}
	return nil
}
