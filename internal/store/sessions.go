package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"checkout-service/internal/models"
)

// CreateSession persists a pending checkout session before the customer is
// sent to the provider's hosted page.
func (s *Store) CreateSession(ctx context.Context, session *models.CheckoutSession) error {
	query := `
		INSERT INTO checkout_sessions (checkout_id, provider, product_id, plan_id,
			metadata, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, session, query,
		session.CheckoutID, session.Provider, session.ProductID, session.PlanID,
		session.Metadata, session.Status, session.ExpiresAt)
}

// GetSessionByCheckoutID retrieves a session by the provider checkout id.
// Returns (nil, nil) when there is none; reconciliation degrades gracefully
// to whatever the event payload carries.
func (s *Store) GetSessionByCheckoutID(ctx context.Context, checkoutID string) (*models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := s.db.GetContext(ctx, &session,
		"SELECT * FROM checkout_sessions WHERE checkout_id = $1", checkoutID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CompleteSession marks a session completed once its order exists
func (s *Store) CompleteSession(ctx context.Context, checkoutID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET status = $1, updated_at = NOW()
		WHERE checkout_id = $2 AND status = $3`,
		models.SessionStatusCompleted, checkoutID, models.SessionStatusPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, checkoutID)
	}
	return nil
}

// ListExpiredPending returns a bounded batch of pending sessions whose
// expiry has passed, oldest first.
func (s *Store) ListExpiredPending(ctx context.Context, limit int) ([]models.CheckoutSession, error) {
	var sessions []models.CheckoutSession
	err := s.db.SelectContext(ctx, &sessions, `
		SELECT * FROM checkout_sessions
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at ASC LIMIT $3`,
		models.SessionStatusPending, time.Now(), limit)
	return sessions, err
}

// ArchiveSession marks an expired session archived
func (s *Store) ArchiveSession(ctx context.Context, checkoutID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE checkout_sessions
		SET status = $1, updated_at = NOW()
		WHERE checkout_id = $2`,
		models.SessionStatusArchived, checkoutID)
	return err
}
