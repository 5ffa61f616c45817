package models

import "time"

// Event types
const (
	EventTypeOrderCreated    = "ORDER_CREATED"
	EventTypeTipRecorded     = "TIP_RECORDED"
	EventTypeSessionArchived = "SESSION_ARCHIVED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when reconciliation creates an order
type OrderCreatedEvent struct {
	BaseEvent
	OrderID         string `json:"order_id"`
	ProductID       int64  `json:"product_id"`
	Provider        string `json:"provider"`
	BuyerEmail      string `json:"buyer_email"`
	Amount          string `json:"amount"`
	DeliveryMinutes int    `json:"delivery_minutes"`
}

// TipRecordedEvent published when a tip payment tops up an existing order
type TipRecordedEvent struct {
	BaseEvent
	OrderID  string `json:"order_id"`
	Provider string `json:"provider"`
	Amount   string `json:"amount"`
}

// SessionArchivedEvent published when the sweeper archives an expired session
type SessionArchivedEvent struct {
	BaseEvent
	CheckoutID string `json:"checkout_id"`
	Provider   string `json:"provider"`
}
