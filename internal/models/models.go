package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Flag is a loosely-typed boolean as it appears in catalog rows imported
// from the legacy storefront: true, 1 and "1" are all truthy.
type Flag string

func (f *Flag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	*f = Flag(s)
	return nil
}

func (f *Flag) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*f = ""
	case bool:
		if v {
			*f = "1"
		} else {
			*f = "0"
		}
	case int64:
		*f = Flag(fmt.Sprintf("%d", v))
	case []byte:
		*f = Flag(v)
	case string:
		*f = Flag(v)
	default:
		return fmt.Errorf("unsupported flag type %T", value)
	}
	return nil
}

func (f Flag) Value() (driver.Value, error) {
	return string(f), nil
}

func (f Flag) Bool() bool {
	switch strings.ToLower(strings.TrimSpace(string(f))) {
	case "1", "true":
		return true
	}
	return false
}

// Product is a read-only catalog row. Pricing and delivery fields arrive
// in whatever shape the storefront admin saved them, so parsing is lenient.
type Product struct {
	ID              int64               `db:"id" json:"id"`
	Title           string              `db:"title" json:"title"`
	BasePrice       decimal.Decimal     `db:"base_price" json:"base_price"`
	SalePrice       decimal.NullDecimal `db:"sale_price" json:"sale_price,omitempty"`
	InstantDelivery Flag                `db:"instant_delivery" json:"instant_delivery"`
	DeliveryDays    string              `db:"delivery_days" json:"delivery_days"`
	AddonsJSON      string              `db:"addons" json:"-"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
}

// AddonOption is one selectable value of a product add-on with its price delta.
type AddonOption struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// AddonDef is a product add-on definition: a named field with priced options.
type AddonDef struct {
	ID      string        `json:"id"`
	Field   string        `json:"field"`
	Options []AddonOption `json:"options"`
}

// ParseAddonDefs decodes the serialized add-on definitions of a product.
// Malformed JSON yields an empty set, never an error: add-on schemas evolve
// independently of historical orders.
func ParseAddonDefs(raw string) []AddonDef {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var defs []AddonDef
	if err := json.Unmarshal([]byte(raw), &defs); err != nil {
		return nil
	}
	return defs
}

// SelectedAddon is a buyer's choice for one add-on field.
type SelectedAddon struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Checkout session statuses
const (
	SessionStatusPending   = "pending"
	SessionStatusCompleted = "completed"
	SessionStatusArchived  = "archived"
)

// CheckoutSession records a pending external checkout before the customer
// completes payment, so server-computed metadata survives the round trip to
// the provider and back.
type CheckoutSession struct {
	ID         int64     `db:"id" json:"id"`
	CheckoutID string    `db:"checkout_id" json:"checkout_id"`
	Provider   string    `db:"provider" json:"provider"`
	ProductID  int64     `db:"product_id" json:"product_id"`
	PlanID     string    `db:"plan_id" json:"plan_id,omitempty"`
	Metadata   string    `db:"metadata" json:"-"`
	Status     string    `db:"status" json:"status"`
	ExpiresAt  time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// SessionMetadata is the decoded metadata column of a CheckoutSession.
// Amount and DeliveryMinutes are authoritative: they were computed
// server-side when the session was opened.
type SessionMetadata struct {
	Email           string          `json:"email"`
	Addons          []SelectedAddon `json:"addons,omitempty"`
	Amount          decimal.Decimal `json:"amount"`
	DeliveryMinutes int             `json:"delivery_minutes"`
	Type            string          `json:"type,omitempty"`
	OrderID         string          `json:"order_id,omitempty"`
}

func (m SessionMetadata) Encode() string {
	b, _ := json.Marshal(m)
	return string(b)
}

func DecodeSessionMetadata(raw string) (SessionMetadata, error) {
	var m SessionMetadata
	err := json.Unmarshal([]byte(raw), &m)
	return m, err
}

// MetadataTypeTip marks a payment that tops up an existing order instead of
// creating a new one.
const MetadataTypeTip = "tip"

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCompleted = "completed"
	OrderStatusDelivered = "delivered"
	OrderStatusRevision  = "revision"
)

// Order is one paid purchase. The buyer payload lives in an opaque blob
// column; correlation_id and buyer_email are lifted out of it for the
// duplicate checks.
type Order struct {
	ID              int64               `db:"id" json:"id"`
	OrderID         string              `db:"order_id" json:"order_id"`
	ProductID       int64               `db:"product_id" json:"product_id"`
	Status          string              `db:"status" json:"status"`
	CorrelationID   *string             `db:"correlation_id" json:"correlation_id,omitempty"`
	BuyerEmail      string              `db:"buyer_email" json:"buyer_email"`
	EncryptedData   string              `db:"encrypted_data" json:"-"`
	TipAmount       decimal.NullDecimal `db:"tip_amount" json:"tip_amount,omitempty"`
	DeliveryMinutes int                 `db:"delivery_time_minutes" json:"delivery_time_minutes"`
	DeliveredAt     *time.Time          `db:"delivered_at" json:"delivered_at,omitempty"`
	ArchiveURL      string              `db:"archive_url" json:"archive_url,omitempty"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// OrderPayload is the decoded form of the opaque order blob.
type OrderPayload struct {
	Email         string          `json:"email"`
	Amount        decimal.Decimal `json:"amount"`
	Addons        []SelectedAddon `json:"addons,omitempty"`
	Provider      string          `json:"provider"`
	CorrelationID string          `json:"correlation_id"`
}

// Coupon statuses
const (
	CouponStatusActive = "active"
)

// Coupon types
const (
	CouponTypePercent = "percent"
	CouponTypeFixed   = "fixed"
)

// Coupon is a discount row. Lookup is case-insensitive on Code.
type Coupon struct {
	ID       int64           `db:"id" json:"id"`
	Code     string          `db:"code" json:"code"`
	Status   string          `db:"status" json:"status"`
	Type     string          `db:"type" json:"type"`
	Value    decimal.Decimal `db:"value" json:"value"`
	MinOrder decimal.Decimal `db:"min_order" json:"min_order"`
}
