package pricing

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductSource looks up catalog rows.
type ProductSource interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// CouponSource looks up coupons by code, case-insensitively.
// Returns (nil, nil) when no such coupon exists.
type CouponSource interface {
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
}

// Engine recomputes order prices server-side. Client-submitted amounts are
// never trusted; whatever the Engine returns is what gets persisted.
type Engine struct {
	products ProductSource
	coupons  CouponSource
	logger   *zap.Logger
}

// NewEngine creates a pricing engine
func NewEngine(products ProductSource, coupons CouponSource) *Engine {
	return &Engine{
		products: products,
		coupons:  coupons,
		logger:   util.GetLogger(),
	}
}

// ComputePrice returns the authoritative price for a purchase: product sale
// or base price, plus matched add-on deltas, minus an applicable coupon,
// rounded to 2 decimal places.
//
// Add-on and coupon handling is deliberately lenient. Unmatched or malformed
// add-on selections contribute zero, and an invalid, expired or inapplicable
// coupon simply fails to discount. Rejecting a coupon with a user-facing
// error is a separate endpoint's job; by the time this runs the payment may
// already be authorized.
func (e *Engine) ComputePrice(ctx context.Context, productID int64, addons []models.SelectedAddon, couponCode string) (decimal.Decimal, error) {
	product, err := e.products.GetProductByID(ctx, productID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", models.ErrInvalidProduct, err)
	}
	if product == nil {
		return decimal.Zero, fmt.Errorf("%w: product %d missing", models.ErrInvalidProduct, productID)
	}

	price := product.BasePrice
	if product.SalePrice.Valid && !product.SalePrice.Decimal.IsZero() {
		price = product.SalePrice.Decimal
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: product %d has negative price", models.ErrInvalidProduct, productID)
	}

	total := price.Add(e.addonTotal(product, addons))

	if couponCode != "" {
		total = e.applyCoupon(ctx, total, couponCode)
	}

	return total.Round(2), nil
}

// addonTotal sums price deltas for selected add-ons that match the product's
// definitions by normalized field name or id.
func (e *Engine) addonTotal(product *models.Product, addons []models.SelectedAddon) decimal.Decimal {
	total := decimal.Zero
	if len(addons) == 0 {
		return total
	}

	defs := models.ParseAddonDefs(product.AddonsJSON)
	for _, sel := range addons {
		def := matchAddonDef(defs, sel.Field)
		if def == nil {
			continue
		}
		for _, opt := range def.Options {
			if strings.EqualFold(strings.TrimSpace(opt.Name), strings.TrimSpace(sel.Value)) {
				total = total.Add(opt.Price)
				break
			}
		}
	}
	return total
}

func (e *Engine) applyCoupon(ctx context.Context, total decimal.Decimal, code string) decimal.Decimal {
	coupon, err := e.coupons.GetCouponByCode(ctx, code)
	if err != nil {
		e.logger.Warn("Coupon lookup failed, skipping discount",
			zap.String("code", code),
			zap.Error(err))
		return total
	}
	if coupon == nil || coupon.Status != models.CouponStatusActive {
		return total
	}
	if total.LessThan(coupon.MinOrder) {
		return total
	}

	switch coupon.Type {
	case models.CouponTypePercent:
		total = total.Sub(total.Mul(coupon.Value).Div(decimal.NewFromInt(100)))
	case models.CouponTypeFixed:
		total = total.Sub(coupon.Value)
	default:
		return total
	}

	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func matchAddonDef(defs []models.AddonDef, field string) *models.AddonDef {
	key := NormalizeKey(field)
	if key == "" {
		return nil
	}
	for i := range defs {
		if NormalizeKey(defs[i].Field) == key || NormalizeKey(defs[i].ID) == key {
			return &defs[i]
		}
	}
	return nil
}

// NormalizeKey lowercases a field name and collapses runs of
// non-alphanumeric characters into single hyphens, so "Video Length"
// matches a definition keyed "video-length".
func NormalizeKey(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
