package pricing

import (
	"regexp"
	"strconv"

	"checkout-service/internal/models"
)

// instantDeliveryMinutes is what "instant" means for fulfillment: fast, but
// with a buffer so the deadline is never literally now.
const instantDeliveryMinutes = 60

var firstNumber = regexp.MustCompile(`\d+`)

// ComputeDeliveryMinutes maps a product's delivery settings into a deadline
// in minutes. Malformed data degrades to fallbackMinutes, never an error:
// fulfillment deadlines must not be blocked by bad catalog rows.
func ComputeDeliveryMinutes(p *models.Product, fallbackMinutes int) int {
	if fallbackMinutes <= 0 {
		fallbackMinutes = instantDeliveryMinutes
	}
	if p == nil {
		return fallbackMinutes
	}

	if p.InstantDelivery.Bool() {
		return instantDeliveryMinutes
	}

	// delivery_days is free text ("3", "3 days", "ships in 3 days");
	// the first integer wins.
	if m := firstNumber.FindString(p.DeliveryDays); m != "" {
		if days, err := strconv.Atoi(m); err == nil && days > 0 {
			return days * 24 * 60
		}
	}

	return fallbackMinutes
}
