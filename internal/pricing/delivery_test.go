package pricing

import (
	"testing"

	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestComputeDeliveryMinutes(t *testing.T) {
	tests := []struct {
		name     string
		product  *models.Product
		fallback int
		want     int
	}{
		{
			name:     "instant flag string",
			product:  &models.Product{InstantDelivery: "1", DeliveryDays: "7"},
			fallback: 60,
			want:     60,
		},
		{
			name:     "instant flag bool text",
			product:  &models.Product{InstantDelivery: "true"},
			fallback: 60,
			want:     60,
		},
		{
			name:     "instant wins over stale delivery days",
			product:  &models.Product{InstantDelivery: "1", DeliveryDays: "30 days"},
			fallback: 60,
			want:     60,
		},
		{
			name:     "numeric days",
			product:  &models.Product{DeliveryDays: "3"},
			fallback: 60,
			want:     3 * 24 * 60,
		},
		{
			name:     "days embedded in free text",
			product:  &models.Product{DeliveryDays: "ships in 5 days"},
			fallback: 60,
			want:     5 * 24 * 60,
		},
		{
			name:     "empty falls back",
			product:  &models.Product{DeliveryDays: ""},
			fallback: 60,
			want:     60,
		},
		{
			name:     "garbage falls back",
			product:  &models.Product{DeliveryDays: "soon-ish"},
			fallback: 90,
			want:     90,
		},
		{
			name:     "zero days falls back",
			product:  &models.Product{DeliveryDays: "0"},
			fallback: 60,
			want:     60,
		},
		{
			name:     "instant flag zero is not truthy",
			product:  &models.Product{InstantDelivery: "0", DeliveryDays: "2"},
			fallback: 60,
			want:     2 * 24 * 60,
		},
		{
			name:     "nil product falls back",
			product:  nil,
			fallback: 60,
			want:     60,
		},
		{
			name:     "non-positive fallback still yields a floor",
			product:  &models.Product{DeliveryDays: "junk"},
			fallback: 0,
			want:     60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDeliveryMinutes(tt.product, tt.fallback)
			assert.Equal(t, tt.want, got)
			assert.Greater(t, got, 0, "delivery minutes must always be positive")
		})
	}
}
