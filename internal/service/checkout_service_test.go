package service

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/cache"
	"checkout-service/internal/models"
	"checkout-service/internal/pricing"
	"checkout-service/internal/provider"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noCoupons struct{}

func (noCoupons) GetCouponByCode(context.Context, string) (*models.Coupon, error) {
	return nil, nil
}

func newCheckoutService(st *fakeStore, pub *fakePublisher, prov *fakeProvider) *CheckoutService {
	engine := pricing.NewEngine(st, noCoupons{})
	return NewCheckoutService(st, engine,
		map[string]provider.Client{prov.name: prov},
		pub,
		cache.New(5*time.Second, nil),
		CheckoutConfig{
			SessionTTL:              map[string]time.Duration{prov.name: 15 * time.Minute},
			FallbackDeliveryMinutes: 60,
			SweepBatchLimit:         50,
		})
}

func TestOpenSessionPersistsServerComputedMetadata(t *testing.T) {
	st := newFakeStore()
	st.products[1] = &models.Product{
		ID:           1,
		Title:        "Logo design",
		BasePrice:    decimal.NewFromInt(20),
		DeliveryDays: "3",
		AddonsJSON:   `[{"field":"rush","options":[{"name":"yes","price":5}]}]`,
	}
	prov := &fakeProvider{name: "paddle"}
	svc := newCheckoutService(st, &fakePublisher{}, prov)

	resp, err := svc.OpenSession(context.Background(), &OpenSessionRequest{
		ProductID: 1,
		Provider:  "paddle",
		Email:     "buyer@example.com",
		Addons:    []models.SelectedAddon{{Field: "Rush", Value: "yes"}},
	})
	require.NoError(t, err)
	assert.True(t, resp.Amount.Equal(decimal.RequireFromString("25.00")))
	assert.NotEmpty(t, resp.CheckoutID)
	assert.NotEmpty(t, resp.URL)

	session := st.sessions[resp.CheckoutID]
	require.NotNil(t, session)
	assert.Equal(t, models.SessionStatusPending, session.Status)
	assert.True(t, session.ExpiresAt.After(time.Now().Add(14*time.Minute)))

	meta, err := models.DecodeSessionMetadata(session.Metadata)
	require.NoError(t, err)
	assert.True(t, meta.Amount.Equal(decimal.RequireFromString("25.00")),
		"session carries the pricing-engine amount, never a client value")
	assert.Equal(t, 3*24*60, meta.DeliveryMinutes)
	assert.Equal(t, "buyer@example.com", meta.Email)
}

func TestOpenSessionUnknownProvider(t *testing.T) {
	svc := newCheckoutService(newFakeStore(), &fakePublisher{}, &fakeProvider{name: "paddle"})

	_, err := svc.OpenSession(context.Background(), &OpenSessionRequest{
		ProductID: 1,
		Provider:  "checkfree",
	})
	assert.Error(t, err)
}

func TestOpenTipSession(t *testing.T) {
	st := newFakeStore()
	st.orders = append(st.orders, &models.Order{OrderID: "OD-123", ProductID: 1})
	svc := newCheckoutService(st, &fakePublisher{}, &fakeProvider{name: "paddle"})

	resp, err := svc.OpenSession(context.Background(), &OpenSessionRequest{
		Provider:  "paddle",
		Email:     "buyer@example.com",
		Type:      models.MetadataTypeTip,
		OrderID:   "OD-123",
		TipAmount: decimal.RequireFromString("5"),
	})
	require.NoError(t, err)
	assert.True(t, resp.Amount.Equal(decimal.NewFromInt(5)))

	meta, err := models.DecodeSessionMetadata(st.sessions[resp.CheckoutID].Metadata)
	require.NoError(t, err)
	assert.Equal(t, models.MetadataTypeTip, meta.Type)
	assert.Equal(t, "OD-123", meta.OrderID)

	// Tips against unknown orders are rejected up front.
	_, err = svc.OpenSession(context.Background(), &OpenSessionRequest{
		Provider:  "paddle",
		Type:      models.MetadataTypeTip,
		OrderID:   "OD-MISSING",
		TipAmount: decimal.NewFromInt(5),
	})
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestArchiveExpiredSessions(t *testing.T) {
	st := newFakeStore()
	pub := &fakePublisher{}
	prov := &fakeProvider{name: "paddle"}
	svc := newCheckoutService(st, pub, prov)

	st.sessions["chk_old"] = &models.CheckoutSession{
		CheckoutID: "chk_old", Provider: "paddle", PlanID: "plan_1",
		Status: models.SessionStatusPending, ExpiresAt: time.Now().Add(-time.Hour),
	}
	st.sessions["chk_live"] = &models.CheckoutSession{
		CheckoutID: "chk_live", Provider: "paddle",
		Status: models.SessionStatusPending, ExpiresAt: time.Now().Add(time.Hour),
	}

	archived, err := svc.ArchiveExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, archived)
	assert.Equal(t, models.SessionStatusArchived, st.sessions["chk_old"].Status)
	assert.Equal(t, models.SessionStatusPending, st.sessions["chk_live"].Status)
	assert.Equal(t, []string{"chk_old"}, prov.deletes)
	assert.Len(t, pub.archived, 1)
}

func TestArchiveLeavesSessionPendingOnProviderFailure(t *testing.T) {
	st := newFakeStore()
	prov := &fakeProvider{
		name:      "paddle",
		deleteErr: &models.ProviderError{Provider: "paddle", StatusCode: 500},
	}
	svc := newCheckoutService(st, &fakePublisher{}, prov)

	st.sessions["chk_stuck"] = &models.CheckoutSession{
		CheckoutID: "chk_stuck", Provider: "paddle",
		Status: models.SessionStatusPending, ExpiresAt: time.Now().Add(-time.Hour),
	}

	archived, err := svc.ArchiveExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, archived)
	assert.Equal(t, models.SessionStatusPending, st.sessions["chk_stuck"].Status,
		"left pending for the next sweep to retry")

	// A provider 404 means the resource is already gone; that counts as done.
	prov.deleteErr = &models.ProviderError{Provider: "paddle", StatusCode: 404}
	archived, err = svc.ArchiveExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, archived)
	assert.Equal(t, models.SessionStatusArchived, st.sessions["chk_stuck"].Status)
}

func TestListProductsUsesCache(t *testing.T) {
	st := newFakeStore()
	st.products[1] = &models.Product{ID: 1, Title: "Logo"}
	svc := newCheckoutService(st, &fakePublisher{}, &fakeProvider{name: "paddle"})

	first, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A write that bypasses the invalidation hook is invisible until the
	// TTL lapses; that is the documented best-effort contract.
	st.products[2] = &models.Product{ID: 2, Title: "Banner"}
	second, err := svc.ListProducts(context.Background())
	require.NoError(t, err)
	assert.Len(t, second, 1)
}
