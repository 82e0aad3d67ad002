package pricing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"hostelcart/internal/backend"
	"hostelcart/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuoter struct {
	mu      sync.Mutex
	gate    chan struct{}
	err     error
	taxRate float64
	coupons map[string]float64
}

func newFakeQuoter() *fakeQuoter {
	return &fakeQuoter{taxRate: 0.10, coupons: map[string]float64{}}
}

func (q *fakeQuoter) QuotePreview(ctx context.Context, subtotal float64, couponCode string) (*models.PricingPreview, error) {
	if q.gate != nil {
		<-q.gate
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return nil, q.err
	}

	preview := &models.PricingPreview{
		BaseAmount: subtotal,
		Tax:        subtotal * q.taxRate,
		TaxPercent: q.taxRate * 100,
	}
	if couponCode != "" {
		discount, ok := q.coupons[couponCode]
		if !ok {
			return nil, backend.ErrInvalidCoupon
		}
		preview.CouponCode = couponCode
		preview.CouponDiscount = discount
		preview.CouponApplied = true
	}
	preview.TotalAmount = preview.BaseAmount + preview.Tax - preview.CouponDiscount
	return preview, nil
}

func newTestEngine(quoter *fakeQuoter) *Engine {
	logger := zerolog.New(io.Discard)
	return NewEngine(quoter, &logger)
}

func TestRequestPreviewBecomesValid(t *testing.T) {
	engine := newTestEngine(newFakeQuoter())

	preview, err := engine.RequestPreview(context.Background(), 2000, "")
	require.NoError(t, err)
	assert.Equal(t, 2200.0, preview.TotalAmount)
	assert.True(t, engine.IsSubmittable())
	assert.True(t, engine.ValidFor(2000))
	assert.False(t, engine.ValidFor(3000), "preview is bound to the subtotal it was computed for")

	_, state := engine.Preview()
	assert.Equal(t, StateValid, state)
}

func TestInvalidateMakesPreviewStale(t *testing.T) {
	engine := newTestEngine(newFakeQuoter())

	_, err := engine.RequestPreview(context.Background(), 2000, "")
	require.NoError(t, err)
	require.True(t, engine.IsSubmittable())

	engine.Invalidate()

	assert.False(t, engine.IsSubmittable())
	preview, state := engine.Preview()
	assert.Equal(t, StateStale, state)
	require.NotNil(t, preview, "stale numbers stay readable for grayed-out display")
	assert.Equal(t, 2200.0, preview.TotalAmount)
}

func TestInFlightResponseDiscardedAfterMutation(t *testing.T) {
	quoter := newFakeQuoter()
	quoter.gate = make(chan struct{})
	engine := newTestEngine(quoter)

	done := make(chan error, 1)
	go func() {
		_, err := engine.RequestPreview(context.Background(), 2000, "")
		done <- err
	}()

	// The cart mutates while the preview request is still in flight.
	time.Sleep(20 * time.Millisecond)
	engine.Invalidate()
	close(quoter.gate)

	err := <-done
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.False(t, engine.IsSubmittable(), "a slow stale response must not re-validate a changed cart")
}

func TestNewerRequestSupersedesOlder(t *testing.T) {
	quoter := newFakeQuoter()
	quoter.gate = make(chan struct{})
	engine := newTestEngine(quoter)

	first := make(chan error, 1)
	go func() {
		_, err := engine.RequestPreview(context.Background(), 1000, "")
		first <- err
	}()

	time.Sleep(20 * time.Millisecond)

	second := make(chan error, 1)
	go func() {
		_, err := engine.RequestPreview(context.Background(), 3000, "")
		second <- err
	}()

	time.Sleep(20 * time.Millisecond)
	close(quoter.gate)

	errs := []error{<-first, <-second}
	var superseded, succeeded int
	for _, err := range errs {
		switch {
		case errors.Is(err, ErrSuperseded):
			superseded++
		case err == nil:
			succeeded++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, superseded)
	assert.Equal(t, 1, succeeded)
}

func TestRequestPreviewFailureResetsToUnset(t *testing.T) {
	quoter := newFakeQuoter()
	quoter.err = errors.New("pricing service down")
	engine := newTestEngine(quoter)

	_, err := engine.RequestPreview(context.Background(), 2000, "")
	require.Error(t, err)
	assert.False(t, engine.IsSubmittable())

	preview, state := engine.Preview()
	assert.Equal(t, StateUnset, state)
	assert.Nil(t, preview)
}

func TestApplyCoupon(t *testing.T) {
	quoter := newFakeQuoter()
	quoter.coupons["SAVE10"] = 300
	engine := newTestEngine(quoter)
	ctx := context.Background()

	t.Run("empty code fails locally", func(t *testing.T) {
		_, err := engine.ApplyCoupon(ctx, 3000, "   ")
		assert.ErrorIs(t, err, ErrEmptyCoupon)
	})

	t.Run("valid code applies discount", func(t *testing.T) {
		preview, err := engine.ApplyCoupon(ctx, 3000, "SAVE10")
		require.NoError(t, err)
		assert.True(t, preview.CouponApplied)
		assert.Equal(t, 3000.0, preview.TotalAmount)
		assert.Equal(t, "SAVE10", engine.CouponCode())
		assert.True(t, engine.IsSubmittable())
	})

	t.Run("invalid code fails closed", func(t *testing.T) {
		_, err := engine.ApplyCoupon(ctx, 3000, "EXPIRED")
		assert.ErrorIs(t, err, backend.ErrInvalidCoupon)
		assert.False(t, engine.IsSubmittable(), "no discount silently kept after a rejected code")
	})
}

func TestReset(t *testing.T) {
	engine := newTestEngine(newFakeQuoter())

	_, err := engine.RequestPreview(context.Background(), 500, "")
	require.NoError(t, err)
	require.True(t, engine.IsSubmittable())

	engine.Reset()

	assert.False(t, engine.IsSubmittable())
	preview, state := engine.Preview()
	assert.Equal(t, StateUnset, state)
	assert.Nil(t, preview)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unset", StateUnset.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "valid", StateValid.String())
	assert.Equal(t, "stale", StateStale.String())
}
