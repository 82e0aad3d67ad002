package pricing

import (
	"context"
	"errors"
	"strings"
	"sync"

	"hostelcart/internal/backend"
	"hostelcart/internal/domain"
	"hostelcart/internal/metrics"
	"hostelcart/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrSuperseded means a preview response arrived after the cart changed
	// or after a newer request was issued; its numbers were discarded.
	ErrSuperseded = errors.New("preview superseded by a newer cart state")

	// ErrEmptyCoupon means apply was pressed with an empty coupon field.
	ErrEmptyCoupon = errors.New("coupon code is empty")
)

// State is the preview lifecycle: Unset -> Loading -> Valid -> Stale -> ...
type State int

const (
	StateUnset State = iota
	StateLoading
	StateValid
	StateStale
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	default:
		return "unset"
	}
}

// fingerprint is what a preview was computed against. A preview is valid
// only while the cart still matches it.
type fingerprint struct {
	subtotal float64
	coupon   string
}

// Engine holds at most one current pricing preview and guarantees a stale
// one is never reported as submittable. Ordering is "last mutation wins":
// requests are numbered, mutations record a cut-off, and any response whose
// request number is at or below the cut-off is thrown away.
type Engine struct {
	mu     sync.Mutex
	quoter domain.PreviewQuoter
	logger *zerolog.Logger

	state         State
	preview       *models.PricingPreview
	validFor      fingerprint
	lastReq       uint64
	invalidatedAt uint64
}

func NewEngine(quoter domain.PreviewQuoter, logger *zerolog.Logger) *Engine {
	return &Engine{
		quoter: quoter,
		logger: logger,
	}
}

// RequestPreview issues a pricing call for the given subtotal and coupon and
// transitions to Valid on success. A response that comes back after the cart
// changed, or after a newer request started, is discarded and reported as
// ErrSuperseded.
func (e *Engine) RequestPreview(ctx context.Context, subtotal float64, couponCode string) (*models.PricingPreview, error) {
	couponCode = strings.TrimSpace(couponCode)

	e.mu.Lock()
	e.state = StateLoading
	e.lastReq++
	reqID := e.lastReq
	e.mu.Unlock()

	preview, err := e.quoter.QuotePreview(ctx, subtotal, couponCode)

	e.mu.Lock()
	defer e.mu.Unlock()

	if reqID != e.lastReq {
		// A newer request owns the state now.
		metrics.IncPreviewDiscard()
		return nil, ErrSuperseded
	}
	if reqID <= e.invalidatedAt {
		// The cart mutated while this request was in flight.
		metrics.IncPreviewDiscard()
		if e.state == StateLoading {
			if e.preview != nil {
				e.state = StateStale
			} else {
				e.state = StateUnset
			}
		}
		return nil, ErrSuperseded
	}

	if err != nil {
		e.state = StateUnset
		e.preview = nil
		e.validFor = fingerprint{}
		if errors.Is(err, backend.ErrInvalidCoupon) {
			metrics.IncPreview("invalid_coupon")
		} else {
			metrics.IncPreview("error")
		}
		e.logger.Warn().Err(err).Float64("subtotal", subtotal).Msg("preview request failed")
		return nil, err
	}

	e.state = StateValid
	e.preview = preview
	e.validFor = fingerprint{subtotal: subtotal, coupon: couponCode}
	metrics.IncPreview("valid")

	copied := *preview
	return &copied, nil
}

// ApplyCoupon is the explicit "Apply" action. It fails closed: an empty
// field is rejected locally and an invalid code surfaces the backend error
// with no discount silently kept.
func (e *Engine) ApplyCoupon(ctx context.Context, subtotal float64, couponCode string) (*models.PricingPreview, error) {
	if strings.TrimSpace(couponCode) == "" {
		return nil, ErrEmptyCoupon
	}
	return e.RequestPreview(ctx, subtotal, couponCode)
}

// Invalidate is called by every cart mutation. A Valid preview becomes
// Stale; an in-flight request keeps loading but its eventual response will
// be discarded. The stale numbers stay readable for grayed-out display.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidatedAt = e.lastReq
	if e.state == StateValid {
		e.state = StateStale
	}
}

// Reset returns the engine to Unset, dropping any breakdown. Used after a
// successful submission.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidatedAt = e.lastReq
	e.state = StateUnset
	e.preview = nil
	e.validFor = fingerprint{}
}

// IsSubmittable reports whether checkout may proceed with the current preview.
func (e *Engine) IsSubmittable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateValid && e.preview != nil
}

// ValidFor additionally checks the preview was computed against the given
// subtotal. Belt and braces for the orchestrator: mutations already
// invalidate synchronously, but a mismatched fingerprint must never submit.
func (e *Engine) ValidFor(subtotal float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateValid && e.preview != nil && e.validFor.subtotal == subtotal
}

// Preview returns the last known breakdown (possibly stale) and the state.
func (e *Engine) Preview() (*models.PricingPreview, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preview == nil {
		return nil, e.state
	}
	copied := *e.preview
	return &copied, e.state
}

// CouponCode returns the coupon the current preview was computed with.
func (e *Engine) CouponCode() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validFor.coupon
}
