package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hostelcart/internal/backend"
	"hostelcart/internal/cart"
	"hostelcart/internal/domain"
	"hostelcart/internal/events"
	"hostelcart/internal/metrics"
	"hostelcart/internal/models"
	"hostelcart/internal/pricing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Orchestrator is the single choke point that turns a priced cart into one
// atomic order. On success the cart and preview are cleared; on failure both
// are left untouched so the user can adjust and retry.
type Orchestrator struct {
	sessionID string
	cart      *cart.Store
	engine    *pricing.Engine
	creator   domain.OrderCreator
	journal   domain.SubmissionJournal
	auth      domain.Authorizer
	bus       domain.EventPublisher
	logger    *zerolog.Logger

	mu    sync.Mutex
	token string
}

func NewOrchestrator(
	sessionID string,
	cartStore *cart.Store,
	engine *pricing.Engine,
	creator domain.OrderCreator,
	journal domain.SubmissionJournal,
	auth domain.Authorizer,
	bus domain.EventPublisher,
	logger *zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessionID: sessionID,
		cart:      cartStore,
		engine:    engine,
		creator:   creator,
		journal:   journal,
		auth:      auth,
		bus:       bus,
		logger:    logger,
	}
}

// ResetToken rotates the idempotency token. Called on every cart mutation:
// a changed cart is a new checkout intent, so a retried old submission must
// not be deduplicated against it.
func (o *Orchestrator) ResetToken() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.token = ""
}

// Submit validates the preconditions, issues exactly one atomic order
// creation call and clears local state on success. It never splits the cart
// into per-item calls: partial success would leave cart and server
// inconsistent.
func (o *Orchestrator) Submit(ctx context.Context) (string, error) {
	if o.auth != nil {
		if err := o.auth.Authenticated(ctx); err != nil {
			metrics.IncSubmission("rejected")
			return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
	}

	items := o.cart.Items()
	if len(items) == 0 {
		metrics.IncSubmission("rejected")
		return "", ErrEmptyCart
	}
	for _, item := range items {
		if item.CheckIn.IsZero() {
			metrics.IncSubmission("rejected")
			return "", fmt.Errorf("room %d: %w", item.RoomID, ErrMissingCheckIn)
		}
		if item.StayType == models.StayShortTerm && item.CheckOut.IsZero() {
			metrics.IncSubmission("rejected")
			return "", fmt.Errorf("room %d: %w", item.RoomID, ErrMissingCheckOut)
		}
	}

	subtotal := o.cart.Subtotal()
	if !o.engine.ValidFor(subtotal) {
		metrics.IncSubmission("rejected")
		return "", ErrPreviewNotValid
	}
	preview, _ := o.engine.Preview()
	if preview == nil {
		metrics.IncSubmission("rejected")
		return "", ErrPreviewNotValid
	}

	token := o.currentToken()

	// A token already recorded in the journal means this exact intent was
	// submitted before; resolve locally instead of creating a second order.
	if o.journal != nil {
		if orderID, ok, err := o.journal.Lookup(ctx, token); err == nil && ok {
			o.logger.Info().Str("order_id", orderID).Msg("submission resolved from journal")
			o.finishSuccess(orderID, preview, len(items))
			return orderID, nil
		}
	}

	req := backend.OrderRequest{
		Bookings:    buildBookings(items, preview),
		TotalAmount: preview.TotalAmount,
	}

	// Once submission reaches the network call it is no longer
	// user-cancellable: it either completes or fails.
	orderID, err := o.creator.CreateOrder(context.WithoutCancel(ctx), req, token)
	if err != nil {
		metrics.IncSubmission("failure")
		o.logger.Error().Err(err).Str("session_id", o.sessionID).Msg("order submission failed")
		return "", err
	}

	if o.journal != nil {
		order := &models.Order{
			OrderID:     orderID,
			TotalAmount: preview.TotalAmount,
			Status:      models.OrderStatusPending,
			Bookings:    req.Bookings,
			SubmittedAt: time.Now(),
		}
		if err := o.journal.Record(ctx, token, order); err != nil {
			o.logger.Error().Err(err).Str("order_id", orderID).Msg("journal record error")
		}
	}

	o.finishSuccess(orderID, preview, len(items))
	return orderID, nil
}

func (o *Orchestrator) finishSuccess(orderID string, preview *models.PricingPreview, bookings int) {
	metrics.IncSubmission("success")

	// Clearing the cart marks the preview stale via the mutation hook;
	// Reset then drops it entirely.
	o.cart.Clear()
	o.engine.Reset()

	o.mu.Lock()
	o.token = ""
	o.mu.Unlock()

	if o.bus != nil {
		payload := events.OrderEventPayload{
			SessionID:   o.sessionID,
			OrderID:     orderID,
			TotalAmount: preview.TotalAmount,
			Bookings:    bookings,
		}
		if err := o.bus.PublishJSON(events.EventOrderSubmitted, payload); err != nil {
			o.logger.Error().Err(err).Str("order_id", orderID).Msg("publish order event error")
		}
	}
}

// currentToken returns the idempotency token for this checkout intent,
// minting one on first use. The token survives failed attempts so a retry
// of the same unchanged cart cannot create two orders.
func (o *Orchestrator) currentToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.token == "" {
		o.token = uuid.NewString()
	}
	return o.token
}

// buildBookings translates cart items into booking payloads. Tax and
// discount come from the aggregate preview and are spread across items in
// proportion to their line totals.
func buildBookings(items []models.CartItem, preview *models.PricingPreview) []models.BookingPayload {
	bookings := make([]models.BookingPayload, 0, len(items))
	for _, item := range items {
		var share float64
		if preview.BaseAmount > 0 {
			share = item.LineTotal / preview.BaseAmount
		}

		payload := models.BookingPayload{
			RoomID:        item.RoomID,
			BookingType:   item.StayType,
			CheckIn:       item.CheckIn.Format("2006-01-02"),
			SeatsSelected: item.SeatsSelected,
			BaseAmount:    item.LineTotal,
			TaxAmount:     preview.Tax * share,
			TaxPercent:    preview.TaxPercent,
			Discount:      preview.CouponDiscount * share,
			Source:        models.BookingSource,
		}
		if !item.CheckOut.IsZero() {
			payload.CheckOut = item.CheckOut.Format("2006-01-02")
		}
		if preview.CouponApplied {
			payload.CouponCode = preview.CouponCode
		}
		bookings = append(bookings, payload)
	}
	return bookings
}
