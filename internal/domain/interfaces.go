package domain

import (
	"context"
	"time"

	"hostelcart/internal/backend"
	"hostelcart/internal/models"
)

// AvailabilityFetcher resolves current seat availability for one room.
type AvailabilityFetcher interface {
	FetchAvailability(ctx context.Context, roomID int64) (*models.RoomAvailability, error)
}

// PreviewQuoter computes a price breakdown for an aggregate cart subtotal.
type PreviewQuoter interface {
	QuotePreview(ctx context.Context, subtotal float64, couponCode string) (*models.PricingPreview, error)
}

// OrderCreator issues the single atomic multi-booking creation call.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req backend.OrderRequest, idempotencyToken string) (string, error)
}

// EventPublisher fans domain events out to in-process subscribers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SnapshotRepository persists cart snapshots so sessions survive restarts.
type SnapshotRepository interface {
	GetSnapshot(ctx context.Context, sessionID string) (*models.CartSnapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *models.CartSnapshot) error
	DeleteSnapshot(ctx context.Context, sessionID string) error
}

// SubmissionJournal records order submission outcomes keyed by idempotency
// token, so a retried submission can be resolved without a second order.
type SubmissionJournal interface {
	Record(ctx context.Context, token string, order *models.Order) error
	Lookup(ctx context.Context, token string) (string, bool, error)
	ListOrders(ctx context.Context, from, to time.Time) ([]*models.Order, error)
}

// Authorizer answers whether the current caller may submit an order.
type Authorizer interface {
	Authenticated(ctx context.Context) error
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context) error

func (f AuthorizerFunc) Authenticated(ctx context.Context) error { return f(ctx) }
