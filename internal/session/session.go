package session

import (
	"time"

	"hostelcart/internal/availability"
	"hostelcart/internal/cart"
	"hostelcart/internal/checkout"
	"hostelcart/internal/pricing"
)

// Session bundles the per-visitor checkout state: the cart, the availability
// cache, the pricing preview and the orchestrator that submits the order.
// All four share one lifecycle and are dropped together.
type Session struct {
	ID           string
	Cart         *cart.Store
	Availability *availability.Tracker
	Pricing      *pricing.Engine
	Checkout     *checkout.Orchestrator

	lastSeen time.Time
}

// LastSeen returns the time of the last access through the manager.
func (s *Session) LastSeen() time.Time {
	return s.lastSeen
}
