package cart

import (
	"errors"
	"sync"
	"time"

	"hostelcart/internal/domain"
	"hostelcart/internal/events"
	"hostelcart/internal/metrics"
	"hostelcart/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrDuplicateSelection = errors.New("room is already in the cart")
	ErrNotFound           = errors.New("cart item not found")
	ErrInvalidQuantity    = errors.New("seat count must be at least 1")
	ErrMissingCheckIn     = errors.New("check-in date is required")
)

// Selection is a confirmed room pick from the room detail view.
type Selection struct {
	RoomID        int64
	StayType      string
	CheckIn       time.Time
	CheckOut      time.Time
	SeatsSelected int
	UnitPrice     float64
}

// Patch carries the mutable fields of a cart item. Nil fields are left as is.
type Patch struct {
	SeatsSelected *int
	CheckIn       *time.Time
	CheckOut      *time.Time
}

// Store is the authoritative in-memory list of cart items for one checkout
// session. Items keep insertion order for display. Every mutation notifies
// the registered listeners synchronously before the mutation call returns,
// so a previously valid price preview can never be observed after a change.
type Store struct {
	mu        sync.Mutex
	sessionID string
	items     []*models.CartItem
	onMutate  []func()
	bus       domain.EventPublisher
	logger    *zerolog.Logger
}

func NewStore(sessionID string, bus domain.EventPublisher, logger *zerolog.Logger) *Store {
	return &Store{
		sessionID: sessionID,
		bus:       bus,
		logger:    logger,
	}
}

// OnMutate registers a hook invoked after every successful mutation.
// The pricing engine's invalidation and the snapshot writer hang off this.
func (s *Store) OnMutate(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutate = append(s.onMutate, fn)
}

// Add appends a new cart item for the selection. One room per cart: adding a
// room that is already present is rejected so the caller can route the change
// through Update instead of creating a duplicate line.
func (s *Store) Add(sel Selection) (*models.CartItem, error) {
	if sel.SeatsSelected < 1 {
		return nil, ErrInvalidQuantity
	}
	if sel.CheckIn.IsZero() {
		return nil, ErrMissingCheckIn
	}

	s.mu.Lock()
	for _, item := range s.items {
		if item.RoomID == sel.RoomID {
			s.mu.Unlock()
			return nil, ErrDuplicateSelection
		}
	}

	item := &models.CartItem{
		ID:            uuid.NewString(),
		RoomID:        sel.RoomID,
		StayType:      sel.StayType,
		CheckIn:       sel.CheckIn,
		CheckOut:      sel.CheckOut,
		SeatsSelected: sel.SeatsSelected,
		UnitPrice:     sel.UnitPrice,
	}
	item.Recalculate()
	s.items = append(s.items, item)
	copied := *item
	subtotal := s.subtotalLocked()
	s.notifyLocked()
	s.mu.Unlock()

	metrics.IncCartMutation("add")
	s.publish(events.EventCartItemAdded, copied, subtotal)
	return &copied, nil
}

// Update merges the patch into the matching item and recomputes the line
// total. Seat bounds against availability are the caller's responsibility;
// the store only rejects non-positive counts.
func (s *Store) Update(id string, patch Patch) (*models.CartItem, error) {
	if patch.SeatsSelected != nil && *patch.SeatsSelected < 1 {
		return nil, ErrInvalidQuantity
	}

	s.mu.Lock()
	item := s.findLocked(id)
	if item == nil {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	if patch.SeatsSelected != nil {
		item.SeatsSelected = *patch.SeatsSelected
	}
	if patch.CheckIn != nil {
		item.CheckIn = *patch.CheckIn
	}
	if patch.CheckOut != nil {
		item.CheckOut = *patch.CheckOut
	}
	item.Recalculate()
	copied := *item
	subtotal := s.subtotalLocked()
	s.notifyLocked()
	s.mu.Unlock()

	metrics.IncCartMutation("update")
	s.publish(events.EventCartItemUpdated, copied, subtotal)
	return &copied, nil
}

// Remove deletes the item. Removal is idempotent: a missing id is a no-op
// and does not invalidate the current preview.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	idx := -1
	for i, item := range s.items {
		if item.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}

	removed := *s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	subtotal := s.subtotalLocked()
	s.notifyLocked()
	s.mu.Unlock()

	metrics.IncCartMutation("remove")
	s.publish(events.EventCartItemRemoved, removed, subtotal)
}

// Clear empties the cart.
func (s *Store) Clear() {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	s.items = nil
	s.notifyLocked()
	s.mu.Unlock()

	metrics.IncCartMutation("clear")
	if s.bus != nil {
		if err := s.bus.PublishJSON(events.EventCartCleared, events.CartEventPayload{SessionID: s.sessionID}); err != nil {
			s.logger.Error().Err(err).Msg("publish cart event error")
		}
	}
}

// Subtotal is the sum of all line totals, recomputed on every call.
func (s *Store) Subtotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subtotalLocked()
}

// Items returns a copy of the cart contents in insertion order.
func (s *Store) Items() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.CartItem, len(s.items))
	for i, item := range s.items {
		out[i] = *item
	}
	return out
}

// Get returns the item with the given id, or nil.
func (s *Store) Get(id string) *models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.findLocked(id); item != nil {
		copied := *item
		return &copied
	}
	return nil
}

// Len reports the number of items in the cart.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Snapshot captures the cart for persistence.
func (s *Store) Snapshot() *models.CartSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]models.CartItem, len(s.items))
	for i, item := range s.items {
		items[i] = *item
	}
	return &models.CartSnapshot{
		SessionID: s.sessionID,
		Items:     items,
		UpdatedAt: time.Now(),
	}
}

// Restore replaces the cart contents from a persisted snapshot. Listeners
// are notified so any cached preview is invalidated.
func (s *Store) Restore(snapshot *models.CartSnapshot) {
	if snapshot == nil {
		return
	}
	s.mu.Lock()
	s.items = make([]*models.CartItem, 0, len(snapshot.Items))
	for _, item := range snapshot.Items {
		copied := item
		copied.Recalculate()
		s.items = append(s.items, &copied)
	}
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *Store) findLocked(id string) *models.CartItem {
	for _, item := range s.items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

func (s *Store) subtotalLocked() float64 {
	var sum float64
	for _, item := range s.items {
		sum += item.LineTotal
	}
	return sum
}

func (s *Store) notifyLocked() {
	for _, fn := range s.onMutate {
		fn()
	}
}

func (s *Store) publish(eventType string, item models.CartItem, subtotal float64) {
	if s.bus == nil {
		return
	}

	payload := events.CartEventPayload{
		SessionID:     s.sessionID,
		ItemID:        item.ID,
		RoomID:        item.RoomID,
		SeatsSelected: item.SeatsSelected,
		Subtotal:      subtotal,
	}

	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("item_id", item.ID).Msg("publish cart event error")
	}
}
