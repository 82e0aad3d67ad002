package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventCartItemAdded   = "cart_item_added"
	EventCartItemUpdated = "cart_item_updated"
	EventCartItemRemoved = "cart_item_removed"
	EventCartCleared     = "cart_cleared"
	EventOrderSubmitted  = "order_submitted"
)

// CartEventPayload describes the minimal cart snapshot for event consumers.
type CartEventPayload struct {
	SessionID     string  `json:"session_id"`
	ItemID        string  `json:"item_id,omitempty"`
	RoomID        int64   `json:"room_id,omitempty"`
	SeatsSelected int     `json:"seats_selected,omitempty"`
	Subtotal      float64 `json:"subtotal"`
}

// OrderEventPayload is published once an order has been created.
type OrderEventPayload struct {
	SessionID   string  `json:"session_id"`
	OrderID     string  `json:"order_id"`
	TotalAmount float64 `json:"total_amount"`
	Bookings    int     `json:"bookings"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event *Event) error

// Bus provides in-process pub/sub so UI collaborators can observe cart and
// order changes without reaching into the stores themselves.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *Bus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
