package models

import "time"

// CartItem is one pending room selection awaiting checkout. LineTotal is
// always derived from SeatsSelected and UnitPrice, never set directly.
type CartItem struct {
	ID            string    `json:"id"`
	RoomID        int64     `json:"room_id"`
	StayType      string    `json:"stay_type"`
	CheckIn       time.Time `json:"check_in"`
	CheckOut      time.Time `json:"check_out,omitzero"`
	SeatsSelected int       `json:"seats_selected"`
	UnitPrice     float64   `json:"unit_price"`
	LineTotal     float64   `json:"line_total"`
}

// Recalculate refreshes the derived line total.
func (i *CartItem) Recalculate() {
	i.LineTotal = float64(i.SeatsSelected) * i.UnitPrice
}

// Room describes a bookable room from the storefront catalog.
type Room struct {
	ID             int64   `yaml:"id" json:"id"`
	Name           string  `yaml:"name" json:"name"`
	BedCount       int     `yaml:"bed_count" json:"bed_count"`
	ShortTermPrice float64 `yaml:"short_term_price" json:"short_term_price"`
	LongTermPrice  float64 `yaml:"long_term_price" json:"long_term_price"`
}

// UnitPrice returns the per-seat price for a stay type.
func (r Room) UnitPrice(stayType string) float64 {
	if stayType == StayLongTerm {
		return r.LongTermPrice
	}
	return r.ShortTermPrice
}

// RoomAvailability is a cached fact about how many seats a room can still
// accept. Owned by the availability tracker; readers never mutate it.
type RoomAvailability struct {
	RoomID         int64     `json:"room_id"`
	AvailableSeats int       `json:"available_seats"`
	BookedSeats    int       `json:"booked_seats"`
	FetchedAt      time.Time `json:"fetched_at"`
}

// PricingPreview is a computed price breakdown for a cart subtotal.
type PricingPreview struct {
	BaseAmount     float64 `json:"base_amount"`
	Tax            float64 `json:"tax"`
	TaxPercent     float64 `json:"tax_percent"`
	CouponCode     string  `json:"coupon_code,omitempty"`
	CouponDiscount float64 `json:"coupon_discount"`
	CouponApplied  bool    `json:"coupon_applied"`
	TotalAmount    float64 `json:"total_amount"`
}

// BookingPayload is one booking line inside an atomic order creation request.
// Field names follow the booking backend's wire contract.
type BookingPayload struct {
	RoomID        int64   `json:"roomId"`
	BookingType   string  `json:"bookingType"`
	CheckIn       string  `json:"checkIn"`
	CheckOut      string  `json:"checkOut,omitempty"`
	SeatsSelected int     `json:"seatsSelected"`
	BaseAmount    float64 `json:"baseAmount"`
	TaxAmount     float64 `json:"taxAmount"`
	TaxPercent    float64 `json:"taxPercent"`
	Discount      float64 `json:"discount"`
	CouponCode    string  `json:"couponCode,omitempty"`
	Source        string  `json:"source"`
}

// Order is the client-side record of a successfully submitted order. It is
// never mutated after submission; status changes are read elsewhere.
type Order struct {
	OrderID     string           `json:"order_id"`
	TotalAmount float64          `json:"total_amount"`
	Status      string           `json:"status"`
	Bookings    []BookingPayload `json:"bookings"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

// CartSnapshot is the persisted form of a checkout session's cart, used to
// restore state after a storefront restart.
type CartSnapshot struct {
	SessionID string     `json:"session_id"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}
