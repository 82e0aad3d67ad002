package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrAvailabilityConflict means the backend rejected the request because
	// seats were booked by someone else since the client last looked.
	ErrAvailabilityConflict = errors.New("requested seats are no longer available")

	// ErrInvalidCoupon means the coupon code was rejected by the pricing service.
	ErrInvalidCoupon = errors.New("coupon code is invalid or expired")
)

// apiError is the structured failure body returned by the booking backend.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func mapAPIError(status int, body apiError) error {
	switch body.Code {
	case "SEATS_UNAVAILABLE":
		return fmt.Errorf("%w: %s", ErrAvailabilityConflict, body.Message)
	case "INVALID_COUPON":
		return fmt.Errorf("%w: %s", ErrInvalidCoupon, body.Message)
	}
	if body.Message != "" {
		return fmt.Errorf("backend http %d: %s", status, body.Message)
	}
	return fmt.Errorf("backend http %d", status)
}
