package checkout

import "errors"

var (
	// ErrEmptyCart rejects a submission with nothing to book.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrMissingCheckIn rejects an item without a check-in date.
	ErrMissingCheckIn = errors.New("check-in date is required")

	// ErrMissingCheckOut rejects a short-term item without a check-out date.
	ErrMissingCheckOut = errors.New("check-out date is required for short term stays")

	// ErrPreviewNotValid rejects a submission whose price preview is absent,
	// loading or stale. The user must re-request a preview first.
	ErrPreviewNotValid = errors.New("price preview is not valid for the current cart")

	// ErrNotAuthenticated rejects a submission from an anonymous caller.
	ErrNotAuthenticated = errors.New("caller is not authenticated")
)
