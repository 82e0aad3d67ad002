package metrics

import "testing"

func TestRegisterIsIdempotent(t *testing.T) {
	// Register twice; MustRegister would panic on a duplicate without the guard.
	Register()
	Register()

	IncHTTP("/api/v1/cart")
	IncCartMutation("add")
	IncPreview("valid")
	IncPreviewDiscard()
	IncAvailability("coalesced")
	IncSubmission("success")
}
