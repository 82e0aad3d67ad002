package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"hostelcart/internal/backend"
	"hostelcart/internal/cart"
	"hostelcart/internal/config"
	"hostelcart/internal/models"
	"hostelcart/internal/session"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu             sync.Mutex
	availableSeats int
	fetchCalls     atomic.Int32
	orderErr       error
	orderID        string
	tokens         []string
	invalidated    []int64
}

func (b *stubBackend) FetchAvailability(ctx context.Context, roomID int64) (*models.RoomAvailability, error) {
	b.fetchCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	return &models.RoomAvailability{RoomID: roomID, AvailableSeats: b.availableSeats}, nil
}

func (b *stubBackend) QuotePreview(ctx context.Context, subtotal float64, couponCode string) (*models.PricingPreview, error) {
	if couponCode != "" && couponCode != "SAVE10" {
		return nil, backend.ErrInvalidCoupon
	}
	preview := &models.PricingPreview{
		BaseAmount: subtotal,
		Tax:        subtotal * 0.10,
		TaxPercent: 10,
	}
	if couponCode == "SAVE10" {
		preview.CouponCode = couponCode
		preview.CouponDiscount = 300
		preview.CouponApplied = true
	}
	preview.TotalAmount = preview.BaseAmount + preview.Tax - preview.CouponDiscount
	return preview, nil
}

func (b *stubBackend) CreateOrder(ctx context.Context, req backend.OrderRequest, token string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = append(b.tokens, token)
	if b.orderErr != nil {
		return "", b.orderErr
	}
	return b.orderID, nil
}

func (b *stubBackend) InvalidateAvailability(ctx context.Context, roomID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invalidated = append(b.invalidated, roomID)
}

func testRooms() []models.Room {
	return []models.Room{
		{ID: 1, Name: "Dorm A", BedCount: 4, ShortTermPrice: 1000, LongTermPrice: 800},
		{ID: 2, Name: "Dorm B", BedCount: 6, ShortTermPrice: 500, LongTermPrice: 400},
	}
}

func newTestServer(t *testing.T, cfg config.APIConfig) (*HTTPServer, *stubBackend) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	stub := &stubBackend{availableSeats: 4, orderID: "ORD-1"}

	manager := session.NewManager(session.Deps{
		Fetcher: stub,
		Quoter:  stub,
		Creator: stub,
		Logger:  &logger,
	})

	return NewHTTPServer(cfg, manager, testRooms(), stub, &logger), stub
}

func doRequest(t *testing.T, srv *HTTPServer, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func addCartItem(t *testing.T, srv *HTTPServer, sessionID string, seats int) string {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", sessionID, addItemRequest{
		RoomID:   1,
		StayType: models.StayShortTerm,
		CheckIn:  "2026-10-01",
		CheckOut: "2026-10-04",
		Seats:    seats,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeResponse(t, rec)["id"].(string)
}

func TestCartRoutesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/cart", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRoomsList(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/rooms", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Len(t, resp["rooms"], 2)
}

func TestRoomAvailability(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/rooms/1/availability", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Equal(t, float64(4), resp["available_seats"])

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/rooms/99/availability", "s1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartAddAndGet(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	addCartItem(t, srv, "s1", 2)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/cart", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.Len(t, resp["items"], 1)
	assert.Equal(t, 2000.0, resp["subtotal"])
	assert.Equal(t, "unset", resp["preview_state"])
}

func TestCartAddRejectsUnknownRoom(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "s1", addItemRequest{
		RoomID: 99, CheckIn: "2026-10-01", Seats: 1,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCartAddRejectsTooManySeats(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "s1", addItemRequest{
		RoomID: 1, CheckIn: "2026-10-01", CheckOut: "2026-10-04", Seats: 10,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCartAddRejectsDuplicateRoom(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	addCartItem(t, srv, "s1", 2)
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/items", "s1", addItemRequest{
		RoomID: 1, CheckIn: "2026-10-01", CheckOut: "2026-10-04", Seats: 1,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCartUpdateAndRemove(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	itemID := addCartItem(t, srv, "s1", 2)

	seats := 3
	rec := doRequest(t, srv, http.MethodPatch, "/api/v1/cart/items/"+itemID, "s1", updateItemRequest{Seats: &seats})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decodeResponse(t, rec)["seats_selected"])

	rec = doRequest(t, srv, http.MethodPatch, "/api/v1/cart/items/missing", "s1", updateItemRequest{Seats: &seats})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/v1/cart/items/"+itemID, "s1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/cart", "s1", nil)
	assert.Len(t, decodeResponse(t, rec)["items"], 0)
}

func TestCartUpdateRejectsRoomMissingFromCatalog(t *testing.T) {
	logger := zerolog.New(io.Discard)
	stub := &stubBackend{availableSeats: 4}
	manager := session.NewManager(session.Deps{
		Fetcher: stub,
		Quoter:  stub,
		Creator: stub,
		Logger:  &logger,
	})
	srv := NewHTTPServer(config.APIConfig{}, manager, testRooms(), stub, &logger)

	// Позиция ссылается на комнату, которой уже нет в каталоге
	sess := manager.Get(context.Background(), "s1")
	item, err := sess.Cart.Add(cart.Selection{
		RoomID:        99,
		StayType:      models.StayShortTerm,
		CheckIn:       time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:      time.Date(2026, 10, 4, 0, 0, 0, 0, time.UTC),
		SeatsSelected: 2,
		UnitPrice:     1000,
	})
	require.NoError(t, err)

	seats := 3
	rec := doRequest(t, srv, http.MethodPatch, "/api/v1/cart/items/"+item.ID, "s1", updateItemRequest{Seats: &seats})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 2, sess.Cart.Get(item.ID).SeatsSelected)
}

func TestPreviewAndSubmitFlow(t *testing.T) {
	srv, stub := newTestServer(t, config.APIConfig{})
	addCartItem(t, srv, "s1", 2)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/preview", "s1", previewRequest{})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "valid", resp["state"])

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/cart/submit", "s1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ORD-1", decodeResponse(t, rec)["order_id"])
	require.Len(t, stub.tokens, 1)
	assert.NotEmpty(t, stub.tokens[0])

	// The cart is spent after a successful submission.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/cart", "s1", nil)
	resp = decodeResponse(t, rec)
	assert.Len(t, resp["items"], 0)
	assert.Equal(t, "unset", resp["preview_state"])
}

func TestPreviewWithCoupon(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	addCartItem(t, srv, "s1", 3)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/preview", "s1", previewRequest{CouponCode: "SAVE10"})
	require.Equal(t, http.StatusOK, rec.Code)
	preview := decodeResponse(t, rec)["preview"].(map[string]any)
	assert.Equal(t, 3000.0, preview["total_amount"])

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/cart/preview", "s1", previewRequest{CouponCode: "EXPIRED"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPreviewEmptyCart(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/preview", "s1", previewRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitWithoutPreview(t *testing.T) {
	srv, stub := newTestServer(t, config.APIConfig{})
	addCartItem(t, srv, "s1", 2)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/submit", "s1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, stub.tokens, "no order call without a valid preview")
}

func TestSubmitConflictInvalidatesAvailability(t *testing.T) {
	srv, stub := newTestServer(t, config.APIConfig{})
	addCartItem(t, srv, "s1", 2)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/cart/preview", "s1", previewRequest{})
	require.Equal(t, http.StatusOK, rec.Code)

	stub.mu.Lock()
	stub.orderErr = backend.ErrAvailabilityConflict
	stub.mu.Unlock()

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/cart/submit", "s1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	stub.mu.Lock()
	invalidated := append([]int64(nil), stub.invalidated...)
	stub.mu.Unlock()
	assert.Contains(t, invalidated, int64(1))

	// The cart survives the failure.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/cart", "s1", nil)
	assert.Len(t, decodeResponse(t, rec)["items"], 1)
}

func TestSessionDrop(t *testing.T) {
	srv, _ := newTestServer(t, config.APIConfig{})
	addCartItem(t, srv, "s1", 2)

	rec := doRequest(t, srv, http.MethodDelete, "/api/v1/session", "s1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/cart", "s1", nil)
	assert.Len(t, decodeResponse(t, rec)["items"], 0)
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: "secret-key", Name: "storefront"}},
		},
	}
	srv, _ := newTestServer(t, cfg)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	req.Header.Set("x-api-key", "wrong")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/rooms", nil)
	req.Header.Set("x-api-key", "secret-key")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2},
	}
	srv, _ := newTestServer(t, cfg)

	var limited bool
	for i := 0; i < 5; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/rooms", "", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited, "burst exhaustion returns 429")
}

func TestStatusForErrorDefaultsToBadGateway(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusForError(fmt.Errorf("backend exploded")))
}
