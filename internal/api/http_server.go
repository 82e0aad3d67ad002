package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hostelcart/internal/availability"
	"hostelcart/internal/backend"
	"hostelcart/internal/cart"
	"hostelcart/internal/checkout"
	"hostelcart/internal/config"
	"hostelcart/internal/metrics"
	"hostelcart/internal/models"
	"hostelcart/internal/pricing"
	"hostelcart/internal/session"

	"github.com/rs/zerolog"
)

const sessionHeader = "X-Session-ID"

// CacheInvalidator drops the shared availability cache entry for a room.
// Implemented by the backend client; nil disables cross-session invalidation.
type CacheInvalidator interface {
	InvalidateAvailability(ctx context.Context, roomID int64)
}

// HTTPServer exposes the storefront checkout API. Every cart route is scoped
// to the session named by the X-Session-ID header.
type HTTPServer struct {
	cfg         config.APIConfig
	sessions    *session.Manager
	rooms       map[int64]models.Room
	roomList    []models.Room
	invalidator CacheInvalidator
	server      *http.Server
	auth        *HTTPAuth
	logger      *zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	sessions *session.Manager,
	rooms []models.Room,
	invalidator CacheInvalidator,
	logger *zerolog.Logger,
) *HTTPServer {
	byID := make(map[int64]models.Room, len(rooms))
	for _, room := range rooms {
		byID[room.ID] = room
	}

	srv := &HTTPServer{
		cfg:         cfg,
		sessions:    sessions,
		rooms:       byID,
		roomList:    rooms,
		invalidator: invalidator,
		logger:      logger,
	}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/rooms", srv.handleRooms)
	mux.HandleFunc("GET /api/v1/rooms/{id}/availability", srv.handleRoomAvailability)
	mux.HandleFunc("GET /api/v1/cart", srv.handleCartGet)
	mux.HandleFunc("POST /api/v1/cart/items", srv.handleCartAdd)
	mux.HandleFunc("PATCH /api/v1/cart/items/{id}", srv.handleCartUpdate)
	mux.HandleFunc("DELETE /api/v1/cart/items/{id}", srv.handleCartRemove)
	mux.HandleFunc("DELETE /api/v1/cart", srv.handleCartClear)
	mux.HandleFunc("POST /api/v1/cart/preview", srv.handlePreview)
	mux.HandleFunc("POST /api/v1/cart/submit", srv.handleSubmit)
	mux.HandleFunc("DELETE /api/v1/session", srv.handleSessionDrop)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleRooms(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("rooms")
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.roomList})
}

func (s *HTTPServer) handleRoomAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("room_availability")
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	roomID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid room id")
		return
	}
	room, exists := s.rooms[roomID]
	if !exists {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	avail, err := sess.Availability.EnsureLoaded(r.Context(), roomID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("room_id", roomID).Msg("availability fetch failed")
		// Capacity is still known from the catalog.
		writeJSON(w, http.StatusOK, map[string]any{
			"room_id":   roomID,
			"max_seats": room.BedCount,
			"degraded":  true,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room_id":         roomID,
		"available_seats": avail.AvailableSeats,
		"booked_seats":    avail.BookedSeats,
		"max_seats":       sess.Availability.MaxSeats(roomID, room.BedCount),
	})
}

type addItemRequest struct {
	RoomID   int64  `json:"room_id"`
	StayType string `json:"stay_type"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Seats    int    `json:"seats"`
}

func (s *HTTPServer) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cart_add")
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var body addItemRequest
	if !decodeBody(w, r, &body) {
		return
	}

	room, exists := s.rooms[body.RoomID]
	if !exists {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}

	stayType := strings.TrimSpace(body.StayType)
	if stayType == "" {
		stayType = models.StayShortTerm
	}
	if stayType != models.StayShortTerm && stayType != models.StayLongTerm {
		writeError(w, http.StatusBadRequest, "invalid stay_type")
		return
	}

	checkIn, err := parseDate(body.CheckIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid check_in; expected YYYY-MM-DD")
		return
	}
	var checkOut time.Time
	if body.CheckOut != "" {
		if checkOut, err = parseDate(body.CheckOut); err != nil {
			writeError(w, http.StatusBadRequest, "invalid check_out; expected YYYY-MM-DD")
			return
		}
	}

	if !s.validateSeats(r.Context(), sess, room, body.Seats, w) {
		return
	}

	item, err := sess.Cart.Add(cart.Selection{
		RoomID:        room.ID,
		StayType:      stayType,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		SeatsSelected: body.Seats,
		UnitPrice:     room.UnitPrice(stayType),
	})
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type updateItemRequest struct {
	Seats    *int    `json:"seats"`
	CheckIn  *string `json:"check_in"`
	CheckOut *string `json:"check_out"`
}

func (s *HTTPServer) handleCartUpdate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cart_update")
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var body updateItemRequest
	if !decodeBody(w, r, &body) {
		return
	}

	itemID := r.PathValue("id")
	current := sess.Cart.Get(itemID)
	if current == nil {
		writeError(w, http.StatusNotFound, "cart item not found")
		return
	}

	patch := cart.Patch{SeatsSelected: body.Seats}
	if body.CheckIn != nil {
		checkIn, err := parseDate(*body.CheckIn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid check_in; expected YYYY-MM-DD")
			return
		}
		patch.CheckIn = &checkIn
	}
	if body.CheckOut != nil {
		checkOut, err := parseDate(*body.CheckOut)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid check_out; expected YYYY-MM-DD")
			return
		}
		patch.CheckOut = &checkOut
	}

	if body.Seats != nil {
		room, exists := s.rooms[current.RoomID]
		if !exists {
			// Комната пропала из каталога, менять места по ней нельзя
			writeError(w, http.StatusNotFound, "room not found")
			return
		}
		if !s.validateSeats(r.Context(), sess, room, *body.Seats, w) {
			return
		}
	}

	item, err := sess.Cart.Update(itemID, patch)
	if err != nil {
		s.writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cart_remove")
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	sess.Cart.Remove(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCartClear(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cart_clear")
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	sess.Cart.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCartGet(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cart_get")
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	s.writeCart(w, sess)
}

type previewRequest struct {
	CouponCode string `json:"coupon_code"`
}

func (s *HTTPServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cart_preview")
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var body previewRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &body) {
		return
	}

	if sess.Cart.Len() == 0 {
		writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	subtotal := sess.Cart.Subtotal()
	var (
		preview *models.PricingPreview
		err     error
	)
	if body.CouponCode != "" {
		preview, err = sess.Pricing.ApplyCoupon(r.Context(), subtotal, body.CouponCode)
	} else {
		preview, err = sess.Pricing.RequestPreview(r.Context(), subtotal, sess.Pricing.CouponCode())
	}
	if err != nil {
		s.writeMappedError(w, err)
		return
	}

	_, state := sess.Pricing.Preview()
	writeJSON(w, http.StatusOK, map[string]any{
		"preview": preview,
		"state":   state.String(),
	})
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cart_submit")
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	orderID, err := sess.Checkout.Submit(r.Context())
	if err != nil {
		if errors.Is(err, backend.ErrAvailabilityConflict) {
			// The backend saw fewer seats than we did. Drop the cached
			// availability so the next look reflects reality.
			for _, item := range sess.Cart.Items() {
				sess.Availability.Invalidate(item.RoomID)
				if s.invalidator != nil {
					s.invalidator.InvalidateAvailability(r.Context(), item.RoomID)
				}
			}
		}
		s.writeMappedError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"order_id": orderID})
}

func (s *HTTPServer) handleSessionDrop(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_drop")
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "X-Session-ID header is required")
		return
	}

	s.sessions.Drop(r.Context(), sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) writeCart(w http.ResponseWriter, sess *session.Session) {
	preview, state := sess.Pricing.Preview()
	writeJSON(w, http.StatusOK, map[string]any{
		"items":         sess.Cart.Items(),
		"subtotal":      sess.Cart.Subtotal(),
		"preview":       preview,
		"preview_state": state.String(),
	})
}

// validateSeats checks a seat request against capacity and, when known,
// live availability; out-of-bounds requests are rejected, never clamped.
// Writes the error response itself and reports false.
func (s *HTTPServer) validateSeats(ctx context.Context, sess *session.Session, room models.Room, seats int, w http.ResponseWriter) bool {
	if _, err := sess.Availability.EnsureLoaded(ctx, room.ID); err != nil {
		// Деградируем до проверки по вместимости
		s.logger.Warn().Err(err).Int64("room_id", room.ID).Msg("availability fetch failed, capacity check only")
	}
	if err := sess.Availability.ValidateSeatChange(room.ID, seats, room.BedCount); err != nil {
		s.writeMappedError(w, err)
		return false
	}
	return true
}

func (s *HTTPServer) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "X-Session-ID header is required")
		return nil, false
	}
	return s.sessions.Get(r.Context(), sessionID), true
}

func (s *HTTPServer) writeMappedError(w http.ResponseWriter, err error) {
	writeError(w, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, cart.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrMissingCheckIn),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrMissingCheckIn),
		errors.Is(err, checkout.ErrMissingCheckOut),
		errors.Is(err, pricing.ErrEmptyCoupon):
		return http.StatusBadRequest
	case errors.Is(err, checkout.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrInvalidCoupon):
		return http.StatusUnprocessableEntity
	case errors.Is(err, cart.ErrDuplicateSelection),
		errors.Is(err, availability.ErrExceedsCapacity),
		errors.Is(err, availability.ErrNotEnoughSeats),
		errors.Is(err, pricing.ErrSuperseded),
		errors.Is(err, checkout.ErrPreviewNotValid),
		errors.Is(err, backend.ErrAvailabilityConflict):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(raw))
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
