package availability

import (
	"context"
	"errors"
	"sync"

	"hostelcart/internal/domain"
	"hostelcart/internal/metrics"
	"hostelcart/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrExceedsCapacity means the requested seat count is above the room's
	// structural bed count, regardless of current bookings.
	ErrExceedsCapacity = errors.New("seat count exceeds room capacity")

	// ErrNotEnoughSeats means the room cannot currently accept that many
	// seats because of existing bookings.
	ErrNotEnoughSeats = errors.New("not enough seats currently available")
)

type fetchCall struct {
	done  chan struct{}
	avail *models.RoomAvailability
	err   error
}

// Tracker caches remaining bookable seats per room. Concurrent lookups for
// the same room share one in-flight request; a failed fetch caches nothing,
// leaving the room in unknown state until a retry succeeds.
type Tracker struct {
	fetcher domain.AvailabilityFetcher
	logger  *zerolog.Logger

	mu       sync.Mutex
	cache    map[int64]*models.RoomAvailability
	inflight map[int64]*fetchCall
}

func NewTracker(fetcher domain.AvailabilityFetcher, logger *zerolog.Logger) *Tracker {
	return &Tracker{
		fetcher:  fetcher,
		logger:   logger,
		cache:    make(map[int64]*models.RoomAvailability),
		inflight: make(map[int64]*fetchCall),
	}
}

// EnsureLoaded returns cached availability for the room, fetching it on the
// first call. Callers racing on the same room wait for the single in-flight
// fetch rather than issuing their own.
func (t *Tracker) EnsureLoaded(ctx context.Context, roomID int64) (*models.RoomAvailability, error) {
	t.mu.Lock()
	if avail, ok := t.cache[roomID]; ok {
		t.mu.Unlock()
		metrics.IncAvailability("cached")
		return avail, nil
	}
	if call, ok := t.inflight[roomID]; ok {
		t.mu.Unlock()
		metrics.IncAvailability("coalesced")
		select {
		case <-call.done:
			return call.avail, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &fetchCall{done: make(chan struct{})}
	t.inflight[roomID] = call
	t.mu.Unlock()

	metrics.IncAvailability("fetched")
	avail, err := t.fetcher.FetchAvailability(ctx, roomID)

	t.mu.Lock()
	if err == nil {
		t.cache[roomID] = avail
	}
	delete(t.inflight, roomID)
	t.mu.Unlock()

	if err != nil {
		t.logger.Warn().Err(err).Int64("room_id", roomID).Msg("availability fetch failed")
	}

	call.avail, call.err = avail, err
	close(call.done)
	return avail, err
}

// MaxSeats returns the cached available seat count, or the room's total bed
// count as an optimistic fallback while availability is unknown.
func (t *Tracker) MaxSeats(roomID int64, totalBeds int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if avail, ok := t.cache[roomID]; ok {
		return avail.AvailableSeats
	}
	return totalBeds
}

// Cached returns the cached availability without triggering a fetch.
func (t *Tracker) Cached(roomID int64) (*models.RoomAvailability, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	avail, ok := t.cache[roomID]
	return avail, ok
}

// ValidateSeatChange bounds a requested seat count against the structural
// room capacity and, when known, the current availability. The two limits
// are reported as distinct errors so callers can word the rejection.
func (t *Tracker) ValidateSeatChange(roomID int64, requestedSeats, roomCapacity int) error {
	if requestedSeats > roomCapacity {
		return ErrExceedsCapacity
	}

	t.mu.Lock()
	avail, ok := t.cache[roomID]
	t.mu.Unlock()

	if ok && requestedSeats > avail.AvailableSeats {
		return ErrNotEnoughSeats
	}
	return nil
}

// Invalidate drops the cached entry so the next lookup refetches. Used after
// the backend reports an availability conflict at submit time.
func (t *Tracker) Invalidate(roomID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cache, roomID)
}
