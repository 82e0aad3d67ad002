package session

import (
	"context"
	"sync"
	"time"

	"hostelcart/internal/availability"
	"hostelcart/internal/cart"
	"hostelcart/internal/checkout"
	"hostelcart/internal/domain"
	"hostelcart/internal/pricing"

	"github.com/rs/zerolog"
)

const persistTimeout = 5 * time.Second

// Deps are the shared services every session is wired to. Fetcher, Quoter
// and Creator are usually the same backend client.
type Deps struct {
	Fetcher   domain.AvailabilityFetcher
	Quoter    domain.PreviewQuoter
	Creator   domain.OrderCreator
	Journal   domain.SubmissionJournal
	Snapshots domain.SnapshotRepository
	Auth      domain.Authorizer
	Bus       domain.EventPublisher
	Logger    *zerolog.Logger
}

// Manager owns the live sessions. Get creates a session on first access and
// restores its cart from a persisted snapshot, so a storefront restart does
// not lose carts.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	deps     Deps
	logger   *zerolog.Logger
}

func NewManager(deps Deps) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		deps:     deps,
		logger:   deps.Logger,
	}
}

// Get returns the session for the id, creating and restoring it if needed.
func (m *Manager) Get(ctx context.Context, sessionID string) *Session {
	m.mu.Lock()
	if sess, ok := m.sessions[sessionID]; ok {
		sess.lastSeen = time.Now()
		m.mu.Unlock()
		return sess
	}
	m.mu.Unlock()

	sess := m.build(ctx, sessionID)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Пересоздание могло произойти параллельно
	if existing, ok := m.sessions[sessionID]; ok {
		existing.lastSeen = time.Now()
		return existing
	}
	sess.lastSeen = time.Now()
	m.sessions[sessionID] = sess
	return sess
}

func (m *Manager) build(ctx context.Context, sessionID string) *Session {
	store := cart.NewStore(sessionID, m.deps.Bus, m.logger)
	engine := pricing.NewEngine(m.deps.Quoter, m.logger)
	tracker := availability.NewTracker(m.deps.Fetcher, m.logger)
	orch := checkout.NewOrchestrator(sessionID, store, engine, m.deps.Creator, m.deps.Journal, m.deps.Auth, m.deps.Bus, m.logger)

	// Restore before the hooks are registered: a restored cart starts with a
	// fresh Unset preview, there is nothing to invalidate yet.
	if m.deps.Snapshots != nil {
		snapshot, err := m.deps.Snapshots.GetSnapshot(ctx, sessionID)
		if err != nil {
			m.logger.Error().Err(err).Str("session_id", sessionID).Msg("snapshot restore error")
		} else if snapshot != nil && len(snapshot.Items) > 0 {
			store.Restore(snapshot)
			m.logger.Info().Str("session_id", sessionID).Int("items", len(snapshot.Items)).Msg("cart restored from snapshot")
		}
	}

	store.OnMutate(engine.Invalidate)
	store.OnMutate(orch.ResetToken)
	if m.deps.Snapshots != nil {
		// Persisting is asynchronous: the hook runs under the store lock and
		// must not call back into the store.
		store.OnMutate(func() { go m.persist(store) })
	}

	return &Session{
		ID:           sessionID,
		Cart:         store,
		Availability: tracker,
		Pricing:      engine,
		Checkout:     orch,
	}
}

func (m *Manager) persist(store *cart.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	snapshot := store.Snapshot()
	var err error
	if len(snapshot.Items) == 0 {
		err = m.deps.Snapshots.DeleteSnapshot(ctx, snapshot.SessionID)
	} else {
		err = m.deps.Snapshots.SaveSnapshot(ctx, snapshot)
	}
	if err != nil {
		m.logger.Error().Err(err).Str("session_id", snapshot.SessionID).Msg("snapshot persist error")
	}
}

// Drop removes the session and its persisted snapshot.
func (m *Manager) Drop(ctx context.Context, sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if m.deps.Snapshots != nil {
		if err := m.deps.Snapshots.DeleteSnapshot(ctx, sessionID); err != nil {
			m.logger.Error().Err(err).Str("session_id", sessionID).Msg("snapshot delete error")
		}
	}
}

// PruneIdle evicts sessions not touched for maxIdle and reports how many
// were removed. Snapshots are kept so an evicted cart can still be restored.
func (m *Manager) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0
	for id, sess := range m.sessions {
		if sess.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			pruned++
		}
	}
	if pruned > 0 {
		m.logger.Info().Int("pruned", pruned).Int("remaining", len(m.sessions)).Msg("idle sessions pruned")
	}
	return pruned
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
