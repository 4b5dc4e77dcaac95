package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/voicesurvey/internal/logging"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a call's distributed lock.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates participant access, serializing work per call ID.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.ParticipantStore

	mu    sync.Mutex            // Guards the map only, never held during store I/O
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new Manager over the given participant store.
func NewManager(store ports.ParticipantStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(callID) after unlocking.
func (m *Manager) acquire(callID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[callID]
	if !exists {
		entry = &lockEntry{}
		m.locks[callID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[callID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, callID)
	}
}

// LoadOrCreate returns the participant for a call, creating it if absent.
// created reports that no participant existed at lookup time.
// Must be called inside WithLock when callers need create-then-read to be exclusive.
func (m *Manager) LoadOrCreate(ctx context.Context, callID, destination string) (p *domain.Participant, created bool, err error) {
	p, err = m.store.Find(ctx, callID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		return nil, false, fmt.Errorf("failed to check participant existence: %w", err)
	}

	if err := m.store.Create(ctx, callID, destination); err != nil {
		return nil, false, fmt.Errorf("failed to initialize participant: %w", err)
	}

	// Re-read: a concurrent replica may have created it first.
	p, err = m.store.Find(ctx, callID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load created participant: %w", err)
	}
	return p, true, nil
}

// Append records an answer atomically and returns the authoritative answer count.
func (m *Manager) Append(ctx context.Context, callID string, answer domain.Answer, limit int) (int, error) {
	return m.store.AppendAnswer(ctx, callID, answer, limit)
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]*domain.Participant, error) {
	return m.store.List(ctx)
}

// Store returns the underlying participant store.
func (m *Manager) Store() ports.ParticipantStore {
	return m.store
}

// WithLock executes fn while holding the lock for the call.
func (m *Manager) WithLock(ctx context.Context, callID string, fn func(context.Context) error) error {
	entry := m.acquire(callID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(callID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, callID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// Release even if the request context is already done.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"call_id", callID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
