package session

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/songbot/core/logger"
)

type memoryEntry struct {
	userID  int64
	session Session
	expires time.Time
	elem    *list.Element
}

// MemoryStore is an in-process Store with TTL expiry and an optional LRU bound.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]*memoryEntry
	lru     *list.List

	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the time source, mostly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMemoryStore constructs a MemoryStore. ttl <= 0 disables expiry and
// maxEntries <= 0 disables the LRU bound.
func NewMemoryStore(ttl time.Duration, maxEntries int, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		entries:    make(map[int64]*memoryEntry),
		lru:        list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a copy of the user's session, or nil if it is absent or expired.
func (m *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID]
	if !ok {
		return nil, nil
	}
	if m.expired(e, m.now()) {
		m.removeLocked(e)
		return nil, nil
	}
	m.lru.MoveToFront(e.elem)
	s := e.session
	if s.PendingStatus != nil {
		ref := *s.PendingStatus
		s.PendingStatus = &ref
	}
	return &s, nil
}

// Set stores the session and refreshes its expiry.
func (m *MemoryStore) Set(_ context.Context, userID int64, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s.UpdatedAt = now
	if s.PendingStatus != nil {
		ref := *s.PendingStatus
		s.PendingStatus = &ref
	}

	if e, ok := m.entries[userID]; ok {
		e.session = s
		e.expires = m.expiry(now)
		m.lru.MoveToFront(e.elem)
		return nil
	}

	e := &memoryEntry{userID: userID, session: s, expires: m.expiry(now)}
	e.elem = m.lru.PushFront(e)
	m.entries[userID] = e

	for m.maxEntries > 0 && m.lru.Len() > m.maxEntries {
		oldest := m.lru.Back()
		if oldest == nil {
			break
		}
		evicted := oldest.Value.(*memoryEntry)
		m.removeLocked(evicted)
		logger.Debug(context.Background(), "session", "session.evict",
			slog.Int64("user_id", evicted.userID),
			slog.String("cause", "lru"),
		)
	}
	return nil
}

// Clear removes the user's session.
func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[userID]; ok {
		m.removeLocked(e)
	}
	return nil
}

// Len reports the number of stored sessions, expired ones included until swept.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops every expired session and returns how many were removed.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for _, e := range m.entries {
		if m.expired(e, now) {
			m.removeLocked(e)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired sessions every interval until ctx ends or Close is called.
func (m *MemoryStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					logger.Debug(ctx, "session", "session.sweep",
						slog.Int("count", n),
					)
				}
			}
		}
	}()
}

// Close stops the janitor.
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryStore) expiry(now time.Time) time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return now.Add(m.ttl)
}

func (m *MemoryStore) expired(e *memoryEntry, now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

func (m *MemoryStore) removeLocked(e *memoryEntry) {
	m.lru.Remove(e.elem)
	delete(m.entries, e.userID)
}
