package lock

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConflictError is returned when any requested resource is already locked.
// It is retryable by the caller; the manager never queues or retries.
type ConflictError struct {
	ResourceIDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resources already locked: %s", strings.Join(e.ResourceIDs, ", "))
}

// Handle identifies one successful batch acquisition.
type Handle struct {
	ID         string
	RunID      string
	Resources  []string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

type entry struct {
	handleID string
	runID    string
	expires  time.Time
}

// Manager serializes allocation commits over the shared resource pool.
// Acquisition is all-or-nothing across the requested set and locks
// auto-expire after their TTL so a crashed run cannot wedge the pool.
type Manager struct {
	mu         sync.Mutex
	locks      map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewManager creates a manager with the given default TTL.
func NewManager(defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &Manager{
		locks:      make(map[string]entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// SetClock overrides the time source. Tests use it to drive TTL expiry.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Acquire locks the whole resource set for runID or fails without locking
// anything. A zero ttl uses the manager default.
func (m *Manager) Acquire(runID string, resourceIDs []string, ttl time.Duration) (*Handle, error) {
	if len(resourceIDs) == 0 {
		return nil, fmt.Errorf("empty resource set")
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.purgeExpired(now)

	var conflicts []string
	for _, id := range resourceIDs {
		if _, held := m.locks[id]; held {
			conflicts = append(conflicts, id)
		}
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return nil, &ConflictError{ResourceIDs: conflicts}
	}

	h := &Handle{
		ID:         uuid.NewString(),
		RunID:      runID,
		Resources:  append([]string(nil), resourceIDs...),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	for _, id := range resourceIDs {
		m.locks[id] = entry{handleID: h.ID, runID: runID, expires: h.ExpiresAt}
	}
	return h, nil
}

// Release frees every resource still held by the handle. Releasing an
// expired or already-released handle is a no-op.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range h.Resources {
		if e, ok := m.locks[id]; ok && e.handleID == h.ID {
			delete(m.locks, id)
		}
	}
}

// Validate reports whether the handle still holds its entire resource set.
// The pipeline revalidates immediately before commit instead of trusting the
// earlier snapshot.
func (m *Manager) Validate(h *Handle) bool {
	if h == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.purgeExpired(now)
	for _, id := range h.Resources {
		e, ok := m.locks[id]
		if !ok || e.handleID != h.ID {
			return false
		}
	}
	return true
}

// Held reports whether a resource is currently locked.
func (m *Manager) Held(resourceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgeExpired(m.now())
	_, ok := m.locks[resourceID]
	return ok
}

func (m *Manager) purgeExpired(now time.Time) {
	for id, e := range m.locks {
		if now.After(e.expires) {
			delete(m.locks, id)
		}
	}
}
