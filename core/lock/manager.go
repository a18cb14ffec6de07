// Package lock provides per-segment mutual exclusion. Every destructive
// operation on a (filename, segment index) pair must hold that pair's lock;
// different pairs never contend. Locks are process local, which is the whole
// coordination model: one server owns one library.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds how long an acquisition waits before giving up.
const DefaultTimeout = 5 * time.Second

// ErrTimeout is returned when a segment lock cannot be acquired within the
// manager's wait bound. Callers surface it as "busy", never as corruption.
var ErrTimeout = errors.New("segment lock timeout")

type lockKey struct {
	filename string
	segment  int
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

// Manager hands out exclusive leases on segment keys. Entries are reference
// counted and removed as soon as the last holder or waiter is gone, so the
// table size tracks live activity, not history.
type Manager struct {
	mu      sync.Mutex
	entries map[lockKey]*lockEntry
	timeout time.Duration
}

// NewManager returns a manager with the given acquisition timeout.
// A zero or negative timeout falls back to DefaultTimeout.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{
		entries: make(map[lockKey]*lockEntry),
		timeout: timeout,
	}
}

// Acquire blocks until the segment is exclusively held, the wait bound
// elapses, or ctx is cancelled. The lock is not reentrant: a second Acquire
// for the same key from the same goroutine waits like any other caller and
// times out.
func (m *Manager) Acquire(ctx context.Context, filename string, segment int) (*Lock, error) {
	k := lockKey{filename: filename, segment: segment}

	m.mu.Lock()
	e, ok := m.entries[k]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		m.entries[k] = e
	}
	e.refs++
	m.mu.Unlock()

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case e.sem <- struct{}{}:
		return &Lock{m: m, k: k, e: e}, nil
	case <-timer.C:
		m.drop(k, e)
		return nil, fmt.Errorf("%w: %s segment %d after %s", ErrTimeout, filename, segment, m.timeout)
	case <-ctx.Done():
		m.drop(k, e)
		return nil, fmt.Errorf("acquire %s segment %d: %w", filename, segment, ctx.Err())
	}
}

// Active returns how many segment keys currently have a holder or waiters.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) drop(k lockKey, e *lockEntry) {
	m.mu.Lock()
	e.refs--
	if e.refs <= 0 {
		delete(m.entries, k)
	}
	m.mu.Unlock()
}

// Lock is a held segment lease.
type Lock struct {
	m    *Manager
	k    lockKey
	e    *lockEntry
	once sync.Once
}

// Release returns the lease. It is idempotent, so it can sit in a defer next
// to explicit early releases without double counting.
func (l *Lock) Release() {
	l.once.Do(func() {
		<-l.e.sem
		l.m.drop(l.k, l.e)
	})
}
