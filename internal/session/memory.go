package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore keeps sessions in process memory. Each session has its own
// lock; reads load a committed snapshot without taking it.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	lock chan struct{}
	snap atomic.Pointer[Session]
	dead bool // guarded by lock
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s := e.snap.Load()
	if s == nil {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Upsert(ctx context.Context, s *Session) error {
	return m.WithLock(ctx, s.ID, func(cur *Session) error {
		version := cur.Version
		*cur = *s.Clone()
		cur.Version = version
		return nil
	})
}

func (m *MemoryStore) WithLock(ctx context.Context, id string, fn func(s *Session) error) error {
	for {
		e := m.entry(id)
		select {
		case e.lock <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if e.dead {
			<-e.lock
			continue
		}
		err := m.apply(e, id, fn)
		<-e.lock
		return err
	}
}

// apply runs fn on a working copy and publishes it on success. Caller holds e.lock.
func (m *MemoryStore) apply(e *entry, id string, fn func(s *Session) error) error {
	var work *Session
	if cur := e.snap.Load(); cur != nil {
		work = cur.Clone()
	} else {
		work = New(id, m.now())
	}

	if err := fn(work); err != nil {
		if e.snap.Load() == nil {
			m.drop(id, e)
		}
		return err
	}

	work.ID = id
	work.Version++
	work.UpdatedAt = m.now()
	e.snap.Store(work)
	return nil
}

func (m *MemoryStore) entry(id string) *entry {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if ok {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		return e
	}
	e = &entry{lock: make(chan struct{}, 1)}
	m.entries[id] = e
	return e
}

// drop removes an entry. Caller holds e.lock.
func (m *MemoryStore) drop(id string, e *entry) {
	e.dead = true
	m.mu.Lock()
	if m.entries[id] == e {
		delete(m.entries, id)
	}
	m.mu.Unlock()
}

func (m *MemoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.RLock()
	candidates := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		if s := e.snap.Load(); s != nil && evictable(s, cutoff) {
			candidates[id] = e
		}
	}
	m.mu.RUnlock()

	n := 0
	for id, e := range candidates {
		select {
		case e.lock <- struct{}{}:
		default:
			continue // busy, so not idle
		}
		if s := e.snap.Load(); !e.dead && s != nil && evictable(s, cutoff) {
			m.drop(id, e)
			n++
		}
		<-e.lock
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.snap.Load() != nil {
			n++
		}
	}
	return n
}
