package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Store holds session state process-wide. Mutations of one session are
// serialized through WithLock; different sessions never contend.
type Store interface {
	// Get returns a snapshot copy. Changes to it are not persisted.
	Get(ctx context.Context, id string) (*Session, error)
	// Upsert replaces the stored state of s.ID.
	Upsert(ctx context.Context, s *Session) error
	// WithLock runs fn with exclusive access to the session, creating it on
	// first use. The session is committed only when fn returns nil.
	WithLock(ctx context.Context, id string, fn func(s *Session) error) error
}

// Sweeper is implemented by stores that can drop settled sessions.
type Sweeper interface {
	// Sweep removes concluded sessions whose delivery has settled and which
	// have not been updated since cutoff. It returns how many were removed.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

func evictable(s *Session, cutoff time.Time) bool {
	return s.Concluded && s.Delivery.Settled() && s.UpdatedAt.Before(cutoff)
}
