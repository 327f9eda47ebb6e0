package tracker

import (
	"sync"

	"github.com/google/uuid"
)

// SessionStore supplies the tab-scoped session id. A session is a
// client-local pseudo-identity grouping the pageviews of one surface; the
// server treats it as opaque.
type SessionStore interface {
	// SessionID returns the current session id, creating one if absent.
	SessionID() string
}

// MemorySessionStore keeps the session id for the lifetime of the process,
// the closest in-process analogue to tab-scoped storage. The zero value is
// ready to use.
type MemorySessionStore struct {
	mu sync.Mutex
	id string
}

func (s *MemorySessionStore) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == "" {
		s.id = uuid.NewString()
	}
	return s.id
}
