package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxSessions bounds how many decoded photos the server holds at once.
const DefaultMaxSessions = 256

// Store tracks live sessions by id.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	max      int
	now      func() time.Time
}

// NewStore creates a store holding at most max sessions (DefaultMaxSessions
// when max <= 0). When full, the least recently used session is evicted.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultMaxSessions
	}
	return &Store{
		sessions: make(map[string]*Session),
		max:      max,
		now:      time.Now,
	}
}

// Create starts a new session with a random id.
func (s *Store) Create() *Session {
	sess := newSession(uuid.NewString(), s.now)

	s.mu.Lock()
	var evicted *Session
	if len(s.sessions) >= s.max {
		evicted = s.oldestLocked()
		if evicted != nil {
			delete(s.sessions, evicted.id)
		}
	}
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	if evicted != nil {
		evicted.Close()
		zap.L().Info("session evicted", zap.String("session", evicted.id))
	}
	return sess
}

// Get returns the session with id, or false if it does not exist. A hit counts
// as activity for expiry.
func (s *Store) Get(id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false
	}
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.touch()
	}
	return sess, ok
}

// GetOrCreate returns the session with id, creating a fresh one when id is
// unknown. The bool reports whether a new session was created.
func (s *Store) GetOrCreate(id string) (*Session, bool) {
	if sess, ok := s.Get(id); ok {
		return sess, false
	}
	return s.Create(), true
}

// Delete closes and forgets a session.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.Close()
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Expire closes sessions idle for longer than maxIdle. Busy sessions are kept.
// It returns the number of sessions removed.
func (s *Store) Expire(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	var expired []*Session
	for id, sess := range s.sessions {
		if sess.Busy() || !sess.LastUsed().Before(cutoff) {
			continue
		}
		expired = append(expired, sess)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
	}
	return len(expired)
}

// CloseAll releases every session.
func (s *Store) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.Close()
	}
}

func (s *Store) oldestLocked() *Session {
	var oldest *Session
	for _, sess := range s.sessions {
		if oldest == nil || sess.LastUsed().Before(oldest.LastUsed()) {
			oldest = sess
		}
	}
	return oldest
}
