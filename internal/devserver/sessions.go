package devserver

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type refreshSession struct {
	ID       string
	Username string
}

// rotation links a rotated refresh session to the one that replaced it.
type rotation struct {
	from, to string
	until    time.Time
}

// sessionStore keeps refresh sessions until they expire or are rotated.
//
// A rotated session stays usable for a short grace period: presenting it
// again yields its successor instead of an error, and csrf tokens of the
// rotated session are still accepted next to the successor's cookie.
// Concurrent requests that all saw the same 401 can therefore each refresh.
type sessionStore struct {
	mu    sync.Mutex
	cache *cache.Cache
	ttl   time.Duration

	grace        time.Duration
	now          func() time.Time
	successors   *cache.Cache
	predecessors *cache.Cache
}

func newSessionStore(ttl, grace time.Duration, now func() time.Time) *sessionStore {
	return &sessionStore{
		cache:        cache.New(ttl, time.Minute),
		ttl:          ttl,
		grace:        grace,
		now:          now,
		successors:   cache.New(grace, time.Minute),
		predecessors: cache.New(grace, time.Minute),
	}
}

func (s *sessionStore) create(username string) refreshSession {
	sess := refreshSession{ID: newSessionID(), Username: username}
	s.cache.Set(sess.ID, sess, s.ttl)

	return sess
}

// take removes and returns the session, so each refresh token works once.
// Callers hold s.mu.
func (s *sessionStore) take(id string) (refreshSession, bool) {
	val, ok := s.cache.Get(id)
	if !ok {
		return refreshSession{}, false
	}
	s.cache.Delete(id)

	//nolint:forcetypeassert
	return val.(refreshSession), true
}

// rotate replaces the session id with a new one. Within the grace period a
// second rotation of the same id returns the successor that was already
// issued, as long as that successor has not been rotated or revoked itself.
func (s *sessionStore) rotate(id string) (refreshSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.take(id); ok {
		next := refreshSession{ID: newSessionID(), Username: sess.Username}
		s.cache.Set(next.ID, next, s.ttl)

		r := rotation{from: id, to: next.ID, until: s.now().Add(s.grace)}
		s.successors.Set(id, r, s.grace)
		s.predecessors.Set(next.ID, r, s.grace)

		return next, true
	}

	r, ok := s.lookup(s.successors, id)
	if !ok {
		return refreshSession{}, false
	}

	val, ok := s.cache.Get(r.to)
	if !ok {
		return refreshSession{}, false
	}

	//nolint:forcetypeassert
	return val.(refreshSession), true
}

// predecessor returns the session id that was rotated into id within the
// grace period.
func (s *sessionStore) predecessor(id string) (string, bool) {
	r, ok := s.lookup(s.predecessors, id)
	if !ok {
		return "", false
	}

	return r.from, true
}

func (s *sessionStore) lookup(c *cache.Cache, id string) (rotation, bool) {
	val, ok := c.Get(id)
	if !ok {
		return rotation{}, false
	}

	//nolint:forcetypeassert
	r := val.(rotation)
	if !s.now().Before(r.until) {
		return rotation{}, false
	}

	return r, true
}

// revoke drops the session and, when it was rotated recently, its successor.
func (s *sessionStore) revoke(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(id)
	if r, ok := s.lookup(s.successors, id); ok {
		s.cache.Delete(r.to)
	}
}

// revokeUser drops every session of username.
func (s *sessionStore) revokeUser(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, item := range s.cache.Items() {
		if sess, ok := item.Object.(refreshSession); ok && sess.Username == username {
			s.cache.Delete(id)
		}
	}
}
