// Package memory provides an in-memory session.Store for development and
// single-instance deployments. Sessions are lost when the process restarts.
// Optional LRU eviction limits memory usage.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rhuss/weft/pkg/session"
)

// entry holds a stored session and its LRU position.
type entry struct {
	sess    *session.Session
	lruElem *list.Element
}

// Store is an in-memory session.Store with optional LRU eviction.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	lruList *list.List // front = most recently used
	maxSize int        // 0 = unlimited
	now     func() time.Time
}

var _ session.Store = (*Store)(nil)

// New creates an in-memory store. If maxSize is 0, the store grows without
// limit; otherwise the least recently used session is evicted when full.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get returns a copy of the session. Expired sessions are removed and
// reported as session.ErrNotFound.
func (s *Store) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	if e.sess.Expired(s.now()) {
		s.remove(id, e)
		return nil, session.ErrNotFound
	}

	s.lruList.MoveToFront(e.lruElem)
	return clone(e.sess), nil
}

// Save creates or replaces a session.
func (s *Store) Save(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[sess.ID]; ok {
		e.sess = clone(sess)
		s.lruList.MoveToFront(e.lruElem)
		return nil
	}

	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.lruList.PushFront(sess.ID)
	s.entries[sess.ID] = &entry{sess: clone(sess), lruElem: elem}
	return nil
}

// Delete removes a session.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return session.ErrNotFound
	}
	s.remove(id, e)
	return nil
}

// Len returns the number of stored sessions, including expired ones not
// yet touched.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// remove must be called with s.mu held.
func (s *Store) remove(id string, e *entry) {
	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
}

// evictOldest removes the least recently used entry.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	back := s.lruList.Back()
	if back == nil {
		return
	}
	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
}

func clone(sess *session.Session) *session.Session {
	c := *sess
	if sess.Data != nil {
		c.Data = make(map[string]string, len(sess.Data))
		for k, v := range sess.Data {
			c.Data[k] = v
		}
	}
	return &c
}
