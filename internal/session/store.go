package session

import (
	"sync"
)

// Pathway identifies one of the independent ways a session can be established
type Pathway string

const (
	PathwayPassword Pathway = "password"
	PathwayGoogle   Pathway = "google"
	PathwayGitHub   Pathway = "github"
)

// Pathways lists every supported pathway in display order
var Pathways = []Pathway{PathwayPassword, PathwayGoogle, PathwayGitHub}

// Valid reports whether p is a known pathway
func (p Pathway) Valid() bool {
	switch p {
	case PathwayPassword, PathwayGoogle, PathwayGitHub:
		return true
	}
	return false
}

// Session is the signed-in user as returned by the storefront API (the userInfo record)
type Session struct {
	UserID      string  `json:"_id"`
	Username    string  `json:"username,omitempty"`
	Email       string  `json:"email,omitempty"`
	DisplayName string  `json:"name"`
	IsAdmin     bool    `json:"isAdmin"`
	Token       string  `json:"token"`
	IssuedVia   Pathway `json:"issuedVia,omitempty"`
}

// Listener is called after every store mutation with the previous and new session.
// Either may be nil. Listeners run synchronously and must not mutate the store.
type Listener func(prev, next *Session)

// Store is the single source of truth for who is logged in
type Store struct {
	// writeMu serializes mutations together with their notifications
	writeMu sync.Mutex

	mu        sync.RWMutex
	current   *Session
	listeners map[int]Listener
	nextID    int
}

// NewStore creates an empty store, optionally seeded with a hydrated session
func NewStore(initial *Session) *Store {
	s := &Store{listeners: make(map[int]Listener)}
	if initial != nil {
		cp := *initial
		s.current = &cp
	}
	return s
}

// Get returns a copy of the active session
func (s *Store) Get() (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	cp := *s.current
	return &cp, true
}

// Token returns the active session's token, or "" when signed out
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// Set replaces the active session and notifies subscribers before returning
func (s *Store) Set(sess Session) {
	next := sess
	s.mutate(&next)
}

// Clear destroys the active session (logout)
func (s *Store) Clear() {
	s.mutate(nil)
}

// Subscribe registers a listener and returns a function that removes it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) mutate(next *Session) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	prev := s.current
	s.current = next
	listeners := s.snapshotListeners()
	s.mu.Unlock()

	for _, l := range listeners {
		l(copySession(prev), copySession(next))
	}
}

// snapshotListeners returns listeners in subscription order. Caller holds mu.
func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			out = append(out, l)
		}
	}
	return out
}

func copySession(s *Session) *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}
