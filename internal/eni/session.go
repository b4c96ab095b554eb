package eni

import (
	"strings"
	"sync"
)

// Session is the per-connection identity. The transport creates one per
// client connection; handshake and login bind a user to it.
type Session struct {
	ID string

	mu   sync.Mutex
	user string
}

// User returns the bound user name, or AnonymousUser.
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == "" {
		return AnonymousUser
	}
	return s.user
}

// Bound reports whether a user has been bound.
func (s *Session) Bound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != ""
}

// Bind sets the session user.
func (s *Session) Bind(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = strings.TrimSpace(user)
}

// Unbind clears the session user.
func (s *Session) Unbind() {
	s.Bind("")
}

// SessionRegistry tracks live sessions so get-users can report who is
// logged in.
type SessionRegistry struct {
	idgen IDGenerator

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(idgen IDGenerator) *SessionRegistry {
	return &SessionRegistry{idgen: idgen, sessions: make(map[string]*Session)}
}

// Open creates and tracks a new session.
func (r *SessionRegistry) Open() *Session {
	s := &Session{ID: r.idgen.New()}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Close stops tracking s.
func (r *SessionRegistry) Close(s *Session) {
	r.mu.Lock()
	delete(r.sessions, s.ID)
	r.mu.Unlock()
}

// LoggedIn reports whether any live session is bound to user.
func (r *SessionRegistry) LoggedIn(user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.Bound() && strings.EqualFold(s.User(), user) {
			return true
		}
	}
	return false
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
