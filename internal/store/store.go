package store

import (
	"sync"

	"golang.org/x/oauth2"
)

// Op identifies the kind of mutation reported by a watch event.
type Op string

const (
	// OpSet is emitted when a credential is stored or replaced.
	OpSet Op = "set"

	// OpDelete is emitted when a credential is removed.
	OpDelete Op = "delete"
)

// Event describes a single store mutation.
type Event struct {
	Op     Op
	UserID string
}

// watchBuffer is the per-subscriber event buffer size. Publishing never
// blocks; a subscriber that falls this far behind drops events.
const watchBuffer = 16

// Store is a process-wide credential store mapping a user identity to
// its OAuth token. It supports concurrent access from independent
// in-flight requests and holds credentials for the lifetime of the
// process only.
type Store struct {
	mu     sync.RWMutex
	tokens map[string]*oauth2.Token
	subs   []chan Event
}

// New creates an empty credential store.
func New() *Store {
	return &Store{
		tokens: make(map[string]*oauth2.Token),
	}
}

// Set stores the token for the given user, replacing any existing entry.
// The token is not validated; callers own its shape.
func (s *Store) Set(userID string, token *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = token
	s.publishLocked(Event{Op: OpSet, UserID: userID})
}

// Get returns the token stored for the given user, or false when no
// credential exists for that identity.
func (s *Store) Get(userID string) (*oauth2.Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[userID]
	return token, ok
}

// Delete removes the credential for the given user. Deleting an unknown
// user is a no-op.
func (s *Store) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, existed := s.tokens[userID]; !existed {
		return
	}
	delete(s.tokens, userID)
	s.publishLocked(Event{Op: OpDelete, UserID: userID})
}

// Len returns the number of stored credentials.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// Watch returns a channel receiving an event for every store mutation.
// Events for slow subscribers are dropped rather than blocking writers.
func (s *Store) Watch() <-chan Event {
	ch := make(chan Event, watchBuffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Unwatch removes a subscription previously returned by Watch and
// closes its channel.
func (s *Store) Unwatch(ch <-chan Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub == ch {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// publishLocked delivers an event to every subscriber without blocking.
// Callers must hold mu: sending under the lock keeps a concurrent
// Unwatch from closing a channel between snapshot and send.
func (s *Store) publishLocked(ev Event) {
	for _, sub := range s.subs {
		select {
		case sub <- ev:
		default:
		}
	}
}
