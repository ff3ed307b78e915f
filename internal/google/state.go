package google

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// stateTTL bounds how long an issued state nonce stays redeemable.
const stateTTL = 5 * time.Minute

// StateStore issues and validates single-use OAuth state nonces to
// protect the callback against CSRF. Nonces expire after five minutes
// and are consumed on first use.
type StateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[string]time.Time),
		now:    time.Now,
	}
}

// Issue creates and records a new random state nonce.
func (s *StateStore) Issue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	state := hex.EncodeToString(buf)

	s.mu.Lock()
	s.states[state] = s.now()
	s.mu.Unlock()
	return state, nil
}

// Consume validates a state nonce and removes it. It returns false for
// unknown, reused or expired nonces.
func (s *StateStore) Consume(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.states[state]
	if !ok {
		return false
	}
	delete(s.states, state)
	return s.now().Sub(issued) < stateTTL
}
