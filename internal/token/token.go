// Package token keeps the access/refresh token pair of a session behind an
// explicit store interface, so the HTTP client never reaches for ambient state.
package token

import "sync"

// Pair is an access/refresh token pair issued by the auth backend.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Empty reports whether the pair carries no credential at all.
func (p Pair) Empty() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

// Store persists one session's token pair. Get is called at request time so
// a pair rotated by a concurrent request is picked up.
type Store interface {
	Get() (Pair, bool)
	Set(p Pair) error
	Clear() error
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemoryStore creates a MemoryStore seeded with p.
func NewMemoryStore(p Pair) *MemoryStore {
	return &MemoryStore{pair: p}
}

func (s *MemoryStore) Get() (Pair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, !s.pair.Empty()
}

func (s *MemoryStore) Set(p Pair) error {
	s.mu.Lock()
	s.pair = p
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.pair = Pair{}
	s.mu.Unlock()
	return nil
}
