package store

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-dashboard/internal/weather"
)

// DefaultMaxRecent is the number of recent searches kept per session.
const DefaultMaxRecent = 5

// RecentHistory holds the recent searches of one session, newest first.
type RecentHistory struct {
	Searches []weather.RecentSearch
}

// MemoryStore is a concurrency-safe in-memory store of recent searches.
type MemoryStore struct {
	mu sync.RWMutex

	// key: session owner, value: history
	data map[string]*RecentHistory

	maxItems int
	now      func() time.Time
}

// NewMemoryStore creates a new MemoryStore keeping at most maxItems searches
// per owner. If maxItems is <= 0, DefaultMaxRecent is used.
func NewMemoryStore(maxItems int) *MemoryStore {
	if maxItems <= 0 {
		maxItems = DefaultMaxRecent
	}
	return &MemoryStore{
		data:     make(map[string]*RecentHistory),
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Add puts city at the front of owner's list. A previous search for the same
// city (case-insensitive) is dropped first; the list is then trimmed.
func (s *MemoryStore) Add(owner, city, country string) weather.RecentSearch {
	entry := weather.RecentSearch{
		ID:        uuid.NewString(),
		City:      strings.TrimSpace(city),
		Country:   country,
		CreatedAt: s.now().UnixMilli(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[owner]
	if !ok {
		history = &RecentHistory{}
		s.data[owner] = history
	}

	searches := make([]weather.RecentSearch, 0, len(history.Searches)+1)
	searches = append(searches, entry)
	for _, existing := range history.Searches {
		if existing.Key() == entry.Key() {
			continue
		}
		searches = append(searches, existing)
	}

	if len(searches) > s.maxItems {
		searches = searches[:s.maxItems]
	}
	history.Searches = searches
	return entry
}

// List returns a copy of owner's searches, newest first.
func (s *MemoryStore) List(owner string) []weather.RecentSearch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[owner]
	if !ok {
		return []weather.RecentSearch{}
	}
	out := make([]weather.RecentSearch, len(history.Searches))
	copy(out, history.Searches)
	return out
}

// Remove deletes the search with the given id.
func (s *MemoryStore) Remove(owner, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[owner]
	if !ok {
		return false
	}
	for i, existing := range history.Searches {
		if existing.ID == id {
			history.Searches = append(history.Searches[:i:i], history.Searches[i+1:]...)
			return true
		}
	}
	return false
}

// Clear forgets every search of owner.
func (s *MemoryStore) Clear(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, owner)
}

// Move re-keys from's list under to. A missing list clears to.
func (s *MemoryStore) Move(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[from]
	delete(s.data, from)
	if !ok {
		delete(s.data, to)
		return
	}
	s.data[to] = history
}

// Owners returns how many sessions currently hold a list.
func (s *MemoryStore) Owners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
