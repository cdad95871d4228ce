package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/goccy/go-json"
)

const (
	keyPrefix = "tokens:"

	// freecache caps an entry at 1/1024 of the cache, so this floor leaves
	// room for pairs of claim-heavy JWTs.
	minCacheBytes = 4 * 1024 * 1024
)

// ErrPairTooLarge is returned by Set when a pair exceeds the cache's entry limit.
var ErrPairTooLarge = errors.New("token pair exceeds the cache entry limit")

// Cache is a size-bounded, TTL-aware home for the token pairs of all sessions.
type Cache struct {
	cache      *freecache.Cache
	defaultTTL time.Duration
	now        func() time.Time
}

// NewCache creates a Cache of sizeMB megabytes. defaultTTL applies to pairs
// whose expiry cannot be read from the tokens.
func NewCache(sizeMB int, defaultTTL time.Duration) *Cache {
	size := sizeMB * 1024 * 1024
	if size < minCacheBytes {
		size = minCacheBytes
	}
	return &Cache{
		cache:      freecache.NewCache(size),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Store returns the Store of one session.
func (c *Cache) Store(sessionID string) *CacheStore {
	return &CacheStore{cache: c, key: []byte(keyPrefix + sessionID)}
}

// Len returns the number of cached pairs, expired entries included until evicted.
func (c *Cache) Len() int64 {
	return c.cache.EntryCount()
}

// CacheStore is the Store of one session inside a Cache.
type CacheStore struct {
	cache *Cache
	key   []byte
}

func (s *CacheStore) Get() (Pair, bool) {
	raw, err := s.cache.cache.Get(s.key)
	if err != nil {
		return Pair{}, false
	}
	var p Pair
	if err := json.Unmarshal(raw, &p); err != nil {
		return Pair{}, false
	}
	return p, !p.Empty()
}

// Set stores p until its refresh token expires. An already expired pair
// clears the entry instead.
func (s *CacheStore) Set(p Pair) error {
	ttl := Lifetime(p, s.cache.defaultTTL, s.cache.now())
	if ttl <= 0 || p.Empty() {
		return s.Clear()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	err = s.cache.cache.Set(s.key, raw, seconds(ttl))
	if errors.Is(err, freecache.ErrLargeEntry) {
		return fmt.Errorf("%w: %d bytes", ErrPairTooLarge, len(raw))
	}
	return err
}

// KeepAlive pushes the expiry of a pair with opaque tokens out by the
// fallback TTL. Pairs whose lifetime comes from a JWT exp are left alone.
func (s *CacheStore) KeepAlive() {
	p, ok := s.Get()
	if !ok || hasExpiry(p) {
		return
	}
	_ = s.cache.cache.Touch(s.key, seconds(s.cache.defaultTTL))
}

func (s *CacheStore) Clear() error {
	s.cache.cache.Del(s.key)
	return nil
}

func hasExpiry(p Pair) bool {
	for _, raw := range []string{p.RefreshToken, p.AccessToken} {
		if _, ok := Expiry(raw); ok {
			return true
		}
	}
	return false
}

func seconds(d time.Duration) int {
	if s := int(d / time.Second); s > 1 {
		return s
	}
	return 1
}
