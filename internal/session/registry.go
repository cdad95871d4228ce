package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/metrics"
	"github.com/i474232898/weather-dashboard/internal/token"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// DefaultIdleTTL is how long an unused Manager is kept in memory.
const DefaultIdleTTL = 30 * time.Minute

// ClientFactory builds the backend client of a session. hook must be
// registered as the client's auth-failure hook.
type ClientFactory func(tokens token.Store, hook func(error)) Backend

// TransportClients returns a ClientFactory producing backend clients that
// share t.
func TransportClients(t *backend.Transport) ClientFactory {
	return func(tokens token.Store, hook func(error)) Backend {
		return backend.NewClient(t, tokens, backend.WithAuthFailureHook(hook))
	}
}

// Registry maps session ids to Managers. Token pairs live in the token cache
// independently of the Manager, so an evicted session is restored through
// StateChecking on its next request.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Manager

	tokens    *token.Cache
	newClient ClientFactory
	recent    weather.RecentStore
	idleTTL   time.Duration
	metrics   metrics.Recorder
	log       zerolog.Logger
	now       func() time.Time
}

// NewRegistry creates a Registry. idleTTL <= 0 uses DefaultIdleTTL.
func NewRegistry(tokens *token.Cache, newClient ClientFactory, recent weather.RecentStore, idleTTL time.Duration, rec metrics.Recorder, log zerolog.Logger) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Registry{
		sessions:  make(map[string]*Manager),
		tokens:    tokens,
		newClient: newClient,
		recent:    recent,
		idleTTL:   idleTTL,
		metrics:   rec,
		log:       log,
		now:       time.Now,
	}
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// Get returns the Manager of id. Only ids the server issued are honoured: a
// live Manager, or an evicted one whose token pair is still cached. Anything
// else gets a Manager under a new id; the returned Manager's ID is
// authoritative.
func (r *Registry) Get(id string) *Manager {
	r.mu.Lock()
	m, ok := r.sessions[id]
	if !ok {
		if !r.issued(id) {
			id = NewID()
		}
		m = r.build(id)
		r.sessions[id] = m
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		r.metrics.SetSessions(n)
	}
	m.Touch()
	r.tokens.Store(id).KeepAlive()
	return m
}

func (r *Registry) issued(id string) bool {
	if _, err := uuid.Parse(id); err != nil {
		return false
	}
	_, ok := r.tokens.Store(id).Get()
	return ok
}

func (r *Registry) build(id string) *Manager {
	store := r.tokens.Store(id)
	m := NewManager(id, store, r.recent, r.log)
	m.now = r.now
	m.handoff = r.rotate
	m.Bind(r.newClient(store, m.AuthFailed))
	return m
}

// rotate moves the token pair and recent searches of old to a Manager under a
// fresh id and retires old, so an id known before authentication never
// carries the authenticated session.
func (r *Registry) rotate(old *Manager) (*Manager, error) {
	pair, ok := old.tokens.Get()
	if !ok {
		return nil, apperr.Unauthorized(nil, "Login failed. Please try again.")
	}

	r.mu.Lock()
	id := NewID()
	next := r.build(id)
	if err := next.tokens.Set(pair); err != nil {
		r.mu.Unlock()
		return nil, apperr.Upstream(err, "", "Failed to store credentials")
	}
	// The old pair goes before the lock is released so Get cannot restore
	// a session under the old id.
	old.discardTokens()
	delete(r.sessions, old.id)
	r.sessions[id] = next
	n := len(r.sessions)
	r.mu.Unlock()

	if r.recent != nil {
		r.recent.Move(old.id, id)
	}
	r.metrics.SetSessions(n)
	r.log.Debug().Str("from", shortID(old.id)).Str("to", shortID(id)).Msg("session id rotated")
	return next, nil
}

// Len returns the number of live Managers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts Managers idle for longer than the idle TTL and returns how many
// were removed. Recent searches outlive the Manager only while its token pair
// is still cached.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var evicted []*Manager
	for id, m := range r.sessions {
		if m.IdleSince().Before(cutoff) {
			evicted = append(evicted, m)
			delete(r.sessions, id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, m := range evicted {
		if _, ok := m.tokens.Get(); !ok && r.recent != nil {
			r.recent.Clear(m.ID())
		}
	}
	if len(evicted) > 0 {
		r.metrics.SetSessions(n)
		r.log.Debug().Int("evicted", len(evicted)).Int("live", n).Msg("idle sessions swept")
	}
	return len(evicted)
}
