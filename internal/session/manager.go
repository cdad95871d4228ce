// Package session owns the authentication state of each browser session.
// The Manager is the only writer of a session's identity and token pair;
// HTTP handlers read it through Snapshot.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/weather-dashboard/internal/apperr"
	"github.com/i474232898/weather-dashboard/internal/backend"
	"github.com/i474232898/weather-dashboard/internal/token"
	"github.com/i474232898/weather-dashboard/internal/weather"
)

// State is the authentication state of a session.
type State string

const (
	// StateChecking is the initial state: a persisted pair may exist and has
	// not been verified yet.
	StateChecking        State = "checking"
	StateUnauthenticated State = "unauthenticated"
	// StateAuthenticating means a login or registration is in flight.
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
)

// Backend is what a Manager needs from the remote backend.
type Backend interface {
	weather.Source
	Login(ctx context.Context, creds backend.Credentials) (backend.AuthResult, error)
	Register(ctx context.Context, reg backend.Registration) (backend.AuthResult, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (backend.User, error)
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID    string        `json:"-"`
	State State         `json:"state"`
	User  *backend.User `json:"user,omitempty"`
	Error string        `json:"error,omitempty"`
}

// Authenticated reports whether the snapshot carries an identity.
func (s Snapshot) Authenticated() bool {
	return s.State == StateAuthenticated && s.User != nil
}

// Manager drives the state machine of one session.
type Manager struct {
	id     string
	tokens token.Store
	client Backend
	recent weather.RecentStore
	log    zerolog.Logger

	// handoff, when set, moves a freshly authenticated session to a new
	// Manager under a new id and returns it.
	handoff func(*Manager) (*Manager, error)

	// checkMu serializes Check so that the profile is fetched once.
	checkMu sync.Mutex

	mu       sync.RWMutex
	state    State
	user     *backend.User
	lastErr  string
	lastSeen time.Time
	now      func() time.Time
}

// NewManager creates a Manager in StateChecking. The client is attached with
// Bind once it has been built with the Manager's auth-failure hook.
func NewManager(id string, tokens token.Store, recent weather.RecentStore, log zerolog.Logger) *Manager {
	m := &Manager{
		id:     id,
		tokens: tokens,
		recent: recent,
		log:    log.With().Str("component", "session").Logger(),
		state:  StateChecking,
		now:    time.Now,
	}
	m.lastSeen = m.now()
	return m
}

// Bind attaches the backend client.
func (m *Manager) Bind(client Backend) {
	m.client = client
}

// ID returns the session id.
func (m *Manager) ID() string {
	return m.id
}

// Client returns the session's backend client.
func (m *Manager) Client() Backend {
	return m.client
}

// Touch records activity on the session.
func (m *Manager) Touch() {
	m.mu.Lock()
	m.lastSeen = m.now()
	m.mu.Unlock()
}

// IdleSince returns the time of the last activity.
func (m *Manager) IdleSince() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSeen
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{ID: m.id, State: m.state, Error: m.lastErr}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

func (m *Manager) transition(to State, user *backend.User, errMsg string) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.user = user
	m.lastErr = errMsg
	m.mu.Unlock()

	if from != to {
		m.log.Debug().Str("session", shortID(m.id)).Str("from", string(from)).Str("to", string(to)).Msg("session state changed")
	}
}

// Check resolves StateChecking: a persisted pair is verified by fetching the
// profile. Without a pair, or when the profile cannot be fetched, the pair is
// discarded and the session becomes unauthenticated. In any other state Check
// only returns the snapshot.
func (m *Manager) Check(ctx context.Context) Snapshot {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	if m.Snapshot().State != StateChecking {
		return m.Snapshot()
	}

	if _, ok := m.tokens.Get(); !ok {
		m.transition(StateUnauthenticated, nil, "")
		return m.Snapshot()
	}

	user, err := m.client.Profile(ctx)
	if err != nil {
		m.log.Info().Err(err).Str("session", shortID(m.id)).Msg("persisted credentials rejected")
		m.discardTokens()
		m.transition(StateUnauthenticated, nil, "")
		return m.Snapshot()
	}

	m.transition(StateAuthenticated, &user, "")
	return m.Snapshot()
}

// Login authenticates with credentials. On failure the session is left
// unauthenticated with the error surfaced and no tokens persisted. Inside a
// Registry the authenticated session continues under a new id; the returned
// Snapshot carries it.
func (m *Manager) Login(ctx context.Context, creds backend.Credentials) (Snapshot, error) {
	return m.authenticate(ctx, func(ctx context.Context) (backend.AuthResult, error) {
		return m.client.Login(ctx, creds)
	}, "Login failed. Please check your credentials.")
}

// Register creates an account and authenticates with it.
func (m *Manager) Register(ctx context.Context, reg backend.Registration) (Snapshot, error) {
	return m.authenticate(ctx, func(ctx context.Context) (backend.AuthResult, error) {
		return m.client.Register(ctx, reg)
	}, "Registration failed. Please try again.")
}

func (m *Manager) authenticate(ctx context.Context, fn func(context.Context) (backend.AuthResult, error), fallback string) (Snapshot, error) {
	m.transition(StateAuthenticating, nil, "")

	res, err := fn(ctx)
	if err != nil {
		m.discardTokens()
		msg := err.Error()
		if msg == "" {
			msg = fallback
		}
		m.transition(StateUnauthenticated, nil, msg)
		return m.Snapshot(), err
	}

	next := m
	if m.handoff != nil {
		if next, err = m.handoff(m); err != nil {
			m.discardTokens()
			m.transition(StateUnauthenticated, nil, fallback)
			return m.Snapshot(), err
		}
		m.transition(StateUnauthenticated, nil, "")
	}

	user := res.User
	next.transition(StateAuthenticated, &user, "")
	next.log.Info().Str("session", shortID(next.id)).Str("user", string(user.ID)).Msg("user authenticated")
	return next.Snapshot(), nil
}

// Logout invalidates the refresh token on the backend on a best-effort basis
// and always clears the local state and recent searches.
func (m *Manager) Logout(ctx context.Context) {
	if m.client != nil {
		if err := m.client.Logout(ctx); err != nil {
			m.log.Warn().Err(err).Str("session", shortID(m.id)).Msg("server-side logout failed")
		}
	}
	m.discardTokens()
	if m.recent != nil {
		m.recent.Clear(m.id)
	}
	m.transition(StateUnauthenticated, nil, "")
}

// AuthFailed is the backend client's hook for an authorization failure that
// a refresh could not repair. The client has already cleared the tokens.
func (m *Manager) AuthFailed(err error) {
	m.transition(StateUnauthenticated, nil, "Your session has expired. Please log in again.")
	m.log.Info().Err(err).Str("session", shortID(m.id)).Msg("session reset after authorization failure")
}

// RequireUser returns the current user or an Unauthorized error.
func (m *Manager) RequireUser() (backend.User, error) {
	s := m.Snapshot()
	if !s.Authenticated() {
		return backend.User{}, apperr.Unauthorized(nil, "Please log in to continue.")
	}
	return *s.User, nil
}

func (m *Manager) discardTokens() {
	if err := m.tokens.Clear(); err != nil {
		m.log.Error().Err(err).Str("session", shortID(m.id)).Msg("failed to clear token store")
	}
}

// shortID keeps session ids out of logs in full.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
