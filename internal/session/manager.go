// Package session owns the authenticated identity: login, registration,
// restore on startup and the persisted user+token pair. The pair is saved
// and cleared atomically, a session is never left half written.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"ciclogo/client/internal/state"
)

// API is the slice of the HTTP client the session manager needs.
type API interface {
	Login(ctx context.Context, email, senha string) (state.User, string, error)
	Register(ctx context.Context, nome, email, senha, telefone string) (string, error)
	MeWith(ctx context.Context, token string) (state.User, error)
	SetAuthToken(token string)
	ClearAuthToken()
}

// Store is the slice of the local store the session manager needs.
type Store interface {
	SaveSession(user state.User, token string) error
	LoadSession() (*state.User, string, error)
	ClearSession() error
}

// Manager holds the current session and keeps it in sync with the store
// and the API client's bearer token.
type Manager struct {
	api    API
	store  Store
	logger zerolog.Logger

	mu    sync.RWMutex
	user  *state.User
	token string
}

// NewManager creates a session manager with no active session.
func NewManager(api API, store Store, logger zerolog.Logger) *Manager {
	return &Manager{api: api, store: store, logger: logger}
}

// Current returns a copy of the authenticated user, or nil.
func (m *Manager) Current() *state.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	user := *m.user
	return &user
}

// Token returns the active bearer token.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Login authenticates against the API and activates the session. The pair
// is persisted before it is installed in memory, so a failure leaves no
// partial session anywhere.
func (m *Manager) Login(ctx context.Context, email, senha string) (state.User, error) {
	user, token, err := m.api.Login(ctx, email, senha)
	if err != nil {
		return state.User{}, err
	}
	if err := m.activate(user, token); err != nil {
		return state.User{}, err
	}
	m.logger.Info().Int("user_id", user.ID).Msg("login ok")
	return user, nil
}

// Register creates the account, fetches the resulting cyclist record and
// activates the session.
func (m *Manager) Register(ctx context.Context, nome, email, senha, telefone string) (state.User, error) {
	token, err := m.api.Register(ctx, nome, email, senha, telefone)
	if err != nil {
		return state.User{}, err
	}
	user, err := m.api.MeWith(ctx, token)
	if err != nil {
		return state.User{}, err
	}
	if err := m.activate(user, token); err != nil {
		return state.User{}, err
	}
	m.logger.Info().Int("user_id", user.ID).Msg("register ok")
	return user, nil
}

// Restore reactivates a persisted session. It returns nil when there is no
// session or the token already expired; an expired pair is wiped.
func (m *Manager) Restore(ctx context.Context) (*state.User, error) {
	user, token, err := m.store.LoadSession()
	if err != nil {
		return nil, err
	}
	if user == nil || token == "" {
		return nil, nil
	}
	if tokenExpired(token, time.Now()) {
		m.logger.Info().Int("user_id", user.ID).Msg("persisted token expired")
		if err := m.store.ClearSession(); err != nil {
			m.logger.Error().Err(err).Msg("clear expired session")
		}
		return nil, nil
	}
	if err := m.activate(*user, token); err != nil {
		return nil, err
	}
	m.logger.Info().Int("user_id", user.ID).Msg("session restored")
	return m.Current(), nil
}

// Logout clears the persisted pair, the in-memory session and the bearer
// token, in that order.
func (m *Manager) Logout(ctx context.Context) error {
	err := m.store.ClearSession()
	m.mu.Lock()
	m.user = nil
	m.token = ""
	m.mu.Unlock()
	m.api.ClearAuthToken()
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	m.logger.Info().Msg("logout ok")
	return nil
}

// ApplyRideStats folds a completed ride into the stored user record.
func (m *Manager) ApplyRideStats(points int, distanceKM float64, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return fmt.Errorf("no active session")
	}
	updated := *m.user
	updated.Pontos += points
	updated.DistanciaKM += distanceKM
	updated.Tempo += duration
	if err := m.store.SaveSession(updated, m.token); err != nil {
		return fmt.Errorf("persist ride stats: %w", err)
	}
	m.user = &updated
	return nil
}

func (m *Manager) activate(user state.User, token string) error {
	if err := m.store.SaveSession(user, token); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.mu.Lock()
	u := user
	m.user = &u
	m.token = token
	m.mu.Unlock()
	m.api.SetAuthToken(token)
	return nil
}

// tokenExpired decodes the JWT payload without verifying the signature and
// checks the exp claim. Anything unreadable counts as expired.
func tokenExpired(token string, now time.Time) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return exp.Before(now)
}
