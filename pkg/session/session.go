package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/botportal/pkg/models"
)

// State is the authentication state of a session.
type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrNoFetcher is returned by Load when no user fetcher was attached.
var ErrNoFetcher = errors.New("session has no user fetcher")

// UserFetcher resolves the user the current token belongs to.
type UserFetcher interface {
	Me(ctx context.Context) (*models.User, error)
}

// Session is the single source of the token and the current user. It is
// built once at start and handed to every consumer.
type Session struct {
	store   TokenStore
	logger  *slog.Logger
	fetcher UserFetcher

	mu             sync.RWMutex
	state          State
	token          string
	user           *models.User
	onUnauthorized []func()
}

// New creates a session in the loading state.
func New(store TokenStore, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		store:  store,
		logger: logger.With("module", "session"),
		state:  StateLoading,
	}
}

// UseFetcher attaches the user fetcher. The API client usually needs the
// session as its credentials, so it is attached after both exist.
func (s *Session) UseFetcher(fetcher UserFetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetcher = fetcher
}

// OnUnauthorized registers a hook run after the server rejects the token.
func (s *Session) OnUnauthorized(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onUnauthorized = append(s.onUnauthorized, hook)
}

// Load reads the stored token and resolves its user. Without a token the
// session becomes unauthenticated without calling the server. A failing
// user lookup clears the token and is returned.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateLoading
	fetcher := s.fetcher
	s.mu.Unlock()

	token, err := s.store.Load(ctx)
	if err != nil {
		s.setUnauthenticated()

		return fmt.Errorf("load session: %w", err)
	}

	if token == "" {
		s.setUnauthenticated()

		return nil
	}

	if fetcher == nil {
		s.setUnauthenticated()

		return ErrNoFetcher
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	// The lock is not held here: a 401 calls back into Invalidate.
	user, err := fetcher.Me(ctx)
	if err != nil {
		s.logger.Warn("Stored token rejected, signing out", "error", err)
		s.clear(ctx)

		return fmt.Errorf("load session: %w", err)
	}

	s.mu.Lock()
	if s.token == token {
		s.user = user
		s.state = StateAuthenticated
	}
	s.mu.Unlock()

	s.logger.Debug("Session loaded", "user_id", user.ID, "role", user.Role)

	return nil
}

// SetToken persists a new token and reloads the user.
func (s *Session) SetToken(ctx context.Context, token string) error {
	if err := s.store.Save(ctx, token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}

	return s.Load(ctx)
}

// Logout clears the token and the user.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.state = StateUnauthenticated
	s.mu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}

	return nil
}

// Token returns the current bearer token, or "".
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.token
}

// Invalidate drops a token the server rejected and runs the
// OnUnauthorized hooks.
func (s *Session) Invalidate() {
	s.clear(context.Background())

	s.mu.RLock()
	hooks := append([]func(){}, s.onUnauthorized...)
	s.mu.RUnlock()

	for _, hook := range hooks {
		hook()
	}
}

// State returns the authentication state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// User returns the signed-in user, or nil.
func (s *Session) User() *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.user
}

func (s *Session) setUnauthenticated() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.user = nil
	s.state = StateUnauthenticated
}

func (s *Session) clear(ctx context.Context) {
	s.setUnauthenticated()

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("Failed to clear stored token", "error", err)
	}
}
