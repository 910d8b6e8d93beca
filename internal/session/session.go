// Package session holds the signed-in user and the bearer token.
//
// A Store is injected into the API client as its TokenSource and 401 hook,
// so every request reads the current token and any rejected token tears the
// session down. Consumers observe transitions through Subscribe instead of
// polling.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/usestring/customs-mcp/pkg/client"
)

// State is the lifecycle position of a session.
type State string

const (
	StateUnknown       State = "unknown"
	StateChecking      State = "checking"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// Reason explains why a session changed.
type Reason string

const (
	ReasonRestored Reason = "restored"
	ReasonLogin    Reason = "login"
	ReasonLogout   Reason = "logout"
	ReasonExpired  Reason = "expired"
	ReasonInvalid  Reason = "invalid"
	ReasonNoToken  Reason = "no_token"
)

// ErrNotAuthenticated is returned by operations that need a signed-in user.
var ErrNotAuthenticated = errors.New("not authenticated")

// Event is delivered to subscribers after every settled transition.
type Event struct {
	State  State
	User   *client.User
	Reason Reason
	// Ended is set when the transition leaves a signed-in session,
	// whatever the reason. A failed re-login ends the old session too.
	Ended bool
}

// Torndown reports whether the event ends a previously signed-in session.
func (e Event) Torndown() bool {
	return e.State == StateAnonymous && (e.Ended || e.Reason == ReasonLogout || e.Reason == ReasonExpired)
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State           State        `json:"state"`
	User            *client.User `json:"user,omitempty"`
	IsAuthenticated bool         `json:"is_authenticated"`
	Loading         bool         `json:"loading"`
}

// Store is the auth session state machine.
type Store struct {
	api    *client.Client
	tokens TokenStore
	now    func() time.Time

	mu       sync.RWMutex
	state    State
	token    string
	user     *client.User
	signedIn bool // an Authenticated settle not yet followed by an Anonymous one

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store and binds it to api as token source and 401 hook.
func New(api *client.Client, tokens TokenStore, opts ...Option) *Store {
	if tokens == nil {
		tokens = &MemoryStore{}
	}
	s := &Store{
		api:    api,
		tokens: tokens,
		now:    time.Now,
		state:  StateUnknown,
		subs:   make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	api.SetSession(s, s.HandleUnauthorized)
	return s
}

// Token implements client.TokenSource.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Snapshot returns the current session view.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:           s.state,
		User:            copyUser(s.user),
		IsAuthenticated: s.state == StateAuthenticated,
		Loading:         s.state == StateChecking || s.state == StateUnknown,
	}
}

// User returns the signed-in user.
func (s *Store) User() (*client.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateAuthenticated || s.user == nil {
		return nil, ErrNotAuthenticated
	}
	return copyUser(s.user), nil
}

// IsAdmin reports whether the signed-in user is an administrator.
func (s *Store) IsAdmin() bool {
	u, err := s.User()
	return err == nil && u.IsAdmin
}

// Start restores a persisted session. A token whose JWT expiry has passed is
// dropped without contacting the server.
func (s *Store) Start(ctx context.Context) error {
	token, err := s.tokens.Load()
	if err != nil {
		slog.Warn("loading persisted token failed", slog.String("error", err.Error()))
	}
	if token == "" {
		s.settle(StateAnonymous, "", nil, ReasonNoToken)
		return nil
	}
	if expired(token, s.now()) {
		slog.Info("persisted token expired, discarding")
		s.clearPersisted()
		s.settle(StateAnonymous, "", nil, ReasonExpired)
		return nil
	}

	s.mu.Lock()
	s.state = StateChecking
	s.token = token
	s.mu.Unlock()

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.clearPersisted()
		s.settle(StateAnonymous, "", nil, ReasonInvalid)
		return fmt.Errorf("restoring session: %w", err)
	}
	s.settle(StateAuthenticated, token, user, ReasonRestored)
	return nil
}

// Login exchanges credentials for a token, persists it and loads the
// profile. Both steps must succeed.
func (s *Store) Login(ctx context.Context, username, password string) (*client.User, error) {
	tok, err := s.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.state = StateChecking
	s.token = tok.AccessToken
	s.user = nil
	s.mu.Unlock()

	if err := s.tokens.Save(tok.AccessToken); err != nil {
		slog.Warn("persisting token failed", slog.String("error", err.Error()))
	}

	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.clearPersisted()
		s.settle(StateAnonymous, "", nil, ReasonInvalid)
		return nil, err
	}
	s.settle(StateAuthenticated, tok.AccessToken, user, ReasonLogin)
	slog.Info("signed in", slog.String("username", user.Username), slog.Bool("admin", user.IsAdmin))
	return copyUser(user), nil
}

// Logout notifies the server on a best-effort basis and always clears the
// local session.
func (s *Store) Logout(ctx context.Context) {
	if s.Token() != "" {
		if err := s.api.Logout(ctx); err != nil {
			slog.Debug("server logout failed", slog.String("error", err.Error()))
		}
	}
	s.clearPersisted()
	s.settle(StateAnonymous, "", nil, ReasonLogout)
}

// HandleUnauthorized is the client's 401 hook. Checks in progress settle
// themselves, so only an established session is torn down here.
func (s *Store) HandleUnauthorized() {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	if state != StateAuthenticated {
		return
	}
	slog.Info("session rejected by server, signing out")
	s.clearPersisted()
	s.settle(StateAnonymous, "", nil, ReasonExpired)
}

// Subscribe registers fn for every future transition. The returned function
// removes it.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) settle(state State, token string, user *client.User, reason Reason) {
	s.mu.Lock()
	ended := s.signedIn && state == StateAnonymous
	s.signedIn = state == StateAuthenticated
	s.state = state
	s.token = token
	s.user = copyUser(user)
	s.mu.Unlock()

	ev := Event{State: state, User: copyUser(user), Reason: reason, Ended: ended}
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (s *Store) clearPersisted() {
	if err := s.tokens.Clear(); err != nil {
		slog.Warn("clearing persisted token failed", slog.String("error", err.Error()))
	}
}

// expired reports whether token is a JWT whose exp claim is in the past.
// Opaque tokens are never considered expired locally.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func copyUser(u *client.User) *client.User {
	if u == nil {
		return nil
	}
	c := *u
	c.AllowedCustomsCodes = append([]string{}, u.AllowedCustomsCodes...)
	return &c
}
