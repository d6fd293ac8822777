// Package session holds the signed-in identity and gates background sync
// on it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/crewsync/internal/api"
	"github.com/nhle/crewsync/internal/credential"
	"github.com/nhle/crewsync/internal/logging"
	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/store"
)

const (
	// UserKey is the storage key of the signed-in user.
	UserKey = "crew.session.user"

	// tokenKey is the keyring entry holding the bearer token.
	tokenKey = "session.token"
)

// ErrNotAuthenticated is returned by Token when nobody is signed in.
var ErrNotAuthenticated = errors.New("not authenticated")

// State is a snapshot of the session.
type State struct {
	User *model.User

	// Loading is true while a stored session is being restored.
	Loading bool

	// Syncing is true while a login, signup or logout call is in flight.
	Syncing bool

	// Epoch increases every time the signed-in identity changes.
	Epoch uint64
}

// Ready reports whether background sync may run.
func (s State) Ready() bool {
	return s.User != nil && !s.Loading && !s.Syncing
}

// UserID returns the signed-in user's ID, or "".
func (s State) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

// Authenticator is the remote side of the session. *api.Auth implements it.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (api.Session, error)
	Signup(ctx context.Context, name, email, password, role string) (api.Session, error)
	Refresh(ctx context.Context, token string) (api.Session, error)
	Logout(ctx context.Context, token string) error
}

// Tokens stores the bearer token. *credential.Store implements it.
type Tokens interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// Session owns the signed-in identity and its token.
type Session struct {
	auth   Authenticator
	tokens Tokens
	user   *store.Persistent[*model.User]
	logger logging.Logger
	now    func() time.Time

	mu     sync.Mutex
	state  State
	token  string
	subs   map[int]chan State
	nextID int

	refreshMu sync.Mutex
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces time.Now for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New creates a signed-out session. The user blob is kept in blobs under
// UserKey. Call Restore to pick up a stored session.
func New(auth Authenticator, tokens Tokens, blobs store.Blobs, logger logging.Logger, opts ...Option) *Session {
	s := &Session{
		auth:   auth,
		tokens: tokens,
		user:   store.NewPersistent[*model.User](blobs, UserKey, store.WithDebounce(0), store.WithLogger(logger)),
		logger: logger.With("component", "session"),
		now:    time.Now,
		subs:   make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel that always holds the latest state. Slow
// readers miss intermediate states, never the last one. The returned
// function releases the subscription.
func (s *Session) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan State, 1)
	ch <- s.state
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// update applies fn to the state and publishes the result.
func (s *Session) update(fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.state)
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.state
	}
	return s.state
}

// setIdentity replaces the user, bumping the epoch when the identity
// changes.
func setIdentity(st *State, u *model.User) {
	if st.UserID() != userID(u) {
		st.Epoch++
	}
	st.User = u
}

func userID(u *model.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

// Restore loads the stored token and user. The session becomes ready when
// both exist. An expired token is refreshed; if the server rejects the
// refresh the stored session is dropped.
func (s *Session) Restore(ctx context.Context) error {
	s.update(func(st *State) { st.Loading = true })

	u, err := s.restore(ctx)
	s.update(func(st *State) {
		st.Loading = false
		setIdentity(st, u)
	})
	return err
}

func (s *Session) restore(ctx context.Context) (*model.User, error) {
	token, err := s.tokens.Get(tokenKey)
	if errors.Is(err, credential.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}

	u, ok := s.user.Load(ctx)
	if !ok || u == nil || u.ID == "" {
		return nil, nil
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if !tokenExpired(token, s.now()) {
		return u, nil
	}

	fresh, err := s.auth.Refresh(ctx, token)
	if api.IsAuthError(err) {
		s.logger.Info(ctx, "stored session expired", "user", u.ID)
		s.forget(ctx)
		return nil, nil
	}
	if err != nil {
		// Offline: keep the session, requests will retry the refresh.
		s.logger.Warn(ctx, "token refresh failed", "err", err)
		return u, nil
	}
	if err := s.storeToken(fresh.Token); err != nil {
		return u, err
	}
	return u, nil
}

// Login signs in with email and password.
func (s *Session) Login(ctx context.Context, email, password string) error {
	return s.authenticate(ctx, func() (api.Session, error) {
		return s.auth.Login(ctx, email, password)
	})
}

// Signup creates an account and signs in to it.
func (s *Session) Signup(ctx context.Context, name, email, password, role string) error {
	return s.authenticate(ctx, func() (api.Session, error) {
		return s.auth.Signup(ctx, name, email, password, role)
	})
}

func (s *Session) authenticate(ctx context.Context, call func() (api.Session, error)) error {
	s.update(func(st *State) { st.Syncing = true })

	u, err := s.establish(ctx, call)
	s.update(func(st *State) {
		st.Syncing = false
		if err == nil {
			setIdentity(st, u)
		}
	})
	return err
}

func (s *Session) establish(ctx context.Context, call func() (api.Session, error)) (*model.User, error) {
	res, err := call()
	if err != nil {
		return nil, err
	}
	if res.User == nil || res.User.ID == "" {
		return nil, errors.New("auth response carries no user")
	}

	if err := s.storeToken(res.Token); err != nil {
		return nil, err
	}
	if err := s.user.Save(res.User); err != nil {
		return nil, fmt.Errorf("saving user: %w", err)
	}

	s.logger.Info(ctx, "signed in", "user", res.User.ID, "role", res.User.Role)
	return res.User, nil
}

// Logout ends the session. The server call is best effort; the local
// session is always dropped.
func (s *Session) Logout(ctx context.Context) error {
	s.update(func(st *State) { st.Syncing = true })

	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token != "" {
		if err := s.auth.Logout(ctx, token); err != nil {
			s.logger.Warn(ctx, "server logout failed", "err", err)
		}
	}
	err := s.forget(ctx)

	s.update(func(st *State) {
		st.Syncing = false
		setIdentity(st, nil)
	})
	return err
}

// forget drops the token and the stored user.
func (s *Session) forget(ctx context.Context) error {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()

	var errs []error
	if err := s.tokens.Delete(tokenKey); err != nil {
		errs = append(errs, err)
	}
	// A null user tells other processes the session ended.
	if err := s.user.Save(nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Session) storeToken(token string) error {
	if err := s.tokens.Set(tokenKey, token); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// Token returns the bearer token, refreshing it first when it has
// expired. It implements api.TokenSource.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	token := s.token
	signedIn := s.state.User != nil
	s.mu.Unlock()

	if token == "" || !signedIn {
		return "", ErrNotAuthenticated
	}
	if !tokenExpired(token, s.now()) {
		return token, nil
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn(ctx, "token refresh failed", "err", err)
		return token, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Refresh exchanges the current token for a new one.
func (s *Session) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == "" {
		return ErrNotAuthenticated
	}
	// Another caller refreshed while this one waited.
	if !tokenExpired(token, s.now()) {
		return nil
	}

	res, err := s.auth.Refresh(ctx, token)
	if err != nil {
		return err
	}
	if err := s.storeToken(res.Token); err != nil {
		return err
	}

	if res.User != nil && res.User.ID == userID(s.State().User) {
		if err := s.user.Save(res.User); err != nil {
			return fmt.Errorf("saving user: %w", err)
		}
		s.update(func(st *State) { st.User = res.User })
	}
	return nil
}

// Watch follows logins and logouts made by other processes of the same
// profile. It returns the unsubscribe function.
func (s *Session) Watch() func() {
	return s.user.Subscribe(func(u *model.User) {
		ctx := context.Background()
		if u == nil {
			s.mu.Lock()
			s.token = ""
			s.mu.Unlock()
			s.logger.Info(ctx, "signed out elsewhere")
			s.update(func(st *State) { setIdentity(st, nil) })
			return
		}

		token, err := s.tokens.Get(tokenKey)
		if err != nil {
			s.logger.Warn(ctx, "reading token after remote login", "err", err)
			return
		}
		s.mu.Lock()
		s.token = token
		s.mu.Unlock()
		s.logger.Info(ctx, "signed in elsewhere", "user", u.ID)
		s.update(func(st *State) { setIdentity(st, u) })
	})
}
