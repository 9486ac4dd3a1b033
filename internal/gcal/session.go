package gcal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
)

// DefaultUserinfoURL is the profile endpoint fetched after login.
const DefaultUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// State is the session's authentication state.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Permission is one capability the host may offer the user.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermLogin
	PermLogout
	PermWrite
)

// Permissions is a set of Permission bits.
type Permissions uint8

// Has reports whether every bit of p is set.
func (ps Permissions) Has(p Permission) bool {
	return Permissions(p)&ps == Permissions(p)
}

func (ps Permissions) with(p Permission) Permissions    { return ps | Permissions(p) }
func (ps Permissions) without(p Permission) Permissions { return ps &^ Permissions(p) }

func (ps Permissions) String() string {
	names := []struct {
		p    Permission
		name string
	}{{PermRead, "read"}, {PermLogin, "login"}, {PermLogout, "logout"}, {PermWrite, "write"}}

	var parts []string

	for _, n := range names {
		if ps.Has(n.p) {
			parts = append(parts, n.name)
		}
	}

	return "{" + strings.Join(parts, ",") + "}"
}

// User is the cached profile of the signed-in account.
type User struct {
	Name      string
	AvatarURL string
	Raw       *oauth2api.Userinfo
}

// Authenticator obtains and discards OAuth tokens. *OAuth implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, passive bool) (oauth2.TokenSource, error)
	Discard() error
}

// LoginObserver is notified once per successful profile fetch.
type LoginObserver interface {
	LoggedIn(u User)
}

// accountCache is implemented by authenticators that can remember the
// profile offline.
type accountCache interface {
	SaveAccount(u User)
}

// Session owns the token, the cached user, and the login state. It is safe
// for concurrent use; a request that read the token just before an
// invalidation simply fails with 401 and is recovered by its caller.
type Session struct {
	auth        Authenticator
	client      *Client
	userinfoURL string
	logger      *slog.Logger

	mu        sync.Mutex
	state     State
	source    oauth2.TokenSource
	user      *User
	perms     Permissions
	observers []LoginObserver
}

// NewSession creates a logged-out session with {read, login} permissions.
func NewSession(auth Authenticator, client *Client, userinfoURL string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	if userinfoURL == "" {
		userinfoURL = DefaultUserinfoURL
	}

	return &Session{
		auth:        auth,
		client:      client,
		userinfoURL: userinfoURL,
		logger:      logger,
		perms:       Permissions(PermRead).with(PermLogin),
	}
}

// Observe registers o for login notifications.
func (s *Session) Observe(o LoginObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.observers = append(s.observers, o)
}

// State returns the current authentication state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Permissions returns the current permission set.
func (s *Session) Permissions() Permissions {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.perms
}

// Grant adds p to the permission set. Write gating beyond authentication
// belongs to the host.
func (s *Session) Grant(p Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.perms = s.perms.with(p)
}

// IsAuthenticated reports whether a token is held.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.source != nil
}

// Login authenticates passively (saved token only) or interactively, then
// fetches the profile. A 401 at any step discards the token. Other failures
// leave the session logged out with the saved token kept for next time.
func (s *Session) Login(ctx context.Context, passive bool) error {
	s.mu.Lock()
	s.state = StateAuthenticating
	s.mu.Unlock()

	src, err := s.auth.Authenticate(ctx, passive)
	if err != nil {
		s.setLoggedOut()

		if errors.Is(err, ErrNotLoggedIn) {
			s.logger.Debug("no saved token, staying logged out")
			return err
		}

		return fmt.Errorf("gcal: authenticating: %w", err)
	}

	s.mu.Lock()
	s.source = src
	s.mu.Unlock()

	if _, err := s.User(ctx); err != nil {
		if IsUnauthorized(err) {
			s.logger.Warn("saved token rejected, discarding it")
			s.Logout()
		} else {
			s.setLoggedOut()
		}

		return fmt.Errorf("gcal: fetching profile: %w", err)
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.perms = s.perms.with(PermLogout)
	s.mu.Unlock()

	return nil
}

// Logout discards the token locally and clears the cached user. Idempotent.
func (s *Session) Logout() {
	s.mu.Lock()
	had := s.source != nil
	s.source = nil
	s.user = nil
	s.state = StateLoggedOut
	s.perms = s.perms.without(PermLogout).without(PermWrite)
	s.mu.Unlock()

	if err := s.auth.Discard(); err != nil {
		s.logger.Warn("failed to discard saved token", slog.String("error", err.Error()))
	}

	if had {
		s.logger.Info("logged out")
	}
}

// setLoggedOut drops in-memory credentials without touching the saved token.
func (s *Session) setLoggedOut() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.source = nil
	s.user = nil
	s.state = StateLoggedOut
}

// AccessToken returns the current bearer token, refreshing it if needed.
func (s *Session) AccessToken() (string, error) {
	s.mu.Lock()
	src := s.source
	s.mu.Unlock()

	if src == nil {
		return "", ErrNotLoggedIn
	}

	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("gcal: obtaining token: %w", err)
	}

	if tok.AccessToken == "" {
		return "", ErrNotLoggedIn
	}

	return tok.AccessToken, nil
}

// User returns the cached profile, fetching it once per authenticated
// session. Observers are notified after each successful fetch.
func (s *Session) User(ctx context.Context) (*User, error) {
	s.mu.Lock()
	if s.user != nil {
		u := *s.user
		s.mu.Unlock()

		return &u, nil
	}
	s.mu.Unlock()

	tok, err := s.AccessToken()
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(ctx, http.MethodGet, s.userinfoURL, tok, nil)
	if err != nil {
		return nil, err
	}

	var info oauth2api.Userinfo

	decodeErr := decodeJSON(resp, &info)
	if decodeErr != nil {
		return nil, fmt.Errorf("gcal: decoding profile: %w", decodeErr)
	}

	u := User{Name: info.Name, AvatarURL: info.Picture, Raw: &info}

	s.mu.Lock()
	if s.source == nil {
		// Logged out while the fetch was in flight.
		s.mu.Unlock()
		return nil, ErrNotLoggedIn
	}

	s.user = &u
	observers := append([]LoginObserver(nil), s.observers...)
	s.mu.Unlock()

	s.logger.Info("fetched user profile", slog.String("name", u.Name))

	if cache, ok := s.auth.(accountCache); ok {
		cache.SaveAccount(u)
	}

	for _, o := range observers {
		o.LoggedIn(u)
	}

	return &u, nil
}

// IsUnauthorized reports whether err means the token itself is no good: a
// 401 from the API or a refresh the token endpoint refused.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return re.ErrorCode == "invalid_grant" ||
			(re.Response != nil && re.Response.StatusCode == http.StatusUnauthorized)
	}

	return false
}
