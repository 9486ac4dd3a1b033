package gcal

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"

	"github.com/tonimelisma/gcal-go/internal/tokenfile"
)

// DefaultRedirectURL is the fixed loopback redirect target registered for
// the desktop OAuth client.
const DefaultRedirectURL = "http://127.0.0.1:8085/callback"

// DefaultScopes requests calendar read, event write, settings read, and the
// user profile.
var DefaultScopes = []string{
	calendar.CalendarReadonlyScope,
	calendar.CalendarEventsScope,
	calendar.CalendarSettingsReadonlyScope,
	oauth2api.UserinfoProfileScope,
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// OAuthConfig holds the client registration and where the token lives.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURL  string
	TokenPath    string
}

// OAuth performs passive (saved token) and interactive (browser) logins
// against Google's OAuth endpoint and persists tokens to TokenPath.
type OAuth struct {
	cfg       *oauth2.Config
	tokenPath string
	openURL   func(string) error
	logger    *slog.Logger
}

// NewOAuth builds an authenticator. openURL launches a browser for the
// interactive flow; when it fails the URL is printed to stderr.
func NewOAuth(c OAuthConfig, openURL func(string) error, logger *slog.Logger) *OAuth {
	if logger == nil {
		logger = slog.Default()
	}

	scopes := c.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	redirect := c.RedirectURL
	if redirect == "" {
		redirect = DefaultRedirectURL
	}

	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
			RedirectURL:  redirect,
		},
		tokenPath: c.TokenPath,
		openURL:   openURL,
		logger:    logger,
	}
}

// Authenticate returns a token source. Passive mode only loads the saved
// token and returns ErrNotLoggedIn when there is none; interactive mode runs
// the authorization code + PKCE flow.
func (a *OAuth) Authenticate(ctx context.Context, passive bool) (oauth2.TokenSource, error) {
	if passive {
		return a.fromFile(ctx)
	}

	return a.authCodeLogin(ctx)
}

// Discard removes the saved token. Idempotent.
func (a *OAuth) Discard() error {
	removed, err := tokenfile.Remove(a.tokenPath)
	if err != nil {
		return err
	}

	a.logger.Info("discarded saved token",
		slog.String("path", a.tokenPath),
		slog.Bool("existed", removed),
	)

	return nil
}

// SaveAccount caches the profile next to the token, best-effort.
func (a *OAuth) SaveAccount(u User) {
	acct := &tokenfile.Account{Name: u.Name, AvatarURL: u.AvatarURL, FetchedAt: time.Now().UTC()}
	if err := tokenfile.SaveAccount(a.tokenPath, acct); err != nil {
		a.logger.Debug("could not cache account profile", slog.String("error", err.Error()))
	}
}

func (a *OAuth) fromFile(ctx context.Context) (oauth2.TokenSource, error) {
	tok, _, err := tokenfile.Load(a.tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	a.logger.Info("loaded saved token",
		slog.String("path", a.tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())),
	)

	return a.persisting(ctx, tok), nil
}

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

func (a *OAuth) authCodeLogin(ctx context.Context) (oauth2.TokenSource, error) {
	redirect, err := url.Parse(a.cfg.RedirectURL)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("gcal: invalid redirect URL %q", a.cfg.RedirectURL)
	}

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}

	a.logger.Info("starting browser auth flow (authorization code + PKCE)",
		slog.String("redirect", a.cfg.RedirectURL),
	)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("gcal: generating state token: %w", err)
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})

	srv, err := startCallbackServer(ctx, redirect.Host, mux, resultCh, a.logger)
	if err != nil {
		return nil, err
	}
	defer shutdownCallbackServer(srv, a.logger)

	authURL := a.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	a.launchBrowser(authURL)

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	return a.exchangeAndSave(ctx, code, verifier)
}

// startCallbackServer binds addr and serves mux until shut down.
func startCallbackServer(
	ctx context.Context,
	addr string,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("gcal: binding callback listener %s: %w", addr, err)
	}

	logger.Info("callback server listening", slog.String("addr", listener.Addr().String()))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("gcal: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, nil
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	send := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		send(callbackResult{err: errors.New("gcal: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("gcal: authorization failed: %s: %s", errParam, q.Get("error_description"))})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		send(callbackResult{err: errors.New("gcal: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Signed in</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	send(callbackResult{code: code})
}

func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

func (a *OAuth) launchBrowser(authURL string) {
	a.logger.Info("opening browser for authorization")

	if a.openURL == nil {
		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
		return
	}

	if openErr := a.openURL(authURL); openErr != nil {
		a.logger.Warn("failed to open browser, printing URL",
			slog.String("error", openErr.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("gcal: browser auth canceled: %w", ctx.Err())
	}
}

func (a *OAuth) exchangeAndSave(ctx context.Context, code, verifier string) (oauth2.TokenSource, error) {
	a.logger.Info("received authorization code, exchanging for token")

	tok, err := a.cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("gcal: token exchange failed: %w", err)
	}

	if saveErr := tokenfile.SaveToken(a.tokenPath, tok); saveErr != nil {
		return nil, fmt.Errorf("gcal: saving token: %w", saveErr)
	}

	a.logger.Info("browser login successful",
		slog.String("path", a.tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return a.persisting(ctx, tok), nil
}

// generateState produces a random hex string for the OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// persisting wraps the refreshing token source so every new access token is
// written back to disk.
func (a *OAuth) persisting(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return &persistingSource{
		src:    a.cfg.TokenSource(ctx, tok),
		last:   tok.AccessToken,
		path:   a.tokenPath,
		logger: a.logger,
	}
}

type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	changed := tok.AccessToken != p.last
	p.last = tok.AccessToken
	p.mu.Unlock()

	if changed {
		if err := tokenfile.SaveToken(p.path, tok); err != nil {
			p.logger.Warn("failed to persist refreshed token",
				slog.String("path", p.path),
				slog.String("error", err.Error()),
			)
		} else {
			p.logger.Info("persisted refreshed token",
				slog.String("path", p.path),
				slog.Time("expiry", tok.Expiry),
			)
		}
	}

	return tok, nil
}
