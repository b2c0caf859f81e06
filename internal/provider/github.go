package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/shopsync-dev/shopsync/internal/config"
)

// ErrStateMismatch is returned when a redirect carries an unexpected state value
var ErrStateMismatch = errors.New("redirect state does not match")

// GitHub builds the authorization redirect for the GitHub pathway
type GitHub struct {
	oauth *oauth2.Config
}

// NewGitHub creates the GitHub provider from configuration
func NewGitHub(cfg config.GitHubConfig) *GitHub {
	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	return &GitHub{
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURI,
			Scopes:      cfg.Scopes,
			Endpoint:    endpoint,
		},
	}
}

// NewState returns a random value to bind a redirect to the request that started it
func NewState() string {
	return oauth2.GenerateVerifier()
}

// AuthorizeURL returns the provider page the user signs in on. state may be empty.
func (g *GitHub) AuthorizeURL(state string) (string, error) {
	if g.oauth.ClientID == "" {
		return "", fmt.Errorf("GitHub client id is not configured (set SHOPSYNC_GITHUB_CLIENT_ID)")
	}
	return g.oauth.AuthCodeURL(state), nil
}

// RedirectURI returns the configured return location
func (g *GitHub) RedirectURI() string {
	return g.oauth.RedirectURL
}

// CallbackListener receives the browser on the loopback redirect URI and
// captures the location it arrived at
type CallbackListener struct {
	path   string
	state  string
	logger zerolog.Logger

	listener net.Listener
	server   *http.Server

	once     sync.Once
	location chan *url.URL
}

// ListenForCallback starts listening on the host and port of redirectURI.
// When state is non-empty, redirects carrying a different state are rejected.
func ListenForCallback(redirectURI, state string, logger zerolog.Logger) (*CallbackListener, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URI: %w", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return nil, fmt.Errorf("redirect URI must be an http loopback address, got %q", redirectURI)
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	l := &CallbackListener{
		path:     path,
		state:    state,
		logger:   logger,
		listener: ln,
		location: make(chan *url.URL, 1),
	}
	l.server = &http.Server{
		Handler:           http.HandlerFunc(l.handle),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Callback listener stopped")
		}
	}()

	return l, nil
}

// URL returns the address the listener is reachable on, including the redirect path
func (l *CallbackListener) URL() string {
	return fmt.Sprintf("http://%s%s", l.listener.Addr().String(), l.path)
}

func (l *CallbackListener) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != l.path {
		http.NotFound(w, r)
		return
	}

	query := r.URL.Query()
	if l.state != "" && query.Get("code") != "" && query.Get("state") != l.state {
		l.logger.Warn().Msg("Rejected redirect with unexpected state")
		http.Error(w, ErrStateMismatch.Error(), http.StatusBadRequest)
		return
	}

	location := &url.URL{
		Scheme:   "http",
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	}

	delivered := false
	l.once.Do(func() {
		l.location <- location
		delivered = true
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if !delivered {
		_, _ = fmt.Fprint(w, "<p>This sign-in was already handled. You can close this window.</p>")
		return
	}
	_, _ = fmt.Fprint(w, "<p>Sign-in received. You can close this window and return to the terminal.</p>")
}

// Wait blocks until the browser arrives or ctx is done
func (l *CallbackListener) Wait(ctx context.Context) (*url.URL, error) {
	select {
	case loc := <-l.location:
		return loc, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for GitHub redirect: %w", ctx.Err())
	}
}

// Close stops the listener
func (l *CallbackListener) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.server.Shutdown(ctx)
}
