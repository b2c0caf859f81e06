// Package app assembles the client: storage, the persistence bridge, the
// session and cart stores, the exchange client, the auth state machine, its
// effect subscribers, and the order service.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/shopsync-dev/shopsync/internal/authflow"
	"github.com/shopsync-dev/shopsync/internal/cart"
	"github.com/shopsync-dev/shopsync/internal/cli/client"
	"github.com/shopsync-dev/shopsync/internal/config"
	"github.com/shopsync-dev/shopsync/internal/effects"
	"github.com/shopsync-dev/shopsync/internal/orders"
	"github.com/shopsync-dev/shopsync/internal/persist"
	"github.com/shopsync-dev/shopsync/internal/session"
	"github.com/shopsync-dev/shopsync/internal/storage"
)

// App is one fully wired client instance
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Backend  storage.Backend
	Bridge   *persist.Bridge
	Sessions *session.Store
	Carts    *cart.Store
	API      *client.Client
	Auth     *authflow.Machine
	Effects  *effects.Effects
	Orders   *orders.Service

	Notifier  effects.Notifier
	Navigator effects.Navigator

	httpClient *http.Client
	out        io.Writer
	errOut     io.Writer
	unbind     []func()
}

// Option configures an App
type Option func(*App)

// WithBackend uses backend instead of the one selected by configuration
func WithBackend(backend storage.Backend) Option {
	return func(a *App) {
		a.Backend = backend
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(c *http.Client) Option {
	return func(a *App) {
		a.httpClient = c
	}
}

// WithOutput sets where console notifications go
func WithOutput(out, errOut io.Writer) Option {
	return func(a *App) {
		a.out = out
		a.errOut = errOut
	}
}

// WithNotifier replaces the console notifier
func WithNotifier(n effects.Notifier) Option {
	return func(a *App) {
		a.Notifier = n
	}
}

// WithNavigator replaces the route recorder
func WithNavigator(n effects.Navigator) Option {
	return func(a *App) {
		a.Navigator = n
	}
}

// New wires an App from cfg. Persisted state is hydrated into the stores
// before the bridge starts mirroring them.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...Option) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		out:    os.Stdout,
		errOut: os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.Backend == nil {
		backend, err := openBackend(cfg)
		if err != nil {
			return nil, err
		}
		a.Backend = backend
	}

	a.Bridge = persist.NewBridge(a.Backend, logger.With().Str("component", "persist").Logger())
	snap := a.Bridge.Hydrate(ctx)

	a.Sessions = session.NewStore(snap.Session)
	a.Carts = cart.NewStore(snap.Cart)
	a.unbind = append(a.unbind, a.Bridge.Bind(a.Sessions, a.Carts))

	a.API = client.New(cfg.APIURL)
	if a.httpClient != nil {
		a.API.SetHTTPClient(a.httpClient)
	}

	if a.Notifier == nil {
		a.Notifier = effects.NewConsole(a.out, a.errOut)
	}
	if a.Navigator == nil {
		a.Navigator = &effects.RouteRecorder{}
	}

	a.Auth = authflow.New(a.API, a.Sessions, a.Bridge, logger.With().Str("component", "authflow").Logger())
	a.Effects = effects.New(a.Navigator, a.Notifier)
	a.unbind = append(a.unbind, a.Effects.Attach(a.Auth))

	a.Orders = orders.NewService(a.API, a.Sessions, a.Carts, a.Bridge, a.Notifier, logger.With().Str("component", "orders").Logger())

	return a, nil
}

func openBackend(cfg *config.Config) (storage.Backend, error) {
	storageCfg := cfg.Storage
	if storageCfg.Path == "" && (storageCfg.Backend == "" || storageCfg.Backend == "file" || storageCfg.Backend == "sqlite") {
		path, err := config.DefaultStoragePath(storageCfg.Backend)
		if err != nil {
			return nil, err
		}
		storageCfg.Path = path
	}

	backend, err := storage.Open(storageCfg, cfg.APIURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", storageCfg.Backend, err)
	}
	return backend, nil
}

// Await blocks until every in-flight exchange has resolved and returns the
// pathway's attempt record
func (a *App) Await(pathway session.Pathway) authflow.Attempt {
	a.Auth.Wait()
	return a.Auth.Attempt(pathway)
}

// Logout destroys the active session. Cart state survives.
func (a *App) Logout() {
	a.Sessions.Clear()
}

// Close waits for in-flight exchanges, detaches the subscribers, and closes storage
func (a *App) Close() error {
	a.Auth.Wait()
	a.Auth.Close()
	for i := len(a.unbind) - 1; i >= 0; i-- {
		a.unbind[i]()
	}
	return a.Backend.Close()
}
