package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shopsync-dev/shopsync/internal/app"
	"github.com/shopsync-dev/shopsync/internal/config"
	"github.com/shopsync-dev/shopsync/internal/logger"
)

// ErrReported is returned when the failure was already shown to the user
var ErrReported = errors.New("error already reported")

var errNotLoggedIn = errors.New("not logged in. Run 'shopsync login' first")

type runOptions struct {
	config  *config.Config
	appOpts []app.Option
}

// Option customizes how commands build their App
type Option func(*runOptions)

// WithConfig skips config.Load and uses cfg
func WithConfig(cfg *config.Config) Option {
	return func(o *runOptions) {
		o.config = cfg
	}
}

// WithAppOptions passes extra options to app.New
func WithAppOptions(opts ...app.Option) Option {
	return func(o *runOptions) {
		o.appOpts = append(o.appOpts, opts...)
	}
}

// openApp loads configuration and wires a fresh App for one command run.
// The caller must Close it.
func openApp(cmd *cobra.Command, opts []Option) (*app.App, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	cfg := ro.config
	if cfg == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	log := logger.InitWriter(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	appOpts := append([]app.Option{app.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())}, ro.appOpts...)
	a, err := app.New(cmd.Context(), cfg, log, appOpts...)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// closeApp closes a and reports a close failure only when run succeeded
func closeApp(a *app.App, err *error) {
	if cerr := a.Close(); cerr != nil && *err == nil {
		*err = fmt.Errorf("failed to close storage: %w", cerr)
	}
}
