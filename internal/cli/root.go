package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shopsync-dev/shopsync/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the shopsync command tree. opts are passed to every
// subcommand that talks to the storefront.
func NewRootCmd(opts ...commands.Option) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shopsync",
		Short: "shopsync - storefront sign-in, cart, and orders from the terminal",
		Long: `shopsync CLI - Sign in to a storefront and place orders.

Sign in with email and password, Google, or GitHub. The session and cart are
kept in local storage between runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "shopsync version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewLoginCmd(opts...))
	rootCmd.AddCommand(commands.NewLogoutCmd(opts...))
	rootCmd.AddCommand(commands.NewWhoamiCmd(opts...))
	rootCmd.AddCommand(commands.NewCartCmd(opts...))
	rootCmd.AddCommand(commands.NewOrderCmd(opts...))

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, commands.ErrReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return err
	}
	return nil
}
