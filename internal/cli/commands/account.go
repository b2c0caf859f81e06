package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shopsync-dev/shopsync/internal/session"
)

// NewLogoutCmd creates the logout command
func NewLogoutCmd(opts ...Option) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Long:  "Sign out and forget the stored session. The cart is kept.",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			out := cmd.OutOrStdout()
			if _, ok := a.Sessions.Get(); !ok {
				fmt.Fprintln(out, "Not logged in.")
				return nil
			}

			a.Logout()
			fmt.Fprintln(out, "✓ Logged out")
			return nil
		},
	}
}

// NewWhoamiCmd creates the whoami command
func NewWhoamiCmd(opts ...Option) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			sess, ok := a.Sessions.Get()
			if !ok {
				return errNotLoggedIn
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", sess.DisplayName, sess.Email)
			fmt.Fprintf(out, "  User ID:   %s\n", sess.UserID)
			if sess.IssuedVia != "" {
				fmt.Fprintf(out, "  Signed in: %s\n", sess.IssuedVia)
			}
			if sess.IsAdmin {
				fmt.Fprintln(out, "  Role:      Admin")
			}

			// The token is opaque to the client; show its expiry when readable
			if claims, err := session.Claims(sess.Token); err == nil {
				if exp := claims.ExpiresAtTime(); !exp.IsZero() {
					fmt.Fprintf(out, "  Expires:   %s\n", exp.Local().Format("2006-01-02 15:04"))
				}
			} else {
				a.Logger.Debug().Err(err).Msg("Session token is not a readable JWT")
			}

			return nil
		},
	}
}
