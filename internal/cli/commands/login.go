package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/shopsync-dev/shopsync/internal/app"
	"github.com/shopsync-dev/shopsync/internal/authflow"
	"github.com/shopsync-dev/shopsync/internal/provider"
	"github.com/shopsync-dev/shopsync/internal/session"
)

const callbackTimeout = 5 * time.Minute

// NewLoginCmd creates the login command
func NewLoginCmd(opts ...Option) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the storefront",
		Long: `Sign in with email and password, or with Google or GitHub.

Without flags in an interactive terminal you are asked which method to use.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				email = os.Getenv("SHOPSYNC_EMAIL")
			}

			pathway := session.PathwayPassword
			if email == "" && isInteractive() {
				chosen, err := promptPathway()
				if err != nil {
					return err
				}
				pathway = chosen
			}

			switch pathway {
			case session.PathwayGoogle:
				return runGoogleLogin(cmd, "", opts)
			case session.PathwayGitHub:
				return runGitHubLogin(cmd, "", opts)
			default:
				return runPasswordLogin(cmd, email, password, opts)
			}
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (or set SHOPSYNC_EMAIL)")
	cmd.Flags().StringVar(&password, "password", "", "Password (or set SHOPSYNC_PASSWORD, will prompt if not provided)")

	cmd.AddCommand(newLoginGoogleCmd(opts))
	cmd.AddCommand(newLoginGitHubCmd(opts))

	return cmd
}

func newLoginGoogleCmd(opts []Option) *cobra.Command {
	var credential string

	cmd := &cobra.Command{
		Use:   "google",
		Short: "Sign in with a Google identity token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoogleLogin(cmd, credential, opts)
		},
	}

	cmd.Flags().StringVar(&credential, "credential", "", "Google identity token (or set SHOPSYNC_GOOGLE_CREDENTIAL)")

	return cmd
}

func newLoginGitHubCmd(opts []Option) *cobra.Command {
	var callback string

	cmd := &cobra.Command{
		Use:   "github",
		Short: "Sign in with GitHub",
		Long: `Sign in with GitHub.

Prints the GitHub authorization URL and waits for the browser to return to the
configured redirect URI. With --callback, the location GitHub redirected to is
handled directly instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGitHubLogin(cmd, callback, opts)
		},
	}

	cmd.Flags().StringVar(&callback, "callback", "", "Full redirect URL GitHub sent the browser to")

	return cmd
}

func isInteractive() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// promptPathway asks which sign-in method to use
func promptPathway() (session.Pathway, error) {
	type pathwayOption struct {
		Label   string
		Pathway session.Pathway
	}

	options := []pathwayOption{
		{Label: "Email and password", Pathway: session.PathwayPassword},
		{Label: "Google", Pathway: session.PathwayGoogle},
		{Label: "GitHub", Pathway: session.PathwayGitHub},
	}

	prompt := promptui.Select{
		Label: "Sign in with",
		Items: options,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "> {{ .Label | cyan }}",
			Inactive: "  {{ .Label }}",
			Selected: "{{ .Label | green }}",
		},
	}

	index, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("sign-in cancelled: %w", err)
	}
	return options[index].Pathway, nil
}

func runPasswordLogin(cmd *cobra.Command, email, password string, opts []Option) (err error) {
	out := cmd.OutOrStdout()

	if email == "" {
		email = os.Getenv("SHOPSYNC_EMAIL")
	}
	if password == "" {
		password = os.Getenv("SHOPSYNC_PASSWORD")
	}

	if email == "" {
		if !isInteractive() {
			return fmt.Errorf("email is required (use --email flag or SHOPSYNC_EMAIL env var)")
		}
		prompt := promptui.Prompt{
			Label: "Email",
			Validate: func(s string) error {
				if !strings.Contains(s, "@") {
					return errors.New("enter an email address")
				}
				return nil
			},
		}
		email, err = prompt.Run()
		if err != nil {
			return fmt.Errorf("sign-in cancelled: %w", err)
		}
	}

	// Prompt for password if not provided via flag or env var
	if password == "" {
		if !isInteractive() {
			return fmt.Errorf("password is required in non-interactive mode (use --password flag or SHOPSYNC_PASSWORD env var)")
		}
		fmt.Fprint(out, "Password: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(bytePassword)
		fmt.Fprintln(out)
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(a, &err)

	fmt.Fprintf(out, "Logging in to %s...\n", a.API.BaseURL())
	a.Auth.LoginPassword(cmd.Context(), email, password)

	return finishLogin(out, a, session.PathwayPassword)
}

func runGoogleLogin(cmd *cobra.Command, credential string, opts []Option) (err error) {
	if credential == "" {
		credential = os.Getenv("SHOPSYNC_GOOGLE_CREDENTIAL")
	}
	if credential == "" {
		return fmt.Errorf("a Google identity token is required (use --credential flag or SHOPSYNC_GOOGLE_CREDENTIAL env var)")
	}

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(a, &err)

	ctx := cmd.Context()
	widget := provider.NewStaticWidget(credential)
	cfg := provider.GoogleWidgetConfig(a.Config.Providers.Google.ClientID, func(credential string) {
		a.Auth.LoginGoogle(ctx, credential)
	})
	if err := widget.Initialize(cfg); err != nil {
		return fmt.Errorf("failed to initialize Google sign-in: %w", err)
	}
	if err := widget.RenderButton("login"); err != nil {
		return fmt.Errorf("failed to start Google sign-in: %w", err)
	}

	return finishLogin(cmd.OutOrStdout(), a, session.PathwayGoogle)
}

func runGitHubLogin(cmd *cobra.Command, callback string, opts []Option) (err error) {
	out := cmd.OutOrStdout()

	a, err := openApp(cmd, opts)
	if err != nil {
		return err
	}
	defer closeApp(a, &err)

	var location *url.URL
	if callback != "" {
		location, err = url.Parse(callback)
		if err != nil {
			return fmt.Errorf("invalid callback URL: %w", err)
		}
	} else {
		location, err = waitForGitHubRedirect(cmd.Context(), out, a)
		if err != nil {
			return err
		}
	}

	if !a.Auth.HandleRedirect(cmd.Context(), location) {
		if a.Auth.Attempt(session.PathwayGitHub).Status == authflow.StatusFailed {
			return ErrReported
		}
		return fmt.Errorf("the redirect did not include an authorization code")
	}

	return finishLogin(out, a, session.PathwayGitHub)
}

// waitForGitHubRedirect prints the authorize URL and blocks until the browser
// comes back to the loopback redirect URI
func waitForGitHubRedirect(ctx context.Context, out io.Writer, a *app.App) (*url.URL, error) {
	gh := provider.NewGitHub(a.Config.Providers.GitHub)
	state := provider.NewState()

	authURL, err := gh.AuthorizeURL(state)
	if err != nil {
		return nil, err
	}

	listener, err := provider.ListenForCallback(gh.RedirectURI(), state, a.Logger)
	if err != nil {
		return nil, err
	}
	defer listener.Close()

	fmt.Fprintln(out, "Open this URL in your browser to sign in with GitHub:")
	fmt.Fprintf(out, "\n  %s\n\n", authURL)
	fmt.Fprintf(out, "Waiting for GitHub to redirect to %s...\n", gh.RedirectURI())

	ctx, cancel := context.WithTimeout(ctx, callbackTimeout)
	defer cancel()

	location, err := listener.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("did not receive the GitHub redirect: %w", err)
	}
	return location, nil
}

// finishLogin waits for the attempt and prints the signed-in user
func finishLogin(out io.Writer, a *app.App, pathway session.Pathway) error {
	attempt := a.Await(pathway)
	if attempt.Status != authflow.StatusSucceeded {
		// The console notifier has printed the message
		return ErrReported
	}

	sess, ok := a.Sessions.Get()
	if !ok {
		return errNotLoggedIn
	}

	fmt.Fprintln(out, "✓ Login successful!")
	fmt.Fprintf(out, "  User: %s (%s)\n", sess.DisplayName, sess.Email)
	if sess.IsAdmin {
		fmt.Fprintln(out, "  Role: Admin")
	}

	return nil
}
