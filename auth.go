package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gcal-go/internal/config"
	"github.com/tonimelisma/gcal-go/internal/gcal"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with Google in the browser",
		Long: `Sign in with Google using the authorization code flow. A browser window
opens on the consent page; if it cannot be launched the URL is printed instead.
The token is saved to token_path and refreshed automatically.

Requires client_id (and usually client_secret) of an OAuth desktop client,
set in the config file or via GCAL_GO_CLIENT_ID.`,
		Annotations: map[string]string{skipLoginAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Remove the saved authentication token",
		Annotations: map[string]string{skipLoginAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE:        runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the signed-in account",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	if cc.Cfg.ClientID == "" {
		return fmt.Errorf("client_id is not configured: set it in %s or via %s", configPathHint(cc.Cfg), config.EnvClientID)
	}

	logger.Info("login started", "token_path", cc.Cfg.TokenPath)

	if err := cc.App.Engine.Login(cmd.Context(), false); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	logger.Info("login successful")
	grantWrite(cc.App.Session)

	if name := cc.App.Host.SignedInAs(); name != "" {
		cc.Statusf("Signed in as %s.\n", name)
	} else {
		cc.Statusf("Login successful.\n")
	}

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	cc.App.Engine.Logout()
	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Permissions string `json:"permissions"`
	Calendar    string `json:"calendar"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	session := cc.App.Session

	if !session.IsAuthenticated() {
		return errors.New("not logged in: run 'gcal-go login' first")
	}

	user, err := session.User(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetching user profile: %w", err)
	}

	out := whoamiOutput{
		Name:        user.Name,
		AvatarURL:   user.AvatarURL,
		Permissions: session.Permissions().String(),
		Calendar:    cc.Cfg.Calendar.ID,
	}

	if user.Raw != nil {
		out.Email = user.Raw.Email
	}

	if cc.Flags.JSON {
		return writeJSON(cmd.OutOrStdout(), out)
	}

	printWhoamiText(cmd, out)

	return nil
}

func printWhoamiText(cmd *cobra.Command, out whoamiOutput) {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "User:        %s\n", out.Name)

	if out.Email != "" {
		fmt.Fprintf(w, "Email:       %s\n", out.Email)
	}

	if out.AvatarURL != "" {
		fmt.Fprintf(w, "Avatar:      %s\n", out.AvatarURL)
	}

	fmt.Fprintf(w, "Permissions: %s\n", out.Permissions)
	fmt.Fprintf(w, "Calendar:    %s\n", out.Calendar)
}

// configPathHint names the config file for error messages.
func configPathHint(cfg *config.Resolved) string {
	if cfg.ConfigPath != "" {
		return cfg.ConfigPath
	}

	return "the config file"
}

// grantWrite offers write access to an authenticated session. The CLI user
// acts on their own calendar, so signing in is enough.
func grantWrite(s *gcal.Session) {
	if s.IsAuthenticated() {
		s.Grant(gcal.PermWrite)
	}
}
