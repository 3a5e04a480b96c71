package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ultimaforsan/ultima/internal/gcal"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize read-only access to Google Calendar",
		Long: `Run the OAuth2 authorization code flow (with PKCE) in the browser and
save the resulting token. The OAuth client JSON is read from
[google] credentials_file.`,
		RunE: runLogin,
	}

	cmd.Flags().Bool("no-browser", false, "print the authorization URL instead of opening a browser")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved authentication token",
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	logger := cc.Logger

	oauthCfg, err := gcal.OAuthConfig(cc.Cfg.Google.CredentialsFile)
	if err != nil {
		return err
	}

	var openURL func(string) error

	if noBrowser, _ := cmd.Flags().GetBool("no-browser"); !noBrowser {
		openURL = openBrowser
	}

	if _, err := gcal.Login(cmd.Context(), oauthCfg, cc.Cfg.Google.TokenFile, openURL, logger); err != nil {
		return err
	}

	logger.Info("login successful", "token_file", cc.Cfg.Google.TokenFile)
	cc.Statusf("Login successful.\n")

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := gcal.Logout(cc.Cfg.Google.TokenFile, cc.Logger); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// openBrowser launches the platform URL opener.
func openBrowser(url string) error {
	var c *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		c = exec.CommandContext(context.Background(), "open", url)
	case "windows":
		c = exec.CommandContext(context.Background(), "rundll32", "url.dll,FileProtocolHandler", url)
	default:
		c = exec.CommandContext(context.Background(), "xdg-open", url)
	}

	c.Stdout = os.Stderr
	c.Stderr = os.Stderr

	if err := c.Start(); err != nil {
		return fmt.Errorf("opening browser: %w", err)
	}

	// Reap the opener without blocking the login flow.
	go func() { _ = c.Wait() }()

	return nil
}
