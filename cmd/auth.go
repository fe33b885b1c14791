package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/docrelay/internal/credentials"
	"github.com/desertthunder/docrelay/internal/server"
	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the authorization-code flow through a loopback callback server and stores the credential.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	flow, err := r.authFlow()
	if err != nil {
		return err
	}

	redirectURI := r.config.Google.RedirectURI
	if redirectURI == "" {
		redirectURI = flow.Config().RedirectURL
	}

	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: google.redirect_uri %q must be an absolute URL", shared.ErrInvalidConfig, redirectURI)
	}

	authURL, state, err := flow.BeginAuthorization(r.config.Google.Scopes, redirectURI)
	if err != nil {
		return fmt.Errorf("failed to begin authorization: %w", err)
	}

	handler, err := server.NewCallbackHandler(flow, redirectURI, state)
	if err != nil {
		return err
	}
	router := server.NewBasicRouter()
	router.Handler(handler)

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting callback server at %v", u.Host)
		serverErrors <- server.Serve(serveCtx, ln, router, r.logger)
	}()
	defer func() {
		cancel()
		<-serverErrors
	}()

	if cmd.Bool("no-browser") {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Google authorization...\n")
		if err := r.openURL(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	wait := cmd.Duration("timeout")
	if wait <= 0 {
		wait = 2 * time.Minute
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", wait)

	timeout := time.NewTimer(wait)
	defer timeout.Stop()

	var result server.CallbackResult
	select {
	case result = <-handler.Result():
	case err := <-serverErrors:
		// put it back for the deferred shutdown wait
		serverErrors <- err
		return fmt.Errorf("callback server stopped early: %v", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, wait)
	case <-ctx.Done():
		return ctx.Err()
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}

	store := r.credentials()
	if err := store.Save(ctx, cliSession, result.Credential); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	r.writePlainln("✓ Authorization successful")
	if fs, ok := store.(*credentials.FileStore); ok {
		r.writePlain("✓ Credential saved to %s\n\n", fs.Path())
	}
	r.writePlain("You can now use: docrelay folders\n")
	return nil
}

// AuthStatus reports whether a credential is stored and when its access token expires.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	cred, ok, err := r.credentials().Load(ctx, cliSession)
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if !ok {
		return r.writePlain("✗ Not signed in. Run 'docrelay auth login'.\n")
	}

	r.writePlain("✓ Signed in\n")
	r.writePlain("Client:  %s\n", cred.ClientID)
	r.writePlain("Scopes:  %s\n", strings.Join(cred.Scopes, " "))
	switch {
	case cred.Expiry.IsZero():
		r.writePlain("Access:  no expiry recorded\n")
	case cred.Expired():
		r.writePlain("Access:  expired %s, refreshed on next use\n", humanize.Time(cred.Expiry))
	default:
		r.writePlain("Access:  expires %s\n", humanize.Time(cred.Expiry))
	}
	return nil
}

// AuthLogout removes the stored credential.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.credentials().Clear(ctx, cliSession); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	return r.writePlain("✓ Signed out\n")
}
