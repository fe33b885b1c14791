package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/docrelay/internal/auth"
	"github.com/desertthunder/docrelay/internal/credentials"
	"github.com/desertthunder/docrelay/internal/repositories"
	"github.com/desertthunder/docrelay/internal/server"
	"github.com/desertthunder/docrelay/internal/tasks"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const stateSweepInterval = time.Minute

// Serve runs the web relay until the context is canceled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	flow, err := r.authFlow()
	if err != nil {
		return err
	}

	var (
		store    credentials.Store = credentials.NewMemoryStore()
		recorder tasks.Recorder
	)
	db, release, err := r.database()
	switch {
	case err != nil && r.config.Server.PersistSessions:
		return fmt.Errorf("persist_sessions needs the database: %w", err)
	case err != nil:
		r.logger.Warn("download history disabled", "error", err)
	default:
		defer release()
		recorder = repositories.NewDownloadRepository(db)
		if r.config.Server.PersistSessions {
			store = repositories.NewCredentialRepository(db)
		}
	}

	key := []byte(r.config.Server.SessionKey)
	if len(key) == 0 || strings.HasPrefix(r.config.Server.SessionKey, "change-me") {
		r.logger.Warn("server.session_key is not set; sessions will not survive a restart")
		key = nil
	}
	secure := strings.HasPrefix(r.config.Google.RedirectURI, "https://")

	states := auth.NewStateStore(auth.DefaultStateTTL)
	go sweepStates(ctx, states, stateSweepInterval)

	app, err := server.NewApp(server.AppOpts{
		Flow:        flow,
		Credentials: store,
		States:      states,
		Sessions:    server.NewSessionManager(key, secure),
		NewGateway: func(ctx context.Context, ts oauth2.TokenSource) (server.Gateway, error) {
			return r.newGateway(ctx, ts)
		},
		Recorder:    recorder,
		DownloadDir: r.config.Downloads.Dir,
		RedirectURI: r.config.Google.RedirectURI,
		Scopes:      r.config.Google.Scopes,
		Logger:      r.logger,
	})
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	r.writePlain("→ docrelay listening on http://%s\n", addr)
	return server.ListenAndServe(ctx, addr, app.Router(), r.logger)
}

// sweepStates drops expired pending authorization states until ctx ends.
func sweepStates(ctx context.Context, states *auth.StateStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			states.Cleanup()
		}
	}
}
