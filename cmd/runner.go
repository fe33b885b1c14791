package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docrelay/internal/auth"
	"github.com/desertthunder/docrelay/internal/credentials"
	"github.com/desertthunder/docrelay/internal/drive"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/server"
	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// cliSession keys the credential the CLI commands share.
const cliSession = "cli"

// Gateway is the Drive surface the CLI commands use. [*drive.Gateway] satisfies it.
type Gateway interface {
	server.Gateway
	ListAllFolders(ctx context.Context) ([]models.FolderRef, error)
}

// GatewayFactory builds a [Gateway] authorized by ts.
type GatewayFactory func(ctx context.Context, ts oauth2.TokenSource) (Gateway, error)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	logger      *log.Logger
	output      io.Writer
	interactive bool
	store       credentials.Store
	flow        *auth.Flow
	db          *sql.DB
	newGateway  GatewayFactory
	openURL     func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Logger     *log.Logger
	Output     io.Writer
	Store      credentials.Store  // Credential store (default: a FileStore at auth.token_path)
	Flow       *auth.Flow         // OAuth flow (default: built from the google config section)
	DB         *sql.DB            // History database (default: opened from the database config section)
	NewGateway GatewayFactory     // Drive gateway constructor (default: the Drive API client)
	OpenURL    func(string) error // Browser launcher (default: [shared.OpenBrowser])
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	interactive := false
	if opts.Output == nil {
		opts.Output = os.Stdout
		interactive = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	}
	if opts.OpenURL == nil {
		opts.OpenURL = shared.OpenBrowser
	}

	r := &Runner{
		config:      opts.Config,
		logger:      opts.Logger,
		output:      opts.Output,
		interactive: interactive,
		store:       opts.Store,
		flow:        opts.Flow,
		db:          opts.DB,
		newGateway:  opts.NewGateway,
		openURL:     opts.OpenURL,
	}
	if r.newGateway == nil {
		r.newGateway = r.driveGateway
	}
	return r
}

// SetLogger replaces the runner's logger.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, foldersCommand, filesCommand, downloadCommand, historyCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig replaces the runner's config when --config names an existing file.
func (r *Runner) loadConfig(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if !cmd.IsSet("config") {
		return ctx, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ctx, nil
	}
	config, err := shared.LoadConfig(path)
	if err != nil {
		return ctx, err
	}
	r.config = config
	return ctx, nil
}

func (r *Runner) credentials() credentials.Store {
	if r.store == nil {
		r.store = credentials.NewFileStore(r.config.Auth.TokenPath)
	}
	return r.store
}

func (r *Runner) authFlow() (*auth.Flow, error) {
	if r.flow != nil {
		return r.flow, nil
	}
	flow, err := auth.NewFlow(r.config.Google)
	if err != nil {
		return nil, err
	}
	r.flow = flow
	return flow, nil
}

// database returns the history database and a func that releases it.
func (r *Runner) database() (*sql.DB, func(), error) {
	if r.db != nil {
		return r.db, func() {}, nil
	}
	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

func (r *Runner) driveGateway(ctx context.Context, ts oauth2.TokenSource) (Gateway, error) {
	g, err := drive.FromTokenSource(ctx, ts,
		drive.WithRate(r.config.Downloads.RateLimit),
		drive.WithLogger(r.logger),
	)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// gateway builds a Drive gateway for the signed-in CLI credential.
func (r *Runner) gateway(ctx context.Context) (Gateway, error) {
	flow, err := r.authFlow()
	if err != nil {
		return nil, err
	}

	store := r.credentials()
	if _, ok, err := store.Load(ctx, cliSession); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: run 'docrelay auth login' first", shared.ErrNotAuthenticated)
	}

	ts := credentials.NewRefresher(store, flow.Config(), r.logger).TokenSource(ctx, cliSession)
	return r.newGateway(ctx, ts)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
