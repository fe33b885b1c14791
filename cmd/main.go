package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	config := shared.LoadOrDefault("config.toml")

	runner := NewRunner(RunnerOpts{
		Config: config,
		Logger: logger,
	})

	app := &cli.Command{
		Name:    "docrelay",
		Usage:   "Authorize with Google and download documents from Drive",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Before:   runner.loadConfig,
		Commands: runner.register(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		stop()
		switch {
		case shared.IsAuthError(err):
			logger.Fatal("authorization required", "reason", shared.Reason(err), "error", err, "hint", "run 'docrelay auth login'")
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
