package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file when missing, then initializes the database and the download directory.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if configPath == "" {
		configPath = "config.toml"
	}

	config := r.config
	if _, err := os.Stat(configPath); err == nil {
		if config, err = shared.LoadConfig(configPath); err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			config = shared.DefaultConfig()
		}
	} else {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
		}
	}
	r.config = config

	r.logger.Info("initializing database", "path", config.Database.Path)
	db, release, err := r.database()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer release()

	version, _, err := shared.CurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if err := os.MkdirAll(config.Downloads.Dir, 0755); err != nil {
		return fmt.Errorf("%w: creating download directory: %v", shared.ErrLocalIO, err)
	}

	r.logger.Infof("setup complete for database: %v", config.Database.Path)

	r.writePlain("✓ Database ready at %s (schema version %d)\n", config.Database.Path, version)
	r.writePlain("✓ Downloads will be saved under %s\n", config.Downloads.Dir)
	if !config.Google.HasClient() {
		r.writePlainln("Next steps:")
		r.writePlain("1. Add your OAuth client to %s ([google] client_id/client_secret or client_secrets_file)\n", configPath)
		r.writePlain("2. Run 'docrelay auth login'\n")
	} else {
		r.writePlainln("Next: run 'docrelay auth login'")
	}
	return nil
}
