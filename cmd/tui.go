package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/docrelay/internal/repositories"
	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/desertthunder/docrelay/internal/tasks"
	"github.com/desertthunder/docrelay/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(filepath.Join("tmp", "docrelay-tui.log"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	g, err := r.gateway(ctx)
	if err != nil {
		return err
	}

	opts := tasks.OrchestratorOpts{Root: r.config.Downloads.Dir, Logger: r.logger}
	if db, release, err := r.database(); err != nil {
		r.logger.Warn("download history disabled", "error", err)
	} else {
		defer release()
		opts.Recorder = repositories.NewDownloadRepository(db)
	}

	model := ui.NewModel(ctx, g, tasks.NewOrchestrator(g, opts))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	if err := model.Err(); err != nil {
		return err
	}
	if report := model.Report(); report != nil {
		r.writePlain("Last batch: %d of %d file(s) downloaded to %s\n", report.Succeeded(), report.Total(), r.config.Downloads.Dir)
	}
	return nil
}
