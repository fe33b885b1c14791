package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/docrelay/internal/formatter"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/repositories"
	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/desertthunder/docrelay/internal/tasks"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"
)

// DownloadFiles downloads the file ids given as arguments.
func (r *Runner) DownloadFiles(ctx context.Context, cmd *cli.Command) error {
	return r.download(ctx, cmd, models.BatchFiles)
}

// DownloadFolders downloads every allowed file directly inside the folder ids given as arguments.
func (r *Runner) DownloadFolders(ctx context.Context, cmd *cli.Command) error {
	return r.download(ctx, cmd, models.BatchFolders)
}

func (r *Runner) download(ctx context.Context, cmd *cli.Command, kind models.BatchKind) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one %s id is required", shared.ErrMissingArgument, strings.TrimSuffix(string(kind), "s"))
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	g, err := r.gateway(ctx)
	if err != nil {
		return err
	}

	root := cmd.String("dir")
	if root == "" {
		root = r.config.Downloads.Dir
	}

	var recorder tasks.Recorder
	if !cmd.Bool("no-history") {
		db, release, err := r.database()
		if err != nil {
			r.logger.Warn("download history disabled", "error", err)
		} else {
			defer release()
			recorder = repositories.NewDownloadRepository(db)
		}
	}

	engine := tasks.NewOrchestrator(g, tasks.OrchestratorOpts{
		Root:     root,
		Recorder: recorder,
		Logger:   r.logger,
	})

	updates := make(chan tasks.ProgressUpdate, 64)
	stop := make(chan struct{})
	done := make(chan struct{})
	go r.showProgress(updates, stop, done)

	var report *models.BatchReport
	if kind == models.BatchFolders {
		report, err = engine.DownloadFolders(ctx, ids, updates)
	} else {
		report, err = engine.DownloadFiles(ctx, ids, updates)
	}
	close(stop)
	<-done

	if report != nil {
		if werr := r.writeReport(report, format, cmd.String("report")); werr != nil {
			return werr
		}
	}
	if err != nil {
		return err
	}
	if folders := len(report.FolderFailures); folders > 0 {
		return fmt.Errorf("%d folder(s) could not be listed and %d of %d file(s) failed to download",
			folders, report.Failed(), report.Total())
	}
	if failed := report.Failed(); failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed to download", failed, report.Total())
	}
	return nil
}

func (r *Runner) writeReport(report *models.BatchReport, format formatter.Format, path string) error {
	data, err := formatter.Export(report, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if path == "" {
		return nil
	}
	written, err := formatter.WriteReport(report, path)
	if err != nil {
		return err
	}
	r.logger.Info("report saved", "path", written)
	return nil
}

// showProgress renders updates until stop closes, then drains what is left and closes done.
func (r *Runner) showProgress(updates <-chan tasks.ProgressUpdate, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case u := <-updates:
			r.progressLine(u)
		case <-stop:
			for {
				select {
				case u := <-updates:
					r.progressLine(u)
				default:
					return
				}
			}
		}
	}
}

// progressLine rewrites a single status line on a terminal and logs otherwise.
func (r *Runner) progressLine(u tasks.ProgressUpdate) {
	if !r.interactive {
		switch u.Phase {
		case tasks.DownloadFile:
		case tasks.FetchMetadata, tasks.ListFolder:
			r.logger.Debug(u.Message, "phase", u.Phase)
		case tasks.FileFailed, tasks.ListFailed:
			r.logger.Warn(u.Message, "phase", u.Phase)
		default:
			r.logger.Info(u.Message, "phase", u.Phase)
		}
		return
	}

	const eraseLine = "\r\033[K"
	switch u.Phase {
	case tasks.DownloadFile, tasks.FetchMetadata, tasks.ListFolder:
		r.writePlain("%s[%d/%d] %s", eraseLine, u.Step, u.Total, u.Message)
	case tasks.BatchComplete:
		r.writePlain("%s", eraseLine)
	default:
		r.writePlain("%s%s\n", eraseLine, u.Message)
	}
}

// History lists recorded batches, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	db, release, err := r.database()
	if err != nil {
		return err
	}
	defer release()

	criteria := map[string]any{"limit": cmd.Int("limit")}
	if kind := cmd.String("kind"); kind != "" {
		criteria["kind"] = kind
	}

	summaries, err := repositories.NewDownloadRepository(db).Summaries(ctx, criteria)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaries, true)
	}

	if len(summaries) == 0 {
		return r.writePlain("No downloads recorded yet.\n")
	}

	r.writePlainHeader(fmt.Sprintf("Download history (%d)", len(summaries)))
	for _, s := range summaries {
		r.writePlain("#%-4d %s  %-7s  %d/%d ok  %s\n",
			s.Sequence, s.ID, s.Kind, s.Succeeded, s.Total(), humanize.Time(s.StartedAt))
	}
	return nil
}

// HistoryShow prints one recorded batch report.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: batch id", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	db, release, err := r.database()
	if err != nil {
		return err
	}
	defer release()

	report, err := repositories.NewDownloadRepository(db).Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load batch %s: %w", id, err)
	}
	return r.writeReport(report, format, "")
}

// HistoryFile lists every recorded attempt at downloading one file.
func (r *Runner) HistoryFile(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: file id", shared.ErrMissingArgument)
	}

	db, release, err := r.database()
	if err != nil {
		return err
	}
	defer release()

	results, err := repositories.NewDownloadRepository(db).FileHistory(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load history for %s: %w", id, err)
	}
	if len(results) == 0 {
		return r.writePlain("No downloads recorded for %s.\n", id)
	}

	for _, res := range results {
		if res.Succeeded() {
			r.writePlain("✓ %s  %s  %s\n", res.Name, humanize.Bytes(uint64(res.Bytes)), res.LocalPath)
		} else {
			r.writePlain("✗ %s  %s\n", res.Name, res.Reason)
		}
	}
	return nil
}
