package tasks

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docrelay/internal/drive"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
)

// Gateway is the Drive surface the orchestrator needs. [*drive.Gateway] satisfies it.
type Gateway interface {
	GetMetadata(ctx context.Context, fileID string) (models.FileRef, error)
	ListAllFiles(ctx context.Context, parentID string) ([]models.FileRef, error)
	OpenContentStream(ctx context.Context, file models.FileRef, onProgress func(float64)) (*drive.ContentStream, error)
}

// Recorder persists finished batch reports.
type Recorder interface {
	RecordBatch(ctx context.Context, report *models.BatchReport) error
}

// DownloadEngine defines the bulk download operations.
type DownloadEngine interface {
	// DownloadFiles downloads each unique id in fileIDs.
	DownloadFiles(ctx context.Context, fileIDs []string, progress chan<- ProgressUpdate) (*models.BatchReport, error)

	// DownloadFolders downloads every allowed file directly inside each folder.
	DownloadFolders(ctx context.Context, folderIDs []string, progress chan<- ProgressUpdate) (*models.BatchReport, error)
}

// OrchestratorOpts configures an [Orchestrator].
type OrchestratorOpts struct {
	Root     string      // Download root (default: downloads)
	Recorder Recorder    // Optional history sink
	Logger   *log.Logger // Optional logger
}

// Orchestrator implements [DownloadEngine] against a [Gateway] and the local filesystem.
type Orchestrator struct {
	gateway  Gateway
	root     string
	recorder Recorder
	logger   *log.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(gateway Gateway, opts OrchestratorOpts) *Orchestrator {
	if opts.Root == "" {
		opts.Root = "downloads"
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	return &Orchestrator{
		gateway:  gateway,
		root:     opts.Root,
		recorder: opts.Recorder,
		logger:   shared.WithLogger(opts.Logger, "component", "tasks"),
	}
}

// Root returns the download root.
func (o *Orchestrator) Root() string { return o.root }

// sendProgress sends a progress update through the channel without blocking.
func (o *Orchestrator) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// DownloadFiles downloads each unique id in fileIDs in first-seen order.
//
// The returned report is never nil and holds one result per unique id. A non-nil
// error means the batch was aborted by an authorization failure or cancellation;
// ids that were never attempted are recorded as failures with that error's reason.
func (o *Orchestrator) DownloadFiles(ctx context.Context, fileIDs []string, progress chan<- ProgressUpdate) (*models.BatchReport, error) {
	report := models.NewBatchReport(shared.GenerateID(), models.BatchFiles, fileIDs)
	err := o.run(ctx, report, dedupe(fileIDs), progress)
	return report, err
}

// DownloadFolders lists every folder in folderIDs and downloads the union of their allowed files.
//
// A folder whose listing fails is recorded in the report's folder failures and
// the batch moves on; an authorization failure while listing aborts the batch.
func (o *Orchestrator) DownloadFolders(ctx context.Context, folderIDs []string, progress chan<- ProgressUpdate) (*models.BatchReport, error) {
	report := models.NewBatchReport(shared.GenerateID(), models.BatchFolders, folderIDs)
	folders := dedupe(folderIDs)

	var (
		ids  []string
		seen = make(map[string]bool)
	)

	abort := func(pending []string, err error) (*models.BatchReport, error) {
		for _, folderID := range pending {
			report.AddFolderFailure(folderFailure(folderID, err))
		}
		abandon(report, ids, err)
		o.finish(ctx, report, progress)
		return report, err
	}

	for i, folderID := range folders {
		if err := ctx.Err(); err != nil {
			return abort(folders[i:], fmt.Errorf("download canceled: %w", err))
		}

		o.sendProgress(progress, listFolderUpdate(i+1, len(folders), folderID))

		files, err := o.gateway.ListAllFiles(ctx, folderID)
		if err != nil {
			if shared.IsAuthError(err) {
				o.logger.Error("aborting batch", "batch", report.BatchID, "folder", folderID, "error", err)
				return abort(folders[i:], fmt.Errorf("failed to list folder %s: %w", folderID, err))
			}
			o.logger.Warn("skipping folder", "folder", folderID, "reason", shared.Reason(err), "error", err)
			report.AddFolderFailure(folderFailure(folderID, err))
			o.sendProgress(progress, listFailedUpdate(i+1, len(folders), folderID, err))
			continue
		}

		added := 0
		for _, f := range files {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true
			ids = append(ids, f.ID)
			added++
		}
		o.logger.Debug("listed folder", "folder", folderID, "files", len(files), "new", added)
	}

	return report, o.run(ctx, report, ids, progress)
}

// run downloads ids sequentially into report.
func (o *Orchestrator) run(ctx context.Context, report *models.BatchReport, ids []string, progress chan<- ProgressUpdate) error {
	defer o.finish(ctx, report, progress)

	total := len(ids)
	o.logger.Info("starting batch", "batch", report.BatchID, "kind", report.Kind, "files", total)
	o.sendProgress(progress, batchStartUpdate(total))

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			err = fmt.Errorf("download canceled: %w", err)
			abandon(report, ids[i:], err)
			return err
		}

		result, err := o.downloadOne(ctx, id, i+1, total, progress)
		report.Add(result)

		if err != nil && shared.IsAuthError(err) {
			o.logger.Error("aborting batch", "batch", report.BatchID, "file", id, "error", err)
			err = fmt.Errorf("download of %s aborted: %w", id, err)
			abandon(report, ids[i+1:], err)
			return err
		}
	}
	return nil
}

// abandon records each id in ids as a failure that was never attempted.
func abandon(report *models.BatchReport, ids []string, err error) {
	for _, id := range ids {
		report.Add(models.DownloadResult{
			FileID:  id,
			Outcome: models.OutcomeFailure,
			Reason:  shared.Reason(err),
			Message: "not attempted: " + err.Error(),
		})
	}
}

func folderFailure(folderID string, err error) models.FolderFailure {
	return models.FolderFailure{FolderID: folderID, Reason: shared.Reason(err), Message: err.Error()}
}

// finish stamps the report, announces it, and hands it to the recorder.
func (o *Orchestrator) finish(ctx context.Context, report *models.BatchReport, progress chan<- ProgressUpdate) {
	report.Finish()
	o.logger.Info("batch finished",
		"batch", report.BatchID,
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"folders_failed", len(report.FolderFailures),
		"duration", report.Duration(),
	)
	o.sendProgress(progress, batchCompleteUpdate(report))

	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordBatch(context.WithoutCancel(ctx), report); err != nil {
		o.logger.Error("failed to record batch", "batch", report.BatchID, "error", err)
	}
}
