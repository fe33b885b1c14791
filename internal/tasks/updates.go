package tasks

import (
	"fmt"

	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
)

// ProgressUpdate represents a progress event during a batch download.
//
// Used to send real-time updates to the CLI, TUI or web layer for display.
type ProgressUpdate struct {
	Phase    Phase   // Operation phase
	Step     int     // Current file (or folder) number within the phase
	Total    int     // Total files (or folders) in the phase
	Fraction float64 // Download fraction of the current file, in [0, 1]
	Message  string  // Human-readable message for display
	Data     any     // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ListFolder Phase = iota
	ListFailed
	BatchStart
	FetchMetadata
	DownloadFile
	FileComplete
	FileFailed
	BatchComplete
)

func (p Phase) String() string {
	switch p {
	case ListFolder:
		return "list_folder"
	case ListFailed:
		return "list_failed"
	case BatchStart:
		return "batch_start"
	case FetchMetadata:
		return "fetch_metadata"
	case DownloadFile:
		return "download_file"
	case FileComplete:
		return "file_complete"
	case FileFailed:
		return "file_failed"
	case BatchComplete:
		return "batch_complete"
	default:
		return ""
	}
}

func listFolderUpdate(step, total int, folderID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListFolder,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Listing folder %s...", step, total, folderID),
	}
}

func listFailedUpdate(step, total int, folderID string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ folder %s: %s", step, total, folderID, shared.Reason(err)),
		Data:    err,
	}
}

func batchStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BatchStart,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Downloading %d file(s)...", total),
	}
}

func fetchMetadataUpdate(step, total int, fileID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchMetadata,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Fetching metadata for %s...", step, total, fileID),
	}
}

func fileProgressUpdate(step, total int, name string, fraction float64) ProgressUpdate {
	return ProgressUpdate{
		Phase:    DownloadFile,
		Step:     step,
		Total:    total,
		Fraction: fraction,
		Message:  fmt.Sprintf("Downloading %s: %d%%", name, int(fraction*100)),
	}
}

func fileCompleteUpdate(step, total int, result models.DownloadResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:    FileComplete,
		Step:     step,
		Total:    total,
		Fraction: 1,
		Message:  fmt.Sprintf("[%d/%d] ✓ %s", step, total, result.Name),
		Data:     result,
	}
}

func fileFailedUpdate(step, total int, result models.DownloadResult) ProgressUpdate {
	name := result.Name
	if name == "" {
		name = result.FileID
	}
	return ProgressUpdate{
		Phase:   FileFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %s", step, total, name, result.Reason),
		Data:    result,
	}
}

func batchCompleteUpdate(report *models.BatchReport) ProgressUpdate {
	return ProgressUpdate{
		Phase:   BatchComplete,
		Step:    report.Total(),
		Total:   report.Total(),
		Message: fmt.Sprintf("Downloaded %d of %d file(s)", report.Succeeded(), report.Total()),
		Data:    report,
	}
}
