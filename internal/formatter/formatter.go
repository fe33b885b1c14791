// package formatter renders batch reports and listings as CSV, Markdown, JSON or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/dustin/go-humanize"
)

// Format names an export format accepted by [Export].
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat maps a user-supplied name (or file extension) to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "text", "txt":
		return FormatText, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown format %q: %w", name, shared.ErrInvalidArgument)
	}
}

// Export renders report in format.
func Export(report *models.BatchReport, format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return ExportToText(report)
	case FormatMarkdown:
		return ExportToMarkdown(report)
	case FormatCSV:
		return ExportToCSV(report)
	case FormatJSON:
		return shared.MarshalJSON(report, true)
	default:
		return nil, fmt.Errorf("unknown format %q: %w", format, shared.ErrInvalidArgument)
	}
}

// ExportToCSV converts a BatchReport to CSV with columns: File ID, Name, Outcome, Reason, Bytes, Path
func ExportToCSV(report *models.BatchReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"File ID", "Name", "Outcome", "Reason", "Bytes", "Path"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range report.Results {
		record := []string{
			r.FileID,
			r.Name,
			string(r.Outcome),
			r.Reason,
			strconv.FormatInt(r.Bytes, 10),
			r.LocalPath,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a BatchReport to a Markdown summary with a results table
func ExportToMarkdown(report *models.BatchReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Download batch %s\n\n", report.BatchID)
	fmt.Fprintf(&buf, "**Kind**: %s\n", report.Kind)
	fmt.Fprintf(&buf, "**Started**: %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&buf, "**Duration**: %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(&buf, "**Succeeded**: %d of %d (%s)\n\n", report.Succeeded(), report.Total(), humanize.Bytes(uint64(report.Bytes())))

	if len(report.FolderFailures) > 0 {
		buf.WriteString("## Folders not listed\n\n")
		for _, f := range report.FolderFailures {
			fmt.Fprintf(&buf, "- `%s`: %s\n", f.FolderID, f.Reason)
		}
		buf.WriteString("\n")
	}

	if report.Total() == 0 {
		buf.WriteString("No files were attempted.\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("## Results\n\n")
	buf.WriteString("| | Name | File ID | Size | Detail |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	for _, r := range report.Results {
		mark, detail, size := "✓", r.LocalPath, humanize.Bytes(uint64(r.Bytes))
		if !r.Succeeded() {
			mark, detail, size = "✗", r.Reason, ""
		}
		fmt.Fprintf(&buf, "| %s | %s | `%s` | %s | %s |\n", mark, escapeCell(displayName(r)), r.FileID, size, escapeCell(detail))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a BatchReport to plain text format
func ExportToText(report *models.BatchReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Batch: %s (%s)\n", report.BatchID, report.Kind)
	fmt.Fprintf(&buf, "Downloaded: %d of %d file(s), %s in %s\n",
		report.Succeeded(), report.Total(), humanize.Bytes(uint64(report.Bytes())), report.Duration().Round(time.Millisecond))

	if report.Total() > 0 {
		buf.WriteString("\n")
	}
	for i, r := range report.Results {
		if r.Succeeded() {
			fmt.Fprintf(&buf, "%d. ✓ %s → %s (%s)\n", i+1, displayName(r), r.LocalPath, humanize.Bytes(uint64(r.Bytes)))
		} else {
			fmt.Fprintf(&buf, "%d. ✗ %s: %s\n", i+1, displayName(r), r.Reason)
		}
	}

	if len(report.FolderFailures) > 0 {
		fmt.Fprintf(&buf, "\nFolders not listed: %d\n", len(report.FolderFailures))
		for _, f := range report.FolderFailures {
			fmt.Fprintf(&buf, "✗ %s: %s\n", f.FolderID, f.Reason)
		}
	}

	return buf.Bytes(), nil
}

// FoldersToText renders a folder listing, one "id  name" line per folder.
func FoldersToText(folders []models.FolderRef) []byte {
	var buf bytes.Buffer
	width := 0
	for _, f := range folders {
		width = max(width, len(f.ID))
	}
	for _, f := range folders {
		fmt.Fprintf(&buf, "%-*s  %s\n", width, f.ID, f.Name)
	}
	return buf.Bytes()
}

// FilesToText renders a file listing with type and size columns.
func FilesToText(files []models.FileRef) []byte {
	var buf bytes.Buffer
	idWidth, kindWidth := 0, 0
	for _, f := range files {
		idWidth = max(idWidth, len(f.ID))
		kindWidth = max(kindWidth, len(f.Kind()))
	}
	for _, f := range files {
		size := "-"
		if f.Size > 0 {
			size = humanize.Bytes(uint64(f.Size))
		}
		fmt.Fprintf(&buf, "%-*s  %-*s  %8s  %s\n", idWidth, f.ID, kindWidth, f.Kind(), size, f.Name)
	}
	return buf.Bytes()
}

// WriteReport exports report to path, choosing the format from the file extension.
//
// Defaults to {report.BatchID}.txt as the filename.
func WriteReport(report *models.BatchReport, path string) (string, error) {
	if path == "" {
		path = report.BatchID + ".txt"
	}

	format, err := ParseFormat(filepath.Ext(path))
	if err != nil {
		return "", err
	}

	data, err := Export(report, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

func displayName(r models.DownloadResult) string {
	if r.Name != "" {
		return r.Name
	}
	return r.FileID
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
