package models

import (
	"fmt"
	"time"
)

// Outcome is the terminal state of one attempted download.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// BatchKind names what a batch was requested for.
type BatchKind string

const (
	BatchFiles   BatchKind = "files"
	BatchFolders BatchKind = "folders"
)

// DownloadResult is the immutable outcome of one attempted file.
//
// Reason holds the error taxonomy name for failures and is empty on success.
type DownloadResult struct {
	FileID    string  `json:"file_id"`
	Name      string  `json:"name"`
	LocalPath string  `json:"local_path,omitempty"`
	Bytes     int64   `json:"bytes"`
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// Succeeded reports whether the file landed on disk.
func (r DownloadResult) Succeeded() bool { return r.Outcome == OutcomeSuccess }

// FolderFailure records a folder whose listing failed, so none of its files were resolved.
type FolderFailure struct {
	FolderID string `json:"folder_id"`
	Reason   string `json:"reason"`
	Message  string `json:"message,omitempty"`
}

// BatchReport aggregates the results of one DownloadFiles or DownloadFolders call.
type BatchReport struct {
	BatchID        string           `json:"id"`
	Kind           BatchKind        `json:"kind"`
	Requested      []string         `json:"requested"`
	Results        []DownloadResult `json:"results"`
	FolderFailures []FolderFailure  `json:"folder_failures,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	FinishedAt     time.Time        `json:"finished_at"`
}

// NewBatchReport starts an empty report for the requested ids.
func NewBatchReport(id string, kind BatchKind, requested []string) *BatchReport {
	return &BatchReport{
		BatchID:   id,
		Kind:      kind,
		Requested: append([]string(nil), requested...),
		Results:   []DownloadResult{},
		StartedAt: time.Now(),
	}
}

func (b *BatchReport) ID() string           { return b.BatchID }
func (b *BatchReport) CreatedAt() time.Time { return b.StartedAt }
func (b *BatchReport) UpdatedAt() time.Time { return b.FinishedAt }

// Validate checks the report invariants.
func (b *BatchReport) Validate() error {
	if b.BatchID == "" {
		return fmt.Errorf("batch id is required")
	}
	if b.Kind != BatchFiles && b.Kind != BatchFolders {
		return fmt.Errorf("invalid batch kind %q", b.Kind)
	}
	for _, r := range b.Results {
		if r.FileID == "" {
			return fmt.Errorf("result without file id")
		}
		if r.Outcome != OutcomeSuccess && r.Outcome != OutcomeFailure {
			return fmt.Errorf("invalid outcome %q for %s", r.Outcome, r.FileID)
		}
	}
	for _, f := range b.FolderFailures {
		if f.FolderID == "" {
			return fmt.Errorf("folder failure without folder id")
		}
	}
	return nil
}

// Add appends a result.
func (b *BatchReport) Add(r DownloadResult) { b.Results = append(b.Results, r) }

// AddFolderFailure records a folder that could not be listed.
func (b *BatchReport) AddFolderFailure(f FolderFailure) {
	b.FolderFailures = append(b.FolderFailures, f)
}

// HasFailures reports whether any file or folder in the batch failed.
func (b *BatchReport) HasFailures() bool {
	return b.Failed() > 0 || len(b.FolderFailures) > 0
}

// Finish stamps the finish time.
func (b *BatchReport) Finish() { b.FinishedAt = time.Now() }

// Succeeded returns the number of successful downloads.
func (b *BatchReport) Succeeded() int {
	n := 0
	for _, r := range b.Results {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed downloads.
func (b *BatchReport) Failed() int { return len(b.Results) - b.Succeeded() }

// Total returns the number of attempted files.
func (b *BatchReport) Total() int { return len(b.Results) }

// Duration returns how long the batch ran.
func (b *BatchReport) Duration() time.Duration {
	if b.FinishedAt.IsZero() {
		return 0
	}
	return b.FinishedAt.Sub(b.StartedAt)
}

// Bytes returns the number of bytes written by successful downloads.
func (b *BatchReport) Bytes() int64 {
	var n int64
	for _, r := range b.Results {
		if r.Succeeded() {
			n += r.Bytes
		}
	}
	return n
}

// Failures returns the failed results in order.
func (b *BatchReport) Failures() []DownloadResult {
	var out []DownloadResult
	for _, r := range b.Results {
		if !r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}
