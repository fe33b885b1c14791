// Package tasks orchestrates bulk downloads from Google Drive with real-time progress reporting.
//
// # Core Operations
//
// The [DownloadEngine] interface defines two operations:
//
//  1. [DownloadEngine.DownloadFiles] : Download an explicit list of file ids
//     - Deduplicates ids, keeping first-seen order
//     - Fetches metadata and rejects types outside models.AllowedTypes
//     - Streams each file to <root>/<fileID>/<name> through a .partial file
//
//  2. [DownloadEngine.DownloadFolders] : Download every allowed file in a set of folders
//     - Lists each folder across all pages
//     - Unions the file ids so a file shared by two folders is fetched once
//     - Delegates to the same per-file loop
//
// Downloads run strictly one after another: one open stream and one open file
// handle at a time.
//
// # Partial Failure
//
// Per-file failures (not found, remote errors, exhausted rate-limit retries,
// local I/O, disallowed types) are recorded in the [models.BatchReport] and the
// batch continues. Authorization failures abort: the partial report is returned
// together with the error so the caller can send the user back to consent.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, the current file's
// download fraction, a message, and optional data for richer UIs.
// Updates use select with default so a slow reader never stalls a download.
//
// # History
//
// The optional [Recorder] receives every finished report
// (repositories.DownloadRepository). Recording errors are logged and never fail the batch.
package tasks
