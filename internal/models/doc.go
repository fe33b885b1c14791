// Package models defines the domain entities and persistence interfaces for docrelay.
//
// The package contains two categories of types:
//
// 1. Remote references: read-only values sourced from Google Drive listings
//   - [FolderRef] : A folder the user can access
//   - [FileRef] : A document with its MIME type and size
//   - [FolderPage], [FilePage] : One listing page plus its continuation token
//
// 2. Download outcomes: values produced by the download orchestrator
//   - [DownloadResult] : The immutable outcome of one attempted file
//   - [BatchReport] : The aggregate of one files or folders request
//
// [AllowedTypes] is the fixed set of MIME types in scope. Query construction and
// listing filters both read from it so the two can never disagree.
package models
