// Package ui implements an interactive terminal browser for Drive documents using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for bulk downloads:
//  1. [FolderListView] : Browse folders, open one or mark several for download
//  2. [FileListView] : Browse the allowed documents in a folder and mark files
//  3. [ConfirmView] : Confirm the download
//  4. [DownloadView] : Monitor per-file and overall progress
//  5. [ResultView] : Display the batch report with failures and their reasons
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the download engine, providing non-blocking status reporting during downloads.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, space, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
