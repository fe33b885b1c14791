package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgFoldersFetched MsgKind = iota
	MsgFilesFetched
	MsgProgressUpdate
	MsgDownloadComplete
)

type foldersFetched struct {
	folders []models.FolderRef
	err     error
}

type filesFetched struct {
	folder models.FolderRef
	files  []models.FileRef
	err    error
}

type downloadComplete struct {
	report *models.BatchReport
	err    error
}

// foldersFetchedMsg is the constructor for [MsgFoldersFetched]
func foldersFetchedMsg(folders []models.FolderRef, err error) Msg {
	return Msg{kind: MsgFoldersFetched, data: foldersFetched{folders, err}}
}

// filesFetchedMsg is the constructor for [MsgFilesFetched]
func filesFetchedMsg(folder models.FolderRef, files []models.FileRef, err error) Msg {
	return Msg{kind: MsgFilesFetched, data: filesFetched{folder, files, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// downloadCompleteMsg is the constructor for [MsgDownloadComplete]
func downloadCompleteMsg(report *models.BatchReport, err error) Msg {
	return Msg{kind: MsgDownloadComplete, data: downloadComplete{report, err}}
}
