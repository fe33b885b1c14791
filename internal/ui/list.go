package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/dustin/go-humanize"
)

var (
	_ list.Item = folderItem{}
	_ list.Item = fileItem{}
)

func checkbox(marked bool) string {
	if marked {
		return styles.selected.Render("[x]")
	}
	return "[ ]"
}

// folderItem wraps [models.FolderRef] to implement [list.Item].
type folderItem struct {
	folder models.FolderRef
	marked bool
}

func (i folderItem) FilterValue() string { return i.folder.Name }
func (i folderItem) Title() string       { return checkbox(i.marked) + " " + i.folder.Name }
func (i folderItem) Description() string { return i.folder.ID }

// fileItem wraps [models.FileRef] to implement [list.Item].
type fileItem struct {
	file   models.FileRef
	marked bool
}

func (i fileItem) FilterValue() string { return i.file.Name }
func (i fileItem) Title() string       { return checkbox(i.marked) + " " + i.file.Name }
func (i fileItem) Description() string {
	desc := i.file.Kind()
	if i.file.Size > 0 {
		desc = fmt.Sprintf("%s • %s", desc, humanize.Bytes(uint64(i.file.Size)))
	}
	return desc
}
