package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/desertthunder/docrelay/internal/tasks"
	"github.com/dustin/go-humanize"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	FolderListView ViewState = iota
	FileListView
	ConfirmView
	DownloadView
	ResultView
)

// recentLines is how many finished files the download view keeps on screen.
const recentLines = 5

// Browser lists what the TUI can offer for download. [*drive.Gateway] satisfies it.
type Browser interface {
	ListAllFolders(ctx context.Context) ([]models.FolderRef, error)
	ListAllFiles(ctx context.Context, parentID string) ([]models.FileRef, error)
}

// pendingDownload is the selection awaiting confirmation.
type pendingDownload struct {
	kind     models.BatchKind
	ids      []string
	names    []string
	returnTo ViewState
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	browser      Browser
	engine       tasks.DownloadEngine
	width        int
	height       int
	folderList   list.Model
	fileList     list.Model
	folder       models.FolderRef
	loading      bool
	pending      pendingDownload
	progressChan chan tasks.ProgressUpdate
	doneChan     chan Msg
	progress     tasks.ProgressUpdate
	bar          progress.Model
	total        int
	finished     int
	current      float64
	recent       []string
	report       *models.BatchReport
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model with the provided dependencies.
func NewModel(ctx context.Context, browser Browser, engine tasks.DownloadEngine) *Model {
	folders := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	folders.Title = "Google Drive Folders"
	files := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	files.Title = "Documents"

	return &Model{
		ctx:        ctx,
		view:       FolderListView,
		browser:    browser,
		engine:     engine,
		folderList: folders,
		fileList:   files,
		loading:    true,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init initializes the TUI by fetching folders from Drive.
func (m *Model) Init() tea.Cmd {
	return m.fetchFolders()
}

// Err returns the error that ended the session, if any.
func (m *Model) Err() error { return m.err }

// Report returns the last finished batch report.
func (m *Model) Report() *models.BatchReport { return m.report }

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.folderList.SetSize(msg.Width-4, msg.Height-8)
		m.fileList.SetSize(msg.Width-4, msg.Height-8)
		m.bar.Width = min(60, max(10, msg.Width-10))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case FolderListView:
			return m.handleFolderListKeys(msg)
		case FileListView:
			return m.handleFileListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case DownloadView:
			if key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgFoldersFetched:
		data := msg.data.(foldersFetched)
		m.loading = false
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.folders))
		for i, f := range data.folders {
			items[i] = folderItem{folder: f}
		}
		return m, m.folderList.SetItems(items)

	case MsgFilesFetched:
		data := msg.data.(filesFetched)
		m.loading = false
		if data.err != nil {
			m.err = data.err
			m.view = FolderListView
			return m, nil
		}
		m.err = nil
		m.folder = data.folder
		items := make([]list.Item, len(data.files))
		for i, f := range data.files {
			items[i] = fileItem{file: f}
		}
		m.fileList.Title = fmt.Sprintf("Documents in '%s'", data.folder.Name)
		m.fileList.ResetSelected()
		m.view = FileListView
		return m, m.fileList.SetItems(items)

	case MsgProgressUpdate:
		m.applyProgress(msg.data.(tasks.ProgressUpdate))
		return m, m.waitForProgress()

	case MsgDownloadComplete:
		data := msg.data.(downloadComplete)
		m.report = data.report
		m.err = data.err
		m.progressChan = nil
		m.doneChan = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view == FolderListView && len(m.folderList.Items()) == 0 {
		return styles.error.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}
	if m.loading {
		return styles.help.Render("Loading...")
	}

	switch m.view {
	case FolderListView:
		return m.renderFolderList()
	case FileListView:
		return m.renderFileList()
	case ConfirmView:
		return m.renderConfirm()
	case DownloadView:
		return m.renderDownload()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleFolderListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.folderList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.folderList.SelectedItem().(folderItem); ok {
			m.err = nil
			m.loading = true
			return m, m.fetchFiles(item.folder)
		}
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		if item, ok := m.folderList.SelectedItem().(folderItem); ok {
			item.marked = !item.marked
			cmd := m.folderList.SetItem(m.folderList.GlobalIndex(), item)
			m.folderList.CursorDown()
			return m, cmd
		}
		return m, nil
	case key.Matches(msg, m.keys.all):
		return m, markAll(&m.folderList)
	case key.Matches(msg, m.keys.download):
		return m.confirmFolders()
	}

	var cmd tea.Cmd
	m.folderList, cmd = m.folderList.Update(msg)
	return m, cmd
}

func (m *Model) handleFileListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.fileList.FilterState() == list.Filtering {
		return m.updateLists(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = FolderListView
		return m, nil
	case key.Matches(msg, m.keys.toggle):
		if item, ok := m.fileList.SelectedItem().(fileItem); ok {
			item.marked = !item.marked
			cmd := m.fileList.SetItem(m.fileList.GlobalIndex(), item)
			m.fileList.CursorDown()
			return m, cmd
		}
		return m, nil
	case key.Matches(msg, m.keys.all):
		return m, markAll(&m.fileList)
	case key.Matches(msg, m.keys.enter), key.Matches(msg, m.keys.download):
		return m.confirmFiles()
	}

	var cmd tea.Cmd
	m.fileList, cmd = m.fileList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = DownloadView
		return m, m.startDownload()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back), key.Matches(msg, m.keys.quit):
		m.view = m.pending.returnTo
		return m, nil
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = m.pending.returnTo
		m.report = nil
		m.err = nil
		m.pending = pendingDownload{}
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case FolderListView:
		m.folderList, cmd = m.folderList.Update(msg)
	case FileListView:
		m.fileList, cmd = m.fileList.Update(msg)
	}
	return m, cmd
}

// markAll marks every item, or clears every mark when all are already marked.
func markAll(l *list.Model) tea.Cmd {
	items := l.Items()
	all := len(items) > 0
	for _, it := range items {
		switch it := it.(type) {
		case folderItem:
			all = all && it.marked
		case fileItem:
			all = all && it.marked
		}
	}

	next := make([]list.Item, len(items))
	for i, it := range items {
		switch it := it.(type) {
		case folderItem:
			it.marked = !all
			next[i] = it
		case fileItem:
			it.marked = !all
			next[i] = it
		default:
			next[i] = it
		}
	}
	return l.SetItems(next)
}

// confirmFolders asks to download the marked folders, or the highlighted one when none are marked.
func (m *Model) confirmFolders() (tea.Model, tea.Cmd) {
	p := pendingDownload{kind: models.BatchFolders, returnTo: FolderListView}
	for _, it := range m.folderList.Items() {
		if f, ok := it.(folderItem); ok && f.marked {
			p.ids = append(p.ids, f.folder.ID)
			p.names = append(p.names, f.folder.Name)
		}
	}
	if len(p.ids) == 0 {
		f, ok := m.folderList.SelectedItem().(folderItem)
		if !ok {
			return m, nil
		}
		p.ids, p.names = []string{f.folder.ID}, []string{f.folder.Name}
	}

	m.pending = p
	m.view = ConfirmView
	return m, nil
}

// confirmFiles asks to download the marked files, or the highlighted one when none are marked.
func (m *Model) confirmFiles() (tea.Model, tea.Cmd) {
	p := pendingDownload{kind: models.BatchFiles, returnTo: FileListView}
	for _, it := range m.fileList.Items() {
		if f, ok := it.(fileItem); ok && f.marked {
			p.ids = append(p.ids, f.file.ID)
			p.names = append(p.names, f.file.Name)
		}
	}
	if len(p.ids) == 0 {
		f, ok := m.fileList.SelectedItem().(fileItem)
		if !ok {
			return m, nil
		}
		p.ids, p.names = []string{f.file.ID}, []string{f.file.Name}
	}

	m.pending = p
	m.view = ConfirmView
	return m, nil
}

func (m *Model) fetchFolders() tea.Cmd {
	return func() tea.Msg {
		folders, err := m.browser.ListAllFolders(m.ctx)
		return foldersFetchedMsg(folders, err)
	}
}

func (m *Model) fetchFiles(folder models.FolderRef) tea.Cmd {
	return func() tea.Msg {
		files, err := m.browser.ListAllFiles(m.ctx, folder.ID)
		return filesFetchedMsg(folder, files, err)
	}
}

// startDownload runs the pending batch in the background; the result arrives on doneChan.
func (m *Model) startDownload() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.doneChan = make(chan Msg, 1)
	m.progress = tasks.ProgressUpdate{}
	m.total, m.finished, m.current = len(m.pending.ids), 0, 0
	m.recent = nil

	ctx, engine, p := m.ctx, m.engine, m.pending
	progressCh, doneCh := m.progressChan, m.doneChan

	go func() {
		var (
			report *models.BatchReport
			err    error
		)
		if p.kind == models.BatchFolders {
			report, err = engine.DownloadFolders(ctx, p.ids, progressCh)
		} else {
			report, err = engine.DownloadFiles(ctx, p.ids, progressCh)
		}
		doneCh <- downloadCompleteMsg(report, err)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressCh, doneCh := m.progressChan, m.doneChan
	if doneCh == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update := <-progressCh:
			return progressUpdateMsg(update)
		case msg := <-doneCh:
			return msg
		}
	}
}

func (m *Model) applyProgress(u tasks.ProgressUpdate) {
	m.progress = u
	switch u.Phase {
	case tasks.BatchStart:
		m.total, m.finished, m.current = u.Total, 0, 0
	case tasks.DownloadFile:
		m.current = u.Fraction
	case tasks.FileComplete, tasks.FileFailed, tasks.ListFailed:
		if u.Phase != tasks.ListFailed {
			m.finished, m.current = u.Step, 0
		}
		m.recent = append(m.recent, u.Message)
		if len(m.recent) > recentLines {
			m.recent = m.recent[len(m.recent)-recentLines:]
		}
	}
}

// overall returns the batch completion fraction.
func (m *Model) overall() float64 {
	if m.total == 0 {
		return 0
	}
	return min(1, (float64(m.finished)+m.current)/float64(m.total))
}

func (m *Model) renderFolderList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.toggle, m.keys.download, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	if m.err != nil {
		helpView = styles.error.Render(m.err.Error()) + "\n" + helpView
	}
	return fmt.Sprintf("%s\n\n%s", m.folderList.View(), helpView)
}

func (m *Model) renderFileList() string {
	downloadKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter/d", "download"))
	helpKeys := []key.Binding{m.keys.toggle, m.keys.all, downloadKey, m.keys.back, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.fileList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	what := "file(s)"
	if m.pending.kind == models.BatchFolders {
		what = "folder(s)"
	}
	title := styles.title.Render(fmt.Sprintf("Download %d %s?", len(m.pending.ids), what))

	var b strings.Builder
	for i, name := range m.pending.names {
		if i == 10 {
			fmt.Fprintf(&b, "  …and %d more\n", len(m.pending.names)-10)
			break
		}
		fmt.Fprintf(&b, "  • %s\n", name)
	}

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, b.String(), helpView)
}

func (m *Model) renderDownload() string {
	title := styles.title.Render("Downloading")

	var phase string
	switch m.progress.Phase {
	case tasks.ListFolder:
		phase = fmt.Sprintf("Listing folders (%d/%d)", m.progress.Step, m.progress.Total)
	case tasks.FetchMetadata, tasks.DownloadFile:
		phase = fmt.Sprintf("File %d of %d", m.progress.Step, m.progress.Total)
	default:
		phase = fmt.Sprintf("%d of %d file(s) done", m.finished, m.total)
	}

	var recent string
	if len(m.recent) > 0 {
		recent = "\n\n" + styles.help.Render(strings.Join(m.recent, "\n"))
	}

	return fmt.Sprintf("%s\n\n%s\n%s\n%s%s", title, m.bar.ViewAs(m.overall()), phase, m.progress.Message, recent)
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.report == nil {
		return styles.error.Render(fmt.Sprintf("Download failed: %v", m.err)) + "\n\n" + helpView
	}

	var b strings.Builder
	if m.err != nil {
		b.WriteString(styles.error.Render(fmt.Sprintf("Download stopped: %v", m.err)))
		if shared.IsAuthError(m.err) {
			b.WriteString("\n" + styles.warning.Render("Run 'docrelay auth login' to sign in again."))
		}
		b.WriteString("\n")
	} else {
		b.WriteString(styles.success.Render("✓ Download Complete!"))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nDownloaded: %d of %d file(s) (%s)\nDuration: %s",
		m.report.Succeeded(), m.report.Total(),
		humanize.Bytes(uint64(m.report.Bytes())),
		m.report.Duration().Round(time.Millisecond),
	)

	if folders := m.report.FolderFailures; len(folders) > 0 {
		b.WriteString("\n\n" + styles.warning.Render(fmt.Sprintf("Could not list %d folder(s):", len(folders))))
		for _, f := range folders {
			fmt.Fprintf(&b, "\n  • %s: %s", f.FolderID, f.Reason)
		}
	}

	if failures := m.report.Failures(); len(failures) > 0 {
		b.WriteString("\n\n" + styles.warning.Render(fmt.Sprintf("Failed to download %d file(s):", len(failures))))
		for _, r := range failures {
			name := r.Name
			if name == "" {
				name = r.FileID
			}
			fmt.Fprintf(&b, "\n  • %s: %s", name, r.Reason)
		}
	}

	return fmt.Sprintf("%s\n\n%s", b.String(), helpView)
}
