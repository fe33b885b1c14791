package ui

import (
	"context"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
	"github.com/desertthunder/docrelay/internal/tasks"
)

type fakeBrowser struct {
	folders    []models.FolderRef
	files      map[string][]models.FileRef
	foldersErr error
}

func (b *fakeBrowser) ListAllFolders(ctx context.Context) ([]models.FolderRef, error) {
	return b.folders, b.foldersErr
}

func (b *fakeBrowser) ListAllFiles(ctx context.Context, parentID string) ([]models.FileRef, error) {
	return b.files[parentID], nil
}

type fakeEngine struct {
	kind     models.BatchKind
	ids      []string
	err      error
	unlisted []string
}

func (e *fakeEngine) DownloadFiles(ctx context.Context, ids []string, progress chan<- tasks.ProgressUpdate) (*models.BatchReport, error) {
	return e.run(models.BatchFiles, ids, progress)
}

func (e *fakeEngine) DownloadFolders(ctx context.Context, ids []string, progress chan<- tasks.ProgressUpdate) (*models.BatchReport, error) {
	return e.run(models.BatchFolders, ids, progress)
}

func (e *fakeEngine) run(kind models.BatchKind, ids []string, progress chan<- tasks.ProgressUpdate) (*models.BatchReport, error) {
	e.kind, e.ids = kind, ids
	report := models.NewBatchReport("batch-1", kind, ids)
	progress <- tasks.ProgressUpdate{Phase: tasks.BatchStart, Total: len(ids)}
	for i, id := range ids {
		if e.err != nil {
			report.Add(models.DownloadResult{FileID: id, Outcome: models.OutcomeFailure, Reason: shared.Reason(e.err)})
			continue
		}
		report.Add(models.DownloadResult{FileID: id, Name: id, Bytes: 10, Outcome: models.OutcomeSuccess})
		progress <- tasks.ProgressUpdate{Phase: tasks.FileComplete, Step: i + 1, Total: len(ids), Fraction: 1, Message: "✓ " + id}
	}
	for _, id := range e.unlisted {
		report.AddFolderFailure(models.FolderFailure{FolderID: id, Reason: "RemoteError"})
	}
	report.Finish()
	return report, e.err
}

func newTestModel(t *testing.T, b *fakeBrowser, e *fakeEngine) *Model {
	t.Helper()
	m := NewModel(context.Background(), b, e)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	run(t, m, m.Init())
	return m
}

func testBrowser() *fakeBrowser {
	return &fakeBrowser{
		folders: []models.FolderRef{{ID: "root1", Name: "Reports"}, {ID: "root2", Name: "Drafts"}},
		files: map[string][]models.FileRef{
			"root1": {
				{ID: "f1", Name: "Q1.pdf", MimeType: "application/pdf", Size: 2048},
				{ID: "f2", Name: "Q2.pdf", MimeType: "application/pdf", Size: 4096},
			},
		},
	}
}

// run executes cmd and feeds resulting messages back into the model until none remain.
func run(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for i := 0; cmd != nil; i++ {
		if i > 100 {
			t.Fatal("command chain did not settle")
		}
		msg := cmd()
		if msg == nil {
			return
		}
		if _, ok := msg.(Msg); !ok {
			return
		}
		_, cmd = m.Update(msg)
	}
}

func press(t *testing.T, m *Model, keys ...string) {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case " ":
			msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		_, cmd := m.Update(msg)
		run(t, m, cmd)
	}
}

func TestModel(t *testing.T) {
	t.Run("Init loads folders", func(t *testing.T) {
		m := newTestModel(t, testBrowser(), &fakeEngine{})

		if m.loading {
			t.Error("expected loading to finish")
		}
		if got := len(m.folderList.Items()); got != 2 {
			t.Fatalf("expected 2 folders, got %d", got)
		}
		if !strings.Contains(m.View(), "Reports") {
			t.Errorf("expected folder name in view, got %q", m.View())
		}
	})

	t.Run("folder listing error is shown", func(t *testing.T) {
		b := testBrowser()
		b.foldersErr = fmt.Errorf("listing: %w", shared.ErrRemoteError)
		m := newTestModel(t, b, &fakeEngine{})

		if m.Err() == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(m.View(), "Error:") {
			t.Errorf("expected error view, got %q", m.View())
		}
	})

	t.Run("enter opens a folder", func(t *testing.T) {
		m := newTestModel(t, testBrowser(), &fakeEngine{})
		press(t, m, "enter")

		if m.view != FileListView {
			t.Fatalf("expected FileListView, got %d", m.view)
		}
		if m.folder.ID != "root1" {
			t.Errorf("expected root1, got %s", m.folder.ID)
		}
		if got := len(m.fileList.Items()); got != 2 {
			t.Errorf("expected 2 files, got %d", got)
		}

		press(t, m, "esc")
		if m.view != FolderListView {
			t.Errorf("expected FolderListView after esc, got %d", m.view)
		}
	})

	t.Run("marked files are confirmed and downloaded", func(t *testing.T) {
		e := &fakeEngine{}
		m := newTestModel(t, testBrowser(), e)
		press(t, m, "enter", " ", "d")

		if m.view != ConfirmView {
			t.Fatalf("expected ConfirmView, got %d", m.view)
		}
		if len(m.pending.ids) != 1 || m.pending.ids[0] != "f1" {
			t.Fatalf("expected pending [f1], got %v", m.pending.ids)
		}
		if !strings.Contains(m.View(), "Download 1 file(s)?") {
			t.Errorf("unexpected confirm view %q", m.View())
		}

		press(t, m, "y")

		if m.view != ResultView {
			t.Fatalf("expected ResultView, got %d", m.view)
		}
		if e.kind != models.BatchFiles {
			t.Errorf("expected files batch, got %s", e.kind)
		}
		if m.Report() == nil || m.Report().Succeeded() != 1 {
			t.Fatalf("expected one success, got %+v", m.Report())
		}
		if !strings.Contains(m.View(), "Download Complete") {
			t.Errorf("unexpected result view %q", m.View())
		}

		press(t, m, "r")
		if m.view != FileListView {
			t.Errorf("expected restart to return to FileListView, got %d", m.view)
		}
	})

	t.Run("highlighted folder is used when nothing is marked", func(t *testing.T) {
		e := &fakeEngine{}
		m := newTestModel(t, testBrowser(), e)
		press(t, m, "d", "y")

		if e.kind != models.BatchFolders {
			t.Fatalf("expected folders batch, got %s", e.kind)
		}
		if len(e.ids) != 1 || e.ids[0] != "root1" {
			t.Errorf("expected [root1], got %v", e.ids)
		}
	})

	t.Run("unlisted folders are shown in the result", func(t *testing.T) {
		e := &fakeEngine{unlisted: []string{"root1"}}
		m := newTestModel(t, testBrowser(), e)
		press(t, m, "d", "y")

		if m.view != ResultView {
			t.Fatalf("expected ResultView, got %d", m.view)
		}
		view := m.View()
		if !strings.Contains(view, "Could not list 1 folder(s)") || !strings.Contains(view, "root1: RemoteError") {
			t.Errorf("expected folder failure in result view, got:\n%s", view)
		}
	})

	t.Run("n cancels confirmation", func(t *testing.T) {
		e := &fakeEngine{}
		m := newTestModel(t, testBrowser(), e)
		press(t, m, "d", "n")

		if m.view != FolderListView {
			t.Errorf("expected FolderListView, got %d", m.view)
		}
		if e.ids != nil {
			t.Errorf("expected no download, got %v", e.ids)
		}
	})

	t.Run("mark all toggles every item", func(t *testing.T) {
		m := newTestModel(t, testBrowser(), &fakeEngine{})
		press(t, m, "a")

		for _, it := range m.folderList.Items() {
			if !it.(folderItem).marked {
				t.Fatalf("expected %s marked", it.(folderItem).folder.Name)
			}
		}

		press(t, m, "a")
		for _, it := range m.folderList.Items() {
			if it.(folderItem).marked {
				t.Fatalf("expected %s unmarked", it.(folderItem).folder.Name)
			}
		}
	})

	t.Run("auth failure suggests signing in", func(t *testing.T) {
		e := &fakeEngine{err: fmt.Errorf("token: %w", shared.ErrAuthExpired)}
		m := newTestModel(t, testBrowser(), e)
		press(t, m, "d", "y")

		if m.view != ResultView {
			t.Fatalf("expected ResultView, got %d", m.view)
		}
		view := m.View()
		if !strings.Contains(view, "Download stopped") || !strings.Contains(view, "auth login") {
			t.Errorf("unexpected result view %q", view)
		}
	})
}

func TestOverall(t *testing.T) {
	m := NewModel(context.Background(), testBrowser(), &fakeEngine{})

	m.applyProgress(tasks.ProgressUpdate{Phase: tasks.BatchStart, Total: 4})
	if got := m.overall(); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}

	m.applyProgress(tasks.ProgressUpdate{Phase: tasks.FileComplete, Step: 1, Total: 4})
	m.applyProgress(tasks.ProgressUpdate{Phase: tasks.DownloadFile, Step: 2, Total: 4, Fraction: 0.5})
	if got := m.overall(); got != 0.375 {
		t.Errorf("expected 0.375, got %v", got)
	}

	for i := 2; i <= 4; i++ {
		m.applyProgress(tasks.ProgressUpdate{Phase: tasks.FileFailed, Step: i, Total: 4, Message: "x"})
	}
	if got := m.overall(); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
	if len(m.recent) != 4 {
		t.Errorf("expected 4 recent lines, got %d", len(m.recent))
	}
}
