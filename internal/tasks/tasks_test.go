package tasks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
	tu "github.com/desertthunder/docrelay/internal/testing"
)

type mockRecorder struct {
	reports []*models.BatchReport
	err     error
}

func (m *mockRecorder) RecordBatch(ctx context.Context, report *models.BatchReport) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.reports = append(m.reports, report)
	return m.err
}

func pdf(id, name string) models.FileRef {
	return models.FileRef{ID: id, Name: name, MimeType: models.MimePDF}
}

func newFixture(t *testing.T) (*tu.FakeGateway, *Orchestrator, string) {
	t.Helper()
	gw := tu.NewFakeGateway()
	gw.AddFolder("root123", "Reports")
	gw.AddFile("root123", pdf("f1", "Report.pdf"), "pdf-bytes")
	gw.AddFile("root123", models.FileRef{ID: "f2", Name: "Notes", MimeType: models.MimeGoogleDoc}, "docx-bytes")
	gw.AddFile("other", pdf("f3", "Other.pdf"), "other-bytes")

	root := t.TempDir()
	return gw, NewOrchestrator(gw, OrchestratorOpts{Root: root}), root
}

func drain(ch chan ProgressUpdate) []ProgressUpdate {
	close(ch)
	var out []ProgressUpdate
	for u := range ch {
		out = append(out, u)
	}
	return out
}

func TestDownloadFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("writes file under its id", func(t *testing.T) {
		_, o, root := newFixture(t)

		report, err := o.DownloadFiles(ctx, []string{"f1"}, nil)
		if err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}

		want := filepath.Join(root, "f1", "Report.pdf")
		if got := tu.MustReadFile(t, want); got != "pdf-bytes" {
			t.Errorf("content = %q, want %q", got, "pdf-bytes")
		}
		if report.Succeeded() != 1 || report.Failed() != 0 {
			t.Errorf("succeeded/failed = %d/%d, want 1/0", report.Succeeded(), report.Failed())
		}
		r := report.Results[0]
		if r.LocalPath != want {
			t.Errorf("LocalPath = %q, want %q", r.LocalPath, want)
		}
		if r.Bytes != int64(len("pdf-bytes")) {
			t.Errorf("Bytes = %d", r.Bytes)
		}
		if report.Kind != models.BatchFiles {
			t.Errorf("Kind = %q", report.Kind)
		}
		if report.FinishedAt.IsZero() {
			t.Error("report was not finished")
		}
	})

	t.Run("exports native documents", func(t *testing.T) {
		_, o, root := newFixture(t)

		if _, err := o.DownloadFiles(ctx, []string{"f2"}, nil); err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(root, "f2", "Notes.docx"))
	})

	t.Run("missing file does not abort batch", func(t *testing.T) {
		_, o, root := newFixture(t)

		report, err := o.DownloadFiles(ctx, []string{"missing1", "f1"}, nil)
		if err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		if report.Total() != 2 {
			t.Fatalf("Total() = %d, want 2", report.Total())
		}

		failed := report.Results[0]
		if failed.Outcome != models.OutcomeFailure || failed.Reason != "NotFound" {
			t.Errorf("missing1 result = %+v, want NotFound failure", failed)
		}
		if !report.Results[1].Succeeded() {
			t.Errorf("f1 result = %+v, want success", report.Results[1])
		}
		tu.AssertNoFile(t, filepath.Join(root, "missing1"))
	})

	t.Run("repeat download overwrites", func(t *testing.T) {
		gw, o, root := newFixture(t)
		path := filepath.Join(root, "f1", "Report.pdf")

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("stale stale stale stale"), 0644); err != nil {
			t.Fatal(err)
		}

		for range 2 {
			if _, err := o.DownloadFiles(ctx, []string{"f1"}, nil); err != nil {
				t.Fatalf("DownloadFiles() error = %v", err)
			}
		}
		if got := tu.MustReadFile(t, path); got != "pdf-bytes" {
			t.Errorf("content = %q, want %q", got, "pdf-bytes")
		}
		if entries := tu.MustReadDir(t, filepath.Dir(path)); len(entries) != 1 {
			t.Errorf("entries = %v, want only Report.pdf", entries)
		}
		if gw.OpenCalls["f1"] != 2 {
			t.Errorf("OpenCalls = %d, want 2", gw.OpenCalls["f1"])
		}
	})

	t.Run("dedupes ids", func(t *testing.T) {
		gw, o, _ := newFixture(t)

		report, err := o.DownloadFiles(ctx, []string{"f1", " f1 ", "", "f3", "f1"}, nil)
		if err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		if report.Total() != 2 {
			t.Errorf("Total() = %d, want 2", report.Total())
		}
		if gw.MetadataCalls["f1"] != 1 {
			t.Errorf("MetadataCalls[f1] = %d, want 1", gw.MetadataCalls["f1"])
		}
		if len(report.Requested) != 5 {
			t.Errorf("Requested = %v, want the ids as given", report.Requested)
		}
	})

	t.Run("empty id set", func(t *testing.T) {
		_, o, root := newFixture(t)

		report, err := o.DownloadFiles(ctx, nil, nil)
		if err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		if report == nil || report.Total() != 0 {
			t.Fatalf("report = %+v, want empty", report)
		}
		if entries := tu.MustReadDir(t, root); len(entries) != 0 {
			t.Errorf("root entries = %v, want none", entries)
		}
	})

	t.Run("disallowed type fails", func(t *testing.T) {
		gw, o, root := newFixture(t)
		gw.AddFile("root123", models.FileRef{ID: "img", Name: "photo.png", MimeType: "image/png"}, "png")

		report, err := o.DownloadFiles(ctx, []string{"img"}, nil)
		if err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		if got := report.Results[0].Reason; got != "NotAllowed" {
			t.Errorf("Reason = %q, want NotAllowed", got)
		}
		if gw.OpenCalls["img"] != 0 {
			t.Error("disallowed file was opened")
		}
		tu.AssertNoFile(t, filepath.Join(root, "img"))
	})

	t.Run("authorization failure aborts and accounts for every id", func(t *testing.T) {
		gw, o, _ := newFixture(t)
		gw.MetadataErrors["f2"] = fmt.Errorf("refresh: %w", shared.ErrAuthExpired)

		report, err := o.DownloadFiles(ctx, []string{"f1", "f2", "f3"}, nil)
		if !errors.Is(err, shared.ErrAuthExpired) {
			t.Fatalf("error = %v, want ErrAuthExpired", err)
		}
		if report.Total() != 3 {
			t.Fatalf("Total() = %d, want 3", report.Total())
		}
		if report.Succeeded() != 1 || report.Failed() != 2 {
			t.Errorf("succeeded/failed = %d/%d, want 1/2", report.Succeeded(), report.Failed())
		}
		for _, r := range report.Results[1:] {
			if r.Reason != "AuthExpired" {
				t.Errorf("%s Reason = %q, want AuthExpired", r.FileID, r.Reason)
			}
		}
		if got := report.Results[2]; got.FileID != "f3" || !strings.Contains(got.Message, "not attempted") {
			t.Errorf("f3 result = %+v, want not attempted", got)
		}
		if gw.MetadataCalls["f3"] != 0 {
			t.Error("f3 was attempted after abort")
		}
	})

	t.Run("authorization failure on first id", func(t *testing.T) {
		gw, o, _ := newFixture(t)
		gw.MetadataErrors["f1"] = fmt.Errorf("refresh: %w", shared.ErrAuthExpired)

		report, err := o.DownloadFiles(ctx, []string{"f1", "f2", "f3", "f2"}, nil)
		if !errors.Is(err, shared.ErrAuthExpired) {
			t.Fatalf("error = %v, want ErrAuthExpired", err)
		}
		if report.Succeeded()+report.Failed() != 3 {
			t.Errorf("succeeded+failed = %d, want 3 unique ids", report.Succeeded()+report.Failed())
		}
	})

	t.Run("local write failure", func(t *testing.T) {
		gw := tu.NewFakeGateway()
		gw.AddFile("root123", pdf("f1", "Report.pdf"), "pdf-bytes")

		blocker := filepath.Join(t.TempDir(), "not-a-dir")
		if err := os.WriteFile(blocker, nil, 0644); err != nil {
			t.Fatal(err)
		}
		o := NewOrchestrator(gw, OrchestratorOpts{Root: blocker})

		report, err := o.DownloadFiles(ctx, []string{"f1"}, nil)
		if err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		if got := report.Results[0].Reason; got != "LocalIOError" {
			t.Errorf("Reason = %q, want LocalIOError", got)
		}
	})

	t.Run("stream failure leaves no partial file", func(t *testing.T) {
		gw, o, root := newFixture(t)
		gw.ReadErrors["f1"] = errors.New("connection reset")

		report, err := o.DownloadFiles(ctx, []string{"f1"}, nil)
		if err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		if got := report.Results[0].Reason; got != "RemoteError" {
			t.Errorf("Reason = %q, want RemoteError", got)
		}
		if entries := tu.MustReadDir(t, filepath.Join(root, "f1")); len(entries) != 0 {
			t.Errorf("entries = %v, want none", entries)
		}
	})

	t.Run("canceled context stops batch", func(t *testing.T) {
		_, o, _ := newFixture(t)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		report, err := o.DownloadFiles(cctx, []string{"f1", "f2"}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
		if report.Total() != 2 || report.Failed() != 2 {
			t.Errorf("total/failed = %d/%d, want 2/2", report.Total(), report.Failed())
		}
	})
}

func TestDownloadFolders(t *testing.T) {
	ctx := context.Background()

	t.Run("downloads every file in folder", func(t *testing.T) {
		_, o, root := newFixture(t)

		report, err := o.DownloadFolders(ctx, []string{"root123"}, nil)
		if err != nil {
			t.Fatalf("DownloadFolders() error = %v", err)
		}
		if report.Succeeded() != 2 {
			t.Errorf("Succeeded() = %d, want 2", report.Succeeded())
		}
		if report.Kind != models.BatchFolders {
			t.Errorf("Kind = %q", report.Kind)
		}
		tu.AssertFileExists(t, filepath.Join(root, "f1", "Report.pdf"))
		tu.AssertFileExists(t, filepath.Join(root, "f2", "Notes.docx"))
		tu.AssertNoFile(t, filepath.Join(root, "f3"))
	})

	t.Run("shared child downloaded once", func(t *testing.T) {
		gw, o, _ := newFixture(t)
		gw.AddFile("other", pdf("f1", "Report.pdf"), "pdf-bytes")

		report, err := o.DownloadFolders(ctx, []string{"root123", "other"}, nil)
		if err != nil {
			t.Fatalf("DownloadFolders() error = %v", err)
		}
		if report.Total() != 3 {
			t.Errorf("Total() = %d, want 3", report.Total())
		}
		if gw.OpenCalls["f1"] != 1 {
			t.Errorf("OpenCalls[f1] = %d, want 1", gw.OpenCalls["f1"])
		}
	})

	t.Run("failed listing is recorded", func(t *testing.T) {
		gw, o, _ := newFixture(t)
		gw.ListErrors["broken"] = fmt.Errorf("list: %w", shared.ErrRemoteError)
		ch := make(chan ProgressUpdate, 64)

		report, err := o.DownloadFolders(ctx, []string{"broken", "other"}, ch)
		if err != nil {
			t.Fatalf("DownloadFolders() error = %v", err)
		}
		if report.Total() != 1 || !report.Results[0].Succeeded() {
			t.Errorf("results = %+v, want only f3", report.Results)
		}
		if len(report.FolderFailures) != 1 {
			t.Fatalf("FolderFailures = %+v, want broken", report.FolderFailures)
		}
		if f := report.FolderFailures[0]; f.FolderID != "broken" || f.Reason != "RemoteError" {
			t.Errorf("folder failure = %+v, want broken/RemoteError", f)
		}
		if !report.HasFailures() {
			t.Error("HasFailures() = false, want true")
		}

		found := false
		for _, u := range drain(ch) {
			if u.Phase == ListFailed && strings.Contains(u.Message, "broken") {
				found = true
			}
		}
		if !found {
			t.Error("no ListFailed update for broken folder")
		}
	})

	t.Run("only folder fails to list", func(t *testing.T) {
		gw, o, _ := newFixture(t)
		gw.ListErrors["root123"] = shared.ErrRemoteError

		report, err := o.DownloadFolders(ctx, []string{"root123"}, nil)
		if err != nil {
			t.Fatalf("DownloadFolders() error = %v", err)
		}
		if report.Total() != 0 || len(report.FolderFailures) != 1 {
			t.Errorf("total/folder failures = %d/%d, want 0/1", report.Total(), len(report.FolderFailures))
		}
	})

	t.Run("authorization failure while listing aborts", func(t *testing.T) {
		gw, o, _ := newFixture(t)
		gw.ListErrors["root123"] = fmt.Errorf("list: %w", shared.ErrNotAuthenticated)

		report, err := o.DownloadFolders(ctx, []string{"root123", "other"}, nil)
		if !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("error = %v, want ErrNotAuthenticated", err)
		}
		if report.Total() != 0 {
			t.Errorf("Total() = %d, want 0", report.Total())
		}
		if len(report.FolderFailures) != 2 {
			t.Errorf("FolderFailures = %+v, want both folders", report.FolderFailures)
		}
		for _, f := range report.FolderFailures {
			if f.Reason != "NotAuthenticated" {
				t.Errorf("%s Reason = %q, want NotAuthenticated", f.FolderID, f.Reason)
			}
		}
		if gw.ListCalls["other"] != 0 {
			t.Error("listing continued after abort")
		}
	})

	t.Run("authorization failure after listing accounts for resolved ids", func(t *testing.T) {
		gw, o, _ := newFixture(t)
		gw.ListErrors["other"] = fmt.Errorf("list: %w", shared.ErrAuthExpired)

		report, err := o.DownloadFolders(ctx, []string{"root123", "other"}, nil)
		if !errors.Is(err, shared.ErrAuthExpired) {
			t.Fatalf("error = %v, want ErrAuthExpired", err)
		}
		if report.Total() != 2 || report.Failed() != 2 {
			t.Errorf("total/failed = %d/%d, want 2/2", report.Total(), report.Failed())
		}
		if gw.OpenCalls["f1"] != 0 {
			t.Error("f1 was downloaded after abort")
		}
	})

	t.Run("empty folder", func(t *testing.T) {
		_, o, _ := newFixture(t)

		report, err := o.DownloadFolders(ctx, []string{"empty"}, nil)
		if err != nil {
			t.Fatalf("DownloadFolders() error = %v", err)
		}
		if report.Total() != 0 {
			t.Errorf("Total() = %d, want 0", report.Total())
		}
	})
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()

	t.Run("receives finished report", func(t *testing.T) {
		gw := tu.NewFakeGateway()
		gw.AddFile("p", pdf("f1", "Report.pdf"), "x")
		rec := &mockRecorder{}
		o := NewOrchestrator(gw, OrchestratorOpts{Root: t.TempDir(), Recorder: rec})

		report, _ := o.DownloadFiles(ctx, []string{"f1"}, nil)
		if len(rec.reports) != 1 || rec.reports[0] != report {
			t.Fatalf("recorded = %v, want the returned report", rec.reports)
		}
	})

	t.Run("recorded after cancellation", func(t *testing.T) {
		rec := &mockRecorder{}
		o := NewOrchestrator(tu.NewFakeGateway(), OrchestratorOpts{Root: t.TempDir(), Recorder: rec})
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, _ = o.DownloadFiles(cctx, []string{"f1"}, nil)
		if len(rec.reports) != 1 {
			t.Errorf("recorded %d reports, want 1", len(rec.reports))
		}
	})

	t.Run("errors are logged not returned", func(t *testing.T) {
		var buf bytes.Buffer
		rec := &mockRecorder{err: errors.New("disk full")}
		o := NewOrchestrator(tu.NewFakeGateway(), OrchestratorOpts{
			Root:     t.TempDir(),
			Recorder: rec,
			Logger:   shared.NewLogger(&buf),
		})

		if _, err := o.DownloadFiles(ctx, nil, nil); err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		if !strings.Contains(buf.String(), "disk full") {
			t.Errorf("log = %q, want recorder error", buf.String())
		}
	})
}

func TestProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("phases in order", func(t *testing.T) {
		_, o, _ := newFixture(t)
		ch := make(chan ProgressUpdate, 256)

		if _, err := o.DownloadFiles(ctx, []string{"f1", "missing"}, ch); err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		updates := drain(ch)

		if updates[0].Phase != BatchStart || updates[0].Total != 2 {
			t.Errorf("first = %+v, want BatchStart of 2", updates[0])
		}
		last := updates[len(updates)-1]
		if last.Phase != BatchComplete {
			t.Errorf("last phase = %v, want BatchComplete", last.Phase)
		}

		counts := map[Phase]int{}
		prev := -1.0
		for _, u := range updates {
			counts[u.Phase]++
			if u.Phase == DownloadFile {
				if u.Fraction <= prev {
					t.Errorf("fraction %v after %v", u.Fraction, prev)
				}
				prev = u.Fraction
			}
		}
		if counts[FileComplete] != 1 || counts[FileFailed] != 1 {
			t.Errorf("counts = %v", counts)
		}
		if prev != 1 {
			t.Errorf("final fraction = %v, want 1", prev)
		}
	})

	t.Run("never blocks", func(t *testing.T) {
		_, o, _ := newFixture(t)
		ch := make(chan ProgressUpdate)

		report, err := o.DownloadFiles(ctx, []string{"f1", "f2"}, ch)
		if err != nil {
			t.Fatalf("DownloadFiles() error = %v", err)
		}
		if report.Succeeded() != 2 {
			t.Errorf("Succeeded() = %d, want 2", report.Succeeded())
		}
	})
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{ListFolder, "list_folder"},
		{BatchStart, "batch_start"},
		{DownloadFile, "download_file"},
		{BatchComplete, "batch_complete"},
		{Phase(99), ""},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	long := strings.Repeat("é", 150) + ".pdf"

	tests := []struct {
		name, in, want string
	}{
		{"plain", "Report.pdf", "Report.pdf"},
		{"separators", "a/b\\c:d.pdf", "a_b_c_d.pdf"},
		{"control", "x\ny", "x_y"},
		{"blank", "  ", "fb"},
		{"dots", "..", "fb"},
		{"spaces trimmed", " a.pdf ", "a.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in, "fb"); got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("long names keep extension", func(t *testing.T) {
		got := SanitizeName(long, "fb")
		if len(got) > maxNameBytes {
			t.Errorf("len = %d, want <= %d", len(got), maxNameBytes)
		}
		if !strings.HasSuffix(got, ".pdf") {
			t.Errorf("got %q, want .pdf suffix", got)
		}
		if !strings.HasPrefix(got, "é") || strings.ContainsRune(got, '�') {
			t.Errorf("got %q, want valid UTF-8", got)
		}
	})
}
