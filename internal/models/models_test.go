package models

import (
	"slices"
	"strings"
	"testing"
)

func TestAllowedTypes(t *testing.T) {
	t.Run("Allows", func(t *testing.T) {
		tc := []struct {
			mime string
			want bool
		}{
			{MimeGoogleDoc, true},
			{MimeGoogleSheet, true},
			{MimeGoogleSlides, true},
			{MimePDF, true},
			{MimeWord, true},
			{MimeWordX, true},
			{MimePowerPoint, true},
			{MimePowerPointX, true},
			{"image/png", false},
			{MimeFolder, false},
			{"", false},
		}

		for _, tt := range tc {
			if got := AllowedTypes.Allows(tt.mime); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.mime, got, tt.want)
			}
		}
	})

	t.Run("Query contains every member", func(t *testing.T) {
		q := AllowedTypes.Query()
		if !strings.HasPrefix(q, "(") || !strings.HasSuffix(q, ")") {
			t.Errorf("query should be parenthesised: %s", q)
		}
		for _, m := range AllowedTypes.Members() {
			if !strings.Contains(q, "mimeType='"+m+"'") {
				t.Errorf("query missing %s", m)
			}
		}
		if got := strings.Count(q, " or "); got != AllowedTypes.Len()-1 {
			t.Errorf("expected %d or-clauses, got %d", AllowedTypes.Len()-1, got)
		}
	})

	t.Run("Members is a copy", func(t *testing.T) {
		m := AllowedTypes.Members()
		m[0] = "tampered"
		if AllowedTypes.Members()[0] == "tampered" {
			t.Error("Members should not expose internal state")
		}
	})

	t.Run("NewTypeSet ignores duplicates", func(t *testing.T) {
		s := NewTypeSet("a", "b", "a")
		if !slices.Equal(s.Members(), []string{"a", "b"}) {
			t.Errorf("unexpected members %v", s.Members())
		}
	})
}

func TestEscapeQuery(t *testing.T) {
	if got := EscapeQuery(`it's\here`); got != `it\'s\\here` {
		t.Errorf("EscapeQuery() = %s", got)
	}
}

func TestFileRef(t *testing.T) {
	if !(FileRef{MimeType: MimeGoogleDoc}).IsNative() {
		t.Error("google doc should be native")
	}
	if (FileRef{MimeType: MimePDF}).IsNative() {
		t.Error("pdf should not be native")
	}
	if got := (FileRef{MimeType: MimeWordX}).Kind(); got != "Word" {
		t.Errorf("Kind() = %q, want Word", got)
	}
	if got := (FileRef{MimeType: "text/plain"}).Kind(); got != "text/plain" {
		t.Errorf("Kind() = %q, want raw MIME type", got)
	}
}

func TestBatchReport(t *testing.T) {
	t.Run("Counts", func(t *testing.T) {
		b := NewBatchReport("b1", BatchFiles, []string{"x", "y", "z"})
		b.Add(DownloadResult{FileID: "x", Outcome: OutcomeSuccess, Bytes: 10})
		b.Add(DownloadResult{FileID: "y", Outcome: OutcomeFailure, Reason: "NotFound"})
		b.Add(DownloadResult{FileID: "z", Outcome: OutcomeSuccess, Bytes: 5})
		b.Finish()

		if b.Succeeded() != 2 || b.Failed() != 1 || b.Total() != 3 {
			t.Errorf("unexpected counts %d/%d/%d", b.Succeeded(), b.Failed(), b.Total())
		}
		if b.Succeeded()+b.Failed() != b.Total() {
			t.Error("succeeded + failed should equal total")
		}
		if b.Bytes() != 15 {
			t.Errorf("expected 15 bytes, got %d", b.Bytes())
		}
		if f := b.Failures(); len(f) != 1 || f[0].FileID != "y" {
			t.Errorf("unexpected failures %+v", f)
		}
		if err := b.Validate(); err != nil {
			t.Errorf("expected valid report: %v", err)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		b := NewBatchReport("b2", BatchFolders, nil)
		if b.Total() != 0 || b.Succeeded() != 0 || b.Failed() != 0 {
			t.Error("empty report should have zero counts")
		}
		if b.Results == nil {
			t.Error("results should be an empty slice, not nil")
		}
	})

	t.Run("Validate", func(t *testing.T) {
		if err := (&BatchReport{Kind: BatchFiles}).Validate(); err == nil {
			t.Error("expected error for missing id")
		}
		if err := (&BatchReport{BatchID: "b", Kind: "other"}).Validate(); err == nil {
			t.Error("expected error for invalid kind")
		}
		b := NewBatchReport("b", BatchFiles, nil)
		b.Add(DownloadResult{FileID: "f", Outcome: "maybe"})
		if err := b.Validate(); err == nil {
			t.Error("expected error for invalid outcome")
		}
	})

	t.Run("Folder failures", func(t *testing.T) {
		b := NewBatchReport("b3", BatchFolders, []string{"broken"})
		if b.HasFailures() {
			t.Error("new report should have no failures")
		}

		b.AddFolderFailure(FolderFailure{FolderID: "broken", Reason: "RemoteError"})
		if !b.HasFailures() {
			t.Error("folder failure should count as a failure")
		}
		if b.Total() != 0 {
			t.Errorf("folder failures should not count as files, got %d", b.Total())
		}
		if err := b.Validate(); err != nil {
			t.Errorf("expected valid report: %v", err)
		}

		b.AddFolderFailure(FolderFailure{Reason: "RemoteError"})
		if err := b.Validate(); err == nil {
			t.Error("expected error for folder failure without id")
		}
	})

	t.Run("Requested is copied", func(t *testing.T) {
		ids := []string{"a"}
		b := NewBatchReport("b", BatchFiles, ids)
		ids[0] = "changed"
		if b.Requested[0] != "a" {
			t.Error("report should own its requested ids")
		}
	})
}
