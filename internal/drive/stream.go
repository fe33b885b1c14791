package drive

import (
	"io"
	"strings"

	"github.com/desertthunder/docrelay/internal/models"
)

// maxPartial is the highest fraction reported before EOF.
const maxPartial = 0.999

// ExportFormat is the Office format a Google-native document is exported to.
type ExportFormat struct {
	MimeType  string
	Extension string
}

var exportFormats = map[string]ExportFormat{
	models.MimeGoogleDoc: {
		MimeType:  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		Extension: ".docx",
	},
	models.MimeGoogleSheet: {
		MimeType:  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Extension: ".xlsx",
	},
	models.MimeGoogleSlides: {
		MimeType:  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
		Extension: ".pptx",
	},
}

// ExportFor returns the export format for a native MIME type.
func ExportFor(mimeType string) (ExportFormat, bool) {
	f, ok := exportFormats[mimeType]
	return f, ok
}

// LocalName returns the file name content for file should be saved under.
// Exported documents gain their Office extension unless the name already has it.
func LocalName(file models.FileRef) string {
	f, ok := ExportFor(file.MimeType)
	if !ok || strings.HasSuffix(strings.ToLower(file.Name), f.Extension) {
		return file.Name
	}
	return file.Name + f.Extension
}

// ContentStream is a lazy, finite, non-restartable reader over one file's bytes.
//
// onProgress receives a strictly increasing fraction in [0, 1). 1.0 is
// reported exactly once, when the underlying body reaches EOF. When the size
// is unknown only the final 1.0 is reported.
type ContentStream struct {
	File     models.FileRef
	Name     string
	MimeType string

	body       io.ReadCloser
	total      int64
	read       int64
	last       float64
	done       bool
	onProgress func(float64)
}

// NewContentStream wraps body. total may be zero when the size is unknown.
func NewContentStream(file models.FileRef, body io.ReadCloser, total int64, onProgress func(float64)) *ContentStream {
	mime := file.MimeType
	if f, ok := ExportFor(file.MimeType); ok {
		mime = f.MimeType
	}
	return &ContentStream{
		File:       file,
		Name:       LocalName(file),
		MimeType:   mime,
		body:       body,
		total:      total,
		last:       -1,
		onProgress: onProgress,
	}
}

// Total returns the expected size in bytes, or zero if unknown.
func (s *ContentStream) Total() int64 { return s.total }

// BytesRead returns the number of bytes consumed so far.
func (s *ContentStream) BytesRead() int64 { return s.read }

func (s *ContentStream) Read(p []byte) (int, error) {
	if s.done {
		return 0, io.EOF
	}

	n, err := s.body.Read(p)
	s.read += int64(n)

	if n > 0 && s.total > 0 {
		f := float64(s.read) / float64(s.total)
		s.emit(min(f, maxPartial))
	}

	if err == io.EOF {
		s.done = true
		s.emit(1)
	}
	return n, err
}

// Close releases the underlying body.
func (s *ContentStream) Close() error {
	return s.body.Close()
}

func (s *ContentStream) emit(f float64) {
	if f <= s.last {
		return
	}
	s.last = f
	if s.onProgress != nil {
		s.onProgress(f)
	}
}
