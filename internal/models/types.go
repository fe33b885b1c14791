package models

import "strings"

// Google Drive MIME types.
const (
	MimeFolder       = "application/vnd.google-apps.folder"
	MimeGoogleDoc    = "application/vnd.google-apps.document"
	MimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeGoogleSlides = "application/vnd.google-apps.presentation"
	MimePDF          = "application/pdf"
	MimeWord         = "application/msword"
	MimeWordX        = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimePowerPoint   = "application/vnd.ms-powerpoint"
	MimePowerPointX  = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
)

// TypeSet is an immutable, ordered set of MIME types.
type TypeSet struct {
	members []string
	index   map[string]struct{}
}

// NewTypeSet builds a TypeSet; duplicates after the first occurrence are ignored.
func NewTypeSet(mimeTypes ...string) TypeSet {
	s := TypeSet{index: make(map[string]struct{}, len(mimeTypes))}
	for _, m := range mimeTypes {
		if _, ok := s.index[m]; ok {
			continue
		}
		s.index[m] = struct{}{}
		s.members = append(s.members, m)
	}
	return s
}

// AllowedTypes is the set of document types docrelay lists and downloads.
var AllowedTypes = NewTypeSet(
	MimeGoogleDoc,
	MimeGoogleSheet,
	MimeGoogleSlides,
	MimePDF,
	MimeWord,
	MimeWordX,
	MimePowerPointX,
	MimePowerPoint,
)

// Allows reports whether mimeType is a member.
func (s TypeSet) Allows(mimeType string) bool {
	_, ok := s.index[mimeType]
	return ok
}

// Members returns a copy of the members in declaration order.
func (s TypeSet) Members() []string {
	out := make([]string, len(s.members))
	copy(out, s.members)
	return out
}

// Len returns the number of members.
func (s TypeSet) Len() int { return len(s.members) }

// Query renders the set as a parenthesised Drive query clause OR-combining every member.
func (s TypeSet) Query() string {
	clauses := make([]string, len(s.members))
	for i, m := range s.members {
		clauses[i] = "mimeType='" + EscapeQuery(m) + "'"
	}
	return "(" + strings.Join(clauses, " or ") + ")"
}

// EscapeQuery escapes a value for use inside a single-quoted Drive query string.
func EscapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}

// FolderRef identifies a remote folder.
type FolderRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FileRef identifies a remote document.
type FileRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size,omitempty"`
}

// IsNative reports whether the file is a Google Docs editors document that has no raw content.
func (f FileRef) IsNative() bool {
	return strings.HasPrefix(f.MimeType, "application/vnd.google-apps.")
}

var kindLabels = map[string]string{
	MimeFolder:       "Folder",
	MimeGoogleDoc:    "Google Doc",
	MimeGoogleSheet:  "Google Sheet",
	MimeGoogleSlides: "Google Slides",
	MimePDF:          "PDF",
	MimeWord:         "Word",
	MimeWordX:        "Word",
	MimePowerPoint:   "PowerPoint",
	MimePowerPointX:  "PowerPoint",
}

// Kind returns a short display label for the file's type, or the raw MIME type when unknown.
func (f FileRef) Kind() string {
	if label, ok := kindLabels[f.MimeType]; ok {
		return label
	}
	return f.MimeType
}

// FolderPage is one page of a folder listing.
type FolderPage struct {
	Folders       []FolderRef `json:"folders"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

// Truncated reports whether more folders are available.
func (p FolderPage) Truncated() bool { return p.NextPageToken != "" }

// FilePage is one page of a file listing.
type FilePage struct {
	Files         []FileRef `json:"files"`
	NextPageToken string    `json:"next_page_token,omitempty"`
}

// Truncated reports whether more files are available.
func (p FilePage) Truncated() bool { return p.NextPageToken != "" }
