package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/desertthunder/docrelay/internal/models"
	"github.com/dustin/go-humanize"
)

//go:embed templates/*.html
var templateFiles embed.FS

var templateFuncs = template.FuncMap{
	"size": func(f models.FileRef) string {
		if f.Size <= 0 {
			return "-"
		}
		return humanize.Bytes(uint64(f.Size))
	},
}

// viewData is the model every page renders from.
type viewData struct {
	Title         string
	Authenticated bool
	Flashes       []string
	DownloadDir   string

	Folders       []models.FolderRef
	Files         []models.FileRef
	FolderID      string
	PagePath      string
	NextPageToken string

	Error  string
	Reason string
}

// views holds one parsed template set per page, each sharing the layout.
type views map[string]*template.Template

func loadViews() (views, error) {
	pages := []string{"index", "folders", "files", "error"}
	v := make(views, len(pages))

	for _, page := range pages {
		t, err := template.New(page).Funcs(templateFuncs).ParseFS(templateFiles, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		v[page] = t
	}
	return v, nil
}

// render executes page into a buffer first so template errors never produce half a page.
func (v views) render(w http.ResponseWriter, status int, page string, data viewData) error {
	t, ok := v[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
