package drive

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Listing limits.
const (
	FolderPageSize = 50
	FilePageSize   = 100
)

const (
	folderFields   googleapi.Field = "nextPageToken, files(id, name)"
	fileFields     googleapi.Field = "nextPageToken, files(id, name, mimeType, size)"
	metadataFields googleapi.Field = "id, name, mimeType, size"
)

// Limiter gates outbound API calls. [*rate.Limiter] satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Gateway is a Drive v3 client limited to listing and downloading.
type Gateway struct {
	svc        *drive.Service
	limiter    Limiter
	logger     *log.Logger
	maxRetries int

	// sleepFunc waits between retries. Tests override it to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLimiter paces calls through l.
func WithLimiter(l Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithRate paces calls to perSecond requests per second. Non-positive values disable pacing.
func WithRate(perSecond float64) Option {
	return func(g *Gateway) {
		if perSecond <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) { g.logger = shared.WithLogger(l, "component", "drive") }
}

// WithMaxRetries overrides the retry budget.
func WithMaxRetries(n int) Option {
	return func(g *Gateway) { g.maxRetries = n }
}

// WithSleepFunc replaces the wait between retries.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) { g.sleepFunc = fn }
}

// New creates a Gateway from raw client options, e.g. an endpoint override in tests.
func New(ctx context.Context, clientOpts []option.ClientOption, opts ...Option) (*Gateway, error) {
	svc, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	g := &Gateway{
		svc:        svc,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		logger:     shared.WithLogger(shared.NewLogger(nil), "component", "drive"),
		maxRetries: defaultMaxRetries,
		sleepFunc:  timeSleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// FromTokenSource creates a Gateway that authenticates every request through ts.
func FromTokenSource(ctx context.Context, ts oauth2.TokenSource, opts ...Option) (*Gateway, error) {
	return New(ctx, []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, opts...)
}

// FolderQuery selects every non-trashed folder.
func FolderQuery() string {
	return "mimeType='" + models.MimeFolder + "' and trashed=false"
}

// FileQuery selects allowed documents, optionally limited to children of parentID.
func FileQuery(parentID string) string {
	q := models.AllowedTypes.Query() + " and trashed=false"
	if parentID == "" {
		return q
	}
	return "'" + models.EscapeQuery(parentID) + "' in parents and " + q
}

// ListFolders returns one page of folders.
func (g *Gateway) ListFolders(ctx context.Context, pageToken string) (models.FolderPage, error) {
	var res *drive.FileList
	err := g.withRetry(ctx, "list folders", func() error {
		call := g.svc.Files.List().
			Q(FolderQuery()).
			PageSize(FolderPageSize).
			OrderBy("name").
			Fields(folderFields).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		res, err = call.Do()
		return err
	})
	if err != nil {
		return models.FolderPage{}, err
	}

	page := models.FolderPage{Folders: make([]models.FolderRef, 0, len(res.Files)), NextPageToken: res.NextPageToken}
	for _, f := range res.Files {
		page.Folders = append(page.Folders, models.FolderRef{ID: f.Id, Name: f.Name})
	}
	return page, nil
}

// ListAllFolders follows continuation tokens until every folder is listed.
func (g *Gateway) ListAllFolders(ctx context.Context) ([]models.FolderRef, error) {
	var (
		all   []models.FolderRef
		token string
		seen  = map[string]bool{}
	)
	for {
		page, err := g.ListFolders(ctx, token)
		if err != nil {
			return all, err
		}
		all = append(all, page.Folders...)
		if !page.Truncated() || seen[page.NextPageToken] {
			return all, nil
		}
		seen[page.NextPageToken] = true
		token = page.NextPageToken
	}
}

// ListFiles returns one page of allowed documents. An empty parentID lists across all folders.
func (g *Gateway) ListFiles(ctx context.Context, parentID, pageToken string) (models.FilePage, error) {
	var res *drive.FileList
	err := g.withRetry(ctx, "list files", func() error {
		call := g.svc.Files.List().
			Q(FileQuery(parentID)).
			PageSize(FilePageSize).
			OrderBy("name").
			Fields(fileFields).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		res, err = call.Do()
		return err
	})
	if err != nil {
		return models.FilePage{}, err
	}

	page := models.FilePage{Files: make([]models.FileRef, 0, len(res.Files)), NextPageToken: res.NextPageToken}
	for _, f := range res.Files {
		if !models.AllowedTypes.Allows(f.MimeType) {
			g.logger.Debug("dropping disallowed listing entry", "id", f.Id, "mime", f.MimeType)
			continue
		}
		page.Files = append(page.Files, toFileRef(f))
	}
	return page, nil
}

// ListAllFiles follows continuation tokens until every allowed document under parentID is listed.
func (g *Gateway) ListAllFiles(ctx context.Context, parentID string) ([]models.FileRef, error) {
	var (
		all   []models.FileRef
		token string
		seen  = map[string]bool{}
	)
	for {
		page, err := g.ListFiles(ctx, parentID, token)
		if err != nil {
			return all, err
		}
		all = append(all, page.Files...)
		if !page.Truncated() || seen[page.NextPageToken] {
			return all, nil
		}
		seen[page.NextPageToken] = true
		token = page.NextPageToken
	}
}

// GetMetadata fetches a file's name, type and size.
func (g *Gateway) GetMetadata(ctx context.Context, fileID string) (models.FileRef, error) {
	var f *drive.File
	err := g.withRetry(ctx, "get metadata", func() error {
		var err error
		f, err = g.svc.Files.Get(fileID).
			SupportsAllDrives(true).
			Fields(metadataFields).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return models.FileRef{}, err
	}
	return toFileRef(f), nil
}

// OpenContentStream starts downloading file. Native documents are exported.
// The caller must Close the stream.
func (g *Gateway) OpenContentStream(ctx context.Context, file models.FileRef, onProgress func(float64)) (*ContentStream, error) {
	if file.IsNative() {
		if _, ok := ExportFor(file.MimeType); !ok {
			return nil, fmt.Errorf("drive: open %s: %w: %s cannot be exported", file.ID, shared.ErrNotAllowed, file.MimeType)
		}
	}

	var resp *http.Response
	err := g.withRetry(ctx, "download", func() error {
		var err error
		if f, ok := ExportFor(file.MimeType); ok {
			resp, err = g.svc.Files.Export(file.ID, f.MimeType).Context(ctx).Download()
		} else {
			resp, err = g.svc.Files.Get(file.ID).SupportsAllDrives(true).Context(ctx).Download()
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	total := file.Size
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	g.logger.Debug("opened content stream", "id", file.ID, "name", file.Name, "size", total)
	return NewContentStream(file, resp.Body, total, onProgress), nil
}

func toFileRef(f *drive.File) models.FileRef {
	return models.FileRef{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size}
}
