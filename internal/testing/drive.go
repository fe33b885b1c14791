package testing

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing/iotest"

	"github.com/desertthunder/docrelay/internal/drive"
	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
)

// FakeGateway is an in-memory stand-in for [drive.Gateway].
type FakeGateway struct {
	mu       sync.Mutex
	folders  []models.FolderRef
	files    map[string]models.FileRef
	content  map[string]string
	children map[string][]string

	// MetadataErrors, OpenErrors and ReadErrors inject failures per file id;
	// ListErrors per folder id.
	MetadataErrors map[string]error
	OpenErrors     map[string]error
	ReadErrors     map[string]error
	ListErrors     map[string]error

	MetadataCalls map[string]int
	OpenCalls     map[string]int
	ListCalls     map[string]int
}

// NewFakeGateway creates an empty FakeGateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		files:          map[string]models.FileRef{},
		content:        map[string]string{},
		children:       map[string][]string{},
		MetadataErrors: map[string]error{},
		OpenErrors:     map[string]error{},
		ReadErrors:     map[string]error{},
		ListErrors:     map[string]error{},
		MetadataCalls:  map[string]int{},
		OpenCalls:      map[string]int{},
		ListCalls:      map[string]int{},
	}
}

// AddFolder registers a folder.
func (g *FakeGateway) AddFolder(id, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.folders = append(g.folders, models.FolderRef{ID: id, Name: name})
}

// AddFile registers file under parentID with content. Size is filled in when zero.
func (g *FakeGateway) AddFile(parentID string, file models.FileRef, content string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if file.Size == 0 && !file.IsNative() {
		file.Size = int64(len(content))
	}
	if _, ok := g.files[file.ID]; !ok {
		g.files[file.ID] = file
		g.content[file.ID] = content
	}
	g.children[parentID] = append(g.children[parentID], file.ID)
}

func (g *FakeGateway) ListFolders(_ context.Context, _ string) (models.FolderPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return models.FolderPage{Folders: append([]models.FolderRef(nil), g.folders...)}, nil
}

func (g *FakeGateway) ListAllFolders(ctx context.Context) ([]models.FolderRef, error) {
	page, err := g.ListFolders(ctx, "")
	return page.Folders, err
}

func (g *FakeGateway) ListFiles(_ context.Context, parentID, _ string) (models.FilePage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ListCalls[parentID]++

	if err := g.ListErrors[parentID]; err != nil {
		return models.FilePage{}, err
	}

	var ids []string
	if parentID == "" {
		for id := range g.files {
			ids = append(ids, id)
		}
	} else {
		ids = g.children[parentID]
	}

	page := models.FilePage{Files: []models.FileRef{}}
	for _, id := range ids {
		if f := g.files[id]; models.AllowedTypes.Allows(f.MimeType) {
			page.Files = append(page.Files, f)
		}
	}
	return page, nil
}

func (g *FakeGateway) ListAllFiles(ctx context.Context, parentID string) ([]models.FileRef, error) {
	page, err := g.ListFiles(ctx, parentID, "")
	return page.Files, err
}

func (g *FakeGateway) GetMetadata(_ context.Context, fileID string) (models.FileRef, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.MetadataCalls[fileID]++

	if err := g.MetadataErrors[fileID]; err != nil {
		return models.FileRef{}, err
	}
	f, ok := g.files[fileID]
	if !ok {
		return models.FileRef{}, fmt.Errorf("fake: get %s: %w", fileID, shared.ErrNotFound)
	}
	return f, nil
}

func (g *FakeGateway) OpenContentStream(_ context.Context, file models.FileRef, onProgress func(float64)) (*drive.ContentStream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.OpenCalls[file.ID]++

	if err := g.OpenErrors[file.ID]; err != nil {
		return nil, err
	}
	content, ok := g.content[file.ID]
	if !ok {
		return nil, fmt.Errorf("fake: open %s: %w", file.ID, shared.ErrNotFound)
	}

	var r io.Reader = strings.NewReader(content)
	if err := g.ReadErrors[file.ID]; err != nil {
		r = io.MultiReader(strings.NewReader(content[:len(content)/2]), iotest.ErrReader(err))
	}
	return drive.NewContentStream(file, io.NopCloser(r), int64(len(content)), onProgress), nil
}
