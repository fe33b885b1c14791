package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/docrelay/internal/models"
	"github.com/desertthunder/docrelay/internal/shared"
)

const (
	partialSuffix = ".partial"
	maxNameBytes  = 200
)

// downloadOne fetches a single file. Failures are recorded in the result and
// also returned so the caller can spot authorization errors.
func (o *Orchestrator) downloadOne(ctx context.Context, fileID string, step, total int, progress chan<- ProgressUpdate) (models.DownloadResult, error) {
	result := models.DownloadResult{FileID: fileID}

	fail := func(err error) (models.DownloadResult, error) {
		result.Outcome = models.OutcomeFailure
		result.Reason = shared.Reason(err)
		result.Message = err.Error()
		o.logger.Warn("download failed", "file", fileID, "reason", result.Reason, "error", err)
		o.sendProgress(progress, fileFailedUpdate(step, total, result))
		return result, err
	}

	o.sendProgress(progress, fetchMetadataUpdate(step, total, fileID))

	meta, err := o.gateway.GetMetadata(ctx, fileID)
	if err != nil {
		return fail(err)
	}
	result.Name = meta.Name

	if !models.AllowedTypes.Allows(meta.MimeType) {
		return fail(fmt.Errorf("%s has type %s: %w", meta.Name, meta.MimeType, shared.ErrNotAllowed))
	}

	stream, err := o.gateway.OpenContentStream(ctx, meta, func(f float64) {
		o.sendProgress(progress, fileProgressUpdate(step, total, meta.Name, f))
	})
	if err != nil {
		return fail(err)
	}
	defer stream.Close()
	result.Name = stream.Name

	dir := filepath.Join(o.root, SanitizeName(fileID, "file"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail(fmt.Errorf("%w: creating %s: %v", shared.ErrLocalIO, dir, err))
	}

	path := filepath.Join(dir, SanitizeName(stream.Name, fileID))
	n, err := writeFile(path, stream)
	if err != nil {
		if !errors.Is(err, shared.ErrLocalIO) && ctx.Err() == nil {
			err = fmt.Errorf("%w: reading %s: %v", shared.ErrRemoteError, fileID, err)
		}
		return fail(err)
	}

	result.LocalPath = path
	result.Bytes = n
	result.Outcome = models.OutcomeSuccess

	o.logger.Info("downloaded", "file", fileID, "name", result.Name, "bytes", n)
	o.sendProgress(progress, fileCompleteUpdate(step, total, result))
	return result, nil
}

// localWriter tags write failures so they are not mistaken for stream failures.
type localWriter struct{ f *os.File }

func (w localWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, fmt.Errorf("%w: %v", shared.ErrLocalIO, err)
	}
	return n, nil
}

// writeFile copies r into path via path.partial and renames it into place,
// replacing any earlier copy. The partial file is removed on failure.
func writeFile(path string, r io.Reader) (int64, error) {
	tmp := path + partialSuffix

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("%w: creating %s: %v", shared.ErrLocalIO, tmp, err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp)
		}
	}()

	n, err := io.Copy(localWriter{f}, r)
	if err != nil {
		f.Close()
		return n, err
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("%w: closing %s: %v", shared.ErrLocalIO, tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return n, fmt.Errorf("%w: renaming %s: %v", shared.ErrLocalIO, tmp, err)
	}

	committed = true
	return n, nil
}

// SanitizeName makes a remote display name safe as a single path element.
// Separators and control characters become underscores; empty and dot names
// fall back to fallback. Long names are shortened, keeping the extension.
func SanitizeName(name, fallback string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r == ':':
			return '_'
		case r < 0x20 || r == 0x7f:
			return '_'
		default:
			return r
		}
	}, name)
	name = strings.TrimSpace(name)

	if name == "" || strings.Trim(name, ".") == "" {
		return fallback
	}

	if len(name) > maxNameBytes {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		base := name[:maxNameBytes-len(ext)]
		for len(base) > 0 && !utf8.ValidString(base) {
			base = base[:len(base)-1]
		}
		name = base + ext
	}
	return name
}

// dedupe trims ids and drops blanks and repeats, keeping first-seen order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
