package printer

import (
	"context"
	"io"
	"strings"

	"github.com/c360/moonraker"
)

// cacheFolder is the connector-private folder for files uploaded on behalf
// of jobs started from non-printer storage.
const cacheFolder = ".upload-cache"

// Files returns a snapshot of the cached file tree for the gcodes root.
func (p *Printer) Files() moonraker.Tree {
	return p.client.Tree(moonraker.RootGcodes)
}

// RefreshFiles rebuilds the gcodes file tree.
func (p *Printer) RefreshFiles(ctx context.Context) error {
	return p.client.RefreshTree(ctx, moonraker.RootGcodes)
}

// DeleteFile removes a file from the gcodes root.
func (p *Printer) DeleteFile(ctx context.Context, path string) error {
	return p.client.DeleteFile(ctx, path, moonraker.RootGcodes)
}

// CreateFolder creates a folder in the gcodes root.
func (p *Printer) CreateFolder(ctx context.Context, path string) error {
	return p.client.CreateFolder(ctx, path, moonraker.RootGcodes)
}

// DeleteFolder removes a folder from the gcodes root, recursively when
// recursive is set.
func (p *Printer) DeleteFolder(ctx context.Context, path string, recursive bool) error {
	return p.client.DeleteFolder(ctx, path, moonraker.RootGcodes, recursive)
}

// MovePath moves a file or folder within the gcodes root.
func (p *Printer) MovePath(ctx context.Context, source, target string) error {
	return p.client.MovePath(ctx, source, target, moonraker.RootGcodes, moonraker.RootGcodes)
}

// CopyPath copies a file or folder within the gcodes root.
func (p *Printer) CopyPath(ctx context.Context, source, target string) error {
	return p.client.CopyPath(ctx, source, target, moonraker.RootGcodes, moonraker.RootGcodes)
}

// UploadFile streams a file into the gcodes root.
func (p *Printer) UploadFile(ctx context.Context, source io.Reader, path string) error {
	return <-p.client.UploadFile(ctx, source, path, moonraker.RootGcodes)
}

// DownloadFile streams a file from the gcodes root. The caller must close
// the returned reader.
func (p *Printer) DownloadFile(ctx context.Context, path string) (io.ReadCloser, error) {
	return p.client.DownloadFile(ctx, path, moonraker.RootGcodes)
}

// Thumbnail streams a thumbnail image rendered by the slicer. The path is
// the thumbnail path from the file metadata, relative to the gcodes root.
func (p *Printer) Thumbnail(ctx context.Context, path string) (io.ReadCloser, error) {
	return p.client.DownloadFile(ctx, path, moonraker.RootGcodes)
}

// UploadToCache uploads a job file into the connector-private cache folder,
// deleting the previous cache file of the same job first. Returns the
// printer-side path to start the job from.
func (p *Printer) UploadToCache(ctx context.Context, source io.Reader, name string) (string, error) {
	name = strings.TrimPrefix(name, "/")

	p.mu.Lock()
	stale := p.cachedJobs[name]
	p.mu.Unlock()

	if stale != "" {
		if err := p.client.DeleteFile(ctx, stale, moonraker.RootGcodes); err != nil {
			// the print may have consumed or removed it already
			p.logger.Debug("could not delete stale cache file", "path", stale, "error", err)
		}
	}

	path := cacheFolder + "/" + name
	if err := <-p.client.UploadFile(ctx, source, path, moonraker.RootGcodes); err != nil {
		return "", err
	}

	p.mu.Lock()
	p.cachedJobs[name] = path
	p.mu.Unlock()

	return path, nil
}
