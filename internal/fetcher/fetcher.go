// Package fetcher brings remote input layers (ftp://, http:// and https://
// locations, zip archives) onto the local filesystem and provides the row
// readers used by tabular sources.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads a remote file.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Options configures Fetch.
type Options struct {
	Timeout time.Duration
	// TempDir is where downloads and extracted archives go. Defaults to the OS temp dir.
	TempDir string
	// MaxRetries applies to HTTP downloads.
	MaxRetries int
	UserAgent  string
}

// Shapefile sidecars. The .shx and .dbf files must exist; the others are
// fetched when present.
var (
	requiredSidecars = []string{".shx", ".dbf"}
	optionalSidecars = []string{".cpg", ".prj"}
)

// layerExts are the file types an archive may hold.
var layerExts = []string{".shp", ".geojson", ".json", ".csv", ".xlsx"}

// Local is a fetched input on the local filesystem.
type Local struct {
	// Path is the file to open.
	Path string
	dir  string
}

// Cleanup removes everything Fetch wrote. It is a no-op for inputs that
// were already local.
func (l *Local) Cleanup() {
	if l.dir == "" {
		return
	}
	if err := os.RemoveAll(l.dir); err != nil {
		zap.L().Warn("fetcher: cleanup failed", zap.String("dir", l.dir), zap.Error(err))
	}
}

// IsRemote reports whether location needs downloading first.
func IsRemote(location string) bool {
	lower := strings.ToLower(location)
	return strings.HasPrefix(lower, "ftp://") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://")
}

// ForURL returns the fetcher for the scheme of rawURL.
func ForURL(rawURL string, opts Options) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch strings.ToLower(u.Scheme) {
	case "ftp":
		return NewFTPFetcher(FTPOptions{Timeout: opts.Timeout}), nil
	case "http", "https":
		return NewHTTPFetcher(HTTPOptions{
			Timeout:    opts.Timeout,
			MaxRetries: opts.MaxRetries,
			UserAgent:  opts.UserAgent,
		}), nil
	}
	return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
}

// Fetch makes location available locally. Remote files are downloaded into
// a fresh temporary directory, together with the sidecars of a shapefile.
// Zip archives, local or remote, are extracted and the single layer file
// inside is returned. The caller must call Cleanup when done.
func Fetch(ctx context.Context, location string, opts Options) (*Local, error) {
	local := &Local{Path: location}
	if !IsRemote(location) && !isZIP(location) {
		return local, nil
	}

	dir, err := os.MkdirTemp(opts.TempDir, "geojoin-")
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: create temp dir")
	}
	local.dir = dir

	if IsRemote(location) {
		p, err := fetchRemote(ctx, location, dir, opts)
		if err != nil {
			local.Cleanup()
			return nil, err
		}
		local.Path = p
	}

	if isZIP(local.Path) {
		p, err := extractLayer(local.Path, filepath.Join(dir, "archive"))
		if err != nil {
			local.Cleanup()
			return nil, err
		}
		local.Path = p
	}
	return local, nil
}

func isZIP(p string) bool {
	return strings.EqualFold(path.Ext(strings.SplitN(p, "?", 2)[0]), ".zip")
}

func fetchRemote(ctx context.Context, rawURL, dir string, opts Options) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: parse url")
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		return "", eris.Errorf("fetcher: no file name in %q", rawURL)
	}

	f, err := ForURL(rawURL, opts)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(dir, name)
	n, err := f.DownloadToFile(ctx, rawURL, dest)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: download %s", name)
	}
	zap.L().Debug("fetcher: downloaded", zap.String("url", u.Redacted()), zap.Int64("bytes", n))

	ext := path.Ext(u.Path)
	if !strings.EqualFold(ext, ".shp") {
		return dest, nil
	}

	base := strings.TrimSuffix(name, ext)
	for _, side := range append(append([]string{}, requiredSidecars...), optionalSidecars...) {
		su := *u
		su.Path = strings.TrimSuffix(u.Path, ext) + side
		if _, err := f.DownloadToFile(ctx, su.String(), filepath.Join(dir, base+side)); err != nil {
			if slices.Contains(optionalSidecars, side) {
				_ = os.Remove(filepath.Join(dir, base+side))
				zap.L().Debug("fetcher: optional sidecar missing", zap.String("file", base+side))
				continue
			}
			return "", eris.Wrapf(err, "fetcher: download %s", base+side)
		}
	}
	return dest, nil
}

func extractLayer(zipPath, destDir string) (string, error) {
	files, err := ExtractZIP(zipPath, destDir)
	if err != nil {
		return "", err
	}
	var layers []string
	for _, f := range files {
		if slices.Contains(layerExts, strings.ToLower(filepath.Ext(f))) {
			layers = append(layers, f)
		}
	}
	if len(layers) != 1 {
		return "", eris.Errorf("fetcher: archive %s holds %d layer files, want exactly 1", filepath.Base(zipPath), len(layers))
	}
	return layers[0], nil
}
