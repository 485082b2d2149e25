package orbit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/robert-malhotra/sarprep/internal/download"
	"github.com/robert-malhotra/sarprep/internal/product"
)

// maxIndexSize bounds the remote directory listing read into memory.
const maxIndexSize = 64 << 20

var hrefRE = regexp.MustCompile(`href="([^"]*\.EOF)"`)

// Result is the outcome of an orbit lookup. A failed lookup is carried in
// Err rather than returned, so callers can continue without an orbit.
type Result struct {
	File *File
	Err  error
}

// OK reports whether an orbit file was found.
func (r Result) OK() bool {
	return r.Err == nil && r.File != nil
}

// Remote lists and downloads orbit files.
type Remote interface {
	Fetch(ctx context.Context, url string, limit int64) ([]byte, error)
	Get(ctx context.Context, req download.Request) (int64, error)
}

// Fetcher finds orbit files in a local cache laid out as
// <cacheDir>/<POEORB|RESORB>/<mission>/<YYYY>/<MM>/ and falls back to a
// remote archive whose index is an HTML listing.
type Fetcher struct {
	cacheDir  string
	orbitType string
	baseURL   string
	remote    Remote
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher. A nil remote restricts lookups to the cache.
func NewFetcher(cacheDir, orbitType, baseURL string, remote Remote) *Fetcher {
	return &Fetcher{
		cacheDir:  cacheDir,
		orbitType: orbitType,
		baseURL:   strings.TrimRight(baseURL, "/"),
		remote:    remote,
		logger:    slog.Default(),
	}
}

// WithLogger sets a custom logger for the fetcher
func (f *Fetcher) WithLogger(logger *slog.Logger) *Fetcher {
	f.logger = logger
	return f
}

// Fetch returns the best orbit file for d, downloading it into the cache
// when necessary.
func (f *Fetcher) Fetch(ctx context.Context, d *product.Descriptor) Result {
	file, err := f.fetch(ctx, d)
	if err != nil {
		f.logger.DebugContext(ctx, "orbit file lookup failed",
			slog.String("product", d.Name),
			slog.String("orbit_type", f.orbitType),
			slog.String("error", err.Error()),
		)
		return Result{Err: err}
	}
	return Result{File: file}
}

func (f *Fetcher) fetch(ctx context.Context, d *product.Descriptor) (*File, error) {
	fam, err := family(f.orbitType)
	if err != nil {
		return nil, err
	}

	if file := f.fromCache(fam, d); file != nil {
		f.logger.DebugContext(ctx, "orbit file found in cache",
			slog.String("file", file.Name),
		)
		return file, nil
	}

	if f.remote == nil || f.baseURL == "" {
		return nil, fmt.Errorf("%w in cache for %s", ErrNoMatchingOrbit, d.Name)
	}

	indexURL := f.baseURL + "/aux_" + strings.ToLower(fam) + "/"
	body, err := f.remote.Fetch(ctx, indexURL, maxIndexSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", indexURL, err)
	}

	best := Best(parseIndex(body), fam, d)
	if best == nil {
		return nil, fmt.Errorf("%w for %s at %s", ErrNoMatchingOrbit, d.Name, indexURL)
	}

	dest := filepath.Join(f.monthDir(fam, d.Mission, d.Start), best.Name)
	if _, err := f.remote.Get(ctx, download.Request{URL: indexURL + best.Name, Dest: dest}); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", best.Name, err)
	}
	best.Path = dest

	f.logger.DebugContext(ctx, "orbit file downloaded",
		slog.String("file", best.Name),
		slog.String("path", dest),
	)
	return best, nil
}

// fromCache scans the month directories that may hold a file covering d.
// Precise orbits start the day before the acquisition, so the previous
// day's month is scanned too.
func (f *Fetcher) fromCache(fam string, d *product.Descriptor) *File {
	dirs := []string{f.monthDir(fam, d.Mission, d.Start)}
	if prev := f.monthDir(fam, d.Mission, d.Start.AddDate(0, 0, -1)); prev != dirs[0] {
		dirs = append(dirs, prev)
	}

	var files []*File
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			file, err := ParseName(e.Name())
			if err != nil {
				continue
			}
			file.Path = filepath.Join(dir, e.Name())
			files = append(files, file)
		}
	}
	return Best(files, fam, d)
}

func (f *Fetcher) monthDir(fam, mission string, t time.Time) string {
	return filepath.Join(f.cacheDir, fam, mission, t.Format("2006"), t.Format("01"))
}

// parseIndex extracts orbit files from an HTML directory listing.
func parseIndex(body []byte) []*File {
	var files []*File
	seen := make(map[string]bool)
	for _, m := range hrefRE.FindAllSubmatch(body, -1) {
		name := filepath.Base(string(m[1]))
		if seen[name] {
			continue
		}
		seen[name] = true
		if file, err := ParseName(name); err == nil {
			files = append(files, file)
		}
	}
	return files
}
