// Package archive turns run inputs (local paths, URLs, s3:// URIs and bare
// scene names) into local Sentinel-1 archive paths.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robert-malhotra/sarprep/internal/asf"
	"github.com/robert-malhotra/sarprep/internal/download"
	"github.com/robert-malhotra/sarprep/internal/product"
)

// ErrNotFound is returned when an input cannot be resolved to an archive.
var ErrNotFound = errors.New("archive not found")

// GranuleLookup resolves a scene name to its ASF record.
type GranuleLookup interface {
	GetGranule(ctx context.Context, sceneName string) (*asf.Feature, error)
}

// Fetcher downloads a URL to a local path.
type Fetcher interface {
	Get(ctx context.Context, req download.Request) (int64, error)
}

// Stager resolves inputs into local archive paths under a staging directory.
type Stager struct {
	dir    string
	http   Fetcher
	s3     *S3Source
	lookup GranuleLookup
	logger *slog.Logger
}

// NewStager creates a Stager that downloads into dir. s3 and lookup may be
// nil, which disables s3:// inputs and bare scene names respectively.
func NewStager(dir string, http Fetcher, s3 *S3Source, lookup GranuleLookup) *Stager {
	return &Stager{
		dir:    dir,
		http:   http,
		s3:     s3,
		lookup: lookup,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the stager
func (s *Stager) WithLogger(logger *slog.Logger) *Stager {
	s.logger = logger
	return s
}

// Stage returns a local path for input. Existing local paths are returned
// as-is; remote inputs are downloaded once and reused afterwards.
func (s *Stager) Stage(ctx context.Context, input string) (string, error) {
	switch {
	case strings.HasPrefix(input, "s3://"):
		return s.stageS3(ctx, input)
	case strings.HasPrefix(input, "https://"), strings.HasPrefix(input, "http://"):
		return s.stageURL(ctx, input, "")
	}

	if _, err := os.Stat(input); err == nil {
		return input, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", input, err)
	}

	if isSceneName(input) {
		return s.stageScene(ctx, input)
	}

	return "", fmt.Errorf("%w: %s", ErrNotFound, input)
}

func (s *Stager) stageURL(ctx context.Context, rawURL, md5 string) (string, error) {
	if s.http == nil {
		return "", fmt.Errorf("HTTP staging is not configured for %s", rawURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid archive URL %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", fmt.Errorf("cannot determine file name from %q", rawURL)
	}

	dest := filepath.Join(s.dir, name)
	if staged(dest) {
		s.logger.DebugContext(ctx, "reusing staged archive", slog.String("path", dest))
		return dest, nil
	}

	s.logger.InfoContext(ctx, "downloading archive",
		slog.String("url", rawURL),
		slog.String("dest", dest),
	)
	if _, err := s.http.Get(ctx, download.Request{URL: rawURL, Dest: dest, MD5: md5}); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	return dest, nil
}

func (s *Stager) stageS3(ctx context.Context, uri string) (string, error) {
	if s.s3 == nil {
		return "", fmt.Errorf("S3 staging is not configured for %s", uri)
	}
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(s.dir, path.Base(key))
	if staged(dest) {
		s.logger.DebugContext(ctx, "reusing staged archive", slog.String("path", dest))
		return dest, nil
	}

	s.logger.InfoContext(ctx, "downloading archive from S3",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.String("dest", dest),
	)
	if _, err := s.s3.Download(ctx, bucket, key, dest); err != nil {
		return "", fmt.Errorf("failed to download %s: %w", uri, err)
	}
	return dest, nil
}

func (s *Stager) stageScene(ctx context.Context, scene string) (string, error) {
	dest := filepath.Join(s.dir, scene+".zip")
	if staged(dest) {
		s.logger.DebugContext(ctx, "reusing staged archive", slog.String("path", dest))
		return dest, nil
	}
	if s.lookup == nil {
		return "", fmt.Errorf("%w: %s (scene lookup is not configured)", ErrNotFound, scene)
	}

	feature, err := s.lookup.GetGranule(ctx, scene)
	if err != nil {
		return "", fmt.Errorf("failed to resolve scene %s: %w", scene, err)
	}
	if feature.Properties.URL == "" {
		return "", fmt.Errorf("%w: ASF record for %s has no download URL", ErrNotFound, scene)
	}
	return s.stageURL(ctx, feature.Properties.URL, feature.Properties.MD5Sum)
}

// staged reports whether a complete file already exists at p.
func staged(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir() && info.Size() > 0
}

// isSceneName reports whether s is a bare Sentinel-1 product name.
func isSceneName(s string) bool {
	if strings.ContainsAny(s, `/\.`) {
		return false
	}
	_, err := product.ParseName(s)
	return err == nil
}

// Expand replaces every directory in inputs with the Sentinel-1 archives it
// contains (*.zip files and *.SAFE directories), in lexical order. Other
// inputs are passed through unchanged.
func Expand(inputs []string) ([]string, error) {
	var out []string
	for _, in := range inputs {
		info, err := os.Stat(in)
		if err != nil || !info.IsDir() || strings.HasSuffix(in, ".SAFE") || strings.HasSuffix(in, ".SAFE/") {
			out = append(out, in)
			continue
		}

		entries, err := os.ReadDir(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read archive directory %q: %w", in, err)
		}
		var found []string
		for _, e := range entries {
			name := e.Name()
			switch {
			case !e.IsDir() && strings.HasSuffix(name, ".zip"):
				found = append(found, filepath.Join(in, name))
			case e.IsDir() && strings.HasSuffix(name, ".SAFE"):
				found = append(found, filepath.Join(in, name))
			}
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}
