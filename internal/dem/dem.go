// Package dem stages the SRTM elevation tiles the geocoding engine needs for
// an area of interest.
package dem

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/sarprep/internal/download"
	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// TypeSRTM1Sec is the DEM name used by SNAP for 1 arc-second SRTM.
const TypeSRTM1Sec = "SRTM 1Sec HGT"

// tileSuffix is appended to the tile name on the SRTMGL1 mirror.
const tileSuffix = ".SRTMGL1.hgt.zip"

// Fetcher downloads a single file.
type Fetcher interface {
	Get(ctx context.Context, req download.Request) (int64, error)
}

// Tile is a staged DEM tile.
type Tile struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Cached bool   `json:"cached"`
}

// Result summarises an autoload.
type Result struct {
	DEMType string    `json:"dem_type"`
	BBox    []float64 `json:"bbox"`
	Tiles   []Tile    `json:"tiles"`
	// Missing lists tiles the mirror does not have (sea tiles).
	Missing []string `json:"missing,omitempty"`
}

// Loader downloads DEM tiles into a cache directory.
type Loader struct {
	cacheDir    string
	baseURL     string
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
}

// NewLoader creates a Loader. concurrency below 1 is treated as 1.
func NewLoader(cacheDir, baseURL string, fetcher Fetcher, concurrency int) *Loader {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Loader{
		cacheDir:    cacheDir,
		baseURL:     strings.TrimRight(baseURL, "/"),
		fetcher:     fetcher,
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// WithLogger sets a custom logger for the loader
func (l *Loader) WithLogger(logger *slog.Logger) *Loader {
	l.logger = logger
	return l
}

// Autoload makes sure every tile under the union of geometries, grown by
// buffer degrees, is present in the cache.
func (l *Loader) Autoload(ctx context.Context, geometries []*geojson.Geometry, demType string, buffer float64) (Result, error) {
	if demType != TypeSRTM1Sec {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedDEM, demType)
	}

	union, err := geojson.UnionBBox(geometries...)
	if err != nil {
		return Result{}, fmt.Errorf("failed to compute DEM extent: %w", err)
	}
	bbox, err := geojson.BufferBBox(union, buffer)
	if err != nil {
		return Result{}, fmt.Errorf("failed to buffer DEM extent: %w", err)
	}

	if err := os.MkdirAll(l.cacheDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("failed to create DEM cache %s: %w", l.cacheDir, err)
	}

	names := Tiles(bbox)
	res := Result{DEMType: demType, BBox: bbox}

	var (
		mu    sync.Mutex
		total int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for _, name := range names {
		g.Go(func() error {
			tile, size, err := l.stage(gctx, name)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, download.ErrNotFound):
				res.Missing = append(res.Missing, name)
				return nil
			case err != nil:
				return err
			}
			res.Tiles = append(res.Tiles, tile)
			total += size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	sort.Slice(res.Tiles, func(i, j int) bool { return res.Tiles[i].Name < res.Tiles[j].Name })
	sort.Strings(res.Missing)

	if len(res.Tiles) == 0 {
		return res, fmt.Errorf("%w: bbox %v", ErrNoDEMTiles, bbox)
	}

	l.logger.InfoContext(ctx, "DEM tiles ready",
		slog.String("dem", demType),
		slog.Int("tiles", len(res.Tiles)),
		slog.Int("missing", len(res.Missing)),
		slog.String("downloaded", humanize.IBytes(uint64(total))),
	)
	return res, nil
}

func (l *Loader) stage(ctx context.Context, name string) (Tile, int64, error) {
	dest := filepath.Join(l.cacheDir, name+tileSuffix)
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return Tile{Name: name, Path: dest, Cached: true}, 0, nil
	}
	if l.fetcher == nil || l.baseURL == "" {
		return Tile{}, 0, fmt.Errorf("DEM tile %s not cached and no mirror configured", name)
	}

	n, err := l.fetcher.Get(ctx, download.Request{URL: l.baseURL + "/" + name + tileSuffix, Dest: dest})
	if err != nil {
		if errors.Is(err, download.ErrNotFound) {
			l.logger.DebugContext(ctx, "no DEM tile on mirror", slog.String("tile", name))
			return Tile{}, 0, err
		}
		return Tile{}, 0, fmt.Errorf("failed to download DEM tile %s: %w", name, err)
	}
	return Tile{Name: name, Path: dest}, n, nil
}

// Tiles returns the names of the 1x1 degree tiles intersecting bbox, named
// after their south-west corner (N51W003 covers 51..52N, 3..2W).
func Tiles(bbox []float64) []string {
	if len(bbox) != 4 {
		return nil
	}
	west, south := int(math.Floor(bbox[0])), int(math.Floor(bbox[1]))
	east, north := lastIndex(bbox[2], west), lastIndex(bbox[3], south)

	var names []string
	for lat := south; lat <= north; lat++ {
		if lat < -90 || lat >= 90 {
			continue
		}
		for lon := west; lon <= east; lon++ {
			if lon < -180 || lon >= 180 {
				continue
			}
			names = append(names, TileName(lat, lon))
		}
	}
	return names
}

// lastIndex returns the floor of an upper bound, excluding a tile that the
// bound only touches on its edge.
func lastIndex(upper float64, lower int) int {
	i := int(math.Ceil(upper)) - 1
	if i < lower {
		return lower
	}
	return i
}

// TileName formats the tile whose south-west corner is (lat, lon).
func TileName(lat, lon int) string {
	ns, ew := 'N', 'E'
	if lat < 0 {
		ns, lat = 'S', -lat
	}
	if lon < 0 {
		ew, lon = 'W', -lon
	}
	return fmt.Sprintf("%c%02d%c%03d", ns, lat, ew, lon)
}
