package product

import (
	"archive/zip"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/robert-malhotra/sarprep/internal/asf"
)

const manifestName = "manifest.safe"

// GranuleLookup fetches ASF metadata for a scene.
type GranuleLookup interface {
	GetGranule(ctx context.Context, sceneName string) (*asf.Feature, error)
}

// Identifier reads Sentinel-1 archives and produces descriptors.
type Identifier struct {
	lookup GranuleLookup
	logger *slog.Logger
}

// NewIdentifier creates an Identifier. A nil lookup disables enrichment.
func NewIdentifier(lookup GranuleLookup) *Identifier {
	return &Identifier{
		lookup: lookup,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the identifier
func (i *Identifier) WithLogger(logger *slog.Logger) *Identifier {
	i.logger = logger
	return i
}

// Identify checks that the archive at p exists and carries a manifest, then
// parses its name. With a lookup attached the footprint and flight
// direction are filled from ASF Search; a failed lookup is logged and
// ignored.
func (i *Identifier) Identify(ctx context.Context, p string) (*Descriptor, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnidentifiedProduct, err)
	}

	desc, err := ParseName(p)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		desc.Format = FormatSAFE
		if err := checkSAFEManifest(p); err != nil {
			return nil, err
		}
	} else {
		desc.Format = FormatZIP
		if err := checkZipManifest(p); err != nil {
			return nil, err
		}
	}

	i.logger.DebugContext(ctx, "product identified",
		slog.String("product", desc.Name),
		slog.String("format", desc.Format),
		slog.String("size", humanize.IBytes(uint64(info.Size()))),
		slog.Int("absolute_orbit", desc.AbsoluteOrbit),
		slog.Int("relative_orbit", desc.RelativeOrbit),
	)

	if i.lookup != nil {
		i.enrich(ctx, desc)
	}

	return desc, nil
}

func (i *Identifier) enrich(ctx context.Context, desc *Descriptor) {
	feature, err := i.lookup.GetGranule(ctx, desc.Name)
	if err != nil {
		i.logger.WarnContext(ctx, "product enrichment failed",
			slog.String("product", desc.Name),
			slog.String("error", err.Error()),
		)
		return
	}
	desc.Footprint = feature.Geometry
	desc.FlightDirection = feature.Properties.FlightDirection
}

func checkSAFEManifest(dir string) error {
	info, err := os.Stat(filepath.Join(dir, manifestName))
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %w in %s", ErrUnidentifiedProduct, ErrMissingManifest, dir)
	}
	return nil
}

func checkZipManifest(file string) error {
	r, err := zip.OpenReader(file)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnidentifiedProduct, file, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if path.Base(f.Name) == manifestName && !f.FileInfo().IsDir() {
			return nil
		}
	}
	return fmt.Errorf("%w: %w in %s", ErrUnidentifiedProduct, ErrMissingManifest, file)
}
