// Package server assembles the sarprep pipeline, its run ledger and the
// HTTP API from a configuration.
package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/sarprep/internal/api"
	"github.com/robert-malhotra/sarprep/internal/archive"
	"github.com/robert-malhotra/sarprep/internal/asf"
	"github.com/robert-malhotra/sarprep/internal/config"
	"github.com/robert-malhotra/sarprep/internal/dem"
	"github.com/robert-malhotra/sarprep/internal/download"
	"github.com/robert-malhotra/sarprep/internal/geocode"
	"github.com/robert-malhotra/sarprep/internal/location"
	"github.com/robert-malhotra/sarprep/internal/orbit"
	"github.com/robert-malhotra/sarprep/internal/pipeline"
	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/internal/product"
	"github.com/robert-malhotra/sarprep/internal/runs"
	"github.com/robert-malhotra/sarprep/internal/shapefile"
	"github.com/robert-malhotra/sarprep/internal/stac"
)

// Version is the sarprep release, reported by the CLI and written into run
// items.
const Version = "0.1.0"

// storeCleanupInterval is how often the in-memory ledger drops expired runs.
const storeCleanupInterval = 5 * time.Minute

// Server holds the wired components. Construct it with New.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	locations *location.Registry
	catalog   *asf.Client
	identify  *product.Identifier
	stager    *archive.Stager
	orch      *pipeline.Orchestrator
	store     runs.Store
	runner    *runs.Runner
	router    chi.Router
}

// New wires every component from cfg. Close must be called to release the
// run ledger.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	paths := cfg.Paths

	locations, err := location.LoadRegistry(paths.Resolve(paths.LocationsDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load locations: %w", err)
	}
	logger.Info("loaded locations", slog.Int("count", locations.Count()))

	asfClient := asf.NewClient(cfg.ASF.BaseURL, cfg.ASF.Timeout).
		WithToken(cfg.ASF.Token).
		WithLogger(logger)

	var lookup product.GranuleLookup
	if cfg.ASF.Enrich {
		lookup = asfClient
	}
	identify := product.NewIdentifier(lookup).WithLogger(logger)

	orbits := orbit.NewFetcher(
		paths.Resolve(paths.OrbitCacheDir),
		cfg.Orbit.Type,
		cfg.Orbit.BaseURL,
		download.NewClient(cfg.Orbit.Timeout).WithLogger(logger),
	).WithLogger(logger)

	demLoader := dem.NewLoader(
		paths.Resolve(paths.DEMCacheDir),
		cfg.DEM.BaseURL,
		download.NewClient(cfg.DEM.Timeout).WithLogger(logger),
		cfg.DEM.Concurrency,
	).WithLogger(logger)

	snap := geocode.NewSNAP(cfg.Geocode.GPTPath, cfg.Geocode.Timeout).WithLogger(logger)

	opts := pipeline.DefaultOptions()
	opts.DEMType = cfg.DEM.Type
	opts.DEMBuffer = cfg.DEM.Buffer
	opts.Params.DEMName = cfg.DEM.Type
	opts.Params.PixelSpacing = cfg.Geocode.PixelSpacing
	opts.Params.OrbitType = cfg.Orbit.Type

	orch := pipeline.NewOrchestrator(pipeline.Components{
		Locations:  locations,
		Identifier: identify,
		Orbits:     orbits,
		DEM:        demLoader,
		Shapefiles: pipeline.ShapefileWriterFunc(shapefile.Write),
		Geocoder:   snap,
		Items:      stac.Writer{Software: Version},
	}, opts).WithLogger(logger)

	var s3 *archive.S3Source
	if cfg.S3.AccessKeyID != "" {
		s3 = archive.NewS3Source(cfg.S3.Region, archive.S3Credentials{
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			SessionToken:    cfg.S3.SessionToken,
		}).WithLogger(logger)
	}
	stager := archive.NewStager(
		paths.Resolve(paths.StagingDir),
		download.NewClient(0).WithToken(cfg.ASF.Token).WithLogger(logger),
		s3,
		asfClient,
	).WithLogger(logger)

	store, err := openStore(cfg.Runs, paths)
	if err != nil {
		return nil, err
	}
	runner := runs.NewRunner(orch, store).WithLogger(logger)

	handlers := api.NewHandlers(locations, runner, api.RunDefaults{
		OutputDir:     paths.Resolve(paths.OutputDir),
		ShapefileDir:  paths.Resolve(paths.ShapefileDir),
		Polarizations: []polarization.Channel{pipeline.DefaultPolarization},
	}, logger).WithStager(stager)

	return &Server{
		cfg:       cfg,
		logger:    logger,
		locations: locations,
		catalog:   asfClient,
		identify:  identify,
		stager:    stager,
		orch:      orch,
		store:     store,
		runner:    runner,
		router:    api.NewRouter(handlers, logger),
	}, nil
}

func openStore(cfg config.RunsConfig, paths config.PathsConfig) (runs.Store, error) {
	if cfg.DBPath == "" {
		return runs.NewMemoryStore(cfg.TTL, storeCleanupInterval), nil
	}
	store, err := runs.NewSQLiteStore(paths.Resolve(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger: %w", err)
	}
	return store, nil
}

// Router returns the HTTP API for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Runner returns the run executor shared by the CLI and the API.
func (s *Server) Runner() *runs.Runner {
	return s.runner
}

// Locations returns the location registry.
func (s *Server) Locations() *location.Registry {
	return s.locations
}

// Catalog returns the ASF Search client.
func (s *Server) Catalog() *asf.Client {
	return s.catalog
}

// Stager returns the archive stager.
func (s *Server) Stager() *archive.Stager {
	return s.stager
}

// Identifier returns the product identifier.
func (s *Server) Identifier() *product.Identifier {
	return s.identify
}

// Request builds a run request for archive using the configured directories.
func (s *Server) Request(archivePath, locationName string, channels []polarization.Channel) pipeline.Request {
	return pipeline.Request{
		Archive:       archivePath,
		Location:      locationName,
		Polarizations: channels,
		OutputDir:     s.cfg.Paths.Resolve(s.cfg.Paths.OutputDir),
		ShapefileDir:  s.cfg.Paths.Resolve(s.cfg.Paths.ShapefileDir),
	}
}

// Close releases the run ledger.
func (s *Server) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
