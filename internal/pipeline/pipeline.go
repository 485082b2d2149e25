// Package pipeline runs the pre-processing of one Sentinel-1 product for a
// terminal location: location lookup, product identification, orbit lookup,
// DEM preparation, polarization classification and geocoding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robert-malhotra/sarprep/internal/dem"
	"github.com/robert-malhotra/sarprep/internal/geocode"
	"github.com/robert-malhotra/sarprep/internal/location"
	"github.com/robert-malhotra/sarprep/internal/orbit"
	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/internal/product"
	"github.com/robert-malhotra/sarprep/internal/workspace"
	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// DefaultPolarization is processed when a request names no channel.
const DefaultPolarization = polarization.VH

// LocationResolver looks up terminal locations by name.
type LocationResolver interface {
	Lookup(name string) (*location.Location, error)
}

// ProductIdentifier identifies a product archive.
type ProductIdentifier interface {
	Identify(ctx context.Context, path string) (*product.Descriptor, error)
}

// OrbitFetcher finds the orbit file for a product. Failure is part of the
// result.
type OrbitFetcher interface {
	Fetch(ctx context.Context, d *product.Descriptor) orbit.Result
}

// DEMLoader stages the DEM tiles covering geometries.
type DEMLoader interface {
	Autoload(ctx context.Context, geometries []*geojson.Geometry, demType string, buffer float64) (dem.Result, error)
}

// ShapefileWriter writes a polygon as a shapefile.
type ShapefileWriter interface {
	Write(path, name string, g *geojson.Geometry) error
}

// ShapefileWriterFunc adapts a function to ShapefileWriter.
type ShapefileWriterFunc func(path, name string, g *geojson.Geometry) error

// Write calls f.
func (f ShapefileWriterFunc) Write(path, name string, g *geojson.Geometry) error {
	return f(path, name, g)
}

// Geocoder geocodes one polarization of a product.
type Geocoder interface {
	Geocode(ctx context.Context, req geocode.Request) (geocode.Result, error)
}

// ItemWriter records a finished run next to its outputs.
type ItemWriter interface {
	WriteRunItem(report *Report, loc *location.Location) (string, error)
}

// Components are the collaborators of a run.
type Components struct {
	Locations  LocationResolver
	Identifier ProductIdentifier
	Orbits     OrbitFetcher
	DEM        DEMLoader
	Shapefiles ShapefileWriter
	Geocoder   Geocoder
	// Items is optional.
	Items ItemWriter
}

// Options are the fixed processing settings shared by every run.
type Options struct {
	DEMType   string
	DEMBuffer float64
	Params    geocode.Params
}

// DefaultOptions returns SRTM 1Sec HGT with a 0.1 degree buffer and the
// default geocoding parameters.
func DefaultOptions() Options {
	return Options{
		DEMType:   dem.TypeSRTM1Sec,
		DEMBuffer: 0.1,
		Params:    geocode.DefaultParams(),
	}
}

// Request is a single run.
type Request struct {
	Archive       string                 `json:"archive"`
	Location      string                 `json:"location"`
	Polarizations []polarization.Channel `json:"polarizations"`
	OutputDir     string                 `json:"output_dir"`
	ShapefileDir  string                 `json:"shapefile_dir"`
	// KeepOutput skips the reset of the location output folder so the
	// outputs of earlier runs in the same batch survive.
	KeepOutput bool `json:"keep_output,omitempty"`
}

// Validate checks the request is complete.
func (r *Request) Validate() error {
	if r.Archive == "" {
		return errors.New("archive is required")
	}
	if r.Location == "" {
		return errors.New("location is required")
	}
	if r.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if r.ShapefileDir == "" {
		return errors.New("shapefile directory is required")
	}
	for _, ch := range r.Polarizations {
		if _, err := polarization.ParseChannel(string(ch)); err != nil {
			return err
		}
	}
	return nil
}

// Orchestrator executes runs.
type Orchestrator struct {
	c      Components
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(c Components, opts Options) *Orchestrator {
	return &Orchestrator{
		c:      c,
		opts:   opts,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets a custom logger for the orchestrator
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// Options returns the processing settings of every run.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// run holds the state of one execution.
type run struct {
	o      *Orchestrator
	req    Request
	report *Report
	logger *slog.Logger
}

func (r *run) enter(s State, ch polarization.Channel) {
	r.report.State = s
	r.report.Transitions = append(r.report.Transitions, Transition{State: s, At: r.o.now(), Detail: ch})
}

// fail records a fatal error and returns it.
func (r *run) fail(err *StepError) error {
	r.report.Error = err.Error()
	r.report.ErrorKind = err.Kind
	r.enter(StateFailed, "")
	r.report.FinishedAt = r.o.now()
	r.logger.Error("run failed",
		slog.String("kind", string(err.Kind)),
		slog.String("step", string(err.Step)),
		slog.String("error", err.Err.Error()),
	)
	return err
}

// Run processes req.Archive for req.Location. The report is returned in all
// cases; the error is non-nil only for fatal failures.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Report, error) {
	if len(req.Polarizations) == 0 {
		req.Polarizations = []polarization.Channel{DefaultPolarization}
	}

	r := &run{
		o:   o,
		req: req,
		report: &Report{
			Archive:   req.Archive,
			Location:  req.Location,
			Requested: req.Polarizations,
			Channels:  []polarization.Channel{},
			StartedAt: o.now(),
		},
		logger: o.logger.With(slog.String("archive", req.Archive), slog.String("location", req.Location)),
	}
	r.enter(StateStart, "")

	if err := req.Validate(); err != nil {
		return r.report, r.fail(stepError(KindInvalidRequest, StateStart, err))
	}

	loc, err := o.c.Locations.Lookup(req.Location)
	if err != nil {
		return r.report, r.fail(stepError(KindUnknownLocation, StateLocationResolved, err))
	}
	r.enter(StateLocationResolved, "")

	desc, err := o.c.Identifier.Identify(ctx, req.Archive)
	if err != nil {
		return r.report, r.fail(stepError(KindExternalTool, StateProductIdentified, err))
	}
	r.report.Product = desc
	r.enter(StateProductIdentified, "")

	r.fetchOrbit(ctx, desc)

	layout := workspace.Layout{ShapefileDir: req.ShapefileDir, OutputDir: req.OutputDir}
	if err := r.prepareDEM(ctx, loc, layout); err != nil {
		return r.report, r.fail(err)
	}

	channels, err := polarization.ClassifyPath(req.Archive)
	r.enter(StatePolarizationClassified, "")
	if err != nil {
		se := stepError(KindUnrecognizedPolarization, StatePolarizationClassified, err)
		r.report.ClassificationError = se.Error()
		r.logger.ErrorContext(ctx, "polarization error", slog.String("error", err.Error()))
		r.finish(ctx, loc)
		return r.report, nil
	}
	r.report.Channels = channels
	r.logger.InfoContext(ctx, "product polarization classified",
		slog.String("product", polarization.BaseName(req.Archive)),
		slog.Any("channels", polarization.Strings(channels)),
	)

	out := layout.OutputFolder(req.Location)
	prepare := workspace.ResetDir
	if req.KeepOutput {
		prepare = workspace.EnsureDir
		r.logger.DebugContext(ctx, "keeping earlier outputs", slog.String("dir", out))
	}
	if err := prepare(out); err != nil {
		return r.report, r.fail(stepError(KindFilesystem, StatePolarizationClassified, err))
	}
	r.report.OutputDir = out

	base := geocode.Request{
		InputPath:     req.Archive,
		OutDir:        out,
		ShapefilePath: layout.ShapefilePath(req.Location),
		Params:        o.opts.Params,
	}
	for _, ch := range req.Polarizations {
		rec, err := Dispatch(ctx, o.c.Geocoder, channels, ch, base, r.logger)
		r.report.Dispatches = append(r.report.Dispatches, rec)
		r.enter(rec.State, ch)
		if err != nil {
			return r.report, r.fail(err)
		}
	}

	r.finish(ctx, loc)
	return r.report, nil
}

func (r *run) fetchOrbit(ctx context.Context, desc *product.Descriptor) {
	res := r.o.c.Orbits.Fetch(ctx, desc)
	if res.OK() {
		r.report.Orbit.File = res.File
	} else {
		err := res.Err
		if err == nil {
			err = errors.New("no orbit file returned")
		}
		se := stepError(KindOrbitFetch, StateOrbitFetched, err)
		r.report.Orbit.Error = se.Error()
		r.logger.DebugContext(ctx, "continuing without orbit file", slog.String("error", err.Error()))
		r.logger.DebugContext(ctx, "orbit files are read from the SNAP auxdata directory; make sure ESA SNAP is installed")
	}
	r.enter(StateOrbitFetched, "")
}

func (r *run) prepareDEM(ctx context.Context, loc *location.Location, layout workspace.Layout) *StepError {
	folder := layout.ShapefileFolder(r.req.Location)
	if err := workspace.ResetDir(folder); err != nil {
		return stepError(KindFilesystem, StateDEMPrepared, err)
	}
	shp := layout.ShapefilePath(r.req.Location)
	if err := r.o.c.Shapefiles.Write(shp, loc.Name, loc.Geometry); err != nil {
		return stepError(KindFilesystem, StateDEMPrepared, fmt.Errorf("write shapefile: %w", err))
	}
	r.report.ShapefilePath = shp

	res, err := r.o.c.DEM.Autoload(ctx, []*geojson.Geometry{loc.Geometry}, r.o.opts.DEMType, r.o.opts.DEMBuffer)
	if err != nil {
		return stepError(KindExternalTool, StateDEMPrepared, err)
	}
	r.report.DEM = &res
	r.enter(StateDEMPrepared, "")
	return nil
}

func (r *run) finish(ctx context.Context, loc *location.Location) {
	if r.o.c.Items != nil && len(r.report.Geocoded()) > 0 {
		path, err := r.o.c.Items.WriteRunItem(r.report, loc)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to write run item", slog.String("error", err.Error()))
		} else {
			r.report.ItemPath = path
		}
	}
	r.enter(StateDone, "")
	r.report.FinishedAt = r.o.now()
	r.logger.InfoContext(ctx, "run complete",
		slog.Int("geocoded", len(r.report.Geocoded())),
		slog.Duration("elapsed", r.report.FinishedAt.Sub(r.report.StartedAt)),
	)
}

// Dispatch geocodes requested when channels carries it and skips it
// otherwise. base supplies everything but the polarization. There is no
// retry and no substitute channel.
func Dispatch(ctx context.Context, g Geocoder, channels []polarization.Channel, requested polarization.Channel, base geocode.Request, logger *slog.Logger) (DispatchRecord, *StepError) {
	rec := DispatchRecord{Polarization: requested}

	if !polarization.Contains(channels, requested) {
		rec.State = StateSkipped
		rec.Reason = string(KindChannelNotRequested)
		logger.DebugContext(ctx, "polarization not in product",
			slog.String("polarization", string(requested)),
			slog.String("product", polarization.BaseName(base.InputPath)),
		)
		logger.DebugContext(ctx, "select polarization from available channels",
			slog.Any("available", polarization.Strings(channels)),
		)
		return rec, nil
	}

	req := base
	req.Polarization = requested
	logger.InfoContext(ctx, "SAR processing started",
		slog.String("product", polarization.BaseName(base.InputPath)),
		slog.String("polarization", string(requested)),
	)
	res, err := g.Geocode(ctx, req)
	if err != nil {
		rec.State = StateDispatched
		rec.Reason = err.Error()
		return rec, stepError(KindExternalTool, StateDispatched, fmt.Errorf("geocode %s: %w", requested, err))
	}
	rec.State = StateDispatched
	rec.Result = &res
	logger.InfoContext(ctx, "SAR processing finished",
		slog.String("polarization", string(requested)),
		slog.String("raster", res.RasterPath),
		slog.Duration("elapsed", res.Elapsed),
	)
	return rec, nil
}
