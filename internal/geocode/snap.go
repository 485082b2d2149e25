// Package geocode runs the SNAP geocoding workflow for a single polarization
// of a Sentinel-1 GRD product.
package geocode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/internal/shapefile"
	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// Reference areas for radiometric calibration.
const (
	RefAreaSigma0 = "sigma0"
	RefAreaGamma0 = "gamma0"
	RefAreaBeta0  = "beta0"
)

// Orbit types applied by Apply-Orbit-File.
const (
	OrbitPrecise    = "POE"
	OrbitRestituted = "RES"
)

// tailLines is the number of tool output lines kept for error messages.
const tailLines = 20

// ErrToolFailed is returned when gpt exits with a non-zero status.
var ErrToolFailed = errors.New("gpt failed")

// Params are the processing options of the workflow.
type Params struct {
	ResamplingMethod string  `json:"resampling_method"`
	SpeckleFilter    string  `json:"speckle_filter"`
	RefArea          string  `json:"ref_area"`
	DEMName          string  `json:"dem_name"`
	PixelSpacing     float64 `json:"pixel_spacing"`
	// OrbitType is OrbitPrecise or OrbitRestituted. SNAP reads the files
	// from its auxdata orbit directory.
	OrbitType string `json:"orbit_type"`
	// ReturnWorkflow keeps the generated graph next to the outputs.
	ReturnWorkflow bool `json:"return_workflow"`
}

// DefaultParams returns bilinear resampling, a Refined Lee speckle filter,
// sigma0 calibration on SRTM 1Sec HGT at 20 m with precise orbits, keeping
// the workflow file.
func DefaultParams() Params {
	return Params{
		ResamplingMethod: "BILINEAR_INTERPOLATION",
		SpeckleFilter:    "Refined Lee",
		RefArea:          RefAreaSigma0,
		DEMName:          "SRTM 1Sec HGT",
		PixelSpacing:     20,
		OrbitType:        OrbitPrecise,
		ReturnWorkflow:   true,
	}
}

// Request is a single geocoding job.
type Request struct {
	InputPath     string
	OutDir        string
	ShapefilePath string
	Polarization  polarization.Channel
	Params        Params
}

// Result describes the files written by a geocoding job.
type Result struct {
	Polarization polarization.Channel `json:"polarization"`
	RasterPath   string               `json:"raster_path"`
	WorkflowPath string               `json:"workflow_path,omitempty"`
	Elapsed      time.Duration        `json:"elapsed"`
}

// SNAP geocodes products by running the SNAP graph processing tool.
type SNAP struct {
	gptPath string
	timeout time.Duration
	logger  *slog.Logger
}

// NewSNAP creates a runner for the gpt executable at gptPath. A zero
// timeout means no limit beyond the caller's context.
func NewSNAP(gptPath string, timeout time.Duration) *SNAP {
	return &SNAP{
		gptPath: gptPath,
		timeout: timeout,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the runner
func (s *SNAP) WithLogger(logger *slog.Logger) *SNAP {
	s.logger = logger
	return s
}

// Geocode writes the graph to <OutDir>/<name>_<POL>_proc.xml, runs it and
// returns the raster path. The graph is removed afterwards unless
// Params.ReturnWorkflow is set.
func (s *SNAP) Geocode(ctx context.Context, req Request) (Result, error) {
	if req.InputPath == "" || req.OutDir == "" || req.ShapefilePath == "" {
		return Result{}, errors.New("geocode: input, output directory and shapefile are required")
	}
	if _, err := polarization.ParseChannel(string(req.Polarization)); err != nil {
		return Result{}, fmt.Errorf("geocode: %w", err)
	}

	region, err := regionWKT(req.ShapefilePath)
	if err != nil {
		return Result{}, err
	}

	name := polarization.BaseName(req.InputPath)
	stem := fmt.Sprintf("%s_%s", name, req.Polarization)
	raster := filepath.Join(req.OutDir, fmt.Sprintf("%s_%s.tif", stem, req.Params.RefArea))
	workflow := filepath.Join(req.OutDir, stem+"_proc.xml")

	doc, err := buildGraph(graphSpec{
		Input:        req.InputPath,
		Output:       raster,
		Polarization: string(req.Polarization),
		Region:       region,
		Params:       req.Params,
	})
	if err != nil {
		return Result{}, fmt.Errorf("geocode: %w", err)
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("geocode: create output directory: %w", err)
	}
	if err := os.WriteFile(workflow, doc, 0o644); err != nil {
		return Result{}, fmt.Errorf("geocode: write graph: %w", err)
	}
	if !req.Params.ReturnWorkflow {
		defer os.Remove(workflow)
	}

	started := time.Now()
	if err := s.run(ctx, workflow); err != nil {
		return Result{}, err
	}
	if _, err := os.Stat(raster); err != nil {
		return Result{}, fmt.Errorf("%w: expected output %s: %v", ErrToolFailed, raster, err)
	}

	res := Result{
		Polarization: req.Polarization,
		RasterPath:   raster,
		Elapsed:      time.Since(started),
	}
	if req.Params.ReturnWorkflow {
		res.WorkflowPath = workflow
	}
	return res, nil
}

// run executes gpt on the graph and streams its output into the logger.
func (s *SNAP) run(ctx context.Context, graphPath string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, s.gptPath, graphPath)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	s.logger.DebugContext(ctx, "running gpt", slog.String("cmd", strings.Join(cmd.Args, " ")))

	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("%w: start %s: %v", ErrToolFailed, s.gptPath, err)
	}

	var (
		wg   sync.WaitGroup
		tail []string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			s.logger.DebugContext(ctx, line, slog.String("tool", "gpt"))
			tail = append(tail, line)
			if len(tail) > tailLines {
				tail = tail[1:]
			}
		}
		io.Copy(io.Discard, pr)
	}()

	err := cmd.Wait()
	pw.Close()
	wg.Wait()

	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrToolFailed, err, strings.Join(tail, "; "))
	}
	return nil
}

// regionWKT returns the bounding box of the shapefile as a WKT polygon.
func regionWKT(shapefilePath string) (string, error) {
	bbox, err := shapefile.ReadBBox(shapefilePath)
	if err != nil {
		return "", fmt.Errorf("geocode: read subset region: %w", err)
	}
	g, err := geojson.NewPolygonFromBBox(bbox)
	if err != nil {
		return "", fmt.Errorf("geocode: subset region: %w", err)
	}
	return geojson.ToWKT(g)
}
