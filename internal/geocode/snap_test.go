package geocode

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/internal/shapefile"
	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

const testArchive = "S1A_IW_GRDH_1SDV_20230313T175210_20230313T175235_047629_05B868_4E5C.zip"

// fakeGPT writes the raster named in the graph's Write node.
const fakeGPT = `#!/bin/sh
echo "Executing processing graph"
out=$(sed -n 's:.*<file>\(.*\.tif\)</file>.*:\1:p' "$1")
echo "writing $out"
touch "$out"
echo "done."
`

const failingGPT = `#!/bin/sh
echo "Error: [NodeId: Read] Cannot construct DataInputStream" >&2
exit 1
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "gpt")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func writeShapefile(t *testing.T) string {
	t.Helper()
	g, err := geojson.FromWKT("POLYGON((-2.905 53.265,-2.815 53.265,-2.815 53.300,-2.905 53.300,-2.905 53.265))")
	if err != nil {
		t.Fatalf("FromWKT: %v", err)
	}
	path := filepath.Join(t.TempDir(), "stanlow", "stanlow.shp")
	if err := shapefile.Write(path, "stanlow", g); err != nil {
		t.Fatalf("shapefile.Write: %v", err)
	}
	return path
}

func TestGeocode(t *testing.T) {
	gpt := writeScript(t, fakeGPT)
	shp := writeShapefile(t)
	out := filepath.Join(t.TempDir(), "processed", "stanlow")

	snap := NewSNAP(gpt, time.Minute).WithLogger(quietLogger())
	res, err := snap.Geocode(context.Background(), Request{
		InputPath:     filepath.Join("/data/archives", testArchive),
		OutDir:        out,
		ShapefilePath: shp,
		Polarization:  polarization.VH,
		Params:        DefaultParams(),
	})
	if err != nil {
		t.Fatalf("Geocode() error: %v", err)
	}

	stem := "S1A_IW_GRDH_1SDV_20230313T175210_20230313T175235_047629_05B868_4E5C_VH"
	if res.RasterPath != filepath.Join(out, stem+"_sigma0.tif") {
		t.Errorf("RasterPath = %s", res.RasterPath)
	}
	if res.WorkflowPath != filepath.Join(out, stem+"_proc.xml") {
		t.Errorf("WorkflowPath = %s", res.WorkflowPath)
	}
	if res.Polarization != polarization.VH {
		t.Errorf("Polarization = %s", res.Polarization)
	}
	if _, err := os.Stat(res.WorkflowPath); err != nil {
		t.Errorf("workflow should be kept: %v", err)
	}

	doc, _ := os.ReadFile(res.WorkflowPath)
	for _, want := range []string{
		"<imgResamplingMethod>BILINEAR_INTERPOLATION</imgResamplingMethod>",
		"<filter>Refined Lee</filter>",
		"<outputSigmaBand>true</outputSigmaBand>",
		"<selectedPolarisations>VH</selectedPolarisations>",
		"<geoRegion>POLYGON((-2.905 53.265,-2.815 53.265,-2.815 53.3,-2.905 53.3,-2.905 53.265))</geoRegion>",
	} {
		if !strings.Contains(string(doc), want) {
			t.Errorf("graph missing %s", want)
		}
	}
}

func TestGeocodeWithoutWorkflow(t *testing.T) {
	gpt := writeScript(t, fakeGPT)
	params := DefaultParams()
	params.ReturnWorkflow = false

	res, err := NewSNAP(gpt, 0).WithLogger(quietLogger()).Geocode(context.Background(), Request{
		InputPath:     testArchive,
		OutDir:        t.TempDir(),
		ShapefilePath: writeShapefile(t),
		Polarization:  polarization.HH,
		Params:        params,
	})
	if err != nil {
		t.Fatalf("Geocode() error: %v", err)
	}
	if res.WorkflowPath != "" {
		t.Errorf("WorkflowPath = %q, want empty", res.WorkflowPath)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(res.RasterPath), "*_proc.xml"))
	if len(matches) != 0 {
		t.Errorf("graph should be removed, found %v", matches)
	}
}

func TestGeocodeFailures(t *testing.T) {
	shp := writeShapefile(t)
	failing := writeScript(t, failingGPT)
	silent := writeScript(t, "#!/bin/sh\nexit 0\n")

	badRef := DefaultParams()
	badRef.RefArea = "sigma1"

	tests := []struct {
		name     string
		gpt      string
		req      Request
		toolFail bool
	}{
		{
			name:     "non-zero exit",
			gpt:      failing,
			req:      Request{InputPath: testArchive, ShapefilePath: shp, Polarization: polarization.VV, Params: DefaultParams()},
			toolFail: true,
		},
		{
			name:     "no output written",
			gpt:      silent,
			req:      Request{InputPath: testArchive, ShapefilePath: shp, Polarization: polarization.VV, Params: DefaultParams()},
			toolFail: true,
		},
		{
			name:     "missing executable",
			gpt:      filepath.Join(t.TempDir(), "no-gpt"),
			req:      Request{InputPath: testArchive, ShapefilePath: shp, Polarization: polarization.VV, Params: DefaultParams()},
			toolFail: true,
		},
		{
			name: "invalid polarization",
			gpt:  silent,
			req:  Request{InputPath: testArchive, ShapefilePath: shp, Polarization: "XX", Params: DefaultParams()},
		},
		{
			name: "missing shapefile",
			gpt:  silent,
			req:  Request{InputPath: testArchive, ShapefilePath: filepath.Join(t.TempDir(), "none.shp"), Polarization: polarization.VV, Params: DefaultParams()},
		},
		{
			name: "unsupported reference area",
			gpt:  silent,
			req:  Request{InputPath: testArchive, ShapefilePath: shp, Polarization: polarization.VV, Params: badRef},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.OutDir = t.TempDir()
			_, err := NewSNAP(tt.gpt, time.Minute).WithLogger(quietLogger()).Geocode(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrToolFailed); got != tt.toolFail {
				t.Errorf("errors.Is(ErrToolFailed) = %v, want %v (%v)", got, tt.toolFail, err)
			}
		})
	}

	// The tool output tail ends up in the error.
	_, err := NewSNAP(failing, 0).WithLogger(quietLogger()).Geocode(context.Background(), Request{
		InputPath: testArchive, OutDir: t.TempDir(), ShapefilePath: shp, Polarization: polarization.VV, Params: DefaultParams(),
	})
	if err == nil || !strings.Contains(err.Error(), "Cannot construct DataInputStream") {
		t.Errorf("error should carry tool output, got %v", err)
	}
}

func TestBuildGraph(t *testing.T) {
	params := DefaultParams()
	params.SpeckleFilter = ""
	params.RefArea = RefAreaGamma0

	doc, err := buildGraph(graphSpec{
		Input:        "in.zip",
		Output:       "out.tif",
		Polarization: "HV",
		Region:       "POLYGON((0 0,1 0,1 1,0 1,0 0))",
		Params:       params,
	})
	if err != nil {
		t.Fatalf("buildGraph() error: %v", err)
	}

	var g graph
	if err := xml.Unmarshal(doc, &g); err != nil {
		t.Fatalf("graph is not valid XML: %v", err)
	}
	var ops []string
	for _, n := range g.Nodes {
		ops = append(ops, n.Operator)
	}
	want := "Read,Apply-Orbit-File,ThermalNoiseRemoval,Calibration,Terrain-Correction,Subset,Write"
	if got := strings.Join(ops, ","); got != want {
		t.Errorf("operators = %s, want %s", got, want)
	}
	if g.Nodes[0].Sources != nil {
		t.Error("Read must not have a source")
	}
	if g.Nodes[4].Sources == nil || g.Nodes[4].Sources.SourceProduct.RefID != "Calibration" {
		t.Errorf("Terrain-Correction source = %+v", g.Nodes[4].Sources)
	}
	if !strings.Contains(string(doc), "<outputGammaBand>true</outputGammaBand>") {
		t.Error("gamma0 calibration band not selected")
	}
}

func TestBuildGraphOrbitType(t *testing.T) {
	tests := []struct {
		orbitType string
		want      string
		wantErr   bool
	}{
		{OrbitPrecise, "Sentinel Precise (Auto Download)", false},
		{"", "Sentinel Precise (Auto Download)", false},
		{OrbitRestituted, "Sentinel Restituted (Auto Download)", false},
		{"MOE", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.orbitType, func(t *testing.T) {
			params := DefaultParams()
			params.OrbitType = tt.orbitType
			doc, err := buildGraph(graphSpec{
				Input:        "in.zip",
				Output:       "out.tif",
				Polarization: "VH",
				Region:       "POLYGON((0 0,1 0,1 1,0 1,0 0))",
				Params:       params,
			})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error for orbit type %q", tt.orbitType)
				}
				return
			}
			if err != nil {
				t.Fatalf("buildGraph() error: %v", err)
			}
			if want := "<orbitType>" + tt.want + "</orbitType>"; !strings.Contains(string(doc), want) {
				t.Errorf("graph does not contain %s", want)
			}
		})
	}
}
