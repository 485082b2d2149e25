package product

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/robert-malhotra/sarprep/internal/asf"
	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

const testName = "S1A_IW_GRDH_1SDV_20230313T175210_20230313T175235_047629_05B868_4E5C"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeZip creates a zip archive at dir/name containing the given entries.
func writeZip(t *testing.T, dir, name string, entries ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e)
		if err != nil {
			t.Fatalf("zip entry: %v", err)
		}
		w.Write([]byte("<xfdu/>"))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	f.Close()
	return p
}

func TestParseName(t *testing.T) {
	d, err := ParseName("/data/" + testName + ".zip")
	if err != nil {
		t.Fatalf("ParseName() error: %v", err)
	}

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Name", d.Name, testName},
		{"Mission", d.Mission, "S1A"},
		{"Mode", d.Mode, "IW"},
		{"ProductType", d.ProductType, "GRD"},
		{"Resolution", d.Resolution, "H"},
		{"Level", d.Level, 1},
		{"Class", d.Class, "S"},
		{"PolarizationCode", d.PolarizationCode, "DV"},
		{"AbsoluteOrbit", d.AbsoluteOrbit, 47629},
		{"RelativeOrbit", d.RelativeOrbit, 132},
		{"DatatakeID", d.DatatakeID, "05B868"},
		{"UniqueID", d.UniqueID, "4E5C"},
		{"Format", d.Format, FormatZIP},
		{"Platform", d.Platform(), "Sentinel-1A"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}

	if !d.Start.Equal(time.Date(2023, 3, 13, 17, 52, 10, 0, time.UTC)) {
		t.Errorf("Start = %v", d.Start)
	}
	if d.Stop.Sub(d.Start) != 25*time.Second {
		t.Errorf("Stop - Start = %v", d.Stop.Sub(d.Start))
	}
}

func TestParseNameVariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "SAFE directory", input: "S1B_EW_GRDM_1SDH_20200101T000000_20200101T000025_019600_025000_ABCD.SAFE"},
		{name: "SAFE zip", input: testName + ".SAFE.zip"},
		{name: "SLC double underscore", input: "S1A_IW_SLC__1SDV_20230313T175210_20230313T175235_047629_05B868_4E5C"},
		{name: "bare name", input: testName},
		{name: "not sentinel", input: "LC08_L1TP_042034_20130411_20170310_01_T1.tar", wantErr: true},
		{name: "truncated", input: "S1A_IW_GRDH_1SDV.zip", wantErr: true},
		{name: "lower case", input: "s1a_iw_grdh_1sdv_20230313T175210_20230313T175235_047629_05B868_4E5C.zip", wantErr: true},
		{name: "stop before start", input: "S1A_IW_GRDH_1SDV_20230313T175210_20230313T175200_047629_05B868_4E5C.zip", wantErr: true},
		{name: "bad month", input: "S1A_IW_GRDH_1SDV_20231313T175210_20231313T175235_047629_05B868_4E5C.zip", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnidentifiedProduct) {
				t.Errorf("error %v does not wrap ErrUnidentifiedProduct", err)
			}
		})
	}
}

func TestRelativeOrbit(t *testing.T) {
	tests := []struct {
		mission  string
		absolute int
		want     int
	}{
		{"S1A", 73, 1},
		{"S1A", 247, 175},
		{"S1A", 248, 1},
		{"S1A", 47629, 132},
		{"S1B", 27, 1},
		{"S1B", 19600, 149},
		{"S1C", 172, 1},
		{"S1A", 10, 113},
		{"S1D", 1000, 0},
		{"S1A", 0, 0},
	}
	for _, tt := range tests {
		if got := RelativeOrbit(tt.mission, tt.absolute); got != tt.want {
			t.Errorf("RelativeOrbit(%s, %d) = %d, want %d", tt.mission, tt.absolute, got, tt.want)
		}
	}
}

func TestIdentify(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	id := NewIdentifier(nil).WithLogger(quietLogger())

	t.Run("zip with manifest", func(t *testing.T) {
		p := writeZip(t, dir, testName+".zip", testName+".SAFE/manifest.safe", testName+".SAFE/measurement/")
		d, err := id.Identify(ctx, p)
		if err != nil {
			t.Fatalf("Identify() error: %v", err)
		}
		if d.Path != p || d.Format != FormatZIP {
			t.Errorf("unexpected descriptor %+v", d)
		}
	})

	t.Run("zip without manifest", func(t *testing.T) {
		name := "S1A_IW_GRDH_1SDV_20230314T175210_20230314T175235_047644_05B868_AAAA.zip"
		p := writeZip(t, dir, name, "readme.txt")
		_, err := id.Identify(ctx, p)
		if !errors.Is(err, ErrMissingManifest) || !errors.Is(err, ErrUnidentifiedProduct) {
			t.Errorf("expected missing manifest, got %v", err)
		}
	})

	t.Run("corrupt zip", func(t *testing.T) {
		name := "S1A_IW_GRDH_1SDV_20230315T175210_20230315T175235_047659_05B868_BBBB.zip"
		p := filepath.Join(dir, name)
		os.WriteFile(p, []byte("not a zip"), 0644)
		if _, err := id.Identify(ctx, p); !errors.Is(err, ErrUnidentifiedProduct) {
			t.Errorf("expected ErrUnidentifiedProduct, got %v", err)
		}
	})

	t.Run("SAFE directory", func(t *testing.T) {
		safe := filepath.Join(dir, "S1A_IW_GRDH_1SSH_20230313T175210_20230313T175235_047629_05B868_CCCC.SAFE")
		os.MkdirAll(safe, 0755)
		os.WriteFile(filepath.Join(safe, "manifest.safe"), []byte("<xfdu/>"), 0644)
		d, err := id.Identify(ctx, safe)
		if err != nil {
			t.Fatalf("Identify() error: %v", err)
		}
		if d.Format != FormatSAFE || d.PolarizationCode != "SH" {
			t.Errorf("unexpected descriptor %+v", d)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := id.Identify(ctx, filepath.Join(dir, testName+"_missing.zip")); !errors.Is(err, ErrUnidentifiedProduct) {
			t.Errorf("expected ErrUnidentifiedProduct, got %v", err)
		}
	})
}

type fakeLookup struct {
	feature *asf.Feature
	err     error
}

func (f *fakeLookup) GetGranule(ctx context.Context, scene string) (*asf.Feature, error) {
	return f.feature, f.err
}

func TestIdentifyEnrichment(t *testing.T) {
	dir := t.TempDir()
	p := writeZip(t, dir, testName+".zip", "manifest.safe")

	footprint := &geojson.Geometry{Type: "Polygon", Coordinates: json.RawMessage(`[[[-4,52],[-1,52],[-1,54],[-4,54],[-4,52]]]`)}
	lookup := &fakeLookup{feature: &asf.Feature{
		Geometry:   footprint,
		Properties: asf.Properties{FlightDirection: "ASCENDING"},
	}}

	d, err := NewIdentifier(lookup).WithLogger(quietLogger()).Identify(context.Background(), p)
	if err != nil {
		t.Fatalf("Identify() error: %v", err)
	}
	if d.FlightDirection != "ASCENDING" || d.Footprint != footprint {
		t.Errorf("enrichment not applied: %+v", d)
	}

	failing := &fakeLookup{err: asf.ErrGranuleNotFound}
	d, err = NewIdentifier(failing).WithLogger(quietLogger()).Identify(context.Background(), p)
	if err != nil {
		t.Fatalf("enrichment failure must not fail identification: %v", err)
	}
	if d.Footprint != nil {
		t.Error("footprint should stay empty when enrichment fails")
	}
}
