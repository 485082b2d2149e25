package stac

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/sarprep/internal/location"
	"github.com/robert-malhotra/sarprep/internal/pipeline"
	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// NewRunItem describes the outputs of a finished run. The geometry is the
// terminal polygon and the datetime the acquisition start. Asset hrefs are
// relative to the output directory. software is the sarprep version recorded
// in processing:software.
func NewRunItem(report *pipeline.Report, loc *location.Location, software string) (*Item, error) {
	if report == nil || report.Product == nil {
		return nil, errors.New("report has no identified product")
	}
	if loc == nil || loc.Geometry == nil {
		return nil, errors.New("location has no geometry")
	}
	p := report.Product

	item := NewItem(p.Name, CollectionID)
	item.Geometry = loc.Geometry
	if bbox, err := geojson.ComputeBBox(loc.Geometry); err == nil {
		item.Bbox = bbox
	}

	props := item.Properties
	props["datetime"] = p.Start
	props["start_datetime"] = p.Start
	props["end_datetime"] = p.Stop
	props["platform"] = strings.ToLower(p.Platform())
	props["constellation"] = "sentinel-1"
	props["instruments"] = []string{"c-sar"}

	props["sar:instrument_mode"] = p.Mode
	props["sar:frequency_band"] = "C"
	props["sar:product_type"] = p.ProductType
	props["sar:polarizations"] = polarization.Strings(report.Channels)

	props["sat:absolute_orbit"] = p.AbsoluteOrbit
	if p.RelativeOrbit > 0 {
		props["sat:relative_orbit"] = p.RelativeOrbit
	}
	if p.FlightDirection != "" {
		props["sat:orbit_state"] = strings.ToLower(p.FlightDirection)
	}

	props["processing:level"] = "L2"
	if software == "" {
		software = "dev"
	}
	props["processing:software"] = map[string]string{"sarprep": software, "snap": "gpt"}
	props["processing:lineage"] = fmt.Sprintf("Geocoded from %s for terminal %s", filepath.Base(report.Archive), loc.Name)
	props["sarprep:terminal"] = loc.Name
	if report.Orbit.File != nil {
		props["sarprep:orbit_file"] = report.Orbit.File.Name
	}
	if report.DEM != nil {
		props["sarprep:dem"] = report.DEM.DEMType
	}

	for _, res := range report.Geocoded() {
		key := strings.ToLower(string(res.Polarization))
		item.Assets[key] = &Asset{
			Href:  filepath.Base(res.RasterPath),
			Title: fmt.Sprintf("%s terrain-corrected backscatter", res.Polarization),
			Type:  MediaTypeGeoTIFF,
			Roles: []string{"data"},
		}
		if res.WorkflowPath != "" {
			item.Assets[key+"_workflow"] = &Asset{
				Href:  filepath.Base(res.WorkflowPath),
				Title: fmt.Sprintf("%s processing graph", res.Polarization),
				Type:  MediaTypeXML,
				Roles: []string{"metadata"},
			}
		}
	}
	if len(item.Assets) == 0 {
		return nil, errors.New("run produced no geocoded output")
	}

	item.Links = append(item.Links, &Link{
		Rel:  "self",
		Href: "./" + ItemFileName(item),
		Type: MediaTypeGeoJSON,
	})
	return item, nil
}

// ItemFileName returns <id>.json.
func ItemFileName(item *Item) string {
	return item.Id + ".json"
}

// WriteItem writes item to <dir>/<id>.json and returns the path.
func WriteItem(dir string, item *Item) (string, error) {
	data, err := encodeItem(item)
	if err != nil {
		return "", fmt.Errorf("failed to encode item %s: %w", item.Id, err)
	}
	path := filepath.Join(dir, ItemFileName(item))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write item %s: %w", path, err)
	}
	return path, nil
}

// encodeItem marshals item and declares the extensions whose properties
// NewRunItem sets. go-stac only emits stac_extensions for registered
// extension types.
func encodeItem(item *Item) ([]byte, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	doc["stac_extensions"] = Extensions
	return json.MarshalIndent(doc, "", "  ")
}

// Writer writes run items next to the geocoded outputs.
type Writer struct {
	// Software is the sarprep version written into items.
	Software string
}

// WriteRunItem builds the item for report and writes it into the run's
// output directory.
func (w Writer) WriteRunItem(report *pipeline.Report, loc *location.Location) (string, error) {
	item, err := NewRunItem(report, loc, w.Software)
	if err != nil {
		return "", err
	}
	return WriteItem(report.OutputDir, item)
}
