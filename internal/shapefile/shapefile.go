// Package shapefile writes terminal polygons as ESRI Shapefiles in WGS84 and
// reads their extent back.
package shapefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"

	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// WGS84 is the projection written to the .prj sidecar (EPSG:4326).
const WGS84 = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// nameFieldLength is the width of the dbf name attribute.
const nameFieldLength = 64

// ErrEmptyShapefile is returned when a shapefile holds no records.
var ErrEmptyShapefile = errors.New("shapefile has no records")

// Write writes g as a single polygon record with a name attribute to path
// (.shp, .shx, .dbf and .prj). Outer rings are written clockwise and holes
// counter-clockwise. A MultiPolygon becomes one record with several parts.
func Write(path, name string, g *geojson.Geometry) error {
	if err := g.Validate(); err != nil {
		return err
	}
	polygons, err := g.Polygons()
	if err != nil {
		return err
	}
	if len(name) > nameFieldLength {
		name = name[:nameFieldLength]
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create shapefile directory: %w", err)
	}

	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return fmt.Errorf("failed to create shapefile %s: %w", path, err)
	}

	if err := w.SetFields([]shp.Field{shp.StringField("name", nameFieldLength)}); err != nil {
		w.Close()
		return fmt.Errorf("failed to set shapefile fields: %w", err)
	}

	poly := shp.Polygon(*shp.NewPolyLine(parts(polygons)))
	row := w.Write(&poly)
	if err := w.WriteAttribute(int(row), 0, name); err != nil {
		w.Close()
		return fmt.Errorf("failed to write shapefile attribute: %w", err)
	}
	w.Close()

	prj := strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
	if err := os.WriteFile(prj, []byte(WGS84), 0o644); err != nil {
		return fmt.Errorf("failed to write projection file: %w", err)
	}
	return nil
}

// parts converts polygons into shapefile parts with shapefile ring order.
func parts(polygons [][][][]float64) [][]shp.Point {
	var out [][]shp.Point
	for _, polygon := range polygons {
		for i, ring := range polygon {
			outer := i == 0
			if geojson.IsClockwise(ring) != outer {
				ring = geojson.Reverse(ring)
			}
			points := make([]shp.Point, len(ring))
			for j, pt := range ring {
				points[j] = shp.Point{X: pt[0], Y: pt[1]}
			}
			out = append(out, points)
		}
	}
	return out
}

// ReadBBox returns [west, south, east, north] of the shapefile at path.
func ReadBBox(path string) ([]float64, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer r.Close()

	if !r.Next() {
		return nil, fmt.Errorf("%w: %s", ErrEmptyShapefile, path)
	}
	box := r.BBox()
	return []float64{box.MinX, box.MinY, box.MaxX, box.MaxY}, nil
}

// ReadRings returns the rings of every record in the shapefile at path,
// together with the value of the first attribute of each record.
func ReadRings(path string) (names []string, rings [][][]float64, err error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer r.Close()

	for r.Next() {
		n, shape := r.Shape()
		if len(r.Fields()) > 0 {
			names = append(names, strings.Trim(r.ReadAttribute(n, 0), "\x00 "))
		}
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			return nil, nil, fmt.Errorf("record %d is not a polygon", n)
		}
		for i := range poly.Parts {
			start := int(poly.Parts[i])
			end := len(poly.Points)
			if i+1 < len(poly.Parts) {
				end = int(poly.Parts[i+1])
			}
			ring := make([][]float64, 0, end-start)
			for _, pt := range poly.Points[start:end] {
				ring = append(ring, []float64{pt.X, pt.Y})
			}
			rings = append(rings, ring)
		}
	}
	return names, rings, nil
}
