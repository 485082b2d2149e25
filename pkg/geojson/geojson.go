// Package geojson provides GeoJSON geometry types and utilities.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Geometry type names.
const (
	TypePoint        = "Point"
	TypePolygon      = "Polygon"
	TypeMultiPolygon = "MultiPolygon"
)

// ErrInvalidGeometry is returned by Validate for geometries that cannot be
// used as an area of interest.
var ErrInvalidGeometry = errors.New("invalid geometry")

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature is a GeoJSON Feature.
type Feature struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	BBox       []float64      `json:"bbox,omitempty"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// NewPolygon builds a Polygon geometry from its rings.
func NewPolygon(rings [][][]float64) (*Geometry, error) {
	coords, err := json.Marshal(rings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal polygon coordinates: %w", err)
	}
	return &Geometry{Type: TypePolygon, Coordinates: coords}, nil
}

// NewMultiPolygon builds a MultiPolygon geometry from its polygons.
func NewMultiPolygon(polygons [][][][]float64) (*Geometry, error) {
	coords, err := json.Marshal(polygons)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal multipolygon coordinates: %w", err)
	}
	return &Geometry{Type: TypeMultiPolygon, Coordinates: coords}, nil
}

// Point returns the coordinates as a Point [lon, lat].
// Returns error if geometry is not a Point.
func (g *Geometry) Point() ([]float64, error) {
	if g.Type != TypePoint {
		return nil, fmt.Errorf("geometry is not a Point, got %s", g.Type)
	}
	var coords []float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Point coordinates: %w", err)
	}
	if len(coords) < 2 {
		return nil, fmt.Errorf("invalid Point coordinates: expected at least 2 values, got %d", len(coords))
	}
	return coords, nil
}

// Polygon returns the coordinates as a Polygon [][][lon, lat].
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != TypePolygon {
		return nil, fmt.Errorf("geometry is not a Polygon, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Polygon coordinates: %w", err)
	}
	return coords, nil
}

// MultiPolygon returns the coordinates as a MultiPolygon [][][][lon, lat].
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	if g.Type != TypeMultiPolygon {
		return nil, fmt.Errorf("geometry is not a MultiPolygon, got %s", g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPolygon coordinates: %w", err)
	}
	return coords, nil
}

// Polygons returns a Polygon or MultiPolygon as a list of polygons.
func (g *Geometry) Polygons() ([][][][]float64, error) {
	switch g.Type {
	case TypePolygon:
		p, err := g.Polygon()
		if err != nil {
			return nil, err
		}
		return [][][][]float64{p}, nil
	case TypeMultiPolygon:
		return g.MultiPolygon()
	default:
		return nil, fmt.Errorf("geometry is not polygonal, got %s", g.Type)
	}
}

// BBox computes the bounding box of the geometry.
// Returns [west, south, east, north].
func (g *Geometry) BBox() ([]float64, error) {
	return ComputeBBox(g)
}

// ComputeBBox computes the bounding box of a geometry.
// Returns [west, south, east, north].
func ComputeBBox(g *Geometry) ([]float64, error) {
	if g == nil {
		return nil, fmt.Errorf("geometry is nil")
	}

	if g.Type == TypePoint {
		coords, err := g.Point()
		if err != nil {
			return nil, err
		}
		return []float64{coords[0], coords[1], coords[0], coords[1]}, nil
	}

	if g.Type != TypePolygon && g.Type != TypeMultiPolygon {
		return nil, fmt.Errorf("unsupported geometry type: %s", g.Type)
	}

	polygons, err := g.Polygons()
	if err != nil {
		return nil, err
	}

	minLon, minLat := math.Inf(1), math.Inf(1)
	maxLon, maxLat := math.Inf(-1), math.Inf(-1)
	for _, polygon := range polygons {
		for _, ring := range polygon {
			for _, point := range ring {
				if len(point) < 2 {
					continue
				}
				minLon = math.Min(minLon, point[0])
				maxLon = math.Max(maxLon, point[0])
				minLat = math.Min(minLat, point[1])
				maxLat = math.Max(maxLat, point[1])
			}
		}
	}

	if math.IsInf(minLon, 0) || math.IsInf(minLat, 0) {
		return nil, fmt.Errorf("failed to compute bounding box: no valid coordinates found")
	}

	return []float64{minLon, minLat, maxLon, maxLat}, nil
}

// UnionBBox returns the bounding box covering every geometry.
func UnionBBox(geometries ...*Geometry) ([]float64, error) {
	if len(geometries) == 0 {
		return nil, fmt.Errorf("no geometries")
	}
	var union []float64
	for i, g := range geometries {
		bbox, err := ComputeBBox(g)
		if err != nil {
			return nil, fmt.Errorf("geometry %d: %w", i, err)
		}
		if union == nil {
			union = bbox
			continue
		}
		union[0] = math.Min(union[0], bbox[0])
		union[1] = math.Min(union[1], bbox[1])
		union[2] = math.Max(union[2], bbox[2])
		union[3] = math.Max(union[3], bbox[3])
	}
	return union, nil
}

// BufferBBox grows bbox by degrees on every side, clamped to the valid
// longitude and latitude ranges.
func BufferBBox(bbox []float64, degrees float64) ([]float64, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}
	if degrees < 0 {
		return nil, fmt.Errorf("buffer must not be negative, got %g", degrees)
	}
	return []float64{
		math.Max(bbox[0]-degrees, -180),
		math.Max(bbox[1]-degrees, -90),
		math.Min(bbox[2]+degrees, 180),
		math.Min(bbox[3]+degrees, 90),
	}, nil
}

// NewPolygonFromBBox creates a polygon geometry from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (*Geometry, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values [west, south, east, north], got %d", len(bbox))
	}

	west, south, east, north := bbox[0], bbox[1], bbox[2], bbox[3]

	return NewPolygon([][][]float64{
		{
			{west, south},
			{east, south},
			{east, north},
			{west, north},
			{west, south},
		},
	})
}

// Validate checks that g is a Polygon or MultiPolygon with closed rings of at
// least four positions inside the WGS84 coordinate ranges.
func (g *Geometry) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: geometry is nil", ErrInvalidGeometry)
	}
	polygons, err := g.Polygons()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if len(polygons) == 0 {
		return fmt.Errorf("%w: no polygons", ErrInvalidGeometry)
	}
	for p, polygon := range polygons {
		if len(polygon) == 0 {
			return fmt.Errorf("%w: polygon %d has no rings", ErrInvalidGeometry, p)
		}
		for r, ring := range polygon {
			if len(ring) < 4 {
				return fmt.Errorf("%w: polygon %d ring %d has %d positions, need at least 4", ErrInvalidGeometry, p, r, len(ring))
			}
			for i, pt := range ring {
				if len(pt) < 2 {
					return fmt.Errorf("%w: polygon %d ring %d position %d has %d values", ErrInvalidGeometry, p, r, i, len(pt))
				}
				if pt[0] < -180 || pt[0] > 180 || pt[1] < -90 || pt[1] > 90 {
					return fmt.Errorf("%w: polygon %d ring %d position %d out of range (%g, %g)", ErrInvalidGeometry, p, r, i, pt[0], pt[1])
				}
			}
			first, last := ring[0], ring[len(ring)-1]
			if first[0] != last[0] || first[1] != last[1] {
				return fmt.Errorf("%w: polygon %d ring %d is not closed", ErrInvalidGeometry, p, r)
			}
		}
	}
	return nil
}

// SignedArea returns the shoelace area of a ring. It is positive for
// counter-clockwise rings and negative for clockwise rings.
func SignedArea(ring [][]float64) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return sum / 2
}

// IsClockwise reports whether ring winds clockwise.
func IsClockwise(ring [][]float64) bool {
	return SignedArea(ring) < 0
}

// Reverse returns a copy of ring with the position order reversed.
func Reverse(ring [][]float64) [][]float64 {
	out := make([][]float64, len(ring))
	for i, pt := range ring {
		out[len(ring)-1-i] = pt
	}
	return out
}
