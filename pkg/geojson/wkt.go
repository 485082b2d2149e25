package geojson

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ToWKT converts a GeoJSON geometry to WKT format.
// Supports Point, Polygon, and MultiPolygon.
func ToWKT(g *Geometry) (string, error) {
	if g == nil {
		return "", fmt.Errorf("geometry is nil")
	}

	switch g.Type {
	case TypePoint:
		coords, err := g.Point()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("POINT(%s %s)", formatFloat(coords[0]), formatFloat(coords[1])), nil
	case TypePolygon:
		coords, err := g.Polygon()
		if err != nil {
			return "", err
		}
		body, err := polygonBody(coords)
		if err != nil {
			return "", err
		}
		return "POLYGON" + body, nil
	case TypeMultiPolygon:
		coords, err := g.MultiPolygon()
		if err != nil {
			return "", err
		}
		parts := make([]string, len(coords))
		for i, polygon := range coords {
			body, err := polygonBody(polygon)
			if err != nil {
				return "", err
			}
			parts[i] = body
		}
		return "MULTIPOLYGON(" + strings.Join(parts, ",") + ")", nil
	default:
		return "", fmt.Errorf("unsupported geometry type for WKT conversion: %s", g.Type)
	}
}

func polygonBody(polygon [][][]float64) (string, error) {
	rings := make([]string, len(polygon))
	for r, ring := range polygon {
		points := make([]string, len(ring))
		for i, point := range ring {
			if len(point) < 2 {
				return "", fmt.Errorf("invalid point in polygon ring: expected at least 2 coordinates")
			}
			points[i] = formatFloat(point[0]) + " " + formatFloat(point[1])
		}
		rings[r] = "(" + strings.Join(points, ",") + ")"
	}
	return "(" + strings.Join(rings, ",") + ")", nil
}

// FromWKT parses a WKT string into a GeoJSON geometry.
// Supports Point, Polygon, and MultiPolygon.
func FromWKT(wkt string) (*Geometry, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return nil, fmt.Errorf("empty WKT string")
	}

	open := strings.Index(wkt, "(")
	if open == -1 {
		return nil, fmt.Errorf("invalid WKT: missing coordinates")
	}
	kind := strings.ToUpper(strings.TrimSpace(wkt[:open]))

	p := &wktParser{src: wkt, pos: open}

	var (
		coords any
		typ    string
		err    error
	)
	switch kind {
	case "POINT":
		typ = TypePoint
		coords, err = p.point()
	case "POLYGON":
		typ = TypePolygon
		coords, err = p.polygon()
	case "MULTIPOLYGON":
		typ = TypeMultiPolygon
		coords, err = p.multiPolygon()
	default:
		return nil, fmt.Errorf("unsupported WKT geometry type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", kind, err)
	}

	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("failed to parse %s: trailing characters at position %d", kind, p.pos)
	}

	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s coordinates: %w", kind, err)
	}
	return &Geometry{Type: typ, Coordinates: raw}, nil
}

// wktParser is a small recursive-descent reader over WKT coordinate lists.
type wktParser struct {
	src string
	pos int
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.src) && isWhitespace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *wktParser) expect(ch byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != ch {
		return fmt.Errorf("expected %q at position %d", ch, p.pos)
	}
	p.pos++
	return nil
}

// more consumes a comma separator and reports whether another element follows.
func (p *wktParser) more() bool {
	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == ',' {
		p.pos++
		return true
	}
	return false
}

func (p *wktParser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && strings.IndexByte("+-.0123456789eE", p.src[p.pos]) >= 0 {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", p.src[start:p.pos], err)
	}
	return v, nil
}

func (p *wktParser) pair() ([]float64, error) {
	lon, err := p.number()
	if err != nil {
		return nil, err
	}
	lat, err := p.number()
	if err != nil {
		return nil, err
	}
	return []float64{lon, lat}, nil
}

func (p *wktParser) point() ([]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	pt, err := p.pair()
	if err != nil {
		return nil, err
	}
	return pt, p.expect(')')
}

func (p *wktParser) ring() ([][]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var ring [][]float64
	for {
		pt, err := p.pair()
		if err != nil {
			return nil, err
		}
		ring = append(ring, pt)
		if !p.more() {
			break
		}
	}
	return ring, p.expect(')')
}

func (p *wktParser) polygon() ([][][]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var rings [][][]float64
	for {
		r, err := p.ring()
		if err != nil {
			return nil, err
		}
		rings = append(rings, r)
		if !p.more() {
			break
		}
	}
	return rings, p.expect(')')
}

func (p *wktParser) multiPolygon() ([][][][]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var polygons [][][][]float64
	for {
		poly, err := p.polygon()
		if err != nil {
			return nil, err
		}
		polygons = append(polygons, poly)
		if !p.more() {
			break
		}
	}
	return polygons, p.expect(')')
}

// formatFloat formats a float64 for WKT output
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
