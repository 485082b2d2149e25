// Package location resolves named terminal locations to their polygons.
package location

import (
	"fmt"

	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// Location is a named area of interest, typically an oil terminal.
type Location struct {
	Name     string
	Title    string
	Country  string
	Geometry *geojson.Geometry
}

// BBox returns the bounding box of the location polygon.
func (l *Location) BBox() ([]float64, error) {
	return l.Geometry.BBox()
}

// Feature returns the location as a GeoJSON Feature.
func (l *Location) Feature() (*geojson.Feature, error) {
	bbox, err := l.BBox()
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", l.Name, err)
	}
	props := map[string]any{"name": l.Name}
	if l.Title != "" {
		props["title"] = l.Title
	}
	if l.Country != "" {
		props["country"] = l.Country
	}
	return &geojson.Feature{
		Type:       "Feature",
		ID:         l.Name,
		BBox:       bbox,
		Geometry:   l.Geometry,
		Properties: props,
	}, nil
}

func validateLocation(l *Location) error {
	if l.Name == "" {
		return fmt.Errorf("location name is required")
	}
	if l.Geometry == nil {
		return fmt.Errorf("location %q has no geometry", l.Name)
	}
	if err := l.Geometry.Validate(); err != nil {
		return fmt.Errorf("location %q: %w", l.Name, err)
	}
	return nil
}
