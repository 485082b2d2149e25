package location

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lev "github.com/agnivade/levenshtein"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// maxSuggestionDistance bounds the edit distance of "did you mean" hints.
const maxSuggestionDistance = 3

// Registry holds the known locations indexed by name.
type Registry struct {
	mu        sync.RWMutex
	locations map[string]*Location
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		locations: make(map[string]*Location),
	}
}

// registryFile is the on-disk YAML or JSON document listing terminals.
type registryFile struct {
	Terminals []terminalEntry `yaml:"terminals"`
}

// terminalEntry describes one terminal. Exactly one of WKT, BBox or Geometry
// carries its shape.
type terminalEntry struct {
	Name     string        `yaml:"name"`
	Title    string        `yaml:"title"`
	Country  string        `yaml:"country"`
	WKT      string        `yaml:"wkt"`
	BBox     []float64     `yaml:"bbox"`
	Geometry *yamlGeometry `yaml:"geometry"`
}

type yamlGeometry struct {
	Type        string `yaml:"type"`
	Coordinates any    `yaml:"coordinates"`
}

// LoadRegistry loads every registry file in dir. YAML and JSON files hold a
// "terminals" list; GeoJSON files hold a FeatureCollection whose features
// carry a "name" property.
func LoadRegistry(dir string) (*Registry, error) {
	registry := NewRegistry()

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access locations directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("locations path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read locations directory %q: %w", dir, err)
	}

	loadedCount := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		var locs []*Location
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			locs, err = loadTerminalFile(path)
		case ".geojson":
			locs, err = loadFeatureCollection(path)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load locations from %q: %w", path, err)
		}

		for _, loc := range locs {
			if err := registry.Add(loc); err != nil {
				return nil, fmt.Errorf("failed to add location from %q: %w", path, err)
			}
			loadedCount++
		}
	}

	if loadedCount == 0 {
		return nil, fmt.Errorf("no locations found in %q", dir)
	}

	return registry, nil
}

func loadTerminalFile(path string) ([]*Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var doc registryFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}

	locs := make([]*Location, 0, len(doc.Terminals))
	for i, t := range doc.Terminals {
		geom, err := t.geometry()
		if err != nil {
			return nil, fmt.Errorf("terminal %d (%q): %w", i, t.Name, err)
		}
		locs = append(locs, &Location{
			Name:     t.Name,
			Title:    t.Title,
			Country:  t.Country,
			Geometry: geom,
		})
	}
	return locs, nil
}

func (t terminalEntry) geometry() (*geojson.Geometry, error) {
	switch {
	case t.WKT != "":
		return geojson.FromWKT(t.WKT)
	case len(t.BBox) > 0:
		return geojson.NewPolygonFromBBox(t.BBox)
	case t.Geometry != nil:
		coords, err := json.Marshal(t.Geometry.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("failed to encode coordinates: %w", err)
		}
		return &geojson.Geometry{Type: t.Geometry.Type, Coordinates: coords}, nil
	default:
		return nil, fmt.Errorf("one of wkt, bbox or geometry is required")
	}
}

func loadFeatureCollection(path string) ([]*Location, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected FeatureCollection, got %q", fc.Type)
	}

	locs := make([]*Location, 0, len(fc.Features))
	for i, f := range fc.Features {
		name, _ := f.Properties["name"].(string)
		if name == "" {
			name = f.ID
		}
		if name == "" {
			return nil, fmt.Errorf("feature %d has no name property", i)
		}
		title, _ := f.Properties["title"].(string)
		country, _ := f.Properties["country"].(string)
		locs = append(locs, &Location{
			Name:     name,
			Title:    title,
			Country:  country,
			Geometry: f.Geometry,
		})
	}
	return locs, nil
}

// Add registers a location.
// Returns an error if the location is invalid or its name is already taken.
func (r *Registry) Add(loc *Location) error {
	if loc == nil {
		return fmt.Errorf("cannot add nil location")
	}
	if err := validateLocation(loc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.locations[loc.Name]; exists {
		return fmt.Errorf("location %q already exists", loc.Name)
	}
	r.locations[loc.Name] = loc
	return nil
}

// Lookup returns the location registered under name. Matching is exact and
// case-sensitive. Unknown names return an error wrapping ErrUnknownLocation
// that names the closest known location, if one is near enough.
func (r *Registry) Lookup(name string) (*Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if loc, ok := r.locations[name]; ok {
		return loc, nil
	}

	if suggestion := r.closest(name); suggestion != "" {
		return nil, fmt.Errorf("%w: %q (did you mean %q?)", ErrUnknownLocation, name, suggestion)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLocation, name)
}

// Polygon returns the polygon of the named location.
func (r *Registry) Polygon(name string) (*geojson.Geometry, error) {
	loc, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return loc.Geometry, nil
}

// closest returns the known name with the smallest edit distance to name,
// or "" if none is within maxSuggestionDistance. Callers hold r.mu.
func (r *Registry) closest(name string) string {
	best, bestDist := "", maxSuggestionDistance+1
	for _, candidate := range r.sortedNames() {
		if d := lev.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	return best
}

// Names returns all location names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNames()
}

func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.locations))
	for name := range r.locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all locations ordered by name.
func (r *Registry) All() []*Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := r.sortedNames()
	out := make([]*Location, len(names))
	for i, name := range names {
		out[i] = r.locations[name]
	}
	return out
}

// Count returns the number of locations in the registry.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locations)
}
