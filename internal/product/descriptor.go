// Package product identifies Sentinel-1 GRD archives and parses their
// naming convention into a Descriptor.
package product

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// Archive formats.
const (
	FormatZIP  = "ZIP"
	FormatSAFE = "SAFE"
)

const timeLayout = "20060102T150405"

// nameRE matches MMM_BB_TTTR_LFPP_YYYYMMDDTHHMMSS_YYYYMMDDTHHMMSS_OOOOOO_DDDDDD_CCCC.
var nameRE = regexp.MustCompile(`^(S1[A-D])_([A-Z0-9]{2})_([A-Z]{3}|SLC_|RAW_|OCN_)([FHM_])_([0-9])([SA])([A-Z]{2})_([0-9]{8}T[0-9]{6})_([0-9]{8}T[0-9]{6})_([0-9]{6})_([0-9A-F]{6})_([0-9A-F]{4})$`)

// Descriptor identifies a Sentinel-1 product.
type Descriptor struct {
	Path             string    `json:"path"`
	Name             string    `json:"name"`
	Mission          string    `json:"mission"`
	Mode             string    `json:"mode"`
	ProductType      string    `json:"product_type"`
	Resolution       string    `json:"resolution"`
	Level            int       `json:"level"`
	Class            string    `json:"class"`
	PolarizationCode string    `json:"polarization_code"`
	Start            time.Time `json:"start"`
	Stop             time.Time `json:"stop"`
	AbsoluteOrbit    int       `json:"absolute_orbit"`
	RelativeOrbit    int       `json:"relative_orbit"`
	DatatakeID       string    `json:"datatake_id"`
	UniqueID         string    `json:"unique_id"`
	Format           string    `json:"format"`

	// Filled from ASF Search when enrichment is enabled.
	Footprint       *geojson.Geometry `json:"footprint,omitempty"`
	FlightDirection string            `json:"flight_direction,omitempty"`
}

// Platform returns the platform name, e.g. "Sentinel-1A".
func (d *Descriptor) Platform() string {
	return "Sentinel-" + strings.TrimPrefix(d.Mission, "S")
}

// ParseName parses a product name or path following the Sentinel-1 naming
// convention. A trailing ".zip" or ".SAFE" is accepted.
func ParseName(path string) (*Descriptor, error) {
	base := filepath.Base(strings.TrimRight(path, `/\`))
	format := ""
	switch {
	case strings.HasSuffix(base, ".SAFE.zip"):
		base, format = strings.TrimSuffix(base, ".SAFE.zip"), FormatZIP
	case strings.HasSuffix(base, ".zip"):
		base, format = strings.TrimSuffix(base, ".zip"), FormatZIP
	case strings.HasSuffix(base, ".SAFE"):
		base, format = strings.TrimSuffix(base, ".SAFE"), FormatSAFE
	}

	m := nameRE.FindStringSubmatch(base)
	if m == nil {
		return nil, fmt.Errorf("%w: %q does not follow the Sentinel-1 naming convention", ErrUnidentifiedProduct, base)
	}

	start, err := time.Parse(timeLayout, m[8])
	if err != nil {
		return nil, fmt.Errorf("%w: start time %q: %v", ErrUnidentifiedProduct, m[8], err)
	}
	stop, err := time.Parse(timeLayout, m[9])
	if err != nil {
		return nil, fmt.Errorf("%w: stop time %q: %v", ErrUnidentifiedProduct, m[9], err)
	}
	if stop.Before(start) {
		return nil, fmt.Errorf("%w: stop %s precedes start %s", ErrUnidentifiedProduct, m[9], m[8])
	}

	abs, _ := strconv.Atoi(m[10])
	level, _ := strconv.Atoi(m[5])

	return &Descriptor{
		Path:             path,
		Name:             base,
		Mission:          m[1],
		Mode:             m[2],
		ProductType:      strings.TrimRight(m[3], "_"),
		Resolution:       strings.TrimRight(m[4], "_"),
		Level:            level,
		Class:            m[6],
		PolarizationCode: m[7],
		Start:            start,
		Stop:             stop,
		AbsoluteOrbit:    abs,
		RelativeOrbit:    RelativeOrbit(m[1], abs),
		DatatakeID:       m[11],
		UniqueID:         m[12],
		Format:           format,
	}, nil
}

// orbitOffsets are the absolute orbit numbers of relative orbit 1 per mission.
var orbitOffsets = map[string]int{
	"S1A": 73,
	"S1B": 27,
	"S1C": 172,
}

// orbitsPerCycle is the number of orbits in the 12-day repeat cycle.
const orbitsPerCycle = 175

// RelativeOrbit derives the relative orbit from an absolute orbit number.
// It returns 0 for missions without a known offset.
func RelativeOrbit(mission string, absolute int) int {
	offset, ok := orbitOffsets[mission]
	if !ok || absolute <= 0 {
		return 0
	}
	rel := (absolute - offset) % orbitsPerCycle
	if rel < 0 {
		rel += orbitsPerCycle
	}
	return rel + 1
}
