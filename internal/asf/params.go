package asf

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SearchParams represents parameters for ASF search queries
type SearchParams struct {
	Platform []string // Platform names (e.g., "Sentinel-1A")

	// Spatial filter as a WKT geometry string
	IntersectsWith string

	// Temporal filters, both inclusive
	Start *time.Time
	End   *time.Time

	// Granule identification
	GranuleList []string

	BeamMode        []string // e.g. "IW", "EW"
	FlightDirection string   // "ASCENDING" or "DESCENDING"
	RelativeOrbit   []int
	ProcessingLevel []string // e.g. "GRD_HD"

	MaxResults int
	Output     string // default "geojson"
}

// ToQueryString converts SearchParams to a URL query string
func (p *SearchParams) ToQueryString() string {
	return p.ToURLValues().Encode()
}

// ToURLValues converts SearchParams to url.Values for query string building
func (p *SearchParams) ToURLValues() url.Values {
	values := url.Values{}

	for _, pl := range p.Platform {
		values.Add("platform", pl)
	}

	if p.IntersectsWith != "" {
		values.Set("intersectsWith", p.IntersectsWith)
	}

	if p.Start != nil {
		values.Set("start", formatASFTime(p.Start))
	}
	if p.End != nil {
		values.Set("end", formatASFTime(p.End))
	}

	if len(p.GranuleList) > 0 {
		values.Set("granule_list", strings.Join(p.GranuleList, ","))
	}

	for _, bm := range p.BeamMode {
		values.Add("beamMode", bm)
	}

	if p.FlightDirection != "" {
		values.Set("flightDirection", p.FlightDirection)
	}

	for _, ro := range p.RelativeOrbit {
		values.Add("relativeOrbit", strconv.Itoa(ro))
	}

	if len(p.ProcessingLevel) > 0 {
		values.Set("processingLevel", strings.Join(p.ProcessingLevel, ","))
	}

	// ASF rejects maxResults together with granule_list
	if p.MaxResults > 0 && len(p.GranuleList) == 0 {
		values.Set("maxResults", strconv.Itoa(p.MaxResults))
	}

	if p.Output != "" {
		values.Set("output", p.Output)
	} else {
		values.Set("output", "geojson")
	}

	return values
}

// formatASFTime formats a time.Time for ASF API queries
// ASF expects ISO 8601 format: YYYY-MM-DDTHH:MM:SSZ
func formatASFTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
