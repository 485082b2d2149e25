package asf

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

// SearchResponse is ASF's GeoJSON FeatureCollection response.
type SearchResponse struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single ASF search result.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties Properties        `json:"properties"`
}

// Properties contains the ASF metadata used for product enrichment and
// archive staging.
type Properties struct {
	SceneName       string `json:"sceneName"`
	FileID          string `json:"fileID"`
	Platform        string `json:"platform"`
	BeamModeType    string `json:"beamModeType"`
	Polarization    string `json:"polarization"`
	FlightDirection string `json:"flightDirection"`
	FrameNumber     *int   `json:"frameNumber"`
	AbsoluteOrbit   *int   `json:"absoluteOrbit"`
	PathNumber      *int   `json:"pathNumber"`
	ProcessingLevel string `json:"processingLevel"`
	StartTime       string `json:"startTime"`
	StopTime        string `json:"stopTime"`

	URL      string          `json:"url"`
	FileName string          `json:"fileName"`
	Bytes    json.RawMessage `json:"bytes"` // number or string depending on the endpoint
	MD5Sum   string          `json:"md5sum"`
}

// Size returns the archive size in bytes, or 0 if ASF did not report it.
func (p *Properties) Size() int64 {
	if len(p.Bytes) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(p.Bytes, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(p.Bytes, &s); err == nil {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

// Start parses the acquisition start time.
func (p *Properties) Start() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, p.StartTime)
}
