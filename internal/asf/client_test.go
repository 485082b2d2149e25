package asf

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

const testScene = "S1A_IW_GRDH_1SDV_20230313T175210_20230313T175235_047629_05B868_4E5C"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sceneFeatures() []Feature {
	abs := 47629
	return []Feature{
		{
			Type: "Feature",
			Properties: Properties{
				SceneName:       testScene,
				FileID:          testScene + "-METADATA_GRD_HD",
				ProcessingLevel: "METADATA_GRD_HD",
				FileName:        testScene + ".iso.xml",
			},
		},
		{
			Type: "Feature",
			Properties: Properties{
				SceneName:       testScene,
				FileID:          testScene + "-GRD_HD",
				Platform:        "Sentinel-1A",
				FlightDirection: "ASCENDING",
				AbsoluteOrbit:   &abs,
				ProcessingLevel: "GRD_HD",
				StartTime:       "2023-03-13T17:52:10.000Z",
				URL:             "https://datapool.asf.alaska.edu/GRD_HD/SA/" + testScene + ".zip",
				FileName:        testScene + ".zip",
				Bytes:           json.RawMessage(`1024`),
			},
		},
	}
}

func TestClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET request, got %s", r.Method)
		}
		if r.URL.Path != "/services/search/param" {
			t.Errorf("Expected path /services/search/param, got %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("processingLevel"); got != "GRD_HD" {
			t.Errorf("processingLevel = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResponse{Type: "FeatureCollection", Features: sceneFeatures()[1:]})
	}))
	defer server.Close()

	client := NewClient(server.URL, 30*time.Second).WithLogger(quietLogger())

	result, err := client.Search(context.Background(), SearchParams{
		ProcessingLevel: []string{"GRD_HD"},
		IntersectsWith:  "POLYGON((-2.9 53.2,-2.8 53.2,-2.8 53.3,-2.9 53.2))",
		MaxResults:      10,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(result.Features) != 1 {
		t.Fatalf("Expected 1 feature, got %d", len(result.Features))
	}
	if result.Features[0].Properties.Platform != "Sentinel-1A" {
		t.Errorf("Expected platform Sentinel-1A, got %s", result.Features[0].Properties.Platform)
	}
}

func TestClient_Search_Token(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(SearchResponse{Type: "FeatureCollection"})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second).WithLogger(quietLogger()).WithToken("edl-token")
	if _, err := client.Search(context.Background(), SearchParams{}); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if auth != "Bearer edl-token" {
		t.Errorf("Authorization header = %q", auth)
	}
}

func TestClient_Search_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream down", http.StatusBadGateway)
			},
		},
		{
			name: "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("{not json"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(server.URL, time.Second).WithLogger(quietLogger())
			if _, err := client.Search(context.Background(), SearchParams{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestClient_GetGranule(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		json.NewEncoder(w).Encode(SearchResponse{Type: "FeatureCollection", Features: sceneFeatures()})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second).WithLogger(quietLogger())

	feature, err := client.GetGranule(context.Background(), testScene)
	if err != nil {
		t.Fatalf("GetGranule failed: %v", err)
	}

	if !strings.Contains(query, "granule_list="+testScene) {
		t.Errorf("query %q does not carry granule_list", query)
	}
	if strings.Contains(query, "maxResults") {
		t.Errorf("query %q must not carry maxResults with granule_list", query)
	}
	if feature.Properties.ProcessingLevel != "GRD_HD" {
		t.Errorf("expected GRD_HD record, got %s", feature.Properties.ProcessingLevel)
	}
	if feature.Properties.Size() != 1024 {
		t.Errorf("Size() = %d", feature.Properties.Size())
	}
	start, err := feature.Properties.Start()
	if err != nil || !start.Equal(time.Date(2023, 3, 13, 17, 52, 10, 0, time.UTC)) {
		t.Errorf("Start() = %v, %v", start, err)
	}
}

func TestClient_GetGranule_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(SearchResponse{Type: "FeatureCollection", Features: []Feature{}})
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second).WithLogger(quietLogger())

	_, err := client.GetGranule(context.Background(), testScene)
	if !errors.Is(err, ErrGranuleNotFound) {
		t.Errorf("expected ErrGranuleNotFound, got %v", err)
	}
}

func TestClient_FindScenes(t *testing.T) {
	var query map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		json.NewEncoder(w).Encode(SearchResponse{Type: "FeatureCollection", Features: sceneFeatures()})
	}))
	defer server.Close()

	area, err := geojson.NewPolygon([][][]float64{{{-2.9, 53.2}, {-2.8, 53.2}, {-2.8, 53.3}, {-2.9, 53.2}}})
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)

	client := NewClient(server.URL, time.Second).WithLogger(quietLogger())
	scenes, err := client.FindScenes(context.Background(), SceneQuery{
		Area:            area,
		Start:           &start,
		FlightDirection: "ASCENDING",
		RelativeOrbit:   30,
		MaxResults:      5,
	})
	if err != nil {
		t.Fatalf("FindScenes failed: %v", err)
	}

	if len(scenes) != 1 || scenes[0].Properties.ProcessingLevel != "GRD_HD" {
		t.Fatalf("expected the GRD_HD record only, got %+v", scenes)
	}
	checks := map[string]string{
		"platform":        "Sentinel-1",
		"processingLevel": "GRD_HD",
		"flightDirection": "ASCENDING",
		"relativeOrbit":   "30",
		"maxResults":      "5",
		"start":           "2023-03-01T00:00:00Z",
	}
	for key, want := range checks {
		if got := query[key]; len(got) != 1 || got[0] != want {
			t.Errorf("%s = %v, want %s", key, got, want)
		}
	}
	if got := query["intersectsWith"]; len(got) != 1 || !strings.HasPrefix(got[0], "POLYGON") {
		t.Errorf("intersectsWith = %v", got)
	}
	if _, ok := query["beamMode"]; ok {
		t.Error("beamMode should be omitted when empty")
	}
}

func TestClient_FindScenes_NoArea(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", time.Second).WithLogger(quietLogger())
	if _, err := client.FindScenes(context.Background(), SceneQuery{}); err == nil {
		t.Error("expected an error without an area")
	}
}

func TestPropertiesSize(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{`2048`, 2048},
		{`"4096"`, 4096},
		{`"n/a"`, 0},
		{``, 0},
	}
	for _, tt := range tests {
		p := Properties{Bytes: json.RawMessage(tt.raw)}
		if got := p.Size(); got != tt.want {
			t.Errorf("Size(%s) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
