package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/robert-malhotra/sarprep/internal/archive"
	"github.com/robert-malhotra/sarprep/internal/location"
	"github.com/robert-malhotra/sarprep/internal/pipeline"
	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/internal/runs"
	"github.com/robert-malhotra/sarprep/internal/stac"
	"github.com/robert-malhotra/sarprep/pkg/geojson"
)

const (
	defaultRunsLimit = 10
	maxRunsLimit     = 100
)

// Stager resolves a run input into a local archive path.
type Stager interface {
	Stage(ctx context.Context, input string) (string, error)
}

// RunDefaults fills the parts of a run request clients cannot choose.
type RunDefaults struct {
	OutputDir     string
	ShapefileDir  string
	Polarizations []polarization.Channel
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	locations *location.Registry
	runner    *runs.Runner
	stager    Stager
	defaults  RunDefaults
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(locations *location.Registry, runner *runs.Runner, defaults RunDefaults, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		locations: locations,
		runner:    runner,
		defaults:  defaults,
		logger:    logger,
	}
}

// WithStager enables URL, s3:// and scene name inputs. Without a stager
// the archive must be a local path.
func (h *Handlers) WithStager(s Stager) *Handlers {
	h.stager = s
	return h
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]any{
		"status":    "ok",
		"locations": h.locations.Count(),
	}
	if active := h.runner.Active(); active != "" {
		response["active_run"] = active
	}
	WriteJSON(w, http.StatusOK, response)
}

// Locations lists every registered location as a FeatureCollection.
// GET /locations
func (h *Handlers) Locations(w http.ResponseWriter, r *http.Request) {
	fc := geojson.FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]*geojson.Feature, 0, h.locations.Count()),
	}
	for _, loc := range h.locations.All() {
		f, err := loc.Feature()
		if err != nil {
			h.logger.Error("failed to render location",
				slog.String("location", loc.Name),
				slog.String("error", err.Error()),
			)
			WriteInternalError(w, "failed to render locations")
			return
		}
		fc.Features = append(fc.Features, f)
	}
	WriteGeoJSON(w, http.StatusOK, fc)
}

// Location returns a single location as a Feature.
// GET /locations/{name}
func (h *Handlers) Location(w http.ResponseWriter, r *http.Request) {
	loc, err := h.locations.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		WriteNotFound(w, err.Error())
		return
	}
	f, err := loc.Feature()
	if err != nil {
		WriteInternalError(w, err.Error())
		return
	}
	WriteGeoJSON(w, http.StatusOK, f)
}

// runRequest is the body of POST /runs.
type runRequest struct {
	Archive       string   `json:"archive"`
	Location      string   `json:"location"`
	Polarizations []string `json:"polarizations"`
}

// CreateRun executes a run synchronously and returns its report.
// POST /runs
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	body.Archive = strings.TrimSpace(body.Archive)
	if body.Archive == "" {
		WriteBadRequest(w, "archive is required")
		return
	}
	if body.Location == "" {
		WriteBadRequest(w, "location is required")
		return
	}

	channels := h.defaults.Polarizations
	if len(body.Polarizations) > 0 {
		parsed, err := polarization.ParseChannels(body.Polarizations)
		if err != nil {
			WriteInvalidParameter(w, err.Error())
			return
		}
		channels = parsed
	}

	if _, err := h.locations.Lookup(body.Location); err != nil {
		WriteNotFound(w, err.Error())
		return
	}

	// Staging can take minutes, so refuse early when busy.
	if active := h.runner.Active(); active != "" {
		WriteConflict(w, fmt.Sprintf("run %s is in progress", active))
		return
	}

	archivePath := body.Archive
	if h.stager != nil {
		staged, err := h.stager.Stage(r.Context(), body.Archive)
		if err != nil {
			h.logger.Warn("failed to stage archive",
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("archive", body.Archive),
				slog.String("error", err.Error()),
			)
			if errors.Is(err, archive.ErrNotFound) {
				WriteNotFound(w, err.Error())
				return
			}
			WriteUpstreamError(w, err.Error())
			return
		}
		archivePath = staged
	}

	report, err := h.runner.Run(r.Context(), pipeline.Request{
		Archive:       archivePath,
		Location:      body.Location,
		Polarizations: channels,
		OutputDir:     h.defaults.OutputDir,
		ShapefileDir:  h.defaults.ShapefileDir,
	})
	if errors.Is(err, runs.ErrRunInProgress) {
		WriteConflict(w, err.Error())
		return
	}
	if report == nil {
		WriteInternalError(w, err.Error())
		return
	}

	w.Header().Set("Location", "/runs/"+report.ID)
	if err == nil {
		WriteJSON(w, http.StatusCreated, report)
		return
	}

	switch pipeline.KindOf(err) {
	case pipeline.KindInvalidRequest:
		WriteBadRequest(w, err.Error())
	case pipeline.KindUnknownLocation:
		WriteNotFound(w, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, ErrCodeRunFailed, err.Error())
	}
}

// runsPage is the body of GET /runs.
type runsPage struct {
	Runs           []*pipeline.Report `json:"runs"`
	NumberMatched  int                `json:"numberMatched"`
	NumberReturned int                `json:"numberReturned"`
	Links          []*stac.Link       `json:"links"`
}

// Runs lists recorded runs, newest first.
// GET /runs?limit=&page=&location=&state=&datetime=
func (h *Handlers) Runs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := intParam(query.Get("limit"), defaultRunsLimit)
	if err != nil || limit < 1 {
		WriteInvalidParameter(w, "limit must be a positive integer")
		return
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	page, err := intParam(query.Get("page"), 1)
	if err != nil || page < 1 {
		WriteInvalidParameter(w, "page must be a positive integer")
		return
	}

	filter, err := runsFilter(query)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	reports, total, err := h.runner.Store().List(r.Context(), filter, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("failed to list runs",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		WriteInternalError(w, "failed to list runs")
		return
	}

	body := runsPage{
		Runs:           reports,
		NumberMatched:  total,
		NumberReturned: len(reports),
		Links: stac.BuildPaginationLinks(stac.PaginationInfo{
			BaseURL:       requestBaseURL(r) + "/runs",
			CurrentPage:   page,
			Limit:         limit,
			TotalCount:    &total,
			ReturnedCount: len(reports),
			QueryParams:   query,
		}),
	}
	WriteJSON(w, http.StatusOK, body)
}

// Run returns a single run report.
// GET /runs/{runId}
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runId")
	report, err := h.runner.Store().Get(r.Context(), id)
	if errors.Is(err, runs.ErrRunNotFound) {
		WriteNotFound(w, fmt.Sprintf("run %q not found", id))
		return
	}
	if err != nil {
		WriteInternalError(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// runsFilter reads the location, state and datetime parameters.
func runsFilter(query url.Values) (runs.Filter, error) {
	f := runs.Filter{Location: query.Get("location")}

	switch state := pipeline.State(query.Get("state")); state {
	case "":
	case pipeline.StateDone, pipeline.StateFailed:
		f.State = state
	default:
		return f, fmt.Errorf("state must be %s or %s", pipeline.StateDone, pipeline.StateFailed)
	}

	if dt := query.Get("datetime"); dt != "" {
		since, until, err := stac.ParseDatetimeInterval(dt)
		if err != nil {
			return f, err
		}
		f.Since, f.Until = since, until
	}
	return f, nil
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

// requestBaseURL reconstructs the scheme and host the client used.
func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
