package pipeline

import (
	"time"

	"github.com/robert-malhotra/sarprep/internal/dem"
	"github.com/robert-malhotra/sarprep/internal/geocode"
	"github.com/robert-malhotra/sarprep/internal/orbit"
	"github.com/robert-malhotra/sarprep/internal/polarization"
	"github.com/robert-malhotra/sarprep/internal/product"
)

// State is a step of a run.
type State string

// States in the order a run passes through them.
const (
	StateStart                  State = "Start"
	StateLocationResolved       State = "LocationResolved"
	StateProductIdentified      State = "ProductIdentified"
	StateOrbitFetched           State = "OrbitFetched"
	StateDEMPrepared            State = "DemPrepared"
	StatePolarizationClassified State = "PolarizationClassified"
	StateDispatched             State = "Dispatched"
	StateSkipped                State = "Skipped"
	StateDone                   State = "Done"
	StateFailed                 State = "Failed"
)

// Transition records entering a state.
type Transition struct {
	State  State                `json:"state"`
	At     time.Time            `json:"at"`
	Detail polarization.Channel `json:"channel,omitempty"`
}

// OrbitReport is the outcome of the orbit step.
type OrbitReport struct {
	File  *orbit.File `json:"file,omitempty"`
	Error string      `json:"error,omitempty"`
}

// DispatchRecord is the outcome of the dispatch guard for one channel.
type DispatchRecord struct {
	Polarization polarization.Channel `json:"polarization"`
	State        State                `json:"state"`
	Result       *geocode.Result      `json:"result,omitempty"`
	Reason       string               `json:"reason,omitempty"`
}

// Report describes a run from start to finish. It is returned even when the
// run fails.
type Report struct {
	ID        string                 `json:"id,omitempty"`
	Archive   string                 `json:"archive"`
	Location  string                 `json:"location"`
	Requested []polarization.Channel `json:"requested"`

	Product       *product.Descriptor    `json:"product,omitempty"`
	Orbit         OrbitReport            `json:"orbit"`
	ShapefilePath string                 `json:"shapefile_path,omitempty"`
	DEM           *dem.Result            `json:"dem,omitempty"`
	Channels      []polarization.Channel `json:"channels"`
	// ClassificationError is set when the polarization indicator is not
	// recognised; no channel is dispatched then.
	ClassificationError string           `json:"classification_error,omitempty"`
	OutputDir           string           `json:"output_dir,omitempty"`
	Dispatches          []DispatchRecord `json:"dispatches,omitempty"`
	ItemPath            string           `json:"item_path,omitempty"`

	State       State        `json:"state"`
	Error       string       `json:"error,omitempty"`
	ErrorKind   Kind         `json:"error_kind,omitempty"`
	Transitions []Transition `json:"transitions"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
}

// Geocoded returns the results of every dispatched channel.
func (r *Report) Geocoded() []geocode.Result {
	var out []geocode.Result
	for _, d := range r.Dispatches {
		if d.State == StateDispatched && d.Result != nil {
			out = append(out, *d.Result)
		}
	}
	return out
}

// States returns the states the run passed through, in order.
func (r *Report) States() []State {
	out := make([]State, len(r.Transitions))
	for i, t := range r.Transitions {
		out[i] = t.State
	}
	return out
}
