package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies failures of a run.
type Kind string

const (
	// KindFilesystem is a directory reset or file write failure. Fatal.
	KindFilesystem Kind = "FilesystemError"
	// KindInvalidRequest is an incomplete or malformed run request. Fatal.
	KindInvalidRequest Kind = "InvalidRequest"
	// KindUnknownLocation is a location name missing from the registry. Fatal.
	KindUnknownLocation Kind = "UnknownLocation"
	// KindOrbitFetch is an orbit lookup failure. The run continues.
	KindOrbitFetch Kind = "OrbitFetchError"
	// KindUnrecognizedPolarization is an unknown polarization indicator.
	// The run completes without geocoding.
	KindUnrecognizedPolarization Kind = "UnrecognizedPolarization"
	// KindChannelNotRequested marks a requested channel the product does
	// not carry. Expected, not an error.
	KindChannelNotRequested Kind = "ChannelNotRequested"
	// KindExternalTool is a failure of identification, DEM loading or
	// geocoding. Fatal, never retried.
	KindExternalTool Kind = "ExternalToolError"
)

// StepError is a failure during one state of a run.
type StepError struct {
	Kind Kind
	Step State
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Fatal reports whether the failure stops the run.
func (e *StepError) Fatal() bool {
	switch e.Kind {
	case KindFilesystem, KindInvalidRequest, KindUnknownLocation, KindExternalTool:
		return true
	default:
		return false
	}
}

// KindOf returns the Kind of the first StepError in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

func stepError(kind Kind, step State, err error) *StepError {
	return &StepError{Kind: kind, Step: step, Err: err}
}
