package location

import "errors"

// ErrUnknownLocation is returned when a location name is not in the registry.
var ErrUnknownLocation = errors.New("unknown location")
