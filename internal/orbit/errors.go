package orbit

import "errors"

var (
	// ErrNoMatchingOrbit is returned when neither the cache nor the remote
	// archive holds an orbit file covering the product.
	ErrNoMatchingOrbit = errors.New("no matching orbit file")

	// ErrInvalidName is returned for file names that are not orbit files.
	ErrInvalidName = errors.New("invalid orbit file name")
)
