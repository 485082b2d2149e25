package dem

import "errors"

var (
	// ErrNoDEMTiles is returned when no DEM tile exists for the area, for
	// example when it lies entirely over the sea.
	ErrNoDEMTiles = errors.New("no DEM tiles available for area")

	// ErrUnsupportedDEM is returned for DEM types the loader cannot fetch.
	ErrUnsupportedDEM = errors.New("unsupported DEM type")
)
