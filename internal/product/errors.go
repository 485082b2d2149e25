package product

import "errors"

var (
	// ErrUnidentifiedProduct is returned when an archive is not a readable
	// Sentinel-1 product.
	ErrUnidentifiedProduct = errors.New("unidentified product")

	// ErrMissingManifest is returned when an archive has no manifest.safe.
	ErrMissingManifest = errors.New("manifest.safe not found")
)
