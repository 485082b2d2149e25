// Package stac describes finished runs as STAC Items, wrapping
// planetlabs/go-stac for the core types.
package stac

import (
	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item  = gostac.Item
	Asset = gostac.Asset
	Link  = gostac.Link
)

// Version is the STAC version written into items.
const Version = "1.0.0"

// CollectionID is the collection of every run item.
const CollectionID = "sentinel-1-grd-terminals"

// STAC extension URIs
const (
	ExtensionSAR        = "https://stac-extensions.github.io/sar/v1.0.0/schema.json"
	ExtensionSat        = "https://stac-extensions.github.io/sat/v1.0.0/schema.json"
	ExtensionProcessing = "https://stac-extensions.github.io/processing/v1.0.0/schema.json"
)

// Extensions lists the extensions used by run items.
var Extensions = []string{ExtensionSAR, ExtensionSat, ExtensionProcessing}

// Media types of run assets.
const (
	MediaTypeGeoTIFF = "image/tiff; application=geotiff"
	MediaTypeXML     = "application/xml"
	MediaTypeJSON    = "application/json"
	MediaTypeGeoJSON = "application/geo+json"
)

// NewItem creates a new STAC Item with the given ID and collection.
func NewItem(id, collection string) *gostac.Item {
	return &gostac.Item{
		Version:    Version,
		Id:         id,
		Collection: collection,
		Properties: make(map[string]any),
		Assets:     make(map[string]*gostac.Asset),
		Links:      make([]*gostac.Link, 0),
	}
}
