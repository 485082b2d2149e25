package geocode

import (
	"encoding/xml"
	"fmt"
	"strconv"
)

// graph is a SNAP Graph Processing Framework document.
type graph struct {
	XMLName xml.Name `xml:"graph"`
	ID      string   `xml:"id,attr"`
	Version string   `xml:"version"`
	Nodes   []node   `xml:"node"`
}

type node struct {
	ID         string     `xml:"id,attr"`
	Operator   string     `xml:"operator"`
	Sources    *sources   `xml:"sources"`
	Parameters parameters `xml:"parameters"`
}

type sources struct {
	SourceProduct sourceProduct `xml:"sourceProduct"`
}

type sourceProduct struct {
	RefID string `xml:"refid,attr"`
}

type parameters struct {
	Class  string  `xml:"class,attr"`
	Params []param `xml:",any"`
}

type param struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func p(name, value string) param {
	return param{XMLName: xml.Name{Local: name}, Value: value}
}

// graphSpec holds everything needed to render the processing chain.
type graphSpec struct {
	Input        string
	Output       string
	Polarization string
	Region       string // WKT in EPSG:4326
	Params       Params
}

// buildGraph renders the chain Read, Apply-Orbit-File, ThermalNoiseRemoval,
// Calibration, Speckle-Filter, Terrain-Correction, Subset and Write.
func buildGraph(s graphSpec) ([]byte, error) {
	sigma, gamma, beta, err := calibrationBands(s.Params.RefArea)
	if err != nil {
		return nil, err
	}
	orbitType, err := orbitLabel(s.Params.OrbitType)
	if err != nil {
		return nil, err
	}

	var nodes []node
	add := func(id string, params ...param) {
		n := node{
			ID:         id,
			Operator:   id,
			Parameters: parameters{Class: "com.bc.ceres.binding.dom.XppDomElement", Params: params},
		}
		if len(nodes) > 0 {
			n.Sources = &sources{SourceProduct: sourceProduct{RefID: nodes[len(nodes)-1].ID}}
		}
		nodes = append(nodes, n)
	}

	add("Read",
		p("file", s.Input),
		p("copyMetadata", "true"),
	)
	add("Apply-Orbit-File",
		p("orbitType", orbitType),
		p("polyDegree", "3"),
		p("continueOnFail", "true"),
	)
	add("ThermalNoiseRemoval",
		p("selectedPolarisations", s.Polarization),
		p("removeThermalNoise", "true"),
	)
	add("Calibration",
		p("selectedPolarisations", s.Polarization),
		p("outputImageInComplex", "false"),
		p("outputImageScaleInDb", "false"),
		p("outputSigmaBand", strconv.FormatBool(sigma)),
		p("outputGammaBand", strconv.FormatBool(gamma)),
		p("outputBetaBand", strconv.FormatBool(beta)),
	)
	if s.Params.SpeckleFilter != "" {
		add("Speckle-Filter",
			p("filter", s.Params.SpeckleFilter),
			p("estimateENL", "true"),
		)
	}
	add("Terrain-Correction",
		p("demName", s.Params.DEMName),
		p("demResamplingMethod", s.Params.ResamplingMethod),
		p("imgResamplingMethod", s.Params.ResamplingMethod),
		p("pixelSpacingInMeter", strconv.FormatFloat(s.Params.PixelSpacing, 'f', -1, 64)),
		p("mapProjection", "WGS84(DD)"),
		p("nodataValueAtSea", "false"),
		p("saveSelectedSourceBand", "true"),
	)
	add("Subset",
		p("geoRegion", s.Region),
		p("subSamplingX", "1"),
		p("subSamplingY", "1"),
		p("copyMetadata", "true"),
	)
	add("Write",
		p("file", s.Output),
		p("formatName", "GeoTIFF"),
	)

	out, err := xml.MarshalIndent(graph{ID: "Graph", Version: "1.0", Nodes: nodes}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render graph: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func calibrationBands(refArea string) (sigma, gamma, beta bool, err error) {
	switch refArea {
	case RefAreaSigma0:
		return true, false, false, nil
	case RefAreaGamma0:
		return false, true, false, nil
	case RefAreaBeta0:
		return false, false, true, nil
	default:
		return false, false, false, fmt.Errorf("unsupported reference area %q", refArea)
	}
}

// orbitLabel maps an orbit type to the Apply-Orbit-File option. Empty means
// precise.
func orbitLabel(orbitType string) (string, error) {
	switch orbitType {
	case OrbitPrecise, "":
		return "Sentinel Precise (Auto Download)", nil
	case OrbitRestituted:
		return "Sentinel Restituted (Auto Download)", nil
	default:
		return "", fmt.Errorf("unsupported orbit type %q", orbitType)
	}
}
