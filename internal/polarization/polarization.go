// Package polarization derives the polarization channels carried by a
// Sentinel-1 product from its file name.
package polarization

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Channel is a single transmit/receive polarization channel.
type Channel string

// Polarization channels.
const (
	HH Channel = "HH"
	HV Channel = "HV"
	VH Channel = "VH"
	VV Channel = "VV"
)

var (
	// ErrUnrecognizedPolarization is returned when the polarization indicator
	// is not one of the known codes.
	ErrUnrecognizedPolarization = errors.New("unrecognized polarization")

	// ErrMalformedFilename is returned when the file name does not have enough
	// underscore-separated fields to carry a polarization indicator.
	ErrMalformedFilename = errors.New("malformed product filename")

	// ErrInvalidChannel is returned by ParseChannel for unknown labels.
	ErrInvalidChannel = errors.New("invalid polarization channel")
)

// indicatorField is the index of the underscore-separated field whose
// characters [2,4) carry the polarization indicator.
const indicatorField = 3

// BaseName returns the product name of path: the directory is removed and
// everything from the first '.' on is dropped.
func BaseName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

// Indicator extracts the two-character polarization indicator from a base
// file name, e.g. "DV" from "S1A_IW_GRDH_1SDV_...".
func Indicator(base string) (string, error) {
	fields := strings.Split(base, "_")
	if len(fields) <= indicatorField {
		return "", fmt.Errorf("%w: %q has %d fields, need at least %d", ErrMalformedFilename, base, len(fields), indicatorField+1)
	}
	field := fields[indicatorField]
	if len(field) < 4 {
		return "", fmt.Errorf("%w: %q field %q is shorter than 4 characters", ErrMalformedFilename, base, field)
	}
	return field[2:4], nil
}

// Classify returns the channels carried by the product with the given base
// file name. The returned slice is freshly allocated and ordered as
// follows: DV gives [VH VV], DH gives [HH HV], SH and HH give [HH] and SV
// gives [VV]. Matching is exact and case-sensitive.
func Classify(base string) ([]Channel, error) {
	code, err := Indicator(base)
	if err != nil {
		return nil, err
	}

	switch code {
	case "DV":
		return []Channel{VH, VV}, nil
	case "DH":
		return []Channel{HH, HV}, nil
	case "SH", "HH":
		return []Channel{HH}, nil
	case "SV":
		return []Channel{VV}, nil
	default:
		return nil, fmt.Errorf("%w: indicator %q in %q", ErrUnrecognizedPolarization, code, base)
	}
}

// ClassifyPath is Classify applied to BaseName(path).
func ClassifyPath(path string) ([]Channel, error) {
	return Classify(BaseName(path))
}

// Contains reports whether ch is one of channels.
func Contains(channels []Channel, ch Channel) bool {
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}

// ParseChannel parses an upper-case channel label.
func ParseChannel(s string) (Channel, error) {
	switch ch := Channel(s); ch {
	case HH, HV, VH, VV:
		return ch, nil
	default:
		return "", fmt.Errorf("%w: %q (want one of HH, HV, VH, VV)", ErrInvalidChannel, s)
	}
}

// ParseChannels parses a list of channel labels, dropping duplicates while
// keeping the first occurrence order.
func ParseChannels(labels []string) ([]Channel, error) {
	out := make([]Channel, 0, len(labels))
	for _, l := range labels {
		ch, err := ParseChannel(l)
		if err != nil {
			return nil, err
		}
		if !Contains(out, ch) {
			out = append(out, ch)
		}
	}
	return out, nil
}

// Strings returns the labels of channels.
func Strings(channels []Channel) []string {
	out := make([]string, len(channels))
	for i, c := range channels {
		out[i] = string(c)
	}
	return out
}
