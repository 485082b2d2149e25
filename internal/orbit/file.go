// Package orbit locates and downloads Sentinel-1 orbit state vector files
// (AUX_POEORB, AUX_RESORB) for a product.
package orbit

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/robert-malhotra/sarprep/internal/product"
)

// Orbit types accepted by the fetcher.
const (
	TypePrecise    = "POE"
	TypeRestituted = "RES"
)

const eofTimeLayout = "20060102T150405"

var eofRE = regexp.MustCompile(`^(S1[A-D])_OPER_AUX_(POEORB|RESORB)_OPOD_([0-9]{8}T[0-9]{6})_V([0-9]{8}T[0-9]{6})_([0-9]{8}T[0-9]{6})\.EOF(\.zip)?$`)

// File is an orbit file identified by its name.
type File struct {
	Name       string    `json:"name"`
	Path       string    `json:"path,omitempty"`
	Mission    string    `json:"mission"`
	Family     string    `json:"family"`
	Produced   time.Time `json:"produced"`
	ValidStart time.Time `json:"valid_start"`
	ValidStop  time.Time `json:"valid_stop"`
}

// ParseName parses an orbit file name such as
// S1A_OPER_AUX_POEORB_OPOD_20230402T080705_V20230312T225942_20230314T005942.EOF.
func ParseName(name string) (*File, error) {
	base := filepath.Base(name)
	m := eofRE.FindStringSubmatch(base)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, base)
	}
	produced, err := time.Parse(eofTimeLayout, m[3])
	if err != nil {
		return nil, fmt.Errorf("%w: production time in %q: %v", ErrInvalidName, base, err)
	}
	start, err := time.Parse(eofTimeLayout, m[4])
	if err != nil {
		return nil, fmt.Errorf("%w: validity start in %q: %v", ErrInvalidName, base, err)
	}
	stop, err := time.Parse(eofTimeLayout, m[5])
	if err != nil {
		return nil, fmt.Errorf("%w: validity stop in %q: %v", ErrInvalidName, base, err)
	}
	return &File{
		Name:       base,
		Mission:    m[1],
		Family:     m[2],
		Produced:   produced,
		ValidStart: start,
		ValidStop:  stop,
	}, nil
}

// Covers reports whether f is valid for the whole acquisition of d.
func (f *File) Covers(d *product.Descriptor) bool {
	return f.Mission == d.Mission &&
		!f.ValidStart.After(d.Start) &&
		!f.ValidStop.Before(d.Stop)
}

// Best returns the most recently produced file of family covering d, or
// nil if none does.
func Best(files []*File, family string, d *product.Descriptor) *File {
	var matches []*File
	for _, f := range files {
		if f.Family == family && f.Covers(d) {
			matches = append(matches, f)
		}
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].Produced.Equal(matches[j].Produced) {
			return matches[i].Produced.After(matches[j].Produced)
		}
		// Prefer an unzipped copy when both exist.
		return !strings.HasSuffix(matches[i].Name, ".zip") && strings.HasSuffix(matches[j].Name, ".zip")
	})
	return matches[0]
}

// family maps an orbit type to its product family.
func family(orbitType string) (string, error) {
	switch orbitType {
	case TypePrecise:
		return "POEORB", nil
	case TypeRestituted:
		return "RESORB", nil
	default:
		return "", fmt.Errorf("unsupported orbit type %q", orbitType)
	}
}
