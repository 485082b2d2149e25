// Package runs keeps a ledger of pipeline runs and serializes their
// execution.
package runs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/robert-malhotra/sarprep/internal/pipeline"
)

var (
	// ErrRunNotFound is returned for unknown or expired run ids.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunInProgress is returned when a run is requested while another
	// one is executing.
	ErrRunInProgress = errors.New("another run is in progress")
)

// Store persists run reports.
type Store interface {
	// Save inserts or replaces the report under report.ID.
	Save(ctx context.Context, report *pipeline.Report) error

	// Get returns the report with the given id.
	Get(ctx context.Context, id string) (*pipeline.Report, error)

	// List returns up to limit reports matching f, newest first, after
	// skipping offset, together with the total number of matches.
	List(ctx context.Context, f Filter, limit, offset int) ([]*pipeline.Report, int, error)

	Close() error
}

// Filter selects reports. Zero fields match everything. Since and Until
// bound the start time inclusively.
type Filter struct {
	Location string
	State    pipeline.State
	Since    *time.Time
	Until    *time.Time
}

// Match reports whether r passes the filter.
func (f Filter) Match(r *pipeline.Report) bool {
	if f.Location != "" && r.Location != f.Location {
		return false
	}
	if f.State != "" && r.State != f.State {
		return false
	}
	if f.Since != nil && r.StartedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && r.StartedAt.After(*f.Until) {
		return false
	}
	return true
}

// NewID creates a random run id.
func NewID() (string, error) {
	b := make([]byte, 16) // 128 bits = 32 hex chars
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
