package runs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/robert-malhotra/sarprep/internal/pipeline"
)

// entry holds a report with its expiration time
type entry struct {
	report    *pipeline.Report
	expiresAt time.Time
}

// MemoryStore implements Store using in-memory storage with TTL.
// Reports are lost on restart; use SQLiteStore to keep them.
type MemoryStore struct {
	mu       sync.RWMutex
	reports  map[string]entry
	ttl      time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a new in-memory store.
// ttl specifies how long reports are kept before expiration.
// cleanupInterval specifies how often to run the cleanup routine.
func NewMemoryStore(ttl, cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		reports:  make(map[string]entry),
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}

	go s.cleanupLoop(cleanupInterval)

	return s
}

// Save stores a copy of report.
func (s *MemoryStore) Save(ctx context.Context, report *pipeline.Report) error {
	if report == nil || report.ID == "" {
		return errors.New("report id is required")
	}
	cp := *report

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[report.ID] = entry{
		report:    &cp,
		expiresAt: time.Now().Add(s.ttl),
	}
	return nil
}

// Get returns the report with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*pipeline.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.reports[id]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, ErrRunNotFound
	}
	return e.report, nil
}

// List returns live reports matching f ordered by start time, newest first.
func (s *MemoryStore) List(ctx context.Context, f Filter, limit, offset int) ([]*pipeline.Report, int, error) {
	s.mu.RLock()
	now := time.Now()
	all := make([]*pipeline.Report, 0, len(s.reports))
	for _, e := range s.reports {
		if now.After(e.expiresAt) || !f.Match(e.report) {
			continue
		}
		all = append(all, e.report)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].StartedAt.Equal(all[j].StartedAt) {
			return all[i].StartedAt.After(all[j].StartedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if offset >= total {
		return []*pipeline.Report{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// Close stops the background cleanup goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	return nil
}

// cleanupLoop periodically removes expired reports.
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopChan:
			return
		}
	}
}

// cleanup removes all expired reports.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, e := range s.reports {
		if now.After(e.expiresAt) {
			delete(s.reports, id)
		}
	}
}

// Count returns the number of stored reports, including expired ones not
// yet cleaned up.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
