package stac

import (
	"fmt"
	"strings"
	"time"
)

// ParseDatetimeInterval parses a STAC datetime parameter into its bounds.
// Supported forms:
//   - "2023-03-13T00:00:00Z" (a single instant, start == end)
//   - "2023-03-01T00:00:00Z/2023-03-31T23:59:59Z"
//   - "2023-03-01T00:00:00Z/.." or "../2023-03-31T23:59:59Z"
//   - ".." or "../.." (unbounded, both nil)
func ParseDatetimeInterval(dt string) (start, end *time.Time, err error) {
	dt = strings.TrimSpace(dt)
	if dt == "" {
		return nil, nil, fmt.Errorf("datetime cannot be empty")
	}
	if dt == ".." || dt == "../.." {
		return nil, nil, nil
	}

	if !strings.Contains(dt, "/") {
		t, err := time.Parse(time.RFC3339, dt)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid datetime format, expected RFC 3339: %w", err)
		}
		return &t, &t, nil
	}

	parts := strings.Split(dt, "/")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid datetime interval %q, expected 'start/end'", dt)
	}

	if start, err = parseBound(parts[0]); err != nil {
		return nil, nil, fmt.Errorf("invalid start datetime: %w", err)
	}
	if end, err = parseBound(parts[1]); err != nil {
		return nil, nil, fmt.Errorf("invalid end datetime: %w", err)
	}

	if start != nil && end != nil && start.After(*end) {
		return nil, nil, fmt.Errorf("start datetime (%s) must not be after end datetime (%s)",
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return start, end, nil
}

func parseBound(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == ".." {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
