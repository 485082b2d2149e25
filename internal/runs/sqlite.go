package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/sarprep/internal/pipeline"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    archive TEXT NOT NULL,
    location TEXT NOT NULL,
    state TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    report TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at);`

// SQLiteStore persists reports in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("runs: ensure dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("runs: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runs: schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save inserts or replaces the report.
func (s *SQLiteStore) Save(ctx context.Context, report *pipeline.Report) error {
	if report == nil || report.ID == "" {
		return errors.New("report id is required")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("runs: encode report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO runs (id, archive, location, state, started_at, report)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    archive = excluded.archive,
    location = excluded.location,
    state = excluded.state,
    started_at = excluded.started_at,
    report = excluded.report`,
		report.ID, report.Archive, report.Location, string(report.State), report.StartedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("runs: save %s: %w", report.ID, err)
	}
	return nil
}

// Get returns the report with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*pipeline.Report, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("runs: get %s: %w", id, err)
	}
	return decodeReport(data)
}

// List returns reports matching f ordered by start time, newest first.
func (s *SQLiteStore) List(ctx context.Context, f Filter, limit, offset int) ([]*pipeline.Report, int, error) {
	where, args := filterClause(f)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("runs: count: %w", err)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM runs`+where+` ORDER BY started_at DESC, id ASC LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("runs: list: %w", err)
	}
	defer rows.Close()

	out := []*pipeline.Report{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, 0, fmt.Errorf("runs: scan: %w", err)
		}
		report, err := decodeReport(data)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, report)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("runs: list: %w", err)
	}
	return out, total, nil
}

func filterClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Location != "" {
		conds = append(conds, "location = ?")
		args = append(args, f.Location)
	}
	if f.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(f.State))
	}
	if f.Since != nil {
		conds = append(conds, "started_at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if f.Until != nil {
		conds = append(conds, "started_at <= ?")
		args = append(args, f.Until.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeReport(data string) (*pipeline.Report, error) {
	var report pipeline.Report
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("runs: decode report: %w", err)
	}
	return &report, nil
}
