package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

var expectedJobColumns = strings.Split(strings.ReplaceAll(jobColumns, " ", ""), ",")

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Remove deletes a job that no worker holds. It reports whether a row was deleted
// and returns ErrJobActive for jobs in the ACTIVE state.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE id = ? AND state != ?`, id, StateActive)
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	if affected > 0 {
		return true, nil
	}
	job, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if job != nil && job.State == StateActive {
		return false, ErrJobActive
	}
	return false, nil
}

// ClearTerminal deletes every COMPLETED and FAILED job.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE state IN (?, ?)`, StateCompleted, StateFailed)
	if err != nil {
		return 0, fmt.Errorf("clear terminal jobs: %w", err)
	}
	return res.RowsAffected()
}

// CheckHealth returns diagnostic information about the queue database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("queue database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat queue database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("queue database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.Ping(connCtx); err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.DatabaseReadable = true

	version, _, err := readSchemaVersion(connCtx, s.db)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	columns, err := s.tableColumns(connCtx, "jobs")
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.TableExists = len(columns) > 0
	if health.TableExists {
		for _, col := range expectedJobColumns {
			if _, ok := columns[col]; !ok {
				health.MissingColumns = append(health.MissingColumns, col)
			}
		}
		sort.Strings(health.MissingColumns)

		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM jobs").Scan(&health.TotalJobs); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count jobs: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

func (s *Store) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	return columns, nil
}
