package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, inputs_json, layout, border_width, border_color, cleanup_inputs, state, attempt, result_ref, error_message, created_at, updated_at, started_at, finished_at, heartbeat_at"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            string
		inputsJSON    string
		layout        string
		borderWidth   int
		borderColor   string
		cleanupInputs sql.NullInt64
		stateStr      string
		attempt       int
		resultRef     sql.NullString
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		startedRaw    sql.NullString
		finishedRaw   sql.NullString
		heartbeatRaw  sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&inputsJSON,
		&layout,
		&borderWidth,
		&borderColor,
		&cleanupInputs,
		&stateStr,
		&attempt,
		&resultRef,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:          id,
		Layout:      Layout(layout),
		BorderWidth: borderWidth,
		State:       State(stateStr),
		Attempt:     attempt,
		ResultRef:   resultRef.String,
		Error:       errorMessage.String,
	}
	if cleanupInputs.Valid {
		job.CleanupInputs = cleanupInputs.Int64 != 0
	}
	if err := json.Unmarshal([]byte(inputsJSON), &job.Inputs); err != nil {
		return nil, fmt.Errorf("decode inputs for job %s: %w", id, err)
	}
	colorValue, err := DecodeColor(borderColor)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	job.BorderColor = colorValue

	if created, err := ParseTime(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := ParseTime(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = parseOptionalTime(startedRaw)
	job.FinishedAt = parseOptionalTime(finishedRaw)
	job.HeartbeatAt = parseOptionalTime(heartbeatRaw)
	return job, nil
}

func scanJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func parseOptionalTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := ParseTime(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// FormatTime renders a timestamp in the fixed-width UTC storage form.
func FormatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

// ParseTime reads a stored timestamp.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
