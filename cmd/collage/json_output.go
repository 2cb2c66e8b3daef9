package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"collage/internal/imaging"
	"collage/internal/queue"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jobJSON is the machine-readable form of a job in `queue list --json`.
// In-memory inputs are reported by label rather than by content.
type jobJSON struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Layout      string     `json:"layout"`
	BorderWidth int        `json:"border_width"`
	BorderColor string     `json:"border_color"`
	Inputs      []string   `json:"inputs"`
	Attempt     int        `json:"attempt"`
	ResultRef   string     `json:"result_ref,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

func newJobJSON(job *queue.Job) jobJSON {
	inputs := make([]string, 0, len(job.Inputs))
	for _, in := range job.Inputs {
		inputs = append(inputs, in.Label())
	}
	return jobJSON{
		ID:          job.ID,
		State:       string(job.State),
		Layout:      string(job.Layout),
		BorderWidth: job.BorderWidth,
		BorderColor: imaging.FormatColor(job.BorderColor),
		Inputs:      inputs,
		Attempt:     job.Attempt,
		ResultRef:   job.ResultRef,
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		FinishedAt:  job.FinishedAt,
	}
}

func jobsJSON(jobs []*queue.Job) []jobJSON {
	out := make([]jobJSON, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, newJobJSON(job))
	}
	return out
}
