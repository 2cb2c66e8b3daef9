package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"collage/internal/artifact"
	"collage/internal/queue"
	"collage/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q queueaccess.Queue) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				rows := buildQueueStatsRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(statsColumns, rows))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var stateFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			states := make([]queue.State, 0, len(stateFilters))
			for _, raw := range stateFilters {
				state, ok := queue.ParseState(raw)
				if !ok {
					return fmt.Errorf("unknown state %q", raw)
				}
				states = append(states, state)
			}

			return ctx.withQueue(cmd.Context(), func(q queueaccess.Queue) error {
				jobs, err := q.List(cmd.Context(), states...)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, jobsJSON(jobs))
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(listColumns, buildQueueListRows(jobs, time.Now(), shouldColorize(out))))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&stateFilters, "state", "s", nil, "Filter by state (repeatable)")
	return cmd
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	var keepArtifact bool

	cmd := &cobra.Command{
		Use:   "remove <job-id>...",
		Short: "Remove jobs that are not active",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q queueaccess.Queue) error {
				artifacts := artifact.NewStore(ctx.config.Paths.ArtifactDir)
				out := cmd.OutOrStdout()
				var failures []string
				for _, id := range args {
					removed, err := q.Remove(cmd.Context(), id)
					switch {
					case errors.Is(err, queue.ErrJobActive):
						failures = append(failures, id+" (active)")
						continue
					case err != nil:
						return err
					case !removed:
						failures = append(failures, id+" (not found)")
						continue
					}
					if !keepArtifact {
						if err := artifacts.Remove(id); err != nil {
							fmt.Fprintf(cmd.ErrOrStderr(), "warn: remove artifact for %s: %v\n", id, err)
						}
					}
					fmt.Fprintf(out, "Removed %s\n", id)
				}
				if len(failures) > 0 {
					return fmt.Errorf("could not remove: %s", strings.Join(failures, ", "))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&keepArtifact, "keep-artifact", false, "Leave the rendered collage on disk")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all completed and failed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q queueaccess.Queue) error {
				removed, err := q.ClearTerminal(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d finished job(s)\n", removed)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue backend health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q queueaccess.Queue) error {
				out := cmd.OutOrStdout()
				store, ok := q.(*queue.Store)
				if !ok {
					err := q.Ping(cmd.Context())
					if ctx.JSONMode() {
						resp := map[string]any{"backend": queueaccess.Describe(ctx.config), "reachable": err == nil}
						if err != nil {
							resp["error"] = err.Error()
						}
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(out, "Backend: %s\n", queueaccess.Describe(ctx.config))
					fmt.Fprintf(out, "Reachable: %s\n", yesNo(err == nil))
					if err != nil {
						fmt.Fprintf(out, "Error: %s\n", err)
					}
					return nil
				}

				resp, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(out, "Database path: %s\n", resp.DBPath)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(resp.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(resp.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %d\n", resp.SchemaVersion)
				fmt.Fprintf(out, "jobs table present: %s\n", yesNo(resp.TableExists))
				if len(resp.MissingColumns) > 0 {
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(resp.MissingColumns, ", "))
				} else {
					fmt.Fprintln(out, "Missing columns: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(resp.IntegrityCheck))
				fmt.Fprintf(out, "Total jobs: %d\n", resp.TotalJobs)
				if resp.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", resp.Error)
				}
				return nil
			})
		},
	}
}
