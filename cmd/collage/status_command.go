package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"collage/internal/config"
	"collage/internal/fileutil"
	"collage/internal/status"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTracker(cmd.Context(), func(tracker *status.Tracker) error {
				report, err := tracker.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, report)
				}
				printReport(cmd, report)
				return nil
			})
		},
	}
}

func printReport(cmd *cobra.Command, report status.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:    %s\n", report.ID)
	fmt.Fprintf(out, "State:  %s\n", renderState(report.State, shouldColorize(out)))
	if report.ResultRef != "" {
		fmt.Fprintf(out, "Result: %s\n", report.ResultRef)
	}
	if report.Error != "" {
		fmt.Fprintf(out, "Error:  %s\n", report.Error)
	}
}

func newArtifactCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "artifact <job-id>",
		Short: "Print the path of a finished collage, or copy it out with --output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTracker(cmd.Context(), func(tracker *status.Tracker) error {
				if output != "" {
					return exportArtifact(cmd, tracker, args[0], output)
				}
				path, err := tracker.Artifact(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				info, err := os.Stat(path)
				if err != nil {
					return fmt.Errorf("inspect artifact: %w", err)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"id": args[0], "path": path, "size": info.Size()})
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				fmt.Fprintf(cmd.ErrOrStderr(), "%s, written %s\n", humanize.IBytes(uint64(info.Size())), humanize.Time(info.ModTime()))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Copy the collage to this file (- for stdout)")
	return cmd
}

func exportArtifact(cmd *cobra.Command, tracker *status.Tracker, id, output string) error {
	src, err := tracker.OpenArtifact(cmd.Context(), id)
	if err != nil {
		return err
	}
	defer src.Close()

	if output == "-" {
		if _, err := io.Copy(cmd.OutOrStdout(), src); err != nil {
			return fmt.Errorf("stream artifact: %w", err)
		}
		return nil
	}

	dst, err := config.ExpandPath(output)
	if err != nil {
		return err
	}
	var written int64
	if err := fileutil.WriteAtomic(dst, 0o644, func(w io.Writer) error {
		n, copyErr := io.Copy(w, src)
		written = n
		return copyErr
	}); err != nil {
		return fmt.Errorf("export artifact: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s written to %s\n", humanize.IBytes(uint64(written)), dst)
	return nil
}
