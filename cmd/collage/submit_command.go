package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"collage/internal/config"
	"collage/internal/fileutil"
	"collage/internal/imaging"
	"collage/internal/queue"
	"collage/internal/queueaccess"
	"collage/internal/status"
)

const defaultMaxUploadSize = "5MiB"

type submitOptions struct {
	layout      string
	borderWidth int
	borderColor string
	inPlace     bool
	maxSize     string
	wait        bool
	waitTimeout time.Duration
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	opts := submitOptions{}

	cmd := &cobra.Command{
		Use:   "submit <image>...",
		Short: "Queue a collage job for the given PNG or JPEG images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			spec, err := buildSpec(cfg, args, opts)
			if err != nil {
				return err
			}

			return ctx.withQueue(cmd.Context(), func(q queueaccess.Queue) error {
				job, err := q.Enqueue(cmd.Context(), spec)
				if err != nil {
					if spec.CleanupInputs {
						removeInputs(spec.Inputs)
					}
					return err
				}
				if !opts.wait {
					if ctx.JSONMode() {
						return writeJSON(cmd, status.Report{ID: job.ID, State: string(job.State)})
					}
					fmt.Fprintln(cmd.OutOrStdout(), job.ID)
					return nil
				}

				tracker := status.NewTracker(q, nil)
				report, err := waitForTerminal(cmd.Context(), tracker, job.ID, cfg.PollInterval(), opts.waitTimeout)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, report)
				}
				printReport(cmd, report)
				if report.State == string(queue.StateFailed) {
					return fmt.Errorf("job %s failed: %s", report.ID, report.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&opts.layout, "layout", "l", string(queue.LayoutHorizontal), "Collage layout (horizontal or vertical)")
	cmd.Flags().IntVarP(&opts.borderWidth, "border-width", "b", 0, "Border width in pixels")
	cmd.Flags().StringVar(&opts.borderColor, "border-color", "#ffffff", "Border and background color")
	cmd.Flags().BoolVar(&opts.inPlace, "in-place", false, "Read inputs from their current location instead of copying them to upload_dir")
	cmd.Flags().StringVar(&opts.maxSize, "max-size", defaultMaxUploadSize, "Largest accepted input file")
	cmd.Flags().BoolVarP(&opts.wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&opts.waitTimeout, "wait-timeout", 5*time.Minute, "Give up waiting after this long")
	return cmd
}

func buildSpec(cfg *config.Config, paths []string, opts submitOptions) (queue.Spec, error) {
	layout, err := queue.ParseLayout(opts.layout)
	if err != nil {
		return queue.Spec{}, err
	}
	if opts.borderWidth < 0 {
		return queue.Spec{}, fmt.Errorf("border width must be >= 0 (got %d)", opts.borderWidth)
	}
	color, err := imaging.ParseColor(opts.borderColor)
	if err != nil {
		return queue.Spec{}, err
	}
	limit, err := humanize.ParseBytes(opts.maxSize)
	if err != nil {
		return queue.Spec{}, fmt.Errorf("parse --max-size: %w", err)
	}

	spec := queue.Spec{
		Layout:        layout,
		BorderWidth:   opts.borderWidth,
		BorderColor:   color,
		CleanupInputs: !opts.inPlace,
	}
	for _, raw := range paths {
		path, err := resolveInput(raw, limit)
		if err == nil && !opts.inPlace {
			path, err = stageUpload(cfg.Paths.UploadDir, path)
		}
		if err != nil {
			// Only staged copies are ours to delete.
			if spec.CleanupInputs {
				removeInputs(spec.Inputs)
			}
			return queue.Spec{}, err
		}
		spec.Inputs = append(spec.Inputs, queue.Input{Path: path, Name: filepath.Base(raw)})
	}
	return spec, nil
}

func resolveInput(raw string, limit uint64) (string, error) {
	path, err := config.ExpandPath(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("inspect input %q: %w", raw, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("input %q is a directory", raw)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg":
	default:
		return "", fmt.Errorf("input %q: only PNG and JPEG images are accepted", raw)
	}
	if limit > 0 && uint64(info.Size()) > limit {
		return "", fmt.Errorf("input %q is %s; the limit is %s", raw, humanize.IBytes(uint64(info.Size())), humanize.IBytes(limit))
	}
	return path, nil
}

// stageUpload copies src into dir under a collision-free name.
func stageUpload(dir, src string) (string, error) {
	dst := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(src)))
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return "", fmt.Errorf("stage upload %q: %w", src, err)
	}
	return dst, nil
}

func removeInputs(inputs []queue.Input) {
	for _, in := range inputs {
		if in.Path != "" {
			_ = fileutil.RemoveIfExists(in.Path)
		}
	}
}

func waitForTerminal(ctx context.Context, tracker *status.Tracker, id string, interval, timeout time.Duration) (status.Report, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		report, err := tracker.Status(ctx, id)
		if err != nil {
			return status.Report{}, err
		}
		if report.Terminal() || !report.Found() {
			return report, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return report, fmt.Errorf("job %s still %s after %s", id, report.State, timeout)
			}
			return report, ctx.Err()
		case <-ticker.C:
		}
	}
}
