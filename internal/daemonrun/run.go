// Package daemonrun hosts the process-level lifecycle of the worker daemon.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"collage/internal/artifact"
	"collage/internal/config"
	"collage/internal/daemon"
	"collage/internal/logging"
	"collage/internal/queueaccess"
	"collage/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the collage daemon and blocks until ctx is cancelled or the
// process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("collage-%s.log", runID))
	level := cfg.Logging.Level
	if trimmed := strings.TrimSpace(opts.LogLevel); trimmed != "" {
		level = trimmed
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update collage.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "collage-*.log", Exclude: []string{logPath}},
	)
	logStartupSnapshot(logger, cfg)

	q, err := queueaccess.Open(signalCtx, cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open task queue", "queue_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue.backend and queue.redis_url"),
		)
		return err
	}

	artifacts := artifact.NewStore(cfg.Paths.ArtifactDir)
	manager := workflow.NewManager(cfg, q, artifacts, logger)
	d, err := daemon.New(cfg, q, logger, manager)
	if err != nil {
		_ = q.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("collage daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func logStartupSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("startup snapshot",
		logging.String(logging.FieldEventType, "startup_snapshot"),
		logging.String("queue", queueaccess.Describe(cfg)),
		logging.String("upload_dir", cfg.Paths.UploadDir),
		logging.String("artifact_dir", cfg.Paths.ArtifactDir),
		logging.Int("workers", cfg.Workflow.Workers),
		logging.Int("decode_concurrency", cfg.Workflow.DecodeConcurrency),
		logging.Int64("max_input_pixels", cfg.Workflow.MaxInputPixels),
		logging.Duration("heartbeat_interval", cfg.HeartbeatInterval()),
		logging.Duration("heartbeat_timeout", cfg.HeartbeatTimeout()),
	)
}

// ensureCurrentLogPointer points collage.log at the log of the current run.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "collage.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
