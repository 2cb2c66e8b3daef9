package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names files to prune: every regular file in Dir whose name
// matches Pattern (all files when empty), except the paths in Exclude.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes target files last modified more than retentionDays
// ago. A retentionDays value of 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		for _, path := range target.expired(cutoff) {
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions and log_dir ownership"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Info("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

// expired lists absolute paths of matching files older than cutoff.
func (t RetentionTarget) expired(cutoff time.Time) []string {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}

	skip := make(map[string]struct{}, len(t.Exclude))
	for _, path := range t.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil && strings.TrimSpace(path) != "" {
			skip[abs] = struct{}{}
		}
	}

	var out []string
	for _, match := range matches {
		abs, err := filepath.Abs(match)
		if err != nil {
			abs = match
		}
		if _, ok := skip[abs]; ok {
			continue
		}
		info, err := os.Lstat(abs)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		out = append(out, abs)
	}
	return out
}
