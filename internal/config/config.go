package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	UploadDir   string `toml:"upload_dir"`
	ArtifactDir string `toml:"artifact_dir"`
	StateDir    string `toml:"state_dir"`
	LogDir      string `toml:"log_dir"`
}

// Queue selects and configures the task queue backend.
type Queue struct {
	Backend        string `toml:"backend"`
	RedisURL       string `toml:"redis_url"`
	RedisPrefix    string `toml:"redis_prefix"`
	PollIntervalMs int    `toml:"poll_interval_ms"`
}

// Workflow contains configuration for the worker pool.
type Workflow struct {
	Workers            int `toml:"workers"`
	DecodeConcurrency  int   `toml:"decode_concurrency"`
	MaxInputPixels     int64 `toml:"max_input_pixels"`
	HeartbeatInterval  int   `toml:"heartbeat_interval"`
	HeartbeatTimeout   int   `toml:"heartbeat_timeout"`
	ErrorRetryInterval int   `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for collage.
//
// Configuration sections by subsystem:
//   - Paths: upload, artifact, state (queue db, lock), and log directories
//   - Queue: backend selection (sqlite or redis) and polling
//   - Workflow: worker count, decode fan-out and pixel cap, heartbeat lease timing
//   - Logging: log format, level, and retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	Queue    Queue    `toml:"queue"`
	Workflow Workflow `toml:"workflow"`
	Logging  Logging  `toml:"logging"`
}

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/collage/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("collage.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.ArtifactDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath is the SQLite queue database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// LockPath is the single-instance lock held by the worker daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "collage.lock")
}

// PollInterval is how often an idle worker re-checks the queue.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalMs) * time.Millisecond
}

// HeartbeatInterval is the lease renewal period for active jobs.
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Workflow.HeartbeatInterval) * time.Second
}

// HeartbeatTimeout is how long an active job may go without a heartbeat before
// it is returned to the queue.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Workflow.HeartbeatTimeout) * time.Second
}

// ErrorRetryInterval is the back-off after a queue read failure.
func (c *Config) ErrorRetryInterval() time.Duration {
	return time.Duration(c.Workflow.ErrorRetryInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
