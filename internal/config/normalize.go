package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	// UPLOAD_DIR replaces the built-in default but never an explicit file value.
	uploadDir := strings.TrimSpace(c.Paths.UploadDir)
	if uploadDir == "" || uploadDir == defaultUploadDir {
		if value, ok := os.LookupEnv("UPLOAD_DIR"); ok && strings.TrimSpace(value) != "" {
			uploadDir = strings.TrimSpace(value)
		}
	}
	if uploadDir == "" {
		uploadDir = defaultUploadDir
	}
	c.Paths.UploadDir = uploadDir
	// Artifacts live next to uploads unless placed elsewhere explicitly.
	if strings.TrimSpace(c.Paths.ArtifactDir) == "" {
		c.Paths.ArtifactDir = c.Paths.UploadDir
	}

	var err error
	if c.Paths.UploadDir, err = expandPath(c.Paths.UploadDir); err != nil {
		return fmt.Errorf("paths.upload_dir: %w", err)
	}
	if c.Paths.ArtifactDir, err = expandPath(c.Paths.ArtifactDir); err != nil {
		return fmt.Errorf("paths.artifact_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	if value, ok := os.LookupEnv("COLLAGE_REDIS_URL"); ok && strings.TrimSpace(value) != "" {
		c.Queue.RedisURL = strings.TrimSpace(value)
	} else if strings.TrimSpace(c.Queue.RedisURL) == "" {
		if value, ok := os.LookupEnv("REDIS_URL"); ok && strings.TrimSpace(value) != "" {
			c.Queue.RedisURL = strings.TrimSpace(value)
		} else {
			c.Queue.RedisURL = defaultRedisURL
		}
	}
	c.Queue.RedisURL = strings.TrimSpace(c.Queue.RedisURL)
	c.Queue.RedisPrefix = strings.TrimSpace(c.Queue.RedisPrefix)
	if c.Queue.RedisPrefix == "" {
		c.Queue.RedisPrefix = defaultRedisPrefix
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
