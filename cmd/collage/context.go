package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"collage/internal/artifact"
	"collage/internal/config"
	"collage/internal/queueaccess"
	"collage/internal/status"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was requested.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// withQueue opens the configured queue backend for the duration of fn.
func (c *commandContext) withQueue(ctx context.Context, fn func(queueaccess.Queue) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	q, err := queueaccess.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open queue (%s): %w", queueaccess.Describe(cfg), err)
	}
	defer q.Close()
	return fn(q)
}

// withTracker opens the queue and wraps it in a status tracker.
func (c *commandContext) withTracker(ctx context.Context, fn func(*status.Tracker) error) error {
	return c.withQueue(ctx, func(q queueaccess.Queue) error {
		return fn(status.NewTracker(q, artifact.NewStore(c.config.Paths.ArtifactDir)))
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
