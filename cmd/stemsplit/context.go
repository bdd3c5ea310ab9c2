package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"stemsplit/internal/config"
	"stemsplit/internal/logging"
	"stemsplit/internal/preflight"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	buildDeps    dependencyBuilder
	minFreeBytes uint64
}

// contextOption adjusts command wiring; tests use it to inject fakes.
type contextOption func(*commandContext)

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		jsonFlag:     jsonFlag,
		buildDeps:    buildDependencies,
		minFreeBytes: preflight.MinFreeBytes,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// loggerFor returns the process logger, falling back to a stderr console
// logger when the configured log file cannot be opened.
func (c *commandContext) loggerFor(cfg *config.Config) *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			logger, _ = logging.NewFromConfig(nil)
		}
		c.logger = logger
	})
	return c.logger
}

// JSONMode reports whether --json was passed.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
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
