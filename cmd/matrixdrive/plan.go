package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/bgricker/matrixdrive/internal/config"
	"github.com/bgricker/matrixdrive/internal/matrix"
	"github.com/bgricker/matrixdrive/internal/matrix/filter"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.Config{}, "", fmt.Errorf("determine working directory: %w", err)
	}

	root, err := config.FindRoot(cwd)
	if err != nil {
		if errors.Is(err, config.ErrNoConfig) {
			return config.Config{}, "", fmt.Errorf("no %s found in %s or any parent; create one to declare the verification matrix", config.FileName, cwd)
		}
		return config.Config{}, "", err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return config.Config{}, "", err
	}

	flags, err := gatherFlags(cmd)
	if err != nil {
		return config.Config{}, "", err
	}
	config.ApplyFlags(&cfg, flags)

	return cfg, root, nil
}

// buildPlan expands the configured families and applies the job filter.
func buildPlan(cfg config.Config) ([]matrix.JobSpec, error) {
	families, err := cfg.Families()
	if err != nil {
		return nil, err
	}

	specs, err := matrix.Expand(families...)
	if err != nil {
		return nil, err
	}

	patterns, err := filter.Compile(cfg.Jobs)
	if err != nil {
		return nil, err
	}
	return filter.JobSpecs(specs, patterns), nil
}

func newLogger(cfg config.Config, cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}
