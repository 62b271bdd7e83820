// Package config loads the declarative matrix description from
// .matrixdrive.yml and overlays CLI flag values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bgricker/matrixdrive/internal/matrix"
)

// FileName is the configuration file looked up from the project root.
const FileName = ".matrixdrive.yml"

// ErrNoConfig indicates that no configuration file was found while walking
// up from the working directory.
var ErrNoConfig = errors.New("no " + FileName + " found")

const (
	// FormatPretty renders human readable output.
	FormatPretty = "pretty"
	// FormatJSON renders machine readable output.
	FormatJSON = "json"

	// MatrixFamily is the job family expanded from the configured axes.
	MatrixFamily = "matrix"
	// HygieneFamily is the single-configuration fmt/docs job family.
	HygieneFamily = "hygiene"
)

// Config captures CLI options sourced from the config file or flags.
type Config struct {
	Project     string `yaml:"project"`
	Concurrency int    `yaml:"concurrency"`
	LogLevel    string `yaml:"log_level"`
	Format      string `yaml:"format"`

	Jobs    []string `yaml:"jobs"`
	DryRun  bool     `yaml:"dry_run"`
	Verbose bool     `yaml:"verbose"`

	Toolchain ToolchainConfig `yaml:"toolchain"`
	Matrix    FamilyConfig    `yaml:"matrix"`
	Hygiene   FamilyConfig    `yaml:"hygiene"`

	History HistoryConfig `yaml:"history"`
	Metrics MetricsConfig `yaml:"metrics"`
	API     APIConfig     `yaml:"api"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ToolchainConfig names the axis whose values require provisioning and the
// probe command run once per value before any job starts.
type ToolchainConfig struct {
	Axis  string `yaml:"axis"`
	Probe string `yaml:"probe"`
}

// FamilyConfig declares one job family: an optional axis set and its steps.
type FamilyConfig struct {
	Axes  []AxisConfig `yaml:"axes"`
	Steps []StepConfig `yaml:"steps"`
}

// AxisConfig declares one named dimension of variation.
type AxisConfig struct {
	Name   string   `yaml:"name"`
	Values []string `yaml:"values"`
}

// StepConfig declares one verification step.
type StepConfig struct {
	Name         string            `yaml:"name"`
	Run          string            `yaml:"run"`
	Shell        string            `yaml:"shell"`
	AllowFailure bool              `yaml:"allow_failure"`
	Timeout      string            `yaml:"timeout"`
	Env          map[string]string `yaml:"env"`
}

// HistoryConfig controls the sqlite run archive.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MetricsConfig controls the Prometheus recorder.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// APIConfig controls the status server started by `matrixdrive serve`.
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// WatchConfig controls `run --watch` behaviour.
type WatchConfig struct {
	Debounce string   `yaml:"debounce"`
	Ignore   []string `yaml:"ignore"`
}

// Default returns the baseline configuration used when the config file or
// flags leave values unset.
func Default() Config {
	return Config{
		Format:   FormatPretty,
		LogLevel: "info",
		History: HistoryConfig{
			Path: filepath.Join(".matrixdrive", "history.db"),
		},
		API: APIConfig{
			Addr: "127.0.0.1:8321",
		},
		Watch: WatchConfig{
			Debounce: "2s",
			Ignore:   []string{".git", ".matrixdrive", "target", "node_modules"},
		},
	}
}

// FindRoot walks up from start looking for the configuration file and
// returns the directory containing it.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", start, err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return dir, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoConfig
		}
		dir = parent
	}
}

// Load reads the configuration file from the project root and merges it
// over the defaults.
func Load(root string) (Config, error) {
	cfg := Default()
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("%w in %q", ErrNoConfig, root)
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	return merge(cfg, fileCfg), nil
}

func merge(base, override Config) Config {
	out := base

	if override.Project != "" {
		out.Project = override.Project
	}
	if override.Concurrency > 0 {
		out.Concurrency = override.Concurrency
	}
	if override.LogLevel != "" {
		out.LogLevel = override.LogLevel
	}
	if override.Format != "" {
		out.Format = override.Format
	}
	if len(override.Jobs) > 0 {
		out.Jobs = append([]string{}, override.Jobs...)
	}
	if override.DryRun {
		out.DryRun = true
	}
	if override.Verbose {
		out.Verbose = true
	}

	out.Toolchain = override.Toolchain
	out.Matrix = override.Matrix
	out.Hygiene = override.Hygiene

	if override.History.Enabled {
		out.History.Enabled = true
	}
	if override.History.Path != "" {
		out.History.Path = override.History.Path
	}
	if override.Metrics.Enabled {
		out.Metrics.Enabled = true
	}
	if override.API.Addr != "" {
		out.API.Addr = override.API.Addr
	}
	if override.Watch.Debounce != "" {
		out.Watch.Debounce = override.Watch.Debounce
	}
	if len(override.Watch.Ignore) > 0 {
		out.Watch.Ignore = append([]string{}, override.Watch.Ignore...)
	}

	return out
}

// Families converts the declared families into expander input. The matrix
// family carries the configured axes; the hygiene family expands to a single
// job. A family with no steps is omitted.
func (c Config) Families() ([]matrix.Family, error) {
	var families []matrix.Family

	if len(c.Matrix.Steps) > 0 {
		fam, err := buildFamily(MatrixFamily, c.Matrix)
		if err != nil {
			return nil, err
		}
		families = append(families, fam)
	}
	if len(c.Hygiene.Steps) > 0 {
		fam, err := buildFamily(HygieneFamily, c.Hygiene)
		if err != nil {
			return nil, err
		}
		families = append(families, fam)
	}
	if len(families) == 0 {
		return nil, &matrix.ConfigurationError{Message: "config declares no job families"}
	}
	return families, nil
}

func buildFamily(name string, fc FamilyConfig) (matrix.Family, error) {
	fam := matrix.Family{Name: name}
	for _, axis := range fc.Axes {
		fam.Axes = append(fam.Axes, matrix.Axis{Name: axis.Name, Values: append([]string{}, axis.Values...)})
	}
	for i, sc := range fc.Steps {
		step := matrix.Step{
			Name:         sc.Name,
			Run:          sc.Run,
			Shell:        sc.Shell,
			AllowFailure: sc.AllowFailure,
			Env:          sc.Env,
		}
		if step.Name == "" {
			step.Name = fmt.Sprintf("step-%d", i)
		}
		if sc.Timeout != "" {
			d, err := time.ParseDuration(sc.Timeout)
			if err != nil {
				return matrix.Family{}, &matrix.ConfigurationError{
					Message: fmt.Sprintf("family %q step %q: bad timeout %q: %v", name, step.Name, sc.Timeout, err),
				}
			}
			step.Timeout = d
			step.TimeoutMS = d.Milliseconds()
		}
		fam.Steps = append(fam.Steps, step)
	}
	return fam, nil
}

// EffectiveConcurrency resolves the worker-pool size: an explicit setting
// wins; otherwise the cardinality of the matrix family's first axis, since
// the first axis is conventionally the platform isolation boundary.
func (c Config) EffectiveConcurrency() int {
	if c.Concurrency > 0 {
		return c.Concurrency
	}
	if len(c.Matrix.Axes) > 0 && len(c.Matrix.Axes[0].Values) > 0 {
		return len(c.Matrix.Axes[0].Values)
	}
	return 1
}

// WatchDebounce parses the configured watch debounce interval.
func (c Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// ApplyFlags mutates cfg by applying values from CLI flags when they are present.
func ApplyFlags(cfg *Config, flags FlagValues) {
	if len(flags.Jobs.Values) > 0 {
		cfg.Jobs = append([]string{}, flags.Jobs.Values...)
	}
	if flags.Format.Set {
		cfg.Format = flags.Format.Value
	}
	if flags.LogLevel.Set {
		cfg.LogLevel = flags.LogLevel.Value
	}
	if flags.Concurrency.Set {
		cfg.Concurrency = flags.Concurrency.Value
	}
	if flags.DryRun.Set {
		cfg.DryRun = flags.DryRun.Value
	}
	if flags.Verbose.Set {
		cfg.Verbose = flags.Verbose.Value
	}
}

// FlagValues captures CLI flag state with knowledge of whether each flag was set explicitly.
type FlagValues struct {
	Jobs        SliceFlag
	Format      StringFlag
	LogLevel    StringFlag
	Concurrency IntFlag
	DryRun      BoolFlag
	Verbose     BoolFlag
}

// StringFlag represents a string flag and whether it was set.
type StringFlag struct {
	Value string
	Set   bool
}

// SliceFlag represents a slice flag and whether it captured values via CLI.
type SliceFlag struct {
	Values []string
}

// IntFlag represents an int flag and whether it was set.
type IntFlag struct {
	Value int
	Set   bool
}

// BoolFlag represents a bool flag and whether it was set.
type BoolFlag struct {
	Value bool
	Set   bool
}
