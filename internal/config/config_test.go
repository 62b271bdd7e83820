package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
project: iterx
concurrency: 2
toolchain:
  axis: toolchain
  probe: command -v cargo
matrix:
  axes:
    - name: platform
      values: [linux, macos, windows]
    - name: toolchain
      values: [stable]
    - name: features
      values: [default, no_std, no_std-alloc, unstable]
  steps:
    - name: check
      run: cargo check
      timeout: 10m
    - name: test
      run: cargo test
hygiene:
  steps:
    - name: fmt-check
      run: cargo fmt --check
    - name: doc-build
      run: cargo doc --no-deps
      allow_failure: true
history:
  enabled: true
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoad(t *testing.T) {
	root := writeConfig(t, sampleConfig)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project != "iterx" {
		t.Fatalf("expected project iterx, got %q", cfg.Project)
	}
	if cfg.Concurrency != 2 {
		t.Fatalf("expected concurrency 2, got %d", cfg.Concurrency)
	}
	if cfg.Format != FormatPretty {
		t.Fatalf("expected default format, got %q", cfg.Format)
	}
	if !cfg.History.Enabled || cfg.History.Path == "" {
		t.Fatalf("expected history enabled with default path, got %+v", cfg.History)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("expected ErrNoConfig, got %v", err)
	}
}

func TestFamilies(t *testing.T) {
	root := writeConfig(t, sampleConfig)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	families, err := cfg.Families()
	if err != nil {
		t.Fatalf("families: %v", err)
	}
	if len(families) != 2 {
		t.Fatalf("expected 2 families, got %d", len(families))
	}
	if families[0].Name != MatrixFamily || len(families[0].Axes) != 3 {
		t.Fatalf("unexpected matrix family %+v", families[0])
	}
	if families[0].Steps[0].Timeout != 10*time.Minute {
		t.Fatalf("expected 10m timeout, got %s", families[0].Steps[0].Timeout)
	}
	if families[1].Name != HygieneFamily || len(families[1].Axes) != 0 {
		t.Fatalf("unexpected hygiene family %+v", families[1])
	}
	if !families[1].Steps[1].AllowFailure {
		t.Fatalf("expected doc-build allow_failure")
	}
}

func TestFamiliesBadTimeout(t *testing.T) {
	root := writeConfig(t, `
matrix:
  axes:
    - name: platform
      values: [linux]
  steps:
    - name: check
      run: "true"
      timeout: banana
`)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cfg.Families(); err == nil {
		t.Fatalf("expected error for bad timeout")
	}
}

func TestFamiliesEmptyConfig(t *testing.T) {
	root := writeConfig(t, "project: empty\n")
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cfg.Families(); err == nil {
		t.Fatalf("expected error when no families declared")
	}
}

func TestEffectiveConcurrency(t *testing.T) {
	root := writeConfig(t, sampleConfig)
	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.EffectiveConcurrency(); got != 2 {
		t.Fatalf("explicit concurrency should win, got %d", got)
	}

	cfg.Concurrency = 0
	if got := cfg.EffectiveConcurrency(); got != 3 {
		t.Fatalf("expected platform-count default 3, got %d", got)
	}

	cfg.Matrix.Axes = nil
	if got := cfg.EffectiveConcurrency(); got != 1 {
		t.Fatalf("expected fallback 1, got %d", got)
	}
}

func TestFindRoot(t *testing.T) {
	root := writeConfig(t, sampleConfig)
	nested := filepath.Join(root, "src", "iter")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	found, err := FindRoot(nested)
	if err != nil {
		t.Fatalf("find root: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(found)
	if err != nil {
		t.Fatalf("eval symlinks: %v", err)
	}
	wantResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatalf("eval symlinks: %v", err)
	}
	if resolved != wantResolved {
		t.Fatalf("expected root %q, got %q", wantResolved, resolved)
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()
	ApplyFlags(&cfg, FlagValues{
		Jobs:        SliceFlag{Values: []string{"no_std"}},
		Format:      StringFlag{Value: FormatJSON, Set: true},
		Concurrency: IntFlag{Value: 8, Set: true},
		DryRun:      BoolFlag{Value: true, Set: true},
	})
	if cfg.Format != FormatJSON || cfg.Concurrency != 8 || !cfg.DryRun {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if len(cfg.Jobs) != 1 || cfg.Jobs[0] != "no_std" {
		t.Fatalf("job filter not applied: %v", cfg.Jobs)
	}
}
