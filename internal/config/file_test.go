package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileAppliesDefaultsForZeroFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rambler.yaml")
	if err := os.WriteFile(path, []byte(`
specification: spec.ts
exit_on_violation: true
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Specification != "spec.ts" || !cfg.ExitOnViolation {
		t.Fatalf("expected explicit fields to survive, got %+v", cfg)
	}
	if cfg.Browser.Width != 1024 || cfg.Browser.Height != 768 {
		t.Fatalf("expected default viewport size, got %dx%d", cfg.Browser.Width, cfg.Browser.Height)
	}
	if cfg.Browser.XvfbDisplay != ":99" {
		t.Fatalf("expected default xvfb display, got %q", cfg.Browser.XvfbDisplay)
	}
	if cfg.ActionTimeout != 30*time.Second {
		t.Fatalf("expected default action timeout, got %v", cfg.ActionTimeout)
	}
	if cfg.TraceDir != "./rambler-trace" {
		t.Fatalf("expected default trace dir, got %q", cfg.TraceDir)
	}
}

func TestLoadFileRespectsExplicitBrowserFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rambler.yaml")
	if err := os.WriteFile(path, []byte(`
browser:
  width: 1280
  height: 800
  headless: true
  xvfb_display: ":42"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Browser.Width != 1280 || cfg.Browser.Height != 800 {
		t.Fatalf("expected explicit viewport size to survive, got %dx%d", cfg.Browser.Width, cfg.Browser.Height)
	}
	if !cfg.Browser.Headless {
		t.Fatalf("expected headless to survive")
	}
	if cfg.Browser.XvfbDisplay != ":42" {
		t.Fatalf("expected explicit xvfb display to survive, got %q", cfg.Browser.XvfbDisplay)
	}
}

func TestLoadFileMissingPathErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
