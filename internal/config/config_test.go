package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTETREE_CONFIG_DIR", dir)

	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != filepath.Join(dir, "default") {
		t.Fatalf("unexpected dir %q", cfg.Dir)
	}
	if cfg.Format != "json" || cfg.LogLevel != "warn" || cfg.RenderStyle != "auto" || cfg.RenderWidth != 80 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.NoteTitle != "Untitled.md" || cfg.FolderTitle != "New Folder" {
		t.Fatalf("unexpected default titles: %+v", cfg)
	}
	if cfg.File != "" {
		t.Fatalf("expected no config file, got %q", cfg.File)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("NOTETREE_CONFIG_DIR", dir)
	yml := "format: yaml\nrender:\n  width: 100\n  style: light\ntitles:\n  note: Draft.md\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("NOTETREE_RENDER_WIDTH", "120")

	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("format", "json", "")
	if err := v.BindPFlag(KeyFormat, fs.Lookup("format")); err != nil {
		t.Fatalf("BindPFlag: %v", err)
	}
	if err := fs.Parse([]string{"--format", "edn"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Format != "edn" {
		t.Fatalf("flag should win over file, got %q", cfg.Format)
	}
	if cfg.RenderWidth != 120 {
		t.Fatalf("env should win over file, got %d", cfg.RenderWidth)
	}
	if cfg.RenderStyle != "light" || cfg.NoteTitle != "Draft.md" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.File == "" {
		t.Fatalf("expected config file path to be reported")
	}
}

func TestLoad_RejectsBadStyle(t *testing.T) {
	t.Setenv("NOTETREE_CONFIG_DIR", t.TempDir())
	t.Setenv("NOTETREE_RENDER_STYLE", "neon")

	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := Load(v); err == nil {
		t.Fatalf("expected validation error")
	}
}
