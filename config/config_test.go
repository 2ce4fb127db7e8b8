package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	t.Setenv("LCODER_CONFIG", path)
	t.Setenv("LCODER_WORKDIR", "")
	t.Setenv("LCODER_DATA_DIR", "")
}

func TestLoadFullConfig(t *testing.T) {
	writeConfig(t, `
[system]
working_directory = "/tmp"
data_directory = "/tmp/lcoder-data"

[[coders]]
name = "local"
endpoint = "http://localhost:11434/v1"
model = "qwen3"
color = "cyan"
system_prompt = "You are a coding assistant."

[models]
fast = { endpoint = "http://localhost:11434/v1", model_id = "qwen3:4b" }

[[tools]]
name = "summarize"
description = "Summarizes text"
model = "fast"
system_prompt = "Be brief."

[[mcp_servers]]
name = "files"
command = "mcp-files"
args = ["--root", "/tmp"]
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("warnings = %v", cfg.Warnings)
	}
	if cfg.WorkingDirectory != "/tmp" {
		t.Errorf("WorkingDirectory = %q", cfg.WorkingDirectory)
	}
	if len(cfg.Coders) != 1 || cfg.Coders[0].Name != "local" {
		t.Errorf("Coders = %v", cfg.Coders)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Model != "fast" {
		t.Errorf("Tools = %v", cfg.Tools)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].Transport != "stdio" {
		t.Errorf("Servers = %v", cfg.Servers)
	}

	p, ok := cfg.FindProfile("local")
	if !ok || p.Model != "qwen3" || p.SystemPrompt != "You are a coding assistant." {
		t.Errorf("FindProfile = %+v, %v", p, ok)
	}
	if _, ok := cfg.FindProfile("missing"); ok {
		t.Error("FindProfile found a profile that does not exist")
	}
}

func TestLoadDropsInvalidEntries(t *testing.T) {
	writeConfig(t, `
[[coders]]
name = "good"
endpoint = "http://localhost:11434/v1"
model = "m"

[[coders]]
name = "no-endpoint"
model = "m"

[models]
ok = { endpoint = "http://x/v1", model_id = "m" }
broken = { endpoint = "http://x/v1" }

[[tools]]
name = "valid"
model = "ok"

[[tools]]
name = "dangling"
model = "no_such_model"

[[mcp_servers]]
name = "http-server"
transport = "http"
command = "x"

[[mcp_servers]]
name = "no-command"
`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Coders) != 1 || cfg.Coders[0].Name != "good" {
		t.Errorf("Coders = %v", cfg.Coders)
	}
	if len(cfg.Models) != 1 {
		t.Errorf("Models = %v", cfg.Models)
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Name != "valid" {
		t.Errorf("Tools = %v", cfg.Tools)
	}
	if len(cfg.Servers) != 0 {
		t.Errorf("Servers = %v", cfg.Servers)
	}
	if len(cfg.Warnings) != 5 {
		t.Errorf("warnings = %v, want 5", cfg.Warnings)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	t.Setenv("LCODER_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))
	t.Setenv("LCODER_WORKDIR", "")
	t.Setenv("LCODER_DATA_DIR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Coders) != 0 {
		t.Errorf("Coders = %v, want none", cfg.Coders)
	}
	if !filepath.IsAbs(cfg.WorkingDirectory) {
		t.Errorf("WorkingDirectory = %q, want absolute", cfg.WorkingDirectory)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	writeConfig(t, "[[coders\nname =")
	if _, err := Load(); err == nil {
		t.Fatal("Load accepted malformed TOML")
	}
}

func TestEnvOverrides(t *testing.T) {
	writeConfig(t, `
[system]
working_directory = "/tmp"
`)
	workdir := t.TempDir()
	t.Setenv("LCODER_WORKDIR", workdir)
	t.Setenv("LCODER_DATA_DIR", "/tmp/override-data")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WorkingDirectory != workdir {
		t.Errorf("WorkingDirectory = %q, want %q", cfg.WorkingDirectory, workdir)
	}
	if cfg.DataDirectory != "/tmp/override-data" {
		t.Errorf("DataDirectory = %q", cfg.DataDirectory)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	tests := []struct {
		in   string
		want string
	}{
		{"~/notes", "/home/tester/notes"},
		{"/abs/path", "/abs/path"},
		{"rel/path", "rel/path"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExpandPath(tt.in); got != tt.want {
			t.Errorf("ExpandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckDebug(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"true", true},
		{"1", true},
		{"0", false},
		{"", false},
		{"yes", false},
	}
	for _, tt := range tests {
		t.Setenv("LCODER_DEBUG", tt.val)
		if got := CheckDebug(); got != tt.want {
			t.Errorf("CheckDebug() with %q = %v, want %v", tt.val, got, tt.want)
		}
	}
}

func TestWarningsMentionOffendingEntry(t *testing.T) {
	writeConfig(t, `
[[tools]]
name = "dangling"
model = "nope"
`)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Warnings) != 1 || !strings.Contains(cfg.Warnings[0], "dangling") {
		t.Errorf("warnings = %v", cfg.Warnings)
	}
}
