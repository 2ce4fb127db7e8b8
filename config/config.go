package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"lcoder/model"
)

// ModelConfig is one entry in the [models] registry, referenced by
// config-defined tools through their model key.
type ModelConfig struct {
	Endpoint string `toml:"endpoint"`
	ModelID  string `toml:"model_id"`
}

// CoderConfig is one [[coders]] profile entry as written in the TOML file.
type CoderConfig struct {
	Name         string `toml:"name"`
	Endpoint     string `toml:"endpoint"`
	Model        string `toml:"model"`
	Color        string `toml:"color"`
	SystemPrompt string `toml:"system_prompt"`
}

// ToolConfig is one [[tools]] entry: a tool backed by a secondary model.
type ToolConfig struct {
	Name         string `toml:"name"`
	Description  string `toml:"description"`
	Model        string `toml:"model"`
	SystemPrompt string `toml:"system_prompt"`
}

// ServerConfig is one [[mcp_servers]] launch spec.
type ServerConfig struct {
	Name      string   `toml:"name"`
	Transport string   `toml:"transport"`
	Command   string   `toml:"command"`
	Args      []string `toml:"args"`
}

type fileConfig struct {
	System struct {
		WorkingDirectory string `toml:"working_directory"`
		DataDirectory    string `toml:"data_directory"`
	} `toml:"system"`
	Coders  []CoderConfig          `toml:"coders"`
	Models  map[string]ModelConfig `toml:"models"`
	Tools   []ToolConfig           `toml:"tools"`
	Servers []ServerConfig         `toml:"mcp_servers"`
}

// Config is the validated configuration used by the rest of the program.
// Invalid entries are dropped at load time with a warning; they never
// surface later as half-formed values.
type Config struct {
	WorkingDirectory string
	DataDirectory    string
	Coders           []CoderConfig
	Models           map[string]ModelConfig
	Tools            []ToolConfig
	Servers          []ServerConfig
	Warnings         []string
}

var Debug = false

// DebugLog is nil unless LCODER_DEBUG is set. Call sites guard on nil.
var DebugLog *log.Logger

func CheckDebug() bool {
	debug := os.Getenv("LCODER_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog opens debug.log under the data directory when LCODER_DEBUG
// is set. 0600: the log contains full request and response bodies.
func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (LCODER_DEBUG=%s) ===", os.Getenv("LCODER_DEBUG"))
}

// Load reads the configuration file, applies defaults and environment
// overrides, and validates every entry. A missing file yields defaults with
// no coders; a malformed file is an error.
func Load() (*Config, error) {
	cfg := &Config{
		WorkingDirectory: ".",
		DataDirectory:    "~/.local/share/lcoder",
		Models:           map[string]ModelConfig{},
	}

	path := ConfigFilePath()
	if FileExists(path) {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		cfg.apply(&fc)
	}

	cfg.applyEnvOverrides()

	abs, err := filepath.Abs(ExpandPath(cfg.WorkingDirectory))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	cfg.WorkingDirectory = abs
	cfg.DataDirectory = ExpandPath(cfg.DataDirectory)

	return cfg, nil
}

func (c *Config) apply(fc *fileConfig) {
	if fc.System.WorkingDirectory != "" {
		c.WorkingDirectory = fc.System.WorkingDirectory
	}
	if fc.System.DataDirectory != "" {
		c.DataDirectory = fc.System.DataDirectory
	}

	for _, coder := range fc.Coders {
		if coder.Name == "" || coder.Endpoint == "" || coder.Model == "" {
			c.warn(fmt.Sprintf("skipping coder %q: name, endpoint and model are required", coder.Name))
			continue
		}
		c.Coders = append(c.Coders, coder)
	}

	for key, m := range fc.Models {
		if m.Endpoint == "" || m.ModelID == "" {
			c.warn(fmt.Sprintf("skipping model %q: endpoint and model_id are required", key))
			continue
		}
		c.Models[key] = m
	}

	for _, t := range fc.Tools {
		if t.Name == "" || t.Model == "" {
			c.warn(fmt.Sprintf("skipping tool %q: name and model are required", t.Name))
			continue
		}
		if _, ok := c.Models[t.Model]; !ok {
			c.warn(fmt.Sprintf("skipping tool %q: unknown model key %q", t.Name, t.Model))
			continue
		}
		c.Tools = append(c.Tools, t)
	}

	for _, s := range fc.Servers {
		transport := s.Transport
		if transport == "" {
			transport = "stdio"
		}
		if s.Name == "" {
			c.warn("skipping mcp server with empty name")
			continue
		}
		if transport != "stdio" {
			c.warn(fmt.Sprintf("skipping mcp server %q: unsupported transport %q", s.Name, transport))
			continue
		}
		if s.Command == "" {
			c.warn(fmt.Sprintf("skipping mcp server %q: command is required for stdio transport", s.Name))
			continue
		}
		s.Transport = transport
		c.Servers = append(c.Servers, s)
	}
}

func (c *Config) applyEnvOverrides() {
	if wd := os.Getenv("LCODER_WORKDIR"); wd != "" {
		c.WorkingDirectory = wd
	}
	if dataDir := os.Getenv("LCODER_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

func (c *Config) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
	fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
	if DebugLog != nil {
		DebugLog.Printf("[config] %s", msg)
	}
}

// Profiles converts the coder entries into resolved profiles.
func (c *Config) Profiles() []model.Profile {
	profiles := make([]model.Profile, 0, len(c.Coders))
	for _, coder := range c.Coders {
		profiles = append(profiles, model.Profile{
			Name:         coder.Name,
			Endpoint:     coder.Endpoint,
			Model:        coder.Model,
			Color:        coder.Color,
			SystemPrompt: coder.SystemPrompt,
		})
	}
	return profiles
}

// FindProfile looks up a coder profile by name.
func (c *Config) FindProfile(name string) (model.Profile, bool) {
	for _, p := range c.Profiles() {
		if p.Name == name {
			return p, true
		}
	}
	return model.Profile{}, false
}

// GetModelConfig resolves a model key from the [models] registry.
func (c *Config) GetModelConfig(key string) (ModelConfig, bool) {
	m, ok := c.Models[key]
	return m, ok
}
