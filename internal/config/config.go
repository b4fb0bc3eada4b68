// Package config handles application configuration.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/sevir/wappa/pkg/vw"
)

// Config holds the application configuration.
type Config struct {
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Registry RegistryConfig `json:"registry" yaml:"registry"`
}

// EngineConfig describes how the vw session is started.
type EngineConfig struct {
	// Command overrides Options with a literal command line.
	Command    string     `json:"command,omitempty" yaml:"command,omitempty"`
	Options    vw.Options `json:"options" yaml:"options"`
	ActiveMode bool       `json:"active_mode" yaml:"active_mode"`
	DaemonMode bool       `json:"daemon_mode" yaml:"daemon_mode"`
	DaemonIP   string     `json:"daemon_ip,omitempty" yaml:"daemon_ip,omitempty"`
	DummyMode  bool       `json:"dummy_mode" yaml:"dummy_mode"`

	ConnectionWaitMS      int `json:"connection_wait_ms" yaml:"connection_wait_ms"`
	MaxConnectionAttempts int `json:"max_connection_attempts" yaml:"max_connection_attempts"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// RegistryConfig holds the checkpoint registry configuration.
type RegistryConfig struct {
	StorePath     string `json:"store_path" yaml:"store_path"`
	CheckpointDir string `json:"checkpoint_dir" yaml:"checkpoint_dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	wappaDir := filepath.Join(home, ".wappa")

	// Predictions stays unset so active mode can pick /dev/null.
	opts := vw.DefaultOptions()
	opts.Predictions = ""

	return &Config{
		Engine: EngineConfig{
			Options:               opts,
			ConnectionWaitMS:      int(vw.DefaultConnectionWait / time.Millisecond),
			MaxConnectionAttempts: vw.DefaultMaxConnectionAttempts,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8766,
		},
		Registry: RegistryConfig{
			StorePath:     filepath.Join(wappaDir, "checkpoints.json"),
			CheckpointDir: filepath.Join(wappaDir, "models"),
		},
	}
}

// Load loads configuration from a file (supports JSON and YAML).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	baseDir := ""

	if path == "" {
		home, _ := os.UserHomeDir()
		yamlPath := filepath.Join(home, ".wappa", "config.yaml")
		jsonPath := filepath.Join(home, ".wappa", "config.json")

		if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		} else if _, err := os.Stat(jsonPath); err == nil {
			path = jsonPath
		} else {
			return cfg, nil
		}
	}
	baseDir = filepath.Dir(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if isYAML(path) {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	// Registry paths and the initial regressor are resolved against the
	// config file directory; the vw binary is looked up on PATH as given.
	cfg.Registry.StorePath = resolvePath(cfg.Registry.StorePath, baseDir)
	cfg.Registry.CheckpointDir = resolvePath(cfg.Registry.CheckpointDir, baseDir)
	cfg.Engine.Options.InitialRegressor = resolvePath(cfg.Engine.Options.InitialRegressor, baseDir)
	cfg.Engine.Options.Binary = expandHome(cfg.Engine.Options.Binary)

	return cfg, nil
}

// Save saves configuration to a file. The format follows the extension.
func (c *Config) Save(path string) error {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".wappa", "config.yaml")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// SessionConfig converts the engine section into a vw session config.
func (c *Config) SessionConfig(logger *log.Logger) vw.Config {
	e := c.Engine
	return vw.Config{
		Command:    e.Command,
		Options:    e.Options,
		ActiveMode: e.ActiveMode,
		DaemonMode: e.DaemonMode,
		DaemonIP:   e.DaemonIP,
		DummyMode:  e.DummyMode,
		DaemonDial: vw.DaemonConfig{
			ConnectionWait:        time.Duration(e.ConnectionWaitMS) * time.Millisecond,
			MaxConnectionAttempts: e.MaxConnectionAttempts,
		},
		Logger: logger,
	}
}

func isYAML(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml")
}

// expandHome expands ~ to home directory in paths.
func expandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~\\") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// resolvePath expands ~ and resolves relative paths against baseDir.
// If baseDir is empty, relative paths are returned unchanged.
func resolvePath(value, baseDir string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	p := expandHome(value)
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Clean(filepath.Join(baseDir, p))
}

// CommandLine returns the vw invocation the engine section describes,
// without starting it.
func (c *Config) CommandLine() string {
	sc := c.SessionConfig(log.New(io.Discard, "", 0))
	sc.DummyMode = true
	s, err := vw.New(context.Background(), sc)
	if err != nil {
		return ""
	}
	return s.Command()
}
