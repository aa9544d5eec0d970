// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the daemon configuration.
//
// Configuration comes from a single YAML file named by the
// DOORWAY_CONFIG environment variable or a --config flag. There are no
// fallbacks and no automatic discovery: deterministic, auditable
// configuration with no hidden overrides. The only substitution
// performed is ${VAR} / ${VAR:-default} expansion in path fields, for
// portability across home directories.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Listen is the direct WebSocket listen address (host:port).
	// Empty disables the direct listener.
	Listen string `yaml:"listen"`

	// Auth configures the password handshake.
	Auth AuthConfig `yaml:"auth"`

	// Relay configures the outbound relay link. Empty URL disables it.
	Relay RelayConfig `yaml:"relay"`

	// Paths configures file locations.
	Paths PathsConfig `yaml:"paths"`

	// HeartbeatInterval is the subscription heartbeat period.
	// Default 30s.
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`

	// Projects are the projects exposed through the request API.
	Projects []ProjectConfig `yaml:"projects"`
}

// AuthConfig configures the handshake.
type AuthConfig struct {
	// Required gates the SRP handshake. When false the daemon accepts
	// unauthenticated plaintext connections; only for trusted networks.
	Required bool `yaml:"required"`
}

// RelayConfig configures the relay link.
type RelayConfig struct {
	// URL is the relay's WebSocket endpoint (wss://...).
	URL string `yaml:"url"`

	// Name is the public name clients look this daemon up by.
	Name string `yaml:"name"`

	// InstallationID distinguishes installations sharing a name.
	InstallationID string `yaml:"installation_id"`
}

// PathsConfig configures file locations.
type PathsConfig struct {
	// Root is the base directory for daemon data.
	Root string `yaml:"root"`

	// Credential is the credential record file.
	Credential string `yaml:"credential"`

	// Uploads is the upload storage directory.
	Uploads string `yaml:"uploads"`
}

// ProjectConfig is one project exposed through the API.
type ProjectConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the defaults the config file is merged over. They
// give every field a sensible zero value; the file remains the source
// of truth.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "doorway")

	return &Config{
		Listen: "127.0.0.1:8743",
		Auth:   AuthConfig{Required: true},
		Paths: PathsConfig{
			Root:       defaultRoot,
			Credential: filepath.Join(defaultRoot, "credential.json"),
			Uploads:    filepath.Join(defaultRoot, "uploads"),
		},
		HeartbeatInterval: Duration(30 * time.Second),
	}
}

// Load loads configuration from the DOORWAY_CONFIG environment
// variable. Fails when it is unset; there is no discovery.
func Load() (*Config, error) {
	path := os.Getenv("DOORWAY_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("DOORWAY_CONFIG environment variable not set; " +
			"set it to the path of your doorway.yaml config file, or use --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit file path, merged over
// Default.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} patterns in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DOORWAY_ROOT": c.Paths.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DOORWAY_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.Credential = expandVars(c.Paths.Credential, vars)
	c.Paths.Uploads = expandVars(c.Paths.Uploads, vars)
	for i := range c.Projects {
		c.Projects[i].Path = expandVars(c.Projects[i].Path, vars)
	}
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Listen == "" && c.Relay.URL == "" {
		return fmt.Errorf("neither listen nor relay.url is set; the daemon would be unreachable")
	}
	if c.Relay.URL != "" && c.Relay.Name == "" {
		return fmt.Errorf("relay.url is set but relay.name is empty")
	}
	if c.Paths.Credential == "" {
		return fmt.Errorf("paths.credential is required")
	}
	if c.Paths.Uploads == "" {
		return fmt.Errorf("paths.uploads is required")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}

	seen := make(map[string]bool)
	for _, project := range c.Projects {
		if project.ID == "" {
			return fmt.Errorf("project with empty id")
		}
		if seen[project.ID] {
			return fmt.Errorf("duplicate project id %q", project.ID)
		}
		seen[project.ID] = true
	}
	return nil
}
