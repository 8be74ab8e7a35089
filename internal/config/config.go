// Package config provides configuration loading and structs for the studydesk server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool                      `yaml:"debug"`
	Server    ServerConfig              `yaml:"server"`
	Storage   StorageConfig             `yaml:"storage"`
	Upload    UploadConfig              `yaml:"upload"`
	Auth      AuthConfig                `yaml:"auth"`
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// StaticDir is served at / when set.
	StaticDir             string `yaml:"static_dir"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// RequestTimeout returns the per-request deadline.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the table backend and where data lives.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DataDir      string `yaml:"data_dir"`
	DatabasePath string `yaml:"database_path"`
}

// TablesDir is where the json driver keeps one file per table.
func (s StorageConfig) TablesDir() string {
	return filepath.Join(s.DataDir, "database")
}

// UploadsDir is the root for uploaded files.
func (s StorageConfig) UploadsDir() string {
	return filepath.Join(s.DataDir, "uploads")
}

// UploadConfig bounds a single upload request.
type UploadConfig struct {
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	MaxFiles     int   `yaml:"max_files"`
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	TokenTTLHours int  `yaml:"token_ttl_hours"`
	RequireToken  bool `yaml:"require_token"`
}

// TokenTTL returns the session lifetime.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// ProviderConfig describes one OpenAI-compatible chat endpoint.
type ProviderConfig struct {
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key,omitempty"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// ProviderNames returns the configured provider names in sorted order.
func (c *Config) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and parses the config file at path, expands paths, applies defaults
// and environment overrides.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Expand before defaults so database_path can derive from an expanded data_dir.
	configDir := filepath.Dir(path)
	for _, p := range []*string{&cfg.Storage.DataDir, &cfg.Storage.DatabasePath, &cfg.Server.StaticDir} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}

	ApplyDefaults(&cfg)
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied, for running without a file.
func Default() (*Config, error) {
	var cfg Config
	ApplyDefaults(&cfg)
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv applies environment overrides: PORT for the server port and each
// provider's api_key_env for its key.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Server.Port = port
	}
	for name, p := range cfg.Providers {
		if p.APIKeyEnv == "" {
			continue
		}
		if key := strings.TrimSpace(getenv(p.APIKeyEnv)); key != "" {
			p.APIKey = key
			cfg.Providers[name] = p
		}
	}
	return nil
}

// Save writes the config to path. API keys are not persisted.
func Save(path string, cfg *Config) error {
	out := *cfg
	out.Providers = make(map[string]ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		p.APIKey = ""
		out.Providers[name] = p
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
