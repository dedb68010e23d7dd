// Package config loads the fusion engine's configuration.
//
// Precedence, lowest to highest:
//  1. Hardcoded defaults (Default())
//  2. User config (~/.config/patentfusion/config.yaml)
//  3. Project config (./patentfusion.yaml or ./patentfusion.yml)
//  4. Environment variables (PATENTFUSION_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete fusion engine configuration.
type Config struct {
	Version  int            `yaml:"version" json:"version"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Fusion   FusionConfig   `yaml:"fusion" json:"fusion"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Backends BackendsConfig `yaml:"backends" json:"backends"`
}

// StoreConfig configures the Redis-backed state store.
type StoreConfig struct {
	URL             string `yaml:"url" json:"url"`
	Snapshot        string `yaml:"snapshot" json:"snapshot"`
	DataTTLHours    int    `yaml:"data_ttl_hours" json:"data_ttl_hours"`
	SnippetTTLHours int    `yaml:"snippet_ttl_hours" json:"snippet_ttl_hours"`
}

// FusionConfig configures default fusion/peek parameters.
type FusionConfig struct {
	RRFK            int `yaml:"rrf_k" json:"rrf_k"`
	PeekMaxDocs     int `yaml:"peek_max_docs" json:"peek_max_docs"`
	PeekBudgetBytes int `yaml:"peek_budget_bytes" json:"peek_budget_bytes"`
}

// ServerConfig configures the MCP tool-surface transport.
type ServerConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Transport string `yaml:"transport" json:"transport"` // "stdio" or "http"
	AuthToken string `yaml:"auth_token" json:"auth_token"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// BackendConfig configures a single lane backend's HTTP endpoint.
type BackendConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	SearchPath        string        `yaml:"search_path" json:"search_path"`
	SnippetsPath      string        `yaml:"snippets_path" json:"snippets_path"`
	NumbersSearchPath string        `yaml:"numbers_search_path" json:"numbers_search_path"`
	TokenEnv          string        `yaml:"token_env" json:"token_env"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
}

// BackendsConfig groups the lane backend configs.
type BackendsConfig struct {
	Upstream      BackendConfig `yaml:"upstream" json:"upstream"`
	InternalDense BackendConfig `yaml:"internal_dense" json:"internal_dense"`
}

// Default returns the hardcoded default configuration.
// Values mirror the reference implementation's Settings defaults.
func Default() *Config {
	return &Config{
		Version: 1,
		Store: StoreConfig{
			URL:             "redis://localhost:6379/0",
			Snapshot:        "default",
			DataTTLHours:    12,
			SnippetTTLHours: 24,
		},
		Fusion: FusionConfig{
			RRFK:            60,
			PeekMaxDocs:     100,
			PeekBudgetBytes: 12288,
		},
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      3000,
			Transport: "stdio",
			AuthToken: "",
			LogLevel:  "info",
		},
		Backends: BackendsConfig{
			Upstream: BackendConfig{
				SearchPath:        "/search",
				SnippetsPath:      "/snippets",
				NumbersSearchPath: "/numbers_search",
				TokenEnv:          "PATENT_UPSTREAM_TOKEN",
				Timeout:           30 * time.Second,
			},
			InternalDense: BackendConfig{
				SearchPath:   "/search",
				SnippetsPath: "/snippets",
				TokenEnv:     "PATENT_DENSE_TOKEN",
				Timeout:      30 * time.Second,
			},
		},
	}
}

// GetUserConfigPath returns the path to the user-level config file, honoring
// $XDG_CONFIG_HOME if set.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "patentfusion", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "patentfusion", "config.yaml")
	}
	return filepath.Join(home, ".config", "patentfusion", "config.yaml")
}

// Load builds a Config by layering user config, project config (found under
// dir), and environment variables over the defaults, then validates it.
func Load(dir string) (*Config, error) {
	cfg := Default()

	if userCfg, err := loadFile(GetUserConfigPath()); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadProjectConfig(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadProjectConfig(dir string) error {
	for _, name := range []string{"patentfusion.yaml", "patentfusion.yml"} {
		path := filepath.Join(dir, name)
		parsed, err := loadFile(path)
		if err != nil {
			return err
		}
		if parsed != nil {
			c.mergeWith(parsed)
			return nil
		}
	}
	return nil
}

// loadFile parses a YAML config file. Returns (nil, nil) if the file is absent.
func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &parsed, nil
}

// mergeWith overlays non-zero fields from other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Store.URL != "" {
		c.Store.URL = other.Store.URL
	}
	if other.Store.Snapshot != "" {
		c.Store.Snapshot = other.Store.Snapshot
	}
	if other.Store.DataTTLHours != 0 {
		c.Store.DataTTLHours = other.Store.DataTTLHours
	}
	if other.Store.SnippetTTLHours != 0 {
		c.Store.SnippetTTLHours = other.Store.SnippetTTLHours
	}

	if other.Fusion.RRFK != 0 {
		c.Fusion.RRFK = other.Fusion.RRFK
	}
	if other.Fusion.PeekMaxDocs != 0 {
		c.Fusion.PeekMaxDocs = other.Fusion.PeekMaxDocs
	}
	if other.Fusion.PeekBudgetBytes != 0 {
		c.Fusion.PeekBudgetBytes = other.Fusion.PeekBudgetBytes
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.AuthToken != "" {
		c.Server.AuthToken = other.Server.AuthToken
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	mergeBackend(&c.Backends.Upstream, &other.Backends.Upstream)
	mergeBackend(&c.Backends.InternalDense, &other.Backends.InternalDense)
}

func mergeBackend(c, other *BackendConfig) {
	if other.BaseURL != "" {
		c.BaseURL = other.BaseURL
	}
	if other.SearchPath != "" {
		c.SearchPath = other.SearchPath
	}
	if other.SnippetsPath != "" {
		c.SnippetsPath = other.SnippetsPath
	}
	if other.NumbersSearchPath != "" {
		c.NumbersSearchPath = other.NumbersSearchPath
	}
	if other.TokenEnv != "" {
		c.TokenEnv = other.TokenEnv
	}
	if other.Timeout != 0 {
		c.Timeout = other.Timeout
	}
}

// applyEnvOverrides applies PATENTFUSION_* environment variable overrides,
// the highest-precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PATENTFUSION_STORE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("PATENTFUSION_SNAPSHOT"); v != "" {
		c.Store.Snapshot = v
	}
	if v := os.Getenv("PATENTFUSION_RRF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Fusion.RRFK = k
		}
	}
	if v := os.Getenv("PATENTFUSION_PEEK_MAX_DOCS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Fusion.PeekMaxDocs = n
		}
	}
	if v := os.Getenv("PATENTFUSION_PEEK_BUDGET_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Fusion.PeekBudgetBytes = n
		}
	}
	if v := os.Getenv("PATENTFUSION_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PATENTFUSION_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("PATENTFUSION_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("PATENTFUSION_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("PATENTFUSION_MCP_API_TOKEN"); v != "" {
		c.Server.AuthToken = v
	}
	if v := os.Getenv("PATENTFUSION_UPSTREAM_URL"); v != "" {
		c.Backends.Upstream.BaseURL = v
	}
	if v := os.Getenv("PATENTFUSION_DENSE_URL"); v != "" {
		c.Backends.InternalDense.BaseURL = v
	}
}

// BackendToken resolves a backend's API token from its configured env var.
func (bc BackendConfig) BackendToken() string {
	if bc.TokenEnv == "" {
		return ""
	}
	return os.Getenv(bc.TokenEnv)
}

// Validate checks the configuration for internally-inconsistent values.
func (c *Config) Validate() error {
	if c.Fusion.RRFK <= 0 {
		return fmt.Errorf("fusion.rrf_k must be positive, got %d", c.Fusion.RRFK)
	}
	if c.Fusion.PeekMaxDocs < 0 {
		return fmt.Errorf("fusion.peek_max_docs must be non-negative, got %d", c.Fusion.PeekMaxDocs)
	}
	if c.Fusion.PeekBudgetBytes < 0 {
		return fmt.Errorf("fusion.peek_budget_bytes must be non-negative, got %d", c.Fusion.PeekBudgetBytes)
	}

	validTransports := map[string]bool{"stdio": true, "http": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'http', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
