// Package config provides configuration management for wagoctl.
// It handles the YAML file holding API settings, project aliases and release checks.
// The API key is never read from the file; it comes from a flag or the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values used by DefaultConfig and when fields are left empty.
const (
	DefaultBaseURL     = "https://addons.wago.io/api"
	DefaultTimeout     = 30 * time.Second
	DefaultUserAgent   = "wagoctl/1.0"
	DefaultClamAVImage = "clamav/clamav-debian:latest"

	// DefaultDatabasePath is the history database written by config init.
	DefaultDatabasePath = "wagoctl-history.db"
)

// Sentinel errors for configuration validation
var (
	ErrVersionRequired      = errors.New("version is required")
	ErrInvalidTimeout       = errors.New("api.timeout must be a valid duration")
	ErrInvalidBaseURL       = errors.New("api.base_url must start with http:// or https://")
	ErrEmptyProjectID       = errors.New("project id cannot be empty")
	ErrKeyringPathRequired  = errors.New("keyring_path is required when require_signature is enabled")
	ErrClamAVImageRequired  = errors.New("clamav image is required when clamav is enabled")
	ErrInvalidGitHubRepoFmt = errors.New("github_repository must be in format 'owner/repo'")
)

// Config represents the top-level configuration structure.
type Config struct {
	Version  string            `yaml:"version"`
	API      APIConfig         `yaml:"api"`
	Storage  StorageConfig     `yaml:"storage"`
	Projects map[string]string `yaml:"projects"` // alias -> wago project id
	Release  ReleaseConfig     `yaml:"release"`
}

// APIConfig represents the addons.wago.io connection settings.
type APIConfig struct {
	BaseURL   string `yaml:"base_url"`
	Timeout   string `yaml:"timeout"`
	UserAgent string `yaml:"user_agent"`
}

// GetTimeout parses and returns the request timeout duration
func (a *APIConfig) GetTimeout() time.Duration {
	if a.Timeout == "" {
		return DefaultTimeout
	}
	timeout, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return DefaultTimeout // Validate reports the bad value
	}
	return timeout
}

// GetBaseURL returns the configured base URL or the default one.
func (a *APIConfig) GetBaseURL() string {
	if a.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(a.BaseURL, "/")
}

// StorageConfig represents storage configuration for upload history.
// An empty DatabasePath disables history.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ReleaseConfig represents checks performed on a release before upload.
type ReleaseConfig struct {
	RequireSignature bool         `yaml:"require_signature"`
	KeyringPath      string       `yaml:"keyring_path"`      // file or directory of armored public keys
	GitHubRepository string       `yaml:"github_repository"` // default source for --changelog-from-github
	ClamAV           ClamAVConfig `yaml:"clamav"`
}

// ClamAVConfig represents ClamAV malware scanning configuration.
type ClamAVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Image   string `yaml:"image"` // Docker image, e.g., "clamav/clamav-debian:latest"
}

// LoadConfig loads and parses the configuration from a YAML file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// LoadConfigOrDefault behaves like LoadConfig but returns DefaultConfig when
// the file does not exist.
func LoadConfigOrDefault(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return LoadConfig(filePath)
}

// Validate validates the configuration structure and required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return ErrVersionRequired
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	for alias, id := range c.Projects {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("project %s: %w", alias, ErrEmptyProjectID)
		}
	}
	if err := c.Release.Validate(); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	return nil
}

// Validate validates API configuration.
func (a *APIConfig) Validate() error {
	if a.BaseURL != "" && !strings.HasPrefix(a.BaseURL, "http://") && !strings.HasPrefix(a.BaseURL, "https://") {
		return ErrInvalidBaseURL
	}
	if a.Timeout != "" {
		d, err := time.ParseDuration(a.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidTimeout, a.Timeout)
		}
	}
	return nil
}

// Validate validates release check configuration.
func (r *ReleaseConfig) Validate() error {
	if r.RequireSignature && r.KeyringPath == "" {
		return ErrKeyringPathRequired
	}
	if r.ClamAV.Enabled && r.ClamAV.Image == "" {
		return ErrClamAVImageRequired
	}
	if r.GitHubRepository != "" {
		parts := strings.Split(r.GitHubRepository, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return fmt.Errorf("%w: got %s", ErrInvalidGitHubRepoFmt, r.GitHubRepository)
		}
	}
	return nil
}

// ResolveProject maps a project alias to its id. Unknown names are returned
// unchanged so raw project ids can be used directly.
func (c *Config) ResolveProject(nameOrID string) string {
	if id, ok := c.Projects[nameOrID]; ok {
		return id
	}
	return nameOrID
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			Timeout:   DefaultTimeout.String(),
			UserAgent: DefaultUserAgent,
		},
		Projects: map[string]string{},
		Release: ReleaseConfig{
			ClamAV: ClamAVConfig{
				Enabled: false,
				Image:   DefaultClamAVImage,
			},
		},
	}
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(config *Config, filePath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", filePath, err)
	}
	return nil
}
