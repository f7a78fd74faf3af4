// Package config provides configuration loading and management for Agora.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete Agora configuration
type Config struct {
	NATS       NATSConfig       `yaml:"nats"`
	HTTP       HTTPConfig       `yaml:"http"`
	Governance GovernanceConfig `yaml:"governance"`
	Credits    CreditsConfig    `yaml:"credits"`
	Extraction ExtractionConfig `yaml:"extraction"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL
	URL string `yaml:"url"`
}

// HTTPConfig configures the HTTP API surface
type HTTPConfig struct {
	// Port is the HTTP listen port for API components
	Port int `yaml:"port"`
}

// GovernanceConfig configures proposal lifecycle behavior
type GovernanceConfig struct {
	// ProposalTTL is the voting window for new proposals
	ProposalTTL time.Duration `yaml:"proposal_ttl"`
}

// CreditsConfig configures the compute-credit policy
type CreditsConfig struct {
	// MinLocalBalance is the local floor below which embedding is refused
	MinLocalBalance uint64 `yaml:"min_local_balance"`
	// MinArchiveBalance is the archive-side health floor
	MinArchiveBalance uint64 `yaml:"min_archive_balance"`
	// CostPerDocument is the estimated credit cost per embedded document
	CostPerDocument uint64 `yaml:"cost_per_document"`
	// ReserveFloor is the balance kept back from funding transfers
	ReserveFloor uint64 `yaml:"reserve_floor"`
}

// ExtractionConfig configures document extraction
type ExtractionConfig struct {
	// FetchTimeout bounds a single page fetch
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// UserAgent identifies agora to fetched sites
	UserAgent string `yaml:"user_agent"`
	// MaxContentSize caps fetched page size in bytes
	MaxContentSize int64 `yaml:"max_content_size"`
	// FilePatterns is the upload filename allowlist
	FilePatterns []string `yaml:"file_patterns"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		HTTP: HTTPConfig{
			Port: 8080,
		},
		Governance: GovernanceConfig{
			ProposalTTL: 7 * 24 * time.Hour,
		},
		Credits: CreditsConfig{
			MinLocalBalance:   10_000_000,
			MinArchiveBalance: 50_000_000,
			CostPerDocument:   10_000_000,
			ReserveFloor:      5_000_000,
		},
		Extraction: ExtractionConfig{
			FetchTimeout:   30 * time.Second,
			UserAgent:      "agora/0.1 (+https://github.com/c360studio/agora)",
			MaxContentSize: 10 * 1024 * 1024,
			FilePatterns:   nil, // extractor defaults
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	if c.Governance.ProposalTTL <= 0 {
		return fmt.Errorf("governance.proposal_ttl must be positive")
	}
	if c.Credits.CostPerDocument == 0 {
		return fmt.Errorf("credits.cost_per_document must be positive")
	}
	if c.Extraction.MaxContentSize <= 0 {
		return fmt.Errorf("extraction.max_content_size must be positive")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.HTTP.Port != 0 {
		c.HTTP.Port = other.HTTP.Port
	}
	if other.Governance.ProposalTTL != 0 {
		c.Governance.ProposalTTL = other.Governance.ProposalTTL
	}

	if other.Credits.MinLocalBalance != 0 {
		c.Credits.MinLocalBalance = other.Credits.MinLocalBalance
	}
	if other.Credits.MinArchiveBalance != 0 {
		c.Credits.MinArchiveBalance = other.Credits.MinArchiveBalance
	}
	if other.Credits.CostPerDocument != 0 {
		c.Credits.CostPerDocument = other.Credits.CostPerDocument
	}
	if other.Credits.ReserveFloor != 0 {
		c.Credits.ReserveFloor = other.Credits.ReserveFloor
	}

	if other.Extraction.FetchTimeout != 0 {
		c.Extraction.FetchTimeout = other.Extraction.FetchTimeout
	}
	if other.Extraction.UserAgent != "" {
		c.Extraction.UserAgent = other.Extraction.UserAgent
	}
	if other.Extraction.MaxContentSize != 0 {
		c.Extraction.MaxContentSize = other.Extraction.MaxContentSize
	}
	if len(other.Extraction.FilePatterns) > 0 {
		c.Extraction.FilePatterns = other.Extraction.FilePatterns
	}
}
