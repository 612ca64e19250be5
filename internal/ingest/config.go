// Package ingest fetches per-patient FHIR bundles from a FHIR server.
package ingest

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds FHIR server settings. Values are read from FHIR_* environment
// variables; command-line flags override them.
type Config struct {
	URL         string        `envconfig:"URL"`
	APIKey      string        `envconfig:"API_KEY"`
	Since       string        `envconfig:"SINCE"`
	OutDir      string        `envconfig:"OUT_DIR" default:"."`
	PageSize    int           `envconfig:"PAGE_SIZE" default:"1000"`
	MaxRetries  uint64        `envconfig:"MAX_RETRIES" default:"5"`
	Concurrency int           `envconfig:"CONCURRENCY" default:"1"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"60s"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("FHIR", &cfg); err != nil {
		return Config{}, fmt.Errorf("read FHIR environment: %w", err)
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("FHIR server URL is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("FHIR API key is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d", c.PageSize)
	}
	if c.Since != "" && !validSince(c.Since) {
		return fmt.Errorf("since must be YYYY-MM-DD or an RFC 3339 timestamp, got %q", c.Since)
	}
	return nil
}

func validSince(s string) bool {
	if _, err := time.Parse(time.DateOnly, s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}
