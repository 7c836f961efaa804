// Package config loads runtime configuration from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
)

// Config is the environment-driven configuration surface. The API base
// defaults to the active profile's production endpoint when unset.
type Config struct {
	APIBase   string // TARSIER_API_URL
	Locale    string // TARSIER_LOCALE
	OutputDir string // TARSIER_OUTPUT_DIR
}

// Load reads configuration from the environment. TARSIER_API_URL is
// validated when present; the other variables are free-form.
func Load() (*Config, error) {
	cfg := &Config{
		Locale:    "en_US",
		OutputDir: ".",
	}

	if v, ok := os.LookupEnv("TARSIER_API_URL"); ok && v != "" {
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("TARSIER_API_URL is not a valid URL: %q", v)
		}
		cfg.APIBase = v
	}
	if v, ok := os.LookupEnv("TARSIER_LOCALE"); ok && v != "" {
		cfg.Locale = v
	}
	if v, ok := os.LookupEnv("TARSIER_OUTPUT_DIR"); ok && v != "" {
		cfg.OutputDir = v
	}
	return cfg, nil
}

// ResolveAPIBase returns the configured override or the profile default.
func (c *Config) ResolveAPIBase(profileDefault string) string {
	if c.APIBase != "" {
		return c.APIBase
	}
	return profileDefault
}
