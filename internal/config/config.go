// Package config loads the daemon configuration with ENV > file > defaults
// precedence.
package config

import (
	"fmt"
	"net"
	"time"
)

// AppConfig holds the full runtime configuration of the daemon.
type AppConfig struct {
	// Server
	ListenAddr string `yaml:"listen"`     // address for the HTTP server, e.g. ":3000"
	PublicDir  string `yaml:"public_dir"` // directory with the static frontend, empty disables

	// Logging
	LogLevel   string `yaml:"log_level"`
	LogService string `yaml:"log_service"`

	// Upstream platform client
	UpstreamBaseURL string        `yaml:"upstream_base_url"` // override for tests
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`  // metadata requests only, streams are unbounded

	// Metadata cache
	CacheTTL time.Duration `yaml:"cache_ttl"` // 0 disables caching

	// Rate limiting
	RateLimitRPM   int      `yaml:"rate_limit_rpm"` // requests per minute per client IP
	RateLimitOff   bool     `yaml:"rate_limit_off"`
	MaxConcurrent  int      `yaml:"max_concurrent"`  // concurrent download pipelines, 0 = unlimited
	TrustedProxies []string `yaml:"trusted_proxies"` // CIDRs allowed to set X-Forwarded-For

	// CORS
	AllowedOrigins []string `yaml:"allowed_origins"` // empty allows all

	Version string `yaml:"-"`
}

// Defaults returns the built-in configuration defaults.
func Defaults() AppConfig {
	return AppConfig{
		ListenAddr:      ":3000",
		PublicDir:       "public",
		LogLevel:        "info",
		LogService:      "tubemux",
		UpstreamTimeout: 30 * time.Second,
		CacheTTL:        5 * time.Minute,
		RateLimitRPM:    120,
		MaxConcurrent:   8,
	}
}

// Validate performs fail-fast sanity checks on the loaded configuration.
func (c *AppConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address must not be empty")
	}
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("config: upstream timeout must not be negative")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("config: cache TTL must not be negative")
	}
	if c.RateLimitRPM < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("config: max concurrent sessions must not be negative")
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("config: trusted proxy %q is not a CIDR: %w", cidr, err)
		}
	}
	return nil
}
