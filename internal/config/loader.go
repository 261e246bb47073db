package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader resolves the effective configuration from defaults, an optional YAML
// file and the process environment, in that order of increasing precedence.
type Loader struct {
	path    string
	version string
}

// NewLoader creates a Loader. path may be empty to skip file loading.
func NewLoader(path, version string) *Loader {
	return &Loader{path: path, version: version}
}

// Load resolves the configuration. Precedence: ENV > file > defaults.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.path != "" {
		raw, err := os.ReadFile(l.path)
		if err != nil {
			return AppConfig{}, fmt.Errorf("config: read %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("config: parse %s: %w", l.path, err)
		}
	}

	mergeEnv(&cfg)
	cfg.Version = l.version

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// mergeEnv overrides cfg fields from TUBEMUX_* environment variables.
func mergeEnv(cfg *AppConfig) {
	cfg.ListenAddr = ParseString("TUBEMUX_LISTEN", cfg.ListenAddr)
	cfg.PublicDir = ParseString("TUBEMUX_PUBLIC_DIR", cfg.PublicDir)
	cfg.LogLevel = ParseString("TUBEMUX_LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString("TUBEMUX_LOG_SERVICE", cfg.LogService)
	cfg.UpstreamBaseURL = ParseString("TUBEMUX_UPSTREAM_BASE_URL", cfg.UpstreamBaseURL)
	cfg.UpstreamTimeout = ParseDuration("TUBEMUX_UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	cfg.CacheTTL = ParseDuration("TUBEMUX_CACHE_TTL", cfg.CacheTTL)
	cfg.RateLimitRPM = ParseInt("TUBEMUX_RATE_LIMIT_RPM", cfg.RateLimitRPM)
	cfg.RateLimitOff = ParseBool("TUBEMUX_RATE_LIMIT_OFF", cfg.RateLimitOff)
	cfg.MaxConcurrent = ParseInt("TUBEMUX_MAX_CONCURRENT", cfg.MaxConcurrent)
	if proxies := ParseString("TUBEMUX_TRUSTED_PROXIES", ""); proxies != "" {
		cfg.TrustedProxies = splitCSV(proxies)
	}
	if origins := ParseString("TUBEMUX_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitCSV(origins)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
