package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shortener/internal/shortcode"
	"shortener/pkg/errors"
)

// Loader loads configuration from file
type Loader struct {
	path       string
	dotenvPath string
	envEnabled bool
}

// NewLoader creates a config loader. An empty or missing path yields the
// embedded defaults.
func NewLoader(path string) *Loader {
	return &Loader{
		path:       path,
		dotenvPath: ".env",
		envEnabled: true, // Enable env vars by default
	}
}

// WithEnvVars enables or disables environment variable loading
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// WithDotenv sets the .env file read before environment overrides are
// applied. An empty path disables it.
func (l *Loader) WithDotenv(path string) *Loader {
	l.dotenvPath = path
	return l
}

// Load loads the configuration: embedded defaults, then the YAML file, then
// environment variables (including those from .env).
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Load loads the configuration
func (l *Loader) Load() (*Config, error) {
	cfg, err := LoadDefault()
	if err != nil {
		return nil, errors.NewError(errors.ErrorTypeInternal, "failed to parse default config").WithCause(err)
	}

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to parse config").
					WithDetail("path", l.path).
					WithCause(err)
			}
		case os.IsNotExist(err):
			// defaults only
		default:
			return nil, errors.NewError(errors.ErrorTypeInternal, "failed to read config file").
				WithDetail("path", l.path).
				WithCause(err)
		}
	}

	// Override with environment variables if enabled
	if l.envEnabled {
		if l.dotenvPath != "" {
			if err := godotenv.Load(l.dotenvPath); err != nil && !os.IsNotExist(err) {
				return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to load .env file").
					WithDetail("path", l.dotenvPath).
					WithCause(err)
			}
		}
		if err := LoadEnv(cfg); err != nil {
			return nil, errors.NewError(errors.ErrorTypeConfiguration, "failed to load env vars").WithCause(err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, errors.NewError(errors.ErrorTypeConfiguration, "invalid configuration").WithCause(err)
	}

	return cfg, nil
}

// Validate checks the configuration for values the service cannot run with
func Validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return invalid("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return invalid("server TLS requires certFile and keyFile")
		}
	}

	switch cfg.Storage.Type {
	case "memory":
	case "redis":
		if cfg.Storage.Redis == nil {
			return invalid("redis storage configuration is required")
		}
		r := cfg.Storage.Redis
		switch {
		case r.Cluster && len(r.ClusterNodes) == 0:
			return invalid("redis cluster requires clusterNodes")
		case r.Sentinel && (len(r.SentinelNodes) == 0 || r.MasterName == ""):
			return invalid("redis sentinel requires sentinelNodes and masterName")
		case !r.Cluster && !r.Sentinel && r.Host == "":
			return invalid("redis host is required")
		}
	default:
		return invalid("unknown storage type: %q", cfg.Storage.Type)
	}
	if cfg.Storage.Timeout < 0 {
		return invalid("storage timeout must not be negative")
	}

	// Fallback codes are FallbackGrowth characters longer and must still be
	// accepted by the redirect route
	if maxLen := shortcode.MaxLength - shortcode.FallbackGrowth; cfg.Shortcode.Length < shortcode.MinLength || cfg.Shortcode.Length > maxLen {
		return invalid("shortcode length must be between %d and %d, got %d",
			shortcode.MinLength, maxLen, cfg.Shortcode.Length).
			WithDetail("length", cfg.Shortcode.Length)
	}
	if cfg.Shortcode.MaxRetries < 1 {
		return invalid("shortcode maxRetries must be at least 1, got %d", cfg.Shortcode.MaxRetries)
	}

	if cfg.URLs.MaxLength <= 0 {
		return invalid("urls maxLength must be positive")
	}
	if cfg.URLs.TTL < 0 {
		return invalid("urls ttl must not be negative")
	}

	if cfg.RateLimit.Lock.Wait < 0 || cfg.RateLimit.Lock.TTL < 0 {
		return invalid("rate limit lock durations must not be negative")
	}
	if _, err := cfg.RateLimit.RuleSet(); err != nil {
		return err
	}

	return nil
}

func invalid(format string, args ...any) *errors.Error {
	return errors.NewError(errors.ErrorTypeConfiguration, fmt.Sprintf(format, args...))
}
