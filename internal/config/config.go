package config

import (
	"net"
	"strconv"
	"time"

	"shortener/internal/ratelimit"
	"shortener/internal/telemetry"
	tlsutil "shortener/pkg/tls"
)

// Config holds service configuration
type Config struct {
	Server    Server           `yaml:"server"`
	Storage   Storage          `yaml:"storage"`
	RateLimit RateLimit        `yaml:"rateLimit"`
	Shortcode Shortcode        `yaml:"shortcode"`
	URLs      URLs             `yaml:"urls"`
	CORS      CORS             `yaml:"cors"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Server configuration
type Server struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeout     int    `yaml:"readTimeout"`
	WriteTimeout    int    `yaml:"writeTimeout"`
	ShutdownTimeout int    `yaml:"shutdownTimeout"`
	// BaseURL prefixes generated short links
	BaseURL     string `yaml:"baseUrl"`
	MetricsPath string `yaml:"metricsPath"`
	// TrustProxy makes the caller identity come from X-Forwarded-For / X-Real-IP
	TrustProxy bool `yaml:"trustProxy"`
	TLS        *TLS `yaml:"tls,omitempty"`
}

// TLS configuration
type TLS struct {
	Enabled            bool   `yaml:"enabled"`
	CertFile           string `yaml:"certFile"`
	KeyFile            string `yaml:"keyFile"`
	RootCAFile         string `yaml:"rootCAFile,omitempty"`
	MinVersion         string `yaml:"minVersion,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify,omitempty"`
}

// Storage selects and configures the key-value store
type Storage struct {
	// Type is "redis" or "memory"
	Type   string `yaml:"type"`
	Prefix string `yaml:"prefix"`
	// Timeout bounds every store call made on a request path
	Timeout    time.Duration `yaml:"timeout"`
	MaxEntries int           `yaml:"maxEntries"`
	Redis      *Redis        `yaml:"redis,omitempty"`
}

// Redis connection configuration
type Redis struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	MaxActive      int `yaml:"maxActive"`
	MaxIdle        int `yaml:"maxIdle"`
	ConnectTimeout int `yaml:"connectTimeout"`
	ReadTimeout    int `yaml:"readTimeout"`
	WriteTimeout   int `yaml:"writeTimeout"`
	IdleTimeout    int `yaml:"idleTimeout"`

	Cluster       bool     `yaml:"cluster"`
	ClusterNodes  []string `yaml:"clusterNodes"`
	Sentinel      bool     `yaml:"sentinel"`
	SentinelNodes []string `yaml:"sentinelNodes"`
	MasterName    string   `yaml:"masterName"`

	TLS *TLS `yaml:"tls,omitempty"`
}

// RateLimit holds the admission rules
type RateLimit struct {
	Enabled bool `yaml:"enabled"`
	// AtomicIncrement collapses fixed-window increment and expiry into one store call
	AtomicIncrement bool                        `yaml:"atomicIncrement"`
	IdleTTL         time.Duration               `yaml:"idleTTL"`
	Lock            TokenBucketLock             `yaml:"lock"`
	FixedWindow     []ratelimit.FixedWindowRule `yaml:"fixedWindow"`
	TokenBucket     []ratelimit.TokenBucketRule `yaml:"tokenBucket"`
}

// TokenBucketLock configures the optional per-identity token-bucket lock
type TokenBucketLock struct {
	Enabled bool          `yaml:"enabled"`
	Wait    time.Duration `yaml:"wait"`
	TTL     time.Duration `yaml:"ttl"`
}

// Shortcode configures the code allocator
type Shortcode struct {
	Length     int `yaml:"length"`
	MaxRetries int `yaml:"maxRetries"`
}

// URLs configures short-link records
type URLs struct {
	TTL       time.Duration `yaml:"ttl"`
	MaxLength int           `yaml:"maxLength"`
}

// CORS configuration
type CORS struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// Options converts the TLS section for pkg/tls
func (t TLS) Options() tlsutil.Options {
	return tlsutil.Options{
		CertFile:           t.CertFile,
		KeyFile:            t.KeyFile,
		RootCAFile:         t.RootCAFile,
		MinVersion:         t.MinVersion,
		InsecureSkipVerify: t.InsecureSkipVerify,
	}
}

// Address returns the listen address
func (s Server) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Address returns the Redis address
func (r Redis) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// RuleSet builds the validated admission rule set
func (r RateLimit) RuleSet() (*ratelimit.RuleSet, error) {
	return ratelimit.NewRuleSet(r.FixedWindow, r.TokenBucket)
}
