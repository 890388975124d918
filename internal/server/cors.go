package server

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds CORS configuration
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins. Use ["*"] to allow all origins.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// MaxAge is how long, in seconds, a preflight result may be cached
	MaxAge int
}

// DefaultCORSConfig allows any origin to read and write short links
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}
}

// CORS provides Cross-Origin Resource Sharing middleware
type CORS struct {
	config         CORSConfig
	anyOrigin      bool
	allowedOrigins map[string]bool
	methods        string
	headers        string
}

// NewCORS creates the CORS middleware. Empty lists fall back to the defaults.
func NewCORS(config CORSConfig) *CORS {
	defaults := DefaultCORSConfig()
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = defaults.AllowedOrigins
	}
	if len(config.AllowedMethods) == 0 {
		config.AllowedMethods = defaults.AllowedMethods
	}
	if len(config.AllowedHeaders) == 0 {
		config.AllowedHeaders = defaults.AllowedHeaders
	}

	c := &CORS{
		config:         config,
		allowedOrigins: make(map[string]bool, len(config.AllowedOrigins)),
		methods:        strings.Join(config.AllowedMethods, ","),
		headers:        strings.Join(config.AllowedHeaders, ","),
	}
	for _, origin := range config.AllowedOrigins {
		origin = strings.ToLower(strings.TrimSpace(origin))
		if origin == "*" {
			c.anyOrigin = true
		}
		c.allowedOrigins[origin] = true
	}
	return c
}

// Handler applies CORS headers and answers preflight requests
func (c *CORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		headers := w.Header()

		switch {
		case c.anyOrigin:
			headers.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && c.allowedOrigins[strings.ToLower(origin)]:
			headers.Set("Access-Control-Allow-Origin", origin)
			headers.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			headers.Set("Access-Control-Allow-Methods", c.methods)
			headers.Set("Access-Control-Allow-Headers", c.headers)
			if c.config.MaxAge > 0 {
				headers.Set("Access-Control-Max-Age", strconv.Itoa(c.config.MaxAge))
			}
			headers.Set("Content-Length", "0")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
