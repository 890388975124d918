// Package tls builds crypto/tls configurations from file-based settings.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// Options describes a TLS endpoint configured through files
type Options struct {
	CertFile           string
	KeyFile            string
	RootCAFile         string
	MinVersion         string
	InsecureSkipVerify bool
}

// ParseTLSVersion maps "1.0".."1.3" to the crypto/tls constant. Anything
// else yields TLS 1.2.
func ParseTLSVersion(version string) uint16 {
	switch version {
	case "1.0":
		return tls.VersionTLS10
	case "1.1":
		return tls.VersionTLS11
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}

// ClientConfig builds a client configuration, loading the client key pair
// and root CAs when given.
func ClientConfig(opts Options) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         ParseTLSVersion(opts.MinVersion),
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	if opts.CertFile != "" && opts.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if opts.RootCAFile != "" {
		pem, err := os.ReadFile(opts.RootCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read root CA: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", opts.RootCAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

// ServerConfig builds a server configuration serving the given key pair
func ServerConfig(opts Options) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   ParseTLSVersion(opts.MinVersion),
		Certificates: []tls.Certificate{cert},
	}, nil
}
