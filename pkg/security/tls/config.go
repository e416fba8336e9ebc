package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultMinVersion     = "1.3"
	DefaultReloadInterval = 5 * time.Minute
	DefaultClientAuthType = "require"
	DefaultIdentitySource = "subject.CN"
)

// Config is the TLS listener configuration. TLS 1.0 and 1.1 are not
// accepted.
type Config struct {
	// Enabled serves the API over TLS.
	Enabled bool `yaml:"enabled"`

	// CertFile is the path to the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// CipherSuites restricts TLS 1.2 suites. Empty uses Go's defaults.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often the key pair is checked for changes.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"cert_reload_interval"`

	// MTLS configures client certificate verification.
	MTLS MTLSConfig `yaml:"mtls"`
}

// MTLSConfig configures client certificate authentication.
type MTLSConfig struct {
	// Enabled requests client certificates.
	Enabled bool `yaml:"enabled"`

	// ClientCAFile is the PEM bundle client certificates must chain to.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuthType is one of:
	//   - "require": reject handshakes without a valid certificate
	//   - "verify_if_given": verify a certificate when one is presented
	// Default: "require"
	ClientAuthType string `yaml:"client_auth_type"`

	// IdentitySource selects the certificate field used as the caller
	// identity: "subject.CN", "subject.OU", "subject.O" or "SAN".
	// Default: "subject.CN"
	IdentitySource string `yaml:"identity_source"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MinVersion == "" {
		c.MinVersion = DefaultMinVersion
	}
	if c.ReloadInterval == 0 {
		c.ReloadInterval = DefaultReloadInterval
	}
	if c.MTLS.ClientAuthType == "" {
		c.MTLS.ClientAuthType = DefaultClientAuthType
	}
	if c.MTLS.IdentitySource == "" {
		c.MTLS.IdentitySource = DefaultIdentitySource
	}
}

// Validate reports every invalid field. A disabled configuration is always
// valid. Files are not opened; Build reports unreadable files.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	if c.CertFile == "" {
		errs = append(errs, errors.New("cert_file is required when TLS is enabled"))
	}
	if c.KeyFile == "" {
		errs = append(errs, errors.New("key_file is required when TLS is enabled"))
	}
	if _, err := parseVersion(c.MinVersion); err != nil {
		errs = append(errs, err)
	}
	if _, err := parseCipherSuites(c.CipherSuites); err != nil {
		errs = append(errs, err)
	}
	if c.ReloadInterval < 0 {
		errs = append(errs, errors.New("cert_reload_interval must be positive"))
	}
	if c.MTLS.Enabled {
		if c.MTLS.ClientCAFile == "" {
			errs = append(errs, errors.New("mtls.client_ca_file is required when mTLS is enabled"))
		}
		if _, err := parseClientAuthType(c.MTLS.ClientAuthType); err != nil {
			errs = append(errs, err)
		}
		if !validIdentitySource(c.MTLS.IdentitySource) {
			errs = append(errs, fmt.Errorf("invalid mtls.identity_source %q", c.MTLS.IdentitySource))
		}
	}
	return errors.Join(errs...)
}

// Build loads the key pair and returns a server *tls.Config. The returned
// config reloads the key pair from disk until ctx is cancelled. It returns
// nil when TLS is disabled.
func (c Config) Build(ctx context.Context, logger *slog.Logger) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	version, _ := parseVersion(c.MinVersion)
	suites, _ := parseCipherSuites(c.CipherSuites)

	reloader := NewCertificateReloader(c.CertFile, c.KeyFile, c.ReloadInterval, logger)
	if err := reloader.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	// #nosec G402 - MinVersion is validated to 1.2 or 1.3
	cfg := &tls.Config{
		MinVersion:     version,
		CipherSuites:   suites,
		GetCertificate: reloader.GetCertificateFunc(),
	}

	if c.MTLS.Enabled {
		if err := c.configureMTLS(cfg); err != nil {
			return nil, fmt.Errorf("failed to configure mTLS: %w", err)
		}
	}
	return cfg, nil
}

func (c Config) configureMTLS(cfg *tls.Config) error {
	pem, err := os.ReadFile(c.MTLS.ClientCAFile)
	if err != nil {
		return fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("no certificates found in %s", c.MTLS.ClientCAFile)
	}

	auth, _ := parseClientAuthType(c.MTLS.ClientAuthType)
	cfg.ClientCAs = pool
	cfg.ClientAuth = auth
	return nil
}

func parseVersion(v string) (uint16, error) {
	switch v {
	case "1.3", "":
		return tls.VersionTLS13, nil
	case "1.2":
		return tls.VersionTLS12, nil
	default:
		return 0, fmt.Errorf("invalid min_version %q: must be '1.2' or '1.3'", v)
	}
}

func parseCipherSuites(names []string) ([]uint16, error) {
	if len(names) == 0 {
		return nil, nil
	}
	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		id, ok := cipherSuites[name]
		if !ok {
			return nil, fmt.Errorf("unsupported cipher suite %q", name)
		}
		suites = append(suites, id)
	}
	return suites, nil
}

func parseClientAuthType(s string) (tls.ClientAuthType, error) {
	switch s {
	case "require", "":
		return tls.RequireAndVerifyClientCert, nil
	case "verify_if_given":
		return tls.VerifyClientCertIfGiven, nil
	default:
		return tls.NoClientCert, fmt.Errorf("invalid mtls.client_auth_type %q: must be 'require' or 'verify_if_given'", s)
	}
}

// cipherSuites lists the accepted suites. TLS 1.3 suites are always
// enabled by Go and are listed only so configurations naming them validate.
var cipherSuites = map[string]uint16{
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,

	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}
