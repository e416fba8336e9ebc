/*
Package tls terminates TLS for the berth API and identifies callers by
client certificate.

# Server Configuration

	server:
	  tls:
	    enabled: true
	    cert_file: /etc/berth/tls/server.crt
	    key_file: /etc/berth/tls/server.key
	    min_version: "1.3"
	    cert_reload_interval: 5m

Build loads the key pair, starts a CertificateReloader bound to the given
context and returns a *tls.Config whose GetCertificate always serves the
latest pair on disk. Renewed certificates are picked up without a restart.

	tlsConfig, err := cfg.Build(ctx, logger)
	if err != nil {
		return err
	}
	ln = tls.NewListener(ln, tlsConfig)

# Client Certificates

With mtls enabled the server verifies client certificates against
client_ca_file. ClientIdentity reads the caller identity from the verified
leaf certificate using the configured identity source, so a charter
operator's certificate can key its own rate limit bucket.
*/
package tls
