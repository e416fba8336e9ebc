package tls

import (
	"crypto/x509"
	"net/http"
)

func validIdentitySource(source string) bool {
	switch source {
	case "subject.CN", "subject.OU", "subject.O", "SAN", "":
		return true
	}
	return false
}

// ExtractClientIdentity reads the identity field named by source from
// cert. It returns "" when the field is empty or the source is unknown.
func ExtractClientIdentity(cert *x509.Certificate, source string) string {
	if cert == nil {
		return ""
	}

	switch source {
	case "subject.CN", "":
		return cert.Subject.CommonName
	case "subject.OU":
		if len(cert.Subject.OrganizationalUnit) > 0 {
			return cert.Subject.OrganizationalUnit[0]
		}
	case "subject.O":
		if len(cert.Subject.Organization) > 0 {
			return cert.Subject.Organization[0]
		}
	case "SAN":
		if len(cert.DNSNames) > 0 {
			return cert.DNSNames[0]
		}
	}
	return ""
}

// ClientIdentity returns the identity of the verified client certificate
// on r, or "" for plaintext requests and requests without a verified
// chain.
func ClientIdentity(r *http.Request, source string) string {
	if r.TLS == nil || len(r.TLS.VerifiedChains) == 0 || len(r.TLS.VerifiedChains[0]) == 0 {
		return ""
	}
	return ExtractClientIdentity(r.TLS.VerifiedChains[0][0], source)
}
