package tls

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"net/http/httptest"
	"testing"
)

func TestExtractClientIdentity(t *testing.T) {
	cert := &x509.Certificate{
		Subject: pkix.Name{
			CommonName:         "operator-42",
			OrganizationalUnit: []string{"fleet"},
			Organization:       []string{"Harbour Charters"},
		},
		DNSNames: []string{"ops.harbour.test", "backup.harbour.test"},
	}

	tests := []struct {
		source string
		cert   *x509.Certificate
		want   string
	}{
		{"subject.CN", cert, "operator-42"},
		{"", cert, "operator-42"},
		{"subject.OU", cert, "fleet"},
		{"subject.O", cert, "Harbour Charters"},
		{"SAN", cert, "ops.harbour.test"},
		{"subject.L", cert, ""},
		{"SAN", &x509.Certificate{}, ""},
		{"subject.OU", &x509.Certificate{}, ""},
		{"subject.CN", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			if got := ExtractClientIdentity(tt.cert, tt.source); got != tt.want {
				t.Errorf("ExtractClientIdentity(%q) = %q, want %q", tt.source, got, tt.want)
			}
		})
	}
}

func TestClientIdentity(t *testing.T) {
	leaf := &x509.Certificate{Subject: pkix.Name{CommonName: "operator-42"}}

	plain := httptest.NewRequest("GET", "/", nil)
	if got := ClientIdentity(plain, "subject.CN"); got != "" {
		t.Errorf("plaintext identity = %q", got)
	}

	unverified := httptest.NewRequest("GET", "/", nil)
	unverified.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{leaf}}
	if got := ClientIdentity(unverified, "subject.CN"); got != "" {
		t.Errorf("unverified identity = %q", got)
	}

	verified := httptest.NewRequest("GET", "/", nil)
	verified.TLS = &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{leaf},
		VerifiedChains:   [][]*x509.Certificate{{leaf}},
	}
	if got := ClientIdentity(verified, "subject.CN"); got != "operator-42" {
		t.Errorf("verified identity = %q, want operator-42", got)
	}
}
