package middleware

import (
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"charterhub/berth/pkg/config"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestCallerKeys_Identify(t *testing.T) {
	valid := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "customer-17",
		Issuer:    "berth-auth",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	expired := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "customer-17",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongKey := signToken(t, "another-secret", jwt.RegisteredClaims{Subject: "customer-17"})
	wrongIssuer := signToken(t, testSecret, jwt.RegisteredClaims{Subject: "customer-17", Issuer: "elsewhere"})
	noSubject := signToken(t, testSecret, jwt.RegisteredClaims{Issuer: "berth-auth"})

	auth := config.AuthConfig{JWTSecret: testSecret, JWTIssuer: "berth-auth"}

	tests := []struct {
		name          string
		cfg           config.AuthConfig
		authorization string
		forwardedFor  string
		wantKey       string
		wantInvalid   bool
	}{
		{"anonymous", auth, "", "", "ip:192.0.2.10", false},
		{"valid token", auth, "Bearer " + valid, "", "sub:customer-17", false},
		{"expired token", auth, "Bearer " + expired, "", "ip:192.0.2.10", true},
		{"wrong key", auth, "Bearer " + wrongKey, "", "ip:192.0.2.10", true},
		{"wrong issuer", auth, "Bearer " + wrongIssuer, "", "ip:192.0.2.10", true},
		{"no subject", auth, "Bearer " + noSubject, "", "ip:192.0.2.10", true},
		{"not bearer", auth, "Basic dXNlcjpwYXNz", "", "ip:192.0.2.10", true},
		{"tokens ignored without secret", config.AuthConfig{}, "Bearer " + wrongKey, "", "ip:192.0.2.10", false},
		{"forwarded for untrusted", auth, "", "203.0.113.5", "ip:192.0.2.10", false},
		{
			name:         "forwarded for trusted",
			cfg:          config.AuthConfig{TrustForwardedFor: true},
			forwardedFor: "203.0.113.5, 10.0.0.1",
			wantKey:      "ip:203.0.113.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
			req.RemoteAddr = "192.0.2.10:51234"
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			if tt.forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", tt.forwardedFor)
			}

			key, err := NewCallerKeys(tt.cfg).Identify(req)
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if got := errors.Is(err, ErrInvalidToken); got != tt.wantInvalid {
				t.Errorf("invalid token = %v (err %v), want %v", got, err, tt.wantInvalid)
			}
		})
	}
}

func TestCallerKeys_ClientCertificates(t *testing.T) {
	valid := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "customer-17",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	leaf := &x509.Certificate{Subject: pkix.Name{CommonName: "operator-42"}}
	verified := &tls.ConnectionState{
		PeerCertificates: []*x509.Certificate{leaf},
		VerifiedChains:   [][]*x509.Certificate{{leaf}},
	}
	auth := config.AuthConfig{JWTSecret: testSecret}

	tests := []struct {
		name          string
		opts          []CallerKeysOption
		state         *tls.ConnectionState
		authorization string
		wantKey       string
		wantInvalid   bool
	}{
		{"certificate identity", []CallerKeysOption{WithClientCertificates("subject.CN")}, verified, "", "cert:operator-42", false},
		{"token wins over certificate", []CallerKeysOption{WithClientCertificates("subject.CN")}, verified, "Bearer " + valid, "sub:customer-17", false},
		{"invalid token charged to certificate", []CallerKeysOption{WithClientCertificates("subject.CN")}, verified, "Bearer nope", "cert:operator-42", true},
		{"no certificate", []CallerKeysOption{WithClientCertificates("subject.CN")}, nil, "", "ip:192.0.2.10", false},
		{"certificates disabled", nil, verified, "", "ip:192.0.2.10", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/reservations", nil)
			req.RemoteAddr = "192.0.2.10:51234"
			req.TLS = tt.state
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}

			key, err := NewCallerKeys(auth, tt.opts...).Identify(req)
			if key != tt.wantKey {
				t.Errorf("key = %q, want %q", key, tt.wantKey)
			}
			if got := errors.Is(err, ErrInvalidToken); got != tt.wantInvalid {
				t.Errorf("invalid token = %v (err %v), want %v", got, err, tt.wantInvalid)
			}
		})
	}
}
