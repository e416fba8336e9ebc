package middleware

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"

	"charterhub/berth/pkg/config"
	berthtls "charterhub/berth/pkg/security/tls"
)

// ErrInvalidToken is returned when a bearer token is present but fails
// verification.
var ErrInvalidToken = errors.New("invalid bearer token")

// Caller key prefixes keep token subjects and addresses in separate key
// spaces.
const (
	subjectKeyPrefix     = "sub:"
	certificateKeyPrefix = "cert:"
	addressKeyPrefix     = "ip:"
)

// CallerKeys derives the rate limit key for a request.
//
// A request with a verified HMAC bearer token is keyed by the token's
// subject. Otherwise a verified client certificate keys the request by its
// identity when certificate identities are enabled. Anonymous requests are
// keyed by client address: the first X-Forwarded-For entry when trusted,
// the connection address otherwise.
type CallerKeys struct {
	secret            []byte
	issuer            string
	trustForwardedFor bool
	parser            *jwt.Parser

	certIdentity bool
	certSource   string
}

// CallerKeysOption configures CallerKeys.
type CallerKeysOption func(*CallerKeys)

// WithClientCertificates keys callers presenting a verified client
// certificate by the identity field named by source.
func WithClientCertificates(source string) CallerKeysOption {
	return func(k *CallerKeys) {
		k.certIdentity = true
		k.certSource = source
	}
}

// NewCallerKeys builds a key function from the server auth settings. With
// no JWT secret, bearer tokens are ignored.
func NewCallerKeys(cfg config.AuthConfig, opts ...CallerKeysOption) *CallerKeys {
	k := &CallerKeys{
		secret:            []byte(cfg.JWTSecret),
		issuer:            cfg.JWTIssuer,
		trustForwardedFor: cfg.TrustForwardedFor,
		parser:            jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Identify returns the caller key for r. When a bearer token is present
// but invalid it returns the certificate or address key together with
// ErrInvalidToken, so failed authentications can be charged to the caller.
func (k *CallerKeys) Identify(r *http.Request) (string, error) {
	addressKey := k.fallbackKey(r)
	if len(k.secret) == 0 {
		return addressKey, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return addressKey, nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return addressKey, fmt.Errorf("%w: authorization header is not a bearer token", ErrInvalidToken)
	}

	subject, err := k.verify(token)
	if err != nil {
		return addressKey, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return subjectKeyPrefix + subject, nil
}

func (k *CallerKeys) verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := k.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return k.secret, nil
	})
	if err != nil {
		return "", err
	}
	if k.issuer != "" && !claims.VerifyIssuer(k.issuer, true) {
		return "", fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}

func (k *CallerKeys) fallbackKey(r *http.Request) string {
	if k.certIdentity {
		if id := berthtls.ClientIdentity(r, k.certSource); id != "" {
			return certificateKeyPrefix + id
		}
	}
	return addressKeyPrefix + k.address(r)
}

func (k *CallerKeys) address(r *http.Request) string {
	if k.trustForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
