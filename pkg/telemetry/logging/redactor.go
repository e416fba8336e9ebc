package logging

import (
	"log/slog"
	"net"
	"regexp"
	"strings"

	"charterhub/berth/pkg/config"
)

// Redactor masks caller identifiers and credentials in log attributes.
type Redactor struct {
	patterns []*redactPattern
}

// redactPattern contains a compiled regex and replacement string.
type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternBearerToken = "bearer_token"
	PatternJWT         = "jwt"
	PatternEmail       = "email"
	PatternPassword    = "password"
)

var defaultPatterns = []struct {
	name        string
	regex       string
	replacement string
}{
	{PatternBearerToken, `Bearer\s+[a-zA-Z0-9\-._~+/]+=*`, "Bearer ***"},
	{PatternJWT, `eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]*`, "jwt-***"},
	{PatternEmail, `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`, "***@***"},
	{PatternPassword, `(password|passwd|pwd)[:=]\s*[^\s]+`, "$1: ***"},
}

// Keys whose values are replaced outright.
var secretKeys = []string{
	"password", "passwd", "secret", "token", "authorization", "jwt",
}

// Keys holding customer or caller identifiers, which are partially masked.
var identityKeys = []string{
	"customer_id", "caller", "subject", "client_ip", "remote_addr",
}

// NewRedactor creates a Redactor with the built-in patterns followed by
// custom ones. Custom patterns that fail to compile are skipped.
func NewRedactor(custom []config.RedactPattern) *Redactor {
	r := &Redactor{}
	for _, p := range defaultPatterns {
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.name,
			regex:       regexp.MustCompile(p.regex),
			replacement: p.replacement,
		})
	}
	for _, p := range custom {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			continue
		}
		r.patterns = append(r.patterns, &redactPattern{
			name:        p.Name,
			regex:       regex,
			replacement: p.Replacement,
		})
	}
	return r
}

// ReplaceAttr has the slog.HandlerOptions.ReplaceAttr signature.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.SourceKey {
		return a
	}

	key := strings.ToLower(a.Key)
	switch {
	case matchesAny(key, secretKeys):
		return slog.String(a.Key, "***")
	case matchesAny(key, identityKeys):
		return slog.String(a.Key, RedactIdentifier(a.Value.String()))
	}

	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}

// RedactString applies every pattern to value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

func matchesAny(key string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(key, c) {
			return true
		}
	}
	return false
}

// RedactIdentifier masks a caller identifier. IP addresses keep their
// first octet (or first IPv6 group); other identifiers keep a four
// character prefix.
func RedactIdentifier(id string) string {
	if host, _, err := net.SplitHostPort(id); err == nil {
		id = host
	}
	if ip := net.ParseIP(id); ip != nil {
		if ip.To4() != nil {
			return RedactIPv4(id)
		}
		return strings.SplitN(id, ":", 2)[0] + ":***"
	}
	if len(id) <= 4 {
		return "***"
	}
	return id[:4] + "***"
}

// RedactIPv4 redacts an IPv4 address, keeping only the first octet.
func RedactIPv4(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	return parts[0] + ".*.*.*"
}
