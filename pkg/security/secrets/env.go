package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// DefaultEnvPrefix namespaces secret environment variables.
const DefaultEnvPrefix = "BERTH_SECRET_"

// EnvProvider reads secrets from environment variables. A secret name is
// upper-cased, hyphens become underscores and the prefix is prepended.
type EnvProvider struct {
	prefix string
	getenv func(string) (string, bool)
}

// NewEnvProvider creates an environment provider.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, getenv: os.LookupEnv}
}

// Lookup implements Provider. A variable that is set but empty counts as
// not found.
func (p *EnvProvider) Lookup(_ context.Context, name string) (string, error) {
	variable := p.Variable(name)
	value, ok := p.getenv(variable)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrNotFound, variable)
	}
	return value, nil
}

// Variable returns the environment variable holding secret name.
func (p *EnvProvider) Variable(name string) string {
	return p.prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Name implements Provider.
func (p *EnvProvider) Name() string {
	return "env"
}
