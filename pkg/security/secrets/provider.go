package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Provider that does not hold the secret.
var ErrNotFound = errors.New("secret not found")

// Provider looks up secrets by name.
type Provider interface {
	// Lookup returns the secret value, or an error wrapping ErrNotFound
	// when the provider does not hold it.
	Lookup(ctx context.Context, name string) (string, error)

	// Name identifies the provider in logs and errors.
	Name() string
}
