package config

import (
	"context"
	"errors"
	"fmt"

	"charterhub/berth/pkg/security/secrets"
)

// ResolveSecrets replaces ${secret:name} references in the credential
// fields: the JWT secret, the Redis password and the Mongo URI. Other
// fields are left as written. The secrets directory is only opened when a
// reference needs resolving.
func ResolveSecrets(ctx context.Context, cfg *Config) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"server.auth.jwt_secret", &cfg.Server.Auth.JWTSecret},
		{"rate_limits.store.redis.password", &cfg.RateLimits.Store.Redis.Password},
		{"storage.mongo_uri", &cfg.Storage.MongoURI},
	}

	var resolver *secrets.Resolver
	var errs []error
	for _, f := range fields {
		if !secrets.HasReferences(*f.value) {
			continue
		}
		if resolver == nil {
			r, err := newSecretResolver(cfg.Secrets)
			if err != nil {
				return err
			}
			resolver = r
		}
		resolved, err := resolver.Resolve(ctx, *f.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		*f.value = resolved
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to resolve secrets: %w", err)
	}
	return nil
}

func newSecretResolver(cfg SecretsConfig) (*secrets.Resolver, error) {
	providers := []secrets.Provider{secrets.NewEnvProvider(cfg.EnvPrefix)}
	if cfg.Dir != "" {
		files, err := secrets.NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("secrets.dir: %w", err)
		}
		providers = append(providers, files)
	}
	return secrets.NewResolver(nil, providers...), nil
}
