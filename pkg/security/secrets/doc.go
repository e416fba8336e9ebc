/*
Package secrets resolves secret references in configuration values.

A configuration value of the form ${secret:name} is replaced by the secret
called name. The Resolver asks each Provider in order and the first one that
knows the secret wins:

	resolver := secrets.NewResolver(logger,
		secrets.NewEnvProvider("BERTH_SECRET_"),
		fileProvider,
	)
	uri, err := resolver.Resolve(ctx, "mongodb://berth:${secret:mongo-password}@db:27017")

# Providers

EnvProvider maps a secret name to an environment variable: jwt-signing-key
is read from BERTH_SECRET_JWT_SIGNING_KEY.

FileProvider reads Kubernetes-style mounted secrets, one file per secret,
from a directory. Files must be regular files with mode 0600 or 0400, and
surrounding whitespace is trimmed.

Secret values are never logged; log lines carry a redacted secret name.
*/
package secrets
