// Package security holds the transport and credential plumbing of berth.
//
// Subpackages:
//
//   - tls: TLS termination with certificate hot reload and client
//     certificate identities for mTLS deployments
//   - secrets: resolution of ${secret:name} references in configuration
//     values from environment variables and mounted secret files
package security
