package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveSecrets(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mongo-password"), []byte("hunter2\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	t.Setenv("BERTH_SECRET_JWT_SIGNING_KEY", "env-signing-key")

	cfg := Default()
	cfg.Secrets.Dir = dir
	cfg.Server.Auth.JWTSecret = "${secret:jwt-signing-key}"
	cfg.Storage.MongoURI = "mongodb://berth:${secret:mongo-password}@db:27017"
	cfg.RateLimits.Store.Redis.Password = "literal"

	if err := ResolveSecrets(context.Background(), cfg); err != nil {
		t.Fatalf("ResolveSecrets() error = %v", err)
	}
	if cfg.Server.Auth.JWTSecret != "env-signing-key" {
		t.Errorf("jwt secret = %q", cfg.Server.Auth.JWTSecret)
	}
	if cfg.Storage.MongoURI != "mongodb://berth:hunter2@db:27017" {
		t.Errorf("mongo uri = %q", cfg.Storage.MongoURI)
	}
	if cfg.RateLimits.Store.Redis.Password != "literal" {
		t.Errorf("redis password = %q", cfg.RateLimits.Store.Redis.Password)
	}
}

func TestResolveSecrets_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown secret",
			mutate:  func(c *Config) { c.Server.Auth.JWTSecret = "${secret:does-not-exist}" },
			wantErr: "server.auth.jwt_secret",
		},
		{
			name: "missing directory",
			mutate: func(c *Config) {
				c.Secrets.Dir = filepath.Join(t.TempDir(), "absent")
				c.Storage.MongoURI = "${secret:mongo-uri}"
			},
			wantErr: "secrets.dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := ResolveSecrets(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ResolveSecrets() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolveSecrets_NoReferencesSkipsDirectory(t *testing.T) {
	cfg := Default()
	cfg.Secrets.Dir = filepath.Join(t.TempDir(), "absent")
	cfg.Server.Auth.JWTSecret = "plain"

	if err := ResolveSecrets(context.Background(), cfg); err != nil {
		t.Fatalf("ResolveSecrets() error = %v", err)
	}
}

func TestLoadConfigWithEnvOverrides_ResolvesSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "berth.yaml")
	data := "server:\n  auth:\n    jwt_secret: ${secret:signing}\nstorage:\n  driver: memory\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BERTH_SECRET_SIGNING", "from-env")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() error = %v", err)
	}
	if cfg.Server.Auth.JWTSecret != "from-env" {
		t.Errorf("jwt secret = %q, want from-env", cfg.Server.Auth.JWTSecret)
	}
}
