package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ralt/publishkit/internal/models"
	"github.com/ralt/publishkit/internal/resolver"
)

func TestLoadMergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publishkit.yaml")
	content := `repositories:
  snapshot:
    id: snapshots
    url: https://repo.example.com/snapshots
  staging:
    id: staging
    url: https://repo.example.com/staging
  release:
    id: releases
    url: https://repo.example.com/releases
escrow:
  compression: zstd
  allow_unlicensed:
    - com.example:internal-tools:0.1
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Repositories.Staging.ID != "staging" {
		t.Errorf("Expected staging id, got %q", cfg.Repositories.Staging.ID)
	}
	if cfg.Escrow.Compression != "zstd" {
		t.Errorf("Expected zstd, got %s", cfg.Escrow.Compression)
	}
	// Untouched sections keep their defaults
	if cfg.Credentials.UserEnv != "BINTRAY_USER" || cfg.Credentials.KeyEnv != "BINTRAY_KEY" {
		t.Errorf("Expected default credential variables, got %+v", cfg.Credentials)
	}
	if cfg.Escrow.Concurrency != 4 {
		t.Errorf("Expected default concurrency 4, got %d", cfg.Escrow.Concurrency)
	}
	if len(cfg.Escrow.AllowUnlicensed) != 1 {
		t.Errorf("Expected one allow-listed coordinate, got %v", cfg.Escrow.AllowUnlicensed)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"compression": "escrow:\n  compression: rar\n",
		"concurrency": "escrow:\n  concurrency: 0\n",
		"credentials": "credentials:\n  user_env: \"\"\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "publishkit.yaml")
			os.WriteFile(path, []byte(content), 0644)
			if _, err := Load(path); !models.IsErrorType(err, models.ErrInvalidConfig) {
				t.Errorf("Expected InvalidConfig, got %v", err)
			}
		})
	}
}

func TestResolverConfigReadsLookup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Repositories.Release = models.RepositoryConfig{ID: "releases", URL: "https://repo.example.com/releases"}

	env := map[string]string{"BINTRAY_USER": "ci", "BINTRAY_KEY": "secret"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	rc := cfg.ResolverConfig(lookup)
	if rc.Credentials.User != "ci" || rc.Credentials.Key != "secret" {
		t.Errorf("Unexpected credentials %s", rc.Credentials)
	}

	target, err := resolver.New(rc).Resolve("1.0.0", models.ModeSimple)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if target.RepositoryID != "releases" {
		t.Errorf("Expected releases, got %s", target.RepositoryID)
	}

	delete(env, "BINTRAY_KEY")
	_, err = resolver.New(cfg.ResolverConfig(lookup)).Resolve("1.0.0", models.ModeSimple)
	if !models.IsErrorType(err, models.ErrMissingCredentials) {
		t.Fatalf("Expected MissingCredentials, got %v", err)
	}
	if models.ErrorSubject(err) != "BINTRAY_KEY" {
		t.Errorf("Expected the variable name in the error, got %q", models.ErrorSubject(err))
	}
}
