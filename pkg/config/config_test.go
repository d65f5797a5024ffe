package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "3470", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "http://localhost:3470", cfg.BaseURL)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, int32(25), cfg.Database.MaxConnections)
	assert.Equal(t, 900, cfg.Runs.HeartbeatTimeoutSeconds)
	assert.Empty(t, cfg.Redis.Host)
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	raw, err := yaml.Marshal(map[string]any{
		"port": "9000",
		"env":  "staging",
		"database": map[string]any{
			"host":     "db.internal",
			"database": "atelier_staging",
		},
		"runs": map[string]any{
			"heartbeat_timeout_seconds": 120,
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), raw, 0o600))

	t.Setenv("PGHOST", "db.override")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "staging", cfg.Env)
	assert.Equal(t, "db.override", cfg.Database.Host, "env must override YAML")
	assert.Equal(t, "atelier_staging", cfg.Database.Database)
	assert.Equal(t, 120, cfg.Runs.HeartbeatTimeoutSeconds)
}

func TestLoad_JWKSEndpointsParsing(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWKS_ENDPOINTS", "https://auth.example.com=https://auth.example.com/.well-known/jwks.json")

	cfg, err := Load("dev")
	require.NoError(t, err)

	assert.Equal(t,
		map[string]string{"https://auth.example.com": "https://auth.example.com/.well-known/jwks.json"},
		cfg.Auth.JWKSEndpoints)
}

func TestLoad_TLSRequiresBothPaths(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TLS_CERT_PATH", "/tmp/cert.pem")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tls_cert_path and tls_key_path")
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "atelier",
		Password: "secret", Database: "atelier_engine", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=atelier password=secret dbname=atelier_engine sslmode=disable",
		cfg.ConnectionString())
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
