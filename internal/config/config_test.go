package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cabinet.yml"), []byte(content), 0o644))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "definitions", cfg.DefinitionsRoot)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 200, cfg.Query.MaxPageSize)
	assert.True(t, cfg.Snapshots.EnabledDefault)
	assert.False(t, cfg.Snapshots.FailureFatal)
	assert.False(t, cfg.Watch.Enabled)
	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
}

func TestLoadFromFile(t *testing.T) {
	dir := writeConfig(t, `
definitions_root: /srv/cabinet/definitions
server:
  host: 0.0.0.0
  port: 9000
database:
  driver: postgres
  url: postgres://localhost/cabinet
cache:
  enabled: true
  ttl: 30s
query:
  max_page_size: 50
snapshots:
  enabled_default: false
  failure_fatal: true
watch:
  enabled: true
`)

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, "/srv/cabinet/definitions", cfg.DefinitionsRoot)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Query.MaxPageSize)
	assert.False(t, cfg.Snapshots.EnabledDefault)
	assert.True(t, cfg.Snapshots.FailureFatal)
	assert.True(t, cfg.Watch.Enabled)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "server:\n  port: 0\n"},
		{"unknown driver", "database:\n  driver: oracle\n"},
		{"missing url", "database:\n  driver: postgres\n"},
		{"bad page size", "query:\n  max_page_size: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(writeConfig(t, tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestMalformedYAML(t *testing.T) {
	_, err := LoadFrom(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}
