package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Server.MutationsPerMinute)
	assert.Empty(t, cfg.Server.CORSOrigins)
	assert.Empty(t, cfg.Server.TrustedProxies)
	assert.Equal(t, 2, cfg.Search.FuzzyThreshold)
	assert.Equal(t, 20, cfg.Search.DefaultLimit)
	assert.Equal(t, []string{"docs/manifest.yaml"}, cfg.Collector.Manifests)
	assert.Equal(t, 30*time.Second, cfg.Refresh.Timeout)
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docuflow.yaml")
	data := []byte(`
server:
  port: 9000
search:
  fuzzyThreshold: 1
  defaultLimit: 5
  maxResults: 50
collector:
  manifests: [a.yaml, b.yaml]
  goRoots: [./internal]
refresh:
  interval: 5m
  timeout: 10s
redis:
  enabled: true
  cacheTTL: 2m
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	t.Setenv("DF_SEARCH_DEFAULT_LIMIT", "7")
	t.Setenv("DF_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("DF_COLLECTOR_REGISTRY", "true")
	t.Setenv("DF_SERVER_PORT", "not-a-number")
	t.Setenv("DF_SERVER_TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 1, cfg.Search.FuzzyThreshold)
	assert.Equal(t, 7, cfg.Search.DefaultLimit)
	assert.Equal(t, 50, cfg.Search.MaxResults)
	assert.Equal(t, []string{"a.yaml", "b.yaml"}, cfg.Collector.Manifests)
	assert.Equal(t, []string{"./internal"}, cfg.Collector.GoRoots)
	assert.True(t, cfg.Collector.Registry)
	assert.Equal(t, 5*time.Minute, cfg.Refresh.Interval)
	assert.Equal(t, 10*time.Second, cfg.Refresh.Timeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.Server.TrustedProxies)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("search: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("search:\n  defaultLimit: 50\n  maxResults: 10\n"), 0o644))
	_, err = Load(invalid)
	assert.ErrorContains(t, err, "maxResults")

	proxies := filepath.Join(t.TempDir(), "proxies.yaml")
	require.NoError(t, os.WriteFile(proxies, []byte("server:\n  trustedProxies: [10.0.0.0/8, lb.internal]\n"), 0o644))
	_, err = Load(proxies)
	assert.ErrorContains(t, err, "lb.internal")
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "docs", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=docs sslmode=require", p.DSN())
}
