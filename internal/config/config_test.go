package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "test")
	t.Setenv("CONFIG_PATH", "")

	cfg := Load()
	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 80467.0, cfg.FeedDefaultRadiusMeters)
	assert.Equal(t, 10*time.Second, cfg.Moderation.Timeout)
	assert.Equal(t, 16384, cfg.WSMaxMessageSize)
	assert.Equal(t, 20, cfg.DBMaxConnections())
}

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("APP_ENV", "test")
	path := filepath.Join(dir, "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"server_addr: \":9000\"\nstore_backend: redis\nfeed_default_radius_meters: 1500\nrate_limit_per_ip: 7\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("RATE_LIMIT_PER_IP", "11")
	t.Setenv("MODERATION_TIMEOUT", "3")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.ServerAddr)
	assert.Equal(t, BackendRedis, cfg.StoreBackend)
	assert.Equal(t, 1500.0, cfg.FeedDefaultRadiusMeters)
	assert.Equal(t, 11, cfg.RateLimit.PerIP, "env wins over yaml")
	assert.Equal(t, 3*time.Second, cfg.Moderation.Timeout)
}

func TestLoad_UnknownBackendFallsBackToMemory(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "test")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("STORE_BACKEND", "cassandra")

	assert.Equal(t, BackendMemory, Load().StoreBackend)
}

func TestLoadEnvFrom_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nEDUME_A=\"from file\"\nEDUME_B=file\n"), 0o644))
	t.Setenv("EDUME_A", "")
	t.Setenv("EDUME_B", "already")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	loadEnvFrom(f)

	assert.Equal(t, "from file", os.Getenv("EDUME_A"))
	assert.Equal(t, "already", os.Getenv("EDUME_B"))
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores the previous one on test cleanup.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
