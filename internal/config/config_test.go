package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"procurement/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(nil, env(map[string]string{"POSTGRES_CONN": "postgres://localhost/proc"}))
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/proc", cfg.PostgresConn)
	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_MissingConnection(t *testing.T) {
	_, err := config.Load(nil, env(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_CONN")
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
postgres_conn: postgres://file/proc
server_address: 127.0.0.1:9000
log_level: debug
rate_limit_rps: 5
rate_limit_burst: 10
shutdown_timeout: 3s
`), 0o600))

	cfg, err := config.Load(
		[]string{"--config", path, "--addr", ":7000"},
		env(map[string]string{"SERVER_ADDRESS": ":8000", "LOG_LEVEL": "warn", "RUN_MIGRATIONS": "false"}),
	)
	require.NoError(t, err)

	assert.Equal(t, "postgres://file/proc", cfg.PostgresConn, "file value kept")
	assert.Equal(t, ":7000", cfg.ServerAddress, "flag beats env")
	assert.Equal(t, "warn", cfg.LogLevel, "env beats file")
	assert.False(t, cfg.RunMigrations)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 10, cfg.RateLimitBurst)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "bad rps", env: map[string]string{"POSTGRES_CONN": "x", "RATE_LIMIT_RPS": "fast"}},
		{name: "bad bool", env: map[string]string{"POSTGRES_CONN": "x", "RUN_MIGRATIONS": "maybe"}},
		{name: "bad level", env: map[string]string{"POSTGRES_CONN": "x", "LOG_LEVEL": "loud"}},
		{name: "zero burst", args: []string{"--rate-limit-burst", "0"}, env: map[string]string{"POSTGRES_CONN": "x"}},
		{name: "unknown flag", args: []string{"--nope"}, env: map[string]string{"POSTGRES_CONN": "x"}},
		{name: "missing file", args: []string{"--config", "/does/not/exist.yaml"}, env: map[string]string{"POSTGRES_CONN": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(tt.args, env(tt.env))
			assert.Error(t, err)
		})
	}
}
