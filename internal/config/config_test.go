package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/system-design/soccer-server/internal/config"
	"github.com/koopa0/system-design/soccer-server/internal/game"
	apperrors "github.com/koopa0/system-design/soccer-server/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, game.TickRate, cfg.Game.TickRate)
	assert.Equal(t, game.RoomCapacity, cfg.Game.RoomCapacity)
	assert.Equal(t, game.GoalCooldown, cfg.Game.GoalCooldown)
	assert.Equal(t, game.TickInterval, cfg.TickInterval())
	assert.Equal(t, game.DefaultRoomConfig(), cfg.RoomConfig())
	assert.False(t, cfg.Redis.Enabled)
	assert.False(t, cfg.Postgres.Enabled)
	assert.False(t, cfg.NATS.Enabled)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	cfg, err = config.Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
  shutdown_timeout: 3s
game:
  tick_rate: 30
  match_duration: 90
websocket:
  ping_interval: 20s
  pong_wait: 30s
redis:
  enabled: true
  addr: redis:6379
log:
  level: debug
  format: json
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 30, cfg.Game.TickRate)
	assert.Equal(t, time.Second/30, cfg.TickInterval())
	assert.Equal(t, 90, cfg.RoomConfig().MatchDuration)
	assert.Equal(t, 20*time.Second, cfg.WebSocket.PingInterval)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 沒寫的欄位保留預設值
	assert.Equal(t, game.RoomCapacity, cfg.Game.RoomCapacity)
	assert.Equal(t, "soccer:ranking", cfg.Redis.RankingKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SOCCER_PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/soccer")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("NATS_URL", "nats://broker:4222")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "postgres://u:p@db:5432/soccer", cfg.Postgres.DSN)
	assert.True(t, cfg.Postgres.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.True(t, cfg.NATS.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{name: "malformed yaml", content: "server: [port"},
		{name: "bad port", content: "server:\n  port: 70000\n"},
		{name: "zero tick rate", content: "game:\n  tick_rate: 0\n"},
		{name: "ping after pong wait", content: "websocket:\n  ping_interval: 90s\n"},
		{name: "enabled redis without addr", content: "redis:\n  enabled: true\n  addr: \"\"\n"},
		{name: "non numeric port env", content: "", env: map[string]string{"SOCCER_PORT": "eighty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
		})
	}
}
