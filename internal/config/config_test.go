package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 54*time.Second, cfg.PingPeriod)
	require.Equal(t, 200, cfg.RateLimit.Count)
	require.Empty(t, cfg.Storage.Path)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("HUDDLE_PORT", "9090")
	t.Setenv("HUDDLE_STORAGE_PATH", "/tmp/rec")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "/tmp/rec", cfg.Storage.Path)
}

func TestLoadPeer_Validates(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing")
	v := NewPeerViper()

	cfg, err := LoadPeer(v)
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Recording.FPS)
	require.Equal(t, "lobby", cfg.Session)

	v.Set("recording.fps", 0)
	_, err = LoadPeer(v)
	require.Error(t, err)
}
