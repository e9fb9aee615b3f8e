package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MEET_ADDR", "PORT", "MEET_ICE_SERVERS", "MEET_BROWSER_BIN", "MEET_BASE_URL",
		"MEET_ROOM", "MEET_HEADLESS", "MEET_READ_TIMEOUT", "MEET_WRITE_TIMEOUT",
		"MEET_BROWSER_TIMEOUT", "MEET_JOIN_TIMEOUT", "MEET_ICE_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.Equal(t, "http://localhost:8080/stopvideotest", cfg.Suite.RoomURL())
}

func TestLoad_YAMLFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "meet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: "127.0.0.1:9000"
  ice_servers:
    - stun:stun.l.google.com:19302
browser:
  headless: false
  timeout: 45s
suite:
  base_url: https://meet.example.org
  room: standup
  join_timeout: 20s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.Server.ICEServers)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser.Timeout)
	assert.Equal(t, "https://meet.example.org/standup", cfg.Suite.RoomURL())
	assert.Equal(t, 20*time.Second, cfg.Suite.JoinTimeout)
	// Unset keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Suite.ICETimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "meet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("suite:\n  room: fromfile\n"), 0o600))

	t.Setenv("MEET_ROOM", "fromenv")
	t.Setenv("MEET_HEADLESS", "false")
	t.Setenv("MEET_ICE_TIMEOUT", "3s")
	t.Setenv("MEET_BASE_URL", "http://10.0.0.5:8080/")
	t.Setenv("MEET_ICE_SERVERS", "stun:a:3478, ,stun:b:3478")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Suite.Room)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 3*time.Second, cfg.Suite.ICETimeout)
	assert.Equal(t, "http://10.0.0.5:8080/fromenv", cfg.Suite.RoomURL())
	assert.Equal(t, []string{"stun:a:3478", "stun:b:3478"}, cfg.Server.ICEServers)
}

func TestLoad_PortFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	t.Setenv("MEET_ADDR", "127.0.0.1:7000")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Addr, "MEET_ADDR wins over PORT")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		file string
	}{
		{name: "bad bool", env: map[string]string{"MEET_HEADLESS": "maybe"}},
		{name: "bad duration", env: map[string]string{"MEET_JOIN_TIMEOUT": "ten"}},
		{name: "room with slash", env: map[string]string{"MEET_ROOM": "a/b"}},
		{name: "zero timeout", env: map[string]string{"MEET_ICE_TIMEOUT": "0s"}},
		{name: "bad yaml", file: "suite: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = filepath.Join(t.TempDir(), "bad.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o600))
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
