package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inDotenvDir runs the test from a fresh directory whose .env points
// MEET_CONFIG at a YAML file with the given contents.
func inDotenvDir(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "meet.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MEET_CONFIG="+cfgPath+"\n"), 0o600))

	t.Chdir(dir)
	// t.Setenv restores the variable afterwards; unset it so .env applies.
	t.Setenv("MEET_CONFIG", "")
	require.NoError(t, os.Unsetenv("MEET_CONFIG"))
	t.Setenv("MEET_ROOM", "")
	t.Setenv("MEET_BASE_URL", "")
}

func TestLoadConfig_ConfigPathFromDotenv(t *testing.T) {
	inDotenvDir(t, "suite:\n  room: fromdotenv\n")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "fromdotenv", cfg.Suite.Room)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	inDotenvDir(t, "suite:\n  room: fromdotenv\nbrowser:\n  headless: true\n")

	cfg, err := loadConfig([]string{"-url", "http://meet.test:9000/", "-room", "flagroom", "-headless=false"})
	require.NoError(t, err)
	assert.Equal(t, "flagroom", cfg.Suite.Room)
	assert.Equal(t, "http://meet.test:9000/flagroom", cfg.Suite.RoomURL())
	assert.False(t, cfg.Browser.Headless)
}

func TestLoadConfig_HeadlessKeptWhenFlagUnset(t *testing.T) {
	inDotenvDir(t, "browser:\n  headless: false\n")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.False(t, cfg.Browser.Headless, "the flag default must not override the file")
}

func TestLoadConfig_InvalidRoom(t *testing.T) {
	inDotenvDir(t, "suite:\n  room: fromdotenv\n")

	_, err := loadConfig([]string{"-room", "bad room"})
	assert.Error(t, err)
}
