package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptions_ConfigPathFromDotenv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "meet.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  addr: \":9123\"\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MEET_CONFIG="+cfgPath+"\n"), 0o600))

	t.Chdir(dir)
	t.Setenv("MEET_CONFIG", "")
	require.NoError(t, os.Unsetenv("MEET_CONFIG"))
	t.Setenv("MEET_ADDR", "")
	t.Setenv("PORT", "")

	opts, err := loadOptions([]string{"-signaling-only"})
	require.NoError(t, err)
	assert.Equal(t, ":9123", opts.cfg.Server.Addr)
	assert.True(t, opts.signalingOnly)
}
