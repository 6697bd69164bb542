package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 0xa5e3c, cfg.ScanStart)
	assert.EqualValues(t, 0x120000, cfg.ScanEnd)
	assert.Contains(t, cfg.SearchNames, "id_rsa")
	assert.False(t, cfg.Verbose)
	assert.False(t, cfg.Quiet)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	t.Setenv("APFS_SCAN_START", "4096")
	t.Setenv("APFS_VERBOSE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.EqualValues(t, 4096, cfg.ScanStart)
	assert.True(t, cfg.Verbose)
}
