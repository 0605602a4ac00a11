package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestSaveThenLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	want := DefaultSettings()
	want.LastScreen = "dockclerk"
	want.FPS = 15
	want.TURNServer = "turn:turn.example.com:3478"
	require.NoError(t, Save(want))

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "peepcast", "config.json"), path)

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadKeepsDefaultsForMissingFields(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "peepcast"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "peepcast", "config.json"), []byte(`{"lastScreen":"pid2"}`), 0644))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pid2", s.LastScreen)
	assert.Equal(t, 30, s.FPS)
	assert.Equal(t, 10, s.MaxReconnects)
}

func TestLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "peepcast"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "peepcast", "config.json"), []byte(`{broken`), 0644))

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}
