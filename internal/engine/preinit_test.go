package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryPathNoCandidateFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "program"), 0o755))

	_, err := LibraryPath(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no candidate engine library found")
}

func TestLibraryPathPrefersMergedVariant(t *testing.T) {
	dir := t.TempDir()
	programDir := filepath.Join(dir, "program")
	require.NoError(t, os.MkdirAll(programDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(programDir, "libsofficeapp.so"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(programDir, "libmergedlo.so"), nil, 0o644))

	path, err := LibraryPath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(programDir, "libmergedlo.so"), path)
}

func TestPreinitFailsFastWhenNoLibraryPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "program"), 0o755))

	err := Preinit(dir)
	require.Error(t, err)
}
