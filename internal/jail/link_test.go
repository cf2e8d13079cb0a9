package jail

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLinkOrCopyHardLinksFiles(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(source, "program"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "program", "soffice.bin"), []byte("engine"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(source, "sdk"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(source, "sdk", "skip-me.h"), []byte("x"), 0o644))

	require.NoError(t, linkOrCopy(discardLogger(), source, dest, CopyLO))

	linked := filepath.Join(dest, "program", "soffice.bin")
	data, err := os.ReadFile(linked)
	require.NoError(t, err)
	require.Equal(t, "engine", string(data))

	srcInfo, err := os.Stat(filepath.Join(source, "program", "soffice.bin"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(linked)
	require.NoError(t, err)
	require.True(t, os.SameFile(srcInfo, dstInfo), "expected a hard link, got a distinct inode")

	_, err = os.Stat(filepath.Join(dest, "sdk", "skip-me.h"))
	require.True(t, os.IsNotExist(err), "sdk subtree should have been skipped under CopyLO")
}

func TestLinkOrCopyPreservesDanglingSymlinks(t *testing.T) {
	source := t.TempDir()
	dest := t.TempDir()

	require.NoError(t, os.Symlink("/does/not/exist", filepath.Join(source, "dangling")))
	require.NoError(t, linkOrCopy(discardLogger(), source, dest, CopyAll))

	target, err := os.Readlink(filepath.Join(dest, "dangling"))
	require.NoError(t, err)
	require.Equal(t, "/does/not/exist", target)
}
