package jail

import (
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// makeDevNodes creates jailPath/dev and the random/urandom character
// devices a headless engine process needs for its own entropy. Per
// spec.md §4.1's failure semantics, device-node creation logs but never
// aborts the build — a jail without /dev/urandom still renders documents,
// just with a slower entropy source.
func makeDevNodes(logger *slog.Logger, jailPath string) {
	devDir := filepath.Join(jailPath, "dev")
	if err := os.MkdirAll(devDir, 0o755); err != nil {
		logger.Warn("jail: failed to create /dev", "error", err)
		return
	}

	nodes := []struct {
		name        string
		major, minor uint32
	}{
		{"random", 1, 8},
		{"urandom", 1, 9},
	}
	for _, n := range nodes {
		path := filepath.Join(devDir, n.name)
		dev := unix.Mkdev(n.major, n.minor)
		if err := unix.Mknod(path, unix.S_IFCHR|0o666, int(dev)); err != nil {
			logger.Warn("jail: mknod failed", "path", path, "error", err)
		}
	}
}
