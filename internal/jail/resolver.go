package jail

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// resolverFiles are the host files spec.md §4.1 step 5 names; a jailed
// process otherwise has no working hostname or DNS resolution.
var resolverFiles = []string{
	"/etc/host.conf",
	"/etc/hosts",
	"/etc/nsswitch.conf",
	"/etc/resolv.conf",
}

// copyResolverFiles copies each resolver file from the host into the jail
// when the host has it and the jail does not already have one (e.g. placed
// there by the sysTemplate donor tree). Missing resolver files are not
// fatal: the original treats them as best-effort.
func copyResolverFiles(logger *slog.Logger, jailPath string) {
	for _, src := range resolverFiles {
		if _, err := os.Stat(src); err != nil {
			continue
		}
		dst := filepath.Join(jailPath, src)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		if err := copyFile(src, dst); err != nil {
			logger.Warn("jail: failed to copy resolver file", "path", src, "error", err)
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
