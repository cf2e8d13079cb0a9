// Package jail builds and enters the chroot sandbox a worker process runs
// its document engine inside, per spec.md §4.1.
package jail

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Options configures one jail build.
type Options struct {
	// JailPath is the destination root, normally ChildRoot/<pid>.
	JailPath string
	// SysTemplate is the donor tree for the base system image.
	SysTemplate string
	// LoTemplate is the donor tree for the document-engine installation.
	LoTemplate string
	// LoSubPath is the jail-relative path the engine will be symlinked to.
	LoSubPath string
	// BindMount requests the /usr bind-mount fast path; on failure the
	// builder falls back to a full hard-link copy of sysTemplate.
	BindMount bool
}

// Build constructs the jail filesystem at opts.JailPath, chroots the calling
// process into it, and drops the capabilities used to build it. chroot(2)
// changes the root of the whole process, while dropCapabilities clears
// bits on the calling OS thread only, so callers must invoke this from a
// goroutine locked to its OS thread (cmd/kitworker locks its main
// goroutine before calling it), matching the original's single-process,
// single-document worker model.
func Build(opts Options, logger *slog.Logger) error {
	if err := os.MkdirAll(opts.JailPath, 0o755); err != nil {
		return fatalf("mkdir "+opts.JailPath, err)
	}

	for source, target := range engineSymlinks(opts.JailPath, opts.LoTemplate, opts.LoSubPath) {
		linkPath := filepath.Join(opts.JailPath, source)
		if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
			return fatalf("mkdir "+filepath.Dir(linkPath), err)
		}
		if err := os.Symlink(target, linkPath); err != nil && !os.IsExist(err) {
			return fatalf(fmt.Sprintf("symlink %s -> %s", linkPath, target), err)
		}
	}

	mode := CopyAll
	if opts.BindMount {
		if err := bindMountUsr(opts.SysTemplate, opts.JailPath); err != nil {
			logger.Warn("jail: bind mount fast path failed, falling back to full copy", "error", err)
		} else {
			mode = CopyNoUsr
		}
	}

	if err := linkOrCopy(logger, opts.SysTemplate, opts.JailPath, mode); err != nil {
		return err
	}

	loDest := filepath.Join(opts.JailPath, opts.LoSubPath)
	if err := linkOrCopy(logger, opts.LoTemplate, loDest, CopyLO); err != nil {
		return err
	}

	copyResolverFiles(logger, opts.JailPath)
	makeDevNodes(logger, opts.JailPath)

	if err := enterChroot(opts.JailPath); err != nil {
		return err
	}

	logger.Info("jail: build complete", "path", opts.JailPath)
	return nil
}
