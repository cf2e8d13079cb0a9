package jail

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// linkOrCopy walks source depth-first and, for every path the mode does not
// exclude, hard-links regular files and symlinks (dangling or not — on
// Linux link(2) never dereferences a symlink, so hard-linking the symlink
// node itself is correct for both) into the equivalent path under dest.
// Directory timestamps are copied once a directory's entire subtree has
// been placed. A failed hard-link is fatal: per spec.md §4.1 a partially
// linked jail cannot safely be used.
func linkOrCopy(logger *slog.Logger, source, dest string, mode CopyMode) error {
	source = filepath.Clean(source)
	return linkOrCopyDir(logger, source, dest, mode, "")
}

// linkOrCopyDir handles one directory level. rel is the path of this
// directory relative to source's root ("" for the root itself).
func linkOrCopyDir(logger *slog.Logger, source, dest string, mode CopyMode, rel string) error {
	srcDir := filepath.Join(source, rel)
	dstDir := filepath.Join(dest, rel)

	info, err := os.Stat(srcDir)
	if err != nil {
		logger.Warn("jail: stat failed, skipping subtree", "path", srcDir, "error", err)
		return nil
	}

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return fatalf("mkdir "+dstDir, err)
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		logger.Error("jail: cannot read directory", "path", srcDir, "error", err)
		return nil
	}

	for _, entry := range entries {
		entryRel := filepath.Join(rel, entry.Name())
		entrySrc := filepath.Join(source, entryRel)
		entryDst := filepath.Join(dest, entryRel)

		if entry.IsDir() {
			if mode.shouldSkipDir(entryRel) {
				logger.Debug("jail: skipping redundant subtree", "path", entryRel)
				continue
			}
			if err := linkOrCopyDir(logger, source, dest, mode, entryRel); err != nil {
				return err
			}
			continue
		}

		// Regular file or symlink (dangling or not): hard-link the node
		// itself.
		if err := os.Link(entrySrc, entryDst); err != nil {
			return fatalf(fmt.Sprintf("link %s -> %s", entrySrc, entryDst), err)
		}
	}

	// Copy access/modify times only after the subtree has been fully
	// populated, so linking children doesn't clobber the restored mtime.
	// (spec.md §4.1 step 3: "copy access/modify times after contents are
	// placed" — see DESIGN.md for why this deviates from the original's
	// pre-order utime call, which the subsequent hard-links immediately
	// overwrote.)
	if err := chtimesLike(dstDir, info); err != nil {
		logger.Warn("jail: utime failed", "path", dstDir, "error", err)
	}

	return nil
}
