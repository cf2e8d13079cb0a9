package jail

import (
	"path/filepath"
	"strings"
)

// engineSymlinks returns, as a source -> target map that Build turns into
// symlinks, the jail-relative links that let the engine, once
// chrooted, still find its own install tree at loTemplate's original
// absolute path. Per spec.md §4.1 step 1, a second symlink is created for
// realpath(loTemplate) when it differs from loTemplate itself — common when
// the engine installation directory is itself a symlink (e.g.
// /opt/collaboraoffice -> /opt/collaboraoffice24.04.1.2), because fontconfig
// and friends resolve paths through it internally.
func engineSymlinks(jailPath, loTemplate, loSubPath string) map[string]string {
	links := map[string]string{
		loTemplate: relativeTarget(loTemplate, loSubPath),
	}
	if real, err := filepath.EvalSymlinks(loTemplate); err == nil && real != loTemplate {
		links[real] = relativeTarget(real, loSubPath)
	}
	return links
}

// relativeTarget builds the "../../.../loSubPath" target for a symlink
// placed at jailPath+source, so the link still resolves correctly once
// jailPath becomes the chroot root ("/").
func relativeTarget(source, loSubPath string) string {
	up := strings.Repeat("../", depth(filepath.Dir(source)))
	return up + strings.TrimPrefix(loSubPath, "/")
}

// depth counts the path segments in an absolute directory path, i.e. the
// number of "../" needed to climb back to root from a symlink placed
// directly inside that directory.
func depth(absPath string) int {
	clean := filepath.Clean(absPath)
	clean = strings.TrimPrefix(clean, string(filepath.Separator))
	if clean == "" || clean == "." {
		return 0
	}
	return len(strings.Split(clean, string(filepath.Separator)))
}
