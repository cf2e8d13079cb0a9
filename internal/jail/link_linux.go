package jail

import (
	"os"
	"syscall"
	"time"
)

// chtimesLike restores path's access/modify times to match a previously
// stat'd directory, using the real atime recorded by the kernel rather than
// approximating it with the modify time.
func chtimesLike(path string, info os.FileInfo) error {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return os.Chtimes(path, info.ModTime(), info.ModTime())
	}
	atime := time.Unix(st.Atim.Sec, st.Atim.Nsec)
	mtime := time.Unix(st.Mtim.Sec, st.Mtim.Nsec)
	return os.Chtimes(path, atime, mtime)
}
