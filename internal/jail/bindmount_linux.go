package jail

import (
	"fmt"
	"os"
	"syscall"
)

// bindMountUsr attempts the fast path from spec.md §4.1 step 2: a read-only
// bind mount of sysTemplate/usr onto jailPath/usr, so that subtree does not
// need to be hard-linked file by file. Grounded on the teacher's own
// pkg/mount Mount() helper (bind + MS_RDONLY always needs a MS_REMOUNT pass,
// since the kernel ignores mount flags other than MS_BIND on the initial
// bind call).
func bindMountUsr(sysTemplate, jailPath string) error {
	source := sysTemplate + "/usr"
	target := jailPath + "/usr"

	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", target, err)
	}

	flags := uintptr(syscall.MS_BIND | syscall.MS_RDONLY)
	if err := syscall.Mount(source, target, "", syscall.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind mount %s -> %s: %w", source, target, err)
	}
	if err := syscall.Mount("", target, "", flags|syscall.MS_REMOUNT, ""); err != nil {
		return fmt.Errorf("remount ro %s: %w", target, err)
	}
	return nil
}
