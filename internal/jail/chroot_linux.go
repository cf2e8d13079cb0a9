package jail

import "golang.org/x/sys/unix"

// enterChroot performs the final step of spec.md §4.1: chroot into jailPath,
// chdir to the new root, then drop the three capabilities the builder used
// to get here. Any failure in this sequence is fatal — a process left with
// a chroot but its original capabilities, or capabilities but no chroot, is
// a worse security posture than simply exiting.
func enterChroot(jailPath string) error {
	if err := unix.Chroot(jailPath); err != nil {
		return fatalf("chroot "+jailPath, err)
	}
	if err := unix.Chdir("/"); err != nil {
		return fatalf("chdir /", err)
	}
	if err := dropCapabilities(); err != nil {
		return err
	}
	return nil
}
