//go:build linux || darwin

package safety

import "golang.org/x/sys/unix"

// availableBytes returns the bytes available to unprivileged users on the filesystem holding path.
func availableBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil //nolint:gosec // Bsize is a positive block size
}
