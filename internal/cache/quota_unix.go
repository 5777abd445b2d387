//go:build linux || darwin

package cache

import "golang.org/x/sys/unix"

// availableBytes 返回非特权用户在 path 所在文件系统上的可用字节数。
func availableBytes(path string) (int64, bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false, err
	}
	avail := uint64(st.Bavail) * uint64(st.Bsize)
	if avail > uint64(1<<63-1) {
		return 1<<63 - 1, true, nil
	}
	return int64(avail), true, nil
}
