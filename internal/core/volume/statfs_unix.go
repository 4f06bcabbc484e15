//go:build unix

package volume

import "golang.org/x/sys/unix"

func statFS(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, err
	}
	bsize := int64(st.Bsize)
	return Usage{
		Total: int64(st.Blocks) * bsize,
		Free:  int64(st.Bavail) * bsize,
	}, nil
}
