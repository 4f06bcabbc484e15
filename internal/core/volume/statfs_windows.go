//go:build windows

package volume

import "golang.org/x/sys/windows"

func statFS(path string) (Usage, error) {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Usage{}, err
	}
	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(p, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return Usage{}, err
	}
	return Usage{Total: int64(totalBytes), Free: int64(freeBytesAvailable)}, nil
}
