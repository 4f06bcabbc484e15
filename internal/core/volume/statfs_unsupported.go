//go:build !unix && !windows

package volume

import "errors"

func statFS(path string) (Usage, error) {
	return Usage{}, errors.New("volume statistics are not supported on this operating system")
}
