package copier

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NextAvailableName returns the first sibling of path that exists reports
// as free, formed by inserting " (n)" before the extension, n = 1, 2, ...
// If path itself is free it is returned unchanged.
func NextAvailableName(path string, exists func(string) bool) string {
	if !exists(path) {
		return path
	}

	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	if ext == base {
		// dotfiles such as ".profile" have no extension
		ext = ""
	}
	stem := strings.TrimSuffix(base, ext)

	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}
}

// UniqueName is NextAvailableName against the local filesystem.
func UniqueName(path string) string {
	return NextAvailableName(path, pathExists)
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
