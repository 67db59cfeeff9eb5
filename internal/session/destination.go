package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// resolveDestination returns the path a file named name should be written
// to inside dir, appending " (n)" before the extension and incrementing n
// until the path is free. This is the reference's deterministic answer to
// the destination-filename-collision question the wire protocol itself
// leaves unspecified.
func resolveDestination(dir, name string) string {
	candidate := filepath.Join(dir, name)
	if !exists(candidate) {
		return candidate
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", base, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
