package httpapi

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var errOutsideRoot = errors.New("path outside data root")

// dataRoot returns the absolute, symlink-free form of dir
func dataRoot(dir string) string {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// resolvePath maps a requested file into root. Relative paths are taken from
// root; absolute ones must already lie under it. Empty stays empty.
func resolvePath(root, p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errOutsideRoot, p)
	}
	return p, nil
}
