package store

import (
	"fmt"
	"path"
	"strings"

	"github.com/dmarkelov/notesync/internal/common"
)

// ValidatePath checks a relative file path received from a peer or used
// locally. Absolute paths and any form of directory escape are
// rejected: a malicious peer must not be able to write outside the
// synchronized directory.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty path", common.ErrValidation)
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return fmt.Errorf("%w: invalid path %q", common.ErrValidation, p)
	}
	clean := path.Clean(p)
	if clean != p || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: invalid path %q", common.ErrValidation, p)
	}
	return nil
}

// Ignored reports whether the path matches an ignore pattern or has a
// hidden (dot-prefixed) segment. Patterns are path.Match globs applied
// to both the full relative path and the base name.
func Ignored(p string, patterns []string) bool {
	for _, seg := range strings.Split(p, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	base := path.Base(p)
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, p); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
