package tree

import (
	"fmt"
	"strings"

	"github.com/treekeeper/treekeeper/coord"
)

// BuildPath assembles a canonical path from parts. Each part gets a leading
// separator unless it already has one, and trailing separators are trimmed
// after each part is appended, so parts made only of separators collapse to
// nothing. An empty result, including no parts at all, is the root "/".
//
//	BuildPath()              == "/"
//	BuildPath("a", "/b/")    == "/a/b"
//	BuildPath("/a/b", "c")   == "/a/b/c"
//
// BuildPath is idempotent: BuildPath(BuildPath(parts...)) == BuildPath(parts...).
func BuildPath(parts ...string) string {
	buf := make([]byte, 0, 64)
	for _, part := range parts {
		if !strings.HasPrefix(part, coord.Separator) {
			buf = append(buf, '/')
		}
		buf = append(buf, part...)
		for len(buf) > 0 && buf[len(buf)-1] == '/' {
			buf = buf[:len(buf)-1]
		}
	}
	if len(buf) == 0 {
		return coord.Separator
	}
	return string(buf)
}

// SplitPath returns the non-empty segments of path.
func SplitPath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
}

// ValidatePath checks that path is canonical: absolute, no empty, "." or ".."
// segments, no trailing separator except for the root, and no NUL bytes.
func ValidatePath(path string) error {
	switch {
	case path == "":
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	case path == coord.Separator:
		return nil
	case !strings.HasPrefix(path, coord.Separator):
		return fmt.Errorf("%w: %q must start with %q", ErrInvalidPath, path, coord.Separator)
	case strings.HasSuffix(path, coord.Separator):
		return fmt.Errorf("%w: %q must not end with %q", ErrInvalidPath, path, coord.Separator)
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("%w: %q contains a NUL byte", ErrInvalidPath, path)
	}
	for _, seg := range strings.Split(path[1:], coord.Separator) {
		switch seg {
		case "":
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		case ".", "..":
			return fmt.Errorf("%w: %q has a relative segment %q", ErrInvalidPath, path, seg)
		}
	}
	return nil
}
