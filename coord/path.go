package coord

import "strings"

// Separator is the path separator of the node tree.
const Separator = "/"

// ParentPath returns the parent of an absolute canonical path.
// The parent of a top-level node and of the root is the root.
func ParentPath(path string) string {
	i := strings.LastIndex(path, Separator)
	if i <= 0 {
		return Separator
	}
	return path[:i]
}

// NodeName returns the last segment of an absolute canonical path, or ""
// for the root.
func NodeName(path string) string {
	i := strings.LastIndex(path, Separator)
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// ChildPath joins a canonical parent path and a child name.
func ChildPath(parent, name string) string {
	if parent == Separator {
		return Separator + name
	}
	return parent + Separator + name
}

// IsRoot reports whether path addresses the root of the tree.
func IsRoot(path string) bool {
	return path == Separator || path == ""
}
