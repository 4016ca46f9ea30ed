package coordinator

import (
	"path"
	"strings"
)

// cleanPath normalizes a coordination-store path: leading slash, no
// trailing slash (except the root), no repeated slashes.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	return cleaned
}

// joinPath appends a single child name to a parent path.
func joinPath(parent, child string) string {
	if parent == "/" {
		return "/" + child
	}
	return parent + "/" + child
}

// parentPath returns the path one level up from p, and "" if p is the
// root.
func parentPath(p string) string {
	p = cleanPath(p)
	if p == "/" {
		return ""
	}
	idx := strings.LastIndex(p, "/")
	if idx == 0 {
		return "/"
	}
	return p[:idx]
}

// splitSegments returns p's path segments, e.g. "/a/b" -> ["a", "b"].
func splitSegments(p string) []string {
	p = cleanPath(p)
	if p == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}
