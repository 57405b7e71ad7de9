// Package vpath canonicalises virtual paths and resolves them to mounts and
// object-store keys.
//
// A virtual path is POSIX-like with forward slashes. The canonical form has a
// single leading slash, no duplicate slashes, and no "." or ".." segments;
// a trailing slash denotes a directory. The empty path equals "/".
package vpath

import (
	"strings"

	gwerrors "github.com/gatefs/gatefs/pkg/gateway/errors"
)

// Canonicalize normalises a virtual path to canonical form. Paths containing
// "." or ".." segments, backslashes, or NUL bytes are rejected with
// invalidPath. A trailing slash is preserved (except on "/").
func Canonicalize(p string) (string, error) {
	if strings.ContainsAny(p, "\\\x00") {
		return "", gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "path contains forbidden characters", p)
	}

	isDir := strings.HasSuffix(p, "/")

	segs := make([]string, 0, 8)
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return "", gwerrors.NewWithPath(gwerrors.ErrInvalidPath, "path traversal segment", p)
		default:
			segs = append(segs, seg)
		}
	}

	if len(segs) == 0 {
		return "/", nil
	}

	out := "/" + strings.Join(segs, "/")
	if isDir {
		out += "/"
	}
	return out, nil
}

// IsDir reports whether the canonical path denotes a directory.
func IsDir(p string) bool {
	return p == "/" || strings.HasSuffix(p, "/")
}

// Base returns the last segment of the path, without any trailing slash.
// Base("/") is "".
func Base(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return ""
	}
	return p[strings.LastIndex(p, "/")+1:]
}

// Parent returns the parent directory of the path, always with a trailing
// slash. Parent("/") is "/".
func Parent(p string) string {
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return "/"
	}
	idx := strings.LastIndex(p, "/")
	if idx <= 0 {
		return "/"
	}
	return p[:idx+1]
}

// Join joins a canonical directory path and a name.
func Join(dir, name string) string {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir + strings.TrimPrefix(name, "/")
}

// Ancestors returns every directory from "/" down to the parent of p,
// each with a trailing slash (and "/" itself plain). Used to refresh
// parent modification times after a mutation.
func Ancestors(p string) []string {
	p = strings.TrimSuffix(p, "/")
	out := []string{"/"}
	if p == "" {
		return out
	}

	segs := strings.Split(strings.TrimPrefix(p, "/"), "/")
	cur := ""
	for _, seg := range segs[:len(segs)-1] {
		cur += "/" + seg
		out = append(out, cur+"/")
	}
	return out
}

// HasPrefix reports whether prefix covers path at a segment boundary:
// "/team-a" covers "/team-a" and "/team-a/x" but not "/team-ab".
func HasPrefix(path, prefix string) bool {
	if prefix == "" || prefix == "/" {
		return true
	}
	prefix = strings.TrimSuffix(prefix, "/")
	path = strings.TrimSuffix(path, "/")
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
