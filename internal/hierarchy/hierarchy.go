// Package hierarchy implements materialized document paths. A path is a
// dot-joined chain of slugs ("guides.setup.postgres"); all ancestry
// questions reduce to string prefix checks and a subtree move is a
// single prefix rewrite.
package hierarchy

import "strings"

// Separator joins path labels.
const Separator = "."

// Slugify lowercases s and replaces every run of non-alphanumeric
// characters with a single underscore. Leading and trailing runs are
// dropped. An all-symbol title yields the empty string; callers must
// reject it.
func Slugify(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Root returns the path of a top-level node.
func Root(slug string) string {
	return slug
}

// Child returns the path of slug under parentPath. An empty parentPath
// means a top-level node.
func Child(parentPath, slug string) string {
	if parentPath == "" {
		return slug
	}
	return parentPath + Separator + slug
}

// Parent returns the parent path of path, or "" for a top-level node.
func Parent(path string) string {
	i := strings.LastIndex(path, Separator)
	if i < 0 {
		return ""
	}
	return path[:i]
}

// Label returns the last path segment.
func Label(path string) string {
	i := strings.LastIndex(path, Separator)
	if i < 0 {
		return path
	}
	return path[i+len(Separator):]
}

// Depth returns the number of labels in path. The empty path has depth 0.
func Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, Separator) + 1
}

// IsSelfOrDescendant reports whether candidate lies at or below path.
// This is the cycle check for moves: a node may not become a child of
// itself or of its own subtree.
func IsSelfOrDescendant(path, candidate string) bool {
	return candidate == path || strings.HasPrefix(candidate, path+Separator)
}

// Rebase rewrites a path inside a moved subtree: the oldPrefix root is
// replaced by newPrefix. Rebase(path, path, new) returns new itself.
// The caller must ensure path lies in the oldPrefix subtree.
func Rebase(path, oldPrefix, newPrefix string) string {
	if path == oldPrefix {
		return newPrefix
	}
	return newPrefix + strings.TrimPrefix(path, oldPrefix)
}
