// Package pathutil provides separator-aware helpers for repository paths.
//
// Repository paths are slash separated and always absolute once normalized:
// the root is "/", a child of the root is "/name". Backslashes coming from
// foreign callers are treated as separators and converted before any other
// processing. All functions are pure and never fail; edge cases are reported
// through well-defined sentinel values.
package pathutil

import "strings"

const (
	separator        = "/"
	foreignSeparator = "\\"
)

// Separator returns the active path separator.
func Separator() string {
	return separator
}

// Join concatenates segments with the active separator.
//
// Foreign separators inside segments are converted first and runs of
// separators are collapsed, so Join("/a/", "\\b", "c") yields "/a/b/c".
// Empty segments are skipped. The result keeps a leading separator only if
// the first non-empty segment had one.
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	leading := false
	for _, s := range segments {
		s = strings.ReplaceAll(s, foreignSeparator, separator)
		if s == "" {
			continue
		}
		if len(parts) == 0 && !leading && strings.HasPrefix(s, separator) {
			leading = true
		}
		for _, p := range strings.Split(s, separator) {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}

	joined := strings.Join(parts, separator)
	if leading {
		return separator + joined
	}
	return joined
}

// Normalize converts p into its canonical absolute form.
//
// Foreign separators are converted, duplicate separators collapsed, a
// leading separator ensured and a trailing one trimmed. The empty path
// resolves to the root.
func Normalize(p string) string {
	return separator + strings.TrimPrefix(Join(p), separator)
}

// LeafName returns the substring after the last separator, or the whole
// path when it contains no separator.
func LeafName(p string) string {
	idx := strings.LastIndex(p, separator)
	if idx < 0 {
		return p
	}
	return p[idx+1:]
}

// ParentPath returns the substring before the last separator.
//
// The second result is false when p has no separator at all ("no parent").
// When the last separator is at position zero the root separator itself is
// returned.
func ParentPath(p string) (string, bool) {
	idx := strings.LastIndex(p, separator)
	switch {
	case idx < 0:
		return "", false
	case idx == 0:
		return separator, true
	default:
		return p[:idx], true
	}
}

// IsRoot reports whether p is exactly the root separator.
func IsRoot(p string) bool {
	return p == separator
}
