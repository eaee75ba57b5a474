package pathtree

import (
	"errors"
	"strings"
)

// Separator separates path components.
const Separator = "/"

// Path errors.
var (
	ErrEmptyPath      = errors.New("empty path")
	ErrNotAbsolute    = errors.New("path is not absolute")
	ErrEmptyComponent = errors.New("path contains an empty component")
)

// IsAbsolute reports whether p starts with the path separator.
func IsAbsolute(p string) bool {
	return strings.HasPrefix(p, Separator)
}

// Clean strips trailing separators. The root path stays "/".
func Clean(p string) string {
	trimmed := strings.TrimRight(p, Separator)
	if trimmed == "" && p != "" {
		return Separator
	}
	return trimmed
}

// Split validates an absolute path and returns its components.
// The root path yields an empty slice.
func Split(p string) ([]string, error) {
	if p == "" {
		return nil, ErrEmptyPath
	}
	if !IsAbsolute(p) {
		return nil, ErrNotAbsolute
	}
	p = Clean(p)
	if p == Separator {
		return nil, nil
	}
	parts := strings.Split(p[1:], Separator)
	for _, part := range parts {
		if part == "" {
			return nil, ErrEmptyComponent
		}
	}
	return parts, nil
}

// Join joins components into an absolute path.
func Join(components ...string) string {
	var b strings.Builder
	for _, c := range components {
		c = strings.Trim(c, Separator)
		if c == "" {
			continue
		}
		b.WriteString(Separator)
		b.WriteString(c)
	}
	if b.Len() == 0 {
		return Separator
	}
	return b.String()
}

// ResolveRelative makes source absolute relative to the directory base.
// Absolute sources are returned cleaned. Relative sources may use "." and
// ".." components.
func ResolveRelative(base, source string) string {
	if IsAbsolute(source) {
		return Clean(source)
	}
	stack := make([]string, 0, 8)
	for _, part := range strings.Split(Clean(base), Separator) {
		if part != "" {
			stack = append(stack, part)
		}
	}
	for _, part := range strings.Split(source, Separator) {
		switch part {
		case "", ".":
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	return Join(stack...)
}
