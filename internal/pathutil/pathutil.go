// Package pathutil implements the VFS path-component walk, adapted from
// biscuit's ustr.Ustr (biscuit/src/ustr/ustr.go).
package pathutil

import "strings"

// Path is an immutable slash-separated path, mirroring ustr.Ustr's role but
// over a Go string instead of a byte slice.
type Path string

// Root is the Path representing the filesystem root.
const Root Path = "/"

// IsAbsolute reports whether p begins with '/'.
func (p Path) IsAbsolute() bool {
	return len(p) > 0 && p[0] == '/'
}

// IsDot reports whether p is the single component ".".
func (p Path) IsDot() bool {
	return p == "."
}

// IsDotDot reports whether p is the single component "..".
func (p Path) IsDotDot() bool {
	return p == ".."
}

// Extend appends component c onto p, separated by '/'.
//
// \param c path component to append
// \return new Path with c appended
func (p Path) Extend(c string) Path {
	if p == "" || p == "/" {
		return Path("/" + c)
	}
	return Path(string(p) + "/" + c)
}

// Components splits p into its non-empty slash-separated parts.
func (p Path) Components() []string {
	parts := strings.Split(string(p), "/")
	out := make([]string, 0, len(parts))
	for _, c := range parts {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// String returns p as a plain string.
func (p Path) String() string { return string(p) }

// Base returns the final path component, or "/" for the root.
func (p Path) Base() string {
	c := p.Components()
	if len(c) == 0 {
		return "/"
	}
	return c[len(c)-1]
}
