package proxy

import (
	"regexp"
	"strings"
)

// RewriteFunc maps an incoming request path to the path sent upstream.
// Implementations must be pure and defined for every input.
type RewriteFunc func(path string) string

// Identity returns path unchanged. It is the rewrite used when a rule does
// not configure one.
func Identity(path string) string {
	return path
}

// StripPrefix removes prefix from the start of the path. The result always
// begins with a slash.
func StripPrefix(prefix string) RewriteFunc {
	return func(path string) string {
		return ensureLeadingSlash(strings.TrimPrefix(path, prefix))
	}
}

// StripMatch removes the leftmost match of re when it is anchored at the
// start of the path.
func StripMatch(re *regexp.Regexp) RewriteFunc {
	return func(path string) string {
		loc := re.FindStringIndex(path)
		if loc == nil || loc[0] != 0 {
			return path
		}
		return ensureLeadingSlash(path[loc[1]:])
	}
}

// Replace rewrites every match of re with repl, expanding $1-style
// submatch references.
func Replace(re *regexp.Regexp, repl string) RewriteFunc {
	return func(path string) string {
		return re.ReplaceAllString(path, repl)
	}
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
