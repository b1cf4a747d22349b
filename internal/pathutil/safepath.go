// Package pathutil maps public site paths onto filesystem paths and object
// keys without letting a path escape its root.
package pathutil

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned for paths carrying dot segments or NUL bytes.
var ErrUnsafePath = errors.New("unsafe path")

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Check rejects public paths that could resolve outside a root.
func Check(public string) error {
	if HasDotSegments(public) || strings.ContainsRune(public, 0) || strings.Contains(public, `\`) {
		return ErrUnsafePath
	}
	return nil
}

// Join resolves public (a slash path such as /themes/x/logo.png) under root.
func Join(root, public string) (string, error) {
	if err := Check(public); err != nil {
		return "", err
	}
	rel := strings.TrimLeft(public, "/")
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// StripQuery drops any query string or fragment from a route.
func StripQuery(route string) string {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		return route[:i]
	}
	return route
}

// PageKey is the relative location a rendered page is stored at:
// "/" becomes index.html, "/about" becomes about/index.html. A query string
// or fragment does not take part in the key, so "/search?q=" is stored as
// search/index.html.
func PageKey(public string) (string, error) {
	public = StripQuery(public)
	if err := Check(public); err != nil {
		return "", err
	}
	p := strings.Trim(path.Clean("/"+public), "/")
	if p == "" {
		return "index.html", nil
	}
	return p + "/index.html", nil
}

// FileKey is the relative location a static file is stored at.
func FileKey(public string) (string, error) {
	if err := Check(public); err != nil {
		return "", err
	}
	p := strings.TrimLeft(path.Clean("/"+public), "/")
	if p == "" {
		return "", ErrUnsafePath
	}
	return p, nil
}

// WithPrefix joins an optional key prefix and a relative key.
func WithPrefix(prefix, key string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
