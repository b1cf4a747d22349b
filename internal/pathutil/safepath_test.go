package pathutil

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

// TestHasDotSegments tests the helper directly for clarity
func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/normal/path", false},
		{"/path/./here", true},
		{"/path/../up", true},
		{".", true},
		{"..", true},
		{"/...", false},     // three dots is not a dot segment
		{"/.hidden", false}, // dotfile, not a dot segment
		{"/.dotdir/file", false},
		{"/path/to/.", true},
		{"/./", true},
		{"/../", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := HasDotSegments(tt.path)
			if got != tt.want {
				t.Errorf("hasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
func FuzzHasDotSegments(f *testing.F) {
	f.Add("foo/./bar")
	f.Add("foo/../bar")
	f.Add("./foo")
	f.Add("foo/.")
	f.Add(".")
	f.Add("..")
	f.Add("foo/bar")
	f.Add("...") // triple dot is a name, not traversal

	f.Fuzz(func(t *testing.T, p string) {
		result := HasDotSegments(p)
		// INVARIANT: if result is false, no segment equals "." or ".."
		segments := strings.Split(p, "/")
		hasDangerousSegment := false
		for _, seg := range segments {
			if seg == "." || seg == ".." {
				hasDangerousSegment = true
				break
			}
		}
		if result != hasDangerousSegment {
			t.Errorf("hasDotSegments(%q) = %v, but manual check = %v", p, result, hasDangerousSegment)
		}
	})
}

func TestJoin(t *testing.T) {
	got, err := Join("/srv/site", "/themes/custom/logo.png")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if want := filepath.Join("/srv/site", "themes", "custom", "logo.png"); got != want {
		t.Fatalf("Join = %q, want %q", got, want)
	}

	for _, bad := range []string{"/../etc/passwd", "/a/./b", "/a\\b", "/a\x00b"} {
		if _, err := Join("/srv/site", bad); !errors.Is(err, ErrUnsafePath) {
			t.Errorf("Join(%q) err = %v, want ErrUnsafePath", bad, err)
		}
	}
}

func TestPageKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/", "index.html"},
		{"", "index.html"},
		{"/about", "about/index.html"},
		{"/about/", "about/index.html"},
		{"/_quant404", "_quant404/index.html"},
		{"/blog//post", "blog/post/index.html"},
		{"/search?q=", "search/index.html"},
		{"/node/7?page=2", "node/7/index.html"},
		{"/?page=1", "index.html"},
		{"/about#team", "about/index.html"},
		{"/a?next=../../etc", "a/index.html"},
	}
	for _, tt := range tests {
		got, err := PageKey(tt.in)
		if err != nil {
			t.Fatalf("PageKey(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("PageKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := PageKey("/a/../b"); err == nil {
		t.Fatal("dot segments must be rejected")
	}
}

func TestStripQuery(t *testing.T) {
	for in, want := range map[string]string{
		"/search?q=x": "/search",
		"/a#b?c":      "/a",
		"/plain":      "/plain",
		"?":           "",
	} {
		if got := StripQuery(in); got != want {
			t.Errorf("StripQuery(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileKey(t *testing.T) {
	got, err := FileKey("/sites/default/files/css/a.css")
	if err != nil || got != "sites/default/files/css/a.css" {
		t.Fatalf("FileKey = %q, %v", got, err)
	}
	if _, err := FileKey("/"); err == nil {
		t.Fatal("root is not a file")
	}
}

func TestWithPrefix(t *testing.T) {
	if got := WithPrefix("", "index.html"); got != "index.html" {
		t.Errorf("got %q", got)
	}
	if got := WithPrefix("/sites/main/", "about/index.html"); got != "sites/main/about/index.html" {
		t.Errorf("got %q", got)
	}
}
