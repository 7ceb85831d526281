package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestIsAllowed_Containment(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("posix paths")
	}
	s := New("/a/b")

	cases := []struct {
		in   string
		want bool
	}{
		{"/a/b/c.md", true},
		{"/a/b", true},
		{"/a/b/", true},
		{"/a/b/sub/deep/x.md", true},
		{"/a/b/../c.md", false},
		{"/a/bx/c.md", false},
		{"/a", false},
		{"/etc/passwd", false},
		{"/a/b/sub/../../b/ok.md", true},
		{"/a/b/..hidden", true},
		{"", false},
	}
	for _, c := range cases {
		if got := s.IsAllowed(c.in); got != c.want {
			t.Fatalf("IsAllowed(%q): expected %v; got %v", c.in, c.want, got)
		}
	}
}

func TestIsAllowed_NoRoot(t *testing.T) {
	t.Parallel()

	s := New("")
	if s.IsAllowed("/anything") {
		t.Fatalf("expected false with no root set")
	}
	s.SetAllowedRoot("/var/www")
	if !s.IsAllowed("/var/www/index.html") {
		t.Fatalf("expected new root to allow its children")
	}
	s.SetAllowedRoot("")
	if s.IsAllowed("/var/www/index.html") {
		t.Fatalf("expected cleared root to reject everything")
	}
}

func TestIsAllowed_LastWriterWins(t *testing.T) {
	t.Parallel()

	s := New("/tmp/test-root")
	s.SetAllowedRoot("/var/www")
	if s.IsAllowed("/tmp/test-root/file.txt") {
		t.Fatalf("expected old root to be rejected after replacement")
	}
}

func TestIsAllowed_SymlinkEscape(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	base := t.TempDir()
	root := filepath.Join(base, "root")
	outside := filepath.Join(base, "outside")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	s := New(root)
	if !s.IsAllowed(filepath.Join(root, "note.md")) {
		t.Fatalf("expected plain child to be allowed")
	}
	if s.IsAllowed(filepath.Join(root, "link", "secret.md")) {
		t.Fatalf("expected path through symlink to outside to be rejected")
	}
}

func TestResolve_NonExistingTail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("EvalSymlinks: %v", err)
	}
	got, err := Resolve(filepath.Join(dir, "missing", "x.md"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := filepath.Join(real, "missing", "x.md")
	if got != want {
		t.Fatalf("expected %q; got %q", want, got)
	}
}
