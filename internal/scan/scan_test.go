package scan

import (
	"errors"
	"testing"

	"notetree/internal/fsport"
	"notetree/internal/model"

	"github.com/spf13/afero"
)

func seed(t *testing.T, p *fsport.AferoPort, files ...string) {
	t.Helper()
	for _, f := range files {
		if err := afero.WriteFile(p.Fs(), f, []byte("x"), 0o644); err != nil {
			t.Fatalf("seed %s: %v", f, err)
		}
	}
}

func byTitle(items []model.Item, title string) (model.Item, bool) {
	for _, it := range items {
		if it.Title == title {
			return it, true
		}
	}
	return model.Item{}, false
}

func TestScan_IncludesFoldersNotesImages(t *testing.T) {
	t.Parallel()

	p := fsport.NewMemory()
	seed(t, p,
		"/root/folder1/file1.md",
		"/root/image.png",
		"/root/Photo.JPEG",
		"/root/other.txt",
		"/root/.hidden",
		"/root/.git/config.md",
		"/root/node_modules/pkg/readme.md",
	)
	if err := p.Mkdir("/root/empty"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	items, err := New(p).Scan("/root")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	root := items[0]
	if root.Kind != model.KindFolder || root.ParentID != nil || root.BackingPath != "/root" {
		t.Fatalf("expected root folder first; got %#v", root)
	}

	folder, ok := byTitle(items, "folder1")
	if !ok || folder.Kind != model.KindFolder || folder.BackingPath != "/root/folder1" {
		t.Fatalf("expected folder1 folder; got %#v", folder)
	}
	if folder.IsExpanded {
		t.Fatalf("expected scanned folders collapsed")
	}
	file, ok := byTitle(items, "file1.md")
	if !ok || file.Kind != model.KindNote || file.Parent() != folder.ID {
		t.Fatalf("expected file1.md note under folder1; got %#v", file)
	}
	if file.Content != nil {
		t.Fatalf("expected lazy content")
	}
	if img, ok := byTitle(items, "image.png"); !ok || img.Kind != model.KindImage || img.Parent() != root.ID {
		t.Fatalf("expected image.png image at root; got %#v", img)
	}
	if _, ok := byTitle(items, "Photo.JPEG"); !ok {
		t.Fatalf("expected case-insensitive image extension match")
	}
	if _, ok := byTitle(items, "empty"); !ok {
		t.Fatalf("expected empty directory to become a folder")
	}

	for _, skipped := range []string{"other.txt", ".hidden", ".git", "config.md", "node_modules", "readme.md"} {
		if _, ok := byTitle(items, skipped); ok {
			t.Fatalf("expected %s to be skipped", skipped)
		}
	}
}

func TestScan_Deterministic(t *testing.T) {
	t.Parallel()

	p := fsport.NewMemory()
	seed(t, p, "/notes/a.md", "/notes/sub/b.md", "/notes/sub/deeper/c.png")

	s := New(p)
	first, err := s.Scan("/notes")
	if err != nil {
		t.Fatalf("Scan 1: %v", err)
	}
	second, err := s.Scan("/notes")
	if err != nil {
		t.Fatalf("Scan 2: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected same item count; got %d vs %d", len(first), len(second))
	}
	ids := map[string]string{}
	for _, it := range first {
		ids[it.BackingPath] = it.ID
	}
	for _, it := range second {
		if ids[it.BackingPath] != it.ID {
			t.Fatalf("id changed for %s: %q vs %q", it.BackingPath, ids[it.BackingPath], it.ID)
		}
	}
}

type failingPort struct {
	*fsport.AferoPort
	failOn string
}

func (f failingPort) ReadDirectory(path string) ([]fsport.Entry, error) {
	if path == f.failOn {
		return nil, errors.New("access denied")
	}
	return f.AferoPort.ReadDirectory(path)
}

func TestScan_FailureDiscardsPartialResults(t *testing.T) {
	t.Parallel()

	p := fsport.NewMemory()
	seed(t, p, "/root/a.md", "/root/locked/b.md")

	items, err := New(failingPort{AferoPort: p, failOn: "/root/locked"}).Scan("/root")
	if !errors.Is(err, ErrScanFailed) {
		t.Fatalf("expected ErrScanFailed; got %v", err)
	}
	if items != nil {
		t.Fatalf("expected no partial items; got %d", len(items))
	}
	var se *Error
	if !errors.As(err, &se) || se.Path != "/root/locked" {
		t.Fatalf("expected scan error at /root/locked; got %#v", err)
	}
}

func TestScan_MissingRoot(t *testing.T) {
	t.Parallel()

	if _, err := New(fsport.NewMemory()).Scan("/does/not/exist"); !errors.Is(err, ErrScanFailed) {
		t.Fatalf("expected ErrScanFailed; got %v", err)
	}
}

func TestKindForName(t *testing.T) {
	t.Parallel()

	cases := map[string]model.Kind{
		"a.md": model.KindNote, "b.MD": model.KindNote, "c.markdown": model.KindNote,
		"d.svg": model.KindImage, "e.webp": model.KindImage, "f.gif": model.KindImage,
	}
	for name, want := range cases {
		got, ok := KindForName(name)
		if !ok || got != want {
			t.Fatalf("KindForName(%q): expected %s; got %s ok=%v", name, want, got, ok)
		}
	}
	if _, ok := KindForName("notes.txt"); ok {
		t.Fatalf("expected .txt to be excluded")
	}
}
