package tree

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"notetree/internal/fsport"
	"notetree/internal/model"
	"notetree/internal/sandbox"
	"notetree/internal/scan"

	"github.com/spf13/afero"
)

// spyPort counts mutating calls and can be told to fail them.
type spyPort struct {
	fsport.Port
	writes  int
	failErr error
}

func (p *spyPort) mutate() error {
	p.writes++
	return p.failErr
}

func (p *spyPort) WriteFile(path string, data []byte) error {
	if err := p.mutate(); err != nil {
		return err
	}
	return p.Port.WriteFile(path, data)
}

func (p *spyPort) Mkdir(path string) error {
	if err := p.mutate(); err != nil {
		return err
	}
	return p.Port.Mkdir(path)
}

func (p *spyPort) DeleteRecursive(path string) error {
	if err := p.mutate(); err != nil {
		return err
	}
	return p.Port.DeleteRecursive(path)
}

func (p *spyPort) Rename(oldPath, newPath string) error {
	if err := p.mutate(); err != nil {
		return err
	}
	return p.Port.Rename(oldPath, newPath)
}

const vault = "/vault-notetree-test"

func mirroredFixture(t *testing.T) (*Store, *spyPort, afero.Fs) {
	t.Helper()
	mem := fsport.NewMemory()
	fsys := mem.Fs()
	for path, body := range map[string]string{
		vault + "/Welcome.md":           "# hi",
		vault + "/Projects/plan.md":     "plan",
		vault + "/Projects/deep/x.md":   "x",
		vault + "/Archive/old.md":       "old",
		vault + "/Projects/diagram.png": "png",
	} {
		if err := afero.WriteFile(fsys, path, []byte(body), 0o644); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
	items, err := scan.New(mem).Scan(vault)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	spy := &spyPort{Port: mem}
	s, err := New(items, "", WithFileSystem(spy), WithTimeFunc(func() time.Time { return at(100) }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, spy, fsys
}

func idOf(path string) string { return model.PathID(path) }

func TestMirrored_ModeAndRoot(t *testing.T) {
	t.Parallel()

	s, _, _ := mirroredFixture(t)
	if s.Mode() != ModeMirrored {
		t.Fatalf("expected mirrored mode")
	}
	root, ok := s.Root()
	if !ok || root.BackingPath != vault {
		t.Fatalf("unexpected root: %+v ok=%v", root, ok)
	}
	if s.Sandbox().AllowedRoot() != vault {
		t.Fatalf("expected sandbox rooted at %s, got %q", vault, s.Sandbox().AllowedRoot())
	}
}

func TestMirrored_CreateWritesThrough(t *testing.T) {
	t.Parallel()

	s, _, fsys := mirroredFixture(t)
	ctx := context.Background()

	dir, err := s.Create(ctx, model.KindFolder, "", "Inbox")
	if err != nil {
		t.Fatalf("Create folder: %v", err)
	}
	if dir.BackingPath != vault+"/Inbox" || dir.ID != idOf(vault+"/Inbox") {
		t.Fatalf("unexpected folder: %+v", dir)
	}
	root, _ := s.Root()
	if dir.Parent() != root.ID {
		t.Fatalf("expected sentinel parent to map to the mirrored root")
	}
	n, err := s.Create(ctx, model.KindNote, dir.ID, "todo.md")
	if err != nil {
		t.Fatalf("Create note: %v", err)
	}
	if ok, _ := afero.Exists(fsys, vault+"/Inbox/todo.md"); !ok {
		t.Fatalf("expected note file on disk")
	}
	if n.BackingPath != vault+"/Inbox/todo.md" {
		t.Fatalf("unexpected backing path %q", n.BackingPath)
	}

	if _, err := s.Create(ctx, model.KindNote, dir.ID, "todo.md"); !errors.Is(err, ErrFilesystemIO) || !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected existing-path FSError, got %v", err)
	}
}

func TestMirrored_PermissionDeniedMakesNoFSCall(t *testing.T) {
	t.Parallel()

	s, spy, _ := mirroredFixture(t)
	ctx := context.Background()
	before := len(s.Items())

	// Point the sandbox somewhere else; every mutation must now be refused.
	s.Sandbox().SetAllowedRoot("/elsewhere-notetree-test")

	noteID := idOf(vault + "/Welcome.md")
	projects := idOf(vault + "/Projects")
	archive := idOf(vault + "/Archive")

	checks := []struct {
		name string
		run  func() error
	}{
		{"create", func() error { _, err := s.Create(ctx, model.KindNote, "", "new.md"); return err }},
		{"rename", func() error { _, err := s.Rename(ctx, noteID, "Hello.md"); return err }},
		{"move", func() error { _, err := s.Move(ctx, noteID, archive); return err }},
		{"delete", func() error { _, err := s.Delete(ctx, projects); return err }},
		{"set content", func() error { _, err := s.SetContent(ctx, noteID, "x"); return err }},
	}
	for _, c := range checks {
		err := c.run()
		if !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("%s: expected ErrPermissionDenied, got %v", c.name, err)
		}
		if RefusalKind(err) != "PermissionDenied" {
			t.Fatalf("%s: unexpected refusal kind %q", c.name, RefusalKind(err))
		}
	}
	if spy.writes != 0 {
		t.Fatalf("expected no mutating filesystem calls, got %d", spy.writes)
	}
	if len(s.Items()) != before {
		t.Fatalf("refused operations changed the item count")
	}
	got, _ := s.Get(noteID)
	if got.Title != "Welcome.md" || got.BackingPath != vault+"/Welcome.md" {
		t.Fatalf("refused rename mutated the item: %+v", got)
	}
}

func TestMirrored_FSFailureLeavesMemoryUnchanged(t *testing.T) {
	t.Parallel()

	s, spy, _ := mirroredFixture(t)
	ctx := context.Background()
	spy.failErr = errors.New("transport closed")
	before := s.Items()

	noteID := idOf(vault + "/Welcome.md")
	if _, err := s.Rename(ctx, noteID, "Hello.md"); !errors.Is(err, ErrFilesystemIO) {
		t.Fatalf("expected ErrFilesystemIO, got %v", err)
	}
	if _, err := s.Delete(ctx, idOf(vault+"/Archive")); !errors.Is(err, ErrFilesystemIO) {
		t.Fatalf("expected ErrFilesystemIO, got %v", err)
	}
	if _, err := s.Create(ctx, model.KindFolder, "", "Inbox"); !errors.Is(err, ErrFilesystemIO) {
		t.Fatalf("expected ErrFilesystemIO, got %v", err)
	}
	after := s.Items()
	if len(after) != len(before) {
		t.Fatalf("item count changed after failed operations")
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Title != after[i].Title || before[i].BackingPath != after[i].BackingPath {
			t.Fatalf("item %d changed: %+v -> %+v", i, before[i], after[i])
		}
	}
}

func TestMirrored_ProtectedRoot(t *testing.T) {
	t.Parallel()

	s, spy, _ := mirroredFixture(t)
	ctx := context.Background()
	root, _ := s.Root()

	if _, err := s.Delete(ctx, root.ID); !errors.Is(err, ErrProtectedRoot) {
		t.Fatalf("delete root: expected ErrProtectedRoot, got %v", err)
	}
	if _, err := s.Move(ctx, root.ID, idOf(vault+"/Archive")); !errors.Is(err, ErrProtectedRoot) {
		t.Fatalf("move root: expected ErrProtectedRoot, got %v", err)
	}
	if _, err := s.Rename(ctx, root.ID, "other"); !errors.Is(err, ErrProtectedRoot) {
		t.Fatalf("rename root: expected ErrProtectedRoot, got %v", err)
	}
	if spy.writes != 0 {
		t.Fatalf("expected no filesystem calls, got %d", spy.writes)
	}
}

func TestMirrored_DeleteIsOneRecursiveCall(t *testing.T) {
	t.Parallel()

	s, spy, fsys := mirroredFixture(t)
	removed, err := s.Delete(context.Background(), idOf(vault+"/Projects"))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	// Projects, plan.md, deep, deep/x.md, diagram.png
	if len(removed) != 5 {
		t.Fatalf("expected 5 removed items, got %d", len(removed))
	}
	if spy.writes != 1 {
		t.Fatalf("expected exactly one filesystem call, got %d", spy.writes)
	}
	if ok, _ := afero.DirExists(fsys, vault+"/Projects"); ok {
		t.Fatalf("expected directory removed from disk")
	}
}

func TestMirrored_MoveMarksDescendantsStale(t *testing.T) {
	t.Parallel()

	s, _, fsys := mirroredFixture(t)
	ctx := context.Background()
	projects := idOf(vault + "/Projects")
	archive := idOf(vault + "/Archive")
	plan := idOf(vault + "/Projects/plan.md")

	moved, err := s.Move(ctx, projects, archive)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if moved.BackingPath != vault+"/Archive/Projects" || moved.StalePath {
		t.Fatalf("unexpected moved folder: %+v", moved)
	}
	if ok, _ := afero.DirExists(fsys, vault+"/Archive/Projects"); !ok {
		t.Fatalf("expected folder moved on disk")
	}

	child, _ := s.Get(plan)
	if !child.StalePath || child.BackingPath != vault+"/Projects/plan.md" {
		t.Fatalf("expected stale descendant with old path, got %+v", child)
	}
	if _, err := s.SetContent(ctx, plan, "new"); !errors.Is(err, ErrStalePath) {
		t.Fatalf("expected ErrStalePath, got %v", err)
	}
	if _, err := s.LoadContent(ctx, plan); !errors.Is(err, ErrStalePath) {
		t.Fatalf("expected ErrStalePath on lazy load, got %v", err)
	}

	rescanned, err := scan.New(fsport.New(fsys)).Scan(vault)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	items, _ := Reconcile(s.Items(), s.ActiveID(), rescanned)
	for _, it := range items {
		if it.StalePath {
			t.Fatalf("rescan left a stale item: %+v", it)
		}
	}
}

// diskFixture mirrors a real temp directory through the OS port.
func diskFixture(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"Welcome.md":         "# hi",
		"Projects/plan.md":   "plan",
		"Projects/deep/x.md": "x",
		"Archive/old.md":     "old",
	} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	port := fsport.NewOS()
	items, err := scan.New(port).Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	s, err := New(items, "", WithFileSystem(port), WithTimeFunc(func() time.Time { return at(100) }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, dir
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// assertJoined checks that an item's backing path is its parent's path plus its title.
func assertJoined(t *testing.T, s *Store, it model.Item) {
	t.Helper()
	parent, ok := s.Get(it.Parent())
	if !ok {
		t.Fatalf("parent %q of %s not found", it.Parent(), it.ID)
	}
	if want := filepath.Join(parent.BackingPath, it.Title); it.BackingPath != want {
		t.Fatalf("backing path %q, want %q", it.BackingPath, want)
	}
}

func TestMirrored_RenameNoteOnDisk(t *testing.T) {
	t.Parallel()

	s, dir := diskFixture(t)
	oldPath := filepath.Join(dir, "Welcome.md")
	id := idOf(oldPath)

	it, err := s.Rename(context.Background(), id, "Hello.md")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if it.ID != id || it.Title != "Hello.md" {
		t.Fatalf("unexpected renamed item: %+v", it)
	}
	assertJoined(t, s, it)
	if exists(oldPath) || !exists(filepath.Join(dir, "Hello.md")) {
		t.Fatalf("expected Welcome.md renamed to Hello.md on disk")
	}
	if found, ok := s.FindByPath(filepath.Join(dir, "Hello.md")); !ok || found.ID != id {
		t.Fatalf("FindByPath did not return the renamed note")
	}
}

func TestMirrored_RenameFolderMarksDescendantsStale(t *testing.T) {
	t.Parallel()

	s, dir := diskFixture(t)
	projects := idOf(filepath.Join(dir, "Projects"))

	it, err := s.Rename(context.Background(), projects, "Work")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	assertJoined(t, s, it)
	if it.StalePath {
		t.Fatalf("renamed folder itself must not be stale")
	}
	if exists(filepath.Join(dir, "Projects")) || !exists(filepath.Join(dir, "Work", "deep", "x.md")) {
		t.Fatalf("expected the directory and its contents under Work on disk")
	}
	for _, rel := range []string{"plan.md", "deep", "deep/x.md"} {
		old := filepath.Join(dir, "Projects", filepath.FromSlash(rel))
		child, ok := s.Get(idOf(old))
		if !ok {
			t.Fatalf("missing descendant %s", rel)
		}
		if !child.StalePath || child.BackingPath != old {
			t.Fatalf("expected %s stale with its old path, got %+v", rel, child)
		}
	}
}

func TestMirrored_MoveNoteOnDisk(t *testing.T) {
	t.Parallel()

	s, dir := diskFixture(t)
	oldPath := filepath.Join(dir, "Welcome.md")
	archive := idOf(filepath.Join(dir, "Archive"))

	it, err := s.Move(context.Background(), idOf(oldPath), archive)
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if it.Parent() != archive || !it.LastModified.Equal(at(100)) {
		t.Fatalf("unexpected moved item: %+v", it)
	}
	assertJoined(t, s, it)
	if exists(oldPath) || !exists(filepath.Join(dir, "Archive", "Welcome.md")) {
		t.Fatalf("expected Welcome.md moved into Archive on disk")
	}
}

func TestMirrored_CreateAtVacatedPath(t *testing.T) {
	t.Parallel()

	s, _, fsys := mirroredFixture(t)
	ctx := context.Background()
	welcome := idOf(vault + "/Welcome.md")
	old := idOf(vault + "/Archive/old.md")

	if _, err := s.Rename(ctx, welcome, "Other.md"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	n, err := s.Create(ctx, model.KindNote, "", "Welcome.md")
	if err != nil {
		t.Fatalf("Create after rename: %v", err)
	}
	if n.ID == welcome || n.BackingPath != vault+"/Welcome.md" {
		t.Fatalf("unexpected created item: %+v", n)
	}
	if ok, _ := afero.Exists(fsys, vault+"/Welcome.md"); !ok {
		t.Fatalf("expected Welcome.md recreated on disk")
	}
	renamed, _ := s.Get(welcome)
	if renamed.BackingPath != vault+"/Other.md" {
		t.Fatalf("renamed note changed: %+v", renamed)
	}

	if _, err := s.Move(ctx, old, idOf(vault+"/Projects")); err != nil {
		t.Fatalf("Move: %v", err)
	}
	n, err = s.Create(ctx, model.KindNote, idOf(vault+"/Archive"), "old.md")
	if err != nil {
		t.Fatalf("Create after move: %v", err)
	}
	if n.ID == old || n.BackingPath != vault+"/Archive/old.md" {
		t.Fatalf("unexpected created item: %+v", n)
	}
	if err := Validate(s.Items()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMirrored_CaseOnlyRenameKeepsOtherFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	lower := filepath.Join(dir, "note.md")
	upper := filepath.Join(dir, "Note.md")
	if err := os.WriteFile(lower, []byte("lower"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(upper, []byte("UPPER"), 0o644); err != nil {
		t.Fatal(err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 2 {
		t.Skip("case-insensitive filesystem")
	}
	port := fsport.NewOS()
	items, err := scan.New(port).Scan(dir)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	s, err := New(items, "", WithFileSystem(port))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	if _, err := s.Rename(ctx, idOf(lower), "Note.md"); !errors.Is(err, ErrFilesystemIO) || !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected existing-path FSError, got %v", err)
	}
	if b, _ := os.ReadFile(upper); string(b) != "UPPER" {
		t.Fatalf("Note.md was overwritten: %q", b)
	}
	if it, _ := s.Get(idOf(lower)); it.BackingPath != lower {
		t.Fatalf("refused rename mutated the item: %+v", it)
	}

	// A case-only rename to a free name still works.
	it, err := s.Rename(ctx, idOf(lower), "NOTE.md")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if b, _ := os.ReadFile(it.BackingPath); string(b) != "lower" {
		t.Fatalf("expected note.md content at %s, got %q", it.BackingPath, b)
	}
}

func TestMirrored_NewRefusesDirectoryWithoutNotes(t *testing.T) {
	t.Parallel()

	mem := fsport.NewMemory()
	if err := mem.Mkdir(vault + "/empty"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := mem.WriteFile(vault+"/pic.png", []byte("png")); err != nil {
		t.Fatalf("write: %v", err)
	}
	items, err := scan.New(mem).Scan(vault)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	_, err = New(items, "", WithFileSystem(mem))
	if !errors.Is(err, ErrNoNotes) || RefusalKind(err) != "NoNotes" {
		t.Fatalf("expected ErrNoNotes, got %v", err)
	}
}

func TestMirrored_RejectsMixedMove(t *testing.T) {
	t.Parallel()

	mem := fsport.NewMemory()
	if err := mem.Mkdir(vault + "/Sub"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	items, err := scan.New(mem).Scan(vault)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	items = append(items, model.Item{ID: "loose", Kind: model.KindNote, Title: "loose", Content: model.StrPtr("")})
	s, err := New(items, "", WithFileSystem(mem), WithSandbox(sandbox.New(vault)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Move(context.Background(), "loose", idOf(vault+"/Sub")); !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent, got %v", err)
	}
}

func TestMirrored_LazyContent(t *testing.T) {
	t.Parallel()

	s, _, fsys := mirroredFixture(t)
	ctx := context.Background()
	id := idOf(vault + "/Welcome.md")

	it, _ := s.Get(id)
	if it.Content != nil {
		t.Fatalf("expected unloaded content after scan")
	}
	body, err := s.LoadContent(ctx, id)
	if err != nil || body != "# hi" {
		t.Fatalf("LoadContent = %q, %v", body, err)
	}
	if _, err := s.SetContent(ctx, id, "# changed"); err != nil {
		t.Fatalf("SetContent: %v", err)
	}
	b, _ := afero.ReadFile(fsys, vault+"/Welcome.md")
	if string(b) != "# changed" {
		t.Fatalf("expected write-through, got %q", b)
	}
}
