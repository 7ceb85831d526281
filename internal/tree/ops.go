package tree

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"notetree/internal/model"

	"github.com/sirupsen/logrus"
)

// Create adds a new item under parentID ("" for the forest root) and makes it
// active. In a mirrored forest the root-level sentinel means the opened
// folder, and the matching file or directory is created on disk first.
func (s *Store) Create(ctx context.Context, kind model.Kind, parentID, title string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !kind.Valid() {
		return model.Item{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	title, err := normalizeTitle(title)
	if err != nil {
		return model.Item{}, err
	}
	parentID = strings.TrimSpace(parentID)
	if root, ok := s.rootLocked(); ok && parentID == "" {
		parentID = root.ID
	}

	var parent *model.Item
	if parentID != "" {
		idx, ok := s.find(parentID)
		if !ok {
			return model.Item{}, NotFoundError{ID: parentID}
		}
		parent = &s.items[idx]
		if !parent.IsFolder() {
			return model.Item{}, fmt.Errorf("%w: %s is not a folder", ErrInvalidParent, parentID)
		}
	}

	it := model.Item{
		ID:           model.NewID(),
		Kind:         kind,
		ParentID:     model.ParentPtr(parentID),
		Title:        title,
		LastModified: s.now(),
	}
	switch kind {
	case model.KindNote:
		it.Content = model.StrPtr("")
	case model.KindFolder:
		it.IsExpanded = true
	}

	if parent != nil && parent.Mirrored() {
		if parent.StalePath {
			return model.Item{}, fmt.Errorf("%w: %s", ErrStalePath, parent.BackingPath)
		}
		childPath := s.port.JoinPath(parent.BackingPath, title)
		if !s.sandbox.IsAllowed(childPath) {
			s.refused("create", childPath, ErrPermissionDenied)
			return model.Item{}, permissionDenied(childPath)
		}
		// A renamed or moved item keeps the id of its old path; only an item
		// still backed by childPath is a real collision.
		childID := model.PathID(childPath)
		if idx, dup := s.find(childID); dup {
			if s.items[idx].BackingPath == childPath {
				return model.Item{}, fsErr("create", childPath, fs.ErrExist)
			}
			childID = model.NewID()
		}
		exists, err := s.port.Exists(childPath)
		if err != nil {
			return model.Item{}, fsErr("stat", childPath, err)
		}
		if exists {
			return model.Item{}, fsErr("create", childPath, fs.ErrExist)
		}
		if kind == model.KindFolder {
			err = s.port.Mkdir(childPath)
		} else {
			err = s.port.WriteFile(childPath, nil)
		}
		if err != nil {
			return model.Item{}, fsErr("create", childPath, err)
		}
		it.ID = childID
		it.BackingPath = childPath
	}

	s.items = append(s.items, it)
	s.activeID = it.ID
	s.log.WithFields(logrus.Fields{"op": "create", "id": it.ID, "kind": kind}).Debug("item created")
	s.persistLocked(ctx, "create")
	return it.Clone(), nil
}

// Rename changes an item's title and, when mirrored, its name on disk. The
// id and parent are unchanged.
func (s *Store) Rename(ctx context.Context, id, newTitle string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	idx, ok := s.find(id)
	if !ok {
		return model.Item{}, NotFoundError{ID: id}
	}
	title, err := normalizeTitle(newTitle)
	if err != nil {
		return model.Item{}, err
	}
	if root, ok := s.rootLocked(); ok && root.ID == id {
		s.refused("rename", id, ErrProtectedRoot)
		return model.Item{}, ErrProtectedRoot
	}
	it := s.items[idx]
	if it.Title == title {
		return it.Clone(), nil
	}

	newPath := ""
	if it.Mirrored() {
		if it.StalePath {
			return model.Item{}, fmt.Errorf("%w: %s", ErrStalePath, it.BackingPath)
		}
		dir := filepath.Dir(it.BackingPath)
		if pidx, ok := s.find(it.Parent()); ok && s.items[pidx].Mirrored() {
			dir = s.items[pidx].BackingPath
		}
		newPath = s.port.JoinPath(dir, title)
		if err := s.renameOnDisk("rename", it.BackingPath, newPath); err != nil {
			return model.Item{}, err
		}
	}

	cur := &s.items[idx]
	cur.Title = title
	cur.LastModified = s.now()
	if newPath != "" {
		cur.BackingPath = newPath
		if cur.IsFolder() {
			s.markDescendantsStale(cur.ID)
		}
	}
	s.log.WithFields(logrus.Fields{"op": "rename", "id": id}).Debug("item renamed")
	s.persistLocked(ctx, "rename")
	return cur.Clone(), nil
}

// Move re-parents an item. Moving an item into itself or one of its
// descendants is rejected with ErrCycleRejected.
//
// Descendants of a moved mirrored folder keep their old backing paths and
// are flagged stale until the folder is scanned again.
func (s *Store) Move(ctx context.Context, id, newParentID string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	newParentID = strings.TrimSpace(newParentID)
	idx, ok := s.find(id)
	if !ok {
		return model.Item{}, NotFoundError{ID: id}
	}
	if root, ok := s.rootLocked(); ok {
		if root.ID == id {
			s.refused("move", id, ErrProtectedRoot)
			return model.Item{}, ErrProtectedRoot
		}
		if newParentID == "" {
			newParentID = root.ID
		}
	}

	var parent *model.Item
	if newParentID != "" {
		if newParentID == id || s.isDescendantLocked(newParentID, id) {
			s.refused("move", id, ErrCycleRejected)
			return model.Item{}, ErrCycleRejected
		}
		pidx, ok := s.find(newParentID)
		if !ok {
			return model.Item{}, NotFoundError{ID: newParentID}
		}
		parent = &s.items[pidx]
		if !parent.IsFolder() {
			return model.Item{}, fmt.Errorf("%w: %s is not a folder", ErrInvalidParent, newParentID)
		}
	}

	it := s.items[idx]
	if it.Parent() == newParentID {
		return it.Clone(), nil
	}

	newPath := ""
	if it.Mirrored() || (parent != nil && parent.Mirrored()) {
		if parent == nil || !parent.Mirrored() || !it.Mirrored() {
			return model.Item{}, fmt.Errorf("%w: cannot move between disk-backed and in-memory folders", ErrInvalidParent)
		}
		if it.StalePath {
			return model.Item{}, fmt.Errorf("%w: %s", ErrStalePath, it.BackingPath)
		}
		if parent.StalePath {
			return model.Item{}, fmt.Errorf("%w: %s", ErrStalePath, parent.BackingPath)
		}
		newPath = s.port.JoinPath(parent.BackingPath, it.Title)
		if err := s.renameOnDisk("move", it.BackingPath, newPath); err != nil {
			return model.Item{}, err
		}
	}

	cur := &s.items[idx]
	if newPath != "" {
		cur.BackingPath = newPath
		if cur.IsFolder() {
			s.markDescendantsStale(cur.ID)
		}
	}
	cur.ParentID = model.ParentPtr(newParentID)
	cur.LastModified = s.now()
	s.log.WithFields(logrus.Fields{"op": "move", "id": id, "parent": newParentID}).Debug("item moved")
	s.persistLocked(ctx, "move")
	return cur.Clone(), nil
}

// Delete removes id and its whole subtree. A mirrored item is removed from
// disk with one recursive delete before memory is touched. It returns the
// removed ids.
func (s *Store) Delete(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	idx, ok := s.find(id)
	if !ok {
		return nil, NotFoundError{ID: id}
	}
	if root, ok := s.rootLocked(); ok && root.ID == id {
		s.refused("delete", id, ErrProtectedRoot)
		return nil, ErrProtectedRoot
	}

	doomed := s.descendantsLocked(id)
	removedNotes := 0
	for _, it := range s.items {
		if doomed[it.ID] && it.IsNote() {
			removedNotes++
		}
	}
	if removedNotes > 0 && removedNotes >= s.noteCount() {
		s.refused("delete", id, ErrLastNoteProtected)
		return nil, ErrLastNoteProtected
	}

	it := s.items[idx]
	if it.Mirrored() {
		if it.StalePath {
			return nil, fmt.Errorf("%w: %s", ErrStalePath, it.BackingPath)
		}
		if !s.sandbox.IsAllowed(it.BackingPath) {
			s.refused("delete", it.BackingPath, ErrPermissionDenied)
			return nil, permissionDenied(it.BackingPath)
		}
		if err := s.port.DeleteRecursive(it.BackingPath); err != nil {
			return nil, fsErr("delete", it.BackingPath, err)
		}
	}

	kept := make([]model.Item, 0, len(s.items)-len(doomed))
	removed := make([]string, 0, len(doomed))
	for _, x := range s.items {
		if doomed[x.ID] {
			removed = append(removed, x.ID)
			continue
		}
		kept = append(kept, x)
	}
	s.items = kept
	if doomed[s.activeID] {
		s.activeID = s.firstNoteID()
	}
	s.log.WithFields(logrus.Fields{"op": "delete", "id": id, "removed": len(removed)}).Debug("items deleted")
	s.persistLocked(ctx, "delete")
	return removed, nil
}

// LoadContent returns a note's body, reading a mirrored note from disk the
// first time it is needed.
func (s *Store) LoadContent(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	idx, ok := s.find(id)
	if !ok {
		return "", NotFoundError{ID: id}
	}
	it := &s.items[idx]
	if !it.IsNote() {
		return "", fmt.Errorf("%w: %s is a %s", ErrInvalidKind, id, it.Kind)
	}
	if it.Content != nil {
		return *it.Content, nil
	}
	if !it.Mirrored() {
		it.Content = model.StrPtr("")
		return "", nil
	}
	if it.StalePath {
		return "", fmt.Errorf("%w: %s", ErrStalePath, it.BackingPath)
	}
	if !s.sandbox.IsAllowed(it.BackingPath) {
		return "", permissionDenied(it.BackingPath)
	}
	b, err := s.port.ReadFile(it.BackingPath)
	if err != nil {
		return "", fsErr("read", it.BackingPath, err)
	}
	it.Content = model.StrPtr(string(b))
	return *it.Content, nil
}

// SetContent replaces a note's body, writing it through to disk for mirrored notes.
func (s *Store) SetContent(ctx context.Context, id, content string) (model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	idx, ok := s.find(id)
	if !ok {
		return model.Item{}, NotFoundError{ID: id}
	}
	it := s.items[idx]
	if !it.IsNote() {
		return model.Item{}, fmt.Errorf("%w: %s is a %s", ErrInvalidKind, id, it.Kind)
	}
	if it.Mirrored() {
		if it.StalePath {
			return model.Item{}, fmt.Errorf("%w: %s", ErrStalePath, it.BackingPath)
		}
		if !s.sandbox.IsAllowed(it.BackingPath) {
			s.refused("write", it.BackingPath, ErrPermissionDenied)
			return model.Item{}, permissionDenied(it.BackingPath)
		}
		if err := s.port.WriteFile(it.BackingPath, []byte(content)); err != nil {
			return model.Item{}, fsErr("write", it.BackingPath, err)
		}
	}
	cur := &s.items[idx]
	cur.Content = model.StrPtr(content)
	cur.LastModified = s.now()
	s.persistLocked(ctx, "set-content")
	return cur.Clone(), nil
}

func (s *Store) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	idx, ok := s.find(id)
	if !ok {
		return NotFoundError{ID: id}
	}
	s.items[idx].LastModified = s.now()
	s.persistLocked(ctx, "touch")
	return nil
}

// ToggleExpanded flips a folder's UI expansion flag and returns the new value.
func (s *Store) ToggleExpanded(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	idx, ok := s.find(id)
	if !ok {
		return false, NotFoundError{ID: id}
	}
	it := &s.items[idx]
	if !it.IsFolder() {
		return false, fmt.Errorf("%w: %s is a %s", ErrInvalidKind, id, it.Kind)
	}
	it.IsExpanded = !it.IsExpanded
	s.persistLocked(ctx, "toggle-expanded")
	return it.IsExpanded, nil
}

func (s *Store) renameOnDisk(op, oldPath, newPath string) error {
	if !s.sandbox.IsAllowed(oldPath) {
		s.refused(op, oldPath, ErrPermissionDenied)
		return permissionDenied(oldPath)
	}
	if !s.sandbox.IsAllowed(newPath) {
		s.refused(op, newPath, ErrPermissionDenied)
		return permissionDenied(newPath)
	}
	exists, err := s.port.Exists(newPath)
	if err != nil {
		return fsErr("stat", newPath, err)
	}
	if exists {
		// A case-only rename on a case-insensitive filesystem finds the source itself.
		same, err := s.port.SameFile(oldPath, newPath)
		if err != nil {
			return fsErr("stat", newPath, err)
		}
		if !same {
			return fsErr(op, newPath, fs.ErrExist)
		}
	}
	if err := s.port.Rename(oldPath, newPath); err != nil {
		return fsErr(op, oldPath, err)
	}
	return nil
}

func (s *Store) markDescendantsStale(id string) {
	for d := range s.descendantsLocked(id) {
		if d == id {
			continue
		}
		if idx, ok := s.find(d); ok && s.items[idx].Mirrored() {
			s.items[idx].StalePath = true
		}
	}
}

func (s *Store) refused(op, target string, reason error) {
	s.log.WithFields(logrus.Fields{"op": op, "target": target, "reason": RefusalKind(reason)}).Info("operation refused")
}
