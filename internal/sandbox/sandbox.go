// Package sandbox decides whether a filesystem path may be touched by a
// mutating operation. A single allowed root is active at a time.
package sandbox

import (
	"path/filepath"
	"strings"
	"sync"
)

type Sandbox struct {
	mu   sync.RWMutex
	root string
}

func New(root string) *Sandbox {
	s := &Sandbox{}
	s.SetAllowedRoot(root)
	return s
}

// SetAllowedRoot replaces the allowed root. An empty path clears it, after
// which every path is rejected.
func (s *Sandbox) SetAllowedRoot(path string) {
	root := ""
	if strings.TrimSpace(path) != "" {
		if r, err := Resolve(path); err == nil {
			root = r
		}
	}
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()
}

func (s *Sandbox) AllowedRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// IsAllowed reports whether candidate resolves to the root or a path below it.
func (s *Sandbox) IsAllowed(candidate string) bool {
	root := s.AllowedRoot()
	if root == "" || strings.TrimSpace(candidate) == "" {
		return false
	}
	if strings.ContainsRune(candidate, 0) {
		return false
	}
	resolved, err := Resolve(candidate)
	if err != nil {
		return false
	}
	return contains(root, resolved)
}

func contains(root, resolved string) bool {
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		// Different volume on Windows.
		return false
	}
	if filepath.IsAbs(rel) {
		return false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// Resolve returns the absolute, cleaned form of p with symbolic links
// evaluated on the longest prefix that exists on disk.
func Resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	var tail []string
	cur := abs
	for {
		if real, err := filepath.EvalSymlinks(cur); err == nil {
			parts := make([]string, 0, len(tail)+1)
			parts = append(parts, real)
			for i := len(tail) - 1; i >= 0; i-- {
				parts = append(parts, tail[i])
			}
			return filepath.Join(parts...), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
