// Package scan turns a directory subtree into a flat list of items.
package scan

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"notetree/internal/fsport"
	"notetree/internal/model"

	"github.com/sirupsen/logrus"
)

// ExcludedDir is skipped together with its subtree.
const ExcludedDir = "node_modules"

var (
	markdownExts = map[string]bool{".md": true, ".markdown": true}
	imageExts    = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true}
)

var ErrScanFailed = errors.New("scan failed")

// Error carries the path where the traversal stopped.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("scan failed at %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrScanFailed }

type Scanner struct {
	port fsport.Port
	log  logrus.FieldLogger
}

type Option func(*Scanner)

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

func New(port fsport.Port, opts ...Option) *Scanner {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	s := &Scanner{port: port, log: discard}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// KindForName classifies a file name; ok is false for files that are not included.
func KindForName(name string) (model.Kind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case markdownExts[ext]:
		return model.KindNote, true
	case imageExts[ext]:
		return model.KindImage, true
	default:
		return "", false
	}
}

func skipName(name string) bool {
	return strings.HasPrefix(name, ".")
}

type frame struct {
	path     string
	parentID string
}

// Scan walks rootPath depth-first and returns the root folder followed by
// every included descendant. Content is left unloaded. Any I/O error aborts
// the whole scan and no items are returned.
func (s *Scanner) Scan(rootPath string) ([]model.Item, error) {
	if strings.TrimSpace(rootPath) == "" {
		return nil, &Error{Path: rootPath, Err: errors.New("empty root path")}
	}
	root, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, &Error{Path: rootPath, Err: err}
	}
	mtime, err := s.port.Stat(root)
	if err != nil {
		return nil, &Error{Path: root, Err: err}
	}

	rootID := model.PathID(root)
	items := []model.Item{{
		ID:           rootID,
		Kind:         model.KindFolder,
		Title:        filepath.Base(root),
		LastModified: mtime,
		BackingPath:  root,
		IsExpanded:   true,
	}}

	stack := []frame{{path: root, parentID: rootID}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := s.port.ReadDirectory(cur.path)
		if err != nil {
			return nil, &Error{Path: cur.path, Err: err}
		}

		var subdirs []frame
		for _, e := range entries {
			if skipName(e.Name) {
				continue
			}
			full := s.port.JoinPath(cur.path, e.Name)

			var kind model.Kind
			switch {
			case e.IsDir:
				if e.Name == ExcludedDir {
					continue
				}
				kind = model.KindFolder
			case e.IsFile:
				k, ok := KindForName(e.Name)
				if !ok {
					continue
				}
				kind = k
			default:
				// Symlinks and special files are not followed.
				continue
			}

			mtime, err := s.port.Stat(full)
			if err != nil {
				return nil, &Error{Path: full, Err: err}
			}
			id := model.PathID(full)
			items = append(items, model.Item{
				ID:           id,
				Kind:         kind,
				ParentID:     model.StrPtr(cur.parentID),
				Title:        e.Name,
				LastModified: mtime,
				BackingPath:  full,
			})
			if kind == model.KindFolder {
				subdirs = append(subdirs, frame{path: full, parentID: id})
			}
		}
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	s.log.WithFields(logrus.Fields{"root": root, "items": len(items)}).Debug("scan complete")
	return items, nil
}
