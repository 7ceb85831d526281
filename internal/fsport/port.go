// Package fsport is the filesystem boundary used by the scanner and the item
// tree. Everything goes through an afero.Fs so tests can run in memory.
package fsport

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

type Entry struct {
	Name   string
	IsDir  bool
	IsFile bool
}

// Port defines the filesystem operations the core depends on.
type Port interface {
	JoinPath(elem ...string) string
	ReadDirectory(path string) ([]Entry, error)
	// Stat returns the modification time of path.
	Stat(path string) (time.Time, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	// Mkdir creates path and any missing parents.
	Mkdir(path string) error
	// DeleteRecursive removes a file or a whole directory subtree.
	DeleteRecursive(path string) error
	Rename(oldPath, newPath string) error
	Exists(path string) (bool, error)
	// SameFile reports whether a and b name one existing file, as a
	// case-only rename does on a case-insensitive filesystem.
	SameFile(a, b string) (bool, error)
}

type AferoPort struct {
	fs afero.Fs
}

func New(fsys afero.Fs) *AferoPort {
	return &AferoPort{fs: fsys}
}

func NewOS() *AferoPort {
	return New(afero.NewOsFs())
}

func NewMemory() *AferoPort {
	return New(afero.NewMemMapFs())
}

// Fs exposes the underlying filesystem (tests seed fixtures through it).
func (p *AferoPort) Fs() afero.Fs { return p.fs }

func (p *AferoPort) JoinPath(elem ...string) string {
	return filepath.Join(elem...)
}

func (p *AferoPort) ReadDirectory(path string) ([]Entry, error) {
	infos, err := afero.ReadDir(p.fs, path)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		out = append(out, Entry{
			Name:   fi.Name(),
			IsDir:  fi.IsDir(),
			IsFile: fi.Mode().IsRegular(),
		})
	}
	return out, nil
}

func (p *AferoPort) Stat(path string) (time.Time, error) {
	fi, err := p.fs.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return fi.ModTime(), nil
}

func (p *AferoPort) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(p.fs, path)
}

// WriteFile writes to a temp file in the same directory and renames it into place.
func (p *AferoPort) WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".tmp.%s.%d", filepath.Base(path), os.Getpid()))

	f, err := p.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = p.fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = p.fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = p.fs.Remove(tmp)
		return err
	}
	if err := p.fs.Rename(tmp, path); err != nil {
		_ = p.fs.Remove(tmp)
		return err
	}
	return nil
}

func (p *AferoPort) Mkdir(path string) error {
	return p.fs.MkdirAll(path, 0o755)
}

func (p *AferoPort) DeleteRecursive(path string) error {
	fi, err := p.fs.Stat(path)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return p.fs.Remove(path)
	}
	return p.fs.RemoveAll(path)
}

func (p *AferoPort) Rename(oldPath, newPath string) error {
	if _, err := p.fs.Stat(oldPath); err != nil {
		return err
	}
	return p.fs.Rename(oldPath, newPath)
}

func (p *AferoPort) Exists(path string) (bool, error) {
	_, err := p.fs.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (p *AferoPort) SameFile(a, b string) (bool, error) {
	fa, err := p.fs.Stat(a)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if filepath.Clean(a) == filepath.Clean(b) {
		return true, nil
	}
	fb, err := p.fs.Stat(b)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return os.SameFile(fa, fb), nil
}

var _ Port = (*AferoPort)(nil)
