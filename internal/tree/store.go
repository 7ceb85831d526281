// Package tree holds the authoritative in-memory item forest and its
// mutation API. When the forest is rooted at an opened directory, every
// structural change is mirrored to disk through a fsport.Port after a
// sandbox check.
package tree

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"notetree/internal/fsport"
	"notetree/internal/model"
	"notetree/internal/sandbox"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/unicode/norm"
)

type Mode string

const (
	ModeEphemeral Mode = "ephemeral"
	ModeMirrored  Mode = "mirrored"
)

// Persister receives a snapshot after every successful mutation.
type Persister interface {
	Persist(ctx context.Context, items []model.Item, activeID string) error
}

// Store is safe for concurrent use; operations run one at a time, including
// the filesystem calls they wait on.
type Store struct {
	mu       sync.Mutex
	items    []model.Item
	activeID string

	port      fsport.Port
	sandbox   *sandbox.Sandbox
	persister Persister
	log       logrus.FieldLogger
	now       func() time.Time
}

type Option func(*Store)

func WithFileSystem(p fsport.Port) Option {
	return func(s *Store) { s.port = p }
}

func WithSandbox(sb *sandbox.Sandbox) Option {
	return func(s *Store) { s.sandbox = sb }
}

func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTimeFunc sets a custom clock for deterministic timestamps in tests.
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New adopts items as the whole forest. Switching between an ephemeral and a
// mirrored forest means building a new Store.
func New(items []model.Item, activeID string, opts ...Option) (*Store, error) {
	if err := Validate(items); err != nil {
		return nil, err
	}
	if countNotes(items) == 0 {
		return nil, ErrNoNotes
	}
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Store{
		items:    model.CloneAll(items),
		activeID: strings.TrimSpace(activeID),
		log:      discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.port == nil {
		s.port = fsport.NewOS()
	}
	if s.sandbox == nil {
		root := ""
		if r, ok := s.rootLocked(); ok {
			root = r.BackingPath
		}
		s.sandbox = sandbox.New(root)
	}
	if _, ok := s.find(s.activeID); !ok {
		s.activeID = s.firstNoteID()
	}
	return s, nil
}

// Validate checks the structural invariants: unique ids, parents that exist
// and are folders, and no cycles.
func Validate(items []model.Item) error {
	byID := make(map[string]model.Item, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return fmt.Errorf("%w: empty id", ErrInvalidTree)
		}
		if !it.Kind.Valid() {
			return fmt.Errorf("%w: item %s has kind %q", ErrInvalidTree, it.ID, it.Kind)
		}
		if _, dup := byID[it.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidTree, it.ID)
		}
		byID[it.ID] = it
	}
	for _, it := range items {
		pid := it.Parent()
		if pid == "" {
			continue
		}
		parent, ok := byID[pid]
		if !ok {
			return fmt.Errorf("%w: item %s references missing parent %s", ErrInvalidTree, it.ID, pid)
		}
		if !parent.IsFolder() {
			return fmt.Errorf("%w: item %s has non-folder parent %s", ErrInvalidTree, it.ID, pid)
		}
		seen := map[string]bool{it.ID: true}
		for cur := pid; cur != ""; cur = byID[cur].Parent() {
			if seen[cur] {
				return fmt.Errorf("%w: cycle through %s", ErrInvalidTree, cur)
			}
			seen[cur] = true
		}
	}
	return nil
}

func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rootLocked(); ok {
		return ModeMirrored
	}
	return ModeEphemeral
}

// Root returns the mirrored root folder, if the forest represents an opened directory.
func (s *Store) Root() (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rootLocked()
	if !ok {
		return model.Item{}, false
	}
	return r.Clone(), true
}

func (s *Store) Sandbox() *sandbox.Sandbox { return s.sandbox }

// FindByPath returns the item currently backed by path.
func (s *Store) FindByPath(path string) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		return model.Item{}, false
	}
	for _, it := range s.items {
		if it.BackingPath == path {
			return it.Clone(), true
		}
	}
	return model.Item{}, false
}

func (s *Store) Get(id string) (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.find(id)
	if !ok {
		return model.Item{}, false
	}
	return s.items[idx].Clone(), true
}

// Items returns a copy of the forest in storage order.
func (s *Store) Items() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneAll(s.items)
}

func (s *Store) Children(parentID string) []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	parentID = strings.TrimSpace(parentID)
	var out []model.Item
	for _, it := range s.items {
		if it.Parent() == parentID {
			out = append(out, it.Clone())
		}
	}
	return OrderForDisplay(out)
}

func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// ActiveNote returns the active item when it is a note, otherwise the first note.
func (s *Store) ActiveNote() (model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx, ok := s.find(s.activeID); ok && s.items[idx].IsNote() {
		return s.items[idx].Clone(), true
	}
	if idx, ok := s.find(s.firstNoteID()); ok {
		return s.items[idx].Clone(), true
	}
	return model.Item{}, false
}

func (s *Store) SetActive(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.find(id); !ok {
		return NotFoundError{ID: id}
	}
	s.activeID = id
	s.persistLocked(ctx, "set-active")
	return nil
}

// DescendantsOf returns id and every item below it. The result is empty when
// id does not exist.
func (s *Store) DescendantsOf(id string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descendantsLocked(strings.TrimSpace(id))
}

// IsDescendant reports whether candidateID is ancestorID or lies below it.
func (s *Store) IsDescendant(candidateID, ancestorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDescendantLocked(strings.TrimSpace(candidateID), strings.TrimSpace(ancestorID))
}

func (s *Store) find(id string) (int, bool) {
	if id == "" {
		return -1, false
	}
	for i := range s.items {
		if s.items[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Store) rootLocked() (model.Item, bool) {
	for _, it := range s.items {
		if it.ParentID == nil && it.IsFolder() && it.Mirrored() {
			return it, true
		}
	}
	return model.Item{}, false
}

func (s *Store) firstNoteID() string {
	for _, it := range s.items {
		if it.IsNote() {
			return it.ID
		}
	}
	return ""
}

func (s *Store) noteCount() int {
	return countNotes(s.items)
}

func countNotes(items []model.Item) int {
	n := 0
	for _, it := range items {
		if it.IsNote() {
			n++
		}
	}
	return n
}

func (s *Store) descendantsLocked(id string) map[string]bool {
	out := map[string]bool{}
	if _, ok := s.find(id); !ok {
		return out
	}
	children := map[string][]string{}
	for _, it := range s.items {
		if pid := it.Parent(); pid != "" {
			children[pid] = append(children[pid], it.ID)
		}
	}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if out[cur] {
			continue
		}
		out[cur] = true
		queue = append(queue, children[cur]...)
	}
	return out
}

func (s *Store) isDescendantLocked(candidateID, ancestorID string) bool {
	if candidateID == "" || ancestorID == "" {
		return false
	}
	// Bounded by the item count so malformed data cannot loop forever.
	cur := candidateID
	for steps := 0; cur != "" && steps <= len(s.items); steps++ {
		if cur == ancestorID {
			return true
		}
		idx, ok := s.find(cur)
		if !ok {
			return false
		}
		cur = s.items[idx].Parent()
	}
	return false
}

func (s *Store) persistLocked(ctx context.Context, op string) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Persist(ctx, model.CloneAll(s.items), s.activeID); err != nil {
		s.log.WithFields(logrus.Fields{"op": op, "error": err}).Error("persist state")
	}
}

func normalizeTitle(title string) (string, error) {
	t := norm.NFC.String(strings.TrimSpace(title))
	switch {
	case t == "", t == ".", t == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidTitle, title)
	case strings.ContainsAny(t, `/\`), strings.ContainsRune(t, 0):
		return "", fmt.Errorf("%w: %q must be a single name", ErrInvalidTitle, title)
	}
	return t, nil
}
