package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"notetree/internal/fsport"
	"notetree/internal/model"
	"notetree/internal/sandbox"
	"notetree/internal/store"
	"notetree/internal/tree"

	"github.com/spf13/cobra"
)

// session holds the state directory open for one command: the lock, the
// key-value store, the gateway and the tree built from what was loaded.
type session struct {
	app  *App
	ctx  context.Context
	lock *store.StateLock
	kv   *store.SQLiteKV
	gw   *store.Gateway
	port fsport.Port
	tree *tree.Store
}

func openSession(cmd *cobra.Command, app *App) (*session, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	dir := strings.TrimSpace(app.Dir)
	if dir == "" {
		return nil, fmt.Errorf("no state directory configured")
	}

	lock := store.NewStateLock(dir)
	timeout := time.Duration(app.cfg.LockTimeoutS) * time.Second
	if err := lock.Acquire(ctx, timeout); err != nil {
		return nil, err
	}
	kv, err := store.OpenSQLiteKV(ctx, dir)
	if err != nil {
		_ = lock.Release()
		return nil, err
	}
	s := &session{
		app:  app,
		ctx:  ctx,
		lock: lock,
		kv:   kv,
		gw:   store.NewGateway(kv, store.WithLogger(app.logger())),
		port: fsport.NewOS(),
	}
	st, err := s.gw.Load(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := s.adopt(st.Items, st.ActiveID); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// adopt replaces the session's tree with items.
func (s *session) adopt(items []model.Item, activeID string) error {
	root := ""
	for _, it := range items {
		if it.ParentID == nil && it.IsFolder() && it.Mirrored() {
			root = it.BackingPath
			break
		}
	}
	t, err := tree.New(items, activeID,
		tree.WithFileSystem(s.port),
		tree.WithSandbox(sandbox.New(root)),
		tree.WithPersister(s.gw),
		tree.WithLogger(s.app.logger()),
	)
	if err != nil {
		return err
	}
	s.tree = t
	return nil
}

// save writes the current tree and image map. Tree mutations persist on
// their own; this is for changes made around the tree.
func (s *session) save() error {
	return s.gw.Save(s.ctx, store.State{
		Items:    s.tree.Items(),
		ActiveID: s.tree.ActiveID(),
		Images:   s.gw.Images(),
	})
}

func (s *session) Close() {
	if s.kv != nil {
		_ = s.kv.Close()
	}
	if s.lock != nil {
		_ = s.lock.Release()
	}
}

// resolveID accepts a full id, a filesystem path of a mirrored item or a
// unique id prefix.
func (s *session) resolveID(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errNotFound(arg)
	}
	if _, ok := s.tree.Get(arg); ok {
		return arg, nil
	}
	if looksLikePath(arg) {
		// Match on the backing path: renamed and moved items keep their old id.
		if abs, err := filepath.Abs(arg); err == nil {
			if it, ok := s.tree.FindByPath(abs); ok {
				return it.ID, nil
			}
		}
	}
	var matches []string
	for _, it := range s.tree.Items() {
		if strings.HasPrefix(it.ID, arg) {
			matches = append(matches, it.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", errNotFound(arg)
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", ambiguousIDError{prefix: arg, matches: matches}
	}
}

func looksLikePath(arg string) bool {
	if strings.ContainsRune(arg, filepath.Separator) || strings.HasPrefix(arg, ".") {
		return true
	}
	_, err := os.Stat(arg)
	return err == nil
}

// withSession runs fn with an open session and reports its error.
func withSession(cmd *cobra.Command, app *App, fn func(s *session) error) error {
	s, err := openSession(cmd, app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer s.Close()
	if err := fn(s); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}
