package cli

import (
	"fmt"
	"sort"
	"strings"

	"notetree/internal/model"
	"notetree/internal/scan"
	"notetree/internal/tree"

	"github.com/spf13/cobra"
)

func newOpenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <dir>",
		Short: "Mirror a directory: scan it and replace the tree with its contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				items, err := scan.New(s.port, scan.WithLogger(app.logger())).Scan(args[0])
				if err != nil {
					return err
				}
				if err := s.adopt(items, ""); err != nil {
					return err
				}
				if err := s.save(); err != nil {
					return err
				}
				root, _ := s.tree.Root()
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{"root": root, "items": len(items), "activeId": s.tree.ActiveID()},
				})
			})
		},
	}
	return cmd
}

func newRescanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rescan",
		Short: "Re-scan the opened directory (clears stale paths, keeps expansion and selection)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				root, ok := s.tree.Root()
				if !ok {
					return fmt.Errorf("no directory is open; use `notetree open <dir>`")
				}
				scanned, err := scan.New(s.port, scan.WithLogger(app.logger())).Scan(root.BackingPath)
				if err != nil {
					return err
				}
				items, active := tree.Reconcile(s.tree.Items(), s.tree.ActiveID(), scanned)
				if err := s.adopt(items, active); err != nil {
					return err
				}
				if err := s.save(); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{"root": root.BackingPath, "items": len(items), "activeId": active},
				})
			})
		},
	}
	return cmd
}

func newLsCmd(app *App) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "ls [parent-id]",
		Short: "List the children of a folder (default: top level) in display order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				if all {
					return writeOut(cmd, app, map[string]any{"data": s.tree.Items()})
				}
				parent := ""
				if len(args) == 1 {
					id, err := s.resolveID(args[0])
					if err != nil {
						return err
					}
					parent = id
				}
				children := s.tree.Children(parent)
				if children == nil {
					children = []model.Item{}
				}
				return writeOut(cmd, app, map[string]any{"data": children})
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "List every item in storage order")
	return cmd
}

func newNewCmd(app *App) *cobra.Command {
	var (
		parent string
		title  string
	)
	cmd := &cobra.Command{
		Use:       "new <note|folder>",
		Short:     "Create a note or folder and make it active",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"note", "folder"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseKind(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if kind == model.KindImage {
				return writeErr(cmd, fmt.Errorf("use `notetree images add` for images"))
			}
			return withSession(cmd, app, func(s *session) error {
				parentID := ""
				if strings.TrimSpace(parent) != "" && parent != "root" {
					id, err := s.resolveID(parent)
					if err != nil {
						return err
					}
					parentID = id
				}
				t := strings.TrimSpace(title)
				if t == "" {
					t = app.cfg.NoteTitle
					if kind == model.KindFolder {
						t = app.cfg.FolderTitle
					}
				}
				it, err := s.tree.Create(s.ctx, kind, parentID, t)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": it})
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "Parent folder id (default: top level, or the opened folder)")
	cmd.Flags().StringVar(&title, "title", "", "Title (default from titles.note / titles.folder)")
	return cmd
}

func newRenameCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename an item (and its file or directory when mirrored)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				id, err := s.resolveID(args[0])
				if err != nil {
					return err
				}
				it, err := s.tree.Rename(s.ctx, id, args[1])
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": it})
			})
		},
	}
	return cmd
}

func newMvCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mv <id> <parent-id|root>",
		Short: "Move an item into another folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				id, err := s.resolveID(args[0])
				if err != nil {
					return err
				}
				parentID := ""
				if args[1] != "root" {
					if parentID, err = s.resolveID(args[1]); err != nil {
						return err
					}
				}
				it, err := s.tree.Move(s.ctx, id, parentID)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": it})
			})
		},
	}
	return cmd
}

func newRmCmd(app *App) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete an item and everything below it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				id, err := s.resolveID(args[0])
				if err != nil {
					return err
				}
				if dryRun {
					set := s.tree.DescendantsOf(id)
					ids := make([]string, 0, len(set))
					for k := range set {
						ids = append(ids, k)
					}
					sort.Strings(ids)
					return writeOut(cmd, app, map[string]any{"data": map[string]any{"wouldRemove": ids}})
				}
				removed, err := s.tree.Delete(s.ctx, id)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{"removed": removed, "activeId": s.tree.ActiveID()},
				})
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be removed without deleting")
	return cmd
}

func newUseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use <id>",
		Short: "Make an item the active item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				id, err := s.resolveID(args[0])
				if err != nil {
					return err
				}
				if err := s.tree.SetActive(s.ctx, id); err != nil {
					return err
				}
				it, _ := s.tree.Get(id)
				return writeOut(cmd, app, map[string]any{"data": it})
			})
		},
	}
	return cmd
}
