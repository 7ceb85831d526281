package cli

import (
	"fmt"
	"io"
	"os"

	"notetree/internal/images"
	"notetree/internal/render"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newShowCmd(app *App) *cobra.Command {
	var (
		raw  bool
		html bool
	)
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a note (rendered on a terminal, raw markdown otherwise)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				var id string
				if len(args) == 1 {
					resolved, err := s.resolveID(args[0])
					if err != nil {
						return err
					}
					id = resolved
				} else {
					it, ok := s.tree.ActiveNote()
					if !ok {
						return fmt.Errorf("no note to show")
					}
					id = it.ID
				}
				body, err := s.tree.LoadContent(s.ctx, id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				switch {
				case html:
					body = images.Resolve(body, s.gw.Images())
				case raw || !isTerminal(out):
				default:
					body = render.Markdown(body, render.Options{
						Style:  app.cfg.RenderStyle,
						Width:  app.cfg.RenderWidth,
						Images: s.gw.Images(),
					})
				}
				_, err = fmt.Fprintln(out, body)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the markdown source")
	cmd.Flags().BoolVar(&html, "html", false, "Print markdown with images resolved to inline <img> tags")
	return cmd
}

func newEditCmd(app *App) *cobra.Command {
	var (
		content string
		file    string
	)
	cmd := &cobra.Command{
		Use:   "edit <id> (--content <text> | --file <path|->)",
		Short: "Replace a note's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contentSet := cmd.Flags().Changed("content")
			if contentSet == (file != "") {
				return writeErr(cmd, fmt.Errorf("exactly one of --content or --file is required"))
			}
			body := content
			if file != "" {
				var (
					b   []byte
					err error
				)
				if file == "-" {
					b, err = io.ReadAll(cmd.InOrStdin())
				} else {
					b, err = os.ReadFile(file)
				}
				if err != nil {
					return writeErr(cmd, err)
				}
				body = string(b)
			}
			return withSession(cmd, app, func(s *session) error {
				id, err := s.resolveID(args[0])
				if err != nil {
					return err
				}
				it, err := s.tree.SetContent(s.ctx, id, body)
				if err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": it})
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "New content")
	cmd.Flags().StringVar(&file, "file", "", "Read new content from a file (- for stdin)")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
