package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"notetree/internal/images"

	"github.com/spf13/cobra"
)

func newImagesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images",
		Short: "Image blob commands",
	}
	cmd.AddCommand(newImagesAddCmd(app))
	cmd.AddCommand(newImagesLsCmd(app))
	cmd.AddCommand(newImagesGCCmd(app))
	return cmd
}

func newImagesAddCmd(app *App) *cobra.Command {
	var (
		alt    string
		width  int
		noteID string
		mime   string
	)
	cmd := &cobra.Command{
		Use:   "add <file>",
		Short: "Store an image and print the markdown that embeds it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if strings.TrimSpace(alt) == "" {
				alt = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			return withSession(cmd, app, func(s *session) error {
				blobs := s.gw.Images()
				id, err := images.Add(blobs, data, mime)
				if err != nil {
					return err
				}
				s.gw.SetImages(blobs)
				ref := images.Markdown(alt, id, width)

				if noteID != "" {
					nid, err := s.resolveID(noteID)
					if err != nil {
						return err
					}
					body, err := s.tree.LoadContent(s.ctx, nid)
					if err != nil {
						return err
					}
					if body != "" && !strings.HasSuffix(body, "\n") {
						body += "\n"
					}
					// SetContent persists the tree together with the new blob.
					if _, err := s.tree.SetContent(s.ctx, nid, body+ref+"\n"); err != nil {
						return err
					}
				} else if err := s.save(); err != nil {
					return err
				}
				return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": id, "markdown": ref}})
			})
		},
	}
	cmd.Flags().StringVar(&alt, "alt", "", "Alt text (default: file name)")
	cmd.Flags().IntVar(&width, "width", 0, "Display width hint in pixels")
	cmd.Flags().StringVar(&noteID, "note", "", "Append the reference to this note")
	cmd.Flags().StringVar(&mime, "mime", "", "Mime type (default: sniffed)")
	return cmd
}

type imageInfo struct {
	ID    string `json:"id"`
	Mime  string `json:"mime"`
	Bytes int    `json:"bytes"`
}

func newImagesLsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List stored images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				blobs := s.gw.Images()
				out := make([]imageInfo, 0, len(blobs))
				for id, url := range blobs {
					info := imageInfo{ID: id}
					if mime, data, err := images.Decode(url); err == nil {
						info.Mime = mime
						info.Bytes = len(data)
					}
					out = append(out, info)
				}
				sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
				return writeOut(cmd, app, map[string]any{"data": out})
			})
		},
	}
	return cmd
}

func newImagesGCCmd(app *App) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Remove images no note refers to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				// Unloaded notes would look unreferencing; read them all first.
				for _, it := range s.tree.Items() {
					if !it.IsNote() || it.Content != nil {
						continue
					}
					if _, err := s.tree.LoadContent(s.ctx, it.ID); err != nil {
						return err
					}
				}
				blobs := s.gw.Images()
				unused := images.Unreferenced(s.tree.Items(), blobs)
				if unused == nil {
					unused = []string{}
				}
				if !dryRun && len(unused) > 0 {
					for _, id := range unused {
						delete(blobs, id)
					}
					s.gw.SetImages(blobs)
					if err := s.save(); err != nil {
						return err
					}
				}
				return writeOut(cmd, app, map[string]any{"data": map[string]any{"removed": unused, "dryRun": dryRun}})
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list unreferenced images")
	return cmd
}
