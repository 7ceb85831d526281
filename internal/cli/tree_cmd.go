package cli

import (
	"strings"

	"notetree/internal/model"
	"notetree/internal/tree"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	treeFolderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#0550AE", Dark: "#79C0FF"})
	treeImageStyle  = lipgloss.NewStyle().Faint(true)
	treeActiveStyle = lipgloss.NewStyle().Reverse(true)
	treeStaleStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9A6700", Dark: "#D29922"})
)

func newTreeCmd(app *App) *cobra.Command {
	var collapsed bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, app, func(s *session) error {
				rows := tree.Flatten(s.tree.Items(), !collapsed)
				_, err := cmd.OutOrStdout().Write([]byte(renderTree(rows, s.tree.ActiveID())))
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&collapsed, "collapsed", false, "Hide the children of collapsed folders")
	return cmd
}

func renderTree(rows []tree.Row, activeID string) string {
	var b strings.Builder
	for _, r := range rows {
		b.WriteString(strings.Repeat("  ", r.Depth))
		b.WriteString(treeGlyph(r.Item))
		b.WriteByte(' ')
		title := r.Item.Title
		switch r.Item.Kind {
		case model.KindFolder:
			title = treeFolderStyle.Render(title + "/")
		case model.KindImage:
			title = treeImageStyle.Render(title)
		}
		if r.Item.ID == activeID {
			title = treeActiveStyle.Render(title)
		}
		b.WriteString(title)
		if r.Item.StalePath {
			b.WriteString(" " + treeStaleStyle.Render("(stale path; rescan)"))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func treeGlyph(it model.Item) string {
	switch it.Kind {
	case model.KindFolder:
		if it.IsExpanded {
			return "▾"
		}
		return "▸"
	case model.KindImage:
		return "◇"
	default:
		return "•"
	}
}
