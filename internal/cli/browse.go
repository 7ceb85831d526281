package cli

import (
	"notetree/internal/tui"

	"github.com/spf13/cobra"
)

func newBrowseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse the tree interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, app)
		},
	}
	return cmd
}

func runBrowse(cmd *cobra.Command, app *App) error {
	return withSession(cmd, app, func(s *session) error {
		return tui.Run(s.ctx, s.tree, tui.Options{
			RenderStyle: app.cfg.RenderStyle,
			RenderWidth: app.cfg.RenderWidth,
			Images:      s.gw.Images(),
		})
	})
}
