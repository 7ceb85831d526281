package cli

import (
	"notetree/internal/config"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOut(cmd, app, map[string]any{
				"data": config.Settings(app.v),
				"meta": map[string]any{"file": app.cfg.File},
			})
		},
	}
	return cmd
}
