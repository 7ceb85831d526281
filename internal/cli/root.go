package cli

import (
	"fmt"
	"strings"

	"notetree/internal/config"
	"notetree/internal/format"
	"notetree/internal/logging"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type App struct {
	Dir        string
	Format     string
	PrettyJSON bool
	LogLevel   string

	v   *viper.Viper
	cfg config.Config
	log *logrus.Logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "notetree",
		Short:        "Local note tree (folders, notes, images) with optional directory mirroring",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Browse the tree interactively
  notetree browse

  # Mirror a directory of markdown files
  notetree open ~/notes

  # Create, move and read notes
  notetree new note --title ideas.md
  notetree mv <id> <folder-id>
  notetree show <id>
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive browser.
			if len(args) == 0 {
				return runBrowse(cmd, app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return app.init(cmd)
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", "", "State directory (default: $NOTETREE_DIR or ~/.notetree/default)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", "json", "Output format (json|edn|yaml)")
	cmd.PersistentFlags().StringVar(&app.LogLevel, "log-level", "warn", "Log level (debug|info|warn|error)")

	cmd.AddCommand(newOpenCmd(app))
	cmd.AddCommand(newRescanCmd(app))
	cmd.AddCommand(newLsCmd(app))
	cmd.AddCommand(newTreeCmd(app))
	cmd.AddCommand(newNewCmd(app))
	cmd.AddCommand(newRenameCmd(app))
	cmd.AddCommand(newMvCmd(app))
	cmd.AddCommand(newRmCmd(app))
	cmd.AddCommand(newShowCmd(app))
	cmd.AddCommand(newEditCmd(app))
	cmd.AddCommand(newUseCmd(app))
	cmd.AddCommand(newImagesCmd(app))
	cmd.AddCommand(newBrowseCmd(app))
	cmd.AddCommand(newConfigCmd(app))

	return cmd
}

// init resolves configuration once flags are parsed.
func (app *App) init(cmd *cobra.Command) error {
	v, err := config.New()
	if err != nil {
		return writeErr(cmd, err)
	}
	flags := cmd.Flags()
	bind := map[string]string{
		config.KeyDir:      "dir",
		config.KeyFormat:   "format",
		config.KeyPretty:   "pretty",
		config.KeyLogLevel: "log-level",
	}
	for key, name := range bind {
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return writeErr(cmd, err)
			}
		}
	}
	cfg, err := config.Load(v)
	if err != nil {
		return writeErr(cmd, err)
	}
	app.v = v
	app.cfg = cfg
	app.Dir = cfg.Dir
	app.Format = cfg.Format
	app.PrettyJSON = cfg.Pretty
	app.log = logging.New(cfg.LogLevel, cmd.ErrOrStderr())
	return nil
}

func (app *App) logger() *logrus.Logger {
	if app.log == nil {
		return logging.Discard()
	}
	return app.log
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

// writeErr reports err on stderr and returns it. Refusals are written as a
// structured payload naming the reason.
func writeErr(cmd *cobra.Command, err error) error {
	if kind := refusalKind(err); kind != "" {
		_ = format.WriteJSON(cmd.ErrOrStderr(), map[string]any{"refused": kind, "error": err.Error()}, false)
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
