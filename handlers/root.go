package handlers

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"tag_manager/config"
	"tag_manager/database"
	"tag_manager/logging"
)

// session holds what the commands share. The database is only opened when
// a command first asks for the App.
type session struct {
	cfgPath string
	verbose bool

	cfg *config.Config
	log zerolog.Logger
	app *App
}

func (s *session) load(cmd *cobra.Command) error {
	if s.cfg != nil {
		return nil
	}
	cfg, err := config.Load(s.cfgPath)
	if err != nil {
		return err
	}
	if s.verbose {
		cfg.Log.Level = "debug"
	}
	s.cfg = cfg
	s.log = logging.New(cfg.Log, cmd.ErrOrStderr())
	return nil
}

// App connects on first use.
func (s *session) App() (*App, error) {
	if s.app != nil {
		return s.app, nil
	}
	db, err := database.Connect(s.cfg.Database, s.log)
	if err != nil {
		return nil, err
	}
	app, err := NewApp(s.cfg, db, s.log)
	if err != nil {
		return nil, err
	}
	s.app = app
	return app, nil
}

// NewRootCommand builds the tagctl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&session{})
}

func newRootCommand(s *session) *cobra.Command {
	root := &cobra.Command{
		Use:   "tagctl",
		Short: "Manage tags on database records",
		Long: `tagctl attaches named, slugged tags to records stored in a SQL database.

Records are addressed as TYPE ID. The type "links" refers to short links by
their code; any other type is stored in the generic tagged_items table.

Examples:
  tagctl tag article 42 go "machine learning"
  tagctl show article 42
  tagctl list --min-count 2 --format yaml
  tagctl merge green`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.load(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&s.cfgPath, "config", "c", "", "Configuration file path")
	root.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newPingCommand(s),
		newMigrateCommand(s),
		newTagCommand(s),
		newUntagCommand(s),
		newShowCommand(s),
		newSimilarCommand(s),
		newListCommand(s),
		newOrphansCommand(s),
		newMergeCommand(s),
		newMergeSlugsCommand(s),
		newDedupeCommand(s),
		newKeywordCommand(s),
		newRegexCommand(s),
		newSuggestCommand(s),
		newLinkCommand(s),
	)
	return root
}
