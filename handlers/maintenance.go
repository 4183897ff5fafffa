package handlers

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tag_manager/models"
	"tag_manager/services"
)

func newPingCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			if err := app.Ping(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully connected to %s database\n", app.cfg.Database.Driver)
			return nil
		},
	}
}

func newMigrateCommand(s *session) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			return app.Migrate(steps)
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 0, "Apply n migrations, or roll back with a negative n (postgres only)")
	return cmd
}

func newOrphansCommand(s *session) *cobra.Command {
	var (
		remove bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List tags no record uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc := app.Orphans()

			if remove {
				n, err := svc.Remove(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d orphaned tags\n", n)
				return nil
			}

			found, err := svc.Find(ctx)
			if err != nil {
				return err
			}
			tables := make([]string, 0, len(found))
			for table := range found {
				tables = append(tables, table)
			}
			sort.Strings(tables)
			return render(cmd.OutOrStdout(), format, found, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "TABLE\tID\tNAME\tSLUG")
				for _, table := range tables {
					for _, t := range found[table] {
						fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", table, t.ID, t.Name, t.Slug)
					}
				}
			})
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Delete the orphaned tags")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, yaml or json")
	return cmd
}

func newMergeCommand(s *session) *cobra.Command {
	var pattern string

	cmd := &cobra.Command{
		Use:   "merge CANONICAL",
		Short: "Merge duplicate tags into one",
		Long: `Merge every tag whose name equals CANONICAL ignoring case into the tag
named exactly CANONICAL. With --regex the duplicates are the tags whose names
match the pattern instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			var selector services.Selector = services.CaseInsensitiveSelector
			if pattern != "" {
				selector = services.RegexSelector(pattern)
			}
			res, err := app.Merges().Merge(cmd.Context(), args[0], selector)
			if err != nil {
				return err
			}
			return printMerge(cmd, res)
		},
	}

	cmd.Flags().StringVar(&pattern, "regex", "", "Select duplicates by name pattern")
	return cmd
}

func newMergeSlugsCommand(s *session) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "merge-slugs INTO SLUG...",
		Short: "Merge the tags with the given slugs into the tag with slug INTO",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			res, err := app.Merges().MergeSlugs(cmd.Context(), table, args[0], args[1:])
			if err != nil {
				return err
			}
			return printMerge(cmd, res)
		},
	}

	cmd.Flags().StringVar(&table, "table", models.DefaultTagTable, "Tag table holding the slugs")
	return cmd
}

func newDedupeCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Merge every group of tags whose names differ only by case",
		Long: `Merge every group of tags whose names differ only by case into the oldest
tag of the group. Requires tagging.case_insensitive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			res, err := app.Merges().DeduplicateAll(cmd.Context())
			if err != nil {
				return err
			}
			return printMerge(cmd, res)
		},
	}
}

func printMerge(cmd *cobra.Command, res services.MergeResult) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Repointed %d, dropped %d associations; deleted %d tags\n",
		res.Repointed, res.Dropped, res.TagsDeleted)
	return err
}
