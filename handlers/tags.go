package handlers

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/datatypes"

	"tag_manager/models"
	"tag_manager/repository"
	"tag_manager/services"
)

func newTagCommand(s *session) *cobra.Command {
	var (
		replace bool
		parse   bool
		extra   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "tag TYPE ID TAG...",
		Short: "Add tags to a record",
		Long: `Add tags to a record, creating tags that do not exist yet.

With --replace the given tags become the record's exact tag set. With --parse
a single TAG argument is read as a tag string, e.g. 'go, "machine learning"';
quote it so the shell passes it whole.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if parse {
				return cobra.ExactArgs(3)(cmd, args)
			}
			return cobra.MinimumNArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m, rec, err := app.Manager(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			names := args[2:]
			if parse {
				names = app.opts.Parser.Parse(args[2])
			}
			items := make([]any, len(names))
			for i, name := range names {
				items[i] = name
			}
			var data datatypes.JSONMap
			if len(extra) > 0 {
				data = make(datatypes.JSONMap, len(extra))
				for k, v := range extra {
					data[k] = v
				}
			}

			if replace {
				err = m.Set(ctx, rec, items, services.SetOptions{Extra: data})
			} else {
				err = m.AddWithExtra(ctx, rec, data, items...)
			}
			if err != nil {
				return err
			}
			return printTagString(cmd, m, rec)
		},
	}

	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the record's tags instead of adding")
	cmd.Flags().BoolVar(&parse, "parse", false, "Parse the single TAG argument as a tag string")
	cmd.Flags().StringToStringVar(&extra, "extra", nil, "Extra data stored on new associations (key=value)")
	return cmd
}

func newUntagCommand(s *session) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "untag TYPE ID [TAG...]",
		Short: "Remove tags from a record",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) < 3 {
				return errors.New("name at least one tag, or pass --all")
			}
			app, err := s.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m, rec, err := app.Manager(ctx, args[0], args[1])
			if err != nil {
				return err
			}

			if all {
				err = m.Clear(ctx, rec)
			} else {
				items := make([]any, 0, len(args)-2)
				for _, name := range args[2:] {
					items = append(items, name)
				}
				err = m.Remove(ctx, rec, items...)
			}
			if err != nil {
				return err
			}
			return printTagString(cmd, m, rec)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove every tag")
	return cmd
}

func newShowCommand(s *session) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show TYPE ID",
		Short: "Show the tags of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m, rec, err := app.Manager(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if format == formatTable || format == "" {
				return printTagString(cmd, m, rec)
			}
			tags, err := m.Tags(ctx, rec)
			if err != nil {
				return err
			}
			return renderTags(cmd, format, tags)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, yaml or json")
	return cmd
}

func newSimilarCommand(s *session) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "similar TYPE ID",
		Short: "List records sharing tags with a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m, rec, err := app.Manager(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			similar, err := m.Similar(ctx, rec)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), format, similar, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "RECORD\tSHARED")
				for _, r := range similar {
					fmt.Fprintf(tw, "%s\t%d\n", r.Record, r.SharedTags)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, yaml or json")
	return cmd
}

func newListCommand(s *session) *cobra.Command {
	var (
		through    string
		recordType string
		minCount   int64
		limit      int
		inUse      bool
		format     string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tags by how often they are used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			assoc, err := app.Through(through)
			if err != nil {
				return err
			}
			m := app.manager(assoc)

			if inUse {
				tags, err := m.TagsInUse(ctx, recordType)
				if err != nil {
					return err
				}
				return renderTags(cmd, format, tags)
			}

			query := m.MostCommon(minCount).RecordType(recordType)
			if limit > 0 {
				query = query.Limit(limit)
			}
			counts, err := query.All(ctx)
			if err != nil {
				return err
			}
			if counts == nil {
				counts = []repository.TagCount{}
			}
			return render(cmd.OutOrStdout(), format, counts, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "NAME\tSLUG\tCOUNT")
				for _, c := range counts {
					fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name, c.Slug, c.Count)
				}
			})
		},
	}

	cmd.Flags().StringVar(&through, "through", models.GenericThroughTable, "Association table to count")
	cmd.Flags().StringVar(&recordType, "type", "", "Only count records of this type")
	cmd.Flags().Int64Var(&minCount, "min-count", 0, "Only list tags used at least this often")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of tags")
	cmd.Flags().BoolVar(&inUse, "in-use", false, "List the distinct tags in use instead of counts")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, yaml or json")
	return cmd
}

func printTagString(cmd *cobra.Command, m *services.TagManager, rec models.RecordRef) error {
	s, err := m.String(cmd.Context(), rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), s)
	return err
}

func renderTags(cmd *cobra.Command, format string, tags []models.Tag) error {
	if tags == nil {
		tags = []models.Tag{}
	}
	return render(cmd.OutOrStdout(), format, tags, func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "ID\tNAME\tSLUG")
		for _, t := range tags {
			fmt.Fprintf(tw, "%d\t%s\t%s\n", t.ID, t.Name, t.Slug)
		}
	})
}
