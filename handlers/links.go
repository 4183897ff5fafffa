package handlers

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tag_manager/models"
)

type linkPage struct {
	Links []models.Link `json:"links" yaml:"links"`
	Total int64         `json:"total" yaml:"total"`
	Page  int           `json:"page" yaml:"page"`
	Size  int           `json:"size" yaml:"size"`
}

func newLinkCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage short links",
		Long:  `Manage short links. Links are tagged with "tagctl tag links CODE TAG...".`,
	}
	cmd.AddCommand(newLinkAddCommand(s), newLinkShowCommand(s), newLinkListCommand(s))
	return cmd
}

func newLinkAddCommand(s *session) *cobra.Command {
	var (
		code    string
		expires time.Duration
		tags    []string
	)

	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Create a short link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var expiresIn *time.Duration
			if expires > 0 {
				expiresIn = &expires
			}
			link, err := app.Links().Create(ctx, args[0], code, expiresIn)
			if err != nil {
				return err
			}

			if len(tags) > 0 {
				items := make([]any, len(tags))
				for i, t := range tags {
					items[i] = t
				}
				m, rec, err := app.Manager(ctx, models.LinkRecordType, link.ShortCode)
				if err != nil {
					return err
				}
				if err := m.Add(ctx, rec, items...); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), link.ShortCode)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "Custom short code")
	cmd.Flags().DurationVar(&expires, "expires", 0, "Expire the link after this long")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag the new link")
	return cmd
}

func newLinkShowCommand(s *session) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show CODE",
		Short: "Show a link that has not expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			link, err := app.Links().ByShortCode(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("link %q: %w", args[0], err)
			}
			return render(cmd.OutOrStdout(), format, link, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "CODE\t%s\n", link.ShortCode)
				fmt.Fprintf(tw, "URL\t%s\n", link.OriginalURL)
				fmt.Fprintf(tw, "CREATED\t%s\n", link.CreatedAt.Format(time.RFC3339))
				if link.ExpiresAt != nil {
					fmt.Fprintf(tw, "EXPIRES\t%s\n", link.ExpiresAt.Format(time.RFC3339))
				}
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, yaml or json")
	return cmd
}

func newLinkListCommand(s *session) *cobra.Command {
	var (
		page   int
		size   int
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List links, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			links, total, err := app.Links().List(cmd.Context(), page, size)
			if err != nil {
				return err
			}
			if links == nil {
				links = []models.Link{}
			}
			out := linkPage{Links: links, Total: total, Page: page, Size: size}
			return render(cmd.OutOrStdout(), format, out, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "CODE\tURL\tCREATED")
				for _, l := range links {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", l.ShortCode, l.OriginalURL, l.CreatedAt.Format(time.RFC3339))
				}
			})
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&size, "size", 10, "Links per page")
	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, yaml or json")
	return cmd
}
