package handlers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newKeywordCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keyword",
		Short: "Manage suggestion keywords",
	}

	var stem string
	add := &cobra.Command{
		Use:   "add TAG KEYWORD",
		Short: "Suggest TAG for content containing KEYWORD",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			kw, err := app.Suggestions().AddKeyword(cmd.Context(), args[0], args[1], stem)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Keyword %q now suggests %q\n", kw.Keyword, kw.Tag.Name)
			return nil
		},
	}
	add.Flags().StringVar(&stem, "stem", "", "Match this stem instead of the whole keyword")

	cmd.AddCommand(add)
	return cmd
}

func newRegexCommand(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regex",
		Short: "Manage suggestion patterns",
	}

	add := &cobra.Command{
		Use:   "add TAG NAME PATTERN",
		Short: "Suggest TAG for content matching PATTERN",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			re, err := app.Suggestions().AddRegex(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pattern %q now suggests %q\n", re.Name, re.Tag.Name)
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate every stored pattern",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			if err := app.Suggestions().Validate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All patterns are valid")
			return nil
		},
	}

	cmd.AddCommand(add, check)
	return cmd
}

func newSuggestCommand(s *session) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "suggest TEXT...",
		Short: "Suggest tags for a piece of text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := s.App()
			if err != nil {
				return err
			}
			tags, err := app.Suggestions().Suggest(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return renderTags(cmd, format, tags)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", formatTable, "Output format: table, yaml or json")
	return cmd
}
