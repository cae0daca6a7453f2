package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/hcmut-tools/lmscrawl/internal/search"
)

// NewSearchCmd creates the search command.
// This is the repository's tabular lookup utility over the crawl output; it
// never touches the network.
func NewSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Keyword search over the archived collections",
		Long: `Search filters the crawl's JSON output collections by a case-insensitive
keyword across all text fields and prints the matches as a markdown table.

Examples:
  # Find courses by name fragment
  lmscrawl search --dataset courses "giai tich"

  # Find a teacher across user profiles
  lmscrawl search --dataset users "nguyen"

  # Show dataset record counts and columns
  lmscrawl search --info`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSearchCmd,
	}

	cmd.Flags().StringP("dataset", "d", string(search.DatasetCourses),
		"Dataset to search: courses, users, or edges")
	cmd.Flags().StringP("output", "o", ".",
		"Directory holding the JSON output collections")
	cmd.Flags().BoolP("info", "i", false,
		"Print dataset info (record counts and columns) instead of searching")
	cmd.Flags().IntP("limit", "n", 50, "Maximum rows to print")

	return cmd
}

// runSearchCmd executes the search command.
func runSearchCmd(cmd *cobra.Command, args []string) error {
	dir, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	idx, err := search.Load(dir)
	if err != nil {
		return err
	}

	info, err := cmd.Flags().GetBool("info")
	if err != nil {
		return err
	}
	if info {
		return printInfo(cmd, idx)
	}

	dataset, err := cmd.Flags().GetString("dataset")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	keyword := ""
	if len(args) > 0 {
		keyword = args[0]
	}

	table, err := idx.Search(search.Dataset(dataset), keyword)
	if err != nil {
		return err
	}
	return printTable(cmd, table, keyword, limit)
}

// printInfo renders the dataset summary.
func printInfo(cmd *cobra.Command, idx *search.Index) error {
	md := markdown.NewMarkdown(cmd.OutOrStdout())
	md.H1("Dataset Info")
	md.PlainText("")

	rows := make([][]string, 0, len(search.Datasets()))
	for _, info := range idx.Info() {
		rows = append(rows, []string{
			info.Name,
			strconv.Itoa(info.Records),
			strings.Join(info.Columns, ", "),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Dataset", "Records", "Columns"},
		Rows:   rows,
	})
	return md.Build()
}

// printTable renders a search result.
func printTable(cmd *cobra.Command, table search.Table, keyword string, limit int) error {
	matched := len(table.Rows)
	rows := table.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	md := markdown.NewMarkdown(cmd.OutOrStdout())
	if keyword == "" {
		md.H1(fmt.Sprintf("%s (%d records)", table.Name, table.Total))
	} else {
		md.H1(fmt.Sprintf("%s matching %q (%d of %d records)", table.Name, keyword, matched, table.Total))
	}
	md.PlainText("")

	if matched == 0 {
		md.PlainText("No matches.")
		return md.Build()
	}

	md.Table(markdown.TableSet{Header: table.Columns, Rows: rows})
	if len(rows) < matched {
		md.PlainText("")
		md.PlainText(fmt.Sprintf("... %d more rows (raise --limit to see them)", matched-len(rows)))
	}
	return md.Build()
}
