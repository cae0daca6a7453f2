// Package main provides the entry point for the lmscrawl CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for lmscrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lmscrawl",
		Short: "Archive crawler for the HCMUT LMS portal",
		Long: `lmscrawl archives academic content from the HCMUT learning-management
portal: semester catalogs, course pages, and user profiles. It follows links
between the three entity types, saves each page exactly once, and emits
deduplicated relationship data as JSON collections.

A valid session cookie is required; lmscrawl does not log in by itself.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewSearchCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
