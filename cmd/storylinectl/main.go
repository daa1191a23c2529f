package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	apiFlag     string
	sessionFlag string
	rootCmd     = &cobra.Command{
		Use:   "storylinectl",
		Short: "CLI client for the storyline backend REST API",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", "http://localhost:8080", "Storyline service base URL")
	rootCmd.PersistentFlags().StringVarP(&sessionFlag, "session", "s", "", "Session access token for protected operations")

	// stories subcommands
	storiesCmd := &cobra.Command{Use: "stories", Short: "Story administration"}
	featureCmd := &cobra.Command{
		Use:   "feature <storyId>",
		Short: "Mark or unmark a story as featured",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			off, _ := cmd.Flags().GetBool("off")
			return runFeature(apiFlag, args[0], !off, os.Stdout)
		},
	}
	featureCmd.Flags().Bool("off", false, "Remove the featured flag instead of setting it")
	storiesCmd.AddCommand(featureCmd)
	rootCmd.AddCommand(storiesCmd)

	// scrape subcommands
	scrapeCmd := &cobra.Command{Use: "scrape", Short: "Scraper administration"}
	triggerCmd := &cobra.Command{
		Use:   "trigger [sourceId...]",
		Short: "Trigger scrape jobs for the named sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			if len(args) == 0 {
				return fmt.Errorf("at least one sourceId required")
			}
			return runTrigger(apiFlag, args, force, os.Stdout)
		},
	}
	triggerCmd.Flags().Bool("force", false, "Run even when the source is not due")
	scrapeCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(scrapeCmd)

	// report subcommand
	reportCmd := &cobra.Command{
		Use:   "report <year>",
		Short: "Fetch the computed annual report for a year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("year must be an integer: %q", args[0])
			}
			if publish, _ := cmd.Flags().GetBool("publish"); publish {
				return runPublishReport(apiFlag, year, os.Stdout)
			}
			return runReport(apiFlag, year, os.Stdout)
		},
	}
	reportCmd.Flags().Bool("publish", false, "Record the publication row for the year instead of fetching it")
	rootCmd.AddCommand(reportCmd)

	// search subcommand
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Semantic search over published content",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, _ := cmd.Flags().GetString("query")
			topk, _ := cmd.Flags().GetInt("topk")
			return runSearch(apiFlag, query, topk, os.Stdout)
		},
	}
	searchCmd.Flags().StringP("query", "q", "", "Search query text (required)")
	searchCmd.Flags().IntP("topk", "k", 10, "Number of top results to return")
	_ = searchCmd.MarkFlagRequired("query")
	rootCmd.AddCommand(searchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
