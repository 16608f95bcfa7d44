package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sevigo/review-scraper/internal/scraper"
	"github.com/sevigo/review-scraper/internal/wire"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape changes from a Gerrit instance.",
	Long: `Pages through the changes matching the query, fetches the diffs of the
selected revisions, counts Code-Review votes and stores the changes that
carry votes (or all of them with --store-all) in the enabled sinks.

Interrupting the command stops the scrape after the current request; the
changes stored so far are kept and the JSON output stays valid.`,
	Example: `  review-scraper scrape --instance openstack --pages 2
  review-scraper scrape --url https://gerrit.example.org --query "project:core status:merged" --db
  RS_GERRIT_TOKEN=... review-scraper scrape --instance chromium --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		app, cleanup, err := wire.InitializeApp(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize application: %w", err)
		}
		defer cleanup()

		start := time.Now()
		stats, runErr := app.Run(ctx)
		printSummary(cmd.OutOrStdout(), cfg.Gerrit.URL, stats, time.Since(start), runErr)

		if app.Sinks.Memory != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  dry run kept changes: %v\n", app.Sinks.Memory.Numbers())
		}
		if runErr != nil {
			slog.Error("scrape stopped early", "processed", stats.Processed, "stored", stats.Stored)
		}
		return runErr
	},
}

func printSummary(w io.Writer, url string, stats scraper.Stats, elapsed time.Duration, runErr error) {
	color.New(color.Bold).Fprintf(w, "Scrape of %s\n", url)
	fmt.Fprintf(w, "  processed: %s\n", color.CyanString("%d", stats.Processed))
	fmt.Fprintf(w, "  stored:    %s\n", color.GreenString("%d", stats.Stored))
	fmt.Fprintf(w, "  elapsed:   %s\n", elapsed.Round(time.Millisecond))
	if runErr != nil {
		color.New(color.FgRed).Fprintf(w, "  stopped:   %v\n", runErr)
	}
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	flags := scrapeCmd.Flags()
	flags.String("instance", "", "name of a known Gerrit instance (see 'instances')")
	flags.String("url", "", "base URL of the Gerrit instance, overrides --instance")
	flags.String("username", "", "Gerrit username for HTTP basic auth (password via RS_GERRIT_PASSWORD)")
	flags.StringP("query", "q", "", "change query")
	flags.StringSliceP("option", "o", nil, "query option, repeatable (e.g. -o LABELS -o ALL_FILES)")
	flags.Int("page-size", 0, "changes per page, 0 uses the server default")
	flags.Int("pages", 0, "maximum number of pages, 0 fetches all")
	flags.Bool("all-revisions", false, "fetch diffs of every revision instead of only the last one")
	flags.Bool("store-all", false, "store every change, not only those with Code-Review votes")
	flags.Int("workers", 0, "concurrent diff requests")
	flags.Duration("page-delay", 0, "pause between two pages")
	flags.Int("max-attempts", 0, "attempts per page before giving up, 0 retries forever")
	flags.Bool("json", true, "write changes to the JSON file")
	flags.String("json-out", "", "JSON output file")
	flags.Bool("db", false, "store changes in PostgreSQL")
	flags.Bool("clear-before", true, "purge the database table before scraping")
	flags.Bool("skip-existing", false, "keep changes that are already stored")
	flags.Bool("dry-run", false, "keep changes in memory only")

	bindFlags(flags, map[string]string{
		"gerrit.instance":                "instance",
		"gerrit.url":                     "url",
		"gerrit.username":                "username",
		"scrape.query":                   "query",
		"scrape.options":                 "option",
		"scrape.page_size":               "page-size",
		"scrape.pages":                   "pages",
		"scrape.all_revisions":           "all-revisions",
		"scrape.store_all":               "store-all",
		"scrape.workers":                 "workers",
		"scrape.page_delay":              "page-delay",
		"retry.max_attempts":             "max-attempts",
		"storage.json.enabled":           "json",
		"storage.json.path":              "json-out",
		"storage.database.enabled":       "db",
		"storage.database.clear_before":  "clear-before",
		"storage.database.skip_existing": "skip-existing",
		"storage.dry_run":                "dry-run",
	})

	rootCmd.AddCommand(scrapeCmd)
}
