package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sevigo/review-scraper/internal/app"
	"github.com/sevigo/review-scraper/internal/gerrit"
	"github.com/sevigo/review-scraper/internal/logger"
)

var showCmd = &cobra.Command{
	Use:   "show NUMBER|URL",
	Short: "Prints a change stored in the database",
	Example: `  review-scraper show 912345
  review-scraper show https://review.opendev.org/c/openstack/nova/+/912345`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := parseChangeRef(args[0])
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		a := app.NewApp(cfg, logger.NewLogger(cfg.Logging, nil), nil, app.Sinks{}, nil)
		doc, err := a.Show(cmd.Context(), number)
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	},
}

// parseChangeRef accepts a change number or a change page URL.
func parseChangeRef(ref string) (int, error) {
	if strings.Contains(ref, "://") {
		_, number, err := gerrit.ParseChangeURL(ref)
		return number, err
	}
	number, err := strconv.Atoi(ref)
	if err != nil || number <= 0 {
		return 0, fmt.Errorf("invalid change number %q", ref)
	}
	return number, nil
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	rootCmd.AddCommand(showCmd)
}
