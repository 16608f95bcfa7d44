package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sevigo/review-scraper/internal/config"
	"github.com/sevigo/review-scraper/internal/logger"
)

var (
	cfgFile string
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "review-scraper",
	Short: "review-scraper collects code reviews from Gerrit instances.",
	Long: `review-scraper pages through the changes of a Gerrit instance, fetches the
diffs of their revisions, counts their Code-Review votes and stores the
results as a JSON file and/or in a PostgreSQL document table.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "review-scraper", version)
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml or $HOME/.review-scraper/config.yaml)")
	flags.String("instances-file", "", "YAML file with additional Gerrit instances")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")

	bindFlags(flags, map[string]string{
		"instances_file": "instances-file",
		"logging.level":  "log-level",
		"logging.format": "log-format",
	})

	rootCmd.AddCommand(versionCmd)
}

// bindFlags binds configuration keys to command line flags.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
			os.Exit(1)
		}
	}
}

// loadConfig reads the configuration and resolves the Gerrit instance.
func loadConfig() (*config.Config, *config.Catalog, error) {
	cfg, err := config.Load(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger.NewLogger(cfg.Logging, nil))

	catalog, err := config.LoadInstances(cfg.InstancesFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.ResolveInstance(catalog); err != nil {
		return nil, nil, err
	}
	return cfg, catalog, nil
}
