package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var instancesJSON bool

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "Lists the known Gerrit instances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, catalog, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load instance catalog: %w", err)
		}
		instances := catalog.All()

		if instancesJSON {
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(instances)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tURL\tDESCRIPTION")
		for _, inst := range instances {
			fmt.Fprintf(w, "%s\t%s\t%s\n", inst.Name, inst.URL, inst.Description)
		}
		return w.Flush()
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	instancesCmd.Flags().BoolVar(&instancesJSON, "json", false, "Output instances as JSON")
	rootCmd.AddCommand(instancesCmd)
}
