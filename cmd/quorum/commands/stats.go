package commands

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewStatsCommand summarizes the local store.
func NewStatsCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show local store statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()

			stats, err := app.Store.Stats(ctx)
			if err != nil {
				return err
			}

			anomalies, err := app.Store.CountAnomalies(ctx)
			if err != nil {
				return err
			}

			techniques, err := app.Store.CountTechniques(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Node:       %s\n", shortID(app.NodeID))
			fmt.Fprintf(out, "Database:   %s\n", app.Config.DatabasePath())
			fmt.Fprintf(out, "Logs:       %s\n", count(stats.Total))
			fmt.Fprintf(out, "Anomalies:  %s\n", count(anomalies))
			fmt.Fprintf(out, "Techniques: %s\n", count(techniques))

			if stats.Total > 0 {
				fmt.Fprintf(out, "Range:      %s to %s\n", stats.Earliest, stats.Latest)
			}

			if len(stats.BySeverity) > 0 {
				fmt.Fprintln(out)

				t := newTable(out, "SEVERITY", "LOGS")
				for _, severity := range sortedKeys(stats.BySeverity) {
					t.AppendRow(table.Row{severityLabel(severity), count(stats.BySeverity[severity])})
				}
				t.Render()
			}

			if len(stats.BySource) > 0 {
				fmt.Fprintln(out)

				t := newTable(out, "SOURCE", "LOGS")
				for _, source := range sortedKeys(stats.BySource) {
					t.AppendRow(table.Row{source, count(stats.BySource[source])})
				}
				t.Render()
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")

	return cmd
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
