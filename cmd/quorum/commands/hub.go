package commands

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/0Ankit0-0/quorum/internal/hub"
	"github.com/0Ankit0-0/quorum/internal/store"
)

func hubService(app *App) *hub.Service {
	return hub.NewService(app.Store, app.Metrics, app.Logger, hub.Identity{
		NodeID:   app.NodeID,
		Hostname: Hostname(),
		Role:     app.Config.Hub.Role,
		OSInfo:   runtime.GOOS + "/" + runtime.GOARCH,
		Version:  AppVersion(),
	})
}

// NewHubCommand groups the offline sync operations.
func NewHubCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Export, import, and correlate anomalies across nodes",
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	var (
		exportTarget string
		exportDir    string
	)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write a signed sync package with this node's top anomalies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			privateKey, err := readKey(app.Config.PrivateKeyPath())
			if err != nil {
				return err
			}

			svc := hubService(app)

			err = svc.RegisterSelf(cmd.Context())
			if err != nil {
				return err
			}

			path, pkg, err := svc.ExportPackage(cmd.Context(), exportTarget, exportDir, privateKey)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d anomalies to %s\n",
				len(pkg.Anomalies), path)

			return nil
		},
	}
	exportCmd.Flags().StringVar(&exportTarget, "target", "hub", "target node ID")
	exportCmd.Flags().StringVarP(&exportDir, "output", "o", ".", "output directory")

	importCmd := &cobra.Command{
		Use:   "import <package.qsp>...",
		Short: "Verify and merge sync packages into the hub",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			publicKey, err := readKey(app.Config.PublicKeyPath())
			if err != nil {
				return err
			}

			svc := hubService(app)
			out := cmd.OutOrStdout()

			for _, path := range args {
				result, importErr := svc.ImportPackage(cmd.Context(), path, publicKey)
				if importErr != nil {
					return fmt.Errorf("import %s: %w", path, importErr)
				}

				fmt.Fprintf(out, "%s: %d anomalies from %s (%d merged, %d already known)\n",
					path, result.Total, result.SourceNode, result.Merged, result.Skipped)
			}

			return nil
		},
	}

	correlationsCmd := &cobra.Command{
		Use:   "correlations",
		Short: "Show techniques reported by multiple nodes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			correlations, err := hubService(app).Correlations(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(correlations) == 0 {
				fmt.Fprintln(out, okColor.Sprint("No cross-node correlations."))

				return nil
			}

			t := newTable(out, "TECHNIQUE", "TACTIC", "NODES", "HITS", "MAX", "AVG", "LAST SEEN", "THREAT")
			for _, c := range correlations {
				t.AppendRow(table.Row{
					c.TechniqueID,
					c.Tactic,
					fmt.Sprintf("%d (%s)", c.NodeCount, strings.Join(shortIDs(c.Nodes), ", ")),
					c.Occurrences,
					fmt.Sprintf("%.3f", c.MaxScore),
					fmt.Sprintf("%.3f", c.AvgScore),
					ago(c.LastSeen),
					severityLabel(c.ThreatLevel),
				})
			}
			t.Render()

			return nil
		},
	}

	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the hub overview",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			dashboard, err := hubService(app).BuildDashboard(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Imported anomalies: %s\n", count(dashboard.TotalAnomalies))
			fmt.Fprintf(out, "Registered nodes:   %d\n", len(dashboard.Nodes))
			fmt.Fprintf(out, "Correlations:       %d\n\n", len(dashboard.Correlations))

			if len(dashboard.BySeverity) > 0 {
				t := newTable(out, "SEVERITY", "COUNT")
				for _, severity := range []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"} {
					if n, ok := dashboard.BySeverity[severity]; ok {
						t.AppendRow(table.Row{severityLabel(severity), count(n)})
					}
				}
				t.Render()
				fmt.Fprintln(out)
			}

			if len(dashboard.NodeThreats) > 0 {
				t := newTable(out, "NODE", "HOST", "ANOMALIES", "CRITICAL", "HIGH", "AVG SCORE", "LAST SYNC")
				for _, threat := range dashboard.NodeThreats {
					t.AppendRow(table.Row{
						shortID(threat.NodeID),
						threat.Hostname,
						count(threat.TotalImported),
						count(threat.CriticalCount),
						count(threat.HighCount),
						fmt.Sprintf("%.3f", threat.AvgScore),
						ago(threat.LastSync),
					})
				}
				t.Render()
			}

			return nil
		},
	}

	cmd.AddCommand(exportCmd, importCmd, correlationsCmd, dashboardCmd)

	return cmd
}

// NewNodesCommand lists the node registry.
func NewNodesCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List registered nodes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			svc := hubService(app)

			err = svc.RegisterSelf(cmd.Context())
			if err != nil {
				return err
			}

			nodes, err := app.Store.ListNodes(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			t := newTable(out, "NODE", "HOST", "ROLE", "STATUS", "LOGS", "ANOMALIES", "LAST SEEN")
			for _, n := range nodes {
				status := n.Status
				if status == store.NodeActive {
					status = okColor.Sprint(status)
				}

				t.AppendRow(table.Row{
					shortID(n.NodeID),
					n.Hostname,
					n.Role,
					status,
					count(n.TotalLogs),
					count(n.TotalAnomalies),
					ago(n.LastSeen),
				})
			}
			t.Render()

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")

	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}

	return id
}

func shortIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = shortID(id)
	}

	return out
}
