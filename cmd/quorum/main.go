// Package main provides the entry point for the quorum CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/0Ankit0-0/quorum/cmd/quorum/commands"
	"github.com/0Ankit0-0/quorum/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quorum",
		Short: "Quorum - air-gapped log forensics and anomaly detection",
		Long: `Quorum analyzes OS event logs for anomalies on isolated networks.

Logs are scored by an ensemble of detectors, mapped to ATT&CK techniques,
and exchanged between nodes as signed packages over removable media.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		commands.NewIngestCommand(),
		commands.NewAnalyzeCommand(),
		commands.NewSessionsCommand(),
		commands.NewMonitorCommand(),
		commands.NewHubCommand(),
		commands.NewNodesCommand(),
		commands.NewUpdateCommand(),
		commands.NewDevicesCommand(),
		commands.NewKeysCommand(),
		commands.NewStatsCommand(),
		versionCmd(),
	)

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "quorum %s\n", version.String())
		},
	}
}
