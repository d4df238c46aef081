package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/0Ankit0-0/quorum/internal/devices"
)

// NewDevicesCommand scans removable media and lists the device log.
func NewDevicesCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Scan removable media and review the device log",
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	scanCmd := &cobra.Command{
		Use:   "scan <mount-point>...",
		Short: "Scan mount points for sync and update packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			scanner := devices.NewScanner(app.Store, app.Logger)
			out := cmd.OutOrStdout()

			for _, mount := range args {
				result, scanErr := scanner.Scan(cmd.Context(), mount)
				if scanErr != nil {
					return scanErr
				}

				fmt.Fprintf(out, "%s: %d files, %d sync packages, %d update packages (risk %s)\n",
					mount, result.FilesSeen, len(result.SyncPackages),
					len(result.UpdatePackages), result.RiskLevel)

				for _, path := range result.SyncPackages {
					fmt.Fprintf(out, "  sync:   %s\n", path)
				}

				for _, path := range result.UpdatePackages {
					fmt.Fprintf(out, "  update: %s\n", path)
				}
			}

			return nil
		},
	}

	var logLimit int

	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent device events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			events, err := app.Store.RecentDeviceEvents(cmd.Context(), logLimit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(events) == 0 {
				fmt.Fprintln(out, "No device events recorded.")

				return nil
			}

			t := newTable(out, "DEVICE", "EVENT", "MOUNT", "RISK", "WHEN")
			for _, event := range events {
				t.AppendRow(table.Row{
					truncate(event.DeviceID, 30),
					event.Event,
					event.MountPoint,
					event.RiskLevel,
					ago(event.ConnectedAt),
				})
			}
			t.Render()

			return nil
		},
	}
	logCmd.Flags().IntVar(&logLimit, "limit", 20, "max events to list")

	cmd.AddCommand(scanCmd, logCmd)

	return cmd
}
