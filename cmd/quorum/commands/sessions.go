package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewSessionsCommand lists and inspects analysis sessions.
func NewSessionsCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect analysis sessions",
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	var listLimit int

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			sessions, err := app.Store.ListSessions(cmd.Context(), listLimit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions recorded.")

				return nil
			}

			t := newTable(out, "SESSION", "STARTED", "STATUS", "LOGS", "ANOMALIES")
			for _, s := range sessions {
				t.AppendRow(table.Row{
					s.SessionID,
					ago(s.StartTime),
					s.Status,
					count(s.LogsAnalyzed),
					count(s.AnomaliesDetected),
				})
			}
			t.Render()

			return nil
		},
	}
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "max sessions to list")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show one session and its anomalies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			session, err := app.Store.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			anomalies, err := app.Store.AnomaliesBySession(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Session:   %s\n", session.SessionID)
			fmt.Fprintf(out, "Status:    %s\n", session.Status)
			fmt.Fprintf(out, "Started:   %s\n", session.StartTime)
			if session.EndTime != "" {
				fmt.Fprintf(out, "Ended:     %s\n", session.EndTime)
			}
			fmt.Fprintf(out, "Logs:      %s\n", count(session.LogsAnalyzed))
			fmt.Fprintf(out, "Anomalies: %s\n\n", count(session.AnomaliesDetected))

			if len(anomalies) == 0 {
				return nil
			}

			t := newTable(out, "LOG", "SCORE", "SEVERITY", "TECHNIQUE", "TACTIC", "DETECTED")
			for _, a := range anomalies {
				technique := a.MitreTechnique
				if technique == "" {
					technique = "-"
				}

				tactic := a.MitreTactic
				if tactic == "" {
					tactic = "-"
				}

				t.AppendRow(table.Row{
					a.LogID,
					fmt.Sprintf("%.3f", a.AnomalyScore),
					severityLabel(a.Severity),
					technique,
					tactic,
					ago(a.DetectedAt),
				})
			}
			t.Render()

			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)

	return cmd
}
