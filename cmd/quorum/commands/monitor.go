package commands

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/0Ankit0-0/quorum/internal/tailer"
)

// NewMonitorCommand follows a live log file and prints stream alerts.
func NewMonitorCommand() *cobra.Command {
	var (
		configPath string
		fromStart  bool
		noPersist  bool
	)

	cmd := &cobra.Command{
		Use:   "monitor <log-file>...",
		Short: "Follow log files and alert on suspicious lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()

			st := app.Store
			if noPersist {
				st = nil
			}

			opts := tailer.Options{
				PollInterval:     time.Duration(app.Config.Tailer.PollIntervalMS) * time.Millisecond,
				QueueSize:        app.Config.Tailer.QueueSize,
				PersistThreshold: app.Config.Tailer.PersistThreshold,
				FromStart:        fromStart,
			}

			tl := tailer.New(opts, st, app.Metrics, app.Logger, func(event tailer.Event) {
				// Every line becomes an event; only alerts get printed.
				if event.Score < opts.PersistThreshold {
					return
				}

				fmt.Fprintf(out, "[%s] %s %.2f %s\n",
					time.Now().Format("15:04:05"),
					severityLabel(event.Severity),
					event.Score,
					event.Record.Message)
			}, args...)

			fmt.Fprintf(out, "Monitoring %s (threshold %.2f, Ctrl-C to stop)\n",
				strings.Join(args, ", "), opts.PersistThreshold)

			return tl.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "read the whole file before following")
	cmd.Flags().BoolVar(&noPersist, "no-persist", false, "print alerts without storing them")

	return cmd
}
