package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/0Ankit0-0/quorum/internal/session"
	"github.com/0Ankit0-0/quorum/pkg/ensemble"
	"github.com/0Ankit0-0/quorum/pkg/modelstore"
)

// NewAnalyzeCommand runs a full analysis session over the stored logs.
func NewAnalyzeCommand() *cobra.Command {
	var (
		configPath    string
		algorithm     string
		startStr      string
		endStr        string
		threshold     float64
		contamination float64
		forceRetrain  bool
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run anomaly detection over the stored logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			params := session.Params{
				Algorithm:     algorithm,
				Threshold:     threshold,
				Contamination: contamination,
				ForceRetrain:  forceRetrain,
			}

			params.Start, err = parseTimeFlag(startStr)
			if err != nil {
				return err
			}

			params.End, err = parseTimeFlag(endStr)
			if err != nil {
				return err
			}

			if params.Threshold <= 0 {
				params.Threshold = app.Config.AI.AnomalyThreshold
			}

			if params.Contamination <= 0 {
				params.Contamination = app.Config.AI.Contamination
			}

			engine := ensemble.New(modelstore.New(app.Config.ModelsDir()), app.Logger)
			manager := session.NewManager(app.Store, engine, app.Metrics, app.Logger,
				session.WithDefaultThreshold(app.Config.AI.AnomalyThreshold),
				session.WithChunking(app.Config.AI.ChunkSize, app.Config.AI.LargeDatasetThreshold),
				session.WithDetectorTuning(app.Config.AI.SVMMaxSamples, app.Config.AI.RandomSeed))

			result, err := manager.Analyze(cmd.Context(), params)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Session %s finished in %s\n",
				result.SessionID, result.Elapsed.Round(time.Millisecond))
			fmt.Fprintf(out, "Analyzed %s logs, %s anomalies at threshold %.2f (%s)\n\n",
				count(result.LogsAnalyzed), count(int64(len(result.Anomalies))),
				result.Threshold, result.Algorithm)

			if len(result.Anomalies) == 0 {
				fmt.Fprintln(out, okColor.Sprint("No anomalies above threshold."))

				return nil
			}

			t := newTable(out, "LOG", "SCORE", "SEVERITY", "TECHNIQUE", "EXPLANATION")

			shown := result.Anomalies
			if limit > 0 && len(shown) > limit {
				shown = shown[:limit]
			}

			for _, a := range shown {
				technique := a.MitreTechnique
				if technique == "" {
					technique = "-"
				}

				t.AppendRow(table.Row{
					a.LogID,
					fmt.Sprintf("%.3f", a.AnomalyScore),
					severityLabel(a.Severity),
					technique,
					truncate(a.Explanation, 60),
				})
			}

			t.Render()

			if len(shown) < len(result.Anomalies) {
				fmt.Fprintf(out, "... and %d more; use `quorum sessions show %s`\n",
					len(result.Anomalies)-len(shown), result.SessionID)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	cmd.Flags().StringVarP(&algorithm, "algorithm", "a", "", "detector: ensemble, isolation_forest, one_class_svm, statistical")
	cmd.Flags().StringVar(&startStr, "start", "", "analysis window start (RFC3339 or 2006-01-02)")
	cmd.Flags().StringVar(&endStr, "end", "", "analysis window end (RFC3339 or 2006-01-02)")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "anomaly score threshold (0,1]")
	cmd.Flags().Float64Var(&contamination, "contamination", 0, "expected anomaly ratio")
	cmd.Flags().BoolVar(&forceRetrain, "force-retrain", false, "ignore persisted models")
	cmd.Flags().IntVar(&limit, "limit", 20, "max anomalies to print")

	return cmd
}

func parseTimeFlag(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts, nil
		}
	}

	return nil, fmt.Errorf("unrecognized time %q (want RFC3339 or 2006-01-02)", value)
}
