package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/receipt-eval/internal/aggregate"
	"github.com/sells-group/receipt-eval/internal/model"
	"github.com/sells-group/receipt-eval/internal/rank"
	"github.com/sells-group/receipt-eval/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect saved evaluation runs",
	Long:  "Commands for listing, viewing, summarizing, and exporting evaluation runs persisted by 'evaluate --save'.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		strategy, _ := cmd.Flags().GetString("strategy")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.RunFilter{
			Status:   model.EvalRunStatus(status),
			Strategy: strategy,
			Limit:    limit,
		}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Long:  "Prints the run record plus summaries and a ranking recomputed from its stored evaluations.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		metricFlag, _ := cmd.Flags().GetString("metric")
		metric, err := rank.ParseMetric(metricFlag)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		evals, err := st.ListEvaluations(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		detail := runDetail{Run: run}
		if len(evals) > 0 {
			summaries, err := aggregate.Aggregate(evals)
			if err != nil {
				return err
			}
			detail.Summaries = summaries
			detail.Ranking = rank.Rank(summaries, metric)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(detail)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		since, _ := cmd.Flags().GetDuration("since")
		filter := store.RunFilter{}
		if since > 0 {
			filter.CreatedAfter = time.Now().Add(-since)
		}
		filter.Limit = 10000 // high limit for stats

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		stats := computeRunStats(runs)
		formatRunStats(os.Stdout, stats)
		return nil
	},
}

// -- runs export --

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's evaluations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("runs"); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		outputPath, _ := cmd.Flags().GetString("output")
		if format != "csv" && format != "json" {
			return eris.Errorf("runs export: --format must be csv or json (got %q)", format)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		// Resolve the run first so a bad ID fails loudly instead of
		// exporting an empty file.
		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		evals, err := st.ListEvaluations(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs export")
		}
		if len(evals) == 0 {
			fmt.Fprintln(os.Stderr, "No evaluations found.")
			return nil
		}

		var w *os.File
		if outputPath != "" {
			w, err = os.Create(outputPath)
			if err != nil {
				return eris.Wrapf(err, "runs export: create output file %s", outputPath)
			}
			defer w.Close() //nolint:errcheck
		} else {
			w = os.Stdout
		}

		if format == "json" {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(evals)
		}
		return writeEvaluationsCSV(w, evals)
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("strategy", "", "filter by strategy ID")
	runsListCmd.Flags().Duration("since", 0, "only runs created within this window (e.g. 24h, 168h)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsShowCmd.Flags().String("metric", string(rank.MetricAccuracy), "ranking metric for the recomputed summary")

	runsStatsCmd.Flags().Duration("since", 24*time.Hour, "time window for stats (e.g. 24h, 72h, 168h)")

	runsExportCmd.Flags().String("format", "csv", "output format: csv or json")
	runsExportCmd.Flags().String("output", "", "output file path (default: stdout)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

// runDetail is the 'runs show' payload: the run record plus statistics
// recomputed from its stored evaluations.
type runDetail struct {
	Run       *model.EvalRun                   `json:"run"`
	Summaries map[string]model.StrategySummary `json:"summaries,omitempty"`
	Ranking   []rank.Entry                     `json:"ranking,omitempty"`
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total       int
	Complete    int
	Failed      int
	Running     int
	Receipts    int
	Evaluations int
	AvgDurSecs  float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.EvalRun) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		s.Receipts += r.Receipts
		s.Evaluations += r.Evaluations

		switch r.Status {
		case model.EvalRunStatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.EvalRunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to out.
func formatRunsList(out io.Writer, runs []model.EvalRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLABEL\tSTATUS\tSTRATEGIES\tEVALS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t----------\t-----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()

		strategies := strings.Join(r.Strategies, ",")
		if len(strategies) > 30 {
			strategies = strategies[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Label,
			r.Status,
			strategies,
			r.Evaluations,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to out.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "Running:\t%d\n", s.Running)
	_, _ = fmt.Fprintf(w, "Receipts:\t%d\n", s.Receipts)
	_, _ = fmt.Fprintf(w, "Evaluations:\t%d\n", s.Evaluations)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}
	_ = w.Flush()
}

// writeEvaluationsCSV writes one row per evaluation, field scores omitted.
func writeEvaluationsCSV(w io.Writer, evals []model.Evaluation) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"strategy_id", "receipt_id", "overall", "math_valid", "no_ground_truth",
		"output_valid", "completeness", "processing_time", "cost", "evaluated_at",
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "runs export: write CSV header")
	}

	for _, e := range evals {
		row := []string{
			e.StrategyID,
			e.ReceiptID,
			fmt.Sprintf("%.4f", e.Overall),
			strconv.FormatBool(e.MathValid),
			strconv.FormatBool(e.NoGroundTruth),
			strconv.FormatBool(e.OutputValid),
			fmt.Sprintf("%.4f", e.Completeness),
			fmt.Sprintf("%.3f", e.ProcessingTime),
			fmt.Sprintf("%.6f", e.Cost),
			e.EvaluatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "runs export: write CSV row")
		}
	}
	return nil
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
