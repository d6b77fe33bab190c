package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/receipt-eval/internal/aggregate"
	"github.com/sells-group/receipt-eval/internal/config"
	"github.com/sells-group/receipt-eval/internal/cost"
	"github.com/sells-group/receipt-eval/internal/evaluate"
	"github.com/sells-group/receipt-eval/internal/groundtruth"
	"github.com/sells-group/receipt-eval/internal/model"
	"github.com/sells-group/receipt-eval/internal/rank"
	"github.com/sells-group/receipt-eval/internal/results"
	"github.com/sells-group/receipt-eval/internal/scorer"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [results...]",
	Short: "Score extraction runs against ground truth",
	Long: `Scores every extraction strategy's output against hand-verified ground
truth, aggregates per-strategy accuracy statistics, and ranks the
strategies.

Each results path is a run file (one strategy's JSON output) or a
directory of run files. Ground truth is a directory of per-receipt JSON
files.

Examples:
  # Score all runs in a directory, print the ranking table
  evaluate --truth testdata/truth runs/

  # Pick by math validation rate instead of field accuracy
  evaluate --truth truth runs/ --metric math_valid_rate

  # Export the full report as JSON and persist the run
  evaluate --truth truth runs/ --format json --output report.json --save --label nightly`,
	Args: cobra.ArbitraryArgs,
	RunE: runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringSlice("results", nil, "run files or directories (may repeat; positional args work too)")
	f.String("truth", "", "ground truth directory (required)")
	f.String("metric", string(rank.MetricAccuracy), "ranking metric: mean_field_accuracy, math_valid_rate, output_valid_rate, completeness, avg_time")
	f.String("format", "table", "output format: table, csv, or json")
	f.String("output", "", "output file path (default: stdout)")
	f.String("schema", "", "field schema YAML (overrides config)")
	f.String("rates", "", "rate card YAML (overrides config)")
	f.Int("workers", 0, "concurrent evaluation workers (overrides config)")
	f.Float64("tolerance", 0, "math validation tolerance (overrides config)")
	f.Bool("full", false, "include per-receipt evaluations in JSON output")
	f.Bool("save", false, "persist the run to the configured store")
	f.String("label", "", "label for the saved run")
	_ = evaluateCmd.MarkFlagRequired("truth")

	rootCmd.AddCommand(evaluateCmd)
}

// evalReport is the complete output of one evaluation pass.
type evalReport struct {
	GeneratedAt time.Time                        `json:"generated_at"`
	Metric      rank.Metric                      `json:"metric"`
	Receipts    int                              `json:"receipts"`
	Summaries   map[string]model.StrategySummary `json:"summaries"`
	Ranking     []rank.Entry                     `json:"ranking"`
	Winners     map[string]string                `json:"winners"`
	Evaluations []model.Evaluation               `json:"evaluations,omitempty"`
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	save, _ := cmd.Flags().GetBool("save")
	mode := "evaluate"
	if save {
		// Saving needs a working store on top of the evaluation settings.
		mode = "runs"
	}
	if err := cfg.Validate(mode); err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "evaluate"))

	// Parse flags.
	resultPaths, _ := cmd.Flags().GetStringSlice("results")
	resultPaths = append(resultPaths, args...)
	truthDir, _ := cmd.Flags().GetString("truth")
	metricFlag, _ := cmd.Flags().GetString("metric")
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	ratesPath, _ := cmd.Flags().GetString("rates")
	full, _ := cmd.Flags().GetBool("full")
	label, _ := cmd.Flags().GetString("label")

	if len(resultPaths) == 0 {
		return eris.New("evaluate: at least one results file or directory is required")
	}
	if format != "table" && format != "csv" && format != "json" {
		return eris.Errorf("evaluate: --format must be table, csv, or json (got %q)", format)
	}
	metric, err := rank.ParseMetric(metricFlag)
	if err != nil {
		return err
	}

	// Build evaluation settings from global config with CLI flag overrides.
	evalCfg := applyEvalOverrides(cmd, cfg.Eval)

	schema, err := loadSchema(evalCfg.SchemaPath)
	if err != nil {
		return err
	}
	evaluator, err := evaluate.New(schema, evalCfg.MathTolerance)
	if err != nil {
		return err
	}

	if ratesPath == "" {
		ratesPath = cfg.Cost.RatesPath
	}
	calc, err := loadCalculator(ratesPath)
	if err != nil {
		return err
	}

	truth, err := groundtruth.Load(truthDir)
	if err != nil {
		return err
	}
	runs, err := results.LoadPaths(resultPaths...)
	if err != nil {
		return err
	}

	log.Info("starting evaluation",
		zap.Int("strategies", len(runs)),
		zap.Int("ground_truth", truth.Len()),
		zap.Int("workers", evalCfg.Workers),
		zap.String("metric", string(metric)),
	)

	evals, acc, err := evaluateRuns(ctx, evaluator, calc, truth, runs, evalCfg.Workers)
	if err != nil {
		return eris.Wrap(err, "evaluate: run evaluation")
	}

	summaries := acc.Summaries()
	report := evalReport{
		GeneratedAt: time.Now().UTC(),
		Metric:      metric,
		Receipts:    countReceipts(evals),
		Summaries:   summaries,
		Ranking:     rank.Rank(summaries, metric),
		Winners:     rank.ReceiptWinners(evals),
	}
	if full {
		report.Evaluations = evals
	}

	log.Info("evaluation complete",
		zap.Int("evaluations", len(evals)),
		zap.Int("receipts", report.Receipts),
	)

	if err := outputEvalReport(report, format, outputPath); err != nil {
		return err
	}

	if save {
		runID, err := saveEvalRun(ctx, label, runs, evals, report.Receipts)
		if err != nil {
			return err
		}
		fmt.Printf("Saved run %s (%d evaluations)\n", runID, len(evals))
	}

	printEvalSummary(report, len(evals))
	return nil
}

// applyEvalOverrides returns a copy of the base config with CLI flag overrides applied.
func applyEvalOverrides(cmd *cobra.Command, base config.EvalConfig) config.EvalConfig {
	c := base

	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		c.Workers = v
	}
	if v, _ := cmd.Flags().GetFloat64("tolerance"); v > 0 {
		c.MathTolerance = v
	}
	if v, _ := cmd.Flags().GetString("schema"); v != "" {
		c.SchemaPath = v
	}

	return c
}

func loadSchema(path string) ([]scorer.FieldSpec, error) {
	if path == "" {
		return scorer.DefaultSchema(), nil
	}
	return scorer.LoadSchema(path)
}

func loadCalculator(path string) (*cost.Calculator, error) {
	if path == "" {
		return cost.NewCalculator(cost.DefaultRates()), nil
	}
	rates, err := cost.LoadRates(path)
	if err != nil {
		return nil, err
	}
	return cost.NewCalculator(rates), nil
}

// evaluateRuns scores every extraction in every run, one worker per run.
// Shard accumulators merge into one, so worker scheduling never changes the
// aggregate result. Evaluations come back sorted by strategy then receipt.
func evaluateRuns(ctx context.Context, evaluator *evaluate.Evaluator, calc *cost.Calculator, truth *groundtruth.Store, runs []results.Run, workers int) ([]model.Evaluation, *aggregate.Accumulator, error) {
	if workers <= 0 {
		workers = 1
	}

	var mu sync.Mutex
	evals := make([]model.Evaluation, 0, truth.Len()*len(runs))
	acc := aggregate.NewAccumulator()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, run := range runs {
		g.Go(func() error {
			local := aggregate.NewAccumulator()
			out := make([]model.Evaluation, 0, len(run.Results))
			for _, ext := range run.Results {
				if err := ctx.Err(); err != nil {
					return err
				}
				meta := evaluate.Meta{
					ProcessingTime: ext.ProcessingTime,
					Cost:           calc.Price(run.StrategyID, ext),
					OutputValid:    ext.OutputValid(),
				}
				ev := evaluator.Evaluate(ext.ReceiptID, run.StrategyID, ext.Receipt(), truth.Lookup(ext.ReceiptID), meta)
				out = append(out, ev)
				local.Add(ev)
			}

			mu.Lock()
			evals = append(evals, out...)
			acc.Merge(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(evals, func(i, j int) bool {
		if evals[i].StrategyID != evals[j].StrategyID {
			return evals[i].StrategyID < evals[j].StrategyID
		}
		return evals[i].ReceiptID < evals[j].ReceiptID
	})
	return evals, acc, nil
}

func countReceipts(evals []model.Evaluation) int {
	seen := make(map[string]struct{}, len(evals))
	for _, e := range evals {
		seen[e.ReceiptID] = struct{}{}
	}
	return len(seen)
}

// saveEvalRun persists the evaluations as a tracked run. A failure after the
// run row exists marks the run failed rather than leaving it running forever.
func saveEvalRun(ctx context.Context, label string, runs []results.Run, evals []model.Evaluation, receipts int) (string, error) {
	st, err := initStore(ctx)
	if err != nil {
		return "", err
	}
	defer st.Close() //nolint:errcheck
	if err := st.Migrate(ctx); err != nil {
		return "", err
	}

	strategies := make([]string, 0, len(runs))
	for _, run := range runs {
		strategies = append(strategies, run.StrategyID)
	}
	sort.Strings(strategies)

	run, err := st.CreateRun(ctx, label, strategies)
	if err != nil {
		return "", eris.Wrap(err, "evaluate: create run")
	}
	if err := st.SaveEvaluations(ctx, run.ID, evals); err != nil {
		if failErr := st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			zap.L().Warn("could not mark run failed",
				zap.String("run_id", run.ID),
				zap.Error(failErr),
			)
		}
		return "", eris.Wrap(err, "evaluate: save evaluations")
	}
	if err := st.CompleteRun(ctx, run.ID, receipts, len(evals)); err != nil {
		return "", eris.Wrap(err, "evaluate: complete run")
	}
	return run.ID, nil
}

func outputEvalReport(report evalReport, format, outputPath string) error {
	var w *os.File
	if outputPath != "" {
		var err error
		w, err = os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "evaluate: create output file %s", outputPath)
		}
		defer w.Close() //nolint:errcheck
	} else {
		w = os.Stdout
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "csv":
		return writeSummaryCSV(w, report)
	case "table":
		return writeSummaryTable(w, report)
	default:
		return eris.Errorf("evaluate: unsupported format %q", format)
	}
}

func writeSummaryCSV(w io.Writer, report evalReport) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"rank", "strategy_id", "count", "evaluated", "mean_field_accuracy",
		"std_field_accuracy", "math_valid_rate", "output_valid_rate",
		"mean_completeness", "total_cost", "total_time", "avg_time",
	}
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "evaluate: write CSV header")
	}

	for i, entry := range report.Ranking {
		s := report.Summaries[entry.StrategyID]
		row := []string{
			fmt.Sprintf("%d", i+1),
			s.StrategyID,
			fmt.Sprintf("%d", s.Count),
			fmt.Sprintf("%d", s.Evaluated),
			fmt.Sprintf("%.4f", s.MeanFieldAccuracy),
			fmt.Sprintf("%.4f", s.StdFieldAccuracy),
			fmt.Sprintf("%.4f", s.MathValidRate),
			fmt.Sprintf("%.4f", s.OutputValidRate),
			fmt.Sprintf("%.4f", s.MeanCompleteness),
			fmt.Sprintf("%.6f", s.TotalCost),
			fmt.Sprintf("%.2f", s.TotalTime),
			fmt.Sprintf("%.2f", s.AvgTime),
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "evaluate: write CSV row")
		}
	}
	return nil
}

func writeSummaryTable(w io.Writer, report evalReport) error {
	header := fmt.Sprintf("%-4s %-28s %5s %8s %8s %8s %8s %8s %10s %9s\n",
		"RANK", "STRATEGY", "N", "ACC", "STD", "MATH", "VALID", "COMPL", "COST", "AVG TIME")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "evaluate: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 105)); err != nil {
		return eris.Wrap(err, "evaluate: write table separator")
	}

	for i, entry := range report.Ranking {
		s := report.Summaries[entry.StrategyID]
		name := s.StrategyID
		if len(name) > 28 {
			name = name[:25] + "..."
		}
		line := fmt.Sprintf("%-4d %-28s %5d %8.4f %8.4f %8.2f %8.2f %8.2f %10s %8.2fs\n",
			i+1, name, s.Count, s.MeanFieldAccuracy, s.StdFieldAccuracy,
			s.MathValidRate, s.OutputValidRate, s.MeanCompleteness,
			formatUSD(s.TotalCost), s.AvgTime)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "evaluate: write table row")
		}
	}
	return nil
}

func printEvalSummary(report evalReport, evaluations int) {
	if len(report.Ranking) == 0 {
		fmt.Println("No results.")
		return
	}

	best := report.Ranking[0]
	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Strategies:   %d\n", len(report.Ranking))
	fmt.Printf("Receipts:     %d\n", report.Receipts)
	fmt.Printf("Evaluations:  %d\n", evaluations)
	fmt.Printf("Best (%s): %s (%.4f)\n", report.Metric, best.StrategyID, best.Value)

	if wins := winCounts(report.Winners); len(wins) > 0 {
		parts := make([]string, 0, len(wins))
		for _, wc := range wins {
			parts = append(parts, fmt.Sprintf("%s: %d", wc.strategy, wc.count))
		}
		fmt.Printf("Per-receipt wins: %s\n", strings.Join(parts, ", "))
	}
}

type winCount struct {
	strategy string
	count    int
}

// winCounts tallies per-receipt winners, most wins first, ties by ID.
func winCounts(winners map[string]string) []winCount {
	counts := make(map[string]int, len(winners))
	for _, strategy := range winners {
		counts[strategy]++
	}
	out := make([]winCount, 0, len(counts))
	for strategy, n := range counts {
		out = append(out, winCount{strategy: strategy, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].strategy < out[j].strategy
	})
	return out
}

func formatUSD(amount float64) string {
	if amount >= 1 {
		return fmt.Sprintf("$%.2f", amount)
	}
	return fmt.Sprintf("$%.4f", amount)
}
