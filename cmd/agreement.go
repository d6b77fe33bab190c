package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-eval/internal/agreement"
	"github.com/sells-group/receipt-eval/internal/config"
	"github.com/sells-group/receipt-eval/internal/results"
)

var agreementCmd = &cobra.Command{
	Use:   "agreement [results...]",
	Short: "Score strategies by agreement with a baseline model",
	Long: `Compares candidate extraction runs against a baseline strategy's output
instead of ground truth. Useful for prompt tuning on unlabeled receipts:
pick the prompt that makes a cheap model agree most with the expensive
model it should replace.

Examples:
  # Compare every run in a directory against the configured baseline
  agreement runs/

  # Explicit baseline and a stricter match threshold
  agreement runs/ --baseline gpt4o_mini --threshold 0.9

  # Full per-receipt scores as JSON
  agreement runs/ --format json --output agreement.json`,
	Args: cobra.ArbitraryArgs,
	RunE: runAgreement,
}

func init() {
	f := agreementCmd.Flags()
	f.StringSlice("results", nil, "run files or directories (may repeat; positional args work too)")
	f.String("baseline", "", "baseline strategy ID (overrides config)")
	f.Float64("threshold", 0, "similarity threshold for a match (overrides config)")
	f.String("format", "table", "output format: table or json")
	f.String("output", "", "output file path (default: stdout)")

	rootCmd.AddCommand(agreementCmd)
}

func runAgreement(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate("agreement"); err != nil {
		return err
	}

	log := zap.L().With(zap.String("command", "agreement"))

	resultPaths, _ := cmd.Flags().GetStringSlice("results")
	resultPaths = append(resultPaths, args...)
	format, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")

	if len(resultPaths) == 0 {
		return eris.New("agreement: at least one results file or directory is required")
	}
	if format != "table" && format != "json" {
		return eris.Errorf("agreement: --format must be table or json (got %q)", format)
	}

	agrCfg := applyAgreementOverrides(cmd, cfg.Agreement)

	runs, err := results.LoadPaths(resultPaths...)
	if err != nil {
		return err
	}

	log.Info("starting agreement evaluation",
		zap.String("baseline", agrCfg.Baseline),
		zap.Float64("threshold", agrCfg.Threshold),
		zap.Int("runs", len(runs)),
	)

	report, err := agreement.Evaluate(runs, agrCfg)
	if err != nil {
		return err
	}

	log.Info("agreement evaluation complete",
		zap.Int("candidates", len(report.Summaries)),
		zap.Int("receipts", len(report.Winners)),
	)

	if err := outputAgreementReport(report, format, outputPath); err != nil {
		return err
	}

	printAgreementSummary(report)
	return nil
}

// applyAgreementOverrides maps config onto the comparer settings with CLI
// flag overrides applied.
func applyAgreementOverrides(cmd *cobra.Command, base config.AgreementConfig) agreement.Config {
	c := agreement.Config{
		Baseline:  base.Baseline,
		Threshold: base.Threshold,
	}

	if v, _ := cmd.Flags().GetString("baseline"); v != "" {
		c.Baseline = v
	}
	if v, _ := cmd.Flags().GetFloat64("threshold"); v > 0 {
		c.Threshold = v
	}

	return c
}

func outputAgreementReport(report agreement.Report, format, outputPath string) error {
	var w *os.File
	if outputPath != "" {
		var err error
		w, err = os.Create(outputPath)
		if err != nil {
			return eris.Wrapf(err, "agreement: create output file %s", outputPath)
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
	case "table":
		return writeAgreementTable(w, report)
	default:
		return eris.Errorf("agreement: unsupported format %q", format)
	}
}

// agreementRow pairs one candidate's summary with its per-receipt win count.
type agreementRow struct {
	StrategyID string
	Summary    agreement.Summary
	Wins       int
}

// agreementRows orders candidates by mean similarity, best first, ties by ID.
func agreementRows(report agreement.Report) []agreementRow {
	wins := make(map[string]int, len(report.Summaries))
	for _, winner := range report.Winners {
		wins[winner]++
	}

	rows := make([]agreementRow, 0, len(report.Summaries))
	for id, s := range report.Summaries {
		rows = append(rows, agreementRow{StrategyID: id, Summary: s, Wins: wins[id]})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Summary.MeanSimilarity != rows[j].Summary.MeanSimilarity {
			return rows[i].Summary.MeanSimilarity > rows[j].Summary.MeanSimilarity
		}
		return rows[i].StrategyID < rows[j].StrategyID
	})
	return rows
}

func writeAgreementTable(w io.Writer, report agreement.Report) error {
	header := fmt.Sprintf("%-4s %-28s %5s %10s %10s %6s\n",
		"RANK", "STRATEGY", "N", "MEAN SIM", "MATCH", "WINS")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "agreement: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 68)); err != nil {
		return eris.Wrap(err, "agreement: write table separator")
	}

	for i, row := range agreementRows(report) {
		name := row.StrategyID
		if len(name) > 28 {
			name = name[:25] + "..."
		}
		line := fmt.Sprintf("%-4d %-28s %5d %10.4f %9.1f%% %6d\n",
			i+1, name, row.Summary.Count, row.Summary.MeanSimilarity,
			row.Summary.MatchRate*100, row.Wins)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "agreement: write table row")
		}
	}
	return nil
}

func printAgreementSummary(report agreement.Report) {
	rows := agreementRows(report)
	if len(rows) == 0 {
		fmt.Println("No results.")
		return
	}

	best := rows[0]
	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Baseline:   %s\n", report.Baseline)
	fmt.Printf("Threshold:  %.2f\n", report.Threshold)
	fmt.Printf("Candidates: %d\n", len(rows))
	fmt.Printf("Receipts:   %d\n", len(report.Winners))
	fmt.Printf("Best: %s (mean similarity %.4f, match rate %.1f%%)\n",
		best.StrategyID, best.Summary.MeanSimilarity, best.Summary.MatchRate*100)
}
