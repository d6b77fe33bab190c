package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-eval/internal/groundtruth"
)

var fixturesCmd = &cobra.Command{
	Use:   "fixtures",
	Short: "Create ground truth fixtures",
	Long:  "Commands for generating synthetic ground truth and importing hand-verified receipts from spreadsheets.",
}

// -- fixtures generate --

var fixturesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate synthetic ground truth receipts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("fixtures"); err != nil {
			return err
		}

		count, _ := cmd.Flags().GetInt("count")
		seed, _ := cmd.Flags().GetUint64("seed")
		taxRate, _ := cmd.Flags().GetFloat64("tax-rate")
		outDir, _ := cmd.Flags().GetString("out")

		records := groundtruth.Generate(groundtruth.GenerateOptions{
			Count:   count,
			Seed:    seed,
			TaxRate: taxRate,
		})
		if err := groundtruth.WriteDir(outDir, records); err != nil {
			return err
		}

		zap.L().Info("fixtures generated",
			zap.Int("count", len(records)),
			zap.String("dir", outDir),
		)
		fmt.Printf("Wrote %d ground truth files to %s\n", len(records), outDir)
		return nil
	},
}

// -- fixtures import-xlsx --

var fixturesImportCmd = &cobra.Command{
	Use:   "import-xlsx",
	Short: "Import verified receipts from a spreadsheet",
	Long:  "Reads one receipt per row from an XLSX sheet with a header row, and writes per-receipt ground truth JSON files.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("fixtures"); err != nil {
			return err
		}

		path, _ := cmd.Flags().GetString("file")
		sheetName, _ := cmd.Flags().GetString("sheet")
		sheetIndex, _ := cmd.Flags().GetInt("sheet-index")
		outDir, _ := cmd.Flags().GetString("out")

		records, err := groundtruth.ImportXLSX(path, groundtruth.ImportOptions{
			SheetName:  sheetName,
			SheetIndex: sheetIndex,
		})
		if err != nil {
			return err
		}
		if err := groundtruth.WriteDir(outDir, records); err != nil {
			return err
		}

		zap.L().Info("fixtures imported",
			zap.Int("count", len(records)),
			zap.String("xlsx", path),
			zap.String("dir", outDir),
		)
		fmt.Printf("Imported %d receipts from %s into %s\n", len(records), path, outDir)
		return nil
	},
}

func init() {
	fixturesGenerateCmd.Flags().Int("count", 10, "number of receipts to generate")
	fixturesGenerateCmd.Flags().Uint64("seed", 0, "random seed (same seed, same fixtures)")
	fixturesGenerateCmd.Flags().Float64("tax-rate", 0.20, "tax rate applied to generated subtotals")
	fixturesGenerateCmd.Flags().String("out", "ground_truth", "output directory")

	fixturesImportCmd.Flags().String("file", "", "path to XLSX file (required)")
	fixturesImportCmd.Flags().String("sheet", "", "sheet name (default: first sheet)")
	fixturesImportCmd.Flags().Int("sheet-index", 0, "sheet index when no name is given")
	fixturesImportCmd.Flags().String("out", "ground_truth", "output directory")
	_ = fixturesImportCmd.MarkFlagRequired("file")

	fixturesCmd.AddCommand(fixturesGenerateCmd)
	fixturesCmd.AddCommand(fixturesImportCmd)
	rootCmd.AddCommand(fixturesCmd)
}
