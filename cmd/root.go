package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-eval/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "receipt-eval",
	Short: "Receipt extraction accuracy evaluation",
	Long:  "Scores receipt extraction output against ground truth, ranks extraction strategies, measures cross-model agreement for prompt tuning, and tracks evaluation runs over time.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
