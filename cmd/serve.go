package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/receipt-eval/internal/evaluate"
	"github.com/sells-group/receipt-eval/internal/groundtruth"
	"github.com/sells-group/receipt-eval/internal/model"
)

var servePort int
var serveTruthDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the evaluation HTTP service",
	Long: `Serves single-record evaluation over HTTP. POST /evaluate scores one
extracted receipt against ground truth supplied inline or looked up in
the directory given by --truth.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		schema, err := loadSchema(cfg.Eval.SchemaPath)
		if err != nil {
			return err
		}
		evaluator, err := evaluate.New(schema, cfg.Eval.MathTolerance)
		if err != nil {
			return err
		}

		var truth *groundtruth.Store
		if serveTruthDir != "" {
			truth, err = groundtruth.Load(serveTruthDir)
			if err != nil {
				return err
			}
			zap.L().Info("ground truth loaded",
				zap.String("dir", serveTruthDir),
				zap.Int("receipts", truth.Len()),
			)
		}

		mux := newEvalMux(evaluator, truth)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveTruthDir, "truth", "", "ground truth directory for lookups by receipt ID")
	rootCmd.AddCommand(serveCmd)
}

// evalRequest is the POST /evaluate payload. Ground truth is optional: an
// inline record wins, otherwise the receipt ID is looked up in the loaded
// ground truth store.
type evalRequest struct {
	ReceiptID      string         `json:"receipt_id"`
	StrategyID     string         `json:"strategy_id"`
	Fields         map[string]any `json:"fields"`
	GroundTruth    map[string]any `json:"ground_truth"`
	ProcessingTime float64        `json:"processing_time"`
	Cost           float64        `json:"cost"`
}

// newEvalMux builds the service routes. Factored out of the serve command so
// handlers are testable without a listening server.
func newEvalMux(evaluator *evaluate.Evaluator, truth *groundtruth.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /evaluate", func(w http.ResponseWriter, r *http.Request) {
		var req evalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}

		if req.ReceiptID == "" {
			http.Error(w, `{"error":"receipt_id is required"}`, http.StatusBadRequest)
			return
		}
		strategyID := req.StrategyID
		if strategyID == "" {
			strategyID = "adhoc"
		}

		var truthRec *model.Receipt
		if len(req.GroundTruth) > 0 {
			rec := model.DecodeReceipt(req.GroundTruth)
			truthRec = &rec
		} else if truth != nil {
			truthRec = truth.Lookup(req.ReceiptID)
		}

		meta := evaluate.Meta{
			ProcessingTime: req.ProcessingTime,
			Cost:           req.Cost,
			OutputValid:    len(req.Fields) > 0,
		}
		eval := evaluator.Evaluate(req.ReceiptID, strategyID, model.DecodeReceipt(req.Fields), truthRec, meta)

		zap.L().Info("evaluated receipt",
			zap.String("receipt_id", eval.ReceiptID),
			zap.String("strategy_id", eval.StrategyID),
			zap.Float64("overall", eval.Overall),
			zap.Bool("no_ground_truth", eval.NoGroundTruth),
		)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(eval)
	})

	return mux
}
