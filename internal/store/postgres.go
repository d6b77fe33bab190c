package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-eval/internal/db"
	"github.com/sells-group/receipt-eval/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":       `INSERT INTO runs (id, label, status, strategies, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"complete_run":     `UPDATE runs SET status = $1, receipts = $2, evaluations = $3, updated_at = $4 WHERE id = $5`,
	"fail_run":         `UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
	"get_run":          `SELECT id, label, status, strategies, receipts, evaluations, error, created_at, updated_at FROM runs WHERE id = $1`,
	"list_evaluations": `SELECT strategy_id, receipt_id, scores, overall, math_valid, no_ground_truth, output_valid, completeness, processing_time, cost, evaluated_at FROM evaluations WHERE run_id = $1 ORDER BY strategy_id, receipt_id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	label       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	strategies  JSONB NOT NULL DEFAULT '[]',
	receipts    INTEGER NOT NULL DEFAULT 0,
	evaluations INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS evaluations (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	strategy_id     TEXT NOT NULL,
	receipt_id      TEXT NOT NULL,
	scores          JSONB NOT NULL,
	overall         DOUBLE PRECISION NOT NULL,
	math_valid      BOOLEAN NOT NULL,
	no_ground_truth BOOLEAN NOT NULL,
	output_valid    BOOLEAN NOT NULL,
	completeness    DOUBLE PRECISION NOT NULL,
	processing_time DOUBLE PRECISION NOT NULL,
	cost            DOUBLE PRECISION NOT NULL,
	evaluated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, strategy_id, receipt_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_evaluations_run_id ON evaluations(run_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_strategy_id ON evaluations(strategy_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, label string, strategies []string) (*model.EvalRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	strategiesJSON, err := json.Marshal(strategies)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal strategies")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, label, status, strategies, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, label, string(model.EvalRunStatusRunning), strategiesJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.EvalRun{
		ID:         id,
		Label:      label,
		Status:     model.EvalRunStatusRunning,
		Strategies: strategies,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, receipts, evaluations int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, receipts = $2, evaluations = $3, updated_at = $4 WHERE id = $5`,
		string(model.EvalRunStatusComplete), receipts, evaluations, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.EvalRunStatusFailed), message, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.EvalRun, error) {
	var r model.EvalRun
	var strategiesJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, label, status, strategies, receipts, evaluations, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &r.Label, &r.Status, &strategiesJSON, &r.Receipts, &r.Evaluations, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(strategiesJSON, &r.Strategies); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal strategies")
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.EvalRun, error) {
	query := `SELECT id, label, status, strategies, receipts, evaluations, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Strategy != "" {
		query += fmt.Sprintf(` AND strategies ? $%d`, argIdx)
		args = append(args, filter.Strategy)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.EvalRun
	for rows.Next() {
		var r model.EvalRun
		var strategiesJSON []byte

		if err := rows.Scan(&r.ID, &r.Label, &r.Status, &strategiesJSON, &r.Receipts, &r.Evaluations, &r.Error, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(strategiesJSON, &r.Strategies); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal strategies")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// evaluationColumns is the column order used for bulk saves.
var evaluationColumns = []string{
	"run_id", "strategy_id", "receipt_id", "scores",
	"overall", "math_valid", "no_ground_truth", "output_valid",
	"completeness", "processing_time", "cost", "evaluated_at",
}

// SaveEvaluations bulk-upserts evaluation rows for a run. Re-saving after a
// partial failure overwrites the rows already present instead of erroring.
func (s *PostgresStore) SaveEvaluations(ctx context.Context, runID string, evals []model.Evaluation) error {
	if len(evals) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(evals))
	for _, e := range evals {
		scoresJSON, err := json.Marshal(e.Scores)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal scores for %s/%s", e.StrategyID, e.ReceiptID)
		}
		rows = append(rows, []any{
			runID, e.StrategyID, e.ReceiptID, scoresJSON,
			e.Overall, e.MathValid, e.NoGroundTruth, e.OutputValid,
			e.Completeness, e.ProcessingTime, e.Cost, e.EvaluatedAt.UTC(),
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "evaluations",
		Columns:      evaluationColumns,
		ConflictKeys: []string{"run_id", "strategy_id", "receipt_id"},
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: save evaluations for run %s", runID)
	}
	return nil
}

func (s *PostgresStore) ListEvaluations(ctx context.Context, runID string) ([]model.Evaluation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT strategy_id, receipt_id, scores, overall, math_valid, no_ground_truth, output_valid, completeness, processing_time, cost, evaluated_at
		 FROM evaluations WHERE run_id = $1 ORDER BY strategy_id, receipt_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list evaluations")
	}
	defer rows.Close()

	var evals []model.Evaluation
	for rows.Next() {
		var e model.Evaluation
		var scoresJSON []byte
		if err := rows.Scan(
			&e.StrategyID, &e.ReceiptID, &scoresJSON,
			&e.Overall, &e.MathValid, &e.NoGroundTruth, &e.OutputValid,
			&e.Completeness, &e.ProcessingTime, &e.Cost, &e.EvaluatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evaluation")
		}
		if err := json.Unmarshal(scoresJSON, &e.Scores); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal scores")
		}
		evals = append(evals, e)
	}
	return evals, eris.Wrap(rows.Err(), "postgres: list evaluations iterate")
}
