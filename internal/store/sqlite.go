package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/receipt-eval/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	label       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'running',
	strategies  TEXT NOT NULL DEFAULT '[]',
	receipts    INTEGER NOT NULL DEFAULT 0,
	evaluations INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS evaluations (
	run_id          TEXT NOT NULL REFERENCES runs(id),
	strategy_id     TEXT NOT NULL,
	receipt_id      TEXT NOT NULL,
	scores          TEXT NOT NULL,
	overall         REAL NOT NULL,
	math_valid      INTEGER NOT NULL,
	no_ground_truth INTEGER NOT NULL,
	output_valid    INTEGER NOT NULL,
	completeness    REAL NOT NULL,
	processing_time REAL NOT NULL,
	cost            REAL NOT NULL,
	evaluated_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, strategy_id, receipt_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_evaluations_run_id ON evaluations(run_id);
CREATE INDEX IF NOT EXISTS idx_evaluations_strategy_id ON evaluations(strategy_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, label string, strategies []string) (*model.EvalRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	strategiesJSON, err := json.Marshal(strategies)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal strategies")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, label, status, strategies, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, label, string(model.EvalRunStatusRunning), string(strategiesJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, receipts, evaluations int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, receipts = ?, evaluations = ?, updated_at = ? WHERE id = ?`,
		string(model.EvalRunStatusComplete), receipts, evaluations, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.EvalRunStatusFailed), message, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.EvalRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, status, strategies, receipts, evaluations, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row, runID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.EvalRun, error) {
	query := `SELECT id, label, status, strategies, receipts, evaluations, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Strategy != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(runs.strategies) WHERE json_each.value = ?)`
		args = append(args, filter.Strategy)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.EvalRun
	for rows.Next() {
		r, err := scanRun(rows, "")
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

const sqliteInsertEvaluation = `
INSERT INTO evaluations
	(run_id, strategy_id, receipt_id, scores, overall, math_valid, no_ground_truth, output_valid, completeness, processing_time, cost, evaluated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, strategy_id, receipt_id) DO UPDATE SET
	scores = excluded.scores,
	overall = excluded.overall,
	math_valid = excluded.math_valid,
	no_ground_truth = excluded.no_ground_truth,
	output_valid = excluded.output_valid,
	completeness = excluded.completeness,
	processing_time = excluded.processing_time,
	cost = excluded.cost,
	evaluated_at = excluded.evaluated_at`

func (s *SQLiteStore) SaveEvaluations(ctx context.Context, runID string, evals []model.Evaluation) error {
	if len(evals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteInsertEvaluation)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert evaluation")
	}
	defer stmt.Close()

	for _, e := range evals {
		scoresJSON, err := json.Marshal(e.Scores)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal scores for %s/%s", e.StrategyID, e.ReceiptID)
		}
		_, err = stmt.ExecContext(ctx,
			runID, e.StrategyID, e.ReceiptID, string(scoresJSON),
			e.Overall, e.MathValid, e.NoGroundTruth, e.OutputValid,
			e.Completeness, e.ProcessingTime, e.Cost, e.EvaluatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert evaluation %s/%s", e.StrategyID, e.ReceiptID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit evaluations")
}

func (s *SQLiteStore) ListEvaluations(ctx context.Context, runID string) ([]model.Evaluation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy_id, receipt_id, scores, overall, math_valid, no_ground_truth, output_valid, completeness, processing_time, cost, evaluated_at
		 FROM evaluations WHERE run_id = ? ORDER BY strategy_id, receipt_id`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list evaluations")
	}
	defer rows.Close()

	var evals []model.Evaluation
	for rows.Next() {
		var e model.Evaluation
		var scoresJSON string
		if err := rows.Scan(
			&e.StrategyID, &e.ReceiptID, &scoresJSON,
			&e.Overall, &e.MathValid, &e.NoGroundTruth, &e.OutputValid,
			&e.Completeness, &e.ProcessingTime, &e.Cost, &e.EvaluatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evaluation")
		}
		if err := json.Unmarshal([]byte(scoresJSON), &e.Scores); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal scores")
		}
		evals = append(evals, e)
	}
	return evals, eris.Wrap(rows.Err(), "sqlite: list evaluations iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable, runID string) (*model.EvalRun, error) {
	var r model.EvalRun
	var strategiesJSON string

	err := row.Scan(&r.ID, &r.Label, &r.Status, &strategiesJSON, &r.Receipts, &r.Evaluations, &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(strategiesJSON), &r.Strategies); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal strategies")
	}
	return &r, nil
}
