package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/receipt-eval/internal/store"
)

// initStore opens the run store selected by config. Callers own Close.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "receipt-eval.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}
