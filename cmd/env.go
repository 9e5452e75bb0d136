package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/esg-scorecard/internal/derive"
	"github.com/sells-group/esg-scorecard/internal/pipeline"
	"github.com/sells-group/esg-scorecard/internal/scorer"
	"github.com/sells-group/esg-scorecard/internal/store"
)

// env is the wired application a command runs against.
type env struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases the store.
func (e *env) Close() {
	_ = e.Store.Close()
}

func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "esg.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		// The embedded database is always brought up to date.
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	scoreCfg := scorer.ConfigFrom(cfg.Scoring, cfg.Retry)
	if err := scorer.ValidateConfig(scoreCfg); err != nil {
		_ = st.Close()
		return nil, err
	}

	engine := derive.NewEngine(st, cfg.Derivation.EmissionFactors)
	return &env{
		Store:    st,
		Pipeline: pipeline.New(st, engine, scorer.NewScorer(st, scoreCfg)),
	}, nil
}
