package main

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/grocerpal/salewatch/internal/adapter"
	"github.com/grocerpal/salewatch/internal/cache"
	"github.com/grocerpal/salewatch/internal/checker"
	"github.com/grocerpal/salewatch/internal/match"
	"github.com/grocerpal/salewatch/internal/predict"
	"github.com/grocerpal/salewatch/internal/resilience"
	"github.com/grocerpal/salewatch/internal/store"
)

// appEnv holds the initialized store and services shared by the check,
// predict, history, favorites and serve commands.
type appEnv struct {
	Store     store.Store
	Cache     *cache.ResultCache
	Checker   *checker.Service
	Predictor *predict.Predictor
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store: postgres driver requires store.database_url")
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.Path)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, retailer adapters and services. Callers
// should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var engineOpts []resilience.EngineOption
	if cfg.Retry.RatePerSec > 0 {
		engineOpts = append(engineOpts, resilience.WithLimiter(rate.NewLimiter(rate.Limit(cfg.Retry.RatePerSec), 1)))
	}
	engine := resilience.NewEngine(resilience.HTTPConfig{
		MaxRetries:    cfg.Retry.MaxRetries,
		Timeout:       cfg.Retry.Timeout(),
		BackoffFactor: cfg.Retry.BackoffFactor,
	}, engineOpts...)

	// Coles has no scraping fallback yet; its storefront renders search
	// results through a client-side app the tile selectors don't cover.
	retailers := []checker.Retailer{
		{API: adapter.NewWoolworths(engine), Fallback: adapter.NewWoolworthsFallback(cfg.Scrape)},
		{API: adapter.NewColes(engine)},
	}

	resultCache := cache.New(cfg.Cache)
	svc := checker.New(checker.Options{
		Retailers:       retailers,
		Matcher:         match.New(cfg.Match),
		Cache:           resultCache,
		Store:           st,
		Checker:         cfg.Checker,
		Circuit:         cfg.Circuit,
		MaxAlternatives: cfg.Match.MaxAlternatives,
		ScrapeEnabled:   cfg.Scrape.Enabled,
	})

	return &appEnv{
		Store:     st,
		Cache:     resultCache,
		Checker:   svc,
		Predictor: predict.New(),
	}, nil
}
