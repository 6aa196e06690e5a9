package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/yavzali/catalogwatch/internal/classify"
	"github.com/yavzali/catalogwatch/internal/match"
	"github.com/yavzali/catalogwatch/internal/pricewatch"
	"github.com/yavzali/catalogwatch/internal/scan"
	"github.com/yavzali/catalogwatch/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "catalogwatch.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func matchConfig() match.Config {
	mc := match.DefaultConfig()
	if cfg.Match.PriceToleranceAbs > 0 {
		mc.PriceToleranceAbs = cfg.Match.PriceToleranceAbs
	}
	if cfg.Match.PriceTolerancePct > 0 {
		mc.PriceTolerancePct = cfg.Match.PriceTolerancePct
	}
	if cfg.Match.CandidateBandPct > 0 {
		mc.CandidateBandPct = cfg.Match.CandidateBandPct
	}
	return mc
}

func classifyConfig() classify.Config {
	cc := classify.DefaultConfig()
	if cfg.Classify.UpperThreshold > 0 {
		cc.UpperThreshold = cfg.Classify.UpperThreshold
	}
	if cfg.Classify.LowerThreshold > 0 {
		cc.LowerThreshold = cfg.Classify.LowerThreshold
	}
	if cfg.Classify.BootstrapMinSample > 0 {
		cc.BootstrapMinSamples = cfg.Classify.BootstrapMinSample
	}
	return cc
}

func priceConfig() pricewatch.Config {
	pc := pricewatch.DefaultConfig()
	if cfg.Price.MinDelta > 0 {
		pc.MinDelta = cfg.Price.MinDelta
	}
	if cfg.Price.HighPriorityDelta > 0 {
		pc.HighPriorityDelta = cfg.Price.HighPriorityDelta
	}
	return pc
}

func initRunner(st store.Store) *scan.Runner {
	return scan.NewRunner(st, matchConfig(), classifyConfig(), priceConfig())
}
