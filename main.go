package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paper-trading-bot/config"
	"paper-trading-bot/internal/ai/llm"
	"paper-trading-bot/internal/api"
	"paper-trading-bot/internal/arbiter"
	"paper-trading-bot/internal/bot"
	"paper-trading-bot/internal/database"
	"paper-trading-bot/internal/events"
	"paper-trading-bot/internal/logging"
	"paper-trading-bot/internal/market"
	"paper-trading-bot/internal/metrics"
	"paper-trading-bot/internal/paper"
	"paper-trading-bot/internal/risk"
	"paper-trading-bot/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logging.Setup(cfg.LoggingConfig.Level, cfg.LoggingConfig.Pretty)
	log := logging.Component("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()

	collector := metrics.NewCollector()
	collector.Attach(bus)

	provider := market.ProviderFromConfig(ctx,
		cfg.MarketConfig.WebsocketURL, cfg.MarketConfig.RestURL,
		cfg.TradingConfig.Symbols,
		time.Duration(cfg.MarketConfig.StaleAfterMs)*time.Millisecond,
		cfg.MarketConfig.MockMode)
	if cfg.MarketConfig.MockMode {
		log.Warn().Msg("running with simulated market data")
	}

	ledger := risk.NewLedger(cfg.TradingConfig.InitialCapital, risk.Limits{
		MaxDrawdownPct:      cfg.RiskConfig.MaxDrawdownPct,
		MaxDailyLossPct:     cfg.RiskConfig.MaxDailyLossPct,
		MaxDailyTrades:      cfg.RiskConfig.MaxDailyTrades,
		MaxPositionSizePct:  cfg.RiskConfig.MaxPositionSizePct,
		MaxPortfolioRiskPct: cfg.RiskConfig.MaxPortfolioRiskPct,
		LotStep:             cfg.TradingConfig.LotStep,
		FeeRate:             cfg.ExecutionConfig.FeeRate,
	}, bus)

	executor := paper.NewExecutor(provider, ledger, bus,
		cfg.ExecutionConfig.MaxSpreadPct, cfg.ExecutionConfig.SlippagePct)

	arb := buildArbiter(cfg, bus)

	sink, cleanup, err := buildSink(ctx, cfg, bus, ledger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := bot.New(bot.Config{
		Symbols:         cfg.TradingConfig.Symbols,
		SignalInterval:  time.Duration(cfg.TradingConfig.SignalIntervalSeconds) * time.Second,
		MonitorInterval: time.Duration(cfg.TradingConfig.MonitorIntervalSeconds) * time.Second,
		PriceTimeout:    time.Duration(cfg.MarketConfig.PriceTimeoutSecs) * time.Second,
		KlineInterval:   cfg.MarketConfig.KlineInterval,
		KlineLimit:      cfg.MarketConfig.KlineLimit,
		SlippagePct:     cfg.ExecutionConfig.SlippagePct,
	}, provider, arb, executor, ledger, sink, bus)

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig.Host, cfg.ServerConfig.Port,
			cfg.ServerConfig.AllowedOrigins, ledger, engine)
		server.Start()
	}

	// Keep the capital gauge in step with closes. The open-position gauge
	// tracks open/close events inside the collector itself.
	bus.Subscribe(events.EventPositionClosed, func(events.Event) {
		collector.SetCapital(ledger.Snapshot().Capital)
	})
	collector.SetCapital(ledger.Snapshot().Capital)
	collector.SetOpenPositions(len(ledger.OpenPositions()))

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	engine.Wait()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}
	return nil
}

func buildArbiter(cfg *config.Config, bus *events.EventBus) *arbiter.Arbiter {
	log := logging.Component("main")

	var ai strategy.SignalSource
	var meta arbiter.Approver
	if cfg.AIConfig.Enabled {
		client := llm.NewClient(cfg.AIConfig.APIKey, cfg.AIConfig.BaseURL,
			cfg.AIConfig.Model, time.Duration(cfg.AIConfig.TimeoutSeconds)*time.Second)
		ai = llm.NewGenerator(client, cfg.AIConfig.MinConfidence)
		meta = llm.NewMetaValidator(client, cfg.AIConfig.MetaCheckEnabled)
		if cfg.AIConfig.APIKey == "" {
			log.Warn().Msg("ai enabled without api key, will run on rule strategies")
		}
	}

	// Priority order: ties go to the earlier strategy.
	var rules []strategy.SignalSource
	if cfg.StrategyConfig.Momentum.Enabled {
		rules = append(rules, &strategy.MomentumRule{MinConfidence: cfg.StrategyConfig.Momentum.MinConfidence})
	}
	if cfg.StrategyConfig.MeanReversion.Enabled {
		rules = append(rules, &strategy.MeanReversionRule{MinConfidence: cfg.StrategyConfig.MeanReversion.MinConfidence})
	}
	if cfg.StrategyConfig.Breakout.Enabled {
		rules = append(rules, &strategy.BreakoutRule{MinConfidence: cfg.StrategyConfig.Breakout.MinConfidence})
	}
	if cfg.StrategyConfig.TrendFollowing.Enabled {
		rules = append(rules, &strategy.TrendFollowingRule{MinConfidence: cfg.StrategyConfig.TrendFollowing.MinConfidence})
	}

	return arbiter.New(ai, cfg.AIConfig.MinConfidence, rules, meta, bus)
}

// buildSink picks Postgres when configured, otherwise a local JSON store.
// Redis, when reachable, mirrors the risk state for external readers.
func buildSink(ctx context.Context, cfg *config.Config, bus *events.EventBus, ledger *risk.Ledger) (bot.PersistenceSink, func(), error) {
	log := logging.Component("main")
	cleanup := func() {}

	var sink bot.PersistenceSink
	if cfg.DatabaseConfig.Enabled {
		db, err := database.Connect(ctx,
			cfg.DatabaseConfig.Host, cfg.DatabaseConfig.Port,
			cfg.DatabaseConfig.User, cfg.DatabaseConfig.Password,
			cfg.DatabaseConfig.Database, cfg.DatabaseConfig.SSLMode)
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting database: %w", err)
		}
		sink = database.NewRepository(db)
		cleanup = db.Close
	} else {
		fileSink, err := database.NewFileSink("data")
		if err != nil {
			return nil, cleanup, fmt.Errorf("creating file sink: %w", err)
		}
		sink = fileSink
	}

	if cfg.RedisConfig.Enabled {
		cache, err := database.NewStateCache(ctx, cfg.RedisConfig.Address,
			cfg.RedisConfig.Password, cfg.RedisConfig.DB, cfg.RedisConfig.PoolSize)
		if err != nil {
			// Cache is an optimization; run without it.
			log.Warn().Err(err).Msg("redis unavailable, continuing without state cache")
		} else {
			prev := cleanup
			cleanup = func() {
				cache.Close()
				prev()
			}
			for _, typ := range []events.EventType{
				events.EventPositionOpened, events.EventPositionClosed,
				events.EventRiskHalted, events.EventRiskResumed, events.EventDailyReset,
			} {
				bus.Subscribe(typ, func(events.Event) {
					pubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					cache.PublishState(pubCtx, ledger.Snapshot())
				})
			}
		}
	}

	return sink, cleanup, nil
}
