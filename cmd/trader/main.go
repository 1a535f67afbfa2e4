// quarterbinary is an automated trading daemon for short-duration (15
// minute) binary prediction markets.
//
// Architecture:
//
//	main.go                  — entry point: loads config, wires every
//	                            collaborator, runs until SIGINT/SIGTERM
//	internal/discovery       — finds active markets for the configured assets
//	internal/feed            — polls quotes, optionally augmented by a
//	                            websocket top-of-book stream
//	internal/registry        — the live, store-reconciled strategy set
//	internal/position        — open-trade cache, cooldowns, spend window
//	internal/sizer           — fractional-Kelly stake sizing
//	internal/vault           — profit-protection bankroll supplement
//	internal/executor        — paper or live order placement
//	internal/engine          — the decision loop tying all of the above together
//	internal/store           — sqlite persistence for prices/strategies/trades
//
// quarterbinary watches every tracked market's quotes and, for each
// configured strategy, opens a position when the entry signal fires and
// closes it on take-profit or as the market nears resolution.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"quarterbinary/internal/clocklib"
	"quarterbinary/internal/config"
	"quarterbinary/internal/discovery"
	"quarterbinary/internal/engine"
	"quarterbinary/internal/executor"
	"quarterbinary/internal/feed"
	"quarterbinary/internal/position"
	"quarterbinary/internal/registry"
	"quarterbinary/internal/sizer"
	"quarterbinary/internal/store"
	"quarterbinary/internal/vault"
	"quarterbinary/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("TRADER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal runtime error", "error", err)
		os.Exit(2)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	reg, err := registry.Load(st, cfg.Strategies)
	if err != nil {
		logger.Error("failed to load strategy registry", "error", err)
		os.Exit(1)
	}

	pos := position.New(position.Config{
		CooldownDuration:    cfg.Bankroll.Risk.CooldownDuration(),
		SpendWindowDuration: cfg.Bankroll.Risk.SpendWindowDuration(),
		SpendCap:            cfg.Bankroll.Risk.SpendCap,
	}, st)
	if err := pos.Rehydrate(); err != nil {
		logger.Error("failed to rehydrate open positions", "error", err)
		os.Exit(1)
	}

	sz := sizer.New(sizer.Config{
		KellyFraction: cfg.Bankroll.KellyFraction,
		MinBetPct:     cfg.Bankroll.MinBetPct,
		MaxBetPct:     cfg.Bankroll.MaxBetPct,
		FixedStake:    cfg.Bankroll.FixedStake,
	})

	bankroll := vault.New(cfg.Bankroll.Initial, vault.Config{
		Enabled:                    cfg.Bankroll.Vault.Enabled,
		DepositRate:                cfg.Bankroll.Vault.DepositRate,
		EmergencyWithdrawThreshold: cfg.Bankroll.Vault.EmergencyWithdrawThreshold,
		SnapshotPath:               cfg.Bankroll.Vault.SnapshotPath,
	}, logger)

	exec, isPaper, err := buildExecutor(cfg, logger)
	if err != nil {
		logger.Error("failed to build order executor", "error", err)
		os.Exit(1)
	}

	disc := discovery.New(cfg.Venue.GammaBaseURL, cfg.Collection.Assets, cfg.Collection.MarketType, logger)
	feeder := feed.New(cfg.Venue.CLOBBaseURL, cfg.Collection.PollInterval(), disc, st, logger)
	if cfg.Venue.WSMarketURL != "" {
		book := feed.NewBookStream(cfg.Venue.WSMarketURL, logger)
		feeder = feeder.WithBookStream(book)
	}

	eng := engine.New(engine.Config{
		ResolutionExitThreshold: cfg.Exits.ResolutionExitThreshold(),
		IsPaper:                 isPaper,
	}, clocklib.System{}, reg, pos, sz, exec, feeder, logger).WithBankroll(bankroll)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		feeder.Run(ctx)
	}()

	engErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx, feeder.Updates()); err != nil {
			engErr <- err
		}
	}()

	logger.Info("quarterbinary started",
		"mode", cfg.Mode, "assets", cfg.Collection.Assets, "strategies", len(cfg.Strategies),
		"bankroll", cfg.Bankroll.Initial)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case runErr = <-engErr:
		logger.Error("engine stopped on store failure", "error", runErr)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timed out waiting for workers")
	}

	return runErr
}

// buildExecutor selects the paper or live OrderExecutor per cfg.Mode.
// Credential validation for live mode already happened in Config.Validate.
func buildExecutor(cfg *config.Config, logger *slog.Logger) (executor.OrderExecutor, bool, error) {
	if cfg.Mode == types.ModePaper {
		return executor.NewPaper(logger), true, nil
	}

	live, err := executor.NewLive(cfg.Venue.CLOBBaseURL, cfg.PolyPrivateKey, logger)
	if err != nil {
		return nil, false, err
	}
	return live, false, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
