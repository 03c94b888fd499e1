// Polymarket Mean Reversion — a paper-trading bot that fades emotional
// price spikes on Polymarket binary prediction markets.
//
// Architecture:
//
//	main.go              — entry point: subcommands, config, signal handling
//	engine/engine.go     — tick pipeline: feed → signal → sizing → risk → portfolio
//	signal/generator.go  — z-score detection against a rolling mid-price window
//	sizing/kelly.go      — fractional-Kelly position sizing from signal strength
//	risk/manager.go      — ordered limit checks + drawdown circuit breaker
//	portfolio/           — paper execution with slippage, position lifecycle, equity
//	feed/client.go       — Gamma API polling, market filtering, snapshot assembly
//	feed/stream.go       — optional WebSocket mid updates between polls
//	journal/journal.go   — SQLite record of signals, positions, and events
//	store/store.go       — JSON file persistence for portfolio state (survives restarts)
//	metrics/metrics.go   — Prometheus counters/gauges + /metrics endpoint
//
// How it trades (on paper):
//
//	Prediction market prices overreact to news and revert toward their
//	trailing mean. The bot watches each market's mid price, measures how
//	far the latest print sits from the trailing mean in standard
//	deviations, and fades large moves: buying NO into spikes, YES into
//	dips. Position size follows fractional Kelly; a risk gate caps
//	exposure and halts trading on deep drawdowns. All fills are
//	simulated against live prices — no orders are ever placed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"polymarket-meanrev/internal/backtest"
	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/internal/engine"
	"polymarket-meanrev/internal/feed"
	"polymarket-meanrev/internal/journal"
	"polymarket-meanrev/internal/metrics"
	"polymarket-meanrev/internal/portfolio"
	"polymarket-meanrev/internal/risk"
	"polymarket-meanrev/internal/signal"
	"polymarket-meanrev/internal/sizing"
	"polymarket-meanrev/internal/store"
)

func main() {
	// .env is optional; real config comes from YAML + POLY_* overrides.
	_ = godotenv.Load()

	args := os.Args[1:]
	command := "run"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		command = args[0]
		args = args[1:]
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath(), "path to config file")
	dataPath := fs.String("data", "", "price history CSV (backtest)")
	fs.Parse(args)

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		err = runBot(ctx, cfg, logger)
	case "scan":
		err = runScan(ctx, cfg, logger)
	case "analyze":
		if fs.NArg() < 1 {
			slog.Error("usage: bot analyze <market_id>")
			os.Exit(1)
		}
		err = runAnalyze(ctx, cfg, fs.Arg(0), logger)
	case "backtest":
		if *dataPath == "" {
			slog.Error("usage: bot backtest --data <file>")
			os.Exit(1)
		}
		err = runBacktest(ctx, cfg, *dataPath, logger)
	default:
		slog.Error("unknown command", "command", command)
		os.Exit(1)
	}

	if err != nil && ctx.Err() == nil {
		logger.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

// runBot starts the long-running scan loop with full persistence.
func runBot(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	jnl, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	if jnl != nil {
		defer jnl.Close()
	}

	pf := portfolio.NewPortfolio(cfg.Exec, cfg.Sizing.BankrollUSD, recorderOrNil(jnl), logger)

	var st *store.Store
	if cfg.Store.DataDir != "" {
		st, err = store.Open(cfg.Store.DataDir)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		saved, err := st.Load()
		if err != nil {
			return fmt.Errorf("load state: %w", err)
		}
		if saved != nil {
			if err := pf.Restore(*saved); err != nil {
				return fmt.Errorf("restore portfolio: %w", err)
			}
		}
	}

	if cfg.Metrics.Enabled {
		srv := metrics.Serve(cfg.Metrics.Addr)
		defer srv.Close()
		logger.Info("metrics endpoint started", "addr", cfg.Metrics.Addr)
	}

	opts := engine.Options{Store: st}
	if jnl != nil {
		opts.Sink = jnl
	}

	if cfg.Feed.StreamEnabled {
		stream := feed.NewStream(cfg.API.WSMarketURL, logger)
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("stream terminated", "error", err)
			}
		}()
		defer stream.Close()
		opts.Stream = stream
		opts.StreamCh = stream.Snapshots()
	}

	eng := engine.New(
		cfg,
		feed.NewClient(cfg.API, cfg.Feed, logger),
		signal.NewGenerator(cfg.Signal, logger),
		sizing.NewSizer(cfg.Sizing, logger),
		risk.NewManager(cfg.Risk, logger),
		pf,
		opts,
		logger,
	)

	logger.Info("mean reversion bot started",
		"poll_interval", cfg.Feed.PollInterval,
		"bankroll_usd", cfg.Sizing.BankrollUSD,
		"max_positions", cfg.Risk.MaxPositions,
		"stream", cfg.Feed.StreamEnabled,
	)

	err = eng.Run(ctx)
	printJSON(pf.Performance())
	if ctx.Err() != nil {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}

// runScan does one discovery pass and prints the tracked markets.
func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	client := feed.NewClient(cfg.API, cfg.Feed, logger)
	snaps, err := client.FetchSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	fmt.Printf("%-14s %-8s %-12s %-12s %s\n", "MARKET", "MID", "VOLUME_24H", "ENDS", "QUESTION")
	for _, s := range snaps {
		ends := "-"
		if !s.EndDate.IsZero() {
			ends = s.EndDate.Format("2006-01-02")
		}
		fmt.Printf("%-14s %-8.3f %-12.0f %-12s %s\n", s.MarketID, s.MidPrice, s.Volume24h, ends, s.Question)
	}
	logger.Info("scan complete", "markets", len(snaps))
	return nil
}

// runAnalyze prints the live snapshot and journal history for one market.
func runAnalyze(ctx context.Context, cfg *config.Config, marketID string, logger *slog.Logger) error {
	client := feed.NewClient(cfg.API, cfg.Feed, logger)
	snap, err := client.FetchMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	printJSON(snap)

	jnl, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	if jnl == nil {
		return nil
	}
	defer jnl.Close()

	positions, err := jnl.Positions(marketID)
	if err != nil {
		return fmt.Errorf("journal history: %w", err)
	}
	if len(positions) > 0 {
		printJSON(positions)
	}
	return nil
}

// runBacktest replays a CSV through the pipeline and prints the report.
func runBacktest(ctx context.Context, cfg *config.Config, dataPath string, logger *slog.Logger) error {
	jnl, err := openJournal(cfg, logger)
	if err != nil {
		return err
	}
	var sink engine.EventSink
	if jnl != nil {
		sink = jnl
		defer jnl.Close()
	}

	res, err := backtest.Run(ctx, cfg, dataPath, sink, logger)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	logger.Info("backtest complete",
		"ticks", res.Ticks,
		"snapshots", res.Snapshots,
		"trades", res.Report.TotalTrades,
	)
	printJSON(res.Report)
	return nil
}

func openJournal(cfg *config.Config, logger *slog.Logger) (*journal.Journal, error) {
	if cfg.Journal.DBPath == "" {
		return nil, nil
	}
	jnl, err := journal.Open(cfg.Journal.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return jnl, nil
}

// recorderOrNil avoids wrapping a nil *Journal in a non-nil interface.
func recorderOrNil(jnl *journal.Journal) portfolio.Recorder {
	if jnl == nil {
		return nil
	}
	return jnl
}

func defaultConfigPath() string {
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
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

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("encode output", "error", err)
		return
	}
	fmt.Println(string(out))
}
