// Package config defines all configuration for the paper-trading bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// overrides via POLY_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Signal  SignalConfig  `mapstructure:"signal"`
	Sizing  SizingConfig  `mapstructure:"sizing"`
	Risk    RiskConfig    `mapstructure:"risk"`
	Exec    ExecConfig    `mapstructure:"exec"`
	Journal JournalConfig `mapstructure:"journal"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig holds the public Polymarket endpoints. No credentials: the bot
// only reads market data and simulates fills.
type APIConfig struct {
	GammaBaseURL string `mapstructure:"gamma_base_url"`
	CLOBBaseURL  string `mapstructure:"clob_base_url"`
	WSMarketURL  string `mapstructure:"ws_market_url"`
}

// FeedConfig controls market discovery and snapshot polling.
//
//   - PollInterval: scheduler tick; the whole pipeline runs once per tick.
//   - FetchTimeout: hard deadline for one market's fetch; a slow market
//     is skipped for the tick rather than stalling the loop.
//   - MinVolume24h: ignore markets below this trailing volume.
//   - MaxEndDateDays: ignore markets resolving further out than this.
//   - MaxMarkets: cap on how many markets are tracked per scan.
//   - StreamEnabled: also subscribe to the market WebSocket channel for
//     mid-price updates between polls.
type FeedConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	MinVolume24h   float64       `mapstructure:"min_volume_24h"`
	MaxEndDateDays int           `mapstructure:"max_end_date_days"`
	MaxMarkets     int           `mapstructure:"max_markets"`
	StreamEnabled  bool          `mapstructure:"stream_enabled"`
}

// SignalConfig tunes the mean-reversion signal generator.
//
//   - WindowSize: rolling snapshot window per market (FIFO eviction).
//   - MinHistory: observations required before any signal is emitted.
//   - ZWeak/ZModerate/ZStrong: |z-score| thresholds per strength tier.
//   - BandLow/BandHigh: tradeable price band; prices at or outside the
//     bounds are near-certain outcomes and are never traded.
//   - MinHorizonHours: skip markets this close to resolution (the
//     overconfidence bias the strategy exploits disappears near the end).
//   - StopStddevMult: stop distance as a multiple of trailing stddev,
//     placed beyond entry on the adverse side. Wider than the target by
//     construction; the asymmetric risk/reward is intentional.
type SignalConfig struct {
	WindowSize      int     `mapstructure:"window_size"`
	MinHistory      int     `mapstructure:"min_history"`
	ZWeak           float64 `mapstructure:"z_weak"`
	ZModerate       float64 `mapstructure:"z_moderate"`
	ZStrong         float64 `mapstructure:"z_strong"`
	BandLow         float64 `mapstructure:"band_low"`
	BandHigh        float64 `mapstructure:"band_high"`
	MinHorizonHours int     `mapstructure:"min_horizon_hours"`
	StopStddevMult  float64 `mapstructure:"stop_stddev_mult"`
}

// SizingConfig tunes the fractional-Kelly position sizer.
//
// The win-probability table maps signal strength to an estimated win rate.
// These are calibration constants, not derived truths; keep them
// configurable and revisit them as the journal accumulates outcomes.
type SizingConfig struct {
	KellyFraction   float64 `mapstructure:"kelly_fraction"`
	WinProbStrong   float64 `mapstructure:"win_prob_strong"`
	WinProbModerate float64 `mapstructure:"win_prob_moderate"`
	WinProbWeak     float64 `mapstructure:"win_prob_weak"`
	BankrollUSD     float64 `mapstructure:"bankroll_usd"`
	MinPositionUSD  float64 `mapstructure:"min_position_usd"`
}

// RiskConfig sets the hard limits enforced by the risk gate.
//
//   - MaxPositionUSD: per-position notional cap.
//   - MaxTotalExposureUSD: cap on summed open notional.
//   - MaxPositions: cap on concurrent open positions.
//   - MaxDrawdownPct: circuit breaker trips at this drawdown from peak.
//   - DrawdownResumePct: breaker resets only below this (hysteresis,
//     must be strictly less than MaxDrawdownPct to avoid flapping).
type RiskConfig struct {
	MaxPositionUSD      float64 `mapstructure:"max_position_usd"`
	MaxTotalExposureUSD float64 `mapstructure:"max_total_exposure_usd"`
	MaxPositions        int     `mapstructure:"max_positions"`
	MaxDrawdownPct      float64 `mapstructure:"max_drawdown_pct"`
	DrawdownResumePct   float64 `mapstructure:"drawdown_resume_pct"`
}

// ExecConfig tunes the paper execution simulator.
//
//   - SlippagePct: simulated fill slippage applied in the adverse
//     direction (buys pay up). Keeps paper results honest relative to
//     what live execution would achieve.
//   - ExitTieBreak: which exit wins when a single snapshot crosses both
//     target and stop: "target" (default) or "stop".
type ExecConfig struct {
	SlippagePct  float64 `mapstructure:"slippage_pct"`
	ExitTieBreak string  `mapstructure:"exit_tie_break"`
}

// JournalConfig sets where trade events are durably recorded.
// An empty path disables the journal (the bot still runs; decisions are
// logged but not persisted).
type JournalConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// StoreConfig sets where portfolio state is persisted across restarts.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides (POLY_ prefix,
// dots replaced by underscores: POLY_RISK_MAX_POSITION_USD etc).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("POLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if p := os.Getenv("POLY_JOURNAL_DB_PATH"); p != "" {
		cfg.Journal.DBPath = p
	}
	if p := os.Getenv("POLY_STORE_DATA_DIR"); p != "" {
		cfg.Store.DataDir = p
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges. Safety-relevant
// parameters (caps, fractions) have no silent defaults: an invalid value
// refuses startup rather than trading on a guess.
func (c *Config) Validate() error {
	if c.API.GammaBaseURL == "" {
		return fmt.Errorf("api.gamma_base_url is required")
	}
	if c.API.CLOBBaseURL == "" {
		return fmt.Errorf("api.clob_base_url is required")
	}
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("feed.poll_interval must be > 0")
	}
	if c.Feed.FetchTimeout <= 0 {
		return fmt.Errorf("feed.fetch_timeout must be > 0")
	}

	if c.Signal.WindowSize < 2 {
		return fmt.Errorf("signal.window_size must be >= 2")
	}
	if c.Signal.MinHistory < 2 || c.Signal.MinHistory > c.Signal.WindowSize {
		return fmt.Errorf("signal.min_history must be in [2, window_size]")
	}
	if !(c.Signal.ZWeak > 0 && c.Signal.ZWeak < c.Signal.ZModerate && c.Signal.ZModerate < c.Signal.ZStrong) {
		return fmt.Errorf("signal z thresholds must satisfy 0 < z_weak < z_moderate < z_strong")
	}
	if !(c.Signal.BandLow > 0 && c.Signal.BandLow < c.Signal.BandHigh && c.Signal.BandHigh < 1) {
		return fmt.Errorf("signal band must satisfy 0 < band_low < band_high < 1")
	}
	if c.Signal.StopStddevMult <= 0 {
		return fmt.Errorf("signal.stop_stddev_mult must be > 0")
	}

	if c.Sizing.KellyFraction <= 0 || c.Sizing.KellyFraction > 1 {
		return fmt.Errorf("sizing.kelly_fraction must be in (0, 1]")
	}
	for name, p := range map[string]float64{
		"win_prob_strong":   c.Sizing.WinProbStrong,
		"win_prob_moderate": c.Sizing.WinProbModerate,
		"win_prob_weak":     c.Sizing.WinProbWeak,
	} {
		if p <= 0 || p >= 1 {
			return fmt.Errorf("sizing.%s must be in (0, 1)", name)
		}
	}
	if c.Sizing.BankrollUSD <= 0 {
		return fmt.Errorf("sizing.bankroll_usd must be > 0")
	}

	if c.Risk.MaxPositionUSD <= 0 {
		return fmt.Errorf("risk.max_position_usd must be > 0")
	}
	if c.Risk.MaxTotalExposureUSD <= 0 {
		return fmt.Errorf("risk.max_total_exposure_usd must be > 0")
	}
	if c.Risk.MaxPositions <= 0 {
		return fmt.Errorf("risk.max_positions must be > 0")
	}
	if c.Risk.MaxDrawdownPct <= 0 || c.Risk.MaxDrawdownPct >= 100 {
		return fmt.Errorf("risk.max_drawdown_pct must be in (0, 100)")
	}
	if c.Risk.DrawdownResumePct < 0 || c.Risk.DrawdownResumePct >= c.Risk.MaxDrawdownPct {
		return fmt.Errorf("risk.drawdown_resume_pct must be in [0, max_drawdown_pct)")
	}

	if c.Exec.SlippagePct < 0 {
		return fmt.Errorf("exec.slippage_pct must be >= 0")
	}
	switch c.Exec.ExitTieBreak {
	case "", "target", "stop":
	default:
		return fmt.Errorf("exec.exit_tie_break must be \"target\" or \"stop\"")
	}

	return nil
}
