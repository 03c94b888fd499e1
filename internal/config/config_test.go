package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		API: APIConfig{
			GammaBaseURL: "https://gamma-api.polymarket.com",
			CLOBBaseURL:  "https://clob.polymarket.com",
		},
		Feed: FeedConfig{
			PollInterval: 5 * time.Minute,
			FetchTimeout: 15 * time.Second,
			MaxMarkets:   50,
		},
		Signal: SignalConfig{
			WindowSize:     20,
			MinHistory:     5,
			ZWeak:          1.0,
			ZModerate:      1.5,
			ZStrong:        2.5,
			BandLow:        0.02,
			BandHigh:       0.98,
			StopStddevMult: 3.0,
		},
		Sizing: SizingConfig{
			KellyFraction:   0.25,
			WinProbStrong:   0.65,
			WinProbModerate: 0.58,
			WinProbWeak:     0.52,
			BankrollUSD:     2000,
			MinPositionUSD:  10,
		},
		Risk: RiskConfig{
			MaxPositionUSD:      500,
			MaxTotalExposureUSD: 2000,
			MaxPositions:        10,
			MaxDrawdownPct:      25,
			DrawdownResumePct:   15,
		},
		Exec: ExecConfig{SlippagePct: 0.2, ExitTieBreak: "target"},
	}
}

func TestValidateOK(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing gamma url", func(c *Config) { c.API.GammaBaseURL = "" }},
		{"zero poll interval", func(c *Config) { c.Feed.PollInterval = 0 }},
		{"tiny window", func(c *Config) { c.Signal.WindowSize = 1 }},
		{"min history above window", func(c *Config) { c.Signal.MinHistory = 50 }},
		{"unordered z thresholds", func(c *Config) { c.Signal.ZModerate = 3.0 }},
		{"inverted band", func(c *Config) { c.Signal.BandLow = 0.99 }},
		{"kelly zero", func(c *Config) { c.Sizing.KellyFraction = 0 }},
		{"kelly above one", func(c *Config) { c.Sizing.KellyFraction = 1.5 }},
		{"win prob one", func(c *Config) { c.Sizing.WinProbStrong = 1.0 }},
		{"no bankroll", func(c *Config) { c.Sizing.BankrollUSD = 0 }},
		{"no position cap", func(c *Config) { c.Risk.MaxPositionUSD = 0 }},
		{"no exposure cap", func(c *Config) { c.Risk.MaxTotalExposureUSD = 0 }},
		{"resume above max", func(c *Config) { c.Risk.DrawdownResumePct = 30 }},
		{"resume equals max", func(c *Config) { c.Risk.DrawdownResumePct = 25 }},
		{"negative slippage", func(c *Config) { c.Exec.SlippagePct = -1 }},
		{"bad tie break", func(c *Config) { c.Exec.ExitTieBreak = "coinflip" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
api:
  gamma_base_url: "https://gamma-api.polymarket.com"
  clob_base_url: "https://clob.polymarket.com"
feed:
  poll_interval: 300s
  fetch_timeout: 15s
  max_markets: 25
signal:
  window_size: 20
  min_history: 5
  z_weak: 1.0
  z_moderate: 1.5
  z_strong: 2.5
  band_low: 0.02
  band_high: 0.98
  stop_stddev_mult: 3.0
sizing:
  kelly_fraction: 0.25
  win_prob_strong: 0.65
  win_prob_moderate: 0.58
  win_prob_weak: 0.52
  bankroll_usd: 2000
risk:
  max_position_usd: 500
  max_total_exposure_usd: 2000
  max_positions: 10
  max_drawdown_pct: 25
  drawdown_resume_pct: 15
exec:
  slippage_pct: 0.2
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.PollInterval != 300*time.Second {
		t.Errorf("poll_interval = %v, want 300s", cfg.Feed.PollInterval)
	}
	if cfg.Signal.ZStrong != 2.5 {
		t.Errorf("z_strong = %v, want 2.5", cfg.Signal.ZStrong)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
