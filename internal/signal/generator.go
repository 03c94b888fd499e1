// Package signal implements the mean-reversion signal generator.
//
// The strategy rests on behavioral finance research (Berg & Rietz 2018):
// prediction-market prices overreact at intermediate horizons and revert
// toward their trailing average as the emotional move fades. The generator
// keeps a rolling window of mid prices per market and measures how far the
// latest observation sits from the trailing mean in standard deviations:
//
//	z = (mid − trailing_mean) / trailing_stddev
//
// A spike above the mean is faded by buying NO; a dip below is bought as
// YES. Signal strength tiers on |z| per the configured thresholds, the
// reversion target is the trailing mean, and the stop sits a configured
// multiple of the stddev beyond entry on the adverse side.
package signal

import (
	"log/slog"
	"math"
	"time"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/pkg/types"
)

// Generator maintains per-market rolling windows and emits signals.
// It is pure apart from the window updates: the same observation history
// always produces the same signal.
type Generator struct {
	cfg     config.SignalConfig
	windows map[string]*Window
	logger  *slog.Logger
}

// NewGenerator creates a signal generator.
func NewGenerator(cfg config.SignalConfig, logger *slog.Logger) *Generator {
	return &Generator{
		cfg:     cfg,
		windows: make(map[string]*Window),
		logger:  logger.With("component", "signal"),
	}
}

// Observe feeds one snapshot through the generator. The returned signal is
// nil when no detection fires: insufficient history, price inside the
// normal band, or z below the weak threshold are all ordinary no-signal
// outcomes, not errors. Malformed snapshots are dropped with a log line
// and never corrupt the window.
func (g *Generator) Observe(snap types.MarketSnapshot) *types.Signal {
	if err := snap.Validate(); err != nil {
		g.logger.Warn("dropping malformed snapshot",
			"market", snap.MarketID,
			"error", err,
		)
		return nil
	}

	w, ok := g.windows[snap.MarketID]
	if !ok {
		w = NewWindow(g.cfg.WindowSize)
		g.windows[snap.MarketID] = w
	}

	// Trailing stats exclude the observation being judged: the current
	// price is compared against the history that preceded it.
	history := w.Len()
	mean := w.Mean()
	stddev := w.Stddev()

	if !w.Add(snap) {
		g.logger.Debug("ignoring stale snapshot",
			"market", snap.MarketID,
			"timestamp", snap.Timestamp,
		)
		return nil
	}

	if history < g.cfg.MinHistory {
		return nil
	}
	if stddev == 0 {
		// Flat history carries no reversion information.
		return nil
	}

	z := (snap.MidPrice - mean) / stddev
	strength, ok := g.strengthFor(z)
	if !ok {
		return nil
	}

	if !g.inTradeableBand(snap) {
		return nil
	}

	var direction types.Direction
	var stop float64
	if z > 0 {
		// Price spiked above the mean: fade it by buying NO. The
		// adverse move for NO is the price running further up.
		direction = types.BuyNo
		stop = math.Min(snap.MidPrice+g.cfg.StopStddevMult*stddev, 1)
	} else {
		direction = types.BuyYes
		stop = math.Max(snap.MidPrice-g.cfg.StopStddevMult*stddev, 0)
	}

	sig := &types.Signal{
		MarketID:      snap.MarketID,
		Question:      snap.Question,
		DetectedAt:    snap.Timestamp,
		Direction:     direction,
		Strength:      strength,
		ZScore:        z,
		MispricingPct: (snap.MidPrice - mean) / mean * 100,
		EntryPrice:    snap.MidPrice,
		TargetPrice:   mean,
		StopPrice:     stop,
		HorizonDays:   snap.HorizonDays(snap.Timestamp),
	}

	g.logger.Info("signal detected",
		"market", sig.MarketID,
		"direction", sig.Direction,
		"strength", sig.Strength,
		"z", sig.ZScore,
		"entry", sig.EntryPrice,
		"target", sig.TargetPrice,
		"stop", sig.StopPrice,
	)

	return sig
}

// strengthFor maps |z| to a strength tier. Strength is monotonic in |z|
// by construction of the ordered thresholds.
func (g *Generator) strengthFor(z float64) (types.SignalStrength, bool) {
	abs := math.Abs(z)
	switch {
	case abs >= g.cfg.ZStrong:
		return types.Strong, true
	case abs >= g.cfg.ZModerate:
		return types.Moderate, true
	case abs >= g.cfg.ZWeak:
		return types.Weak, true
	default:
		return "", false
	}
}

// inTradeableBand rejects near-certain prices and markets about to
// resolve. The reversion bias the strategy trades on is documented to
// vanish close to resolution, so those signals would be noise.
func (g *Generator) inTradeableBand(snap types.MarketSnapshot) bool {
	if snap.MidPrice <= g.cfg.BandLow || snap.MidPrice >= g.cfg.BandHigh {
		return false
	}
	if !snap.EndDate.IsZero() {
		horizon := snap.EndDate.Sub(snap.Timestamp)
		if horizon < time.Duration(g.cfg.MinHorizonHours)*time.Hour {
			return false
		}
	}
	return true
}

// WindowStats is a read-only view of one market's rolling window.
type WindowStats struct {
	MarketID string
	Len      int
	Mean     float64
	Stddev   float64
	Span     time.Duration
	LastMid  float64
	ZScore   float64
}

// Stats returns the current window statistics for a market, or false if
// the market has never been observed.
func (g *Generator) Stats(marketID string) (WindowStats, bool) {
	w, ok := g.windows[marketID]
	if !ok || w.Len() == 0 {
		return WindowStats{}, false
	}
	last, _ := w.Last()
	stats := WindowStats{
		MarketID: marketID,
		Len:      w.Len(),
		Mean:     w.Mean(),
		Stddev:   w.Stddev(),
		Span:     w.Span(),
		LastMid:  last.MidPrice,
	}
	if stats.Stddev > 0 {
		stats.ZScore = (stats.LastMid - stats.Mean) / stats.Stddev
	}
	return stats, true
}

// Reset drops the window for a market (used when a market leaves the
// tracked set so stale history never seeds a future signal).
func (g *Generator) Reset(marketID string) {
	delete(g.windows, marketID)
}
