// Package risk gates proposed orders against portfolio-level limits.
//
// The manager is the only component allowed to veto a trade for risk
// reasons. Every proposed order passes an ordered list of checks and the
// first failure wins:
//
//   - Duplicate guard:   one open position per (market, direction)
//   - Per-position cap:  clamps size to MaxPositionUSD
//   - Exposure cap:      total open exposure may not exceed MaxTotalExposureUSD
//   - Position count:    at most MaxPositions concurrent open positions
//   - Drawdown breaker:  rejects everything while drawdown is at or above
//     MaxDrawdownPct, resuming only once it falls below DrawdownResumePct
//
// The breaker resume threshold sits strictly below the trip threshold so
// the gate cannot flap open and shut around a single boundary.
package risk

import (
	"log/slog"
	"sync"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/pkg/types"
)

// PositionKey identifies one open position slot for the duplicate guard.
type PositionKey struct {
	MarketID  string
	Direction types.Direction
}

// PortfolioView is the read-only portfolio summary the manager evaluates
// against. The portfolio builds one per tick; the manager never mutates
// portfolio state.
type PortfolioView struct {
	Open             map[PositionKey]struct{}
	OpenCount        int
	TotalExposureUSD float64
	DrawdownPct      float64
}

// Verdict is the outcome of evaluating one proposed order. SizeUSD is
// the size the portfolio may actually open, which can be smaller than
// requested when the per-position cap clamps it. A clamped-but-allowed
// verdict carries ReasonPositionCap alongside Allowed so the journal can
// tell a trimmed open from a full one.
type Verdict struct {
	Allowed bool
	Reason  types.RejectReason
	SizeUSD float64
	Clamped bool
}

// Manager enforces portfolio limits and owns the drawdown breaker state.
type Manager struct {
	cfg    config.RiskConfig
	logger *slog.Logger

	mu      sync.Mutex
	tripped bool
}

// NewManager creates a risk manager with the breaker disengaged.
func NewManager(cfg config.RiskConfig, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger.With("component", "risk"),
	}
}

// Evaluate runs the ordered checks for one proposed order. Breaker state
// is refreshed from the view's drawdown before the checks run, so a
// recovery observed this tick reopens the gate this tick.
func (rm *Manager) Evaluate(order types.Order, view PortfolioView) Verdict {
	rm.updateBreaker(view.DrawdownPct)

	key := PositionKey{MarketID: order.MarketID, Direction: order.Direction}
	if _, dup := view.Open[key]; dup {
		return rm.reject(order, types.ReasonDuplicate)
	}

	size := order.SizeUSD
	clamped := false
	if size > rm.cfg.MaxPositionUSD {
		size = rm.cfg.MaxPositionUSD
		clamped = true
		rm.logger.Info("position size clamped",
			"market", order.MarketID,
			"requested", order.SizeUSD,
			"clamped_to", size,
		)
	}

	if view.TotalExposureUSD+size > rm.cfg.MaxTotalExposureUSD {
		return rm.reject(order, types.ReasonExposureCap)
	}
	if view.OpenCount >= rm.cfg.MaxPositions {
		return rm.reject(order, types.ReasonMaxPositions)
	}
	if rm.Tripped() {
		return rm.reject(order, types.ReasonDrawdown)
	}

	v := Verdict{Allowed: true, SizeUSD: size, Clamped: clamped}
	if clamped {
		v.Reason = types.ReasonPositionCap
	}
	return v
}

// Tripped reports whether the drawdown breaker is currently engaged.
func (rm *Manager) Tripped() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.tripped
}

func (rm *Manager) updateBreaker(drawdownPct float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	switch {
	case !rm.tripped && drawdownPct >= rm.cfg.MaxDrawdownPct:
		rm.tripped = true
		rm.logger.Warn("drawdown breaker tripped",
			"drawdown_pct", drawdownPct,
			"max_drawdown_pct", rm.cfg.MaxDrawdownPct,
		)
	case rm.tripped && drawdownPct < rm.cfg.DrawdownResumePct:
		rm.tripped = false
		rm.logger.Info("drawdown breaker reset",
			"drawdown_pct", drawdownPct,
			"resume_pct", rm.cfg.DrawdownResumePct,
		)
	}
}

func (rm *Manager) reject(order types.Order, reason types.RejectReason) Verdict {
	rm.logger.Info("order rejected",
		"market", order.MarketID,
		"direction", order.Direction,
		"size_usd", order.SizeUSD,
		"reason", reason,
	)
	return Verdict{Reason: reason}
}
