// Package portfolio owns all simulated position and portfolio state.
// It is the only writer of that state: other components receive read-only
// views and propose orders, and the portfolio alone opens, marks, and
// closes positions. Fills are simulated with adverse slippage so paper
// results do not flatter what live execution would achieve.
package portfolio

import (
	"fmt"
	"log/slog"
	"time"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/internal/risk"
	"polymarket-meanrev/pkg/types"
)

// Recorder receives position lifecycle events. Only open and close are
// recorded; per-tick marks are not, to keep the journal bounded. A nil
// Recorder disables recording.
type Recorder interface {
	RecordOpen(p *Position)
	RecordClose(p *Position)
}

// Portfolio simulates execution and tracks equity. It is not safe for
// concurrent use; the engine drives it from a single tick loop.
type Portfolio struct {
	cfg      config.ExecConfig
	bankroll float64
	logger   *slog.Logger
	rec      Recorder

	seq       int
	positions map[string]*Position
	openByKey map[risk.PositionKey]string
	closed    []*Position

	realized       float64
	peakEquity     float64
	maxDrawdownPct float64
}

// NewPortfolio creates an empty portfolio seeded with the configured
// bankroll. rec may be nil.
func NewPortfolio(cfg config.ExecConfig, bankrollUSD float64, rec Recorder, logger *slog.Logger) *Portfolio {
	return &Portfolio{
		cfg:        cfg,
		bankroll:   bankrollUSD,
		logger:     logger.With("component", "portfolio"),
		rec:        rec,
		positions:  make(map[string]*Position),
		openByKey:  make(map[risk.PositionKey]string),
		peakEquity: bankrollUSD,
	}
}

// slip converts the configured slippage percentage to a fraction.
func (pf *Portfolio) slip() float64 { return pf.cfg.SlippagePct / 100 }

// fillPrice applies adverse slippage to the entry mid. A YES buyer pays
// up; a NO buyer suffers the mid moving down, which raises the NO cost.
func (pf *Portfolio) fillPrice(direction types.Direction, entryMid float64) float64 {
	var fill float64
	if direction == types.BuyNo {
		fill = entryMid * (1 - pf.slip())
	} else {
		fill = entryMid * (1 + pf.slip())
	}
	return clamp01(fill)
}

// exitPrice applies adverse slippage when unwinding at a given mid.
func (pf *Portfolio) exitPrice(direction types.Direction, mid float64) float64 {
	var exit float64
	if direction == types.BuyNo {
		exit = mid * (1 + pf.slip())
	} else {
		exit = mid * (1 - pf.slip())
	}
	return clamp01(exit)
}

// Open fills an approved order and creates an OPEN position. sizeUSD is
// the risk-approved size, which may be smaller than the order asked for.
// The position passes through PENDING only while the fill is computed.
func (pf *Portfolio) Open(order types.Order, sizeUSD float64) *Position {
	pf.seq++
	p := &Position{
		ID:          fmt.Sprintf("pos-%06d", pf.seq),
		MarketID:    order.MarketID,
		Question:    order.Question,
		Direction:   order.Direction,
		Status:      types.PositionPending,
		SizeUSD:     sizeUSD,
		EntryMid:    order.Entry,
		TargetPrice: order.Target,
		StopPrice:   order.Stop,
		OpenedAt:    order.CreatedAt,
	}
	p.Strength = order.Signal.Strength
	p.ZScore = order.Signal.ZScore

	p.FillPrice = pf.fillPrice(p.Direction, p.EntryMid)
	p.Shares = sizeUSD / p.sideCost(p.FillPrice)
	p.CurrentPrice = p.FillPrice
	p.Status = types.PositionOpen

	pf.positions[p.ID] = p
	pf.openByKey[risk.PositionKey{MarketID: p.MarketID, Direction: p.Direction}] = p.ID
	pf.updatePeak()

	pf.logger.Info("position opened",
		"id", p.ID,
		"market", p.MarketID,
		"direction", p.Direction,
		"size_usd", p.SizeUSD,
		"entry_mid", p.EntryMid,
		"fill", p.FillPrice,
		"target", p.TargetPrice,
		"stop", p.StopPrice,
	)
	if pf.rec != nil {
		pf.rec.RecordOpen(p)
	}
	return p
}

// OnSnapshot marks every open position on the snapshot's market and
// closes those whose target or stop has been crossed. When one price
// jump crosses both levels, the configured tie-break decides which
// fires; the default prefers the target since reversion to it is the
// trade's intended outcome. Returns the positions closed by this update.
func (pf *Portfolio) OnSnapshot(snap types.MarketSnapshot) []*Position {
	var closed []*Position
	for _, p := range pf.positions {
		if !p.IsOpen() || p.MarketID != snap.MarketID {
			continue
		}
		p.CurrentPrice = snap.MidPrice
		p.UnrealizedPnL = p.pnlAt(snap.MidPrice)

		target := p.targetHit(snap.MidPrice)
		stop := p.stopHit(snap.MidPrice)
		if pf.cfg.ExitTieBreak == "stop" && stop {
			target = false
		}

		switch {
		case target:
			pf.close(p, types.PositionClosed, snap.MidPrice, snap.Timestamp)
			closed = append(closed, p)
		case stop:
			pf.close(p, types.PositionStopped, snap.MidPrice, snap.Timestamp)
			closed = append(closed, p)
		}
	}
	pf.updatePeak()
	return closed
}

// Close closes a position by ID at the given mid. Closing a position
// that is already closed, or an unknown ID, is a no-op so duplicate
// close signals from overlapping checks stay harmless.
func (pf *Portfolio) Close(positionID string, status types.PositionStatus, mid float64, at time.Time) *Position {
	p, ok := pf.positions[positionID]
	if !ok || !p.IsOpen() {
		return nil
	}
	pf.close(p, status, mid, at)
	pf.updatePeak()
	return p
}

func (pf *Portfolio) close(p *Position, status types.PositionStatus, mid float64, at time.Time) {
	exit := pf.exitPrice(p.Direction, mid)
	p.ExitPrice = exit
	p.RealizedPnL = p.pnlAt(exit)
	p.UnrealizedPnL = 0
	p.CurrentPrice = mid
	p.Status = status
	p.ClosedAt = at

	pf.realized += p.RealizedPnL
	delete(pf.openByKey, risk.PositionKey{MarketID: p.MarketID, Direction: p.Direction})
	pf.closed = append(pf.closed, p)

	pf.logger.Info("position closed",
		"id", p.ID,
		"market", p.MarketID,
		"status", p.Status,
		"exit", exit,
		"pnl", p.RealizedPnL,
	)
	if pf.rec != nil {
		pf.rec.RecordClose(p)
	}
}

// Equity is the bankroll plus realized and unrealized PnL.
func (pf *Portfolio) Equity() float64 {
	eq := pf.bankroll + pf.realized
	for _, p := range pf.positions {
		if p.IsOpen() {
			eq += p.UnrealizedPnL
		}
	}
	return eq
}

// ExposureUSD is the cost basis of all open positions.
func (pf *Portfolio) ExposureUSD() float64 {
	var sum float64
	for _, p := range pf.positions {
		if p.IsOpen() {
			sum += p.SizeUSD
		}
	}
	return sum
}

// DrawdownPct is the current decline from peak equity, in percent.
func (pf *Portfolio) DrawdownPct() float64 {
	if pf.peakEquity <= 0 {
		return 0
	}
	dd := (pf.peakEquity - pf.Equity()) / pf.peakEquity * 100
	if dd < 0 {
		return 0
	}
	return dd
}

func (pf *Portfolio) updatePeak() {
	if eq := pf.Equity(); eq > pf.peakEquity {
		pf.peakEquity = eq
	}
	if dd := pf.DrawdownPct(); dd > pf.maxDrawdownPct {
		pf.maxDrawdownPct = dd
	}
}

// View builds the read-only summary the risk manager evaluates against.
func (pf *Portfolio) View() risk.PortfolioView {
	open := make(map[risk.PositionKey]struct{}, len(pf.openByKey))
	for k := range pf.openByKey {
		open[k] = struct{}{}
	}
	return risk.PortfolioView{
		Open:             open,
		OpenCount:        len(pf.openByKey),
		TotalExposureUSD: pf.ExposureUSD(),
		DrawdownPct:      pf.DrawdownPct(),
	}
}

// OpenPositions returns the open positions in no particular order.
func (pf *Portfolio) OpenPositions() []*Position {
	out := make([]*Position, 0, len(pf.openByKey))
	for _, p := range pf.positions {
		if p.IsOpen() {
			out = append(out, p)
		}
	}
	return out
}

// ClosedPositions returns closed positions in close order.
func (pf *Portfolio) ClosedPositions() []*Position { return pf.closed }

// RealizedPnL returns cumulative realized PnL.
func (pf *Portfolio) RealizedPnL() float64 { return pf.realized }

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
