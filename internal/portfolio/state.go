package portfolio

import (
	"fmt"
	"time"

	"polymarket-meanrev/internal/risk"
	"polymarket-meanrev/pkg/types"
)

// State is the serializable snapshot of a portfolio, used to survive
// restarts. Positions carries every position ever opened, open and
// closed alike, so a restored run keeps its full trade history.
type State struct {
	SavedAt        time.Time   `json:"saved_at"`
	Bankroll       float64     `json:"bankroll"`
	Seq            int         `json:"seq"`
	RealizedPnL    float64     `json:"realized_pnl"`
	PeakEquity     float64     `json:"peak_equity"`
	MaxDrawdownPct float64     `json:"max_drawdown_pct"`
	Positions      []*Position `json:"positions"`
}

// State captures the current portfolio for persistence.
func (pf *Portfolio) State() State {
	st := State{
		SavedAt:        time.Now().UTC(),
		Bankroll:       pf.bankroll,
		Seq:            pf.seq,
		RealizedPnL:    pf.realized,
		PeakEquity:     pf.peakEquity,
		MaxDrawdownPct: pf.maxDrawdownPct,
	}
	// Closed first in close order, then open, so replaying the slice
	// reconstructs history deterministically.
	st.Positions = append(st.Positions, pf.closed...)
	for _, p := range pf.positions {
		if p.IsOpen() {
			st.Positions = append(st.Positions, p)
		}
	}
	return st
}

// Restore replaces all portfolio state with a previously saved snapshot.
func (pf *Portfolio) Restore(st State) error {
	positions := make(map[string]*Position, len(st.Positions))
	openByKey := make(map[risk.PositionKey]string)
	var closed []*Position

	for _, p := range st.Positions {
		if p.ID == "" || p.MarketID == "" {
			return fmt.Errorf("restore: position missing id or market")
		}
		if _, dup := positions[p.ID]; dup {
			return fmt.Errorf("restore: duplicate position id %s", p.ID)
		}
		positions[p.ID] = p
		switch p.Status {
		case types.PositionOpen:
			key := risk.PositionKey{MarketID: p.MarketID, Direction: p.Direction}
			if _, dup := openByKey[key]; dup {
				return fmt.Errorf("restore: duplicate open slot %s/%s", p.MarketID, p.Direction)
			}
			openByKey[key] = p.ID
		case types.PositionClosed, types.PositionStopped:
			closed = append(closed, p)
		default:
			return fmt.Errorf("restore: position %s in transient status %s", p.ID, p.Status)
		}
	}

	pf.bankroll = st.Bankroll
	pf.seq = st.Seq
	pf.realized = st.RealizedPnL
	pf.peakEquity = st.PeakEquity
	pf.maxDrawdownPct = st.MaxDrawdownPct
	pf.positions = positions
	pf.openByKey = openByKey
	pf.closed = closed

	pf.logger.Info("portfolio restored",
		"positions", len(positions),
		"open", len(openByKey),
		"realized_pnl", pf.realized,
	)
	return nil
}
