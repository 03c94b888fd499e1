package portfolio

import (
	"time"

	"polymarket-meanrev/pkg/types"
)

// Position is one simulated holding. All prices are YES mid prices; a
// BUY_NO position simply profits when the mid falls. Shares are of the
// side actually bought, so PnL math works from the side's cost.
type Position struct {
	ID        string               `json:"id"`
	MarketID  string               `json:"market_id"`
	Question  string               `json:"question,omitempty"`
	Direction types.Direction      `json:"direction"`
	Status    types.PositionStatus `json:"status"`

	Strength types.SignalStrength `json:"strength"`
	ZScore   float64              `json:"z_score"`

	SizeUSD   float64 `json:"size_usd"`
	Shares    float64 `json:"shares"`
	EntryMid  float64 `json:"entry_mid"`  // mid when the signal fired
	FillPrice float64 `json:"fill_price"` // mid after adverse slippage

	TargetPrice float64 `json:"target_price"`
	StopPrice   float64 `json:"stop_price"`

	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	RealizedPnL   float64 `json:"realized_pnl"`
	ExitPrice     float64 `json:"exit_price,omitempty"`

	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`
}

// sideCost returns the cost of the bought side at a given mid.
func (p *Position) sideCost(mid float64) float64 {
	if p.Direction == types.BuyNo {
		return 1 - mid
	}
	return mid
}

// pnlAt returns profit at a given mid against the fill. Both directions
// reduce to a signed mid move scaled by shares.
func (p *Position) pnlAt(mid float64) float64 {
	if p.Direction == types.BuyNo {
		return (p.FillPrice - mid) * p.Shares
	}
	return (mid - p.FillPrice) * p.Shares
}

// targetHit reports whether mid has crossed the reversion target in the
// favorable direction.
func (p *Position) targetHit(mid float64) bool {
	if p.Direction == types.BuyNo {
		return mid <= p.TargetPrice
	}
	return mid >= p.TargetPrice
}

// stopHit reports whether mid has crossed the stop adversely.
func (p *Position) stopHit(mid float64) bool {
	if p.Direction == types.BuyNo {
		return mid >= p.StopPrice
	}
	return mid <= p.StopPrice
}

// IsOpen reports whether the position still holds exposure.
func (p *Position) IsOpen() bool {
	return p.Status == types.PositionOpen
}
