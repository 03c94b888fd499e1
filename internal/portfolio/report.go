package portfolio

// Report summarizes simulated performance across closed trades.
type Report struct {
	InitialBankroll float64 `json:"initial_bankroll"`
	Equity          float64 `json:"equity"`
	PeakEquity      float64 `json:"peak_equity"`
	TotalPnL        float64 `json:"total_pnl"`
	ROIPct          float64 `json:"roi_pct"`

	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRatePct  float64 `json:"win_rate_pct"`
	AvgWinUSD   float64 `json:"avg_win_usd"`
	AvgLossUSD  float64 `json:"avg_loss_usd"`

	OpenPositions  int     `json:"open_positions"`
	ExposureUSD    float64 `json:"exposure_usd"`
	DrawdownPct    float64 `json:"drawdown_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// Performance computes the report from current portfolio state. A trade
// with exactly zero PnL counts as a loss, matching the conservative
// convention of treating break-even fills as failed reversion.
func (pf *Portfolio) Performance() Report {
	r := Report{
		InitialBankroll: pf.bankroll,
		Equity:          pf.Equity(),
		PeakEquity:      pf.peakEquity,
		TotalPnL:        pf.realized,
		TotalTrades:     len(pf.closed),
		OpenPositions:   len(pf.openByKey),
		ExposureUSD:     pf.ExposureUSD(),
		DrawdownPct:     pf.DrawdownPct(),
		MaxDrawdownPct:  pf.maxDrawdownPct,
	}
	if pf.bankroll > 0 {
		r.ROIPct = pf.realized / pf.bankroll * 100
	}

	var winSum, lossSum float64
	for _, p := range pf.closed {
		if p.RealizedPnL > 0 {
			r.Wins++
			winSum += p.RealizedPnL
		} else {
			r.Losses++
			lossSum += p.RealizedPnL
		}
	}
	if r.TotalTrades > 0 {
		r.WinRatePct = float64(r.Wins) / float64(r.TotalTrades) * 100
	}
	if r.Wins > 0 {
		r.AvgWinUSD = winSum / float64(r.Wins)
	}
	if r.Losses > 0 {
		r.AvgLossUSD = lossSum / float64(r.Losses)
	}
	return r
}
