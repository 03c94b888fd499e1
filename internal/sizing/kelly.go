// Package sizing converts signals into bounded USD position sizes using
// fractional Kelly. The sizer is deliberately pure: it computes the
// theoretical size from the signal and the configured bankroll, and the
// risk manager alone decides whether that size may actually trade.
package sizing

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/pkg/types"
)

// NoTradeReason explains why the sizer declined to produce a size.
// Declining is an ordinary outcome, distinct from a risk rejection.
type NoTradeReason string

const (
	NoEdge   NoTradeReason = "NO_EDGE"   // Kelly fraction ≤ 0 at these odds
	BelowMin NoTradeReason = "BELOW_MIN" // computed size under the position floor
)

// Decision is the sizer's verdict for one signal. When Tradeable is
// false, SizeUSD is zero and Reason says why. The intermediate Kelly
// quantities are carried for logging and the journal.
type Decision struct {
	Tradeable bool
	Reason    NoTradeReason

	WinProb  decimal.Decimal
	NetOdds  decimal.Decimal
	KellyRaw decimal.Decimal // f* before the safety fraction
	Fraction decimal.Decimal // f* × kelly_fraction
	SizeUSD  decimal.Decimal
}

// Sizer computes fractional-Kelly position sizes. Win probabilities are
// calibration constants per strength tier, taken from config rather than
// baked in.
type Sizer struct {
	cfg    config.SizingConfig
	logger *slog.Logger
}

func NewSizer(cfg config.SizingConfig, logger *slog.Logger) *Sizer {
	return &Sizer{
		cfg:    cfg,
		logger: logger.With("component", "sizing"),
	}
}

// winProbFor maps a strength tier to its configured win probability.
func (s *Sizer) winProbFor(strength types.SignalStrength) decimal.Decimal {
	switch strength {
	case types.Strong:
		return decimal.NewFromFloat(s.cfg.WinProbStrong)
	case types.Moderate:
		return decimal.NewFromFloat(s.cfg.WinProbModerate)
	default:
		return decimal.NewFromFloat(s.cfg.WinProbWeak)
	}
}

// netOdds returns profit per dollar staked if the position resolves in
// our favor. The side we buy costs EntryCost and pays out 1, so the net
// odds are (1 − cost) / cost regardless of direction.
func netOdds(sig *types.Signal) decimal.Decimal {
	cost := decimal.NewFromFloat(sig.EntryCost())
	return decimal.NewFromInt(1).Sub(cost).Div(cost)
}

// Size computes the Kelly-optimal stake for a signal against the
// configured bankroll:
//
//	f* = (b·p − (1−p)) / b
//
// clamped to [0, 1], then scaled by kelly_fraction. A non-positive f*
// means the odds offer no edge at the estimated win probability, and
// the sizer declines rather than emitting a zero-size order.
func (s *Sizer) Size(sig *types.Signal) Decision {
	one := decimal.NewFromInt(1)
	p := s.winProbFor(sig.Strength)
	b := netOdds(sig)

	kellyRaw := b.Mul(p).Sub(one.Sub(p)).Div(b)

	d := Decision{
		WinProb:  p,
		NetOdds:  b,
		KellyRaw: kellyRaw,
	}

	if kellyRaw.Sign() <= 0 {
		d.Reason = NoEdge
		s.logger.Info("no trade: no edge",
			"market", sig.MarketID,
			"win_prob", p,
			"net_odds", b,
			"kelly_raw", kellyRaw,
		)
		return d
	}
	if kellyRaw.GreaterThan(one) {
		kellyRaw = one
	}

	d.Fraction = kellyRaw.Mul(decimal.NewFromFloat(s.cfg.KellyFraction))
	d.SizeUSD = d.Fraction.Mul(decimal.NewFromFloat(s.cfg.BankrollUSD)).Round(2)

	if d.SizeUSD.LessThan(decimal.NewFromFloat(s.cfg.MinPositionUSD)) {
		d.Reason = BelowMin
		d.SizeUSD = decimal.Zero
		s.logger.Info("no trade: size below floor",
			"market", sig.MarketID,
			"fraction", d.Fraction,
		)
		return d
	}

	d.Tradeable = true
	s.logger.Debug("position sized",
		"market", sig.MarketID,
		"strength", sig.Strength,
		"fraction", d.Fraction,
		"size_usd", d.SizeUSD,
	)
	return d
}
