// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot: market snapshots,
// mean-reversion signals, paper orders, and the enums that tag them. It has
// no dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"fmt"
	"math"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Direction is the side of a signal or position on a binary market.
// BUY_YES buys the underpriced YES side; BUY_NO fades an overpriced spike
// by buying the NO side.
type Direction string

const (
	BuyYes Direction = "BUY_YES"
	BuyNo  Direction = "BUY_NO"
)

// SignalStrength tiers a signal by the magnitude of its z-score.
type SignalStrength string

const (
	Weak     SignalStrength = "WEAK"
	Moderate SignalStrength = "MODERATE"
	Strong   SignalStrength = "STRONG"
)

// PositionStatus tracks the paper position lifecycle.
// PENDING exists only inside the fill simulation and is never observable
// outside the portfolio package.
type PositionStatus string

const (
	PositionPending PositionStatus = "PENDING"
	PositionOpen    PositionStatus = "OPEN"
	PositionClosed  PositionStatus = "CLOSED" // exited at target
	PositionStopped PositionStatus = "STOPPED"
)

// RejectReason identifies which risk check vetoed an order. Downstream
// analysis depends on telling "duplicate" apart from "limit hit", so these
// are structured codes rather than free-form messages.
type RejectReason string

const (
	ReasonDuplicate    RejectReason = "DUPLICATE_POSITION"
	ReasonPositionCap  RejectReason = "POSITION_CAP"
	ReasonExposureCap  RejectReason = "EXPOSURE_CAP"
	ReasonMaxPositions RejectReason = "MAX_POSITIONS"
	ReasonDrawdown     RejectReason = "DRAWDOWN_BREAKER"
)

// EventType tags journal entries.
type EventType string

const (
	EventSignal EventType = "SIGNAL"
	EventOpen   EventType = "OPEN"
	EventClose  EventType = "CLOSE"
	EventReject EventType = "REJECT"
)

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// MarketSnapshot is one observation of a binary market, produced by the
// feed and consumed append-only by the signal generator. MidPrice is the
// YES probability in [0, 1]. Bid/Ask/Volume24h are optional extras used by
// secondary filters when present.
type MarketSnapshot struct {
	MarketID  string
	Question  string
	Timestamp time.Time
	MidPrice  float64
	Bid       float64
	Ask       float64
	Volume24h float64
	EndDate   time.Time // zero if resolution time is unknown

	// YesTokenID is the CLOB token for the YES side, carried so the
	// websocket stream can subscribe to markets with open positions.
	// Optional; empty when the feed could not resolve it.
	YesTokenID string
}

// Validate rejects malformed observations: a non-finite or out-of-range
// mid price means the snapshot must be dropped, not processed.
func (s MarketSnapshot) Validate() error {
	if s.MarketID == "" {
		return fmt.Errorf("snapshot missing market_id")
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot missing timestamp")
	}
	if math.IsNaN(s.MidPrice) || math.IsInf(s.MidPrice, 0) {
		return fmt.Errorf("snapshot mid price is not finite")
	}
	if s.MidPrice < 0 || s.MidPrice > 1 {
		return fmt.Errorf("snapshot mid price %.4f outside [0,1]", s.MidPrice)
	}
	return nil
}

// HorizonDays returns whole days until resolution, or -1 if unknown.
func (s MarketSnapshot) HorizonDays(now time.Time) int {
	if s.EndDate.IsZero() {
		return -1
	}
	d := int(s.EndDate.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

// ————————————————————————————————————————————————————————————————————————
// Signals and orders
// ————————————————————————————————————————————————————————————————————————

// Signal is a mean-reversion detection event. Immutable once emitted and
// consumed at most once by the sizer: a signal is never re-submitted while
// an open position exists for the same (market, direction).
type Signal struct {
	MarketID      string
	Question      string
	DetectedAt    time.Time
	Direction     Direction
	Strength      SignalStrength
	ZScore        float64
	MispricingPct float64 // signed % deviation of mid from the trailing mean
	EntryPrice    float64 // mid price at detection
	TargetPrice   float64 // trailing mean, the reversion target
	StopPrice     float64 // entry ± stop multiple of stddev, adverse side
	HorizonDays   int     // days until resolution, -1 if unknown
}

// EntryCost is the per-share cost of the side actually bought: the YES
// price for BUY_YES, the NO price (1 − mid) for BUY_NO.
func (s Signal) EntryCost() float64 {
	if s.Direction == BuyNo {
		return 1 - s.EntryPrice
	}
	return s.EntryPrice
}

// Order is a sized trade intent headed for the risk gate. SizeUSD is the
// notional the sizer proposes; the risk manager may clamp or reject it.
type Order struct {
	MarketID  string
	Question  string
	Direction Direction
	Entry     float64 // mid price at signal time
	Target    float64
	Stop      float64
	SizeUSD   float64
	Signal    Signal
	CreatedAt time.Time
}
