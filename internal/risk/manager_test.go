package risk

import (
	"log/slog"
	"os"
	"testing"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/pkg/types"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionUSD:      500,
		MaxTotalExposureUSD: 2000,
		MaxPositions:        10,
		MaxDrawdownPct:      25,
		DrawdownResumePct:   15,
	}
}

func newTestManager() *Manager {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewManager(testRiskConfig(), logger)
}

func proposedOrder(size float64) types.Order {
	return types.Order{
		MarketID:  "m1",
		Direction: types.BuyYes,
		SizeUSD:   size,
	}
}

func emptyView() PortfolioView {
	return PortfolioView{Open: map[PositionKey]struct{}{}}
}

func TestAllowsWithinLimits(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	v := rm.Evaluate(proposedOrder(200), emptyView())
	if !v.Allowed {
		t.Fatalf("rejected within limits: %s", v.Reason)
	}
	if v.SizeUSD != 200 || v.Clamped {
		t.Errorf("size = %v clamped = %v, want 200 unclamped", v.SizeUSD, v.Clamped)
	}
}

func TestDuplicateGuard(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	view := emptyView()
	view.Open[PositionKey{MarketID: "m1", Direction: types.BuyYes}] = struct{}{}
	view.OpenCount = 1
	view.TotalExposureUSD = 200

	v := rm.Evaluate(proposedOrder(100), view)
	if v.Allowed {
		t.Fatal("duplicate (market, direction) accepted")
	}
	if v.Reason != types.ReasonDuplicate {
		t.Errorf("reason = %s, want %s", v.Reason, types.ReasonDuplicate)
	}

	// Same market, other direction is a different slot.
	other := proposedOrder(100)
	other.Direction = types.BuyNo
	if v := rm.Evaluate(other, view); !v.Allowed {
		t.Errorf("opposite direction rejected: %s", v.Reason)
	}
}

func TestDuplicateWinsOverExposure(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	// The order is both a duplicate and over the exposure cap. The
	// duplicate check runs first, so its reason code must win.
	view := emptyView()
	view.Open[PositionKey{MarketID: "m1", Direction: types.BuyYes}] = struct{}{}
	view.OpenCount = 1
	view.TotalExposureUSD = 1950

	v := rm.Evaluate(proposedOrder(100), view)
	if v.Allowed || v.Reason != types.ReasonDuplicate {
		t.Errorf("verdict = %+v, want rejection with %s", v, types.ReasonDuplicate)
	}
}

func TestPerPositionCapClamps(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	v := rm.Evaluate(proposedOrder(800), emptyView())
	if !v.Allowed {
		t.Fatalf("oversized order rejected instead of clamped: %s", v.Reason)
	}
	if v.SizeUSD != 500 || !v.Clamped {
		t.Errorf("size = %v clamped = %v, want 500 clamped", v.SizeUSD, v.Clamped)
	}
	if v.Reason != types.ReasonPositionCap {
		t.Errorf("reason = %s, want %s annotation", v.Reason, types.ReasonPositionCap)
	}
}

func TestExposureCapUsesClampedSize(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	// 800 clamps to 500; 1600 + 500 > 2000 so the exposure check fires.
	view := emptyView()
	view.TotalExposureUSD = 1600
	view.OpenCount = 4

	v := rm.Evaluate(proposedOrder(800), view)
	if v.Allowed {
		t.Fatal("order over the exposure cap accepted")
	}
	if v.Reason != types.ReasonExposureCap {
		t.Errorf("reason = %s, want %s", v.Reason, types.ReasonExposureCap)
	}

	// 1600 + 400 fits exactly.
	if v := rm.Evaluate(proposedOrder(400), view); !v.Allowed {
		t.Errorf("order at the exposure boundary rejected: %s", v.Reason)
	}
}

func TestMaxPositions(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	view := emptyView()
	view.OpenCount = 10

	v := rm.Evaluate(proposedOrder(100), view)
	if v.Allowed || v.Reason != types.ReasonMaxPositions {
		t.Errorf("verdict = %+v, want rejection with %s", v, types.ReasonMaxPositions)
	}
}

func TestDrawdownBreakerHysteresis(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	view := emptyView()
	view.DrawdownPct = 26
	if v := rm.Evaluate(proposedOrder(100), view); v.Allowed || v.Reason != types.ReasonDrawdown {
		t.Fatalf("verdict = %+v, want rejection with %s", v, types.ReasonDrawdown)
	}
	if !rm.Tripped() {
		t.Fatal("breaker should be tripped at 26%")
	}

	// Recovery to 20% is above the resume threshold: still tripped.
	view.DrawdownPct = 20
	if v := rm.Evaluate(proposedOrder(100), view); v.Allowed {
		t.Fatal("breaker resumed between resume and trip thresholds")
	}

	// Below the resume threshold the gate reopens.
	view.DrawdownPct = 10
	if v := rm.Evaluate(proposedOrder(100), view); !v.Allowed {
		t.Fatalf("breaker still engaged after recovery: %s", v.Reason)
	}
	if rm.Tripped() {
		t.Error("breaker should have reset below the resume threshold")
	}
}

func TestBreakerDoesNotTripAtBoundaryMinusEpsilon(t *testing.T) {
	t.Parallel()
	rm := newTestManager()

	view := emptyView()
	view.DrawdownPct = 24.9
	if v := rm.Evaluate(proposedOrder(100), view); !v.Allowed {
		t.Errorf("rejected below the trip threshold: %s", v.Reason)
	}

	view.DrawdownPct = 25
	if v := rm.Evaluate(proposedOrder(100), view); v.Allowed {
		t.Error("breaker must trip at exactly the configured threshold")
	}
}
