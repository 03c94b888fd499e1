package sizing

import (
	"log/slog"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/pkg/types"
)

func newTestSizer(cfg config.SizingConfig) *Sizer {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewSizer(cfg, logger)
}

func strongSignal(entry float64) *types.Signal {
	return &types.Signal{
		MarketID:   "m1",
		Direction:  types.BuyYes,
		Strength:   types.Strong,
		EntryPrice: entry,
	}
}

func TestQuarterKellyReferenceCase(t *testing.T) {
	t.Parallel()
	s := newTestSizer(config.SizingConfig{
		KellyFraction:  0.25,
		WinProbStrong:  0.65,
		BankrollUSD:    2000,
		MinPositionUSD: 10,
	})

	// Entry 0.50 gives even net odds (b = 1). Quarter Kelly at p = 0.65:
	// 0.25 * (0.65 - 0.35) = 0.075 of bankroll.
	d := s.Size(strongSignal(0.50))
	if !d.Tradeable {
		t.Fatalf("expected tradeable decision, got reason %s", d.Reason)
	}
	if want := decimal.NewFromFloat(0.075); !d.Fraction.Equal(want) {
		t.Errorf("fraction = %s, want 0.075", d.Fraction)
	}
	if want := decimal.NewFromFloat(150); !d.SizeUSD.Equal(want) {
		t.Errorf("size = %s, want 150", d.SizeUSD)
	}
}

func TestNoEdgeDeclines(t *testing.T) {
	t.Parallel()
	s := newTestSizer(config.SizingConfig{
		KellyFraction:  0.25,
		WinProbWeak:    0.52,
		BankrollUSD:    2000,
		MinPositionUSD: 10,
	})

	// Entry 0.70 on a weak signal: b = 3/7, f* = (3/7*0.52 - 0.48)/(3/7) < 0.
	sig := strongSignal(0.70)
	sig.Strength = types.Weak

	d := s.Size(sig)
	if d.Tradeable {
		t.Fatal("expected NO_TRADE when Kelly fraction is non-positive")
	}
	if d.Reason != NoEdge {
		t.Errorf("reason = %s, want %s", d.Reason, NoEdge)
	}
	if !d.SizeUSD.IsZero() {
		t.Errorf("size = %s, want 0", d.SizeUSD)
	}
}

func TestBelowMinimumDeclines(t *testing.T) {
	t.Parallel()
	s := newTestSizer(config.SizingConfig{
		KellyFraction:  0.25,
		WinProbStrong:  0.65,
		BankrollUSD:    100, // 7.5% of 100 is under the floor
		MinPositionUSD: 10,
	})

	d := s.Size(strongSignal(0.50))
	if d.Tradeable {
		t.Fatal("expected NO_TRADE below the position floor")
	}
	if d.Reason != BelowMin {
		t.Errorf("reason = %s, want %s", d.Reason, BelowMin)
	}
}

func TestBuyNoUsesComplementCost(t *testing.T) {
	t.Parallel()
	s := newTestSizer(config.SizingConfig{
		KellyFraction:  0.25,
		WinProbStrong:  0.65,
		BankrollUSD:    2000,
		MinPositionUSD: 10,
	})

	// Buying NO at mid 0.50 also costs 0.50, so the decision matches
	// the BUY_YES reference case exactly.
	sig := strongSignal(0.50)
	sig.Direction = types.BuyNo

	d := s.Size(sig)
	if !d.Tradeable {
		t.Fatalf("expected tradeable decision, got reason %s", d.Reason)
	}
	if want := decimal.NewFromFloat(150); !d.SizeUSD.Equal(want) {
		t.Errorf("size = %s, want 150", d.SizeUSD)
	}
}

func TestWinProbTierSelection(t *testing.T) {
	t.Parallel()
	s := newTestSizer(config.SizingConfig{
		KellyFraction:   0.25,
		WinProbStrong:   0.65,
		WinProbModerate: 0.58,
		WinProbWeak:     0.52,
		BankrollUSD:     2000,
		MinPositionUSD:  1,
	})

	tests := []struct {
		strength types.SignalStrength
		wantProb float64
	}{
		{types.Strong, 0.65},
		{types.Moderate, 0.58},
		{types.Weak, 0.52},
	}
	for _, tt := range tests {
		sig := strongSignal(0.50)
		sig.Strength = tt.strength
		d := s.Size(sig)
		if !d.WinProb.Equal(decimal.NewFromFloat(tt.wantProb)) {
			t.Errorf("%s: win_prob = %s, want %v", tt.strength, d.WinProb, tt.wantProb)
		}
	}
}
