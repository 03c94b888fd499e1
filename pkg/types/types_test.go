package types

import (
	"math"
	"testing"
	"time"
)

func validSnapshot() MarketSnapshot {
	return MarketSnapshot{
		MarketID:  "mkt1",
		Timestamp: time.Now(),
		MidPrice:  0.55,
	}
}

func TestSnapshotValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*MarketSnapshot)
		wantErr bool
	}{
		{"valid", func(s *MarketSnapshot) {}, false},
		{"zero price", func(s *MarketSnapshot) { s.MidPrice = 0 }, false},
		{"one price", func(s *MarketSnapshot) { s.MidPrice = 1 }, false},
		{"missing market", func(s *MarketSnapshot) { s.MarketID = "" }, true},
		{"missing timestamp", func(s *MarketSnapshot) { s.Timestamp = time.Time{} }, true},
		{"nan price", func(s *MarketSnapshot) { s.MidPrice = math.NaN() }, true},
		{"inf price", func(s *MarketSnapshot) { s.MidPrice = math.Inf(1) }, true},
		{"negative price", func(s *MarketSnapshot) { s.MidPrice = -0.01 }, true},
		{"above one", func(s *MarketSnapshot) { s.MidPrice = 1.01 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSnapshot()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestHorizonDays(t *testing.T) {
	t.Parallel()
	now := time.Now()

	s := validSnapshot()
	if got := s.HorizonDays(now); got != -1 {
		t.Errorf("HorizonDays with no end date = %d, want -1", got)
	}

	s.EndDate = now.Add(10*24*time.Hour + time.Hour)
	if got := s.HorizonDays(now); got != 10 {
		t.Errorf("HorizonDays = %d, want 10", got)
	}

	s.EndDate = now.Add(-time.Hour)
	if got := s.HorizonDays(now); got != 0 {
		t.Errorf("HorizonDays past end = %d, want 0", got)
	}
}

func TestSignalEntryCost(t *testing.T) {
	t.Parallel()

	sig := Signal{Direction: BuyYes, EntryPrice: 0.30}
	if got := sig.EntryCost(); got != 0.30 {
		t.Errorf("BUY_YES entry cost = %v, want 0.30", got)
	}

	sig.Direction = BuyNo
	if got := sig.EntryCost(); math.Abs(got-0.70) > 1e-12 {
		t.Errorf("BUY_NO entry cost = %v, want 0.70", got)
	}
}
