package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/pkg/types"
)

func backtestConfig() *config.Config {
	return &config.Config{
		Feed: config.FeedConfig{
			PollInterval: time.Minute,
			FetchTimeout: 5 * time.Second,
			MaxMarkets:   10,
		},
		Signal: config.SignalConfig{
			WindowSize:     20,
			MinHistory:     5,
			ZWeak:          1.0,
			ZModerate:      1.5,
			ZStrong:        2.5,
			BandLow:        0.02,
			BandHigh:       0.98,
			StopStddevMult: 3.0,
		},
		Sizing: config.SizingConfig{
			KellyFraction:   0.25,
			WinProbStrong:   0.65,
			WinProbModerate: 0.58,
			WinProbWeak:     0.52,
			BankrollUSD:     2000,
			MinPositionUSD:  10,
		},
		Risk: config.RiskConfig{
			MaxPositionUSD:      500,
			MaxTotalExposureUSD: 2000,
			MaxPositions:        10,
			MaxDrawdownPct:      25,
			DrawdownResumePct:   15,
		},
		Exec: config.ExecConfig{SlippagePct: 0, ExitTieBreak: "target"},
	}
}

func writeCSV(t *testing.T, rows []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	content := "timestamp,market_id,mid_price\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func priceRows(t0 time.Time, market string, prices []float64) []string {
	rows := make([]string, len(prices))
	for i, p := range prices {
		ts := t0.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		rows[i] = fmt.Sprintf("%s,%s,%.4f", ts, market, p)
	}
	return rows
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestReplayRoundTrip(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	prices := []float64{0.48, 0.52, 0.48, 0.52, 0.48, 0.52, 0.48, 0.52, 0.48, 0.52, 0.80, 0.49}
	path := writeCSV(t, priceRows(t0, "m1", prices))

	res, err := Run(context.Background(), backtestConfig(), path, nil, testLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Ticks != len(prices) {
		t.Errorf("ticks = %d, want %d", res.Ticks, len(prices))
	}
	if res.Snapshots != len(prices) {
		t.Errorf("snapshots = %d, want %d", res.Snapshots, len(prices))
	}
	if res.Report.TotalTrades != 1 || res.Report.Wins != 1 {
		t.Errorf("report = %+v, want one winning round trip", res.Report)
	}
	if res.Report.TotalPnL <= 0 {
		t.Errorf("pnl = %v, want profit", res.Report.TotalPnL)
	}
	if len(res.Closed) != 1 || res.Closed[0].Status != types.PositionClosed {
		t.Errorf("closed = %+v, want one CLOSED position", res.Closed)
	}
}

func TestGroupsRowsByTimestamp(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	// Two markets sharing timestamps: rows pair up into single ticks.
	var rows []string
	for i, p := range []float64{0.48, 0.52, 0.48} {
		ts := t0.Add(time.Duration(i) * time.Minute).Format(time.RFC3339)
		rows = append(rows,
			fmt.Sprintf("%s,m1,%.4f", ts, p),
			fmt.Sprintf("%s,m2,%.4f", ts, 1-p),
		)
	}
	path := writeCSV(t, rows)

	res, err := Run(context.Background(), backtestConfig(), path, nil, testLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Ticks != 3 {
		t.Errorf("ticks = %d, want 3 grouped ticks", res.Ticks)
	}
	if res.Snapshots != 6 {
		t.Errorf("snapshots = %d, want 6", res.Snapshots)
	}
}

func TestRejectsMalformedFiles(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"missing file", ""},
		{"missing column", "timestamp,mid_price\n2024-06-01T00:00:00Z,0.5\n"},
		{"bad timestamp", "timestamp,market_id,mid_price\nyesterday,m1,0.5\n"},
		{"bad price", "timestamp,market_id,mid_price\n2024-06-01T00:00:00Z,m1,half\n"},
		{"empty body", "timestamp,market_id,mid_price\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prices.csv")
			if tt.content != "" {
				if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := Run(context.Background(), backtestConfig(), path, nil, testLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
