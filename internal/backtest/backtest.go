// Package backtest replays recorded price history through the live
// pipeline. The same generator, sizer, risk gate, and portfolio run
// against a CSV-backed snapshot source, so backtest results exercise
// exactly the code paths a live scan would.
//
// Input format is CSV with a header row:
//
//	timestamp,market_id,mid_price[,question[,end_date]]
//
// Timestamps are RFC3339 and must be non-decreasing; rows sharing a
// timestamp form one tick. Out-of-order rows for a market are dropped
// by the generator's window, same as live.
package backtest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/internal/engine"
	"polymarket-meanrev/internal/portfolio"
	"polymarket-meanrev/internal/risk"
	"polymarket-meanrev/internal/signal"
	"polymarket-meanrev/internal/sizing"
	"polymarket-meanrev/pkg/types"
)

// replaySource feeds pre-grouped snapshot batches to the engine.
type replaySource struct {
	batches [][]types.MarketSnapshot
	i       int
}

func (r *replaySource) FetchSnapshots(ctx context.Context) ([]types.MarketSnapshot, error) {
	if r.i >= len(r.batches) {
		return nil, nil
	}
	batch := r.batches[r.i]
	r.i++
	return batch, nil
}

// Result is the outcome of one replay.
type Result struct {
	Ticks     int
	Snapshots int
	Report    portfolio.Report
	Closed    []*portfolio.Position
}

// Run replays the CSV at path through a fresh pipeline built from cfg.
// The optional sink receives signal and rejection events, typically the
// journal when the operator wants the replay recorded.
func Run(ctx context.Context, cfg *config.Config, path string, sink engine.EventSink, logger *slog.Logger) (*Result, error) {
	batches, total, err := loadBatches(path)
	if err != nil {
		return nil, err
	}

	gen := signal.NewGenerator(cfg.Signal, logger)
	sizer := sizing.NewSizer(cfg.Sizing, logger)
	riskMg := risk.NewManager(cfg.Risk, logger)
	pf := portfolio.NewPortfolio(cfg.Exec, cfg.Sizing.BankrollUSD, nil, logger)

	src := &replaySource{batches: batches}
	eng := engine.New(cfg, src, gen, sizer, riskMg, pf, engine.Options{Sink: sink}, logger)

	for i := 0; i < len(batches); i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		eng.Tick(ctx)
	}

	return &Result{
		Ticks:     len(batches),
		Snapshots: total,
		Report:    pf.Performance(),
		Closed:    pf.ClosedPositions(),
	}, nil
}

// loadBatches parses the CSV and groups rows by timestamp into ticks.
func loadBatches(path string) ([][]types.MarketSnapshot, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"timestamp", "market_id", "mid_price"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("data file missing %q column", required)
		}
	}

	var batches [][]types.MarketSnapshot
	var current []types.MarketSnapshot
	var currentTS time.Time
	total := 0
	line := 1

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}

		ts, err := time.Parse(time.RFC3339, row[col["timestamp"]])
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: bad timestamp: %w", line, err)
		}
		mid, err := strconv.ParseFloat(row[col["mid_price"]], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: bad mid_price: %w", line, err)
		}

		snap := types.MarketSnapshot{
			MarketID:  row[col["market_id"]],
			Timestamp: ts,
			MidPrice:  mid,
		}
		if idx, ok := col["question"]; ok && idx < len(row) {
			snap.Question = row[idx]
		}
		if idx, ok := col["end_date"]; ok && idx < len(row) && row[idx] != "" {
			endDate, err := time.Parse(time.RFC3339, row[idx])
			if err != nil {
				return nil, 0, fmt.Errorf("line %d: bad end_date: %w", line, err)
			}
			snap.EndDate = endDate
		}

		if !ts.Equal(currentTS) && len(current) > 0 {
			batches = append(batches, current)
			current = nil
		}
		currentTS = ts
		current = append(current, snap)
		total++
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	if total == 0 {
		return nil, 0, fmt.Errorf("data file has no rows")
	}
	return batches, total, nil
}
