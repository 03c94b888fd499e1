// Package engine drives the tick pipeline. One tick polls the feed and
// pushes every market through the stages in strict sequence:
//
//	exits (portfolio marks) → signal → sizing → risk gate → open
//
// All portfolio mutation happens inside this single-threaded loop, so
// no stage ever observes inconsistent state mid-tick and no locks are
// needed around position data. The only suspension point is the wait
// between ticks, which a cancelled context aborts immediately.
package engine

import (
	"context"
	"log/slog"
	"time"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/internal/metrics"
	"polymarket-meanrev/internal/portfolio"
	"polymarket-meanrev/internal/risk"
	"polymarket-meanrev/internal/signal"
	"polymarket-meanrev/internal/sizing"
	"polymarket-meanrev/internal/store"
	"polymarket-meanrev/pkg/types"
)

// SnapshotSource produces one batch of market snapshots per tick.
// The feed client implements it; tests substitute a fixture source.
type SnapshotSource interface {
	FetchSnapshots(ctx context.Context) ([]types.MarketSnapshot, error)
}

// EventSink receives pipeline events the portfolio itself does not own:
// detected signals and risk rejections. The journal implements it; a
// nil sink disables recording.
type EventSink interface {
	RecordSignal(sig *types.Signal)
	RecordReject(order types.Order, reason types.RejectReason, at time.Time)
}

// Tracker is the optional websocket subscription surface. After each
// tick the engine points it at the markets holding open positions.
type Tracker interface {
	Track(tokenID, marketID string) error
	Untrack(tokenID string) error
}

// Engine wires the pipeline together and owns the tick schedule.
type Engine struct {
	cfg    *config.Config
	source SnapshotSource
	gen    *signal.Generator
	sizer  *sizing.Sizer
	riskMg *risk.Manager
	pf     *portfolio.Portfolio
	sink   EventSink
	st     *store.Store
	logger *slog.Logger

	stream   Tracker
	streamCh <-chan types.MarketSnapshot

	// markets seen last tick, to reset windows for markets that left
	tracked map[string]string // market ID → YES token ID
	// tokens currently subscribed on the stream
	streaming map[string]string // token ID → market ID
}

// Options carries the optional collaborators.
type Options struct {
	Sink     EventSink
	Store    *store.Store
	Stream   Tracker
	StreamCh <-chan types.MarketSnapshot
}

// New assembles an engine from its stages.
func New(
	cfg *config.Config,
	source SnapshotSource,
	gen *signal.Generator,
	sizer *sizing.Sizer,
	riskMg *risk.Manager,
	pf *portfolio.Portfolio,
	opts Options,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		source:    source,
		gen:       gen,
		sizer:     sizer,
		riskMg:    riskMg,
		pf:        pf,
		sink:      opts.Sink,
		st:        opts.Store,
		stream:    opts.Stream,
		streamCh:  opts.StreamCh,
		logger:    logger.With("component", "engine"),
		tracked:   make(map[string]string),
		streaming: make(map[string]string),
	}
}

// Run executes ticks on the configured poll interval until ctx is
// cancelled. The first tick fires immediately. Streamed mid updates,
// when enabled, are applied between ticks on the same goroutine so the
// single-writer discipline holds.
func (e *Engine) Run(ctx context.Context) error {
	e.Tick(ctx)

	ticker := time.NewTicker(e.cfg.Feed.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.saveState()
			return ctx.Err()
		case <-ticker.C:
			e.Tick(ctx)
		case snap, ok := <-e.streamCh:
			if !ok {
				e.streamCh = nil
				continue
			}
			e.applyStreamUpdate(snap)
		}
	}
}

// Tick runs one full poll-and-process cycle. Exported so tests can
// drive the pipeline synchronously.
func (e *Engine) Tick(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.Feed.FetchTimeout)
	snaps, err := e.source.FetchSnapshots(fetchCtx)
	cancel()
	if err != nil {
		metrics.FeedErrorsTotal.Inc()
		e.logger.Warn("feed fetch failed, skipping tick", "error", err)
		return
	}

	seen := make(map[string]string, len(snaps))
	for _, snap := range snaps {
		seen[snap.MarketID] = snap.YesTokenID
		e.processSnapshot(snap)
	}

	// Markets that left the tracked set lose their windows so stale
	// history never seeds a future signal.
	for marketID := range e.tracked {
		if _, still := seen[marketID]; !still {
			e.gen.Reset(marketID)
		}
	}
	e.tracked = seen

	e.updateStreamSubscriptions()
	e.updateGauges()
	e.saveState()

	metrics.TicksTotal.Inc()
	e.logger.Info("tick complete",
		"markets", len(snaps),
		"open_positions", len(e.pf.OpenPositions()),
		"equity", e.pf.Equity(),
	)
}

// processSnapshot pushes one market through the full stage sequence.
func (e *Engine) processSnapshot(snap types.MarketSnapshot) {
	metrics.SnapshotsTotal.Inc()

	// Exits first: an open position reacts to the print before any new
	// signal on the same market is considered.
	for _, closed := range e.pf.OnSnapshot(snap) {
		metrics.PositionsClosed.WithLabelValues(string(closed.Status)).Inc()
	}

	sig := e.gen.Observe(snap)
	if sig == nil {
		if stats, ok := e.gen.Stats(snap.MarketID); ok {
			e.logger.Debug("no signal",
				"market", snap.MarketID,
				"mid", snap.MidPrice,
				"window", stats.Len,
				"z", stats.ZScore,
			)
		}
		return
	}
	metrics.SignalsTotal.WithLabelValues(string(sig.Strength), string(sig.Direction)).Inc()
	if e.sink != nil {
		e.sink.RecordSignal(sig)
	}

	decision := e.sizer.Size(sig)
	if !decision.Tradeable {
		// No edge or below the floor is an ordinary outcome, already
		// logged by the sizer with its own reason.
		return
	}

	order := types.Order{
		MarketID:  sig.MarketID,
		Question:  sig.Question,
		Direction: sig.Direction,
		Entry:     sig.EntryPrice,
		Target:    sig.TargetPrice,
		Stop:      sig.StopPrice,
		SizeUSD:   decision.SizeUSD.InexactFloat64(),
		Signal:    *sig,
		CreatedAt: snap.Timestamp,
	}

	verdict := e.riskMg.Evaluate(order, e.pf.View())
	if !verdict.Allowed {
		metrics.RejectsTotal.WithLabelValues(string(verdict.Reason)).Inc()
		if e.sink != nil {
			e.sink.RecordReject(order, verdict.Reason, snap.Timestamp)
		}
		return
	}

	e.pf.Open(order, verdict.SizeUSD)
	metrics.PositionsOpened.Inc()
}

// applyStreamUpdate marks open positions from a streamed mid. Stream
// prints do not feed the signal generator: signal statistics stay on
// the regular poll cadence so the window keeps a uniform sample rate.
func (e *Engine) applyStreamUpdate(snap types.MarketSnapshot) {
	if err := snap.Validate(); err != nil {
		return
	}
	for _, closed := range e.pf.OnSnapshot(snap) {
		metrics.PositionsClosed.WithLabelValues(string(closed.Status)).Inc()
	}
	e.updateGauges()
}

// updateStreamSubscriptions keeps the websocket pointed at markets with
// open positions, where between-poll exits matter.
func (e *Engine) updateStreamSubscriptions() {
	if e.stream == nil {
		return
	}

	want := make(map[string]string) // token → market
	for _, p := range e.pf.OpenPositions() {
		if token := e.tracked[p.MarketID]; token != "" {
			want[token] = p.MarketID
		}
	}

	for token := range e.streaming {
		if _, still := want[token]; !still {
			if err := e.stream.Untrack(token); err != nil {
				e.logger.Debug("stream untrack failed", "token", token, "error", err)
			}
			delete(e.streaming, token)
		}
	}
	for token, marketID := range want {
		if _, already := e.streaming[token]; already {
			continue
		}
		if err := e.stream.Track(token, marketID); err != nil {
			e.logger.Debug("stream track failed", "market", marketID, "error", err)
			continue
		}
		e.streaming[token] = marketID
	}
}

func (e *Engine) updateGauges() {
	metrics.EquityUSD.Set(e.pf.Equity())
	metrics.ExposureUSD.Set(e.pf.ExposureUSD())
	metrics.DrawdownPct.Set(e.pf.DrawdownPct())
	if e.riskMg.Tripped() {
		metrics.BreakerTripped.Set(1)
	} else {
		metrics.BreakerTripped.Set(0)
	}
}

func (e *Engine) saveState() {
	if e.st == nil {
		return
	}
	if err := e.st.Save(e.pf.State()); err != nil {
		e.logger.Error("state save failed", "error", err)
	}
}
