// stream.go implements the optional WebSocket price stream. The poll
// cycle remains the source of truth for market discovery and filtering;
// the stream only layers lower-latency mid updates for markets already
// tracked, so open positions can hit their target or stop between polls.
//
// The feed auto-reconnects with exponential backoff (1s → 30s max) and
// re-subscribes to all tracked token IDs on reconnection. A read
// deadline (90s) ensures silent server failures are detected within
// ~2 missed pings.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polymarket-meanrev/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	streamBufferSize = 256
)

// wsSubscribeMsg is the initial subscription for the public market channel.
type wsSubscribeMsg struct {
	Type     string   `json:"type"`
	AssetIDs []string `json:"assets_ids"`
}

// wsUpdateMsg adjusts an existing subscription.
type wsUpdateMsg struct {
	Operation string   `json:"operation"`
	AssetIDs  []string `json:"assets_ids"`
}

// wsBookLevel is one side level in a book event.
type wsBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wsBookEvent is a full order book snapshot for one token.
type wsBookEvent struct {
	EventType string        `json:"event_type"`
	AssetID   string        `json:"asset_id"`
	Bids      []wsBookLevel `json:"bids"`
	Asks      []wsBookLevel `json:"asks"`
}

// wsPriceChange is one entry of a price_change event.
type wsPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
}

type wsPriceChangeEvent struct {
	EventType    string          `json:"event_type"`
	PriceChanges []wsPriceChange `json:"price_changes"`
}

// Stream maintains the public market WebSocket and emits a MarketSnapshot
// whenever a tracked token's mid moves.
type Stream struct {
	url    string
	conn   *websocket.Conn
	connMu sync.Mutex

	// token ID → market ID, for translating WS events back to the
	// identifier the rest of the pipeline keys on
	trackedMu sync.RWMutex
	tracked   map[string]string

	snapCh chan types.MarketSnapshot
	logger *slog.Logger
}

// NewStream creates a stream for the public market channel.
func NewStream(wsURL string, logger *slog.Logger) *Stream {
	return &Stream{
		url:     wsURL,
		tracked: make(map[string]string),
		snapCh:  make(chan types.MarketSnapshot, streamBufferSize),
		logger:  logger.With("component", "stream"),
	}
}

// Snapshots returns the channel of streamed mid updates.
func (s *Stream) Snapshots() <-chan types.MarketSnapshot { return s.snapCh }

// Track subscribes a token ID and maps its events to a market ID.
func (s *Stream) Track(tokenID, marketID string) error {
	s.trackedMu.Lock()
	s.tracked[tokenID] = marketID
	s.trackedMu.Unlock()

	return s.writeJSON(wsUpdateMsg{Operation: "subscribe", AssetIDs: []string{tokenID}})
}

// Untrack drops a token ID from the subscription.
func (s *Stream) Untrack(tokenID string) error {
	s.trackedMu.Lock()
	delete(s.tracked, tokenID)
	s.trackedMu.Unlock()

	return s.writeJSON(wsUpdateMsg{Operation: "unsubscribe", AssetIDs: []string{tokenID}})
}

// Run connects and maintains the WebSocket with auto-reconnect.
// Blocks until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("websocket disconnected, reconnecting",
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close gracefully closes the connection.
func (s *Stream) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	if err := s.sendInitialSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.logger.Info("websocket connected")

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go s.pingLoop(pingCtx)

	// Read loop with deadline so we reconnect if the server goes silent
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		s.dispatchMessage(msg)
	}
}

func (s *Stream) sendInitialSubscription() error {
	s.trackedMu.RLock()
	ids := make([]string, 0, len(s.tracked))
	for id := range s.tracked {
		ids = append(ids, id)
	}
	s.trackedMu.RUnlock()

	return s.writeJSON(wsSubscribeMsg{Type: "market", AssetIDs: ids})
}

func (s *Stream) dispatchMessage(data []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch envelope.EventType {
	case "book":
		var evt wsBookEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.logger.Error("unmarshal book event", "error", err)
			return
		}
		mid, ok := bookMid(evt)
		if !ok {
			return
		}
		s.emit(evt.AssetID, mid)

	case "price_change":
		var evt wsPriceChangeEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.logger.Error("unmarshal price_change event", "error", err)
			return
		}
		for _, change := range evt.PriceChanges {
			price, err := strconv.ParseFloat(change.Price, 64)
			if err != nil {
				continue
			}
			s.emit(change.AssetID, price)
		}
	}
}

// bookMid derives the mid from the best levels of a book snapshot.
// Polymarket sends bids ascending and asks descending, so the best
// levels sit at the end of each slice.
func bookMid(evt wsBookEvent) (float64, bool) {
	if len(evt.Bids) == 0 || len(evt.Asks) == 0 {
		return 0, false
	}
	bid, err1 := strconv.ParseFloat(evt.Bids[len(evt.Bids)-1].Price, 64)
	ask, err2 := strconv.ParseFloat(evt.Asks[len(evt.Asks)-1].Price, 64)
	if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
		return 0, false
	}
	return (bid + ask) / 2, true
}

func (s *Stream) emit(tokenID string, mid float64) {
	s.trackedMu.RLock()
	marketID, ok := s.tracked[tokenID]
	s.trackedMu.RUnlock()
	if !ok {
		return
	}

	snap := types.MarketSnapshot{
		MarketID:  marketID,
		Timestamp: time.Now(),
		MidPrice:  mid,
	}
	select {
	case s.snapCh <- snap:
	default:
		s.logger.Warn("snapshot channel full, dropping update", "market", marketID)
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			if conn != nil {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, []byte("PING")); err != nil {
					s.logger.Debug("ping failed", "error", err)
				}
			}
			s.connMu.Unlock()
		}
	}
}

func (s *Stream) writeJSON(v any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		// Not connected yet; the initial subscription will cover it.
		return nil
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}
