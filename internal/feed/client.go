// Package feed turns the public Polymarket Gamma API into a stream of
// MarketSnapshot records for the signal pipeline. The client polls the
// paginated /markets endpoint, filters to liquid binary markets, and
// derives a mid price per market; an optional websocket stream layers
// lower-latency mid updates on top of the poll cycle.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-meanrev/internal/config"
	"polymarket-meanrev/pkg/types"
)

// GammaMarket is the JSON shape returned by the Gamma API, trimmed to
// the fields the feed consumes.
type GammaMarket struct {
	ID              string  `json:"id"`
	Question        string  `json:"question"`
	ConditionID     string  `json:"conditionId"`
	Slug            string  `json:"slug"`
	Active          bool    `json:"active"`
	Closed          bool    `json:"closed"`
	AcceptingOrders bool    `json:"acceptingOrders"`
	EndDate         string  `json:"endDate"`
	Volume24hr      float64 `json:"volume24hr"`
	ClobTokenIds    string  `json:"clobTokenIds"`
	BestBid         float64 `json:"bestBid"`
	BestAsk         float64 `json:"bestAsk"`
	LastTradePrice  float64 `json:"lastTradePrice"`
}

// Client polls the Gamma API for market snapshots.
type Client struct {
	httpClient *resty.Client
	cfg        config.FeedConfig
	limiter    *TokenBucket
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient creates a feed client pointed at the Gamma API.
func NewClient(api config.APIConfig, cfg config.FeedConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(api.GammaBaseURL).
		SetTimeout(cfg.FetchTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		limiter:    NewTokenBucket(50, 10),
		logger:     logger.With("component", "feed"),
		now:        time.Now,
	}
}

// FetchSnapshots polls the Gamma API and returns one snapshot per
// tracked market, highest 24h volume first, capped at MaxMarkets. A
// fetch failure returns an error so the engine can skip the tick for
// these markets without stalling the scheduler.
func (c *Client) FetchSnapshots(ctx context.Context) ([]types.MarketSnapshot, error) {
	markets, err := c.fetchMarkets(ctx)
	if err != nil {
		return nil, err
	}

	now := c.now()
	snaps := make([]types.MarketSnapshot, 0, len(markets))
	for _, m := range markets {
		snap, ok := c.toSnapshot(m, now)
		if !ok {
			continue
		}
		snaps = append(snaps, snap)
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Volume24h > snaps[j].Volume24h })
	if len(snaps) > c.cfg.MaxMarkets {
		snaps = snaps[:c.cfg.MaxMarkets]
	}

	c.logger.Debug("fetch complete",
		"fetched", len(markets),
		"tracked", len(snaps),
	)
	return snaps, nil
}

// FetchMarket returns a snapshot for a single market by Gamma ID.
func (c *Client) FetchMarket(ctx context.Context, marketID string) (*types.MarketSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var m GammaMarket
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&m).
		Get("/markets/" + marketID)
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", marketID, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch market %s: status %d", marketID, resp.StatusCode())
	}

	snap, ok := c.toSnapshot(m, c.now())
	if !ok {
		return nil, fmt.Errorf("market %s has no usable price", marketID)
	}
	return &snap, nil
}

func (c *Client) fetchMarkets(ctx context.Context) ([]GammaMarket, error) {
	var all []GammaMarket
	offset := 0
	limit := 100

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var page []GammaMarket
		resp, err := c.httpClient.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"limit":  strconv.Itoa(limit),
				"offset": strconv.Itoa(offset),
				"active": "true",
				"closed": "false",
			}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("fetch markets page %d: %w", offset, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("fetch markets: status %d", resp.StatusCode())
		}

		all = append(all, page...)

		if len(page) < limit {
			break
		}
		offset += limit
	}

	return all, nil
}

// toSnapshot converts one Gamma market, applying the hard filters:
// tradeable state, volume floor, and resolution date ceiling. Mid price
// prefers the book mid and falls back to the last trade print.
func (c *Client) toSnapshot(m GammaMarket, now time.Time) (types.MarketSnapshot, bool) {
	if !m.Active || m.Closed || !m.AcceptingOrders {
		return types.MarketSnapshot{}, false
	}
	if m.Volume24hr < c.cfg.MinVolume24h {
		return types.MarketSnapshot{}, false
	}

	var endDate time.Time
	if m.EndDate != "" {
		parsed, err := time.Parse(time.RFC3339, m.EndDate)
		if err != nil {
			c.logger.Debug("unparseable end date", "market", m.ID, "end_date", m.EndDate)
		} else {
			endDate = parsed
		}
	}
	if !endDate.IsZero() && endDate.After(now.AddDate(0, 0, c.cfg.MaxEndDateDays)) {
		return types.MarketSnapshot{}, false
	}

	mid := 0.0
	switch {
	case m.BestBid > 0 && m.BestAsk > 0:
		mid = (m.BestBid + m.BestAsk) / 2
	case m.LastTradePrice > 0:
		mid = m.LastTradePrice
	default:
		return types.MarketSnapshot{}, false
	}

	snap := types.MarketSnapshot{
		MarketID:   m.ID,
		Question:   m.Question,
		Timestamp:  now,
		MidPrice:   mid,
		Bid:        m.BestBid,
		Ask:        m.BestAsk,
		Volume24h:  m.Volume24hr,
		EndDate:    endDate,
		YesTokenID: yesTokenID(m.ClobTokenIds),
	}
	if err := snap.Validate(); err != nil {
		c.logger.Debug("dropping market with invalid snapshot", "market", m.ID, "error", err)
		return types.MarketSnapshot{}, false
	}
	return snap, true
}

// yesTokenID extracts the first CLOB token ID (the YES side) from the
// JSON-encoded array Gamma embeds as a string.
func yesTokenID(clobTokenIds string) string {
	if clobTokenIds == "" {
		return ""
	}
	var ids []string
	if err := json.Unmarshal([]byte(clobTokenIds), &ids); err != nil || len(ids) == 0 {
		return ""
	}
	return ids[0]
}
