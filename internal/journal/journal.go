// Package journal persists signals, position lifecycle records, and an
// append-only event stream to SQLite. The journal exists for later
// performance analysis ("did risk limits cost us profitable trades?"),
// so rejections are recorded with their reason codes, not collapsed
// into a generic failure.
//
// Journal writes are advisory: a failed insert is logged and dropped,
// never propagated, so a broken disk cannot corrupt in-memory trading
// state or halt the tick loop.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"polymarket-meanrev/internal/portfolio"
	"polymarket-meanrev/pkg/types"
)

// SignalRecord is one detected signal.
type SignalRecord struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	MarketID      string `gorm:"index"`
	Question      string
	Direction     string
	Strength      string
	ZScore        float64
	MispricingPct float64
	EntryPrice    decimal.Decimal `gorm:"type:decimal(10,6)"`
	TargetPrice   decimal.Decimal `gorm:"type:decimal(10,6)"`
	StopPrice     decimal.Decimal `gorm:"type:decimal(10,6)"`
	DetectedAt    time.Time
	CreatedAt     time.Time
}

// PositionRecord mirrors one simulated position. The row is created on
// open and updated in place on close.
type PositionRecord struct {
	PositionID  string `gorm:"primaryKey"`
	MarketID    string `gorm:"index"`
	Question    string
	Direction   string
	Strength    string
	Status      string          `gorm:"index"`
	SizeUSD     decimal.Decimal `gorm:"type:decimal(20,2)"`
	FillPrice   decimal.Decimal `gorm:"type:decimal(10,6)"`
	TargetPrice decimal.Decimal `gorm:"type:decimal(10,6)"`
	StopPrice   decimal.Decimal `gorm:"type:decimal(10,6)"`
	ExitPrice   decimal.Decimal `gorm:"type:decimal(10,6)"`
	RealizedPnL decimal.Decimal `gorm:"column:realized_pnl;type:decimal(20,6)"`
	OpenedAt    time.Time
	ClosedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventRecord is the append-only event stream.
type EventRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	EventType string `gorm:"index"`
	MarketID  string `gorm:"index"`
	Payload   string
	Timestamp time.Time
	CreatedAt time.Time
}

// Journal owns the SQLite connection.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open creates or opens the journal database and migrates its schema.
func Open(dbPath string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if err := db.AutoMigrate(&SignalRecord{}, &PositionRecord{}, &EventRecord{}); err != nil {
		return nil, fmt.Errorf("migrate journal schema: %w", err)
	}

	j := &Journal{db: db, logger: logger.With("component", "journal")}
	j.logger.Info("journal opened", "path", dbPath)
	return j, nil
}

// Close flushes and closes the underlying connection.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordSignal stores a detected signal and appends a SIGNAL event.
func (j *Journal) RecordSignal(sig *types.Signal) {
	rec := SignalRecord{
		MarketID:      sig.MarketID,
		Question:      sig.Question,
		Direction:     string(sig.Direction),
		Strength:      string(sig.Strength),
		ZScore:        sig.ZScore,
		MispricingPct: sig.MispricingPct,
		EntryPrice:    decimal.NewFromFloat(sig.EntryPrice),
		TargetPrice:   decimal.NewFromFloat(sig.TargetPrice),
		StopPrice:     decimal.NewFromFloat(sig.StopPrice),
		DetectedAt:    sig.DetectedAt,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		j.logger.Error("signal record failed", "market", sig.MarketID, "error", err)
		return
	}
	j.appendEvent(types.EventSignal, sig.MarketID, sig.DetectedAt, map[string]any{
		"direction": sig.Direction,
		"strength":  sig.Strength,
		"z_score":   sig.ZScore,
		"entry":     sig.EntryPrice,
	})
}

// RecordReject appends a REJECT event with its structured reason code.
func (j *Journal) RecordReject(order types.Order, reason types.RejectReason, at time.Time) {
	j.appendEvent(types.EventReject, order.MarketID, at, map[string]any{
		"direction": order.Direction,
		"size_usd":  order.SizeUSD,
		"reason":    reason,
	})
}

// RecordOpen implements portfolio.Recorder.
func (j *Journal) RecordOpen(p *portfolio.Position) {
	rec := PositionRecord{
		PositionID:  p.ID,
		MarketID:    p.MarketID,
		Question:    p.Question,
		Direction:   string(p.Direction),
		Strength:    string(p.Strength),
		Status:      string(p.Status),
		SizeUSD:     decimal.NewFromFloat(p.SizeUSD),
		FillPrice:   decimal.NewFromFloat(p.FillPrice),
		TargetPrice: decimal.NewFromFloat(p.TargetPrice),
		StopPrice:   decimal.NewFromFloat(p.StopPrice),
		OpenedAt:    p.OpenedAt,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		j.logger.Error("open record failed", "position", p.ID, "error", err)
		return
	}
	j.appendEvent(types.EventOpen, p.MarketID, p.OpenedAt, map[string]any{
		"position_id": p.ID,
		"direction":   p.Direction,
		"size_usd":    p.SizeUSD,
		"fill":        p.FillPrice,
	})
}

// RecordClose implements portfolio.Recorder.
func (j *Journal) RecordClose(p *portfolio.Position) {
	updates := map[string]any{
		"status":       string(p.Status),
		"exit_price":   decimal.NewFromFloat(p.ExitPrice),
		"realized_pnl": decimal.NewFromFloat(p.RealizedPnL),
		"closed_at":    p.ClosedAt,
	}
	if err := j.db.Model(&PositionRecord{}).Where("position_id = ?", p.ID).Updates(updates).Error; err != nil {
		j.logger.Error("close record failed", "position", p.ID, "error", err)
		return
	}
	j.appendEvent(types.EventClose, p.MarketID, p.ClosedAt, map[string]any{
		"position_id": p.ID,
		"status":      p.Status,
		"exit":        p.ExitPrice,
		"pnl":         p.RealizedPnL,
	})
}

func (j *Journal) appendEvent(et types.EventType, marketID string, at time.Time, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		j.logger.Error("event payload marshal failed", "type", et, "error", err)
		return
	}
	rec := EventRecord{
		EventType: string(et),
		MarketID:  marketID,
		Payload:   string(body),
		Timestamp: at,
	}
	if err := j.db.Create(&rec).Error; err != nil {
		j.logger.Error("event append failed", "type", et, "error", err)
	}
}

// Events returns the most recent events, newest first.
func (j *Journal) Events(limit int) ([]EventRecord, error) {
	var events []EventRecord
	err := j.db.Order("id DESC").Limit(limit).Find(&events).Error
	return events, err
}

// Positions returns all recorded positions for a market, oldest first.
func (j *Journal) Positions(marketID string) ([]PositionRecord, error) {
	var recs []PositionRecord
	err := j.db.Where("market_id = ?", marketID).Order("opened_at").Find(&recs).Error
	return recs, err
}

// Signals returns the most recent signal records, newest first.
func (j *Journal) Signals(limit int) ([]SignalRecord, error) {
	var recs []SignalRecord
	err := j.db.Order("id DESC").Limit(limit).Find(&recs).Error
	return recs, err
}
