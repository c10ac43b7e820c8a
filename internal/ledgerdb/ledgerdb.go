// Package ledgerdb is a secondary SQL mirror of the trade ledger: the JSON
// store (internal/store) is authoritative, this is a queryable read-model
// for ad-hoc SQL querying and aggregation.
package ledgerdb

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/web3guy0/polybot/internal/botmodel"
)

// DB wraps a gorm connection to either PostgreSQL (when the DSN looks like
// one) or a local SQLite file, matching how operators size a single-host
// deployment versus a managed Postgres instance.
type DB struct {
	gorm *gorm.DB
}

// TradeRow mirrors botmodel.TradeRecord for SQL querying.
type TradeRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	BotID        string `gorm:"index"`
	BotName      string
	TokenSymbol  string
	TokenAddress string `gorm:"index"`
	Action       string
	Amount       string // wei, stored as decimal string to avoid precision loss
	Price        decimal.Decimal `gorm:"type:decimal(30,12)"`
	EthValue     string
	GasCost      string
	Profit       string
	ProfitPercent decimal.Decimal `gorm:"type:decimal(10,4)"`
	PositionID   int
	TxHash       string `gorm:"uniqueIndex"`
	Timestamp    time.Time `gorm:"index"`
	CreatedAt    time.Time
}

func (TradeRow) TableName() string { return "trades" }

// DailyStatRow is a per-bot, per-day rollup read by DB.Trend
// (spec.md §4.3's `trend(botId, days)`).
type DailyStatRow struct {
	BotID  string          `gorm:"primaryKey"`
	Date   string          `gorm:"primaryKey"` // YYYY-MM-DD
	Trades int
	Wins   int
	Losses int
	Profit decimal.Decimal `gorm:"type:decimal(30,12)"`
}

func (DailyStatRow) TableName() string { return "daily_stats" }

// New opens the ledger mirror. dsn starting with postgres:// or
// postgresql:// connects to Postgres; anything else is treated as a SQLite
// file path, creating its parent directory if needed.
func New(dsn string) (*DB, error) {
	var gdb *gorm.DB
	var err error

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		gdb, err = gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("ledgerdb: postgres connect: %w", err)
		}
		log.Info().Msg("ledger mirror connected (postgres)")
	} else {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ledgerdb: mkdir: %w", err)
			}
		}
		gdb, err = gorm.Open(sqlite.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("ledgerdb: sqlite open: %w", err)
		}
		log.Info().Str("path", dsn).Msg("ledger mirror initialized (sqlite)")
	}

	if err := gdb.AutoMigrate(&TradeRow{}, &DailyStatRow{}); err != nil {
		return nil, fmt.Errorf("ledgerdb: migrate: %w", err)
	}

	return &DB{gorm: gdb}, nil
}

// RecordTrade mirrors one trade into SQL. Duplicate tx hashes are ignored
// rather than erroring, matching spec.md §4.3's "record never fails on
// duplicate txHash".
func (d *DB) RecordTrade(t botmodel.TradeRecord) error {
	row := TradeRow{
		BotID:         t.BotID,
		BotName:       t.BotName,
		TokenSymbol:   t.TokenSymbol,
		TokenAddress:  t.TokenAddress,
		Action:        string(t.Action),
		Amount:        bigString(t.Amount),
		Price:         t.Price,
		EthValue:      bigString(t.EthValue),
		GasCost:       bigString(t.GasCost),
		Profit:        bigString(t.Profit),
		ProfitPercent: t.ProfitPercent,
		PositionID:    t.PositionID,
		TxHash:        t.TxHash,
		Timestamp:     t.Timestamp,
	}

	var existing TradeRow
	err := d.gorm.Where("tx_hash = ?", t.TxHash).First(&existing).Error
	if err == nil {
		return nil // already recorded
	}
	if err != gorm.ErrRecordNotFound {
		return fmt.Errorf("ledgerdb: lookup trade: %w", err)
	}
	if err := d.gorm.Create(&row).Error; err != nil {
		return fmt.Errorf("ledgerdb: insert trade: %w", err)
	}
	return d.bumpDailyStat(row)
}

func (d *DB) bumpDailyStat(row TradeRow) error {
	date := row.Timestamp.UTC().Format("2006-01-02")
	var stat DailyStatRow
	err := d.gorm.Where("bot_id = ? AND date = ?", row.BotID, date).First(&stat).Error
	if err == gorm.ErrRecordNotFound {
		stat = DailyStatRow{BotID: row.BotID, Date: date}
	} else if err != nil {
		return fmt.Errorf("ledgerdb: lookup daily stat: %w", err)
	}

	stat.Trades++
	if row.Action == string(botmodel.ActionSell) {
		if row.ProfitPercent.IsPositive() {
			stat.Wins++
		} else if row.ProfitPercent.IsNegative() {
			stat.Losses++
		}
	}
	profit, _ := decimal.NewFromString(row.Profit)
	stat.Profit = stat.Profit.Add(profit)

	return d.gorm.Save(&stat).Error
}

// TradesForBot returns trades for one bot, optionally bounded by
// [since, until], per spec.md §4.3's getByBot.
func (d *DB) TradesForBot(botID string, since, until *time.Time) ([]TradeRow, error) {
	q := d.gorm.Where("bot_id = ?", botID)
	if since != nil {
		q = q.Where("timestamp >= ?", *since)
	}
	if until != nil {
		q = q.Where("timestamp <= ?", *until)
	}
	var rows []TradeRow
	err := q.Order("timestamp ASC").Find(&rows).Error
	return rows, err
}

// TradesForToken returns trades for one token address across all bots.
func (d *DB) TradesForToken(tokenAddress string) ([]TradeRow, error) {
	var rows []TradeRow
	err := d.gorm.Where("token_address = ?", tokenAddress).Order("timestamp ASC").Find(&rows).Error
	return rows, err
}

// Trend returns the last `days` of daily stats for one bot, per spec.md
// §4.3's trend(botId, days).
func (d *DB) Trend(botID string, days int) ([]DailyStatRow, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	var rows []DailyStatRow
	err := d.gorm.Where("bot_id = ? AND date >= ?", botID, cutoff).Order("date ASC").Find(&rows).Error
	return rows, err
}

func bigString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

// Close releases the underlying connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
