package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stock represents a tracked instrument. This is the persisted baseline
// record; live price data lives in the in-memory quote cache and is never
// written back here.
type Stock struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Symbol      string          `gorm:"uniqueIndex;not null" json:"symbol"`
	Name        string          `json:"name"`
	Exchange    string          `json:"exchange"` // NYSE, NASDAQ
	Sector      string          `json:"sector"`
	Industry    string          `json:"industry"`
	MarketCap   decimal.Decimal `gorm:"type:decimal(20,2)" json:"market_cap"`
	ListingDate *time.Time      `json:"listing_date"`
	Status      string          `json:"status"` // active, delisted, suspended
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StockQuote is the API view of a stock merged with its latest live quote,
// when one is cached. For symbols never fetched the live fields stay zero and
// HasLiveData is false.
type StockQuote struct {
	Stock
	CurrentPrice  float64 `json:"current_price"`
	PreviousClose float64 `json:"previous_close"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	LiveMarketCap float64 `json:"live_market_cap"`
	LastUpdated   string  `json:"last_updated,omitempty"`
	HasLiveData   bool    `json:"has_live_data"`
}

// MigrateStockModels runs database migrations for stock-related models
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
		&TradingSignalRecord{},
	)
}
