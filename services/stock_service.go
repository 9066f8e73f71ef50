package services

import (
	"fmt"
	"log"
	"time"

	"github.com/nquinn721/ai-stock-trader-sub001/models"
	"github.com/nquinn721/ai-stock-trader-sub001/services/marketdata"
	"gorm.io/gorm"
)

// StockService is the persistence collaborator for the live quote engine. It
// owns the static instrument universe and the baseline records; live price
// data is never written back to it.
type StockService struct {
	db    *gorm.DB
	cache *marketdata.PriceCache
}

// NewStockService creates a stock service
func NewStockService(db *gorm.DB, cache *marketdata.PriceCache) *StockService {
	return &StockService{db: db, cache: cache}
}

// defaultUniverse seeds the tracked instrument set on first run
var defaultUniverse = []models.Stock{
	{Symbol: "AAPL", Name: "Apple Inc.", Exchange: "NASDAQ", Sector: "Technology", Status: "active"},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", Exchange: "NASDAQ", Sector: "Technology", Status: "active"},
	{Symbol: "MSFT", Name: "Microsoft Corporation", Exchange: "NASDAQ", Sector: "Technology", Status: "active"},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Exchange: "NASDAQ", Sector: "Consumer Discretionary", Status: "active"},
	{Symbol: "TSLA", Name: "Tesla Inc.", Exchange: "NASDAQ", Sector: "Consumer Discretionary", Status: "active"},
	{Symbol: "META", Name: "Meta Platforms Inc.", Exchange: "NASDAQ", Sector: "Technology", Status: "active"},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", Exchange: "NASDAQ", Sector: "Technology", Status: "active"},
	{Symbol: "NFLX", Name: "Netflix Inc.", Exchange: "NASDAQ", Sector: "Communication Services", Status: "active"},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", Exchange: "NYSE", Sector: "Financials", Status: "active"},
	{Symbol: "BRK.B", Name: "Berkshire Hathaway Inc.", Exchange: "NYSE", Sector: "Financials", Status: "active"},
	{Symbol: "V", Name: "Visa Inc.", Exchange: "NYSE", Sector: "Financials", Status: "active"},
	{Symbol: "JNJ", Name: "Johnson & Johnson", Exchange: "NYSE", Sector: "Health Care", Status: "active"},
}

// SeedDefaultStocks creates any missing instruments from the default universe
func (s *StockService) SeedDefaultStocks() error {
	for _, stock := range defaultUniverse {
		var existing models.Stock
		err := s.db.Where("symbol = ?", stock.Symbol).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		if err := s.db.Create(&stock).Error; err != nil {
			return fmt.Errorf("failed to create stock %s: %w", stock.Symbol, err)
		}
	}
	return nil
}

// TrackedSymbols returns the symbols of all active instruments. The update
// scheduler iterates this universe every cycle.
func (s *StockService) TrackedSymbols() ([]string, error) {
	var symbols []string
	err := s.db.Model(&models.Stock{}).
		Where("status = ?", "active").
		Order("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load tracked symbols: %w", err)
	}
	return symbols, nil
}

// ListStocks returns all instruments enriched with cached live quotes
func (s *StockService) ListStocks() ([]models.StockQuote, error) {
	var stocks []models.Stock
	if err := s.db.Order("symbol").Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch stocks: %w", err)
	}

	quotes := make([]models.StockQuote, 0, len(stocks))
	for _, stock := range stocks {
		quotes = append(quotes, s.cache.Enrich(stock))
	}
	return quotes, nil
}

// GetStock looks up one instrument by symbol
func (s *StockService) GetStock(symbol string) (*models.Stock, error) {
	var stock models.Stock
	if err := s.db.Where("symbol = ?", symbol).First(&stock).Error; err != nil {
		return nil, err
	}
	return &stock, nil
}

// SaveSignal records a generated signal for later cleanup
func (s *StockService) SaveSignal(sig models.TradingSignal) error {
	record := models.TradingSignalRecord{
		Symbol:      sig.Symbol,
		Direction:   sig.Direction,
		Confidence:  sig.Confidence,
		TargetPrice: sig.TargetPrice,
		Reason:      sig.Reason,
	}
	return s.db.Create(&record).Error
}

// CleanupOldSignals removes stored signals older than three months
func (s *StockService) CleanupOldSignals() error {
	threeMonthsAgo := time.Now().AddDate(0, -3, 0)
	result := s.db.Where("created_at < ?", threeMonthsAgo).Delete(&models.TradingSignalRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Printf("Cleaned up %d old trading signals", result.RowsAffected)
	}
	return nil
}
