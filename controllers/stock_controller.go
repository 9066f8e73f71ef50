package controllers

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nquinn721/ai-stock-trader-sub001/services"
	"github.com/nquinn721/ai-stock-trader-sub001/services/marketdata"
	"github.com/nquinn721/ai-stock-trader-sub001/services/sentiment"
	"github.com/nquinn721/ai-stock-trader-sub001/services/signals"
	"github.com/nquinn721/ai-stock-trader-sub001/services/stream"
	"gorm.io/gorm"
)

// historyWindow is how far back the signal endpoint asks for bars
const historyWindow = 90 * 24 * time.Hour

// StockController handles stock-related requests
type StockController struct {
	stocks    *services.StockService
	cache     *marketdata.PriceCache
	client    *marketdata.Client
	guard     *marketdata.RateLimitGuard
	generator *signals.Generator
	sentiment *sentiment.Service
	hub       *stream.Hub
	scheduler *marketdata.UpdateScheduler
}

// NewStockController creates a new stock controller
func NewStockController(stocks *services.StockService, cache *marketdata.PriceCache,
	client *marketdata.Client, guard *marketdata.RateLimitGuard, generator *signals.Generator,
	sentimentSvc *sentiment.Service, hub *stream.Hub, scheduler *marketdata.UpdateScheduler) *StockController {
	return &StockController{
		stocks:    stocks,
		cache:     cache,
		client:    client,
		guard:     guard,
		generator: generator,
		sentiment: sentimentSvc,
		hub:       hub,
		scheduler: scheduler,
	}
}

// GetStocks returns all tracked instruments enriched with live quotes
// GET /api/v1/stocks
func (sc *StockController) GetStocks(c *gin.Context) {
	quotes, err := sc.stocks.ListStocks()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stocks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": quotes, "count": len(quotes)})
}

// GetStock returns a single instrument by symbol
// GET /api/v1/stocks/:symbol
func (sc *StockController) GetStock(c *gin.Context) {
	symbol := c.Param("symbol")

	stock, err := sc.stocks.GetStock(symbol)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock"})
		return
	}

	c.JSON(http.StatusOK, sc.cache.Enrich(*stock))
}

// GetQuote returns the latest live snapshot for a symbol, fetching on demand
// when nothing is cached yet.
// GET /api/v1/stocks/:symbol/quote
func (sc *StockController) GetQuote(c *gin.Context) {
	symbol := c.Param("symbol")

	if snap, ok := sc.cache.Get(symbol); ok {
		c.JSON(http.StatusOK, snap)
		return
	}

	snap, ok := sc.fetchThroughGuard(c, symbol)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetSignal generates a trading signal on demand
// GET /api/v1/stocks/:symbol/signal
func (sc *StockController) GetSignal(c *gin.Context) {
	symbol := c.Param("symbol")

	if _, err := sc.stocks.GetStock(symbol); err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stock"})
		return
	}

	snap, ok := sc.cache.Get(symbol)
	if !ok {
		fetched, fetchedOK := sc.fetchThroughGuard(c, symbol)
		if !fetchedOK {
			return
		}
		snap = fetched
	}

	// Historical bars are best-effort: without them the generator uses its
	// fallback path.
	var bars []marketdata.PriceBar
	now := time.Now()
	fetched, err := sc.client.FetchBars(c.Request.Context(), symbol, now.Add(-historyWindow), now)
	if err != nil {
		if marketdata.IsRateLimitError(err) {
			sc.guard.RecordRateLimit()
		}
		log.Printf("Historical bars unavailable for %s: %v", symbol, err)
	} else {
		bars = fetched
	}

	sig := sc.generator.Generate(snap, bars, sc.sentiment.Score(symbol))

	if err := sc.stocks.SaveSignal(sig); err != nil {
		log.Printf("Failed to persist signal for %s: %v", symbol, err)
	}
	sc.hub.BroadcastSignal(sig)

	c.JSON(http.StatusOK, sig)
}

// GetStreamStatus reports hub, scheduler and guard state
// GET /api/v1/stream/status
func (sc *StockController) GetStreamStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"hub":        sc.hub.Status(),
		"scheduler":  sc.scheduler.Status(),
		"rate_limit": sc.guard.Status(),
	})
}

// fetchThroughGuard performs one on-demand fetch honoring the rate-limit
// guard. Writes an error response and returns false when the quote cannot be
// served.
func (sc *StockController) fetchThroughGuard(c *gin.Context, symbol string) (marketdata.QuoteSnapshot, bool) {
	if !sc.guard.Allow() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Quote provider is rate limited, try again later"})
		return marketdata.QuoteSnapshot{}, false
	}

	snap, err := sc.client.FetchQuote(c.Request.Context(), symbol)
	if err != nil {
		switch {
		case marketdata.IsUnresolvableSymbol(err):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Symbol cannot be resolved by the quote provider"})
		case marketdata.IsRateLimitError(err):
			sc.guard.RecordRateLimit()
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Quote provider is rate limited, try again later"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch quote"})
		}
		return marketdata.QuoteSnapshot{}, false
	}

	sc.guard.RecordSuccess()
	sc.cache.Put(snap)
	sc.hub.BroadcastSymbol(symbol, *snap)
	return *snap, true
}
