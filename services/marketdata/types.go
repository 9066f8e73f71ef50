package marketdata

import "time"

// QuoteSnapshot is the latest known live data for one instrument. Snapshots
// are created whole on every successful fetch and overwrite the previous one;
// they are never partially updated. Held only in memory.
type QuoteSnapshot struct {
	Symbol        string    `json:"symbol"`
	CurrentPrice  float64   `json:"current_price"`
	PreviousClose float64   `json:"previous_close"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	MarketCap     float64   `json:"market_cap"`
	LastUpdated   time.Time `json:"last_updated"`
}

// PriceBar is one historical bar from the upstream provider
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
