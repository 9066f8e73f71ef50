package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultFetchTimeout bounds a single upstream request
	DefaultFetchTimeout = 10 * time.Second

	quoteUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ErrRateLimited marks an upstream throttling signal: HTTP 429 or a
// malformed body shaped like the provider's overload responses. Only these
// errors feed the rate-limit guard.
var ErrRateLimited = errors.New("upstream rate limited")

// ErrUnresolvableSymbol marks symbols the provider cannot resolve (symbols
// containing a dot). These are skipped permanently without a network call.
var ErrUnresolvableSymbol = errors.New("symbol not resolvable by provider")

// Client fetches quotes and historical bars from the upstream provider
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a quote client with a fixed per-request timeout
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type quoteResult struct {
	Symbol                     string  `json:"symbol"`
	RegularMarketPrice         float64 `json:"regularMarketPrice"`
	RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
	RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
	RegularMarketVolume        float64 `json:"regularMarketVolume"`
	MarketCap                  float64 `json:"marketCap"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []quoteResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchQuote fetches the latest quote for a single symbol. On any error the
// caller's cache must be left untouched; stale data beats corrupt data.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*QuoteSnapshot, error) {
	if strings.Contains(symbol, ".") {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvableSymbol, symbol)
	}

	url := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", c.baseURL, symbol)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if looksThrottled(body) {
			return nil, fmt.Errorf("%w: malformed body for %s", ErrRateLimited, symbol)
		}
		return nil, fmt.Errorf("parse quote for %s: %w", symbol, err)
	}
	if resp.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("provider error for %s: %s", symbol, resp.QuoteResponse.Error.Description)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote data for %s", symbol)
	}

	r := resp.QuoteResponse.Result[0]
	return &QuoteSnapshot{
		Symbol:        symbol,
		CurrentPrice:  sanitize(r.RegularMarketPrice),
		PreviousClose: sanitize(r.RegularMarketPreviousClose),
		ChangePercent: sanitize(r.RegularMarketChangePercent),
		Volume:        int64(sanitize(r.RegularMarketVolume)),
		MarketCap:     sanitize(r.MarketCap),
		LastUpdated:   time.Now(),
	}, nil
}

// FetchBars fetches daily historical bars for symbol over [from, to]
func (c *Client) FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]PriceBar, error) {
	if strings.Contains(symbol, ".") {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvableSymbol, symbol)
	}

	url := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		c.baseURL, symbol, from.Unix(), to.Unix())
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if looksThrottled(body) {
			return nil, fmt.Errorf("%w: malformed body for %s", ErrRateLimited, symbol)
		}
		return nil, fmt.Errorf("parse bars for %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("provider error for %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no bar data for %s", symbol)
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	bars := make([]PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		bar := PriceBar{Date: time.Unix(ts, 0)}
		if i < len(quote.Open) {
			bar.Open = sanitize(quote.Open[i])
		}
		if i < len(quote.High) {
			bar.High = sanitize(quote.High[i])
		}
		if i < len(quote.Low) {
			bar.Low = sanitize(quote.Low[i])
		}
		if i < len(quote.Close) {
			bar.Close = sanitize(quote.Close[i])
		}
		if i < len(quote.Volume) {
			bar.Volume = int64(sanitize(quote.Volume[i]))
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// get performs the request and classifies HTTP-level throttling
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", quoteUserAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and network failures are transient, not rate limiting
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status 429", ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		if looksThrottled(body) {
			return nil, fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

// IsRateLimitError reports whether err carries the upstream throttling signal
func IsRateLimitError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsUnresolvableSymbol reports whether err is a permanent symbol skip
func IsUnresolvableSymbol(err error) bool {
	return errors.Is(err, ErrUnresolvableSymbol)
}

// looksThrottled matches overload responses the provider returns instead of
// JSON when it is shedding load: HTML error pages or explicit throttle text.
func looksThrottled(body []byte) bool {
	s := strings.TrimSpace(string(body))
	if strings.HasPrefix(s, "<") {
		return true
	}
	return strings.Contains(s, "Too Many Requests") || strings.Contains(s, "Rate limited")
}

// sanitize coerces NaN and infinite values to 0 before they reach the cache
func sanitize(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// truncate caps a response body for error messages
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
