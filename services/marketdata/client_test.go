package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchQuoteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v7/finance/quote" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbols"); got != "AAPL" {
			t.Errorf("unexpected symbols param %q", got)
		}
		fmt.Fprint(w, `{"quoteResponse":{"result":[{
			"symbol":"AAPL",
			"regularMarketPrice":190.5,
			"regularMarketPreviousClose":188.0,
			"regularMarketChangePercent":1.33,
			"regularMarketVolume":52000000,
			"marketCap":2900000000000
		}],"error":null}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	snap, err := client.FetchQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if snap.Symbol != "AAPL" || snap.CurrentPrice != 190.5 || snap.Volume != 52000000 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.LastUpdated.IsZero() {
		t.Error("last updated must be set")
	}
}

func TestFetchQuoteCoercesMissingFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"quoteResponse":{"result":[{"symbol":"AAPL","regularMarketPrice":190.5}],"error":null}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	snap, err := client.FetchQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("FetchQuote: %v", err)
	}
	if snap.PreviousClose != 0 || snap.Volume != 0 || snap.MarketCap != 0 {
		t.Errorf("missing fields must coerce to zero: %+v", snap)
	}
}

func TestFetchQuoteSkipsDottedSymbols(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	_, err := client.FetchQuote(context.Background(), "BRK.B")
	if !IsUnresolvableSymbol(err) {
		t.Fatalf("expected unresolvable-symbol error, got %v", err)
	}
	if atomic.LoadInt64(&calls) != 0 {
		t.Errorf("dotted symbol must not hit the network, saw %d calls", calls)
	}
	if IsRateLimitError(err) {
		t.Error("symbol skip must not be classified as rate limiting")
	}
}

func TestFetchQuoteClassifiesErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		rateLimited bool
	}{
		{
			name:        "http 429",
			status:      http.StatusTooManyRequests,
			body:        `{"error":"rate limited"}`,
			rateLimited: true,
		},
		{
			name:        "html body under load",
			status:      http.StatusOK,
			body:        `<html><body>Edge: Too Many Requests</body></html>`,
			rateLimited: true,
		},
		{
			name:        "server error",
			status:      http.StatusInternalServerError,
			body:        `{"error":"boom"}`,
			rateLimited: false,
		},
		{
			name:        "garbage json",
			status:      http.StatusOK,
			body:        `{"quoteResponse": [not json`,
			rateLimited: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(server.URL, "", time.Second)
			_, err := client.FetchQuote(context.Background(), "AAPL")
			if err == nil {
				t.Fatal("expected an error")
			}
			if IsRateLimitError(err) != tt.rateLimited {
				t.Errorf("rate-limit classification = %v, want %v (err: %v)",
					IsRateLimitError(err), tt.rateLimited, err)
			}
		})
	}
}

func TestFetchQuoteTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", 20*time.Millisecond)
	_, err := client.FetchQuote(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if IsRateLimitError(err) {
		t.Error("timeouts are transient, not rate limiting")
	}
}

func TestFetchBars(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v8/finance/chart/AAPL" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"chart":{"result":[{
			"timestamp":[1700000000,1700086400,1700172800],
			"indicators":{"quote":[{
				"open":[100,101,102],
				"high":[101,102,103],
				"low":[99,100,101],
				"close":[100.5,101.5,102.5],
				"volume":[1000000,1100000,1200000]
			}]}
		}],"error":null}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", time.Second)
	bars, err := client.FetchBars(context.Background(), "AAPL",
		time.Now().AddDate(0, 0, -5), time.Now())
	if err != nil {
		t.Fatalf("FetchBars: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	if bars[2].Close != 102.5 || bars[2].Volume != 1200000 {
		t.Errorf("unexpected last bar: %+v", bars[2])
	}
}
