package signals

import (
	"testing"
	"time"

	"github.com/nquinn721/ai-stock-trader-sub001/models"
	"github.com/nquinn721/ai-stock-trader-sub001/services/marketdata"
)

func barsFromCloses(closes []float64, volume int64) []marketdata.PriceBar {
	bars := make([]marketdata.PriceBar, len(closes))
	date := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		bars[i] = marketdata.PriceBar{Date: date.AddDate(0, 0, i), Close: c, Volume: volume}
	}
	return bars
}

func ascendingCloses(start float64, n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)
	}
	return closes
}

func TestRichPathAlignedBuy(t *testing.T) {
	// 22 ascending points: positive momentum, positive trend, positive
	// sentiment all align.
	closes := ascendingCloses(100, 22)
	bars := barsFromCloses(closes, 1_000_000)
	snap := marketdata.QuoteSnapshot{
		Symbol:        "AAPL",
		CurrentPrice:  121,
		PreviousClose: 120,
		ChangePercent: (121.0 - 120.0) / 120.0 * 100,
		Volume:        1_000_000,
	}

	sig := NewGenerator(1).Generate(snap, bars, 0.5)

	if sig.Direction != models.SignalBuy {
		t.Fatalf("expected BUY, got %s (%s)", sig.Direction, sig.Reason)
	}
	if sig.Confidence < 0.5 || sig.Confidence > 0.9 {
		t.Errorf("confidence %v outside [0.5, 0.9]", sig.Confidence)
	}
	if sig.TargetPrice <= snap.CurrentPrice {
		t.Errorf("buy target %v must exceed current price %v", sig.TargetPrice, snap.CurrentPrice)
	}
}

func TestRichPathFlatHold(t *testing.T) {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	bars := barsFromCloses(closes, 1_000_000)
	snap := marketdata.QuoteSnapshot{
		Symbol:        "JNJ",
		CurrentPrice:  100,
		PreviousClose: 100,
		ChangePercent: 0,
		Volume:        1_000_000,
	}

	sig := NewGenerator(1).Generate(snap, bars, 0)

	if sig.Direction != models.SignalHold {
		t.Fatalf("expected HOLD for flat series, got %s (%s)", sig.Direction, sig.Reason)
	}
	if sig.TargetPrice != snap.CurrentPrice {
		t.Errorf("hold target must equal current price, got %v", sig.TargetPrice)
	}
	if sig.Confidence <= 0 || sig.Confidence > 0.5 {
		t.Errorf("hold confidence %v must be low but positive", sig.Confidence)
	}
}

func TestRichPathStrongSignalCapsConfidence(t *testing.T) {
	closes := ascendingCloses(100, 22)
	bars := barsFromCloses(closes, 1_000_000)
	snap := marketdata.QuoteSnapshot{
		Symbol:        "NVDA",
		CurrentPrice:  121,
		PreviousClose: 115,
		ChangePercent: 5.2,
		Volume:        2_000_000, // double the trailing average
	}

	sig := NewGenerator(1).Generate(snap, bars, 1.0)

	if sig.Direction != models.SignalBuy {
		t.Fatalf("expected BUY, got %s", sig.Direction)
	}
	if sig.Confidence != 0.9 {
		t.Errorf("strong signal confidence must cap at 0.9, got %v", sig.Confidence)
	}
}

func TestRichPathSellOnDecline(t *testing.T) {
	closes := make([]float64, 22)
	for i := range closes {
		closes[i] = 121 - float64(i)
	}
	bars := barsFromCloses(closes, 1_000_000)
	snap := marketdata.QuoteSnapshot{
		Symbol:        "TSLA",
		CurrentPrice:  100,
		PreviousClose: 101,
		ChangePercent: -0.99,
		Volume:        1_000_000,
	}

	sig := NewGenerator(1).Generate(snap, bars, -0.5)

	if sig.Direction != models.SignalSell {
		t.Fatalf("expected SELL, got %s (%s)", sig.Direction, sig.Reason)
	}
	if sig.TargetPrice >= snap.CurrentPrice {
		t.Errorf("sell target %v must be below current price %v", sig.TargetPrice, snap.CurrentPrice)
	}
}

func TestFallbackPathThresholds(t *testing.T) {
	bars := barsFromCloses([]float64{100, 101, 102, 103, 104}, 1_000_000)

	tests := []struct {
		name          string
		changePercent float64
		want          models.SignalDirection
	}{
		{"big gain buys", 2.0, models.SignalBuy},
		{"big loss sells", -2.0, models.SignalSell},
		{"small move holds", 0.5, models.SignalHold},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := marketdata.QuoteSnapshot{
				Symbol:        "IPO",
				CurrentPrice:  100,
				ChangePercent: tt.changePercent,
				Volume:        1_000_000,
			}
			sig := NewGenerator(1).Generate(snap, bars, 0)
			if sig.Direction != tt.want {
				t.Errorf("change %.1f%%: got %s, want %s", tt.changePercent, sig.Direction, tt.want)
			}
		})
	}
}

func TestHoldConfidenceIsDeterministic(t *testing.T) {
	snap := marketdata.QuoteSnapshot{Symbol: "JNJ", CurrentPrice: 100, Volume: 1_000_000}
	bars := barsFromCloses([]float64{100, 100, 100}, 1_000_000)

	a := NewGenerator(42).Generate(snap, bars, 0)
	b := NewGenerator(42).Generate(snap, bars, 0)

	if a.Confidence != b.Confidence {
		t.Errorf("same seed must yield same hold confidence: %v vs %v", a.Confidence, b.Confidence)
	}
}

func TestConfidenceAlwaysClamped(t *testing.T) {
	bars := barsFromCloses(ascendingCloses(10, 30), 1_000_000)
	snap := marketdata.QuoteSnapshot{
		Symbol:        "MEME",
		CurrentPrice:  39,
		PreviousClose: 20,
		ChangePercent: 95,
		Volume:        50_000_000,
	}

	sig := NewGenerator(1).Generate(snap, bars, 1)
	if sig.Confidence < 0 || sig.Confidence > 1 {
		t.Errorf("confidence %v outside [0, 1]", sig.Confidence)
	}
}
