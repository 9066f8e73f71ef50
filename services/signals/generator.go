package signals

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nquinn721/ai-stock-trader-sub001/models"
	"github.com/nquinn721/ai-stock-trader-sub001/services/marketdata"
)

// Scoring weights and thresholds. The combined score blends the latest price
// momentum, the recent historical trend and an external sentiment score, then
// shifts by a volume-ratio adjustment.
const (
	weightMomentum  = 0.4
	weightTrend     = 0.3
	weightSentiment = 0.3

	volumeHighRatio  = 1.2
	volumeLowRatio   = 0.8
	volumeBoost      = 0.5
	volumePenalty    = -0.3
	trendLookback    = 10
	volumeLookback   = 20
	richPathMinBars  = 21
	strongThreshold  = 1.0
	weakThreshold    = 0.3
	simpleThreshold  = 1.5
	maxConfidence    = 0.9
	targetOffsetBase = 0.05
)

// Generator derives directional trading signals from live quotes, recent
// historical bars and a sentiment score. Hold-signal confidence uses a seeded
// source so results are reproducible.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator seeded for deterministic output
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Generate computes a fresh signal for the instrument. With at least 21 bars
// the rich scoring path runs; with fewer a simpler fallback based on the
// latest change and a volume-ratio proxy is used.
func (g *Generator) Generate(snap marketdata.QuoteSnapshot, bars []marketdata.PriceBar, sentiment float64) models.TradingSignal {
	if len(bars) >= richPathMinBars {
		return g.generateRich(snap, bars, sentiment)
	}
	return g.generateSimple(snap, bars)
}

func (g *Generator) generateRich(snap marketdata.QuoteSnapshot, bars []marketdata.PriceBar, sentiment float64) models.TradingSignal {
	momentum := snap.ChangePercent
	trend := averageChangePercent(bars, trendLookback)
	volRatio := volumeRatio(snap.Volume, bars, volumeLookback)

	score := weightMomentum*momentum + weightTrend*trend + weightSentiment*sentiment
	score += volumeAdjustment(volRatio)

	reason := fmt.Sprintf("momentum %.2f%%, %d-bar trend %.2f%%, sentiment %.2f, volume ratio %.2f",
		momentum, trendLookback, trend, sentiment, volRatio)

	var direction models.SignalDirection
	var confidence float64

	switch {
	case score > strongThreshold:
		direction = models.SignalBuy
		confidence = math.Min(maxConfidence, 0.5+math.Abs(score)*0.25)
		reason = "strong bullish alignment: " + reason
	case score < -strongThreshold:
		direction = models.SignalSell
		confidence = math.Min(maxConfidence, 0.5+math.Abs(score)*0.25)
		reason = "strong bearish alignment: " + reason
	case score > weakThreshold:
		direction = models.SignalBuy
		confidence = 0.4 + math.Abs(score)*0.3
		reason = "moderate bullish lean: " + reason
	case score < -weakThreshold:
		direction = models.SignalSell
		confidence = 0.4 + math.Abs(score)*0.3
		reason = "moderate bearish lean: " + reason
	default:
		direction = models.SignalHold
		confidence = g.holdConfidence()
		reason = "no directional edge: " + reason
	}

	return g.finalize(snap, direction, confidence, reason)
}

// generateSimple is the fallback for thin history: only the latest change and
// a volume-ratio proxy, with coarser thresholds.
func (g *Generator) generateSimple(snap marketdata.QuoteSnapshot, bars []marketdata.PriceBar) models.TradingSignal {
	volRatio := volumeRatio(snap.Volume, bars, len(bars))
	score := snap.ChangePercent + volumeAdjustment(volRatio)

	reason := fmt.Sprintf("limited history (%d bars): change %.2f%%, volume ratio %.2f",
		len(bars), snap.ChangePercent, volRatio)

	var direction models.SignalDirection
	var confidence float64

	switch {
	case score > simpleThreshold:
		direction = models.SignalBuy
		confidence = math.Min(0.7, 0.3+math.Abs(score)*0.15)
	case score < -simpleThreshold:
		direction = models.SignalSell
		confidence = math.Min(0.7, 0.3+math.Abs(score)*0.15)
	default:
		direction = models.SignalHold
		confidence = g.holdConfidence()
	}

	return g.finalize(snap, direction, confidence, reason)
}

// finalize clamps confidence and derives the target price
func (g *Generator) finalize(snap marketdata.QuoteSnapshot, direction models.SignalDirection, confidence float64, reason string) models.TradingSignal {
	confidence = clamp(confidence, 0, 1)

	target := snap.CurrentPrice
	switch direction {
	case models.SignalBuy:
		target = snap.CurrentPrice * (1 + targetOffsetBase*confidence)
	case models.SignalSell:
		target = snap.CurrentPrice * (1 - targetOffsetBase*confidence)
	}

	return models.TradingSignal{
		Symbol:      snap.Symbol,
		Direction:   direction,
		Confidence:  confidence,
		TargetPrice: target,
		Reason:      reason,
		GeneratedAt: time.Now(),
	}
}

// holdConfidence is low and seeded rather than truly random, so repeated runs
// with the same generator produce the same sequence.
func (g *Generator) holdConfidence() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return 0.1 + g.rng.Float64()*0.25
}

// averageChangePercent returns the mean bar-to-bar percentage change over the
// last n intervals.
func averageChangePercent(bars []marketdata.PriceBar, n int) float64 {
	if len(bars) < n+1 || n <= 0 {
		return 0
	}
	sum := 0.0
	count := 0
	for i := len(bars) - n; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		sum += (bars[i].Close - prev) / prev * 100
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// volumeRatio compares current volume against the trailing average over the
// last n bars. Missing data yields the neutral ratio 1.
func volumeRatio(current int64, bars []marketdata.PriceBar, n int) float64 {
	if current <= 0 || len(bars) == 0 || n <= 0 {
		return 1
	}
	if n > len(bars) {
		n = len(bars)
	}
	var sum int64
	for i := len(bars) - n; i < len(bars); i++ {
		sum += bars[i].Volume
	}
	if sum <= 0 {
		return 1
	}
	avg := float64(sum) / float64(n)
	return float64(current) / avg
}

func volumeAdjustment(ratio float64) float64 {
	switch {
	case ratio > volumeHighRatio:
		return volumeBoost
	case ratio < volumeLowRatio:
		return volumePenalty
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
