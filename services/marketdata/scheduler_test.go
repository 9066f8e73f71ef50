package marketdata

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu    sync.Mutex
	calls []string
	fetch func(symbol string) (*QuoteSnapshot, error)
}

func (f *fakeSource) FetchQuote(_ context.Context, symbol string) (*QuoteSnapshot, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()
	return f.fetch(symbol)
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeHub struct {
	clients    int
	mu         sync.Mutex
	broadcasts [][]QuoteSnapshot
}

func (f *fakeHub) ClientCount() int { return f.clients }

func (f *fakeHub) BroadcastAll(snapshots []QuoteSnapshot) {
	f.mu.Lock()
	f.broadcasts = append(f.broadcasts, snapshots)
	f.mu.Unlock()
}

func (f *fakeHub) broadcastCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.broadcasts)
}

type fakeUniverse struct{ symbols []string }

func (f *fakeUniverse) TrackedSymbols() ([]string, error) { return f.symbols, nil }

func okSnapshot(symbol string) (*QuoteSnapshot, error) {
	return &QuoteSnapshot{Symbol: symbol, CurrentPrice: 100, LastUpdated: time.Now()}, nil
}

func newTestScheduler(source *fakeSource, hub *fakeHub, symbols []string, guard *RateLimitGuard) (*UpdateScheduler, *PriceCache) {
	cache := NewPriceCache()
	if guard == nil {
		guard = NewRateLimitGuard(3, 2*time.Minute)
	}
	sched := NewUpdateScheduler(source, cache, guard, hub,
		&fakeUniverse{symbols: symbols}, time.Second, 0)
	return sched, cache
}

func TestCycleSkipsWithoutSubscribers(t *testing.T) {
	source := &fakeSource{fetch: okSnapshot}
	hub := &fakeHub{clients: 0}
	sched, _ := newTestScheduler(source, hub, []string{"AAPL", "TSLA"}, nil)

	if got := sched.runCycle(context.Background()); got != 0 {
		t.Errorf("expected 0 successes, got %d", got)
	}
	if source.callCount() != 0 {
		t.Errorf("idle tick must perform zero fetch calls, saw %d", source.callCount())
	}
	if hub.broadcastCount() != 0 {
		t.Errorf("idle tick must perform zero broadcasts, saw %d", hub.broadcastCount())
	}
}

func TestCycleSkipsWhileGuardTripped(t *testing.T) {
	source := &fakeSource{fetch: okSnapshot}
	hub := &fakeHub{clients: 1}
	guard := NewRateLimitGuard(3, 2*time.Minute)
	for i := 0; i < 3; i++ {
		guard.RecordRateLimit()
	}
	sched, _ := newTestScheduler(source, hub, []string{"AAPL"}, guard)

	if got := sched.runCycle(context.Background()); got != 0 {
		t.Errorf("expected 0 successes, got %d", got)
	}
	if source.callCount() != 0 {
		t.Errorf("tripped guard must suppress all fetches, saw %d calls", source.callCount())
	}
}

func TestCycleFetchesAndBroadcasts(t *testing.T) {
	source := &fakeSource{fetch: okSnapshot}
	hub := &fakeHub{clients: 2}
	sched, cache := newTestScheduler(source, hub, []string{"AAPL", "TSLA"}, nil)

	if got := sched.runCycle(context.Background()); got != 2 {
		t.Fatalf("expected 2 successes, got %d", got)
	}
	if source.callCount() != 2 {
		t.Errorf("expected 2 fetch calls, got %d", source.callCount())
	}
	if hub.broadcastCount() != 1 {
		t.Errorf("expected exactly one batch broadcast, got %d", hub.broadcastCount())
	}
	if _, ok := cache.Get("TSLA"); !ok {
		t.Error("successful fetches must land in the cache")
	}
}

func TestCycleIsolatesPerSymbolFailures(t *testing.T) {
	source := &fakeSource{fetch: func(symbol string) (*QuoteSnapshot, error) {
		if symbol == "AAPL" {
			return nil, fmt.Errorf("connection reset")
		}
		return okSnapshot(symbol)
	}}
	hub := &fakeHub{clients: 1}
	sched, cache := newTestScheduler(source, hub, []string{"AAPL", "TSLA"}, nil)

	if got := sched.runCycle(context.Background()); got != 1 {
		t.Fatalf("expected 1 success, got %d", got)
	}
	if source.callCount() != 2 {
		t.Errorf("a failed symbol must not abort the pass, saw %d calls", source.callCount())
	}
	if _, ok := cache.Get("AAPL"); ok {
		t.Error("failed fetch must not mutate the cache")
	}
	if hub.broadcastCount() != 1 {
		t.Errorf("partial success still broadcasts once, got %d", hub.broadcastCount())
	}
}

func TestCycleAbandonsPassWhenGuardTrips(t *testing.T) {
	source := &fakeSource{fetch: func(symbol string) (*QuoteSnapshot, error) {
		return nil, fmt.Errorf("%w: status 429", ErrRateLimited)
	}}
	hub := &fakeHub{clients: 1}
	guard := NewRateLimitGuard(1, 2*time.Minute)
	sched, _ := newTestScheduler(source, hub, []string{"AAPL", "TSLA", "MSFT"}, guard)

	if got := sched.runCycle(context.Background()); got != 0 {
		t.Errorf("expected 0 successes, got %d", got)
	}
	if source.callCount() != 1 {
		t.Errorf("a tripped guard must abandon the rest of the batch, saw %d calls", source.callCount())
	}
	if !guard.Status().Limited {
		t.Error("guard must be tripped")
	}
	if hub.broadcastCount() != 0 {
		t.Errorf("no successes means no broadcast, got %d", hub.broadcastCount())
	}
}

func TestCycleKeepsCacheForDottedSymbols(t *testing.T) {
	source := &fakeSource{fetch: func(symbol string) (*QuoteSnapshot, error) {
		if symbol == "BRK.B" {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvableSymbol, symbol)
		}
		return okSnapshot(symbol)
	}}
	hub := &fakeHub{clients: 1}
	guard := NewRateLimitGuard(3, 2*time.Minute)
	sched, cache := newTestScheduler(source, hub, []string{"BRK.B", "AAPL"}, guard)

	stale := &QuoteSnapshot{Symbol: "BRK.B", CurrentPrice: 412.5, LastUpdated: time.Now().Add(-time.Hour)}
	cache.Put(stale)

	sched.runCycle(context.Background())

	got, ok := cache.Get("BRK.B")
	if !ok || got.CurrentPrice != 412.5 {
		t.Errorf("previously cached snapshot must survive the skip: %+v", got)
	}
	if guard.Status().ConsecutiveErrors != 0 {
		t.Error("symbol skips must not feed the rate-limit counter")
	}
}
