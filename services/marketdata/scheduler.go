package marketdata

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// DefaultUpdateInterval is deliberately aggressive; the subscriber gate
	// and the rate-limit guard keep it safe.
	DefaultUpdateInterval = 5 * time.Second
	// DefaultRequestDelay paces per-symbol requests to smooth the request
	// rate and avoid burst-triggered throttling.
	DefaultRequestDelay = 100 * time.Millisecond

	// summaryEveryTicks controls how often the cycle summary is logged so a
	// 5s tick does not flood the log.
	summaryEveryTicks = 12
)

// QuoteSource fetches the latest quote for one symbol
type QuoteSource interface {
	FetchQuote(ctx context.Context, symbol string) (*QuoteSnapshot, error)
}

// Broadcaster distributes batches of snapshots to live subscribers and
// reports how many are currently connected.
type Broadcaster interface {
	ClientCount() int
	BroadcastAll(snapshots []QuoteSnapshot)
}

// UniverseProvider supplies the tracked instrument universe
type UniverseProvider interface {
	TrackedSymbols() ([]string, error)
}

// UpdateScheduler drives the periodic fetch cycle. Once per tick it decides
// whether to run at all (skipped while the guard is tripped or nobody is
// connected), fetches the tracked universe sequentially with a small
// inter-request delay, and triggers one broadcast for the whole batch.
// Ticks never overlap: a tick that fires while the previous cycle is still
// running is dropped.
type UpdateScheduler struct {
	source   QuoteSource
	cache    *PriceCache
	guard    *RateLimitGuard
	hub      Broadcaster
	universe UniverseProvider

	interval     time.Duration
	requestDelay time.Duration

	cycleMu sync.Mutex // single-flight guard around the whole tick body

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	lastRun time.Time

	stats schedulerStats
}

type schedulerStats struct {
	mu             sync.Mutex
	ticks          uint64
	skippedGuard   uint64
	skippedIdle    uint64
	skippedOverlap uint64
	fetchOK        uint64
	fetchFailed    uint64
	broadcasts     uint64
}

// NewUpdateScheduler wires the fetch cycle together
func NewUpdateScheduler(source QuoteSource, cache *PriceCache, guard *RateLimitGuard,
	hub Broadcaster, universe UniverseProvider, interval, requestDelay time.Duration) *UpdateScheduler {

	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	if requestDelay < 0 {
		requestDelay = DefaultRequestDelay
	}
	return &UpdateScheduler{
		source:       source,
		cache:        cache,
		guard:        guard,
		hub:          hub,
		universe:     universe,
		interval:     interval,
		requestDelay: requestDelay,
	}
}

// Start begins ticking until Stop is called or ctx is cancelled
func (s *UpdateScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.mu.Unlock()

	go s.loop(ctx)
	log.Printf("Update scheduler started (interval: %v, pacing: %v)", s.interval, s.requestDelay)
}

// Stop halts the tick loop. An in-flight cycle finishes its current fetch and
// exits at the next cancellation check.
func (s *UpdateScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	log.Println("Update scheduler stopped")
}

// IsRunning reports whether the tick loop is active
func (s *UpdateScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *UpdateScheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one cycle unless the previous one is still in flight
func (s *UpdateScheduler) tick(ctx context.Context) {
	if !s.cycleMu.TryLock() {
		s.stats.mu.Lock()
		s.stats.skippedOverlap++
		s.stats.mu.Unlock()
		return
	}
	defer s.cycleMu.Unlock()

	s.runCycle(ctx)
	s.maybeLogSummary()
}

// runCycle is the body of one tick. Returns the number of successful fetches.
func (s *UpdateScheduler) runCycle(ctx context.Context) int {
	s.stats.mu.Lock()
	s.stats.ticks++
	s.stats.mu.Unlock()

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	// Guard check first: while tripped, the entire tick is skipped
	if !s.guard.Allow() {
		s.stats.mu.Lock()
		s.stats.skippedGuard++
		s.stats.mu.Unlock()
		return 0
	}

	// Backpressure: no point spending fetch budget with nobody to notify
	if s.hub.ClientCount() == 0 {
		s.stats.mu.Lock()
		s.stats.skippedIdle++
		s.stats.mu.Unlock()
		return 0
	}

	symbols, err := s.universe.TrackedSymbols()
	if err != nil {
		log.Printf("Failed to load tracked symbols: %v", err)
		return 0
	}

	succeeded := 0
	for i, symbol := range symbols {
		select {
		case <-ctx.Done():
			return succeeded
		default:
		}

		snap, err := s.source.FetchQuote(ctx, symbol)
		if err != nil {
			s.handleFetchError(symbol, err)
			if !s.guard.Allow() {
				// Guard tripped mid-pass, abandon the rest of the batch
				break
			}
		} else {
			s.cache.Put(snap)
			s.guard.RecordSuccess()
			succeeded++
			s.stats.mu.Lock()
			s.stats.fetchOK++
			s.stats.mu.Unlock()
		}

		// Pace requests, but not after the final symbol
		if i < len(symbols)-1 && s.requestDelay > 0 {
			select {
			case <-ctx.Done():
				return succeeded
			case <-time.After(s.requestDelay):
			}
		}
	}

	if succeeded > 0 && s.hub.ClientCount() > 0 {
		s.hub.BroadcastAll(s.cache.Snapshots())
		s.stats.mu.Lock()
		s.stats.broadcasts++
		s.stats.mu.Unlock()
	}
	return succeeded
}

// handleFetchError isolates per-symbol failures; only the rate-limit
// classification propagates into shared state.
func (s *UpdateScheduler) handleFetchError(symbol string, err error) {
	if IsUnresolvableSymbol(err) {
		// Permanent skip, previous cache entry stays valid
		return
	}

	s.stats.mu.Lock()
	s.stats.fetchFailed++
	s.stats.mu.Unlock()

	if IsRateLimitError(err) {
		s.guard.RecordRateLimit()
		return
	}
	// Transient failure: keep serving the stale snapshot
	log.Printf("Quote fetch failed for %s: %v", symbol, err)
}

// maybeLogSummary emits a periodic cycle summary instead of a line per tick
func (s *UpdateScheduler) maybeLogSummary() {
	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	if s.stats.ticks == 0 || s.stats.ticks%summaryEveryTicks != 0 {
		return
	}
	log.Printf("Update cycle summary: ticks=%d ok=%d failed=%d idle_skips=%d guard_skips=%d broadcasts=%d",
		s.stats.ticks, s.stats.fetchOK, s.stats.fetchFailed,
		s.stats.skippedIdle, s.stats.skippedGuard, s.stats.broadcasts)
}

// Status returns scheduler state for the status endpoint
func (s *UpdateScheduler) Status() map[string]interface{} {
	s.mu.Lock()
	running := s.running
	lastRun := s.lastRun
	s.mu.Unlock()

	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()

	status := map[string]interface{}{
		"is_running":       running,
		"interval_sec":     int(s.interval.Seconds()),
		"ticks":            s.stats.ticks,
		"fetch_ok":         s.stats.fetchOK,
		"fetch_failed":     s.stats.fetchFailed,
		"idle_skips":       s.stats.skippedIdle,
		"guard_skips":      s.stats.skippedGuard,
		"overlap_skips":    s.stats.skippedOverlap,
		"broadcasts":       s.stats.broadcasts,
		"cached_snapshots": s.cache.Len(),
	}
	if !lastRun.IsZero() {
		status["last_run"] = lastRun.Format(time.RFC3339)
	}
	return status
}
