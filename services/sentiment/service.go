package sentiment

import (
	"hash/fnv"
	"sync"
	"time"
)

// Service supplies a numeric sentiment score per symbol in [-1, 1]. The score
// is an opaque input to signal generation; this implementation derives it
// deterministically from the symbol and the current day so it is stable
// within a session but drifts over time. Scores are cached with a short TTL.
type Service struct {
	mu     sync.RWMutex
	scores map[string]entry
	ttl    time.Duration
	now    func() time.Time
}

type entry struct {
	score     float64
	expiresAt time.Time
}

// NewService creates a sentiment service with the given cache TTL
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		scores: make(map[string]entry),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Score returns the sentiment score for symbol
func (s *Service) Score(symbol string) float64 {
	s.mu.RLock()
	e, ok := s.scores[symbol]
	s.mu.RUnlock()
	if ok && s.now().Before(e.expiresAt) {
		return e.score
	}

	score := derive(symbol, s.now())

	s.mu.Lock()
	s.scores[symbol] = entry{score: score, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return score
}

// derive maps symbol+day onto [-1, 1]
func derive(symbol string, now time.Time) float64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(now.UTC().Format("2006-01-02")))
	v := h.Sum64()
	return float64(v%2001)/1000.0 - 1.0
}
