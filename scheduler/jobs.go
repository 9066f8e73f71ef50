package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/nquinn721/ai-stock-trader-sub001/services"
)

// Scheduler manages the daily maintenance jobs around the live update engine:
// keeping the instrument universe seeded and expiring stored signals. The
// high-frequency quote cycle runs in marketdata.UpdateScheduler, not here.
type Scheduler struct {
	cron   *gocron.Scheduler
	stocks *services.StockService
}

// NewScheduler creates a new scheduler instance
func NewScheduler(stocks *services.StockService) *Scheduler {
	return &Scheduler{
		cron:   gocron.NewScheduler(time.UTC),
		stocks: stocks,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting maintenance scheduler...")

	// Re-seed any missing instruments daily before market open
	s.cron.Every(1).Day().At("08:00").Do(func() {
		if err := s.stocks.SeedDefaultStocks(); err != nil {
			log.Printf("Universe refresh failed: %v", err)
		}
	})

	// Expire stored signals daily after market close
	s.cron.Every(1).Day().At("16:30").Do(func() {
		if err := s.stocks.CleanupOldSignals(); err != nil {
			log.Printf("Signal cleanup failed: %v", err)
		}
	})

	s.cron.StartAsync()
	log.Println("Maintenance scheduler started")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Maintenance scheduler stopped")
}
