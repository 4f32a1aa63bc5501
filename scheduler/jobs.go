package scheduler

import (
	"log"
	"time"

	"coinforecast/models"
	"coinforecast/pipeline"
	"coinforecast/services"
	"coinforecast/services/serving"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// Candle retention window
const CandleRetention = 2 * 365 * 24 * time.Hour

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron *gocron.Scheduler
	db   *gorm.DB
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db *gorm.DB) *Scheduler {
	return &Scheduler{
		cron: gocron.NewScheduler(time.UTC),
		db:   db,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Keep candles fresh every hour, shortly after the bar closes
	s.cron.Every(1).Hour().At("02:00").Do(func() {
		s.syncCandles()
	})

	// Full pipeline nightly; publishes today's models
	s.cron.Every(1).Day().At("00:30").Do(func() {
		s.runDefaultPipeline()
	})

	// Roll the serving cache onto today's models after the pipeline window
	s.cron.Every(1).Day().At("01:10").Do(func() {
		s.refreshServing()
	})

	// Cleanup old data weekly on Sunday at 02:00
	s.cron.Every(1).Week().Sunday().At("02:00").Do(func() {
		s.cleanupOldData()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// syncCandles refreshes recent candles for all active pairs
func (s *Scheduler) syncCandles() {
	log.Println("Syncing candles...")

	if services.GlobalCandleService == nil {
		log.Println("Candle service not initialized, skipping sync")
		return
	}

	// A couple of days covers missed runs without re-fetching history
	if err := services.GlobalCandleService.SyncAll(48); err != nil {
		log.Printf("Error syncing candles: %v", err)
	}
}

// runDefaultPipeline runs the full pipeline for all active pairs
func (s *Scheduler) runDefaultPipeline() {
	log.Println("Running nightly pipeline...")

	if pipeline.GlobalRunner == nil {
		log.Println("Pipeline runner not initialized, skipping run")
		return
	}

	if err := pipeline.GlobalRunner.Run(pipeline.DefaultPipeline, nil); err != nil {
		log.Printf("Error running nightly pipeline: %v", err)
	}
}

// refreshServing reloads the serving cache from today's published models
func (s *Scheduler) refreshServing() {
	log.Println("Refreshing serving models...")

	if serving.GlobalLoader == nil {
		log.Println("Serving loader not initialized, skipping refresh")
		return
	}

	if err := serving.GlobalLoader.Refresh(); err != nil {
		log.Printf("Error refreshing serving models: %v", err)
	}
}

// cleanupOldData removes old data to save storage
func (s *Scheduler) cleanupOldData() {
	log.Println("Cleaning up old data...")

	if services.GlobalCandleService != nil {
		cutoff := time.Now().Add(-CandleRetention)
		if err := services.GlobalCandleService.PruneCandles(cutoff); err != nil {
			log.Printf("Error cleaning up old candles: %v", err)
		}
	}

	// Keep the last 3 months of run history
	threeMonthsAgo := time.Now().AddDate(0, -3, 0)
	if err := s.db.Where("started_at < ?", threeMonthsAgo).Delete(&models.TrainingRun{}).Error; err != nil {
		log.Printf("Error cleaning up old training runs: %v", err)
	}

	log.Println("Cleanup completed")
}
