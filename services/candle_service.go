package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"coinforecast/config"
	"coinforecast/models"
	"coinforecast/services/marketdata"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Candle sync constants
const (
	DefaultSyncHours  = 24 * 90 // ~3 months of hourly bars
	PairSyncDelay     = 500 * time.Millisecond
	CandleInsertBatch = 500
)

// SyncProgress represents candle sync progress
type SyncProgress struct {
	TotalPairs     int       `json:"total_pairs"`
	ProcessedPairs int       `json:"processed_pairs"`
	SuccessCount   int       `json:"success_count"`
	FailedCount    int       `json:"failed_count"`
	FailedPairs    []string  `json:"failed_pairs"`
	CurrentPair    string    `json:"current_pair"`
	StartedAt      time.Time `json:"started_at"`
	Status         string    `json:"status"` // idle, running, completed, error
}

// CandleService handles fetching and storing hourly candles
type CandleService struct {
	db       *gorm.DB
	client   *marketdata.Client
	progress SyncProgress
	mu       sync.RWMutex
}

// Global candle service instance
var GlobalCandleService *CandleService

// InitCandleService initializes the candle service
func InitCandleService(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	GlobalCandleService = &CandleService{
		db: db,
		client: marketdata.NewClient(
			config.AppConfig.CryptoCompareURL,
			config.AppConfig.CryptoCompareAPIKey,
		),
		progress: SyncProgress{Status: "idle"},
	}

	log.Println("Candle Service initialized")
	return nil
}

// Client exposes the underlying market data client
func (s *CandleService) Client() *marketdata.Client {
	return s.client
}

// Progress returns a snapshot of the current sync progress
func (s *CandleService) Progress() SyncProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// SyncPair fetches hourly bars for one pair and upserts them
func (s *CandleService) SyncPair(symbol string, hours int) (int, error) {
	currency, compare, err := models.ParsePairSymbol(symbol)
	if err != nil {
		return 0, err
	}

	var pair models.CryptoPair
	if err := s.db.Where("currency = ? AND compare = ?", currency, compare).First(&pair).Error; err != nil {
		return 0, fmt.Errorf("pair not found: %w", err)
	}

	if hours <= 0 {
		hours = DefaultSyncHours
	}

	bars, err := s.client.FetchHourly(currency, compare, hours)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no bars returned for %s", symbol)
	}

	inserted, err := s.storeBars(pair.ID, bars)
	if err != nil {
		return 0, err
	}

	log.Printf("Synced %s: %d bars fetched, %d new", symbol, len(bars), inserted)
	return inserted, nil
}

// storeBars upserts bars for the pair. Bars already stored are left alone,
// so a sync can extend history backwards as well as forwards.
func (s *CandleService) storeBars(pairID uint, bars []marketdata.Bar) (int, error) {
	batch := make([]models.Candle, 0, CandleInsertBatch)
	inserted := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		// The unique (pair_id, time) index makes duplicates a no-op
		tx := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&batch)
		if tx.Error != nil {
			return fmt.Errorf("failed to insert candles: %w", tx.Error)
		}
		inserted += int(tx.RowsAffected)
		batch = batch[:0]
		return nil
	}

	for _, bar := range bars {
		batch = append(batch, models.Candle{
			PairID:     pairID,
			Time:       bar.Time,
			Open:       decimal.NewFromFloat(bar.Open),
			High:       decimal.NewFromFloat(bar.High),
			Low:        decimal.NewFromFloat(bar.Low),
			Close:      decimal.NewFromFloat(bar.Close),
			VolumeFrom: decimal.NewFromFloat(bar.VolumeFrom),
			VolumeTo:   decimal.NewFromFloat(bar.VolumeTo),
		})
		if len(batch) >= CandleInsertBatch {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}

	if err := flush(); err != nil {
		return inserted, err
	}
	return inserted, nil
}

// SyncAll syncs candles for all active pairs with pacing between requests
func (s *CandleService) SyncAll(hours int) error {
	var pairs []models.CryptoPair
	if err := s.db.Where("status = ?", "active").Find(&pairs).Error; err != nil {
		return fmt.Errorf("failed to load pairs: %w", err)
	}

	s.mu.Lock()
	s.progress = SyncProgress{
		TotalPairs: len(pairs),
		StartedAt:  time.Now(),
		Status:     "running",
	}
	s.mu.Unlock()

	failed := 0
	for _, pair := range pairs {
		symbol := pair.Symbol()

		s.mu.Lock()
		s.progress.CurrentPair = symbol
		s.mu.Unlock()

		if _, err := s.SyncPair(symbol, hours); err != nil {
			log.Printf("Error syncing %s: %v", symbol, err)
			failed++
			s.mu.Lock()
			s.progress.FailedCount++
			s.progress.FailedPairs = append(s.progress.FailedPairs, symbol)
			s.mu.Unlock()
		} else {
			s.mu.Lock()
			s.progress.SuccessCount++
			s.mu.Unlock()
		}

		s.mu.Lock()
		s.progress.ProcessedPairs++
		s.mu.Unlock()

		time.Sleep(PairSyncDelay)
	}

	s.mu.Lock()
	if failed == len(pairs) && len(pairs) > 0 {
		s.progress.Status = "error"
	} else {
		s.progress.Status = "completed"
	}
	s.progress.CurrentPair = ""
	s.mu.Unlock()

	log.Printf("Candle sync completed: %d pairs, %d failed", len(pairs), failed)
	return nil
}

// LatestCandles returns the most recent n candles for a pair in chronological order
func (s *CandleService) LatestCandles(pairID uint, n int) ([]models.Candle, error) {
	var candles []models.Candle
	err := s.db.Where("pair_id = ?", pairID).
		Order("time DESC").
		Limit(n).
		Find(&candles).Error
	if err != nil {
		return nil, err
	}

	// Reverse to chronological order
	for i := 0; i < len(candles)/2; i++ {
		candles[i], candles[len(candles)-1-i] = candles[len(candles)-1-i], candles[i]
	}

	return candles, nil
}

// PruneCandles deletes candles older than the retention window
func (s *CandleService) PruneCandles(olderThan time.Time) error {
	return s.db.Where("time < ?", olderThan).Delete(&models.Candle{}).Error
}
