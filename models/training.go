package models

import (
	"time"

	"gorm.io/gorm"
)

// Training run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// TrainingRun records one execution of a pipeline stage for a pair
type TrainingRun struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	RunID      string     `gorm:"index;not null" json:"run_id"` // uuid shared by all stages of one pipeline run
	PairID     uint       `gorm:"index" json:"pair_id"`
	Pair       CryptoPair `gorm:"foreignKey:PairID" json:"pair,omitempty"`
	Stage      string     `json:"stage"`
	Status     string     `gorm:"default:'running'" json:"status"`
	TrainLoss  float64    `json:"train_loss"`
	ValLoss    float64    `json:"val_loss"`
	TestLoss   float64    `json:"test_loss"`
	Epochs     int        `json:"epochs"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// ModelVersion records a published model artifact in object storage
type ModelVersion struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PairID      uint       `gorm:"index:idx_pair_date" json:"pair_id"`
	Pair        CryptoPair `gorm:"foreignKey:PairID" json:"pair,omitempty"`
	Date        string     `gorm:"index:idx_pair_date" json:"date"` // YYYY-MM-DD bucket prefix
	ObjectKey   string     `json:"object_key"`
	ScalerKey   string     `json:"scaler_key"`
	Checksum    string     `json:"checksum"`
	WindowSize  int        `json:"window_size"`
	NumFeatures int        `json:"num_features"`
	HiddenSize  int        `json:"hidden_size"`
	PublishedAt time.Time  `json:"published_at"`
}

// MigrateTrainingModels runs database migrations for training-related models
func MigrateTrainingModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&TrainingRun{},
		&ModelVersion{},
	)
}
