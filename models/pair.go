package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CryptoPair represents a tracked currency pair, e.g. BTC against USD
type CryptoPair struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Currency  string    `gorm:"uniqueIndex:idx_currency_compare;not null" json:"currency"` // asset being forecast, e.g. BTC
	Compare   string    `gorm:"uniqueIndex:idx_currency_compare;not null" json:"compare"`  // quote currency, e.g. USD
	Exchange  string    `gorm:"default:'CCCAGG'" json:"exchange"`                          // CryptoCompare aggregate by default
	Status    string    `gorm:"default:'active'" json:"status"`                            // active, paused
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Symbol returns the canonical pair name used in object keys and model names
func (p *CryptoPair) Symbol() string {
	return fmt.Sprintf("%s_%s", p.Currency, p.Compare)
}

// ParsePairSymbol splits a "BTC_USD" style name into currency and compare
func ParsePairSymbol(symbol string) (string, string, error) {
	parts := strings.Split(symbol, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid pair symbol: %s", symbol)
	}
	return parts[0], parts[1], nil
}

// Candle represents one hourly OHLCV bar for a pair
type Candle struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	PairID     uint            `gorm:"uniqueIndex:idx_pair_time" json:"pair_id"`
	Pair       CryptoPair      `gorm:"foreignKey:PairID" json:"pair,omitempty"`
	Time       time.Time       `gorm:"uniqueIndex:idx_pair_time" json:"time"`
	Open       decimal.Decimal `gorm:"type:decimal(24,8)" json:"open"`
	High       decimal.Decimal `gorm:"type:decimal(24,8)" json:"high"`
	Low        decimal.Decimal `gorm:"type:decimal(24,8)" json:"low"`
	Close      decimal.Decimal `gorm:"type:decimal(24,8)" json:"close"`
	VolumeFrom decimal.Decimal `gorm:"type:decimal(24,8)" json:"volume_from"`
	VolumeTo   decimal.Decimal `gorm:"type:decimal(24,8)" json:"volume_to"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MigratePairModels runs database migrations for pair-related models
func MigratePairModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&CryptoPair{},
		&Candle{},
	)
}

// SeedDefaultPairs inserts the default pair universe if missing
func SeedDefaultPairs(db *gorm.DB) error {
	pairs := []CryptoPair{
		{Currency: "BTC", Compare: "USD"},
		{Currency: "ETH", Compare: "USD"},
		{Currency: "SOL", Compare: "USD"},
		{Currency: "XRP", Compare: "USD"},
	}

	for _, pair := range pairs {
		var existing CryptoPair
		err := db.Where("currency = ? AND compare = ?", pair.Currency, pair.Compare).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err := db.Create(&pair).Error; err != nil {
				return fmt.Errorf("failed to seed pair %s: %w", pair.Symbol(), err)
			}
		} else if err != nil {
			return err
		}
	}

	return nil
}
