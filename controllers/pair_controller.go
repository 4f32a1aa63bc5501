package controllers

import (
	"net/http"
	"strconv"
	"time"

	"coinforecast/models"
	"coinforecast/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PairController handles pair and candle requests
type PairController struct {
	db *gorm.DB
}

// NewPairController creates a new pair controller
func NewPairController(db *gorm.DB) *PairController {
	return &PairController{db: db}
}

// GetPairs returns the tracked pairs
// GET /api/v1/pairs
func (pc *PairController) GetPairs(c *gin.Context) {
	var pairs []models.CryptoPair

	query := pc.db.Model(&models.CryptoPair{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Order("currency, compare").Find(&pairs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pairs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": pairs})
}

// CreatePairRequest is the payload for adding a pair
type CreatePairRequest struct {
	Currency string `json:"currency" binding:"required"`
	Compare  string `json:"compare" binding:"required"`
}

// CreatePair adds a new pair to the universe
// POST /api/v1/pairs
func (pc *PairController) CreatePair(c *gin.Context) {
	var req CreatePairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "currency and compare are required"})
		return
	}

	pair := models.CryptoPair{
		Currency: req.Currency,
		Compare:  req.Compare,
		Status:   "active",
	}

	var existing models.CryptoPair
	err := pc.db.Where("currency = ? AND compare = ?", pair.Currency, pair.Compare).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Pair already exists"})
		return
	}
	if err != gorm.ErrRecordNotFound {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check pair"})
		return
	}

	if err := pc.db.Create(&pair).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create pair"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": pair})
}

// GetCandles returns candle data for a pair
// GET /api/v1/pairs/:symbol/candles
func (pc *PairController) GetCandles(c *gin.Context) {
	pair, ok := pc.findPair(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	if limit > 2000 {
		limit = 2000
	}
	offset := (page - 1) * limit

	query := pc.db.Where("pair_id = ?", pair.ID)
	if from := c.Query("from"); from != "" {
		query = query.Where("time >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		query = query.Where("time <= ?", to)
	}

	var total int64
	query.Model(&models.Candle{}).Count(&total)

	var candles []models.Candle
	if err := query.Order("time DESC").Limit(limit).Offset(offset).Find(&candles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch candles"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": candles,
		"pair": pair,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// SyncCandles triggers a candle sync for one pair
// POST /api/v1/pairs/:symbol/sync
func (pc *PairController) SyncCandles(c *gin.Context) {
	pair, ok := pc.findPair(c)
	if !ok {
		return
	}

	if services.GlobalCandleService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Candle service not initialized"})
		return
	}

	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "0"))

	start := time.Now()
	inserted, err := services.GlobalCandleService.SyncPair(pair.Symbol(), hours)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pair":     pair.Symbol(),
		"inserted": inserted,
		"took":     time.Since(start).String(),
	})
}

// GetSpotPrice returns the current market price for a pair
// GET /api/v1/pairs/:symbol/price
func (pc *PairController) GetSpotPrice(c *gin.Context) {
	pair, ok := pc.findPair(c)
	if !ok {
		return
	}

	if services.GlobalCandleService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Candle service not initialized"})
		return
	}

	price, err := services.GlobalCandleService.Client().FetchSpotPrice(pair.Currency, pair.Compare)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pair":      pair.Symbol(),
		"price":     price,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// findPair resolves the :symbol route parameter, writing the error response
// itself when the pair cannot be found
func (pc *PairController) findPair(c *gin.Context) (*models.CryptoPair, bool) {
	symbol := c.Param("symbol")

	currency, compare, err := models.ParsePairSymbol(symbol)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	var pair models.CryptoPair
	if err := pc.db.Where("currency = ? AND compare = ?", currency, compare).First(&pair).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Pair not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pair"})
		return nil, false
	}

	return &pair, true
}
