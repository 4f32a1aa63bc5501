package controllers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"coinforecast/models"
	"coinforecast/pipeline"
	"coinforecast/services"
	"coinforecast/services/predictionlog"
	"coinforecast/services/preprocess"
	"coinforecast/services/serving"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PredictController serves model predictions
type PredictController struct {
	db *gorm.DB
}

// NewPredictController creates a new predict controller
func NewPredictController(db *gorm.DB) *PredictController {
	return &PredictController{db: db}
}

// PredictRequest is the prediction payload
type PredictRequest struct {
	Pair string `json:"pair" binding:"required"` // e.g. BTC_USD
}

// Predict runs the loaded model of a pair over its most recent candles
// POST /api/v1/predict
func (pc *PredictController) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pair is required"})
		return
	}

	if serving.GlobalLoader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Serving loader not initialized"})
		return
	}

	windowSize, err := serving.GlobalLoader.WindowSize(req.Pair)
	if err != nil {
		if errors.Is(err, serving.ErrModelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	currency, compare, err := models.ParsePairSymbol(req.Pair)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var pair models.CryptoPair
	if err := pc.db.Where("currency = ? AND compare = ?", currency, compare).First(&pair).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pair not found"})
		return
	}

	if services.GlobalCandleService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Candle service not initialized"})
		return
	}

	// One extra candle so the change feature of the first window row is real
	candles, err := services.GlobalCandleService.LatestCandles(pair.ID, windowSize+1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load candles"})
		return
	}
	if len(candles) < windowSize {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Not enough candle history for this pair, sync candles first",
		})
		return
	}

	rows := preprocess.BuildFeatures(pipeline.CandlesToBars(candles))

	predicted, err := serving.GlobalLoader.Predict(req.Pair, rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	lastClose, _ := candles[len(candles)-1].Close.Float64()

	if predictionlog.GlobalPredictionLog.IsConnected() {
		record := predictionlog.Record{
			Pair:           req.Pair,
			PredictedClose: predicted,
			ModelDate:      serving.GlobalLoader.Date(),
			ServedAt:       time.Now().UTC(),
		}
		if err := predictionlog.GlobalPredictionLog.Append(record); err != nil {
			log.Printf("Warning: failed to log prediction: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"pair":            req.Pair,
		"predicted_close": predicted,
		"last_close":      lastClose,
		"window_size":     windowSize,
		"model_date":      serving.GlobalLoader.Date(),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// RecentPredictions returns recently served predictions from the archive
// GET /api/v1/predictions/recent
func (pc *PredictController) RecentPredictions(c *gin.Context) {
	if !predictionlog.GlobalPredictionLog.IsConnected() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Prediction archive not configured"})
		return
	}

	pair := c.Query("pair")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	records, err := predictionlog.GlobalPredictionLog.Recent(pair, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query predictions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}
