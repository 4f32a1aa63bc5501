package controllers

import (
	"net/http"
	"strconv"

	"coinforecast/models"
	"coinforecast/services/serving"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ModelController exposes the loaded models and their published versions
type ModelController struct {
	db *gorm.DB
}

// NewModelController creates a new model controller
func NewModelController(db *gorm.DB) *ModelController {
	return &ModelController{db: db}
}

// GetModels lists the models currently loaded in the serving session cache
// GET /api/v1/models
func (mc *ModelController) GetModels(c *gin.Context) {
	if serving.GlobalLoader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Serving loader not initialized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":   serving.GlobalLoader.Date(),
		"models": serving.GlobalLoader.Models(),
	})
}

// GetModelVersions lists published artifact versions, newest first
// GET /api/v1/models/versions
func (mc *ModelController) GetModelVersions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit > 500 {
		limit = 500
	}

	query := mc.db.Model(&models.ModelVersion{})
	if date := c.Query("date"); date != "" {
		query = query.Where("date = ?", date)
	}

	var versions []models.ModelVersion
	if err := query.Order("published_at DESC").Limit(limit).Find(&versions).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch model versions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": versions})
}

// RefreshModels reloads the session cache from object storage
// POST /api/v1/models/refresh
func (mc *ModelController) RefreshModels(c *gin.Context) {
	if serving.GlobalLoader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Serving loader not initialized"})
		return
	}

	if err := serving.GlobalLoader.Refresh(); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"date":   serving.GlobalLoader.Date(),
		"models": serving.GlobalLoader.Models(),
	})
}
