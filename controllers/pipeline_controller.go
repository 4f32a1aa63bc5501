package controllers

import (
	"log"
	"net/http"

	"coinforecast/models"
	"coinforecast/pipeline"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PipelineController manages pipeline runs
type PipelineController struct {
	db *gorm.DB
}

// NewPipelineController creates a new pipeline controller
func NewPipelineController(db *gorm.DB) *PipelineController {
	return &PipelineController{db: db}
}

// RunPipelineRequest is the payload for starting a pipeline run
type RunPipelineRequest struct {
	Pipeline string   `json:"pipeline"`        // defaults to the full pipeline
	Pairs    []string `json:"pairs,omitempty"` // e.g. ["BTC_USD"], empty runs all
}

// RunPipeline starts a pipeline run in the background
// POST /api/v1/pipeline/run
func (pc *PipelineController) RunPipeline(c *gin.Context) {
	if pipeline.GlobalRunner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Pipeline runner not initialized"})
		return
	}

	var req RunPipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	name := req.Pipeline
	if name == "" {
		name = pipeline.DefaultPipeline
	}

	registry := pipeline.GlobalRunner.Registry()
	if _, ok := registry[name]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "unknown pipeline",
			"pipelines": pipeline.GlobalRunner.PipelineNames(),
		})
		return
	}

	if pipeline.GlobalRunner.Status().Running {
		c.JSON(http.StatusConflict, gin.H{"error": "a pipeline run is already in progress"})
		return
	}

	go func() {
		if err := pipeline.GlobalRunner.Run(name, req.Pairs); err != nil {
			log.Printf("Pipeline run %s failed: %v", name, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"pipeline": name,
		"pairs":    req.Pairs,
		"status":   "started",
	})
}

// GetStatus reports the current runner state
// GET /api/v1/pipeline/status
func (pc *PipelineController) GetStatus(c *gin.Context) {
	if pipeline.GlobalRunner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Pipeline runner not initialized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    pipeline.GlobalRunner.Status(),
		"pipelines": pipeline.GlobalRunner.PipelineNames(),
	})
}

// GetRuns lists recorded pipeline stage runs, newest first
// GET /api/v1/pipeline/runs
func (pc *PipelineController) GetRuns(c *gin.Context) {
	query := pc.db.Model(&models.TrainingRun{})
	if stage := c.Query("stage"); stage != "" {
		query = query.Where("stage = ?", stage)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var runs []models.TrainingRun
	if err := query.Order("started_at DESC").Limit(100).Find(&runs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch runs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}
