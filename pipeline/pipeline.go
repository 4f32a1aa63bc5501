package pipeline

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"coinforecast/config"
	"coinforecast/models"
	"coinforecast/services"
	"coinforecast/services/datasetstore"
	"coinforecast/services/modelstore"
	"coinforecast/services/preprocess"
	"coinforecast/services/training"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Pipeline names. DefaultPipeline runs all stages in order.
const (
	StageFetching      = "fetching_data"
	StagePreprocessing = "preprocessing_data"
	StageTraining      = "training_model"
	StageExporting     = "exporting_model"
	DefaultPipeline    = "__default__"
)

// Dataset split fractions (chronological)
const (
	TrainFraction = 0.8
	ValFraction   = 0.1
)

// Context carries the intermediate products of one pair through the stages
type Context struct {
	Pair  models.CryptoPair
	RunID string

	FeatureRows [][]float64
	Train       []preprocess.Sequence
	Val         []preprocess.Sequence
	Test        []preprocess.Sequence
	Scaler      *preprocess.MinMaxScaler
	Network     *training.Network
	Metrics     training.Metrics
}

// Stage is one named pipeline step
type Stage struct {
	Name string
	Run  func(*Context) error
}

// Status is a snapshot of the runner state
type Status struct {
	Running      bool      `json:"running"`
	Pipeline     string    `json:"pipeline,omitempty"`
	CurrentPair  string    `json:"current_pair,omitempty"`
	CurrentStage string    `json:"current_stage,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Runner executes named pipelines over the active pairs
type Runner struct {
	db       *gorm.DB
	candles  *services.CandleService
	datasets *datasetstore.Store
	store    *modelstore.Store

	mu        sync.Mutex
	statusMu  sync.RWMutex
	status    Status
	fetchHrs  int
	trainConf func(symbol string) training.Config
}

// Global pipeline runner
var GlobalRunner *Runner

// InitRunner initializes the global pipeline runner
func InitRunner(db *gorm.DB, candles *services.CandleService, datasets *datasetstore.Store, store *modelstore.Store) error {
	if db == nil || candles == nil || datasets == nil {
		return fmt.Errorf("pipeline runner dependencies not initialized")
	}

	GlobalRunner = &Runner{
		db:       db,
		candles:  candles,
		datasets: datasets,
		store:    store,
		fetchHrs: services.DefaultSyncHours,
		trainConf: func(symbol string) training.Config {
			cfg := training.DefaultConfig(symbol)
			cfg.WindowSize = config.AppConfig.WindowSize
			cfg.HiddenSize = config.AppConfig.HiddenSize
			cfg.Epochs = config.AppConfig.MaxEpochs
			return cfg
		},
	}

	log.Println("Pipeline runner initialized")
	return nil
}

// Registry returns the named pipelines, mirroring the stage names the
// project has always used. Each stage is also runnable on its own.
func (r *Runner) Registry() map[string][]Stage {
	fetch := Stage{Name: StageFetching, Run: r.runFetch}
	prep := Stage{Name: StagePreprocessing, Run: r.runPreprocess}
	train := Stage{Name: StageTraining, Run: r.runTrain}
	exp := Stage{Name: StageExporting, Run: r.runExport}

	return map[string][]Stage{
		StageFetching:      {fetch},
		StagePreprocessing: {prep},
		StageTraining:      {train},
		StageExporting:     {train, exp}, // export needs a freshly trained network
		DefaultPipeline:    {fetch, prep, train, exp},
	}
}

// PipelineNames lists the registered pipelines
func (r *Runner) PipelineNames() []string {
	registry := r.Registry()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status returns a snapshot of the runner state
func (r *Runner) Status() Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return r.status
}

func (r *Runner) setStatus(update func(*Status)) {
	r.statusMu.Lock()
	update(&r.status)
	r.statusMu.Unlock()
}

// Run executes a named pipeline for the given pairs (all active pairs when
// the filter is empty). Only one run may be in flight at a time.
func (r *Runner) Run(pipelineName string, pairFilter []string) error {
	stages, ok := r.Registry()[pipelineName]
	if !ok {
		return fmt.Errorf("unknown pipeline: %s", pipelineName)
	}

	if !r.mu.TryLock() {
		return fmt.Errorf("a pipeline run is already in progress")
	}
	defer r.mu.Unlock()

	pairs, err := r.selectPairs(pairFilter)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("no active pairs to run")
	}

	r.setStatus(func(s *Status) {
		*s = Status{Running: true, Pipeline: pipelineName, StartedAt: time.Now().UTC()}
	})
	defer r.setStatus(func(s *Status) {
		s.Running = false
		s.CurrentPair = ""
		s.CurrentStage = ""
	})

	log.Printf("Running pipeline %s for %d pairs", pipelineName, len(pairs))

	for _, pair := range pairs {
		pctx := &Context{Pair: pair, RunID: uuid.New().String()}

		for _, stage := range stages {
			r.setStatus(func(s *Status) {
				s.CurrentPair = pair.Symbol()
				s.CurrentStage = stage.Name
			})

			if err := r.runStage(pctx, stage); err != nil {
				log.Printf("Pipeline %s failed for %s at %s: %v",
					pipelineName, pair.Symbol(), stage.Name, err)
				r.setStatus(func(s *Status) { s.LastError = err.Error() })
				break // next pair
			}
		}
	}

	log.Printf("Pipeline %s finished", pipelineName)
	return nil
}

// selectPairs loads the active pairs, optionally filtered by symbol
func (r *Runner) selectPairs(filter []string) ([]models.CryptoPair, error) {
	var pairs []models.CryptoPair
	if err := r.db.Where("status = ?", "active").Find(&pairs).Error; err != nil {
		return nil, fmt.Errorf("failed to load pairs: %w", err)
	}

	if len(filter) == 0 {
		return pairs, nil
	}

	wanted := make(map[string]bool, len(filter))
	for _, symbol := range filter {
		wanted[symbol] = true
	}

	selected := pairs[:0]
	for _, pair := range pairs {
		if wanted[pair.Symbol()] {
			selected = append(selected, pair)
		}
	}

	return selected, nil
}

// runStage records a TrainingRun row around the stage execution
func (r *Runner) runStage(pctx *Context, stage Stage) error {
	run := models.TrainingRun{
		RunID:     pctx.RunID,
		PairID:    pctx.Pair.ID,
		Stage:     stage.Name,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := r.db.Create(&run).Error; err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	stageErr := stage.Run(pctx)

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"finished_at": now,
	}
	if stageErr != nil {
		updates["status"] = models.RunStatusFailed
		updates["error"] = stageErr.Error()
	} else {
		updates["status"] = models.RunStatusCompleted
		if stage.Name == StageTraining {
			updates["train_loss"] = pctx.Metrics.TrainLoss
			updates["val_loss"] = pctx.Metrics.ValLoss
			updates["test_loss"] = pctx.Metrics.TestLoss
			updates["epochs"] = pctx.Metrics.Epochs
		}
	}

	if err := r.db.Model(&run).Updates(updates).Error; err != nil {
		log.Printf("Warning: failed to update run record: %v", err)
	}

	return stageErr
}
