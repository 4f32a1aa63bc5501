package serving

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"coinforecast/services/export"
)

// ErrModelNotFound is returned when a prediction is requested for a model
// that is not loaded in the session cache
var ErrModelNotFound = errors.New("model not found in session")

// ArtifactStore is the object-storage surface the loader needs
type ArtifactStore interface {
	ListModels(date string) ([]string, error)
	Download(date, pairSymbol, destDir string) (modelPath, scalerPath string, err error)
}

// ModelInfo describes one loaded inference session
type ModelInfo struct {
	Name       string    `json:"name"`
	Date       string    `json:"date"`
	WindowSize int       `json:"window_size"`
	TrainedAt  time.Time `json:"trained_at"`
	LoadedAt   time.Time `json:"loaded_at"`
	ValLoss    float64   `json:"val_loss"`
}

type session struct {
	artifact *export.Artifact
	date     string
	loadedAt time.Time
}

// Loader keeps one decoded artifact per available model, keyed by pair name.
// Models are looked up in object storage under the current UTC date prefix.
type Loader struct {
	store     ArtifactStore
	modelsDir string

	mu       sync.RWMutex
	date     string
	sessions map[string]*session
}

// NewLoader creates a loader backed by the given artifact store
func NewLoader(store ArtifactStore, modelsDir string) (*Loader, error) {
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	l := &Loader{
		store:     store,
		modelsDir: modelsDir,
		sessions:  make(map[string]*session),
	}
	l.updateDate()

	return l, nil
}

// updateDate rolls the loader's date to the current UTC day
func (l *Loader) updateDate() {
	l.mu.Lock()
	l.date = time.Now().UTC().Format("2006-01-02")
	l.mu.Unlock()
}

// Date returns the date prefix the loader currently serves from
func (l *Loader) Date() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.date
}

// Refresh lists the models published for the current UTC day, downloads
// their files and atomically swaps the session cache. Models that fail to
// load are skipped so one bad artifact cannot empty the cache. The served
// date only rolls forward once the listing succeeds, so a failed refresh
// keeps reporting the date the surviving sessions were loaded for.
func (l *Loader) Refresh() error {
	date := time.Now().UTC().Format("2006-01-02")

	names, err := l.store.ListModels(date)
	if err != nil {
		return fmt.Errorf("failed to list available models: %w", err)
	}

	next := make(map[string]*session, len(names))
	for _, name := range names {
		sess, err := l.loadModel(date, name)
		if err != nil {
			log.Printf("Warning: skipping model %s: %v", name, err)
			continue
		}
		next[name] = sess
	}

	l.mu.Lock()
	l.date = date
	l.sessions = next
	l.mu.Unlock()

	log.Printf("Serving loader refreshed: %d models for %s", len(next), date)
	return nil
}

// loadModel downloads and decodes one model into a session
func (l *Loader) loadModel(date, name string) (*session, error) {
	modelPath, _, err := l.store.Download(date, name, l.modelsDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	artifact, err := export.Decode(data)
	if err != nil {
		return nil, err
	}

	return &session{
		artifact: artifact,
		date:     date,
		loadedAt: time.Now().UTC(),
	}, nil
}

// Predict runs raw feature rows through a loaded model and returns the
// de-scaled next close prediction.
func (l *Loader) Predict(modelName string, rows [][]float64) (float64, error) {
	l.mu.RLock()
	sess, ok := l.sessions[modelName]
	l.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrModelNotFound, modelName)
	}

	return sess.artifact.Predict(rows)
}

// WindowSize returns the window length a loaded model expects
func (l *Loader) WindowSize(modelName string) (int, error) {
	l.mu.RLock()
	sess, ok := l.sessions[modelName]
	l.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrModelNotFound, modelName)
	}
	return sess.artifact.WindowSize, nil
}

// Models lists the loaded sessions
func (l *Loader) Models() []ModelInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	infos := make([]ModelInfo, 0, len(l.sessions))
	for name, sess := range l.sessions {
		infos = append(infos, ModelInfo{
			Name:       name,
			Date:       sess.date,
			WindowSize: sess.artifact.WindowSize,
			TrainedAt:  sess.artifact.TrainedAt,
			LoadedAt:   sess.loadedAt,
			ValLoss:    sess.artifact.Metrics.ValLoss,
		})
	}

	return infos
}

// Global serving loader instance
var GlobalLoader *Loader

// InitLoader initializes the global serving loader and performs the first
// refresh. A failed first refresh is logged, not fatal: models may simply
// not be published yet for today.
func InitLoader(store ArtifactStore, modelsDir string) error {
	loader, err := NewLoader(store, modelsDir)
	if err != nil {
		return err
	}

	if err := loader.Refresh(); err != nil {
		log.Printf("Warning: initial model refresh failed: %v", err)
	}

	GlobalLoader = loader
	log.Println("Serving loader initialized")
	return nil
}
