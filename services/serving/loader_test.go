package serving

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coinforecast/services/export"
	"coinforecast/services/preprocess"
	"coinforecast/services/training"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore serves pre-encoded artifacts from memory, writing them to the
// destination directory the way the object store download does
type stubStore struct {
	artifacts map[string][]byte // pair symbol -> encoded artifact
	listErr   error
}

func (s *stubStore) ListModels(date string) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	names := make([]string, 0, len(s.artifacts))
	for name := range s.artifacts {
		names = append(names, name)
	}
	return names, nil
}

func (s *stubStore) Download(date, pairSymbol, destDir string) (string, string, error) {
	encoded, ok := s.artifacts[pairSymbol]
	if !ok {
		return "", "", fmt.Errorf("no artifact for %s", pairSymbol)
	}

	dir := filepath.Join(destDir, pairSymbol)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", err
	}

	modelPath := filepath.Join(dir, "model.json")
	if err := os.WriteFile(modelPath, encoded, 0644); err != nil {
		return "", "", err
	}

	return modelPath, filepath.Join(dir, "scaler.json"), nil
}

func encodedArtifact(t *testing.T, pair string, windowSize int) []byte {
	t.Helper()

	rng := rand.New(rand.NewSource(1))
	net := training.NewNetwork(4, 3, rng)

	scaler := &preprocess.MinMaxScaler{FeatureNames: []string{"open", "high", "low", "close"}}
	require.NoError(t, scaler.Fit([][]float64{{0, 10, 0, 100}, {1, 20, 1, 200}}))

	artifact, err := export.New(pair, windowSize, net, scaler, export.Metrics{ValLoss: 0.02})
	require.NoError(t, err)

	encoded, err := artifact.Encode()
	require.NoError(t, err)
	return encoded
}

func TestRefreshAndPredict(t *testing.T) {
	encoded := encodedArtifact(t, "BTC_USD", 3)
	store := &stubStore{artifacts: map[string][]byte{
		"BTC_USD": encoded,
	}}

	loader, err := NewLoader(store, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, loader.Refresh())

	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), loader.Date())

	windowSize, err := loader.WindowSize("BTC_USD")
	require.NoError(t, err)
	assert.Equal(t, 3, windowSize)

	rows := [][]float64{
		{0.1, 12, 0.1, 110},
		{0.3, 14, 0.2, 130},
		{0.5, 15, 0.4, 150},
	}
	predicted, err := loader.Predict("BTC_USD", rows)
	require.NoError(t, err)

	// Serving matches a direct run of the decoded artifact
	artifact, err := export.Decode(encoded)
	require.NoError(t, err)
	want, err := artifact.Predict(rows)
	require.NoError(t, err)
	assert.Equal(t, want, predicted)

	models := loader.Models()
	require.Len(t, models, 1)
	assert.Equal(t, "BTC_USD", models[0].Name)
	assert.Equal(t, 3, models[0].WindowSize)
	assert.Equal(t, 0.02, models[0].ValLoss)
}

func TestPredictUnknownModel(t *testing.T) {
	loader, err := NewLoader(&stubStore{artifacts: map[string][]byte{}}, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, loader.Refresh())

	_, err = loader.Predict("ETH_USD", nil)
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = loader.WindowSize("ETH_USD")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRefreshSkipsBrokenArtifacts(t *testing.T) {
	store := &stubStore{artifacts: map[string][]byte{
		"BTC_USD": encodedArtifact(t, "BTC_USD", 3),
		"ETH_USD": []byte("not an artifact"),
	}}

	loader, err := NewLoader(store, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, loader.Refresh())

	models := loader.Models()
	require.Len(t, models, 1)
	assert.Equal(t, "BTC_USD", models[0].Name)
}

func TestRefreshListFailureKeepsSessions(t *testing.T) {
	store := &stubStore{artifacts: map[string][]byte{
		"BTC_USD": encodedArtifact(t, "BTC_USD", 3),
	}}

	loader, err := NewLoader(store, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, loader.Refresh())
	require.Len(t, loader.Models(), 1)

	// A failed listing must not wipe the cache that is already serving
	store.listErr = fmt.Errorf("storage unreachable")
	require.Error(t, loader.Refresh())
	assert.Len(t, loader.Models(), 1)
}

func TestRefreshRollsDateOnlyOnSuccess(t *testing.T) {
	store := &stubStore{artifacts: map[string][]byte{
		"BTC_USD": encodedArtifact(t, "BTC_USD", 3),
	}}

	loader, err := NewLoader(store, t.TempDir())
	require.NoError(t, err)

	// Pretend the surviving sessions were loaded on an earlier day
	loader.mu.Lock()
	loader.date = "2000-01-01"
	loader.mu.Unlock()

	store.listErr = fmt.Errorf("storage unreachable")
	require.Error(t, loader.Refresh())
	assert.Equal(t, "2000-01-01", loader.Date())

	store.listErr = nil
	require.NoError(t, loader.Refresh())
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), loader.Date())
}
