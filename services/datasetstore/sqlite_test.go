package datasetstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "features.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestSaveAndLoadFeatures(t *testing.T) {
	store := openTestStore(t)

	rows := [][]float64{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	}
	require.NoError(t, store.SaveFeatures("BTC_USD", rows))

	loaded, err := store.LoadFeatures("BTC_USD")
	require.NoError(t, err)
	assert.Equal(t, rows, loaded)
}

func TestSaveFeaturesReplacesOldRows(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveFeatures("BTC_USD", [][]float64{{1}, {2}, {3}}))
	require.NoError(t, store.SaveFeatures("BTC_USD", [][]float64{{9}}))

	loaded, err := store.LoadFeatures("BTC_USD")
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{9}}, loaded)
}

func TestSaveFeaturesEmpty(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.SaveFeatures("BTC_USD", nil))
}

func TestLoadFeaturesUnknownPair(t *testing.T) {
	store := openTestStore(t)

	loaded, err := store.LoadFeatures("ETH_USD")
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestPairsAreIsolated(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.SaveFeatures("BTC_USD", [][]float64{{1}}))
	require.NoError(t, store.SaveFeatures("ETH_USD", [][]float64{{2}}))

	btc, err := store.LoadFeatures("BTC_USD")
	require.NoError(t, err)
	eth, err := store.LoadFeatures("ETH_USD")
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{1}}, btc)
	assert.Equal(t, [][]float64{{2}}, eth)
}

func TestMeta(t *testing.T) {
	store := openTestStore(t)

	before := time.Now().UTC().Add(-time.Minute)
	require.NoError(t, store.SaveFeatures("BTC_USD", [][]float64{{1, 2}, {3, 4}}))

	count, updatedAt, err := store.Meta("BTC_USD")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, updatedAt.After(before))

	_, _, err = store.Meta("ETH_USD")
	assert.Error(t, err)
}
