package predictionlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutURI(t *testing.T) {
	t.Setenv("MONGODB_URI", "")

	require.NoError(t, Init())
	require.NotNil(t, GlobalPredictionLog)
	assert.False(t, GlobalPredictionLog.IsConnected())
}

func TestDisabledLogBehavior(t *testing.T) {
	c := &Client{}

	// Writes are silently dropped
	require.NoError(t, c.Append(Record{
		Pair:           "BTC_USD",
		PredictedClose: 64000,
		ServedAt:       time.Now().UTC(),
	}))

	// Reads fail loudly
	_, err := c.Recent("BTC_USD", 10)
	assert.Error(t, err)

	require.NoError(t, c.Close())
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.False(t, c.IsConnected())
	assert.NoError(t, c.Close())
}
