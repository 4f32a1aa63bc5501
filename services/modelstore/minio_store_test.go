package modelstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "2026-08-23/BTC_USD/model.json", ModelKey("2026-08-23", "BTC_USD"))
	assert.Equal(t, "2026-08-23/BTC_USD/scaler.json", ScalerKey("2026-08-23", "BTC_USD"))
}
