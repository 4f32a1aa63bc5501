package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairSymbol(t *testing.T) {
	pair := CryptoPair{Currency: "BTC", Compare: "USD"}
	assert.Equal(t, "BTC_USD", pair.Symbol())
}

func TestParsePairSymbol(t *testing.T) {
	currency, compare, err := ParsePairSymbol("BTC_USD")
	require.NoError(t, err)
	assert.Equal(t, "BTC", currency)
	assert.Equal(t, "USD", compare)

	_, _, err = ParsePairSymbol("BTCUSD")
	assert.Error(t, err)

	_, _, err = ParsePairSymbol("")
	assert.Error(t, err)

	_, _, err = ParsePairSymbol("_USD")
	assert.Error(t, err)
}

func TestAdminUserPassword(t *testing.T) {
	user := AdminUser{Username: "admin"}
	require.NoError(t, user.SetPassword("secret123"))

	// Hash is stored, not the plaintext
	assert.NotEqual(t, "secret123", user.PasswordHash)

	assert.True(t, user.CheckPassword("secret123"))
	assert.False(t, user.CheckPassword("wrong"))
}
