package lex

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeeOnAmount(t *testing.T) {
	assert.Zero(t, feeOnAmount(wad(1), 0).Sign())
	assert.Zero(t, feeOnAmount(new(big.Int), 30).Sign())
	assert.Equal(t, "3000000000000000", feeOnAmount(wad(1), 30).String())

	// Rounds up, so dust inputs still pay.
	assert.Equal(t, "3", feeOnAmount(big.NewInt(999), 30).String())
	assert.Equal(t, "1", feeOnAmount(big.NewInt(1), 30).String())
}

func TestGrossFromNet(t *testing.T) {
	gross, err := grossFromNet(wad(1), 0)
	require.NoError(t, err)
	assert.Equal(t, wad(1).String(), gross.String())

	gross, err = grossFromNet(bigFromString("997000000000000000"), 30)
	require.NoError(t, err)
	assert.Equal(t, wad(1).String(), gross.String())

	gross, err = grossFromNet(wad(1), 30)
	require.NoError(t, err)
	assert.Equal(t, "1003009027081243732", gross.String())

	_, err = grossFromNet(wad(1), 10_000)
	require.ErrorIs(t, err, ErrInvalidDomain)
}

// TestGrossFromNetMinimal pins the contract: the gross amount keeps at
// least net after the fee, and one unit less would not.
func TestGrossFromNetMinimal(t *testing.T) {
	net := bigFromString("999999999999999999")
	gross, err := grossFromNet(net, 30)
	require.NoError(t, err)

	keep := big.NewInt(9970)
	scale := big.NewInt(10_000)
	kept := new(big.Int).Mul(gross, keep)
	assert.True(t, kept.Cmp(new(big.Int).Mul(net, scale)) >= 0)

	smaller := new(big.Int).Sub(gross, big.NewInt(1))
	kept = new(big.Int).Mul(smaller, keep)
	assert.True(t, kept.Cmp(new(big.Int).Mul(net, scale)) < 0)
}
