package lex

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMetricsInstrumentation runs real operations through an
// instrumented engine and reads the collectors back.
func TestMetricsInstrumentation(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics("lex", registry)

	cfg := testMarketConfig()
	cfg.SwapFeeBps = 30
	oracle := &stubOracle{price: wad(1)}
	engine, err := NewEngine(oracle, WithMetrics(metrics))
	require.NoError(t, err)
	id, err := engine.InitMarket(cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ActiveMarkets))

	_, err = engine.Mint(MintParams{MarketID: id, BaseAmountIn: wad(10)})
	require.NoError(t, err)
	_, err = engine.Mint(MintParams{MarketID: id})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations.WithLabelValues("mint", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations.WithLabelValues("mint", "error")))

	_, err = engine.Swap(SwapParams{
		MarketID: id,
		AssetIn:  AssetTypeDebt,
		AssetOut: AssetTypeBase,
		Amount:   wad(1),
		SwapMode: SwapModeExactIn,
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Operations.WithLabelValues("swap", "ok")))
	assert.Positive(t, testutil.ToFloat64(metrics.ProtocolFees.WithLabelValues(id.String())))
}

// TestMetricsNilSafe checks the engine can run entirely without
// instrumentation.
func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.observe("mint", time.Now(), nil)
	m.marketOpened()
	m.feeCollected("market", big.NewInt(1))

	metrics := NewMetrics("lex", nil)
	metrics.feeCollected("market", nil)
	metrics.feeCollected("market", new(big.Int))
}
