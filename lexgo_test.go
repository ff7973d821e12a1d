package lexgo

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const marketJSON = `{
  "edge_sqrt_price_a": "39614081257132168796771975168",
  "edge_sqrt_price_b": "158456325028528675187087900672",
  "lim_high_sqrt_price": "118842243771396506390315925504",
  "lim_max_sqrt_price": "138649284399962590788701913088",
  "debt_duration": 31536000,
  "no_cap_limit": 96,
  "ln_rate_bias": 900019671747786752
}`

type fixedOracle struct {
	price *big.Int
}

func (o fixedOracle) BasePrice(MarketID) (*big.Int, error) {
	return new(big.Int).Set(o.price), nil
}

func wad(n int64) *big.Int {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return out.Mul(out, big.NewInt(n))
}

// TestClientFlow drives a market through the facade end to end: parse
// the config, open the market, mint, swap and redeem.
func TestClientFlow(t *testing.T) {
	client, err := New(DefaultEngineConfig(), fixedOracle{price: wad(1)}, prometheus.NewRegistry())
	require.NoError(t, err)
	require.NotNil(t, client.Engine)
	require.NotNil(t, client.Logger)
	require.NotNil(t, client.Metrics)

	cfg, err := ParseMarketConfig([]byte(marketJSON))
	require.NoError(t, err)
	id, err := client.Engine.InitMarket(cfg)
	require.NoError(t, err)

	minted, err := client.Engine.Mint(MintParams{MarketID: id, BaseAmountIn: wad(10)})
	require.NoError(t, err)
	assert.Equal(t, wad(5).String(), minted.DebtAmountOut.String())
	assert.Equal(t, wad(5).String(), minted.LeverageAmountOut.String())

	swapped, err := client.Engine.Swap(SwapParams{
		MarketID: id,
		AssetIn:  AssetTypeDebt,
		AssetOut: AssetTypeLeverage,
		Amount:   wad(1),
		SwapMode: SwapModeExactIn,
	})
	require.NoError(t, err)
	assert.Positive(t, swapped.AmountOut.Sign())

	redeemed, err := client.Engine.Redeem(RedeemParams{
		MarketID:     id,
		DebtAmountIn: wad(1),
	})
	require.NoError(t, err)
	assert.Positive(t, redeemed.BaseAmountOut.Sign())
}

func TestNewWithMetricsDisabled(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Metrics.Enabled = false
	client, err := New(cfg, fixedOracle{price: wad(1)}, nil)
	require.NoError(t, err)
	assert.Nil(t, client.Metrics)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.MaxMarkets = 0
	_, err := New(cfg, fixedOracle{price: wad(1)}, nil)
	require.Error(t, err)
}

func TestNewFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("metrics:\n  enabled: false\nlog:\n  level: warn\n"), 0o600))

	client, err := NewFromConfigFile(path, fixedOracle{price: wad(1)}, nil)
	require.NoError(t, err)
	assert.Nil(t, client.Metrics)
	assert.Equal(t, DefaultEngineConfig().MaxMarkets, client.Config.MaxMarkets)

	_, err = NewFromConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), fixedOracle{price: wad(1)}, nil)
	require.Error(t, err)
}

func TestBuildLogger(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Log.Level = "warn"
	logger, err := BuildLogger(cfg.Log)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	cfg.Log.Level = "nope"
	_, err = BuildLogger(cfg.Log)
	require.Error(t, err)

	cfg.Log.Level = ""
	cfg.Log.Development = true
	_, err = BuildLogger(cfg.Log)
	require.NoError(t, err)
}
