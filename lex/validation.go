package lex

import (
	"fmt"
	"math/big"

	"github.com/lexfi/lex-go/lex/helpers"
	"github.com/lexfi/lex-go/lex/shared"
)

// ValidateMarketConfig checks a configuration and returns a normalized
// copy: edges sorted so A is the low bound, every big value cloned so
// later caller mutation cannot reach engine state.
func ValidateMarketConfig(cfg MarketConfig) (MarketConfig, error) {
	if cfg.EdgeSqrtPriceAX96 == nil || cfg.EdgeSqrtPriceBX96 == nil ||
		cfg.LimHighSqrtPriceX96 == nil || cfg.LimMaxSqrtPriceX96 == nil {
		return cfg, fmt.Errorf("missing price bound: %w", ErrInvalidConfig)
	}

	low := new(big.Int).Set(cfg.EdgeSqrtPriceAX96)
	high := new(big.Int).Set(cfg.EdgeSqrtPriceBX96)
	if low.Cmp(high) > 0 {
		low, high = high, low
	}
	if low.Sign() <= 0 {
		return cfg, fmt.Errorf("edge must be positive: %w", ErrInvalidConfig)
	}
	if low.Cmp(MinEdgeSqrtPriceX96) < 0 || high.Cmp(MaxEdgeSqrtPriceX96) > 0 {
		return cfg, fmt.Errorf("edges outside supported range: %w", ErrInvalidConfig)
	}
	if low.Cmp(shared.OneX96) >= 0 || high.Cmp(shared.OneX96) <= 0 {
		return cfg, fmt.Errorf("band must straddle the unit price: %w", ErrInvalidConfig)
	}

	// The edges must be reciprocal: low*high = 2^192, allowing for the
	// truncation of high = floor(2^192 / low).
	gap := new(big.Int).Mul(low, high)
	gap.Sub(shared.OneX192, gap)
	if gap.Sign() < 0 || gap.Cmp(low) >= 0 {
		return cfg, fmt.Errorf("edges are not reciprocal: %w", ErrInvalidConfig)
	}

	limHigh := new(big.Int).Set(cfg.LimHighSqrtPriceX96)
	limMax := new(big.Int).Set(cfg.LimMaxSqrtPriceX96)
	if limHigh.Cmp(shared.OneX96) < 0 || limHigh.Cmp(limMax) > 0 || limMax.Cmp(high) > 0 {
		return cfg, fmt.Errorf("liquidation bounds must satisfy unit <= limHigh <= limMax <= high edge: %w", ErrInvalidConfig)
	}

	if cfg.DebtDuration == 0 {
		return cfg, fmt.Errorf("debt duration must be positive: %w", ErrInvalidConfig)
	}
	if cfg.SwapFeeBps > shared.MaxSwapFeeBps {
		return cfg, fmt.Errorf("swap fee %d exceeds %d bps: %w", cfg.SwapFeeBps, shared.MaxSwapFeeBps, ErrInvalidConfig)
	}
	yieldFeeBps, tvlFeeBps := helpers.DecodeProtocolFee(cfg.ProtocolFee)
	if yieldFeeBps > shared.MaxYieldFeeBps {
		return cfg, fmt.Errorf("yield fee %d exceeds %d bps: %w", yieldFeeBps, shared.MaxYieldFeeBps, ErrInvalidConfig)
	}
	if tvlFeeBps > shared.MaxTvlFeeBps {
		return cfg, fmt.Errorf("tvl fee %d exceeds %d bps: %w", tvlFeeBps, shared.MaxTvlFeeBps, ErrInvalidConfig)
	}
	if cfg.NoCapLimit > shared.MaxNoCapLimit {
		return cfg, fmt.Errorf("no-cap limit %d exceeds %d: %w", cfg.NoCapLimit, shared.MaxNoCapLimit, ErrInvalidConfig)
	}

	normalized := cfg
	normalized.EdgeSqrtPriceAX96 = low
	normalized.EdgeSqrtPriceBX96 = high
	normalized.LimHighSqrtPriceX96 = limHigh
	normalized.LimMaxSqrtPriceX96 = limMax
	return normalized, nil
}
