package shared

import (
	"math/big"
)

// Enums and common types shared by math, helpers and the engine.
type Rounding uint8

const (
	RoundingUp   Rounding = 0
	RoundingDown Rounding = 1
)

type AssetType uint8

const (
	AssetTypeBase     AssetType = 0
	AssetTypeLeverage AssetType = 1
	AssetTypeDebt     AssetType = 2
)

func (a AssetType) String() string {
	switch a {
	case AssetTypeBase:
		return "base"
	case AssetTypeLeverage:
		return "leverage"
	case AssetTypeDebt:
		return "debt"
	default:
		return "unknown"
	}
}

type SwapMode uint8

const (
	SwapModeExactIn  SwapMode = 0
	SwapModeExactOut SwapMode = 1
)

// MarketConfig is the immutable economic configuration of one market.
// Edge prices may be supplied in either order; validation sorts them so
// that the low edge times the high edge equals one in Q192 terms.
type MarketConfig struct {
	EdgeSqrtPriceAX96   *big.Int
	EdgeSqrtPriceBX96   *big.Int
	LimHighSqrtPriceX96 *big.Int
	LimMaxSqrtPriceX96  *big.Int
	DebtDuration        uint64
	SwapFeeBps          uint16
	NoCapLimit          uint8
	ProtocolFee         uint32
	LnRateBiasQ64       int64
}

// MintAmounts is the synthetic pair produced for a liquidity delta.
type MintAmounts struct {
	DebtAmount     *big.Int
	LeverageAmount *big.Int
}

// RedeemComputation is the curve-level result of removing balances.
type RedeemComputation struct {
	LiquidityOut  *big.Int
	NextSqrtPrice *big.Int
}

// SwapComputation is the curve-level result of a synthetic swap.
type SwapComputation struct {
	AmountIn      *big.Int
	AmountOut     *big.Int
	NextSqrtPrice *big.Int
}

const (
	BasisPointMax = 10_000

	ScaleOffset = 96

	SecondsPerDay  = 86_400
	SecondsPerYear = 31_536_000

	MaxSwapFeeBps  = 1_000
	MaxYieldFeeBps = 5_000
	MaxTvlFeeBps   = 500

	MaxNoCapLimit = 96
)

var (
	OneX96  = new(big.Int).Lsh(big.NewInt(1), ScaleOffset)
	OneX192 = new(big.Int).Lsh(big.NewInt(1), ScaleOffset*2)
	HalfX96 = new(big.Int).Lsh(big.NewInt(1), ScaleOffset-1)

	MaxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	MaxU256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	U64Max  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 64), big.NewInt(1))

	// NoCapCeiling is the absolute per-operation amount ceiling that
	// applies when a market is below its no-cap threshold.
	NoCapCeiling = new(big.Int).Lsh(big.NewInt(1), 96)

	// Wad is the 1e18 fixed-point base used by oracle prices.
	Wad = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)
