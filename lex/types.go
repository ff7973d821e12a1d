package lex

import (
	"encoding/hex"
	"math/big"

	"github.com/lexfi/lex-go/lex/shared"
)

type Rounding = shared.Rounding

const (
	RoundingUp   = shared.RoundingUp
	RoundingDown = shared.RoundingDown
)

type AssetType = shared.AssetType

const (
	AssetTypeBase     = shared.AssetTypeBase
	AssetTypeLeverage = shared.AssetTypeLeverage
	AssetTypeDebt     = shared.AssetTypeDebt
)

type SwapMode = shared.SwapMode

const (
	SwapModeExactIn  = shared.SwapModeExactIn
	SwapModeExactOut = shared.SwapModeExactOut
)

type MarketConfig = shared.MarketConfig

var (
	ErrArithmeticOverflow = shared.ErrArithmeticOverflow
	ErrInvalidDomain      = shared.ErrInvalidDomain
	ErrZeroLiquidity      = shared.ErrZeroLiquidity

	ErrZeroAmount                          = shared.ErrZeroAmount
	ErrEqualSwapAssets                     = shared.ErrEqualSwapAssets
	ErrCapExceeded                         = shared.ErrCapExceeded
	ErrInsufficientTokens                  = shared.ErrInsufficientTokens
	ErrActionNotAllowedUnderCollateralized = shared.ErrActionNotAllowedUnderCollateralized

	ErrMarketExists   = shared.ErrMarketExists
	ErrMarketNotFound = shared.ErrMarketNotFound
	ErrInvalidConfig  = shared.ErrInvalidConfig
)

// MarketID identifies a market by the hash of its configuration.
type MarketID [32]byte

func (id MarketID) String() string {
	return hex.EncodeToString(id[:])
}

// TokenHandle identifies one synthetic token of a market.
type TokenHandle [32]byte

func (h TokenHandle) String() string {
	return hex.EncodeToString(h[:])
}

// SynthTokens groups the two synthetic handles of one market.
type SynthTokens struct {
	LeverageToken TokenHandle
	DebtToken     TokenHandle
}

// LexState is a point-in-time copy of one market's state.
type LexState struct {
	SqrtPriceX96      *big.Int
	Liquidity         *big.Int
	BaseSupply        *big.Int
	LeverageSupply    *big.Int
	DebtSupply        *big.Int
	DebtNotionalPrice *big.Int
	ProtocolFeeGrowth *big.Int
	LastUpdate        uint64
}

type MintParams struct {
	MarketID     MarketID
	BaseAmountIn *big.Int
}

type MintResult struct {
	LeverageAmountOut *big.Int
	DebtAmountOut     *big.Int
	LiquidityDelta    *big.Int
	FeeAccrued        *big.Int
}

type RedeemParams struct {
	MarketID         MarketID
	LeverageAmountIn *big.Int
	DebtAmountIn     *big.Int
}

type RedeemResult struct {
	BaseAmountOut *big.Int
	LiquidityOut  *big.Int
	FeeAccrued    *big.Int
}

// SwapParams describes one swap between two distinct assets of a
// market. Amount is the input for exact-in swaps and the desired
// output for exact-out swaps.
type SwapParams struct {
	MarketID MarketID
	AssetIn  AssetType
	AssetOut AssetType
	Amount   *big.Int
	SwapMode SwapMode
}

type SwapResult struct {
	AmountIn      *big.Int
	AmountOut     *big.Int
	SwapFee       *big.Int
	FeeAccrued    *big.Int
	NextSqrtPrice *big.Int
}
