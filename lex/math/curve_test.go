package math

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexfi/lex-go/lex/shared"
)

// The test band straddles the unit price with reciprocal power-of-two
// edges, so the expected values below are exact.
var (
	edgeLow  = new(big.Int).Lsh(big.NewInt(1), 95) // sqrt(1/4)
	edgeHigh = new(big.Int).Lsh(big.NewInt(1), 97) // sqrt(4)
)

func wad(n int64) *big.Int {
	out := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return out.Mul(out, big.NewInt(n))
}

func mustBigInt(t *testing.T, v string) *big.Int {
	t.Helper()
	out, ok := new(big.Int).SetString(v, 10)
	require.True(t, ok, "bad integer literal %q", v)
	return out
}

func TestGetDebtFromLiquidityDelta(t *testing.T) {
	// Half a unit price span at L=2000 holds 1000 debt.
	out, err := GetDebtFromLiquidityDelta(edgeLow, shared.OneX96, big.NewInt(2000), shared.RoundingDown)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), out.Int64())

	_, err = GetDebtFromLiquidityDelta(shared.OneX96, edgeLow, big.NewInt(2000), shared.RoundingDown)
	require.ErrorIs(t, err, shared.ErrInvalidDomain)
}

func TestGetLeverageFromLiquidityDelta(t *testing.T) {
	out, err := GetLeverageFromLiquidityDelta(shared.OneX96, edgeHigh, big.NewInt(2000), shared.RoundingDown)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), out.Int64())

	// The mirror form zeroes exactly at the high edge.
	out, err = GetLeverageFromLiquidityDelta(edgeHigh, edgeHigh, big.NewInt(2000), shared.RoundingDown)
	require.NoError(t, err)
	assert.Zero(t, out.Sign())

	_, err = GetLeverageFromLiquidityDelta(new(big.Int), edgeHigh, big.NewInt(2000), shared.RoundingDown)
	require.ErrorIs(t, err, shared.ErrInvalidDomain)
}

func TestComputeLiquidity(t *testing.T) {
	liquidity, err := ComputeLiquidity(edgeLow, edgeHigh, big.NewInt(1000), big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(2000), liquidity.Int64())

	// Either balance at zero collapses the solved liquidity.
	liquidity, err = ComputeLiquidity(edgeLow, edgeHigh, new(big.Int), big.NewInt(1000))
	require.NoError(t, err)
	assert.Zero(t, liquidity.Sign())

	_, err = ComputeLiquidity(edgeLow, edgeHigh, big.NewInt(-1), big.NewInt(1000))
	require.ErrorIs(t, err, shared.ErrInvalidDomain)
}

// TestComputeLiquidityMonotonic grows one balance at a time and checks
// the solved liquidity never shrinks.
func TestComputeLiquidityMonotonic(t *testing.T) {
	steps := []*big.Int{wad(1), wad(2), wad(5), wad(50), wad(1000)}

	prev := new(big.Int)
	for _, debt := range steps {
		liquidity, err := ComputeLiquidity(edgeLow, edgeHigh, debt, wad(3))
		require.NoError(t, err)
		assert.True(t, liquidity.Cmp(prev) >= 0, "debt %s shrank liquidity", debt)
		prev = liquidity
	}

	prev = new(big.Int)
	for _, leverage := range steps {
		liquidity, err := ComputeLiquidity(edgeLow, edgeHigh, wad(3), leverage)
		require.NoError(t, err)
		assert.True(t, liquidity.Cmp(prev) >= 0, "leverage %s shrank liquidity", leverage)
		prev = liquidity
	}
}

func TestLiquidityFromBalances(t *testing.T) {
	// Interior balances agree with the solved form.
	interior, err := LiquidityFromBalances(edgeLow, edgeHigh, big.NewInt(1000), big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(2000), interior.Int64())

	// One-sided balances pin the liquidity at the matching edge
	// instead of collapsing.
	pinned, err := LiquidityFromBalances(edgeLow, edgeHigh, new(big.Int), big.NewInt(3000))
	require.NoError(t, err)
	assert.Equal(t, int64(2000), pinned.Int64())

	pinned, err = LiquidityFromBalances(edgeLow, edgeHigh, big.NewInt(3000), new(big.Int))
	require.NoError(t, err)
	assert.Equal(t, int64(2000), pinned.Int64())

	empty, err := LiquidityFromBalances(edgeLow, edgeHigh, new(big.Int), new(big.Int))
	require.NoError(t, err)
	assert.Zero(t, empty.Sign())
}

func TestNextSqrtPriceFromBalances(t *testing.T) {
	balanced := NextSqrtPriceFromBalances(big.NewInt(2000), big.NewInt(1000), big.NewInt(1000), edgeLow, edgeHigh)
	assert.Zero(t, balanced.Cmp(shared.OneX96))

	assert.Zero(t, NextSqrtPriceFromBalances(new(big.Int), new(big.Int), new(big.Int), edgeLow, edgeHigh).Cmp(shared.OneX96))
	assert.Zero(t, NextSqrtPriceFromBalances(big.NewInt(2000), new(big.Int), big.NewInt(3000), edgeLow, edgeHigh).Cmp(edgeLow))
	assert.Zero(t, NextSqrtPriceFromBalances(big.NewInt(2000), big.NewInt(3000), new(big.Int), edgeLow, edgeHigh).Cmp(edgeHigh))
}

func TestComputeMint(t *testing.T) {
	amounts, err := ComputeMint(shared.OneX96, edgeLow, edgeHigh, big.NewInt(2000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), amounts.DebtAmount.Int64())
	assert.Equal(t, int64(1000), amounts.LeverageAmount.Int64())

	amounts, err = ComputeMint(shared.OneX96, edgeLow, edgeHigh, new(big.Int))
	require.NoError(t, err)
	assert.Zero(t, amounts.DebtAmount.Sign())
	assert.Zero(t, amounts.LeverageAmount.Sign())

	_, err = ComputeMint(shared.OneX96, edgeLow, edgeHigh, big.NewInt(-1))
	require.ErrorIs(t, err, shared.ErrInvalidDomain)

	outside := new(big.Int).Add(edgeHigh, big.NewInt(1))
	_, err = ComputeMint(outside, edgeLow, edgeHigh, big.NewInt(2000))
	require.ErrorIs(t, err, shared.ErrInvalidDomain)
}

func TestComputeRedeemProportional(t *testing.T) {
	// Removing a tenth of both balances releases a tenth of the
	// liquidity and leaves the price where it was.
	halfWad := new(big.Int).Div(wad(1), big.NewInt(2))
	out, err := ComputeRedeem(wad(10), shared.OneX96, edgeLow, edgeHigh, halfWad, halfWad)
	require.NoError(t, err)
	assert.Zero(t, out.LiquidityOut.Cmp(wad(1)))
	assert.Zero(t, out.NextSqrtPrice.Cmp(shared.OneX96))
}

func TestComputeRedeemFullDebtSide(t *testing.T) {
	// Draining the debt side settles the price at the low edge; the
	// leverage balance keeps the remaining liquidity pinned there.
	out, err := ComputeRedeem(wad(10), shared.OneX96, edgeLow, edgeHigh, wad(5), new(big.Int))
	require.NoError(t, err)
	assert.Zero(t, out.NextSqrtPrice.Cmp(edgeLow))
	assert.Zero(t, out.LiquidityOut.Cmp(mustBigInt(t, "6666666666666666667")))
}

func TestComputeRedeemErrors(t *testing.T) {
	_, err := ComputeRedeem(wad(10), shared.OneX96, edgeLow, edgeHigh, wad(6), new(big.Int))
	require.ErrorIs(t, err, shared.ErrInsufficientTokens)

	_, err = ComputeRedeem(new(big.Int), shared.OneX96, edgeLow, edgeHigh, wad(1), new(big.Int))
	require.ErrorIs(t, err, shared.ErrZeroLiquidity)

	_, err = ComputeRedeem(wad(10), shared.OneX96, edgeLow, edgeHigh, big.NewInt(-1), new(big.Int))
	require.ErrorIs(t, err, shared.ErrInvalidDomain)
}

func TestComputeSwapDebtIn(t *testing.T) {
	// At L=14e18 a quarter of the debt side moves the sqrt price to
	// exactly 7/8 and releases exactly 2e18 leverage.
	liquidity := wad(14)
	out, err := ComputeSwap(liquidity, shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeDebt, mustBigInt(t, "1750000000000000000"), true)
	require.NoError(t, err)
	assert.Zero(t, out.AmountOut.Cmp(wad(2)))
	assert.Zero(t, out.NextSqrtPrice.Cmp(mustBigInt(t, "69324642199981295394350956544")))

	// The exact-out request of that output lands on the same price and
	// charges the same input.
	back, err := ComputeSwap(liquidity, shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeDebt, wad(2), false)
	require.NoError(t, err)
	assert.Zero(t, back.AmountIn.Cmp(mustBigInt(t, "1750000000000000000")))
	assert.Zero(t, back.NextSqrtPrice.Cmp(out.NextSqrtPrice))
}

func TestComputeSwapLeverageIn(t *testing.T) {
	liquidity := wad(14)
	out, err := ComputeSwap(liquidity, shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeLeverage, mustBigInt(t, "1750000000000000000"), true)
	require.NoError(t, err)
	assert.Zero(t, out.AmountOut.Cmp(mustBigInt(t, "1999999999999999999")))
	assert.Zero(t, out.NextSqrtPrice.Cmp(mustBigInt(t, "90546471444873528678335943241")))

	back, err := ComputeSwap(liquidity, shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeLeverage, out.AmountOut, false)
	require.NoError(t, err)
	assert.Zero(t, back.AmountIn.Cmp(mustBigInt(t, "1750000000000000000")))
}

func TestComputeSwapDust(t *testing.T) {
	// A one-unit input still moves the price but rounds the output to
	// zero in the protocol's favor.
	out, err := ComputeSwap(wad(10), shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeDebt, big.NewInt(1), true)
	require.NoError(t, err)
	assert.Zero(t, out.AmountOut.Sign())
	assert.Zero(t, out.NextSqrtPrice.Cmp(mustBigInt(t, "79228162514264337585621134085")))
}

func TestComputeSwapZeroAmount(t *testing.T) {
	out, err := ComputeSwap(wad(10), shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeDebt, new(big.Int), true)
	require.NoError(t, err)
	assert.Zero(t, out.AmountIn.Sign())
	assert.Zero(t, out.AmountOut.Sign())
	assert.Zero(t, out.NextSqrtPrice.Cmp(shared.OneX96))
}

func TestComputeSwapErrors(t *testing.T) {
	_, err := ComputeSwap(new(big.Int), shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeDebt, wad(1), true)
	require.ErrorIs(t, err, shared.ErrZeroLiquidity)

	// Crossing the low edge: more debt in than the band can absorb.
	_, err = ComputeSwap(wad(10), shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeDebt, wad(8), true)
	require.ErrorIs(t, err, shared.ErrInvalidDomain)

	// Crossing the high edge the same way with leverage in.
	_, err = ComputeSwap(wad(14), shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeLeverage, wad(10), true)
	require.ErrorIs(t, err, shared.ErrInvalidDomain)

	// An input large enough to exhaust the curve entirely.
	_, err = ComputeSwap(wad(14), shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeLeverage, wad(15), true)
	require.ErrorIs(t, err, shared.ErrInvalidDomain)

	_, err = ComputeSwap(wad(10), shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeBase, wad(1), true)
	require.ErrorIs(t, err, shared.ErrInvalidDomain)

	_, err = ComputeSwap(wad(10), shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeDebt, big.NewInt(-1), true)
	require.ErrorIs(t, err, shared.ErrInvalidDomain)
}

func TestXvsL(t *testing.T) {
	// Both synthetics hold the same per-liquidity balance at the unit
	// price.
	debtSide, err := XvsL(shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeDebt)
	require.NoError(t, err)
	leverageSide, err := XvsL(shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeLeverage)
	require.NoError(t, err)
	assert.Zero(t, debtSide.Cmp(shared.HalfX96))
	assert.Zero(t, leverageSide.Cmp(shared.HalfX96))

	// Each side empties exactly at its own edge.
	debtSide, err = XvsL(edgeLow, edgeLow, edgeHigh, shared.AssetTypeDebt)
	require.NoError(t, err)
	assert.Zero(t, debtSide.Sign())

	leverageSide, err = XvsL(edgeHigh, edgeLow, edgeHigh, shared.AssetTypeLeverage)
	require.NoError(t, err)
	assert.Zero(t, leverageSide.Sign())

	_, err = XvsL(shared.OneX96, edgeLow, edgeHigh, shared.AssetTypeBase)
	require.ErrorIs(t, err, shared.ErrInvalidDomain)
}

func TestTargetXvsL(t *testing.T) {
	target, err := TargetXvsL(edgeLow, edgeHigh)
	require.NoError(t, err)
	assert.Zero(t, target.Cmp(shared.HalfX96))

	// A wider band concentrates less and targets more per liquidity.
	widerLow := new(big.Int).Lsh(big.NewInt(1), 94)
	widerHigh := new(big.Int).Lsh(big.NewInt(1), 98)
	wider, err := TargetXvsL(widerLow, widerHigh)
	require.NoError(t, err)
	assert.True(t, wider.Cmp(target) > 0)
}

func TestDebtPriceDiscountX96(t *testing.T) {
	// At or above the unit price debt quotes at par.
	assert.Zero(t, DebtPriceDiscountX96(shared.OneX96).Cmp(shared.OneX96))
	assert.Zero(t, DebtPriceDiscountX96(edgeHigh).Cmp(shared.OneX96))

	// Below it the discount is the linear price, (7/8)^2 = 49/64.
	below := mustBigInt(t, "69324642199981295394350956544")
	expected := new(big.Int).Mul(big.NewInt(49), new(big.Int).Lsh(big.NewInt(1), 90))
	assert.Zero(t, DebtPriceDiscountX96(below).Cmp(expected))

	assert.Zero(t, DebtPriceDiscountX96(new(big.Int)).Sign())
}

func TestLTVX96(t *testing.T) {
	// An empty market reports the balanced midpoint.
	ltv, err := LTVX96(new(big.Int), shared.OneX96, edgeLow, edgeHigh)
	require.NoError(t, err)
	assert.Zero(t, ltv.Cmp(shared.HalfX96))

	// A balanced market sits at exactly one half.
	ltv, err = LTVX96(wad(10), shared.OneX96, edgeLow, edgeHigh)
	require.NoError(t, err)
	assert.Zero(t, ltv.Cmp(shared.HalfX96))

	// After the quarter-debt swap the debt share drops below half.
	ltv, err = LTVX96(wad(14), mustBigInt(t, "69324642199981295394350956544"), edgeLow, edgeHigh)
	require.NoError(t, err)
	assert.Zero(t, ltv.Cmp(mustBigInt(t, "24460179786132014216548672335")))
}
