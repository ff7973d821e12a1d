package math

import (
	"fmt"
	"math/big"

	"github.com/lexfi/lex-go/lex/shared"
)

// The market curve holds debt on the left of the current price and
// leverage on the right, inside the fixed band [edgeLow, edgeHigh]
// where edgeLow * edgeHigh = 1 in Q192 terms.

func validateEdges(edgeLow, edgeHigh *big.Int) error {
	if edgeLow.Sign() <= 0 {
		return fmt.Errorf("edge must be positive: %w", shared.ErrInvalidDomain)
	}
	if edgeLow.Cmp(edgeHigh) >= 0 {
		return fmt.Errorf("edges out of order: %w", shared.ErrInvalidDomain)
	}
	if edgeLow.Cmp(shared.OneX96) >= 0 || edgeHigh.Cmp(shared.OneX96) <= 0 {
		return fmt.Errorf("band must straddle the unit price: %w", shared.ErrInvalidDomain)
	}
	return nil
}

func validateCurveDomain(edgeLow, edgeHigh, sqrtPrice *big.Int) error {
	if err := validateEdges(edgeLow, edgeHigh); err != nil {
		return err
	}
	if sqrtPrice.Cmp(edgeLow) < 0 || sqrtPrice.Cmp(edgeHigh) > 0 {
		return fmt.Errorf("sqrt price outside band: %w", shared.ErrInvalidDomain)
	}
	return nil
}

// GetDebtFromLiquidityDelta returns the debt amount held between two
// sqrt prices: Δz = L * (upper - lower) / 2^96.
func GetDebtFromLiquidityDelta(lowerSqrtPrice, upperSqrtPrice, liquidity *big.Int, rounding shared.Rounding) (*big.Int, error) {
	if lowerSqrtPrice.Cmp(upperSqrtPrice) > 0 {
		return nil, fmt.Errorf("sqrt prices out of order: %w", shared.ErrInvalidDomain)
	}
	delta := new(big.Int).Sub(upperSqrtPrice, lowerSqrtPrice)
	return MulDiv(liquidity, delta, shared.OneX96, rounding)
}

// GetLeverageFromLiquidityDelta returns the leverage amount held between
// two sqrt prices: Δa = L * 2^192 * (upper - lower) / (lower * upper * 2^96).
func GetLeverageFromLiquidityDelta(lowerSqrtPrice, upperSqrtPrice, liquidity *big.Int, rounding shared.Rounding) (*big.Int, error) {
	if lowerSqrtPrice.Cmp(upperSqrtPrice) > 0 {
		return nil, fmt.Errorf("sqrt prices out of order: %w", shared.ErrInvalidDomain)
	}
	if lowerSqrtPrice.Sign() <= 0 {
		return nil, fmt.Errorf("sqrt price must be positive: %w", shared.ErrInvalidDomain)
	}
	delta := new(big.Int).Sub(upperSqrtPrice, lowerSqrtPrice)
	delta.Mul(delta, shared.OneX192)
	denominator := new(big.Int).Mul(lowerSqrtPrice, upperSqrtPrice)
	denominator.Mul(denominator, shared.OneX96)
	return MulDiv(liquidity, delta, denominator, rounding)
}

// ComputeLiquidity solves the curve invariant for the liquidity that
// carries the given synthetic balances:
//
//	(2^192 - edgeLow^2)*L^2 - edgeLow*2^96*(z+a)*L - 2^192*z*a = 0
//
// A zero balance on either side yields zero liquidity.
func ComputeLiquidity(edgeLow, edgeHigh, debtBalance, leverageBalance *big.Int) (*big.Int, error) {
	if err := validateEdges(edgeLow, edgeHigh); err != nil {
		return nil, err
	}
	if debtBalance.Sign() < 0 || leverageBalance.Sign() < 0 {
		return nil, fmt.Errorf("negative balance: %w", shared.ErrInvalidDomain)
	}
	if debtBalance.Sign() == 0 || leverageBalance.Sign() == 0 {
		return new(big.Int), nil
	}
	return solveLiquidity(edgeLow, debtBalance, leverageBalance)
}

func solveLiquidity(edgeLow, debtBalance, leverageBalance *big.Int) (*big.Int, error) {
	a := new(big.Int).Mul(edgeLow, edgeLow)
	a.Sub(shared.OneX192, a)

	b := new(big.Int).Add(debtBalance, leverageBalance)
	b.Mul(b, edgeLow)
	b.Mul(b, shared.OneX96)

	c := new(big.Int).Mul(debtBalance, leverageBalance)
	c.Mul(c, shared.OneX192)

	// L = (b + sqrt(b^2 + 4ac)) / 2a, taking the positive root.
	disc := new(big.Int).Mul(b, b)
	fourAC := new(big.Int).Mul(a, c)
	fourAC.Lsh(fourAC, 2)
	disc.Add(disc, fourAC)

	liquidity := Sqrt(disc)
	liquidity.Add(liquidity, b)
	liquidity.Div(liquidity, new(big.Int).Lsh(a, 1))
	return checkU256(liquidity)
}

// LiquidityFromBalances extends ComputeLiquidity to the band edges: a
// market emptied on one side keeps the liquidity implied by the other
// side pinned at its edge instead of collapsing to zero.
func LiquidityFromBalances(edgeLow, edgeHigh, debtBalance, leverageBalance *big.Int) (*big.Int, error) {
	if err := validateEdges(edgeLow, edgeHigh); err != nil {
		return nil, err
	}
	if debtBalance.Sign() < 0 || leverageBalance.Sign() < 0 {
		return nil, fmt.Errorf("negative balance: %w", shared.ErrInvalidDomain)
	}
	span := new(big.Int).Sub(edgeHigh, edgeLow)
	switch {
	case debtBalance.Sign() == 0 && leverageBalance.Sign() == 0:
		return new(big.Int), nil
	case debtBalance.Sign() == 0:
		return MulDiv(leverageBalance, shared.OneX96, span, shared.RoundingDown)
	case leverageBalance.Sign() == 0:
		return MulDiv(debtBalance, shared.OneX96, span, shared.RoundingDown)
	default:
		return solveLiquidity(edgeLow, debtBalance, leverageBalance)
	}
}

// NextSqrtPriceFromBalances locates the sqrt price implied by the
// synthetic balances at the given liquidity, clamped to the band. An
// empty market rests at the unit price.
func NextSqrtPriceFromBalances(liquidity, debtBalance, leverageBalance, edgeLow, edgeHigh *big.Int) *big.Int {
	if liquidity.Sign() == 0 {
		return new(big.Int).Set(shared.OneX96)
	}
	if debtBalance.Sign() == 0 {
		return new(big.Int).Set(edgeLow)
	}
	if leverageBalance.Sign() == 0 {
		return new(big.Int).Set(edgeHigh)
	}
	// sqrtPrice = edgeLow + z * 2^96 / L
	offset := new(big.Int).Mul(debtBalance, shared.OneX96)
	offset.Div(offset, liquidity)
	offset.Add(offset, edgeLow)
	return clampBig(offset, edgeLow, edgeHigh)
}

// ComputeMint converts a liquidity delta into the synthetic pair it
// backs at the current price. Both legs round down.
func ComputeMint(sqrtPrice, edgeLow, edgeHigh, liquidityDelta *big.Int) (shared.MintAmounts, error) {
	if err := validateCurveDomain(edgeLow, edgeHigh, sqrtPrice); err != nil {
		return shared.MintAmounts{}, err
	}
	if liquidityDelta.Sign() < 0 {
		return shared.MintAmounts{}, fmt.Errorf("negative liquidity delta: %w", shared.ErrInvalidDomain)
	}
	debtAmount, err := GetDebtFromLiquidityDelta(edgeLow, sqrtPrice, liquidityDelta, shared.RoundingDown)
	if err != nil {
		return shared.MintAmounts{}, err
	}
	leverageAmount, err := GetLeverageFromLiquidityDelta(sqrtPrice, edgeHigh, liquidityDelta, shared.RoundingDown)
	if err != nil {
		return shared.MintAmounts{}, err
	}
	return shared.MintAmounts{DebtAmount: debtAmount, LeverageAmount: leverageAmount}, nil
}

// ComputeRedeem removes synthetic balances from the curve and reports
// the liquidity released plus the price the remainder settles at.
func ComputeRedeem(liquidity, sqrtPrice, edgeLow, edgeHigh, debtIn, leverageIn *big.Int) (shared.RedeemComputation, error) {
	if err := validateCurveDomain(edgeLow, edgeHigh, sqrtPrice); err != nil {
		return shared.RedeemComputation{}, err
	}
	if debtIn.Sign() < 0 || leverageIn.Sign() < 0 {
		return shared.RedeemComputation{}, fmt.Errorf("negative redeem amount: %w", shared.ErrInvalidDomain)
	}
	if liquidity.Sign() == 0 {
		return shared.RedeemComputation{}, fmt.Errorf("redeem from empty curve: %w", shared.ErrZeroLiquidity)
	}
	debtSupply, err := GetDebtFromLiquidityDelta(edgeLow, sqrtPrice, liquidity, shared.RoundingDown)
	if err != nil {
		return shared.RedeemComputation{}, err
	}
	leverageSupply, err := GetLeverageFromLiquidityDelta(sqrtPrice, edgeHigh, liquidity, shared.RoundingDown)
	if err != nil {
		return shared.RedeemComputation{}, err
	}
	if debtIn.Cmp(debtSupply) > 0 || leverageIn.Cmp(leverageSupply) > 0 {
		return shared.RedeemComputation{}, fmt.Errorf("redeem exceeds outstanding supply: %w", shared.ErrInsufficientTokens)
	}

	debtLeft := new(big.Int).Sub(debtSupply, debtIn)
	leverageLeft := new(big.Int).Sub(leverageSupply, leverageIn)
	nextLiquidity, err := LiquidityFromBalances(edgeLow, edgeHigh, debtLeft, leverageLeft)
	if err != nil {
		return shared.RedeemComputation{}, err
	}
	if nextLiquidity.Cmp(liquidity) > 0 {
		nextLiquidity.Set(liquidity)
	}
	return shared.RedeemComputation{
		LiquidityOut:  new(big.Int).Sub(liquidity, nextLiquidity),
		NextSqrtPrice: NextSqrtPriceFromBalances(nextLiquidity, debtLeft, leverageLeft, edgeLow, edgeHigh),
	}, nil
}

// ComputeSwap trades one synthetic for the other along the curve at
// constant liquidity. assetIn names the synthetic paid in; for exact-out
// requests amount is the output wanted instead of the input paid.
func ComputeSwap(liquidity, sqrtPrice, edgeLow, edgeHigh *big.Int, assetIn shared.AssetType, amount *big.Int, exactIn bool) (shared.SwapComputation, error) {
	if err := validateCurveDomain(edgeLow, edgeHigh, sqrtPrice); err != nil {
		return shared.SwapComputation{}, err
	}
	if amount.Sign() < 0 {
		return shared.SwapComputation{}, fmt.Errorf("negative swap amount: %w", shared.ErrInvalidDomain)
	}
	if amount.Sign() == 0 {
		return shared.SwapComputation{
			AmountIn:      new(big.Int),
			AmountOut:     new(big.Int),
			NextSqrtPrice: new(big.Int).Set(sqrtPrice),
		}, nil
	}
	if liquidity.Sign() == 0 {
		return shared.SwapComputation{}, fmt.Errorf("swap on empty curve: %w", shared.ErrZeroLiquidity)
	}
	switch assetIn {
	case shared.AssetTypeDebt:
		if exactIn {
			return swapDebtInExactIn(liquidity, sqrtPrice, edgeLow, amount)
		}
		return swapDebtInExactOut(liquidity, sqrtPrice, edgeLow, amount)
	case shared.AssetTypeLeverage:
		if exactIn {
			return swapLeverageInExactIn(liquidity, sqrtPrice, edgeHigh, amount)
		}
		return swapLeverageInExactOut(liquidity, sqrtPrice, edgeHigh, amount)
	default:
		return shared.SwapComputation{}, fmt.Errorf("asset %s cannot trade on the curve: %w", assetIn, shared.ErrInvalidDomain)
	}
}

// getNextSqrtPriceFromDebtIn moves the price down for an exact debt
// input: sqrtPrice' = sqrtPrice - floor(amount * 2^96 / L).
func getNextSqrtPriceFromDebtIn(sqrtPrice, liquidity, amount *big.Int) *big.Int {
	shift := new(big.Int).Mul(amount, shared.OneX96)
	shift.Div(shift, liquidity)
	return new(big.Int).Sub(sqrtPrice, shift)
}

// getNextSqrtPriceFromLeverageIn moves the price up for an exact
// leverage input: sqrtPrice' = floor(2^192*L*p / (2^192*L - amount*p*2^96)).
func getNextSqrtPriceFromLeverageIn(sqrtPrice, liquidity, amount *big.Int) (*big.Int, error) {
	numerator := new(big.Int).Mul(shared.OneX192, liquidity)
	denominator := new(big.Int).Mul(amount, sqrtPrice)
	denominator.Mul(denominator, shared.OneX96)
	denominator.Sub(numerator, denominator)
	if denominator.Sign() <= 0 {
		return nil, fmt.Errorf("leverage input exhausts the curve: %w", shared.ErrInvalidDomain)
	}
	numerator.Mul(numerator, sqrtPrice)
	return numerator.Div(numerator, denominator), nil
}

// getNextSqrtPriceFromDebtOut moves the price up far enough to release
// an exact debt output: sqrtPrice' = sqrtPrice + ceil(amount * 2^96 / L).
func getNextSqrtPriceFromDebtOut(sqrtPrice, liquidity, amount *big.Int) *big.Int {
	shift := new(big.Int).Mul(amount, shared.OneX96)
	shift.Add(shift, new(big.Int).Sub(liquidity, one))
	shift.Div(shift, liquidity)
	return shift.Add(shift, sqrtPrice)
}

// getNextSqrtPriceFromLeverageOut moves the price down far enough to
// release an exact leverage output:
// sqrtPrice' = floor(2^192*L*p / (2^192*L + amount*p*2^96)).
func getNextSqrtPriceFromLeverageOut(sqrtPrice, liquidity, amount *big.Int) *big.Int {
	numerator := new(big.Int).Mul(shared.OneX192, liquidity)
	denominator := new(big.Int).Mul(amount, sqrtPrice)
	denominator.Mul(denominator, shared.OneX96)
	denominator.Add(denominator, numerator)
	numerator.Mul(numerator, sqrtPrice)
	return numerator.Div(numerator, denominator)
}

func swapDebtInExactIn(liquidity, sqrtPrice, edgeLow, amount *big.Int) (shared.SwapComputation, error) {
	next := getNextSqrtPriceFromDebtIn(sqrtPrice, liquidity, amount)
	if next.Cmp(edgeLow) < 0 {
		return shared.SwapComputation{}, fmt.Errorf("swap crosses the low edge: %w", shared.ErrInvalidDomain)
	}
	out, err := GetLeverageFromLiquidityDelta(next, sqrtPrice, liquidity, shared.RoundingDown)
	if err != nil {
		return shared.SwapComputation{}, err
	}
	return shared.SwapComputation{
		AmountIn:      new(big.Int).Set(amount),
		AmountOut:     out,
		NextSqrtPrice: next,
	}, nil
}

func swapDebtInExactOut(liquidity, sqrtPrice, edgeLow, amount *big.Int) (shared.SwapComputation, error) {
	next := getNextSqrtPriceFromLeverageOut(sqrtPrice, liquidity, amount)
	if next.Cmp(edgeLow) < 0 {
		return shared.SwapComputation{}, fmt.Errorf("swap crosses the low edge: %w", shared.ErrInvalidDomain)
	}
	in, err := GetDebtFromLiquidityDelta(next, sqrtPrice, liquidity, shared.RoundingUp)
	if err != nil {
		return shared.SwapComputation{}, err
	}
	return shared.SwapComputation{
		AmountIn:      in,
		AmountOut:     new(big.Int).Set(amount),
		NextSqrtPrice: next,
	}, nil
}

func swapLeverageInExactIn(liquidity, sqrtPrice, edgeHigh, amount *big.Int) (shared.SwapComputation, error) {
	next, err := getNextSqrtPriceFromLeverageIn(sqrtPrice, liquidity, amount)
	if err != nil {
		return shared.SwapComputation{}, err
	}
	if next.Cmp(edgeHigh) > 0 {
		return shared.SwapComputation{}, fmt.Errorf("swap crosses the high edge: %w", shared.ErrInvalidDomain)
	}
	out, err := GetDebtFromLiquidityDelta(sqrtPrice, next, liquidity, shared.RoundingDown)
	if err != nil {
		return shared.SwapComputation{}, err
	}
	return shared.SwapComputation{
		AmountIn:      new(big.Int).Set(amount),
		AmountOut:     out,
		NextSqrtPrice: next,
	}, nil
}

func swapLeverageInExactOut(liquidity, sqrtPrice, edgeHigh, amount *big.Int) (shared.SwapComputation, error) {
	next := getNextSqrtPriceFromDebtOut(sqrtPrice, liquidity, amount)
	if next.Cmp(edgeHigh) > 0 {
		return shared.SwapComputation{}, fmt.Errorf("swap crosses the high edge: %w", shared.ErrInvalidDomain)
	}
	in, err := GetLeverageFromLiquidityDelta(sqrtPrice, next, liquidity, shared.RoundingUp)
	if err != nil {
		return shared.SwapComputation{}, err
	}
	return shared.SwapComputation{
		AmountIn:      in,
		AmountOut:     new(big.Int).Set(amount),
		NextSqrtPrice: next,
	}, nil
}

// XvsL is the per-liquidity balance of one synthetic at the given
// price, in X96 terms. It decays to zero as the price reaches the edge
// that empties the asset.
func XvsL(sqrtPrice, edgeLow, edgeHigh *big.Int, asset shared.AssetType) (*big.Int, error) {
	if err := validateCurveDomain(edgeLow, edgeHigh, sqrtPrice); err != nil {
		return nil, err
	}
	switch asset {
	case shared.AssetTypeDebt:
		return new(big.Int).Sub(sqrtPrice, edgeLow), nil
	case shared.AssetTypeLeverage:
		delta := new(big.Int).Sub(edgeHigh, sqrtPrice)
		denominator := new(big.Int).Mul(sqrtPrice, edgeHigh)
		return MulDiv(shared.OneX192, delta, denominator, shared.RoundingDown)
	default:
		return nil, fmt.Errorf("asset %s has no curve balance: %w", asset, shared.ErrInvalidDomain)
	}
}

// TargetXvsL is the shared per-liquidity balance both synthetics hold
// at the unit price. Wider bands concentrate less and target more.
func TargetXvsL(edgeLow, edgeHigh *big.Int) (*big.Int, error) {
	if err := validateEdges(edgeLow, edgeHigh); err != nil {
		return nil, err
	}
	return new(big.Int).Sub(shared.OneX96, edgeLow), nil
}

// DebtPriceDiscountX96 is min(1, price) in X96: debt quotes at par
// above the unit price and at the market price below it.
func DebtPriceDiscountX96(sqrtPrice *big.Int) *big.Int {
	if sqrtPrice.Sign() <= 0 {
		return new(big.Int)
	}
	price := new(big.Int).Mul(sqrtPrice, sqrtPrice)
	price.Div(price, shared.OneX96)
	return minBig(price, new(big.Int).Set(shared.OneX96))
}

// LTVX96 is the debt share of curve value: z*p / (z*p + a), with the
// leverage balance quoted at the current price. Empty markets sit at
// one half.
func LTVX96(liquidity, sqrtPrice, edgeLow, edgeHigh *big.Int) (*big.Int, error) {
	if err := validateCurveDomain(edgeLow, edgeHigh, sqrtPrice); err != nil {
		return nil, err
	}
	if liquidity.Sign() == 0 {
		return new(big.Int).Set(shared.HalfX96), nil
	}
	debtBalance, err := GetDebtFromLiquidityDelta(edgeLow, sqrtPrice, liquidity, shared.RoundingDown)
	if err != nil {
		return nil, err
	}
	leverageBalance, err := GetLeverageFromLiquidityDelta(sqrtPrice, edgeHigh, liquidity, shared.RoundingDown)
	if err != nil {
		return nil, err
	}
	priceSq := new(big.Int).Mul(sqrtPrice, sqrtPrice)
	numerator := new(big.Int).Mul(debtBalance, priceSq)
	denominator := new(big.Int).Mul(leverageBalance, shared.OneX192)
	denominator.Add(denominator, numerator)
	if denominator.Sign() == 0 {
		return new(big.Int).Set(shared.HalfX96), nil
	}
	return MulDiv(numerator, shared.OneX96, denominator, shared.RoundingDown)
}
