package lex

import (
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/lexfi/lex-go/lex/math"
	"github.com/lexfi/lex-go/lex/shared"
)

// pending is the post-accrual working copy of one market. Operations
// validate and compute against it and commit only once every check has
// passed, so a failed operation leaves the market untouched.
type pending struct {
	sqrtPrice      *big.Int
	liquidity      *big.Int
	notionalPrice  *big.Int
	baseSupply     *big.Int
	leverageSupply *big.Int
	debtSupply     *big.Int
	feeAccrued     *big.Int
	swapFee        *big.Int
	feeClamped     bool
	timestamp      uint64
}

// beginLocked accrues debt interest and protocol fees up to now on a
// working copy. The market itself is not modified.
func (m *marketState) beginLocked(now uint64) (*pending, error) {
	p := &pending{
		sqrtPrice:      new(big.Int).Set(m.sqrtPrice),
		liquidity:      new(big.Int).Set(m.liquidity),
		notionalPrice:  new(big.Int).Set(m.notionalPrice),
		baseSupply:     m.baseSupply.ToBig(),
		leverageSupply: m.leverageSupply.ToBig(),
		debtSupply:     m.debtSupply.ToBig(),
		feeAccrued:     new(big.Int),
		swapFee:        new(big.Int),
		timestamp:      m.lastUpdate,
	}
	if now <= m.lastUpdate {
		return p, nil
	}
	elapsed := now - m.lastUpdate
	p.timestamp = now

	discount := math.DebtPriceDiscountX96(p.sqrtPrice)
	weight := math.WorkoutWeightX96(p.sqrtPrice, m.cfg.LimHighSqrtPriceX96, m.cfg.LimMaxSqrtPriceX96)
	nextNotional := math.AccrueInterest(p.notionalPrice, m.cfg.DebtDuration, discount, elapsed, m.lnRateBias, weight)

	fee := math.CalculateLinearAccrual(p.baseSupply, m.tvlRateX96, elapsed)
	yieldFee, err := m.yieldFeeLocked(p, nextNotional)
	if err != nil {
		return nil, err
	}
	fee.Add(fee, yieldFee)
	if fee.Cmp(p.baseSupply) > 0 {
		fee.Set(p.baseSupply)
		p.feeClamped = true
	}

	p.notionalPrice = nextNotional
	p.baseSupply.Sub(p.baseSupply, fee)
	p.feeAccrued = fee
	return p, nil
}

// yieldFeeLocked charges the protocol's share of debt notional
// appreciation, weighted by the leverage the market is running.
func (m *marketState) yieldFeeLocked(p *pending, nextNotional *big.Int) (*big.Int, error) {
	if m.yieldFeeBps == 0 || nextNotional.Cmp(p.notionalPrice) <= 0 {
		return new(big.Int), nil
	}
	capped := m.cfg.LimHighSqrtPriceX96
	if p.sqrtPrice.Cmp(capped) < 0 {
		capped = p.sqrtPrice
	}
	ltv, err := math.LTVX96(p.liquidity, capped, m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96)
	if err != nil {
		return nil, err
	}
	ltvBps := new(big.Int).Mul(ltv, basisPointMaxBig)
	ltvBps.Div(ltvBps, shared.OneX96)

	delta := new(big.Int).Sub(nextNotional, p.notionalPrice)
	appreciation, err := math.MulDiv(p.baseSupply, delta, nextNotional, RoundingDown)
	if err != nil {
		return nil, err
	}
	fee := appreciation.Mul(appreciation, ltvBps)
	fee.Div(fee, basisPointMaxBig)
	fee.Mul(fee, big.NewInt(int64(m.yieldFeeBps)))
	fee.Div(fee, basisPointMaxBig)
	return fee, nil
}

// commitLocked installs the working copy. Supply conversions happen
// before any field is assigned so a failure cannot half-apply.
func (m *marketState) commitLocked(p *pending) error {
	base, overflow := uint256.FromBig(p.baseSupply)
	if overflow {
		return fmt.Errorf("base supply exceeds 256 bits: %w", ErrArithmeticOverflow)
	}
	leverage, overflow := uint256.FromBig(p.leverageSupply)
	if overflow {
		return fmt.Errorf("leverage supply exceeds 256 bits: %w", ErrArithmeticOverflow)
	}
	debt, overflow := uint256.FromBig(p.debtSupply)
	if overflow {
		return fmt.Errorf("debt supply exceeds 256 bits: %w", ErrArithmeticOverflow)
	}
	collected := new(big.Int).Add(p.feeAccrued, p.swapFee)
	feeDelta, overflow := uint256.FromBig(collected)
	if overflow {
		return fmt.Errorf("fee growth exceeds 256 bits: %w", ErrArithmeticOverflow)
	}

	m.sqrtPrice = p.sqrtPrice
	m.liquidity = p.liquidity
	m.notionalPrice = p.notionalPrice
	m.lastUpdate = p.timestamp
	m.baseSupply.Set(base)
	m.leverageSupply.Set(leverage)
	m.debtSupply.Set(debt)
	m.feeGrowth.Add(&m.feeGrowth, feeDelta)
	return nil
}

// UpdateState accrues interest and protocol fees to the present and
// returns the fee amount moved out of the base supply.
func (e *Engine) UpdateState(id MarketID) (*big.Int, error) {
	start := time.Now()
	m, err := e.market(id)
	if err != nil {
		e.metrics.observe("update_state", start, err)
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, err := m.beginLocked(e.now())
	if err == nil {
		err = m.commitLocked(p)
	}
	e.metrics.observe("update_state", start, err)
	if err != nil {
		return nil, err
	}
	e.metrics.feeCollected(id.String(), p.feeAccrued)
	if p.feeClamped {
		e.log.Warn("accrued fees drained the base supply",
			zap.String("market", id.String()),
			zap.String("fee", p.feeAccrued.String()),
		)
	}
	return p.feeAccrued, nil
}

// Mint deposits base and issues the synthetic pair at the current
// price. The first mint of a market bootstraps its curve around the
// oracle price.
func (e *Engine) Mint(params MintParams) (MintResult, error) {
	return e.mint(params, true)
}

func (e *Engine) mint(params MintParams, commit bool) (MintResult, error) {
	start := time.Now()
	res, err := e.mintInner(params, commit)
	e.metrics.observe("mint", start, err)
	return res, err
}

func (e *Engine) mintInner(params MintParams, commit bool) (MintResult, error) {
	baseIn, err := requireAmount(params.BaseAmountIn)
	if err != nil {
		return MintResult{}, err
	}
	m, err := e.market(params.MarketID)
	if err != nil {
		return MintResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.beginLocked(e.now())
	if err != nil {
		return MintResult{}, err
	}
	res, err := e.mintOnPending(m, p, baseIn)
	if err != nil {
		return MintResult{}, err
	}
	if commit {
		if err := m.commitLocked(p); err != nil {
			return MintResult{}, err
		}
		e.metrics.feeCollected(m.id.String(), p.feeAccrued)
		e.log.Debug("mint",
			zap.String("market", m.id.String()),
			zap.String("base_in", baseIn.String()),
			zap.String("leverage_out", res.LeverageAmountOut.String()),
			zap.String("debt_out", res.DebtAmountOut.String()),
		)
	}
	return res, nil
}

func (e *Engine) mintOnPending(m *marketState, p *pending, baseIn *big.Int) (MintResult, error) {
	if err := checkMintCap(baseIn, p.baseSupply, m.cfg.NoCapLimit); err != nil {
		return MintResult{}, err
	}
	if p.liquidity.Sign() == 0 {
		return e.bootstrapOnPending(m, p, baseIn)
	}

	liquidityDelta, err := math.MulDiv(p.liquidity, baseIn, p.baseSupply, RoundingDown)
	if err != nil {
		return MintResult{}, err
	}
	amounts, err := math.ComputeMint(p.sqrtPrice, m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96, liquidityDelta)
	if err != nil {
		return MintResult{}, err
	}

	p.liquidity.Add(p.liquidity, liquidityDelta)
	p.baseSupply.Add(p.baseSupply, baseIn)
	p.leverageSupply.Add(p.leverageSupply, amounts.LeverageAmount)
	p.debtSupply.Add(p.debtSupply, amounts.DebtAmount)
	return MintResult{
		LeverageAmountOut: amounts.LeverageAmount,
		DebtAmountOut:     amounts.DebtAmount,
		LiquidityDelta:    liquidityDelta,
		FeeAccrued:        p.feeAccrued,
	}, nil
}

// bootstrapOnPending seeds an empty curve at the unit price. Half the
// deposited value becomes debt notional, so the market starts balanced
// with both synthetics at equal amounts.
func (e *Engine) bootstrapOnPending(m *marketState, p *pending, baseIn *big.Int) (MintResult, error) {
	priceX96, err := e.oraclePriceX96(m.id)
	if err != nil {
		return MintResult{}, err
	}
	value, err := math.MulDiv(baseIn, priceX96, shared.OneX96, RoundingDown)
	if err != nil {
		return MintResult{}, err
	}
	halfNotional := new(big.Int).Lsh(p.notionalPrice, 1)
	debtTarget, err := math.MulDiv(value, shared.OneX96, halfNotional, RoundingDown)
	if err != nil {
		return MintResult{}, err
	}
	if debtTarget.Sign() == 0 {
		return MintResult{}, fmt.Errorf("deposit too small to bootstrap: %w", ErrZeroAmount)
	}
	span := new(big.Int).Sub(shared.OneX96, m.cfg.EdgeSqrtPriceAX96)
	liquidity, err := math.MulDiv(debtTarget, shared.OneX96, span, RoundingDown)
	if err != nil {
		return MintResult{}, err
	}
	amounts, err := math.ComputeMint(shared.OneX96, m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96, liquidity)
	if err != nil {
		return MintResult{}, err
	}

	p.sqrtPrice = new(big.Int).Set(shared.OneX96)
	p.liquidity = liquidity
	p.baseSupply.Add(p.baseSupply, baseIn)
	p.leverageSupply.Add(p.leverageSupply, amounts.LeverageAmount)
	p.debtSupply.Add(p.debtSupply, amounts.DebtAmount)
	return MintResult{
		LeverageAmountOut: amounts.LeverageAmount,
		DebtAmountOut:     amounts.DebtAmount,
		LiquidityDelta:    liquidity,
		FeeAccrued:        p.feeAccrued,
	}, nil
}

// Redeem burns synthetics and releases the pro-rata share of the base
// supply. Burning both synthetics at the current ratio leaves the
// price unchanged; one-sided burns move it.
func (e *Engine) Redeem(params RedeemParams) (RedeemResult, error) {
	return e.redeem(params, true)
}

func (e *Engine) redeem(params RedeemParams, commit bool) (RedeemResult, error) {
	start := time.Now()
	res, err := e.redeemInner(params, commit)
	e.metrics.observe("redeem", start, err)
	return res, err
}

func (e *Engine) redeemInner(params RedeemParams, commit bool) (RedeemResult, error) {
	leverageIn, debtIn, err := requirePair(params.LeverageAmountIn, params.DebtAmountIn)
	if err != nil {
		return RedeemResult{}, err
	}
	m, err := e.market(params.MarketID)
	if err != nil {
		return RedeemResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.beginLocked(e.now())
	if err != nil {
		return RedeemResult{}, err
	}
	if leverageIn.Sign() > 0 {
		if err := e.rejectUnderCollateralized(m, p, "leverage redemption"); err != nil {
			return RedeemResult{}, err
		}
	}
	baseOut, liquidityOut, err := releaseOnPending(m, p, debtIn, leverageIn)
	if err != nil {
		return RedeemResult{}, err
	}
	res := RedeemResult{
		BaseAmountOut: baseOut,
		LiquidityOut:  liquidityOut,
		FeeAccrued:    p.feeAccrued,
	}
	if commit {
		if err := m.commitLocked(p); err != nil {
			return RedeemResult{}, err
		}
		e.metrics.feeCollected(m.id.String(), p.feeAccrued)
		e.log.Debug("redeem",
			zap.String("market", m.id.String()),
			zap.String("leverage_in", leverageIn.String()),
			zap.String("debt_in", debtIn.String()),
			zap.String("base_out", baseOut.String()),
		)
	}
	return res, nil
}

// releaseOnPending burns synthetics from the working copy and frees
// the matching share of liquidity and base. Shared by redeem and the
// synthetic-to-base swap legs, which keeps the two paths consistent.
func releaseOnPending(m *marketState, p *pending, debtIn, leverageIn *big.Int) (baseOut, liquidityOut *big.Int, err error) {
	if p.liquidity.Sign() == 0 {
		return nil, nil, fmt.Errorf("market has no liquidity: %w", ErrZeroLiquidity)
	}
	if debtIn.Cmp(p.debtSupply) > 0 || leverageIn.Cmp(p.leverageSupply) > 0 {
		return nil, nil, fmt.Errorf("burn exceeds outstanding supply: %w", ErrInsufficientTokens)
	}
	debtLeft := new(big.Int).Sub(p.debtSupply, debtIn)
	leverageLeft := new(big.Int).Sub(p.leverageSupply, leverageIn)

	nextLiquidity, err := math.LiquidityFromBalances(m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96, debtLeft, leverageLeft)
	if err != nil {
		return nil, nil, err
	}
	if nextLiquidity.Cmp(p.liquidity) > 0 {
		nextLiquidity.Set(p.liquidity)
	}
	liquidityOut = new(big.Int).Sub(p.liquidity, nextLiquidity)
	if err := checkRedeemCap(liquidityOut, p.liquidity, p.baseSupply, m.cfg.NoCapLimit); err != nil {
		return nil, nil, err
	}
	baseOut, err = math.MulDiv(p.baseSupply, liquidityOut, p.liquidity, RoundingDown)
	if err != nil {
		return nil, nil, err
	}

	p.sqrtPrice = math.NextSqrtPriceFromBalances(nextLiquidity, debtLeft, leverageLeft, m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96)
	p.liquidity = nextLiquidity
	p.debtSupply = debtLeft
	p.leverageSupply = leverageLeft
	p.baseSupply.Sub(p.baseSupply, baseOut)
	return baseOut, liquidityOut, nil
}

// Swap trades between any two distinct assets of a market. Legs that
// touch the base asset carry the market's swap fee; purely synthetic
// swaps ride the curve without one.
func (e *Engine) Swap(params SwapParams) (SwapResult, error) {
	res, _, err := e.swap(params, true)
	return res, err
}

func (e *Engine) swap(params SwapParams, commit bool) (SwapResult, *big.Int, error) {
	start := time.Now()
	res, prior, err := e.swapInner(params, commit)
	e.metrics.observe("swap", start, err)
	return res, prior, err
}

func (e *Engine) swapInner(params SwapParams, commit bool) (SwapResult, *big.Int, error) {
	if params.AssetIn == params.AssetOut {
		return SwapResult{}, nil, fmt.Errorf("%s to %s: %w", params.AssetIn, params.AssetOut, ErrEqualSwapAssets)
	}
	if params.AssetIn > AssetTypeDebt || params.AssetOut > AssetTypeDebt {
		return SwapResult{}, nil, fmt.Errorf("unknown swap asset: %w", ErrInvalidDomain)
	}
	amount, err := requireAmount(params.Amount)
	if err != nil {
		return SwapResult{}, nil, err
	}
	m, err := e.market(params.MarketID)
	if err != nil {
		return SwapResult{}, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.beginLocked(e.now())
	if err != nil {
		return SwapResult{}, nil, err
	}
	prior := new(big.Int).Set(p.sqrtPrice)
	exactIn := params.SwapMode == SwapModeExactIn

	var res SwapResult
	switch {
	case params.AssetIn == AssetTypeBase:
		res, err = e.swapFromBaseOnPending(m, p, params.AssetOut, amount, exactIn)
	case params.AssetOut == AssetTypeBase:
		res, err = e.swapToBaseOnPending(m, p, params.AssetIn, amount, exactIn)
	default:
		res, err = e.swapSynthOnPending(m, p, params.AssetIn, amount, exactIn)
	}
	if err != nil {
		return SwapResult{}, nil, err
	}
	if commit {
		if err := m.commitLocked(p); err != nil {
			return SwapResult{}, nil, err
		}
		e.metrics.feeCollected(m.id.String(), new(big.Int).Add(p.feeAccrued, p.swapFee))
		e.log.Debug("swap",
			zap.String("market", m.id.String()),
			zap.String("asset_in", params.AssetIn.String()),
			zap.String("asset_out", params.AssetOut.String()),
			zap.String("amount_in", res.AmountIn.String()),
			zap.String("amount_out", res.AmountOut.String()),
		)
	}
	return res, prior, nil
}

// swapSynthOnPending trades debt against leverage on the curve at
// constant liquidity.
func (e *Engine) swapSynthOnPending(m *marketState, p *pending, assetIn AssetType, amount *big.Int, exactIn bool) (SwapResult, error) {
	if assetIn == AssetTypeDebt {
		if err := e.rejectUnderCollateralized(m, p, "leverage minting"); err != nil {
			return SwapResult{}, err
		}
	}
	comp, err := math.ComputeSwap(p.liquidity, p.sqrtPrice, m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96, assetIn, amount, exactIn)
	if err != nil {
		return SwapResult{}, err
	}

	inSupply, outSupply := p.debtSupply, p.leverageSupply
	if assetIn == AssetTypeLeverage {
		inSupply, outSupply = p.leverageSupply, p.debtSupply
	}
	if comp.AmountIn.Cmp(inSupply) > 0 {
		return SwapResult{}, fmt.Errorf("swap input exceeds outstanding supply: %w", ErrInsufficientTokens)
	}
	inSupply.Sub(inSupply, comp.AmountIn)
	outSupply.Add(outSupply, comp.AmountOut)
	p.sqrtPrice = comp.NextSqrtPrice
	return SwapResult{
		AmountIn:      comp.AmountIn,
		AmountOut:     comp.AmountOut,
		SwapFee:       new(big.Int),
		FeeAccrued:    p.feeAccrued,
		NextSqrtPrice: comp.NextSqrtPrice,
	}, nil
}

// swapToBaseOnPending burns a synthetic for base through the redeem
// path, charging the swap fee on the base leg.
func (e *Engine) swapToBaseOnPending(m *marketState, p *pending, assetIn AssetType, amount *big.Int, exactIn bool) (SwapResult, error) {
	if assetIn == AssetTypeLeverage {
		if err := e.rejectUnderCollateralized(m, p, "leverage redemption"); err != nil {
			return SwapResult{}, err
		}
	}
	if exactIn {
		debtIn, leverageIn := new(big.Int), new(big.Int)
		if assetIn == AssetTypeDebt {
			debtIn = amount
		} else {
			leverageIn = amount
		}
		gross, _, err := releaseOnPending(m, p, debtIn, leverageIn)
		if err != nil {
			return SwapResult{}, err
		}
		fee := feeOnAmount(gross, m.cfg.SwapFeeBps)
		p.swapFee.Add(p.swapFee, fee)
		return SwapResult{
			AmountIn:      new(big.Int).Set(amount),
			AmountOut:     new(big.Int).Sub(gross, fee),
			SwapFee:       fee,
			FeeAccrued:    p.feeAccrued,
			NextSqrtPrice: new(big.Int).Set(p.sqrtPrice),
		}, nil
	}

	// Exact-out: gross up the requested base for the fee, size the
	// liquidity release, then solve the invariant for the synthetic
	// input that leaves the other side untouched.
	gross, err := grossFromNet(amount, m.cfg.SwapFeeBps)
	if err != nil {
		return SwapResult{}, err
	}
	if p.liquidity.Sign() == 0 {
		return SwapResult{}, fmt.Errorf("market has no liquidity: %w", ErrZeroLiquidity)
	}
	if gross.Cmp(p.baseSupply) > 0 {
		return SwapResult{}, fmt.Errorf("base request exceeds supply: %w", ErrInsufficientTokens)
	}
	liquidityOut, err := math.MulDiv(gross, p.liquidity, p.baseSupply, RoundingUp)
	if err != nil {
		return SwapResult{}, err
	}
	if liquidityOut.Cmp(p.liquidity) >= 0 {
		return SwapResult{}, fmt.Errorf("base request drains the market: %w", ErrInsufficientTokens)
	}
	if err := checkRedeemCap(liquidityOut, p.liquidity, p.baseSupply, m.cfg.NoCapLimit); err != nil {
		return SwapResult{}, err
	}
	nextLiquidity := new(big.Int).Sub(p.liquidity, liquidityOut)

	fixed := p.leverageSupply
	reduced := p.debtSupply
	if assetIn == AssetTypeLeverage {
		fixed, reduced = p.debtSupply, p.leverageSupply
	}
	remaining, err := solveRemainingBalance(m.cfg.EdgeSqrtPriceAX96, nextLiquidity, fixed)
	if err != nil {
		return SwapResult{}, err
	}
	if remaining.Cmp(reduced) > 0 {
		return SwapResult{}, fmt.Errorf("base request exceeds what the synthetic can release: %w", ErrInsufficientTokens)
	}
	amountIn := new(big.Int).Sub(reduced, remaining)

	var debtLeft, leverageLeft *big.Int
	if assetIn == AssetTypeDebt {
		debtLeft, leverageLeft = remaining, fixed
	} else {
		debtLeft, leverageLeft = fixed, remaining
	}
	p.sqrtPrice = math.NextSqrtPriceFromBalances(nextLiquidity, debtLeft, leverageLeft, m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96)
	p.liquidity = nextLiquidity
	p.debtSupply = debtLeft
	p.leverageSupply = leverageLeft
	p.baseSupply.Sub(p.baseSupply, gross)
	fee := new(big.Int).Sub(gross, amount)
	p.swapFee.Add(p.swapFee, fee)
	return SwapResult{
		AmountIn:      amountIn,
		AmountOut:     new(big.Int).Set(amount),
		SwapFee:       fee,
		FeeAccrued:    p.feeAccrued,
		NextSqrtPrice: new(big.Int).Set(p.sqrtPrice),
	}, nil
}

// swapFromBaseOnPending deposits base single-sided: liquidity grows
// while the opposite synthetic balance stays fixed, so only the
// requested synthetic is minted.
func (e *Engine) swapFromBaseOnPending(m *marketState, p *pending, assetOut AssetType, amount *big.Int, exactIn bool) (SwapResult, error) {
	if assetOut == AssetTypeLeverage {
		if err := e.rejectUnderCollateralized(m, p, "leverage minting"); err != nil {
			return SwapResult{}, err
		}
	}
	if p.liquidity.Sign() == 0 {
		return SwapResult{}, fmt.Errorf("market has no liquidity: %w", ErrZeroLiquidity)
	}
	edgeLow, edgeHigh := m.cfg.EdgeSqrtPriceAX96, m.cfg.EdgeSqrtPriceBX96
	debtBefore, err := math.GetDebtFromLiquidityDelta(edgeLow, p.sqrtPrice, p.liquidity, RoundingDown)
	if err != nil {
		return SwapResult{}, err
	}
	leverageBefore, err := math.GetLeverageFromLiquidityDelta(p.sqrtPrice, edgeHigh, p.liquidity, RoundingDown)
	if err != nil {
		return SwapResult{}, err
	}

	if exactIn {
		if err := checkMintCap(amount, p.baseSupply, m.cfg.NoCapLimit); err != nil {
			return SwapResult{}, err
		}
		fee := feeOnAmount(amount, m.cfg.SwapFeeBps)
		net := new(big.Int).Sub(amount, fee)
		liquidityDelta, err := math.MulDiv(p.liquidity, net, p.baseSupply, RoundingDown)
		if err != nil {
			return SwapResult{}, err
		}
		nextLiquidity := new(big.Int).Add(p.liquidity, liquidityDelta)

		var nextPrice, amountOut *big.Int
		if assetOut == AssetTypeDebt {
			nextPrice = priceFromLeverageSide(edgeLow, nextLiquidity, leverageBefore)
			nextPrice = clampPrice(nextPrice, edgeLow, edgeHigh)
			debtAfter, err := math.GetDebtFromLiquidityDelta(edgeLow, nextPrice, nextLiquidity, RoundingDown)
			if err != nil {
				return SwapResult{}, err
			}
			amountOut = positiveDelta(debtAfter, debtBefore)
			p.debtSupply.Add(p.debtSupply, amountOut)
		} else {
			nextPrice = priceFromDebtSide(edgeLow, nextLiquidity, debtBefore)
			nextPrice = clampPrice(nextPrice, edgeLow, edgeHigh)
			leverageAfter, err := math.GetLeverageFromLiquidityDelta(nextPrice, edgeHigh, nextLiquidity, RoundingDown)
			if err != nil {
				return SwapResult{}, err
			}
			amountOut = positiveDelta(leverageAfter, leverageBefore)
			p.leverageSupply.Add(p.leverageSupply, amountOut)
		}
		p.sqrtPrice = nextPrice
		p.liquidity = nextLiquidity
		p.baseSupply.Add(p.baseSupply, net)
		p.swapFee.Add(p.swapFee, fee)
		return SwapResult{
			AmountIn:      new(big.Int).Set(amount),
			AmountOut:     amountOut,
			SwapFee:       fee,
			FeeAccrued:    p.feeAccrued,
			NextSqrtPrice: nextPrice,
		}, nil
	}

	// Exact-out: grow the balances to include the requested synthetic,
	// solve for the liquidity that carries them, and charge the base
	// that buys the liquidity delta plus fee.
	var nextLiquidity, nextPrice *big.Int
	if assetOut == AssetTypeDebt {
		debtAfter := new(big.Int).Add(debtBefore, amount)
		nextLiquidity, err = math.LiquidityFromBalances(edgeLow, edgeHigh, debtAfter, leverageBefore)
		if err != nil {
			return SwapResult{}, err
		}
		nextPrice = priceFromDebtSide(edgeLow, nextLiquidity, debtAfter)
	} else {
		leverageAfter := new(big.Int).Add(leverageBefore, amount)
		nextLiquidity, err = math.LiquidityFromBalances(edgeLow, edgeHigh, debtBefore, leverageAfter)
		if err != nil {
			return SwapResult{}, err
		}
		nextPrice = priceFromLeverageSide(edgeLow, nextLiquidity, leverageAfter)
	}
	nextPrice = clampPrice(nextPrice, edgeLow, edgeHigh)
	if nextLiquidity.Cmp(p.liquidity) < 0 {
		return SwapResult{}, fmt.Errorf("synthetic request shrinks the curve: %w", ErrInvalidDomain)
	}
	liquidityDelta := new(big.Int).Sub(nextLiquidity, p.liquidity)
	net, err := math.MulDiv(p.baseSupply, liquidityDelta, p.liquidity, RoundingUp)
	if err != nil {
		return SwapResult{}, err
	}
	gross, err := grossFromNet(net, m.cfg.SwapFeeBps)
	if err != nil {
		return SwapResult{}, err
	}
	if err := checkMintCap(gross, p.baseSupply, m.cfg.NoCapLimit); err != nil {
		return SwapResult{}, err
	}
	fee := new(big.Int).Sub(gross, net)

	if assetOut == AssetTypeDebt {
		p.debtSupply.Add(p.debtSupply, amount)
	} else {
		p.leverageSupply.Add(p.leverageSupply, amount)
	}
	p.sqrtPrice = nextPrice
	p.liquidity = nextLiquidity
	p.baseSupply.Add(p.baseSupply, net)
	p.swapFee.Add(p.swapFee, fee)
	return SwapResult{
		AmountIn:      gross,
		AmountOut:     new(big.Int).Set(amount),
		SwapFee:       fee,
		FeeAccrued:    p.feeAccrued,
		NextSqrtPrice: nextPrice,
	}, nil
}

func (e *Engine) rejectUnderCollateralized(m *marketState, p *pending, action string) error {
	priceX96, err := e.oraclePriceX96(m.id)
	if err != nil {
		return err
	}
	if underCollateralized(p.debtSupply, p.notionalPrice, p.baseSupply, priceX96) {
		return fmt.Errorf("%s: %w", action, ErrActionNotAllowedUnderCollateralized)
	}
	return nil
}

// solveRemainingBalance inverts the curve invariant for the balance on
// the reduced side, given the target liquidity and the fixed side.
func solveRemainingBalance(edgeLow, liquidity, fixedBalance *big.Int) (*big.Int, error) {
	if liquidity.Sign() == 0 {
		if fixedBalance.Sign() != 0 {
			return nil, fmt.Errorf("cannot drain a curve with a fixed balance: %w", ErrInsufficientTokens)
		}
		return new(big.Int), nil
	}
	numerator := new(big.Int).Mul(edgeLow, edgeLow)
	numerator.Sub(shared.OneX192, numerator)
	numerator.Mul(numerator, liquidity)
	numerator.Mul(numerator, liquidity)
	cross := new(big.Int).Mul(edgeLow, shared.OneX96)
	cross.Mul(cross, fixedBalance)
	cross.Mul(cross, liquidity)
	numerator.Sub(numerator, cross)
	if numerator.Sign() < 0 {
		return nil, fmt.Errorf("base request exceeds what the synthetic can release: %w", ErrInsufficientTokens)
	}
	denominator := new(big.Int).Mul(edgeLow, shared.OneX96)
	denominator.Mul(denominator, liquidity)
	scaled := new(big.Int).Mul(shared.OneX192, fixedBalance)
	denominator.Add(denominator, scaled)
	return numerator.Div(numerator, denominator), nil
}

// priceFromDebtSide places the price from an exactly known debt
// balance: sqrtPrice = edgeLow + z*2^96/L.
func priceFromDebtSide(edgeLow, liquidity, debtBalance *big.Int) *big.Int {
	out := new(big.Int).Mul(debtBalance, shared.OneX96)
	out.Div(out, liquidity)
	return out.Add(out, edgeLow)
}

// priceFromLeverageSide places the price from an exactly known
// leverage balance: sqrtPrice = L*2^192 / (a*2^96 + L*edgeLow).
func priceFromLeverageSide(edgeLow, liquidity, leverageBalance *big.Int) *big.Int {
	numerator := new(big.Int).Mul(liquidity, shared.OneX192)
	denominator := new(big.Int).Mul(leverageBalance, shared.OneX96)
	scaled := new(big.Int).Mul(liquidity, edgeLow)
	denominator.Add(denominator, scaled)
	return numerator.Div(numerator, denominator)
}

func clampPrice(price, edgeLow, edgeHigh *big.Int) *big.Int {
	if price.Cmp(edgeLow) < 0 {
		return new(big.Int).Set(edgeLow)
	}
	if price.Cmp(edgeHigh) > 0 {
		return new(big.Int).Set(edgeHigh)
	}
	return price
}

func positiveDelta(after, before *big.Int) *big.Int {
	if after.Cmp(before) <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(after, before)
}

// checkMintCap bounds single-operation growth. Small markets only face
// the absolute ceiling; grown markets cannot more than double.
func checkMintCap(baseIn, baseBefore *big.Int, noCapLimit uint8) error {
	threshold := new(big.Int).Lsh(big.NewInt(1), uint(noCapLimit))
	if baseBefore.Cmp(threshold) <= 0 {
		if baseIn.Cmp(shared.NoCapCeiling) > 0 {
			return fmt.Errorf("deposit exceeds the absolute ceiling: %w", ErrCapExceeded)
		}
		return nil
	}
	if baseIn.Cmp(baseBefore) > 0 {
		return fmt.Errorf("deposit of %s exceeds base supply %s: %w", baseIn, baseBefore, ErrCapExceeded)
	}
	return nil
}

// checkRedeemCap bounds single-operation shrinkage. Grown markets
// cannot lose more than half their liquidity at once.
func checkRedeemCap(liquidityOut, liquidityBefore, baseBefore *big.Int, noCapLimit uint8) error {
	threshold := new(big.Int).Lsh(big.NewInt(1), uint(noCapLimit))
	if baseBefore.Cmp(threshold) <= 0 {
		if liquidityOut.Cmp(shared.NoCapCeiling) > 0 {
			return fmt.Errorf("withdrawal exceeds the absolute ceiling: %w", ErrCapExceeded)
		}
		return nil
	}
	doubled := new(big.Int).Lsh(liquidityOut, 1)
	if doubled.Cmp(liquidityBefore) > 0 {
		return fmt.Errorf("withdrawal of %s liquidity exceeds half of %s: %w", liquidityOut, liquidityBefore, ErrCapExceeded)
	}
	return nil
}

func requireAmount(amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %w", ErrInvalidDomain)
	}
	return amount, nil
}

func requirePair(leverageIn, debtIn *big.Int) (*big.Int, *big.Int, error) {
	if leverageIn == nil {
		leverageIn = new(big.Int)
	}
	if debtIn == nil {
		debtIn = new(big.Int)
	}
	if leverageIn.Sign() < 0 || debtIn.Sign() < 0 {
		return nil, nil, fmt.Errorf("negative amount: %w", ErrInvalidDomain)
	}
	if leverageIn.Sign() == 0 && debtIn.Sign() == 0 {
		return nil, nil, ErrZeroAmount
	}
	return leverageIn, debtIn, nil
}
