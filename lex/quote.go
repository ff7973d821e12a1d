package lex

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Quotes run the exact code path of their mutating counterparts
// against the post-accrual working copy and throw the copy away, so a
// quote always matches the operation executed at the same timestamp.

// QuoteMint previews Mint without committing state.
func (e *Engine) QuoteMint(params MintParams) (MintResult, error) {
	return e.mint(params, false)
}

// QuoteRedeem previews Redeem without committing state.
func (e *Engine) QuoteRedeem(params RedeemParams) (RedeemResult, error) {
	return e.redeem(params, false)
}

// SwapQuote is a swap preview plus the relative price impact of the
// trade on the curve.
type SwapQuote struct {
	SwapResult
	PriceImpact decimal.Decimal
}

// QuoteSwap previews Swap without committing state.
func (e *Engine) QuoteSwap(params SwapParams) (SwapQuote, error) {
	res, prior, err := e.swap(params, false)
	if err != nil {
		return SwapQuote{}, err
	}
	return SwapQuote{
		SwapResult:  res,
		PriceImpact: priceImpact(prior, res.NextSqrtPrice),
	}, nil
}

// priceImpact is |next^2 - prior^2| / prior^2 as a decimal.
func priceImpact(prior, next *big.Int) decimal.Decimal {
	priorPrice := new(big.Int).Mul(prior, prior)
	if priorPrice.Sign() == 0 {
		return decimal.Decimal{}
	}
	nextPrice := new(big.Int).Mul(next, next)
	diff := new(big.Int).Sub(nextPrice, priorPrice)
	diff.Abs(diff)
	return decimal.NewFromBigInt(diff, 0).DivRound(decimal.NewFromBigInt(priorPrice, 0), 18)
}
