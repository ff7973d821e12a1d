package math

import (
	"fmt"
	"math/big"

	"github.com/lexfi/lex-go/lex/shared"
)

var (
	zero = big.NewInt(0)
	one  = big.NewInt(1)
	two  = big.NewInt(2)
)

// MulDiv computes x * y / denominator at full intermediate precision.
// The quotient is rounded per the rounding flag and checked against the
// 256-bit range before it is returned.
func MulDiv(x, y, denominator *big.Int, rounding shared.Rounding) (*big.Int, error) {
	if denominator.Sign() == 0 {
		return nil, fmt.Errorf("muldiv by zero: %w", shared.ErrInvalidDomain)
	}
	prod := new(big.Int).Mul(x, y)
	quot, rem := new(big.Int).QuoRem(prod, denominator, new(big.Int))
	if rounding == shared.RoundingUp && rem.Sign() != 0 {
		quot.Add(quot, one)
	}
	return checkU256(quot)
}

// Sqrt returns the integer square root of value using Newton iteration.
func Sqrt(value *big.Int) *big.Int {
	if value.Sign() <= 0 {
		return new(big.Int)
	}
	guess := new(big.Int).Rsh(value, uint(value.BitLen()/2))
	guess.Add(guess, one)
	last := new(big.Int)
	for {
		last.Set(guess)
		next := new(big.Int).Div(value, guess)
		next.Add(next, guess)
		next.Rsh(next, 1)
		if next.Cmp(guess) >= 0 {
			return guess
		}
		guess.Set(next)
	}
}

// PriceFromSqrtPrice converts a square-root price to a linear price,
// both in X96 fixed point.
func PriceFromSqrtPrice(sqrtPrice *big.Int) (*big.Int, error) {
	if sqrtPrice.Sign() < 0 {
		return nil, fmt.Errorf("negative sqrt price: %w", shared.ErrInvalidDomain)
	}
	return MulDiv(sqrtPrice, sqrtPrice, shared.OneX96, shared.RoundingDown)
}

// SqrtPriceFromPrice converts a linear X96 price to its square-root form.
func SqrtPriceFromPrice(priceX96 *big.Int) (*big.Int, error) {
	if priceX96.Sign() < 0 {
		return nil, fmt.Errorf("negative price: %w", shared.ErrInvalidDomain)
	}
	return Sqrt(new(big.Int).Mul(priceX96, shared.OneX96)), nil
}

// MirrorEdge returns the price bound paired with edge so that the two
// multiply to one in Q192 terms.
func MirrorEdge(edge *big.Int) (*big.Int, error) {
	if edge.Sign() <= 0 {
		return nil, fmt.Errorf("mirror of non-positive edge: %w", shared.ErrInvalidDomain)
	}
	return new(big.Int).Div(shared.OneX192, edge), nil
}

func checkU256(v *big.Int) (*big.Int, error) {
	if v.CmpAbs(shared.MaxU256) > 0 {
		return nil, fmt.Errorf("result exceeds 256 bits: %w", shared.ErrArithmeticOverflow)
	}
	return v, nil
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}

func clampBig(v, lo, hi *big.Int) *big.Int {
	if v.Cmp(lo) < 0 {
		return new(big.Int).Set(lo)
	}
	if v.Cmp(hi) > 0 {
		return new(big.Int).Set(hi)
	}
	return v
}
