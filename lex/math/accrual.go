package math

import (
	"math/big"

	"github.com/lexfi/lex-go/lex/shared"
)

// LnWorkoutPenaltyX96 is ln(100/99) in X96, the daily log-decay applied
// to debt notional while a market is in workout.
var LnWorkoutPenaltyX96 = mustBig("796269642324149759617244445")

var (
	penaltyPerSecondX96 = new(big.Int).Div(LnWorkoutPenaltyX96, big.NewInt(shared.SecondsPerDay))
	secondsPerYearX96   = new(big.Int).Mul(big.NewInt(shared.SecondsPerYear), shared.OneX96)
)

func mustBig(v string) *big.Int {
	out, ok := new(big.Int).SetString(v, 10)
	if !ok {
		panic("math: invalid big integer literal " + v)
	}
	return out
}

// ExpX96 approximates e^x in X96 for non-negative x with a third-order
// expansion: 1 + x + x^2/2 + x^3/6. Accurate to well under a basis
// point for the per-update exponents the engine produces.
func ExpX96(x *big.Int) *big.Int {
	if x.Sign() <= 0 {
		return new(big.Int).Set(shared.OneX96)
	}
	xSq := new(big.Int).Mul(x, x)
	xSq.Div(xSq, shared.OneX96)

	xCu := new(big.Int).Mul(xSq, x)
	xCu.Div(xCu, shared.OneX96)

	out := new(big.Int).Add(shared.OneX96, x)
	out.Add(out, xSq.Div(xSq, two))
	out.Add(out, xCu.Div(xCu, big.NewInt(6)))
	return out
}

// WorkoutWeightX96 ramps from zero at limHigh to one at limMax as the
// sqrt price climbs through the workout band.
func WorkoutWeightX96(sqrtPrice, limHigh, limMax *big.Int) *big.Int {
	if sqrtPrice.Cmp(limHigh) <= 0 {
		return new(big.Int)
	}
	if sqrtPrice.Cmp(limMax) >= 0 {
		return new(big.Int).Set(shared.OneX96)
	}
	width := new(big.Int).Sub(limMax, limHigh)
	weight := new(big.Int).Sub(sqrtPrice, limHigh)
	weight.Mul(weight, shared.OneX96)
	return weight.Div(weight, width)
}

// RatePerSecondX96 is the signed per-second log rate of the debt
// notional. The normal leg scales the duration-normalized bias by the
// debt price discount; the workout leg is a fixed daily decay. The two
// are blended by the workout weight.
func RatePerSecondX96(lnRateBiasQ64 *big.Int, debtPriceDiscountX96 *big.Int, debtDuration uint64, workoutWeightX96 *big.Int) *big.Int {
	if debtDuration == 0 {
		return new(big.Int)
	}
	normal := new(big.Int).Lsh(new(big.Int).Abs(lnRateBiasQ64), 32)
	normal.Mul(normal, debtPriceDiscountX96)
	normal.Div(normal, shared.OneX96)
	normal.Div(normal, new(big.Int).SetUint64(debtDuration))
	if lnRateBiasQ64.Sign() < 0 {
		normal.Neg(normal)
	}

	weight := clampBig(new(big.Int).Set(workoutWeightX96), zero, shared.OneX96)
	if weight.Sign() == 0 {
		return normal
	}

	blended := new(big.Int).Sub(shared.OneX96, weight)
	blended.Mul(blended, normal)
	penalty := new(big.Int).Mul(penaltyPerSecondX96, weight)
	blended.Sub(blended, penalty)
	return blended.Quo(blended, shared.OneX96)
}

// AccrueInterest compounds the debt notional price over elapsed seconds
// at the blended per-second rate. Total for valid inputs; the result
// never drops below one.
func AccrueInterest(priorNotionalPrice *big.Int, debtDuration uint64, debtPriceDiscountX96 *big.Int, elapsedSeconds uint64, lnRateBiasQ64, workoutWeightX96 *big.Int) *big.Int {
	if elapsedSeconds == 0 || priorNotionalPrice.Sign() <= 0 {
		return new(big.Int).Set(priorNotionalPrice)
	}
	rate := RatePerSecondX96(lnRateBiasQ64, debtPriceDiscountX96, debtDuration, workoutWeightX96)
	exponent := new(big.Int).Mul(rate, new(big.Int).SetUint64(elapsedSeconds))
	if exponent.Sign() == 0 {
		return new(big.Int).Set(priorNotionalPrice)
	}

	next := new(big.Int)
	if exponent.Sign() > 0 {
		factor := ExpX96(exponent)
		next.Mul(priorNotionalPrice, factor)
		next.Div(next, shared.OneX96)
	} else {
		factor := ExpX96(exponent.Neg(exponent))
		next.Mul(priorNotionalPrice, shared.OneX96)
		next.Div(next, factor)
	}
	if next.Sign() <= 0 {
		next.SetInt64(1)
	}
	return next
}

// CalculateLinearAccrual is the pro-rata accrual on a balance over
// elapsed seconds at an annual X96 rate, rounded down.
func CalculateLinearAccrual(balance, annualRateX96 *big.Int, elapsedSeconds uint64) *big.Int {
	if balance.Sign() <= 0 || annualRateX96.Sign() <= 0 || elapsedSeconds == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(balance, annualRateX96)
	out.Mul(out, new(big.Int).SetUint64(elapsedSeconds))
	return out.Div(out, secondsPerYearX96)
}
