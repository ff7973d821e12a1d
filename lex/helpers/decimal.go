package helpers

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/lexfi/lex-go/lex/shared"
)

// X96ToDecimal renders an X96 fixed-point value as a decimal with the
// given number of fractional digits.
func X96ToDecimal(value *big.Int, places int32) decimal.Decimal {
	numerator := decimal.NewFromBigInt(value, 0)
	denominator := decimal.NewFromBigInt(shared.OneX96, 0)
	return numerator.DivRound(denominator, places)
}

// DecimalToX96 converts a decimal into X96 fixed point, truncating
// precision beyond the scale.
func DecimalToX96(value decimal.Decimal) *big.Int {
	scaled := value.Mul(decimal.NewFromBigInt(shared.OneX96, 0))
	return scaled.BigInt()
}
