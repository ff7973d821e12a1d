package lex

import "math/big"

func bigIntFromString(v string) *big.Int {
	out, ok := new(big.Int).SetString(v, 10)
	if !ok {
		panic("lex: invalid big integer constant " + v)
	}
	return out
}

// Edge prices must stay well inside the representable range so every
// intermediate product along the curve fits in 256 bits.
var (
	MinEdgeSqrtPriceX96 = bigIntFromString("281474976710656")                              // 2^48
	MaxEdgeSqrtPriceX96 = bigIntFromString("22300745198530623141535718272648361505980416") // 2^144
)

// DefaultMaxMarkets bounds how many markets one engine hosts.
const DefaultMaxMarkets = 1024
